package config

import (
	"encoding/json"
	"fmt"
)

// defaultConfigShape mirrors the field order bud_config_print_default
// writes, trimmed to the fields this port actually uses (no "daemon" or
// "log" object — daemonizing and log backend selection are CLI/ambient
// concerns, not part of this config's data model per spec section 6).
type defaultConfigShape struct {
	Workers         int             `json:"workers"`
	RestartTimeout  int             `json:"restart_timeout"`
	Frontend        json.RawMessage `json:"frontend"`
	Backend         json.RawMessage `json:"backend"`
	SNI             json.RawMessage `json:"sni"`
	Stapling        json.RawMessage `json:"stapling"`
	Contexts        []ContextConfig `json:"contexts"`
}

// PrintDefault returns the canonical default configuration as indented
// JSON, for the --default-config CLI flag.
func PrintDefault() (string, error) {
	cfg := &Config{}
	Defaults(cfg)

	frontend, err := json.Marshal(cfg.Frontend)
	if err != nil {
		return "", err
	}
	backend, err := json.Marshal(cfg.Backend)
	if err != nil {
		return "", err
	}
	sni, err := json.Marshal(cfg.SNI)
	if err != nil {
		return "", err
	}
	stapling, err := json.Marshal(cfg.Stapling)
	if err != nil {
		return "", err
	}

	shape := defaultConfigShape{
		Workers:        cfg.Workers,
		RestartTimeout: cfg.RestartTimeoutMs,
		Frontend:       frontend,
		Backend:        backend,
		SNI:            sni,
		Stapling:       stapling,
		Contexts:       []ContextConfig{},
	}

	out, err := json.MarshalIndent(shape, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling default config: %w", err)
	}
	return string(out), nil
}
