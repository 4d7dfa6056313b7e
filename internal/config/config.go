// Package config holds the process-wide, immutable-after-load
// configuration described in spec section 3 and the JSON wire format in
// section 6.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/laggyluke/bud/internal/buderr"
)

// PoolConfig describes a directory-service endpoint queried via the HTTP
// fetch pool (C2): the SNI or the stapling service.
type PoolConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Query   string `json:"query"`
}

// Addr formats the pool's host:port for dialing.
func (p *PoolConfig) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// FrontendConfig is the client-facing listener and its default TLS
// parameters (these become the index-0 default TlsContext).
type FrontendConfig struct {
	Host             string   `json:"host"`
	Port             int      `json:"port"`
	Security         string   `json:"security"`
	NPN              []string `json:"npn"`
	Ciphers          *string  `json:"ciphers"`
	ECDH             string   `json:"ecdh"`
	Cert             string   `json:"cert"`
	Key              string   `json:"key"`
	RenegWindow      int      `json:"reneg_window"`
	RenegLimit       int      `json:"reneg_limit"`
	Proxyline        *bool    `json:"proxyline"`
	Keepalive        int      `json:"keepalive"`
	ServerPreference bool     `json:"server_preference"`
	SSL3             bool     `json:"ssl3"`
}

// BackendConfig is the single backend origin connections are forwarded to.
type BackendConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Keepalive int    `json:"keepalive"`
}

// ContextConfig is one entry of the contexts[] array: a per-hostname cert
// and TLS parameter override, selected by SNI.
type ContextConfig struct {
	ServerName string   `json:"servername"`
	Cert       string   `json:"cert"`
	Key        string   `json:"key"`
	NPN        []string `json:"npn"`
	Ciphers    *string  `json:"ciphers"`
	ECDH       string   `json:"ecdh"`
}

// Config is the fully parsed, defaulted, and validated configuration file.
// Immutable once Load returns.
type Config struct {
	Workers          int             `json:"workers"`
	RestartTimeoutMs int             `json:"restart_timeout"`
	Frontend         FrontendConfig  `json:"frontend"`
	Backend          BackendConfig   `json:"backend"`
	SNI              *PoolConfig     `json:"sni"`
	Stapling         *PoolConfig     `json:"stapling"`
	Contexts         []ContextConfig `json:"contexts"`

	// IsDaemon and IsWorker are set by CLI flags, not the file, per
	// spec section 6 (--daemonize, --worker).
	IsDaemon bool `json:"-"`
	IsWorker bool `json:"-"`
}

// Load reads and parses the JSON config file at path, applies defaults,
// and validates it. Any failure is a *buderr.Error: kind IO when the file
// cannot be opened or read, kind Config for parse and validation errors.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, buderr.IO(err, "opening config file %q", path)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, buderr.IO(err, "reading config file %q", path)
	}

	cfg := new(Config)
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, buderr.Config(err, "parsing %q", path)
	}
	// "workers": 0 selects in-process mode, so an explicit zero there must
	// survive the defaulting pass, which treats every other zero as unset.
	var explicit struct {
		Workers *int `json:"workers"`
	}
	_ = json.Unmarshal(data, &explicit) // data already parsed above

	cfg.setDefaults()
	if explicit.Workers != nil {
		cfg.Workers = *explicit.Workers
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults fills zero-valued fields with the canonical defaults, the
// same values --default-config prints.
func (c *Config) setDefaults() {
	Defaults(c)
}

// validate enforces the invariants of spec section 3: unique non-empty
// servernames with a cert and key, non-empty NPN tokens, a non-empty
// query template for each enabled pool, and non-negative worker/restart
// settings.
func (c *Config) validate() error {
	if c.Workers < 0 {
		return buderr.Config(nil, "workers must be >= 0, got %d", c.Workers)
	}
	if c.RestartTimeoutMs < 0 {
		return buderr.Config(nil, "restart_timeout must be >= 0, got %d", c.RestartTimeoutMs)
	}
	if c.Frontend.Cert == "" || c.Frontend.Key == "" {
		return buderr.Config(nil, "frontend.cert and frontend.key are required")
	}

	seen := make(map[string]struct{}, len(c.Contexts))
	for i, ctx := range c.Contexts {
		if ctx.ServerName == "" {
			return buderr.Config(nil, "contexts[%d].servername must be non-empty", i)
		}
		if ctx.Cert == "" || ctx.Key == "" {
			return buderr.Config(nil, "contexts[%d] (%s) missing cert or key", i, ctx.ServerName)
		}
		key := normalizeName(ctx.ServerName)
		if _, dup := seen[key]; dup {
			return buderr.Config(nil, "contexts[%d]: duplicate servername %q", i, ctx.ServerName)
		}
		seen[key] = struct{}{}
		for j, n := range ctx.NPN {
			if n == "" {
				return buderr.Config(nil, "contexts[%d].npn[%d] must be a non-empty string", i, j)
			}
		}
	}
	for i, n := range c.Frontend.NPN {
		if n == "" {
			return buderr.Config(nil, "frontend.npn[%d] must be a non-empty string", i)
		}
	}

	if c.SNI != nil && c.SNI.Enabled {
		if c.SNI.Query == "" {
			return buderr.Config(nil, "sni.query is required when sni.enabled")
		}
	}
	if c.Stapling != nil && c.Stapling.Enabled {
		if c.Stapling.Query == "" {
			return buderr.Config(nil, "stapling.query is required when stapling.enabled")
		}
	}
	return nil
}

func normalizeName(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		b := name[i]
		if b >= 'A' && b <= 'Z' {
			b += 'a' - 'A'
		}
		out[i] = b
	}
	return string(out)
}

// NormalizeName exports the case-folding rule used for servername
// comparisons (spec section 4.3: "case-insensitive, lexicographic,
// byte-wise").
func NormalizeName(name string) string { return normalizeName(name) }
