package config

// Canonical defaults, matching the values --default-config prints. Ported
// from the original implementation's bud_config_set_defaults /
// bud_config_print_default (see original_source/src/config.c) — the exact
// numbers are a resolved Open Question, not arbitrary.
const (
	DefaultWorkers          = 1
	DefaultRestartTimeoutMs = 250

	DefaultFrontendPort      = 1443
	DefaultFrontendHost      = "0.0.0.0"
	DefaultSecurity          = "ssl23"
	DefaultECDH              = "prime256v1"
	DefaultFrontendKeepalive = 3600
	DefaultRenegWindow       = 600
	DefaultRenegLimit        = 3
	DefaultCertPath          = "keys/cert.pem"
	DefaultKeyPath           = "keys/key.pem"

	DefaultBackendPort      = 8000
	DefaultBackendHost      = "127.0.0.1"
	DefaultBackendKeepalive = 3600

	DefaultSNIPort   = 9000
	DefaultSNIHost   = "127.0.0.1"
	DefaultSNIQuery  = "/bud/sni/%s"

	DefaultStaplingPort  = 9000
	DefaultStaplingHost  = "127.0.0.1"
	DefaultStaplingQuery = "/bud/stapling/%s"
)

// DefaultNPN is the hard-coded default protocol advertisement, as in the
// original (frontend.npn defaults to ["http/1.1", "http/1.0"] when NPN
// support is compiled in).
var DefaultNPN = []string{"http/1.1", "http/1.0"}

// Defaults mutates cfg in place, filling any zero-valued field with its
// canonical default. Mirrors the DEFAULT(...) macro pass in
// bud_config_set_defaults: only fields left at their Go zero value are
// touched, so a file that sets a field to a non-zero value always wins.
// An explicit zero looks the same as an absent field here; Load restores
// an explicit "workers": 0 after this pass.
func Defaults(cfg *Config) {
	if cfg.Workers == 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.RestartTimeoutMs == 0 {
		cfg.RestartTimeoutMs = DefaultRestartTimeoutMs
	}

	f := &cfg.Frontend
	if f.Port == 0 {
		f.Port = DefaultFrontendPort
	}
	if f.Host == "" {
		f.Host = DefaultFrontendHost
	}
	if f.Proxyline == nil {
		b := false
		f.Proxyline = &b
	}
	if f.Security == "" {
		f.Security = DefaultSecurity
	}
	if f.ECDH == "" {
		f.ECDH = DefaultECDH
	}
	if f.Keepalive == 0 {
		f.Keepalive = DefaultFrontendKeepalive
	}
	if f.Cert == "" {
		f.Cert = DefaultCertPath
	}
	if f.Key == "" {
		f.Key = DefaultKeyPath
	}
	if f.RenegWindow == 0 {
		f.RenegWindow = DefaultRenegWindow
	}
	if f.RenegLimit == 0 {
		f.RenegLimit = DefaultRenegLimit
	}
	if f.NPN == nil {
		f.NPN = append([]string(nil), DefaultNPN...)
	}

	b := &cfg.Backend
	if b.Port == 0 {
		b.Port = DefaultBackendPort
	}
	if b.Host == "" {
		b.Host = DefaultBackendHost
	}
	if b.Keepalive == 0 {
		b.Keepalive = DefaultBackendKeepalive
	}

	if cfg.SNI == nil {
		cfg.SNI = &PoolConfig{}
	}
	if cfg.SNI.Port == 0 {
		cfg.SNI.Port = DefaultSNIPort
	}
	if cfg.SNI.Host == "" {
		cfg.SNI.Host = DefaultSNIHost
	}
	if cfg.SNI.Query == "" {
		cfg.SNI.Query = DefaultSNIQuery
	}

	if cfg.Stapling == nil {
		cfg.Stapling = &PoolConfig{}
	}
	if cfg.Stapling.Port == 0 {
		cfg.Stapling.Port = DefaultStaplingPort
	}
	if cfg.Stapling.Host == "" {
		cfg.Stapling.Host = DefaultStaplingHost
	}
	if cfg.Stapling.Query == "" {
		cfg.Stapling.Query = DefaultStaplingQuery
	}
}
