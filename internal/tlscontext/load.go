package tlscontext

import (
	"go.uber.org/zap"

	"github.com/laggyluke/bud/internal/config"
)

// LoadTable builds the default context from cfg.Frontend and one context
// per cfg.Contexts entry, then assembles the sorted Table (spec section
// 4.3). Errors are returned in context order; construction stops at the
// first failure, matching config.c's "allocate in order, free everything
// on failure" discipline — translated to Go as simply returning early
// and letting already-built contexts be garbage collected (see
// SPEC_FULL.md's "Config free-on-failure discipline" note).
func LoadTable(cfg *config.Config, log *zap.Logger) (*Table, error) {
	minVersion := parseSecurity(cfg.Frontend.Security, log)

	defCiphers := ""
	if cfg.Frontend.Ciphers != nil {
		defCiphers = *cfg.Frontend.Ciphers
	}
	def, err := Build(Source{
		ServerName:   "",
		CertPath:     cfg.Frontend.Cert,
		KeyPath:      cfg.Frontend.Key,
		NPN:          cfg.Frontend.NPN,
		Ciphers:      defCiphers,
		ECDH:         cfg.Frontend.ECDH,
		MinVersion:   minVersion,
		PreferServer: cfg.Frontend.ServerPreference,
	}, log)
	if err != nil {
		return nil, err
	}

	contexts := make([]*TlsContext, 0, len(cfg.Contexts))
	for _, cc := range cfg.Contexts {
		ciphers := defCiphers
		if cc.Ciphers != nil {
			ciphers = *cc.Ciphers
		}
		ecdh := cc.ECDH
		if ecdh == "" {
			ecdh = cfg.Frontend.ECDH
		}
		npn := cc.NPN
		if npn == nil {
			npn = cfg.Frontend.NPN
		}
		tc, err := Build(Source{
			ServerName:   cc.ServerName,
			CertPath:     cc.Cert,
			KeyPath:      cc.Key,
			NPN:          npn,
			Ciphers:      ciphers,
			ECDH:         ecdh,
			MinVersion:   minVersion,
			PreferServer: cfg.Frontend.ServerPreference,
		}, log)
		if err != nil {
			return nil, err // err already names cc.ServerName via Build
		}
		contexts = append(contexts, tc)
	}

	return NewTable(def, contexts), nil
}
