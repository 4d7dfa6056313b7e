package tlscontext

import (
	"crypto/tls"
	"strings"

	"go.uber.org/zap"
)

// cipherAliases maps the common OpenSSL cipher-list tokens the original
// config accepted (config.c simply handed the string to
// SSL_CTX_set_cipher_list) to Go's named suite constants. Unrecognized
// tokens are dropped with a warning rather than rejected outright, since
// the OpenSSL cipher-string grammar (bare names, "!", "+", "@STRENGTH")
// is not something crypto/tls can express at all.
var cipherAliases = map[string]uint16{
	"ECDHE-RSA-AES128-GCM-SHA256":   tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	"ECDHE-RSA-AES256-GCM-SHA384":   tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	"ECDHE-ECDSA-AES128-GCM-SHA256": tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	"ECDHE-ECDSA-AES256-GCM-SHA384": tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	"ECDHE-RSA-CHACHA20-POLY1305":   tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
	"ECDHE-ECDSA-CHACHA20-POLY1305": tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	"AES128-SHA":                   tls.TLS_RSA_WITH_AES_128_CBC_SHA,
	"AES256-SHA":                   tls.TLS_RSA_WITH_AES_256_CBC_SHA,
}

// parseCiphers turns an OpenSSL-style colon-separated cipher list into the
// subset Go's crypto/tls can enforce, logging any token it cannot
// translate. A nil/empty spec leaves Go's own secure default list in
// effect (nil CipherSuites on tls.Config).
func parseCiphers(spec string, log *zap.Logger) []uint16 {
	if spec == "" {
		return nil
	}
	var out []uint16
	for _, tok := range strings.Split(spec, ":") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		id, ok := cipherAliases[tok]
		if !ok {
			if log != nil {
				log.Warn("unrecognized cipher token, ignoring", zap.String("cipher", tok))
			}
			continue
		}
		out = append(out, id)
	}
	return out
}

// curveAliases maps the OpenSSL ECDH curve names config.c accepts
// (SSL_CTX_set_tmp_ecdh / SSL_CTX_set1_curves_list) to Go's curve IDs.
var curveAliases = map[string]tls.CurveID{
	"prime256v1": tls.CurveP256,
	"secp256r1":  tls.CurveP256,
	"secp384r1":  tls.CurveP384,
	"secp521r1":  tls.CurveP521,
}

// parseCurve resolves name to a CurveID, falling back to P256 (the
// default, "prime256v1") with a warning for anything unrecognized.
func parseCurve(name string, log *zap.Logger) tls.CurveID {
	if id, ok := curveAliases[name]; ok {
		return id
	}
	if name != "" && log != nil {
		log.Warn("unrecognized ecdh curve, falling back to prime256v1", zap.String("curve", name))
	}
	return tls.CurveP256
}

// securityAliases maps the "security" protocol-version floor config.c
// accepts to Go's MinVersion. ssl3/ssl23 cannot be honored literally —
// crypto/tls has never implemented SSLv3 — so both map to the lowest
// version Go actually supports, with a startup warning (see
// SPEC_FULL.md's "security protocol-version floor" section).
var securityAliases = map[string]uint16{
	"ssl23":   tls.VersionTLS10,
	"ssl3":    tls.VersionTLS10,
	"tls1.0":  tls.VersionTLS10,
	"tls1.1":  tls.VersionTLS11,
	"tls1.2":  tls.VersionTLS12,
}

// parseSecurity resolves the configured floor to a MinVersion, warning
// when ssl3/ssl23 are requested since Go cannot actually negotiate them.
func parseSecurity(name string, log *zap.Logger) uint16 {
	v, ok := securityAliases[name]
	if !ok {
		if log != nil {
			log.Warn("unrecognized security floor, defaulting to tls1.0", zap.String("security", name))
		}
		return tls.VersionTLS10
	}
	if (name == "ssl3" || name == "ssl23") && log != nil {
		log.Warn("ssl3/ssl23 requested but not implemented by crypto/tls; using TLS 1.0 as the floor", zap.String("security", name))
	}
	return v
}
