// Package tlscontext implements the TLS context table and the per-context
// runtime state described in spec sections 3 and 4.3 (components C3): one
// *TlsContext per configured servername plus an implicit default, each
// carrying the parsed cert/issuer, the derived OCSP identifiers, and a
// frozen *tls.Config built once at construction.
package tlscontext

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/asn1"
	"encoding/base64"
	"encoding/pem"

	"go.uber.org/zap"
	"golang.org/x/crypto/ocsp"

	"github.com/laggyluke/bud/internal/buderr"
)

// TlsContext is the runtime counterpart of a config.ContextConfig (or the
// implicit default built from frontend settings). Frozen once built: every
// field is read-only for the rest of the process lifetime, so handshake
// callbacks can read it without locking (spec section 5).
type TlsContext struct {
	// ServerName is empty for the default context.
	ServerName string

	TLSConfig *tls.Config

	Leaf   *x509.Certificate
	Issuer *x509.Certificate // nil if the chain omitted it

	// OCSPID is the DER encoding of the OCSP CertID derived from
	// (Leaf, Issuer); nil when Issuer is nil.
	OCSPID []byte
	// OCSPKey is the base64 (URL-safe, unpadded) encoding of OCSPID —
	// the stable cache key used by the stapling directory lookup.
	OCSPKey string
	// OCSPURL is the first Authority Information Access OCSP URL found
	// on Leaf, cached at construction.
	OCSPURL string

	// NPNLine is the length-prefixed wire encoding of the advertised
	// protocol list (spec section 3); NextProtos on TLSConfig carries
	// the same list for actual ALPN negotiation.
	NPNLine []byte
}

// Source is the subset of config needed to build one context: either a
// config.ContextConfig or synthesized from config.FrontendConfig for the
// default entry.
type Source struct {
	ServerName string
	CertPath   string
	KeyPath    string
	NPN        []string
	Ciphers    string
	ECDH       string
	MinVersion uint16
	PreferServer bool
}

// Build loads cert/key from src, derives the OCSP identifiers, and
// returns a frozen TlsContext. Any Crypto-kind failure here is fatal at
// init per spec section 7.
func Build(src Source, log *zap.Logger) (*TlsContext, error) {
	cert, err := tls.LoadX509KeyPair(src.CertPath, src.KeyPath)
	if err != nil {
		return nil, buderr.Crypto(err, "loading cert/key for %q (%s, %s)", src.ServerName, src.CertPath, src.KeyPath)
	}
	return buildFromCertificate(src, cert, log)
}

// BuildFromPEM is Build's counterpart for ephemeral, session-scoped
// contexts materialized from an SNI directory lookup response (spec
// section 4.4): certPEM/keyPEM are PEM blocks received inline rather than
// file paths.
func BuildFromPEM(src Source, certPEM, keyPEM []byte, log *zap.Logger) (*TlsContext, error) {
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, buderr.Crypto(err, "decoding inline cert/key for %q", src.ServerName)
	}
	return buildFromCertificate(src, cert, log)
}

func buildFromCertificate(src Source, cert tls.Certificate, log *zap.Logger) (*TlsContext, error) {
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, buderr.Crypto(err, "parsing leaf certificate for %q", src.ServerName)
	}
	cert.Leaf = leaf

	issuer := findIssuer(cert.Certificate)

	npnLine, err := EncodeNPN(src.NPN)
	if err != nil {
		return nil, buderr.Config(err, "encoding npn advertisement for %q", src.ServerName)
	}

	tc := &TlsContext{
		ServerName: src.ServerName,
		Leaf:       leaf,
		Issuer:     issuer,
		NPNLine:    npnLine,
		OCSPURL:    primaryOCSPURL(leaf),
	}

	if issuer != nil {
		derID, key, derr := deriveOCSPKey(leaf, issuer)
		if derr != nil {
			// Per spec section 4.3's invariant, a context that can't
			// derive an OCSP id just has stapling disabled.
			if log != nil {
				log.Warn("ocsp id derivation failed, stapling disabled for this context",
					zap.String("servername", src.ServerName), zap.Error(derr))
			}
		} else {
			tc.OCSPID = derID
			tc.OCSPKey = key
		}
	}

	tlsCfg := &tls.Config{
		Certificates:             []tls.Certificate{cert},
		MinVersion:                src.MinVersion,
		CipherSuites:              parseCiphers(src.Ciphers, log),
		CurvePreferences:          []tls.CurveID{parseCurve(src.ECDH, log)},
		PreferServerCipherSuites:  src.PreferServer,
		NextProtos:                append([]string(nil), src.NPN...),
	}
	tc.TLSConfig = tlsCfg

	return tc, nil
}

// findIssuer returns the issuer certificate: the second entry in the
// loaded chain if present, else nil. Per spec section 3's invariant, a
// context whose chain omits the issuer simply has stapling disabled —
// crypto/x509's CertPool exposes no API to search the system trust store
// by subject, so unlike the original (which falls back to the OpenSSL
// trust store), this port does not attempt that fallback; see DESIGN.md.
func findIssuer(chain [][]byte) *x509.Certificate {
	if len(chain) < 2 {
		return nil
	}
	issuer, err := x509.ParseCertificate(chain[1])
	if err != nil {
		return nil
	}
	return issuer
}

// deriveOCSPKey DER-encodes the OCSP CertID for (leaf, issuer) via
// ocsp.CreateRequest (which builds and serializes the CertID as part of
// the request) and returns both the raw CertID bytes and its base64
// (URL-safe, unpadded) cache key.
func deriveOCSPKey(leaf, issuer *x509.Certificate) (der []byte, key string, err error) {
	req, err := ocsp.CreateRequest(leaf, issuer, nil)
	if err != nil {
		return nil, "", err
	}
	// ocsp.CreateRequest returns a full single-request OCSPRequest DER;
	// the CertID is the reqCert of its only Request entry.
	var parsed struct {
		TBSRequest struct {
			RequestList []struct{ Cert asn1.RawValue }
		}
	}
	if _, err := asn1.Unmarshal(req, &parsed); err != nil || len(parsed.TBSRequest.RequestList) != 1 {
		return nil, "", buderr.Crypto(err, "extracting ocsp cert id")
	}
	der = parsed.TBSRequest.RequestList[0].Cert.FullBytes
	return der, base64.RawURLEncoding.EncodeToString(der), nil
}

// primaryOCSPURL extracts the first Authority Information Access OCSP
// responder URL from leaf, or "" if none is present.
func primaryOCSPURL(leaf *x509.Certificate) string {
	if len(leaf.OCSPServer) == 0 {
		return ""
	}
	return leaf.OCSPServer[0]
}

// DecodePEMChain is a small helper used by tests to build synthetic
// certificate chains without touching disk.
func DecodePEMChain(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		c, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		certs = append(certs, c)
	}
	return certs, nil
}
