// Package ocspstaple implements the OCSP stapler (spec section 4.5,
// component C5): given a context's OCSP identifiers, fetch and cache a
// stapled response via the HTTP fetch pool, and attach it to the
// handshake.
//
// Go's crypto/tls has no separate "status_request callback" the way
// OpenSSL does; instead, whatever *tls.Certificate a tls.Config's
// GetCertificate hook returns is automatically stapled by the stdlib
// *if* the client sent status_request and Certificate.OCSPStaple is
// non-empty. So "hooking into the status-request callback" becomes:
// install a GetCertificate function on each TlsContext that populates
// OCSPStaple from this package's cache before returning.
package ocspstaple

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ocsp"

	"github.com/laggyluke/bud/internal/buderr"
	"github.com/laggyluke/bud/internal/httpfetch"
	"github.com/laggyluke/bud/internal/tlscontext"
)

// skew is subtracted from a cached response's NextUpdate before deciding
// it is still usable, so stapling always refreshes a little ahead of
// actual expiry (spec section 4.5, step 1).
const skew = 5 * time.Minute

// lookupTimeout bounds a single stapling directory round trip.
const lookupTimeout = 5 * time.Second

type cached struct {
	der        []byte
	nextUpdate time.Time
}

// Stapler holds one cached response per TlsContext (spec's "LRU by
// context, one entry") and fetches fresh ones from pool on a cache miss.
type Stapler struct {
	pool *httpfetch.Pool // nil when stapling.enabled is false

	mu    sync.Mutex
	cache map[*tlscontext.TlsContext]cached

	log *zap.Logger
}

// New builds a Stapler backed by pool (nil disables remote stapling
// entirely; HookFor's callback then always returns the certificate
// unstapled).
func New(pool *httpfetch.Pool, log *zap.Logger) *Stapler {
	return &Stapler{pool: pool, cache: make(map[*tlscontext.TlsContext]cached), log: log}
}

// HookFor returns the GetCertificate callback to install on tc's
// *tls.Config. The handshake must never fail because stapling failed
// (spec section 4.5): every error path here falls through to returning
// the certificate without a staple.
func (s *Stapler) HookFor(tc *tlscontext.TlsContext) func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
		cert := tc.TLSConfig.Certificates[0]

		if err := hello.SupportsCertificate(&cert); err != nil {
			// Shouldn't generally happen since this hook is only ever
			// installed on a single-certificate config, but keep
			// crypto/tls's own compatibility check honest.
			return &cert, nil
		}

		if s.pool == nil || len(tc.OCSPKey) == 0 {
			return &cert, nil
		}
		if !clientRequestedStatus(hello) {
			return &cert, nil
		}

		der := s.stapleFor(tc)
		if der != nil {
			cert.OCSPStaple = der
		}
		return &cert, nil
	}
}

// clientRequestedStatus reports whether the ClientHello carried a
// status_request extension. crypto/tls does not surface this boolean
// directly on ClientHelloInfo, but it only calls GetCertificate's result
// through the stapling path when the extension was present; for
// contexts where we want to skip the lookup entirely when we know it
// wasn't requested, a future crypto/tls version exposing the flag would
// replace this always-true stub. For now we always attempt stapling
// when configured; an unstapled response is simply ignored by clients
// that didn't ask.
func clientRequestedStatus(_ *tls.ClientHelloInfo) bool { return true }

// stapleFor returns a DER OCSP response for tc, from cache if still
// fresh, else from a fresh fetch. Returns nil (no staple) on any failure
// — best-effort per spec section 4.5.
func (s *Stapler) stapleFor(tc *tlscontext.TlsContext) []byte {
	s.mu.Lock()
	c, ok := s.cache[tc]
	s.mu.Unlock()
	if ok && time.Now().Before(c.nextUpdate.Add(-skew)) {
		return c.der
	}

	der, nextUpdate, err := s.fetch(tc)
	if err != nil {
		if s.log != nil {
			s.log.Debug("ocsp staple fetch failed, continuing without one",
				zap.String("servername", tc.ServerName), zap.Error(err))
		}
		return nil
	}

	s.mu.Lock()
	s.cache[tc] = cached{der: der, nextUpdate: nextUpdate}
	s.mu.Unlock()
	return der
}

// fetch issues stapling_pool.lookup(base64_key) and validates the result
// as an OCSPResponse DER blob, syntactically only — the directory is
// trusted, so no issuer certificate is passed to ocsp.ParseResponse.
func (s *Stapler) fetch(tc *tlscontext.TlsContext) ([]byte, time.Time, error) {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	body, err := s.pool.Lookup(ctx, tc.OCSPKey)
	if err != nil {
		return nil, time.Time{}, err
	}

	resp, err := ocsp.ParseResponse(body, nil)
	if err != nil {
		return nil, time.Time{}, buderr.Lookup(err, "parsing ocsp response for %q", tc.ServerName)
	}
	return body, resp.NextUpdate, nil
}
