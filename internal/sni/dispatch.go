// Package sni implements the SNI dispatcher (spec section 4.4, component
// C4): the hook invoked once the ClientHello's server_name has been
// parsed, which picks the TlsContext for the handshake.
//
// The original relies on a TLS library that can suspend a handshake
// ("retry later") while an asynchronous directory lookup completes, and
// resumes the callback once the lookup finishes, storing the resolved
// context in a session-scoped side slot in the meantime. Go's
// crypto/tls runs tls.Config.GetConfigForClient synchronously inside the
// handshake's own goroutine, and every accepted connection already gets
// its own goroutine (spec section 5's "a single-threaded cooperative
// event loop" becomes, in idiomatic Go, one goroutine per connection) —
// so blocking inside GetConfigForClient to await the lookup IS the
// suspend/resume contract: other connections' goroutines make progress
// exactly as they would beside a libuv callback that returned "pending".
// See DESIGN.md's internal/sni section for the full reasoning. The override slot is therefore unnecessary too — we simply
// return the resolved *tls.Config directly from GetConfigForClient;
// nothing needs to be remembered for a later re-invocation.
package sni

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/laggyluke/bud/internal/buderr"
	"github.com/laggyluke/bud/internal/httpfetch"
	"github.com/laggyluke/bud/internal/tlscontext"
)

func parseEnvelope(body []byte) (*envelope, error) {
	env := new(envelope)
	if err := json.Unmarshal(body, env); err != nil {
		return nil, err
	}
	return env, nil
}

// lookupTimeout bounds how long a single SNI directory round trip may
// take before the dispatcher gives up and falls back to the default
// context, per spec section 7 ("Lookup: non-fatal; handshake proceeds
// with defaults").
const lookupTimeout = 5 * time.Second

// envelope is the small JSON body the SNI directory service returns: a
// cert/key pair plus optional npn/ciphers overrides (spec section 4.4).
type envelope struct {
	Cert    string   `json:"cert"`
	Key     string   `json:"key"`
	NPN     []string `json:"npn"`
	Ciphers string   `json:"ciphers"`
}

// Dispatcher selects a *tls.Config for each handshake: local table lookup
// first, then an optional blocking directory fetch on miss.
type Dispatcher struct {
	table *tlscontext.Table
	pool  *httpfetch.Pool // nil when sni.enabled is false
	log   *zap.Logger
}

// New builds a Dispatcher over table, optionally backed by pool for
// remote SNI resolution.
func New(table *tlscontext.Table, pool *httpfetch.Pool, log *zap.Logger) *Dispatcher {
	return &Dispatcher{table: table, pool: pool, log: log}
}

// GetConfigForClient is installed as tls.Config.GetConfigForClient. A nil
// *tls.Config return tells crypto/tls to keep using the config it was
// constructed with (the default), matching "no server_name: keep the
// default context" (spec section 4.4, step 1).
func (d *Dispatcher) GetConfigForClient(hello *tls.ClientHelloInfo) (*tls.Config, error) {
	name := hello.ServerName
	if name == "" {
		return nil, nil
	}

	if ctx, ok := d.table.LookupExact(name); ok {
		return ctx.TLSConfig, nil
	}

	if d.pool == nil {
		return d.table.Default().TLSConfig, nil
	}

	ephemeral, err := d.resolveRemote(name)
	if err != nil {
		// Empty (404), HttpError, or a malformed envelope: resume with
		// the default context per spec section 7 ("Lookup: non-fatal").
		if d.log != nil {
			d.log.Debug("sni remote lookup did not yield a context, using default",
				zap.String("servername", name), zap.Error(err))
		}
		return d.table.Default().TLSConfig, nil
	}
	return ephemeral.TLSConfig, nil
}

// resolveRemote queries the SNI directory for name and materializes an
// ephemeral TlsContext from its envelope response.
func (d *Dispatcher) resolveRemote(name string) (*tlscontext.TlsContext, error) {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	body, err := d.pool.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}

	env, err := parseEnvelope(body)
	if err != nil {
		return nil, buderr.Lookup(err, "parsing sni envelope for %q", name)
	}

	return tlscontext.BuildFromPEM(tlscontext.Source{
		ServerName: name,
		NPN:        env.NPN,
		Ciphers:    env.Ciphers,
		ECDH:       "",
		MinVersion: tls.VersionTLS10,
	}, []byte(env.Cert), []byte(env.Key), d.log)
}
