// Package httpfetch implements the small persistent-connection HTTP client
// used to query the SNI and stapling directory services (spec section
// 4.2, component C2). It is deliberately not a general-purpose client: one
// fixed host:port, one query template with a single "%s" placeholder, GET
// only, body interpretation left to the caller.
package httpfetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/laggyluke/bud/internal/buderr"
)

// maxIdle bounds the pool's kept-alive idle connections to the directory
// service. Small on purpose: one worker process, one upstream.
const maxIdle = 4

// Pool issues GETs against a single host:port, reusing a small set of
// idle keep-alive connections. Safe for concurrent use by multiple
// goroutines within one worker; pools are never shared between workers.
type Pool struct {
	addr     string
	template string
	client   *http.Client
	log      *zap.Logger
}

// New builds a Pool that targets addr (host:port) and formats query
// (containing one "%s") with the caller's lookup key to build the request
// path.
func New(addr, query string, log *zap.Logger) *Pool {
	transport := &http.Transport{
		Proxy: nil,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        maxIdle,
		MaxIdleConnsPerHost: maxIdle,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true,
	}
	return &Pool{
		addr:     addr,
		template: query,
		client:   &http.Client{Transport: transport, Timeout: 10 * time.Second},
		log:      log,
	}
}

// Lookup performs GET <query % key> HTTP/1.1 against the pool's host with
// Host: set, and returns the response body on 200. It returns
// buderr.ErrEmpty on 404, and a KindLookup error for any other status,
// malformed response, or transport error — never a bare transport error,
// so callers can treat every failure as non-fatal per spec section 7.
func (p *Pool) Lookup(ctx context.Context, key string) ([]byte, error) {
	path := fmt.Sprintf(p.template, key)
	url := "http://" + p.addr + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, buderr.Lookup(err, "building request for %s", path)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, buderr.Lookup(err, "fetching %s", path)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, buderr.Lookup(err, "reading response body for %s", path)
		}
		return body, nil
	case http.StatusNotFound:
		// Drain so the connection is still reusable when framing is intact.
		io.Copy(io.Discard, resp.Body)
		return nil, buderr.ErrEmpty
	default:
		return nil, buderr.Lookup(fmt.Errorf("status %d", resp.StatusCode), "fetching %s", path)
	}
}

// Close releases the pool's idle connections. Called on worker shutdown
// per spec section 5 ("worker shutdown ... closes pooled HTTP connections").
func (p *Pool) Close() {
	if t, ok := p.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}

// Addr reports the configured directory service address, for logging.
func (p *Pool) Addr() string { return p.addr }
