// Package forward implements the connection forwarder (spec section 4.6,
// component C6): after the TLS handshake completes, it dials the backend,
// optionally emits a PROXY protocol v1 preamble, and shuttles bytes in
// both directions with backpressure.
package forward

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/pires/go-proxyproto"
	"go.uber.org/zap"

	"github.com/laggyluke/bud/internal/buderr"
)

// copyBufferSize sizes the buffer each copy direction uses. Backpressure
// (spec section 4.6, step 3) comes from io.CopyBuffer itself: a Write
// that blocks on a slow peer stops the next Read from the other side, so
// no explicit high/low water-mark queue is kept.
const (
	copyBufferSize = 32 * 1024
)

// Forwarder dials a fixed backend for every completed handshake.
type Forwarder struct {
	backendAddr *net.TCPAddr
	keepalive   time.Duration
	proxyline   bool
	log         *zap.Logger
}

// New builds a Forwarder targeting backendAddr.
func New(backendAddr *net.TCPAddr, keepalive time.Duration, proxyline bool, log *zap.Logger) *Forwarder {
	return &Forwarder{backendAddr: backendAddr, keepalive: keepalive, proxyline: proxyline, log: log}
}

// Run dials the backend for client (already past its TLS handshake),
// optionally writes the PROXY line, and pumps bytes until either side
// closes. It blocks until the connection is fully torn down.
func (f *Forwarder) Run(client net.Conn, clientAddr *net.TCPAddr) error {
	backend, err := net.DialTimeout("tcp", f.backendAddr.String(), 10*time.Second)
	if err != nil {
		return buderr.IO(err, "dialing backend %s", f.backendAddr)
	}
	defer backend.Close()

	if tc, ok := backend.(*net.TCPConn); ok {
		tc.SetKeepAlive(true)
		tc.SetKeepAlivePeriod(f.keepalive)
	}

	if f.proxyline {
		line, err := ProxyLine(clientAddr, backend.LocalAddr().(*net.TCPAddr))
		if err != nil {
			return buderr.Protocol(err, "building proxy line")
		}
		if _, err := backend.Write(line); err != nil {
			return buderr.Protocol(err, "writing proxy line")
		}
	}

	return f.pump(client, backend)
}

// pump shuttles bytes bidirectionally until one side reaches EOF, then
// half-closes the other and waits for the second direction to finish
// draining (spec section 4.6, step 5).
func (f *Forwarder) pump(client, backend net.Conn) error {
	errc := make(chan error, 2)

	go func() {
		buf := make([]byte, copyBufferSize)
		_, err := io.CopyBuffer(backend, client, buf)
		if cw, ok := backend.(interface{ CloseWrite() error }); ok {
			cw.CloseWrite()
		}
		errc <- err
	}()

	go func() {
		buf := make([]byte, copyBufferSize)
		_, err := io.CopyBuffer(client, backend, buf)
		if cw, ok := client.(interface{ CloseWrite() error }); ok {
			cw.CloseWrite()
		}
		errc <- err
	}()

	var firstErr error
	for i := 0; i < 2; i++ {
		if err := <-errc; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return buderr.IO(firstErr, "forwarding connection")
	}
	return nil
}

// ProxyLine renders the PROXY protocol v1 preamble for a connection from
// client to backend (spec section 4.6, step 2), via go-proxyproto's
// Header/WriteTo rather than a hand-rolled formatter:
//
//	PROXY <fam> <client_ip> <backend_ip> <client_port> <backend_port>\r\n
func ProxyLine(client, backend *net.TCPAddr) ([]byte, error) {
	if client == nil || backend == nil {
		return nil, fmt.Errorf("proxy line requires both client and backend addresses")
	}
	header := proxyproto.HeaderProxyFromAddrs(1, client, backend)
	var buf bytes.Buffer
	if _, err := header.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
