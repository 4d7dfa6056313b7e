// Package worker implements a worker's event loop (spec section 4.7,
// component C7): accept from the shared listening socket, run the TLS
// handshake with the SNI/OCSP hooks installed, then hand off to the
// forwarder.
package worker

import (
	"context"
	"crypto/tls"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/laggyluke/bud/internal/buderr"
	"github.com/laggyluke/bud/internal/config"
	"github.com/laggyluke/bud/internal/forward"
	"github.com/laggyluke/bud/internal/httpfetch"
	"github.com/laggyluke/bud/internal/netaddr"
	"github.com/laggyluke/bud/internal/ocspstaple"
	"github.com/laggyluke/bud/internal/sni"
	"github.com/laggyluke/bud/internal/tlscontext"
)

// gracePeriod bounds how long Run waits for in-flight connections to
// drain after a shutdown signal before returning anyway (spec section
// 4.7: "wait up to a grace deadline for live connections to drain").
const gracePeriod = 10 * time.Second

// Worker owns one accept loop over a listener inherited from the master.
type Worker struct {
	cfg *config.Config
	log *zap.Logger

	table     *tlscontext.Table
	sniPool   *httpfetch.Pool
	staplePool *httpfetch.Pool
	dispatcher *sni.Dispatcher
	stapler   *ocspstaple.Stapler
	forwarder *forward.Forwarder

	wg sync.WaitGroup
}

// New builds a Worker from cfg: it loads the TLS context table, wires the
// SNI dispatcher and OCSP stapler onto every context exactly once, and
// prepares the forwarder.
func New(cfg *config.Config, log *zap.Logger) (*Worker, error) {
	table, err := tlscontext.LoadTable(cfg, log)
	if err != nil {
		return nil, err
	}

	var sniPool *httpfetch.Pool
	if cfg.SNI != nil && cfg.SNI.Enabled {
		sniPool = httpfetch.New(cfg.SNI.Addr(), cfg.SNI.Query, log.Named("sni-pool"))
	}
	var staplePool *httpfetch.Pool
	if cfg.Stapling != nil && cfg.Stapling.Enabled {
		staplePool = httpfetch.New(cfg.Stapling.Addr(), cfg.Stapling.Query, log.Named("stapling-pool"))
	}

	dispatcher := sni.New(table, sniPool, log.Named("sni"))
	stapler := ocspstaple.New(staplePool, log.Named("ocsp"))

	// Install the hooks once per context, per spec section 4.7.
	installHooks(table, dispatcher, stapler)

	backendAddr, err := netaddr.Resolve(cfg.Backend.Host, cfg.Backend.Port)
	if err != nil {
		return nil, err
	}
	fwd := forward.New(backendAddr, time.Duration(cfg.Backend.Keepalive)*time.Second, *cfg.Frontend.Proxyline, log.Named("forward"))

	return &Worker{
		cfg:        cfg,
		log:        log,
		table:      table,
		sniPool:    sniPool,
		staplePool: staplePool,
		dispatcher: dispatcher,
		stapler:    stapler,
		forwarder:  fwd,
	}, nil
}

func installHooks(table *tlscontext.Table, dispatcher *sni.Dispatcher, stapler *ocspstaple.Stapler) {
	def := table.Default()
	def.TLSConfig.GetConfigForClient = dispatcher.GetConfigForClient
	def.TLSConfig.GetCertificate = stapler.HookFor(def)

	table.Each(func(tc *tlscontext.TlsContext) {
		tc.TLSConfig.GetConfigForClient = dispatcher.GetConfigForClient
		tc.TLSConfig.GetCertificate = stapler.HookFor(tc)
	})
}

// Run drives the accept loop over ln until ctx is canceled, then stops
// accepting and waits (up to gracePeriod) for live connections to drain.
func (w *Worker) Run(ctx context.Context, ln net.Listener) error {
	defer func() {
		if w.sniPool != nil {
			w.sniPool.Close()
		}
		if w.staplePool != nil {
			w.staplePool.Close()
		}
	}()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return w.drain()
			default:
				return buderr.IO(err, "accepting connection")
			}
		}
		w.wg.Add(1)
		go w.handle(conn)
	}
}

// drain waits up to gracePeriod for in-flight connections handled by this
// worker to finish.
func (w *Worker) drain() error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(gracePeriod):
		w.log.Warn("grace period elapsed with connections still active")
	}
	return nil
}

func (w *Worker) handle(raw net.Conn) {
	defer w.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("recovered from panic handling connection", zap.Any("panic", r))
		}
	}()

	connID := uuid.NewString()
	log := w.log.With(zap.String("conn_id", connID))

	clientAddr, _ := raw.RemoteAddr().(*net.TCPAddr)

	if tc, ok := raw.(*net.TCPConn); ok {
		tc.SetKeepAlive(true)
		tc.SetKeepAlivePeriod(time.Duration(w.cfg.Frontend.Keepalive) * time.Second)
	}

	tlsConn := tls.Server(raw, w.table.Default().TLSConfig)
	defer tlsConn.Close()

	hsCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := tlsConn.HandshakeContext(hsCtx); err != nil {
		log.Debug("tls handshake failed", zap.Error(err))
		return
	}

	if err := w.forwarder.Run(tlsConn, clientAddr); err != nil {
		log.Debug("connection forwarding ended", zap.Error(err))
	}
}

// SignalContext returns a context canceled on SIGINT/SIGTERM, for a
// worker running in its own process (or in-process when workers=0).
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
