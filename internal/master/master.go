// Package master implements the supervisor (spec section 4.8, component
// C8): it opens the listening socket once, forks N worker processes that
// inherit it, restarts them after a crash, and propagates termination
// signals.
package master

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/laggyluke/bud/internal/buderr"
	"github.com/laggyluke/bud/internal/config"
	"github.com/laggyluke/bud/internal/netaddr"
)

// listenFD is the file descriptor number the listening socket is handed
// to workers on, counting from the conventional first-free descriptor
// (stdin/stdout/stderr occupy 0-2) — the same convention the FD-handoff
// pattern this is grounded on uses.
const listenFD = 3

// envListenFD tells a re-executed worker process which descriptor to
// reconstruct its listener from.
const envListenFD = "BUD_LISTEN_FD"

// state is one worker slot's position in the DOWN/STARTING/RUNNING/EXITED
// machine from spec section 4.8.
type state int

const (
	stateDown state = iota
	stateStarting
	stateRunning
	stateExited
)

// slot is a WorkerRecord (spec section 3): one supervised child.
type slot struct {
	mu         sync.Mutex
	state      state
	cmd        *exec.Cmd
	generation int
}

// Master owns the listener and the worker slots.
type Master struct {
	cfg *config.Config
	log *zap.Logger

	listener *net.TCPListener
	listenerFile *os.File

	slots []*slot

	restartTimeout time.Duration
}

// New builds a Master for cfg, opening the frontend listener immediately
// (spec section 4.8: "opened once in the master and inherited by
// workers, so no port is re-bound on restart").
func New(cfg *config.Config, log *zap.Logger) (*Master, error) {
	addr, err := netaddr.Resolve(cfg.Frontend.Host, cfg.Frontend.Port)
	if err != nil {
		return nil, err
	}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, buderr.IO(err, "binding frontend listener on %s", addr)
	}
	lf, err := ln.File()
	if err != nil {
		ln.Close()
		return nil, buderr.IO(err, "duplicating listener fd")
	}

	n := cfg.Workers
	if n < 1 {
		n = 1
	}
	slots := make([]*slot, n)
	for i := range slots {
		slots[i] = &slot{state: stateDown}
	}

	return &Master{
		cfg:            cfg,
		log:            log,
		listener:       ln,
		listenerFile:   lf,
		slots:          slots,
		restartTimeout: time.Duration(cfg.RestartTimeoutMs) * time.Millisecond,
	}, nil
}

// Listener exposes the bound listener. The workers=0 in-process path in
// cmd/bud does not build a Master and binds its own listener instead.
func (m *Master) Listener() *net.TCPListener { return m.listener }

// Run spawns every worker slot, restarts crashed ones after
// restartTimeout, and blocks until ctx is canceled (SIGINT/SIGTERM), at
// which point it signals every worker and waits for them to be reaped.
func (m *Master) Run(ctx context.Context, configPath string) error {
	defer m.listener.Close()
	defer m.listenerFile.Close()

	var wg sync.WaitGroup
	for i := range m.slots {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.supervise(ctx, i, configPath)
		}(i)
	}

	wg.Wait()
	return nil
}

// supervise runs the DOWN -> STARTING -> RUNNING -> EXITED loop for one
// slot until ctx is canceled.
func (m *Master) supervise(ctx context.Context, i int, configPath string) {
	s := m.slots[i]
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.mu.Lock()
		s.state = stateStarting
		s.generation++
		gen := s.generation
		s.mu.Unlock()

		cmd, err := m.spawn(configPath)
		if err != nil {
			m.log.Error("failed to spawn worker", zap.Int("slot", i), zap.Error(err))
			if !m.sleepOrDone(ctx, m.restartTimeout) {
				return
			}
			continue
		}

		s.mu.Lock()
		s.cmd = cmd
		s.state = stateRunning
		s.mu.Unlock()
		m.log.Info("worker started", zap.Int("slot", i), zap.Int("pid", cmd.Process.Pid), zap.Int("generation", gen))

		waitErr := m.waitOrSignal(ctx, cmd)

		s.mu.Lock()
		s.state = stateExited
		s.mu.Unlock()

		if waitErr != nil {
			m.log.Warn("worker exited", zap.Int("slot", i), zap.Int("pid", cmd.Process.Pid), zap.Error(waitErr))
		} else {
			m.log.Info("worker exited", zap.Int("slot", i), zap.Int("pid", cmd.Process.Pid))
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		if !m.sleepOrDone(ctx, m.restartTimeout) {
			return
		}
	}
}

// waitOrSignal waits for cmd to exit, propagating SIGTERM to it as soon
// as ctx is canceled (spec section 4.8: "Signals: SIGINT/SIGTERM
// propagate to all workers").
func (m *Master) waitOrSignal(ctx context.Context, cmd *exec.Cmd) error {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	for {
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			cmd.Process.Signal(syscall.SIGTERM)
			ctx = context.Background() // already signaled; now just wait out Done
		}
	}
}

// sleepOrDone waits for d or ctx cancellation, whichever comes first. It
// reports false when ctx was canceled.
func (m *Master) sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// spawn re-execs the current binary with --worker and --config, passing
// the listening socket as fd 3 via ExtraFiles — the multi-process
// counterpart of the single-process FD-handoff pattern this is grounded
// on (see DESIGN.md).
func (m *Master) spawn(configPath string) (*exec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, buderr.IO(err, "resolving executable path")
	}
	cmd := exec.Command(exe, "--worker", "--config", configPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = nil
	cmd.ExtraFiles = []*os.File{m.listenerFile}
	cmd.Env = append(os.Environ(), fmt.Sprintf("%s=%d", envListenFD, listenFD))
	if err := cmd.Start(); err != nil {
		return nil, buderr.IO(err, "starting worker process")
	}
	return cmd, nil
}

// SignalContext returns a context canceled on SIGINT/SIGTERM, used by the
// master to know when to stop supervising and propagate shutdown.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// ListenerFromEnv reconstructs a worker's inherited listener from the fd
// named by BUD_LISTEN_FD, for the worker process spawned by spawn above.
func ListenerFromEnv() (net.Listener, error) {
	fd, err := strconv.Atoi(os.Getenv(envListenFD))
	if err != nil {
		return nil, buderr.IO(err, "%s does not name a descriptor", envListenFD)
	}
	f := os.NewFile(uintptr(fd), "bud-listener")
	if f == nil {
		return nil, buderr.IO(nil, "fd %d is not open", fd)
	}
	ln, err := net.FileListener(f)
	if err != nil {
		return nil, buderr.IO(err, "reconstructing listener from fd %d", fd)
	}
	return ln, nil
}
