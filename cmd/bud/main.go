// Command bud is a TLS-terminating reverse proxy: see SPEC_FULL.md for
// the full design. This file wires the CLI surface (spec section 6) onto
// the config, master, and worker packages.
package main

import (
	"fmt"
	"net"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/laggyluke/bud/internal/budlog"
	"github.com/laggyluke/bud/internal/config"
	"github.com/laggyluke/bud/internal/master"
	"github.com/laggyluke/bud/internal/netaddr"
	"github.com/laggyluke/bud/internal/worker"
)

// version is the bud release identifier printed by --version.
const version = "2.0.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("bud", pflag.ContinueOnError)
	var (
		configPath    = flags.StringP("config", "c", "", "load JSON configuration")
		showVersion   = flags.BoolP("version", "v", false, "print bud version")
		printDefaults = flags.Bool("default-config", false, "print default JSON config and exit")
		daemonize     = flags.BoolP("daemonize", "d", false, "daemonize process (POSIX only)")
		isWorker      = flags.Bool("worker", false, "internal: run as a supervised worker")
	)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n%s\n", args0(), flags.FlagUsages())
	}
	if err := flags.Parse(args); err != nil {
		return 1
	}

	if *showVersion {
		fmt.Printf("v%s\n", version)
		return 0
	}
	if *printDefaults {
		out, err := config.PrintDefault()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Println(out)
		return 0
	}

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "bud: --config is required")
		flags.Usage()
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Config and Crypto errors are fatal at init (spec section 7):
		// print a diagnostic naming the field/file at fault and exit
		// non-zero.
		fmt.Fprintln(os.Stderr, "bud:", err)
		return 1
	}
	cfg.IsDaemon = *daemonize
	cfg.IsWorker = *isWorker

	log := budlog.Named(roleName(cfg))

	if cfg.IsDaemon && !cfg.IsWorker {
		daemonArgs := make([]string, 0, len(args))
		for _, a := range args {
			if a == "--daemonize" || a == "-d" {
				continue
			}
			daemonArgs = append(daemonArgs, a)
		}
		if err := daemonize(daemonArgs); err != nil {
			log.Error("failed to daemonize", zap.Error(err))
			return 1
		}
		return 0
	}

	if cfg.IsWorker {
		return runWorker(cfg, *configPath, log)
	}
	return runMaster(cfg, *configPath, log)
}

func roleName(cfg *config.Config) string {
	if cfg.IsWorker {
		return "worker"
	}
	return "master"
}

func args0() string {
	if len(os.Args) > 0 {
		return os.Args[0]
	}
	return "bud"
}

func runMaster(cfg *config.Config, configPath string, log *zap.Logger) int {
	if cfg.Workers == 0 {
		// "0 = run in-process": the state machine is skipped entirely
		// and the master itself runs the worker loop (spec section 4.8).
		return runInProcess(cfg, log)
	}

	m, err := master.New(cfg, log)
	if err != nil {
		log.Error("failed to start", zap.Error(err))
		return 1
	}

	ctx, cancel := master.SignalContext()
	defer cancel()

	if err := m.Run(ctx, configPath); err != nil {
		log.Error("master exited with error", zap.Error(err))
		return 1
	}
	return 0
}

func runInProcess(cfg *config.Config, log *zap.Logger) int {
	addr, err := netaddr.Resolve(cfg.Frontend.Host, cfg.Frontend.Port)
	if err != nil {
		log.Error("failed to resolve frontend address", zap.Error(err))
		return 1
	}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		log.Error("failed to bind frontend listener", zap.Error(err))
		return 1
	}

	w, err := worker.New(cfg, log)
	if err != nil {
		log.Error("failed to build worker", zap.Error(err))
		return 1
	}

	ctx, cancel := worker.SignalContext()
	defer cancel()

	if err := w.Run(ctx, ln); err != nil {
		log.Error("worker exited with error", zap.Error(err))
		return 1
	}
	return 0
}

func runWorker(cfg *config.Config, _ string, log *zap.Logger) int {
	ln, err := master.ListenerFromEnv()
	if err != nil {
		log.Error("failed to inherit listener", zap.Error(err))
		return 1
	}

	w, err := worker.New(cfg, log)
	if err != nil {
		log.Error("failed to build worker", zap.Error(err))
		return 1
	}

	ctx, cancel := worker.SignalContext()
	defer cancel()

	if err := w.Run(ctx, ln); err != nil {
		log.Error("worker exited with error", zap.Error(err))
		return 1
	}
	return 0
}
