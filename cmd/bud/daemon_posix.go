// +build !windows

package main

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/laggyluke/bud/internal/buderr"
)

// daemonize re-execs the current process detached from the controlling
// terminal (spec section 6: "--daemonize | -d (POSIX only)"): the same
// re-exec shape used to spawn workers, but in a new session, with no fd
// to inherit and no worker flag to add.
func daemonize(args []string) error {
	exe, err := os.Executable()
	if err != nil {
		return buderr.IO(err, "resolving executable path")
	}

	cmd := exec.Command(exe, args...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return buderr.IO(err, "starting daemonized process")
	}
	return nil
}
