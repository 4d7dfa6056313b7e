// +build windows

package main

import "github.com/laggyluke/bud/internal/buderr"

// daemonize is POSIX-only (spec section 6); Windows has no fork/setsid
// equivalent, so this exists to keep the call site build-portable.
func daemonize(args []string) error {
	return buderr.Config(nil, "--daemonize is not supported on this platform")
}
