//go:build linux

package main

import "golang.org/x/sys/unix"

// lockMemory calls mlockall(MCL_CURRENT|MCL_FUTURE) so cryptographic key
// material backing the --mlock flag never gets paged to swap.
func lockMemory() error {
	return unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE)
}
