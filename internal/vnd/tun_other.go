//go:build !linux

package vnd

import "fmt"

// OpenTun is unavailable on this platform; the syscall sequence to
// create a tun/tap interface is per-OS. Tests and non-Linux development
// use Loopback directly instead.
func OpenTun(name string, mtu int) (Device, error) {
	return nil, fmt.Errorf("vnd: tun device creation is not implemented on this platform")
}
