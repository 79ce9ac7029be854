// Package vnd implements the virtual network device contract: read/write
// of raw Ethernet or IP frames from the host's tun/tap-style interface.
// The syscall sequence to instantiate the interface is a platform
// concern handled per-OS; the Linux implementation delegates frame I/O
// to golang.zx2c4.com/wireguard/tun, the same cross-platform tun.Device
// the wider ecosystem (wireguard-go) uses, rather than hand-rolling
// ioctls.
package vnd

import "context"

// Device is the VND external contract.
type Device interface {
	// ReadPacket blocks for the next frame and returns it. The returned
	// slice is only valid until the next ReadPacket call.
	ReadPacket(ctx context.Context) ([]byte, error)
	// WritePacket writes a complete frame to the interface.
	WritePacket(ctx context.Context, frame []byte) error
	// MTU is the interface's configured MTU.
	MTU() int
	// Name is the OS-level interface name (e.g. "relay0").
	Name() string
	Close() error
}
