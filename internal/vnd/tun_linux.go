//go:build linux

package vnd

import (
	"context"
	"fmt"

	wgtun "golang.zx2c4.com/wireguard/tun"
)

// linuxDevice wraps a wireguard-go tun.Device as a VND Device.
type linuxDevice struct {
	dev  wgtun.Device
	name string
	mtu  int
	buf  []byte
}

// OpenTun creates (or attaches to) a tun interface named name with the
// given mtu. Grounded on pkg/client/daemon/tun/tuntap_linux.go's
// ioctl-based device creation, generalized to the cross-platform
// golang.zx2c4.com/wireguard/tun library already present in the
// ecosystem's dependency graph.
func OpenTun(name string, mtu int) (Device, error) {
	dev, err := wgtun.CreateTUN(name, mtu)
	if err != nil {
		return nil, fmt.Errorf("vnd: create tun %s: %w", name, err)
	}
	realName, err := dev.Name()
	if err != nil {
		realName = name
	}
	realMTU, err := dev.MTU()
	if err != nil {
		realMTU = mtu
	}
	return &linuxDevice{dev: dev, name: realName, mtu: realMTU, buf: make([]byte, realMTU+256)}, nil
}

func (d *linuxDevice) ReadPacket(ctx context.Context) ([]byte, error) {
	n, err := d.dev.Read(d.buf, 0)
	if err != nil {
		return nil, err
	}
	return d.buf[:n], nil
}

func (d *linuxDevice) WritePacket(ctx context.Context, frame []byte) error {
	_, err := d.dev.Write(frame, 0)
	return err
}

func (d *linuxDevice) MTU() int     { return d.mtu }
func (d *linuxDevice) Name() string { return d.name }
func (d *linuxDevice) Close() error { return d.dev.Close() }
