package config

import (
	"net"
	"time"

	"github.com/relaymesh/relayd/internal/relayerr"
)

// AddressFamily is the Store coercion of the global AddressFamily key.
type AddressFamily int

const (
	AddressFamilyAny AddressFamily = iota
	AddressFamilyIPv4
	AddressFamilyIPv6
)

var addressFamilyChoices = map[string]int{
	"any":  int(AddressFamilyAny),
	"ipv4": int(AddressFamilyIPv4),
	"ipv6": int(AddressFamilyIPv6),
}

// Mode is the Store coercion of the global Mode key.
type Mode int

const (
	ModeRouter Mode = iota
	ModeSwitch
	ModeHub
)

var modeChoices = map[string]int{
	"router": int(ModeRouter),
	"switch": int(ModeSwitch),
	"hub":    int(ModeHub),
}

func (m Mode) String() string {
	switch m {
	case ModeRouter:
		return "Router"
	case ModeSwitch:
		return "Switch"
	case ModeHub:
		return "Hub"
	default:
		return "Unknown"
	}
}

// Daemon is the typed view over a Store holding the tinc.conf-equivalent
// global keys: Name, AddressFamily, BindToAddress, BindToInterface,
// Device, Interface, Mode, Hostnames, MACExpire, MaxTimeout,
// PingTimeout, PriorityInheritance, TunnelServer and the repeatable
// ConnectTo.
type Daemon struct {
	Name                string
	AddressFamily       AddressFamily
	BindToAddress       string
	BindToInterface     string
	Device              string
	Interface           string
	Mode                Mode
	Hostnames           bool
	MACExpire           time.Duration
	MaxTimeout          time.Duration
	PingTimeout         time.Duration
	PriorityInheritance bool
	TunnelServer        bool
	ConnectTo           []string
}

const (
	defaultMACExpire   = 600 * time.Second
	defaultMaxTimeout  = 900 * time.Second
	defaultPingTimeout = 60 * time.Second
)

// LoadDaemon reads the global daemon keys out of s, applying the
// documented defaults for anything absent.
func LoadDaemon(s *Store) (*Daemon, error) {
	d := &Daemon{}
	d.Name = s.String("Name", "")
	if d.Name == "" {
		return nil, relayerr.New(relayerr.ConfigError, "config: missing required key Name")
	}

	af, err := s.Choice("AddressFamily", addressFamilyChoices, int(AddressFamilyAny))
	if err != nil {
		return nil, err
	}
	d.AddressFamily = AddressFamily(af)

	d.BindToAddress = s.String("BindToAddress", "")
	d.BindToInterface = s.String("BindToInterface", "")
	d.Device = s.String("Device", "/dev/net/tun")
	d.Interface = s.String("Interface", "")

	mode, err := s.Choice("Mode", modeChoices, int(ModeRouter))
	if err != nil {
		return nil, err
	}
	d.Mode = Mode(mode)

	if d.Hostnames, err = s.Bool("Hostnames", false); err != nil {
		return nil, err
	}

	macExpire, err := s.Period("MACExpire", int64(defaultMACExpire/time.Second))
	if err != nil {
		return nil, err
	}
	d.MACExpire = time.Duration(macExpire) * time.Second

	maxTimeout, err := s.Period("MaxTimeout", int64(defaultMaxTimeout/time.Second))
	if err != nil {
		return nil, err
	}
	d.MaxTimeout = time.Duration(maxTimeout) * time.Second

	pingTimeout, err := s.Period("PingTimeout", int64(defaultPingTimeout/time.Second))
	if err != nil {
		return nil, err
	}
	d.PingTimeout = time.Duration(pingTimeout) * time.Second

	if d.PriorityInheritance, err = s.Bool("PriorityInheritance", false); err != nil {
		return nil, err
	}
	if d.TunnelServer, err = s.Bool("TunnelServer", false); err != nil {
		return nil, err
	}
	d.ConnectTo = s.All("ConnectTo")

	return d, nil
}

// ResolveBindAddr turns BindToAddress (which may be empty, meaning
// wildcard) into a net.Addr-ready host string for the listener.
func (d *Daemon) ResolveBindAddr(port string) string {
	return net.JoinHostPort(d.BindToAddress, port)
}
