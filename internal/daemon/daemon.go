// Package daemon wires together the graph, event loop, configuration,
// forwarding plane and peering manager into a single long-lived value:
// constructed once at startup and passed by pointer into every handler,
// never as package-level globals. Grounded on the single long-lived
// *Session/*daemon struct threaded through RPC handlers elsewhere in the
// ecosystem (pkg/client/daemon/service.go).
package daemon

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/relaymesh/relayd/internal/config"
	"github.com/relaymesh/relayd/internal/dlog"
	"github.com/relaymesh/relayd/internal/graph"
	"github.com/relaymesh/relayd/internal/hooks"
	"github.com/relaymesh/relayd/internal/meta"
	"github.com/relaymesh/relayd/internal/relayerr"
	"github.com/relaymesh/relayd/internal/route"
	"github.com/relaymesh/relayd/internal/tunnel"
	"github.com/relaymesh/relayd/internal/vnd"
)

const defaultDeviceMTU = 1500

// Daemon is the single value every handler in the process operates on.
type Daemon struct {
	NetName string
	Config  *config.Daemon
	Hosts   map[string]*config.Host

	Graph  *graph.Graph
	Router *route.Router
	Meta   *meta.Manager
	Device vnd.Device
	Hooks  hooks.Runner

	auth     tunnel.Authenticator
	listener *tunnel.Listener
	outgoing []*meta.Outgoing
}

// Options configures the seams left open by the out-of-scope tunnel
// handshake and the exec-based up/down hooks.
type Options struct {
	// Auth performs the tunnel handshake; see tunnel.Authenticator.
	Auth tunnel.Authenticator
	// Hooks runs hosts/<name>-up|-down and tinc-up|tinc-down scripts.
	// Defaults to hooks.ExecRunner{} if nil.
	Hooks hooks.Runner
	// OpenDevice constructs the VND; defaults to vnd.OpenTun. Tests
	// inject a vnd.Loopback here instead.
	OpenDevice func(name string, mtu int) (vnd.Device, error)
}

// Load reads the global config tree and every hosts/<name> file under
// configDir (the two-tree layout), but does not yet open the device or
// bind a listener — see New for that.
func Load(configDir, netName string) (*config.Daemon, map[string]*config.Host, error) {
	global, err := parseStoreFile(filepath.Join(configDir, "tinc.conf"))
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.LoadDaemon(global)
	if err != nil {
		return nil, nil, err
	}

	hosts := make(map[string]*config.Host)
	hostsDir := filepath.Join(configDir, "hosts")
	entries, err := os.ReadDir(hostsDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, nil, relayerr.Wrap(relayerr.ConfigError, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		s, err := parseStoreFile(filepath.Join(hostsDir, e.Name()))
		if err != nil {
			return nil, nil, err
		}
		h, err := config.LoadHost(e.Name(), s)
		if err != nil {
			return nil, nil, err
		}
		hosts[e.Name()] = h
	}

	return cfg, hosts, nil
}

func parseStoreFile(path string) (*config.Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, relayerr.Wrap(relayerr.ConfigError, err)
	}
	defer f.Close()
	s := config.New()
	if err := s.Parse(f); err != nil {
		return nil, relayerr.Wrap(relayerr.ConfigError, fmt.Errorf("%s: %w", path, err))
	}
	return s, nil
}

// New constructs a Daemon from a loaded configuration: it creates the
// graph (seeding self's subnets from hosts/<Name> if present), opens the
// VND, and wires the forwarding plane and peering manager's callbacks
// together. It does not yet bind a listener or dial ConnectTo peers;
// call Run for that.
func New(netName string, cfg *config.Daemon, hostsByName map[string]*config.Host, opts Options) (*Daemon, error) {
	if opts.Hooks == nil {
		opts.Hooks = hooks.ExecRunner{}
	}
	openDevice := opts.OpenDevice
	if openDevice == nil {
		openDevice = vnd.OpenTun
	}

	g := graph.New(cfg.Name)
	if self, ok := hostsByName[cfg.Name]; ok {
		for _, subnetText := range self.Subnets {
			sn, err := graph.ParseSubnetString(g.Self, subnetText)
			if err != nil {
				return nil, relayerr.Wrap(relayerr.ConfigError, fmt.Errorf("hosts/%s: %w", cfg.Name, err))
			}
			g.AddSubnet(g.Self, sn)
		}
	}

	dev, err := openDevice(cfg.Interface, defaultDeviceMTU)
	if err != nil {
		return nil, relayerr.Wrap(relayerr.ConfigError, err)
	}

	selfMAC := deriveMAC(cfg.Name)
	router := route.New(g, dev, cfg.Mode, selfMAC, cfg.MACExpire)
	router.PriorityInheritance = cfg.PriorityInheritance

	manager := meta.NewManager(g, cfg.TunnelServer)
	if self, ok := hostsByName[cfg.Name]; ok {
		if port, err := strconv.Atoi(self.Port); err == nil {
			manager.SelfPort = port
		}
		if self.Weight > 0 {
			manager.SelfWeight = self.Weight
		}
	}

	d := &Daemon{
		NetName: netName,
		Config:  cfg,
		Hosts:   hostsByName,
		Graph:   g,
		Router:  router,
		Meta:    manager,
		Device:  dev,
		Hooks:   opts.Hooks,
		auth:    opts.Auth,
	}

	manager.OnGraphChanged = func(ctx context.Context) {
		g.FlushCache()
	}
	g.OnReachability = d.onReachability
	router.OnLearnedSubnet = d.onLearnedSubnet
	router.OnExpiredSubnet = d.onExpiredSubnet

	return d, nil
}

// deriveMAC turns a node name into a stable, locally-administered MAC
// address, standing in for the OS-assigned hardware address of a real
// tun/tap device.
func deriveMAC(name string) [6]byte {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	sum := h.Sum64()
	var mac [6]byte
	for i := range mac {
		mac[i] = byte(sum >> (8 * uint(i)))
	}
	mac[0] = (mac[0] &^ 0x01) | 0x02 // unicast, locally administered
	return mac
}

func (d *Daemon) onReachability(n *graph.Node, reachable bool) {
	ctx := dlog.WithField(context.Background(), "node", n.Name())
	host, port := splitHostPort(n.Address)
	env := hooks.NodeEnv(d.NetName, d.Device.Name(), d.Config.Interface, n.Name(), host, port)
	script := filepath.Join("hosts", n.Name()+suffixFor(reachable))
	var err error
	if reachable {
		err = d.Hooks.Up(ctx, script, env)
	} else {
		err = d.Hooks.Down(ctx, script, env)
	}
	if err != nil {
		dlog.Warnf(ctx, "daemon: %s hook failed: %v", script, err)
	}
}

func (d *Daemon) onLearnedSubnet(s *graph.Subnet) {
	ctx := context.Background()
	line := meta.EncodeAddSubnet(meta.NewNonce(), s.Owner.Name(), s.String())
	if err := d.Meta.Broadcast(line); err != nil {
		dlog.Warnf(ctx, "daemon: broadcasting learned subnet %s failed: %v", s, err)
	}
}

func (d *Daemon) onExpiredSubnet(s *graph.Subnet) {
	ctx := context.Background()
	line := meta.EncodeDelSubnet(meta.NewNonce(), s.Owner.Name(), s.String())
	if err := d.Meta.Broadcast(line); err != nil {
		dlog.Warnf(ctx, "daemon: broadcasting expired subnet %s failed: %v", s, err)
	}
}

func suffixFor(reachable bool) string {
	if reachable {
		return "-up"
	}
	return "-down"
}

func splitHostPort(addr string) (host, port string) {
	if addr == "" {
		return "", ""
	}
	idx := strings.LastIndexByte(addr, ':')
	if idx < 0 {
		return addr, ""
	}
	return addr[:idx], addr[idx+1:]
}
