package config

import "github.com/relaymesh/relayd/internal/relayerr"

// Host is the typed view over a per-host config tree (hosts/<name>):
// Address, Port, the repeatable Subnet list, and the per-connection
// tuning keys. Fields named after cipher suites (Cipher, Digest,
// MACLength, Compression) are carried through unvalidated; the
// cryptographic handshake they would configure is out of scope, same as
// the rest of the TNL contract.
type Host struct {
	Name          string
	Address       string
	Port          string
	Subnets       []string
	IndirectData  bool
	TCPOnly       bool
	PMTUDiscovery bool
	Cipher        string
	Digest        string
	MACLength     int
	Compression   int
	Weight        int
	PMTU          int
}

const defaultPort = "655"

// LoadHost reads one hosts/<name> tree. name is the host's node name, not
// read from s: it is the file (or key) name the caller parsed s from.
func LoadHost(name string, s *Store) (*Host, error) {
	if name == "" {
		return nil, relayerr.New(relayerr.ConfigError, "config: host has no name")
	}
	h := &Host{Name: name}
	h.Address = s.String("Address", "")
	h.Port = s.String("Port", defaultPort)
	h.Subnets = s.All("Subnet")

	var err error
	if h.IndirectData, err = s.Bool("IndirectData", false); err != nil {
		return nil, err
	}
	if h.TCPOnly, err = s.Bool("TCPOnly", false); err != nil {
		return nil, err
	}
	if h.PMTUDiscovery, err = s.Bool("PMTUDiscovery", true); err != nil {
		return nil, err
	}
	h.Cipher = s.String("Cipher", "")
	h.Digest = s.String("Digest", "")
	if h.MACLength, err = s.Int("MACLength", 0); err != nil {
		return nil, err
	}
	if h.Compression, err = s.Int("Compression", 0); err != nil {
		return nil, err
	}
	if h.Weight, err = s.Int("Weight", 1); err != nil {
		return nil, err
	}
	if h.PMTU, err = s.Int("PMTU", 0); err != nil {
		return nil, err
	}
	return h, nil
}
