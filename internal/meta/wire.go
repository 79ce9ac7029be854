// Package meta implements the meta protocol and peering manager:
// newline-terminated ASCII requests with a leading integer opcode,
// request deduplication, broadcast/forward policy for mutations, and
// the outgoing-connection manager's capped retry. The wire framing
// itself rides over internal/tunnel's length-prefixed META records;
// this package only owns the text grammar carried inside them,
// grounded on the request/response line parsing idiom of
// pkg/client/daemon's RPC plumbing adapted to a plain-text protocol
// instead of gRPC.
package meta

import (
	"strconv"
	"strings"

	"github.com/relaymesh/relayd/internal/relayerr"
)

// Opcode identifies the kind of meta message.
type Opcode int

const (
	OpID Opcode = iota
	OpACK
	OpPing
	OpPong
	OpAddSubnet
	OpDelSubnet
	OpAddEdge
	OpDelEdge
	OpKeyChanged
	OpReqKey
	OpAnsKey
)

func (op Opcode) String() string {
	switch op {
	case OpID:
		return "ID"
	case OpACK:
		return "ACK"
	case OpPing:
		return "PING"
	case OpPong:
		return "PONG"
	case OpAddSubnet:
		return "ADD_SUBNET"
	case OpDelSubnet:
		return "DEL_SUBNET"
	case OpAddEdge:
		return "ADD_EDGE"
	case OpDelEdge:
		return "DEL_EDGE"
	case OpKeyChanged:
		return "KEY_CHANGED"
	case OpReqKey:
		return "REQ_KEY"
	case OpAnsKey:
		return "ANS_KEY"
	default:
		return "UNKNOWN"
	}
}

// ProtocolVersion is the only version this implementation speaks.
const ProtocolVersion = 1

// Message is a decoded meta-protocol line.
type Message struct {
	Op     Opcode
	Fields []string
}

// Encode renders a message as a single newline-terminated line: the
// integer opcode, then each field separated by a single space.
func Encode(op Opcode, fields ...string) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(int(op)))
	for _, f := range fields {
		b.WriteByte(' ')
		b.WriteString(f)
	}
	b.WriteByte('\n')
	return b.String()
}

// Decode parses one line (without its trailing newline) into a Message.
func Decode(line string) (Message, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Message{}, relayerr.New(relayerr.ProtocolError, "meta: empty line")
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return Message{}, relayerr.Newf(relayerr.ProtocolError, "meta: malformed opcode %q", fields[0])
	}
	return Message{Op: Opcode(n), Fields: fields[1:]}, nil
}

func requireFields(m Message, n int) error {
	if len(m.Fields) < n {
		return relayerr.Newf(relayerr.ProtocolError, "meta: %s requires %d fields, got %d", m.Op, n, len(m.Fields))
	}
	return nil
}

// ID identifies the sender and its protocol version.
type ID struct {
	Name    string
	Version int
}

func EncodeID(name string, version int) string {
	return Encode(OpID, name, strconv.Itoa(version))
}

func DecodeID(m Message) (ID, error) {
	if err := requireFields(m, 2); err != nil {
		return ID{}, err
	}
	version, err := strconv.Atoi(m.Fields[1])
	if err != nil {
		return ID{}, relayerr.Newf(relayerr.ProtocolError, "meta: ID: bad version %q", m.Fields[1])
	}
	return ID{Name: m.Fields[0], Version: version}, nil
}

// ACK finalises peering: the sender's listening port plus the edge weight
// and options it wants to advertise for the new self->peer edge.
type ACK struct {
	Port    int
	Weight  int
	Options uint32
}

func EncodeACK(port, weight int, options uint32) string {
	return Encode(OpACK, strconv.Itoa(port), strconv.Itoa(weight), strconv.FormatUint(uint64(options), 10))
}

func DecodeACK(m Message) (ACK, error) {
	if err := requireFields(m, 3); err != nil {
		return ACK{}, err
	}
	port, err := strconv.Atoi(m.Fields[0])
	if err != nil {
		return ACK{}, relayerr.Newf(relayerr.ProtocolError, "meta: ACK: bad port %q", m.Fields[0])
	}
	weight, err := strconv.Atoi(m.Fields[1])
	if err != nil {
		return ACK{}, relayerr.Newf(relayerr.ProtocolError, "meta: ACK: bad weight %q", m.Fields[1])
	}
	options, err := strconv.ParseUint(m.Fields[2], 10, 32)
	if err != nil {
		return ACK{}, relayerr.Newf(relayerr.ProtocolError, "meta: ACK: bad options %q", m.Fields[2])
	}
	return ACK{Port: port, Weight: weight, Options: uint32(options)}, nil
}

// AddSubnet carries a subnet owner and its textual subnet representation
// (format owned by internal/graph's Subnet parsing, opaque here).
type AddSubnet struct {
	Owner  string
	Subnet string
	Nonce  uint32
}

func EncodeAddSubnet(nonce uint32, owner, subnet string) string {
	return Encode(OpAddSubnet, strconv.FormatUint(uint64(nonce), 10), owner, subnet)
}

func DecodeAddSubnet(m Message) (AddSubnet, error) {
	if err := requireFields(m, 3); err != nil {
		return AddSubnet{}, err
	}
	nonce, err := strconv.ParseUint(m.Fields[0], 10, 32)
	if err != nil {
		return AddSubnet{}, relayerr.Newf(relayerr.ProtocolError, "meta: ADD_SUBNET: bad nonce %q", m.Fields[0])
	}
	return AddSubnet{Nonce: uint32(nonce), Owner: m.Fields[1], Subnet: m.Fields[2]}, nil
}

// DelSubnet mirrors AddSubnet for removal.
type DelSubnet struct {
	Owner  string
	Subnet string
	Nonce  uint32
}

func EncodeDelSubnet(nonce uint32, owner, subnet string) string {
	return Encode(OpDelSubnet, strconv.FormatUint(uint64(nonce), 10), owner, subnet)
}

func DecodeDelSubnet(m Message) (DelSubnet, error) {
	if err := requireFields(m, 3); err != nil {
		return DelSubnet{}, err
	}
	nonce, err := strconv.ParseUint(m.Fields[0], 10, 32)
	if err != nil {
		return DelSubnet{}, relayerr.Newf(relayerr.ProtocolError, "meta: DEL_SUBNET: bad nonce %q", m.Fields[0])
	}
	return DelSubnet{Nonce: uint32(nonce), Owner: m.Fields[1], Subnet: m.Fields[2]}, nil
}

// AddEdge carries one directed edge announcement.
type AddEdge struct {
	Nonce   uint32
	From    string
	To      string
	Address string
	Port    int
	Options uint32
	Weight  int
}

func EncodeAddEdge(e AddEdge) string {
	return Encode(OpAddEdge,
		strconv.FormatUint(uint64(e.Nonce), 10),
		e.From, e.To, e.Address,
		strconv.Itoa(e.Port),
		strconv.FormatUint(uint64(e.Options), 10),
		strconv.Itoa(e.Weight),
	)
}

func DecodeAddEdge(m Message) (AddEdge, error) {
	if err := requireFields(m, 7); err != nil {
		return AddEdge{}, err
	}
	nonce, err := strconv.ParseUint(m.Fields[0], 10, 32)
	if err != nil {
		return AddEdge{}, relayerr.Newf(relayerr.ProtocolError, "meta: ADD_EDGE: bad nonce %q", m.Fields[0])
	}
	port, err := strconv.Atoi(m.Fields[4])
	if err != nil {
		return AddEdge{}, relayerr.Newf(relayerr.ProtocolError, "meta: ADD_EDGE: bad port %q", m.Fields[4])
	}
	options, err := strconv.ParseUint(m.Fields[5], 10, 32)
	if err != nil {
		return AddEdge{}, relayerr.Newf(relayerr.ProtocolError, "meta: ADD_EDGE: bad options %q", m.Fields[5])
	}
	weight, err := strconv.Atoi(m.Fields[6])
	if err != nil {
		return AddEdge{}, relayerr.Newf(relayerr.ProtocolError, "meta: ADD_EDGE: bad weight %q", m.Fields[6])
	}
	return AddEdge{
		Nonce: uint32(nonce), From: m.Fields[1], To: m.Fields[2], Address: m.Fields[3],
		Port: port, Options: uint32(options), Weight: weight,
	}, nil
}

// DelEdge removes a directed edge.
type DelEdge struct {
	Nonce uint32
	From  string
	To    string
}

func EncodeDelEdge(nonce uint32, from, to string) string {
	return Encode(OpDelEdge, strconv.FormatUint(uint64(nonce), 10), from, to)
}

func DecodeDelEdge(m Message) (DelEdge, error) {
	if err := requireFields(m, 3); err != nil {
		return DelEdge{}, err
	}
	nonce, err := strconv.ParseUint(m.Fields[0], 10, 32)
	if err != nil {
		return DelEdge{}, relayerr.Newf(relayerr.ProtocolError, "meta: DEL_EDGE: bad nonce %q", m.Fields[0])
	}
	return DelEdge{Nonce: uint32(nonce), From: m.Fields[1], To: m.Fields[2]}, nil
}

// KeyChanged tells peers to invalidate a cached session key.
type KeyChanged struct {
	Nonce uint32
	Name  string
}

func EncodeKeyChanged(nonce uint32, name string) string {
	return Encode(OpKeyChanged, strconv.FormatUint(uint64(nonce), 10), name)
}

func DecodeKeyChanged(m Message) (KeyChanged, error) {
	if err := requireFields(m, 2); err != nil {
		return KeyChanged{}, err
	}
	nonce, err := strconv.ParseUint(m.Fields[0], 10, 32)
	if err != nil {
		return KeyChanged{}, relayerr.Newf(relayerr.ProtocolError, "meta: KEY_CHANGED: bad nonce %q", m.Fields[0])
	}
	return KeyChanged{Nonce: uint32(nonce), Name: m.Fields[1]}, nil
}

// ReqKey asks "to" for a fresh session key; routed toward "to" by nexthop.
type ReqKey struct {
	From string
	To   string
}

func EncodeReqKey(from, to string) string {
	return Encode(OpReqKey, from, to)
}

func DecodeReqKey(m Message) (ReqKey, error) {
	if err := requireFields(m, 2); err != nil {
		return ReqKey{}, err
	}
	return ReqKey{From: m.Fields[0], To: m.Fields[1]}, nil
}

// AnsKey answers a ReqKey with the negotiated cipher parameters.
type AnsKey struct {
	From        string
	To          string
	CipherKey   string
	DigestKey   string
	Algorithms  string
	MACLen      int
	Compression int
}

func EncodeAnsKey(a AnsKey) string {
	return Encode(OpAnsKey, a.From, a.To, a.CipherKey, a.DigestKey, a.Algorithms,
		strconv.Itoa(a.MACLen), strconv.Itoa(a.Compression))
}

func DecodeAnsKey(m Message) (AnsKey, error) {
	if err := requireFields(m, 7); err != nil {
		return AnsKey{}, err
	}
	macLen, err := strconv.Atoi(m.Fields[5])
	if err != nil {
		return AnsKey{}, relayerr.Newf(relayerr.ProtocolError, "meta: ANS_KEY: bad maclen %q", m.Fields[5])
	}
	compression, err := strconv.Atoi(m.Fields[6])
	if err != nil {
		return AnsKey{}, relayerr.Newf(relayerr.ProtocolError, "meta: ANS_KEY: bad compression %q", m.Fields[6])
	}
	return AnsKey{
		From: m.Fields[0], To: m.Fields[1], CipherKey: m.Fields[2],
		DigestKey: m.Fields[3], Algorithms: m.Fields[4],
		MACLen: macLen, Compression: compression,
	}, nil
}
