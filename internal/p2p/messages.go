package p2p

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// messageKind identifies one of the handshake/liveness/address-exchange
// messages the protocol client speaks. Frames are [4-byte big-endian
// length][1-byte kind][protobuf-wire payload],
// matching the teacher module's google.golang.org/protobuf dependency
// (kaspad's actual peer wire is gRPC/protobuf-framed) without requiring
// generated .proto bindings: payloads are hand-encoded with protowire,
// the same low-level package protoc-gen-go itself emits calls to.
type messageKind byte

const (
	kindVersion messageKind = iota + 1
	kindVerack
	kindReady
	kindPing
	kindPong
	kindRequestAddresses
	kindAddresses
)

func (k messageKind) String() string {
	switch k {
	case kindVersion:
		return "Version"
	case kindVerack:
		return "Verack"
	case kindReady:
		return "Ready"
	case kindPing:
		return "Ping"
	case kindPong:
		return "Pong"
	case kindRequestAddresses:
		return "RequestAddresses"
	case kindAddresses:
		return "Addresses"
	default:
		return fmt.Sprintf("unknown(%d)", byte(k))
	}
}

// Field numbers for versionMsg.
const (
	fieldVersionProtocolVersion = 1
	fieldVersionServices        = 2
	fieldVersionTimestamp       = 3
	fieldVersionRandomID        = 4
	fieldVersionUserAgent       = 5
	fieldVersionDisableRelayTx  = 6
	fieldVersionSubnetworkID    = 7
	fieldVersionNetwork         = 8
)

type versionMsg struct {
	ProtocolVersion uint32
	Services        uint64
	Timestamp       int64
	RandomID        uint64
	UserAgent       string
	DisableRelayTx  bool
	SubnetworkID    []byte // nil means "supports all"
	Network         string
}

func (m versionMsg) encode() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldVersionProtocolVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.ProtocolVersion))
	b = protowire.AppendTag(b, fieldVersionServices, protowire.VarintType)
	b = protowire.AppendVarint(b, m.Services)
	b = protowire.AppendTag(b, fieldVersionTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Timestamp))
	b = protowire.AppendTag(b, fieldVersionRandomID, protowire.VarintType)
	b = protowire.AppendVarint(b, m.RandomID)
	b = protowire.AppendTag(b, fieldVersionUserAgent, protowire.BytesType)
	b = protowire.AppendString(b, m.UserAgent)
	b = protowire.AppendTag(b, fieldVersionDisableRelayTx, protowire.VarintType)
	b = protowire.AppendVarint(b, boolToVarint(m.DisableRelayTx))
	if len(m.SubnetworkID) > 0 {
		b = protowire.AppendTag(b, fieldVersionSubnetworkID, protowire.BytesType)
		b = protowire.AppendBytes(b, m.SubnetworkID)
	}
	b = protowire.AppendTag(b, fieldVersionNetwork, protowire.BytesType)
	b = protowire.AppendString(b, m.Network)
	return b
}

func decodeVersion(b []byte) (versionMsg, error) {
	var m versionMsg
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return m, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldVersionProtocolVersion:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return m, protowire.ParseError(n)
			}
			m.ProtocolVersion = uint32(v)
			b = b[n:]
		case fieldVersionServices:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return m, protowire.ParseError(n)
			}
			m.Services = v
			b = b[n:]
		case fieldVersionTimestamp:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return m, protowire.ParseError(n)
			}
			m.Timestamp = int64(v)
			b = b[n:]
		case fieldVersionRandomID:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return m, protowire.ParseError(n)
			}
			m.RandomID = v
			b = b[n:]
		case fieldVersionUserAgent:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return m, protowire.ParseError(n)
			}
			m.UserAgent = string(v)
			b = b[n:]
		case fieldVersionDisableRelayTx:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return m, protowire.ParseError(n)
			}
			m.DisableRelayTx = v != 0
			b = b[n:]
		case fieldVersionSubnetworkID:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return m, protowire.ParseError(n)
			}
			m.SubnetworkID = append([]byte(nil), v...)
			b = b[n:]
		case fieldVersionNetwork:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return m, protowire.ParseError(n)
			}
			m.Network = string(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return m, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return m, nil
}

type pingPongMsg struct {
	Nonce uint64
}

func (m pingPongMsg) encode() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, m.Nonce)
	return b
}

func decodePingPong(b []byte) (pingPongMsg, error) {
	var m pingPongMsg
	num, _, n := protowire.ConsumeTag(b)
	if n < 0 || num != 1 {
		return m, fmt.Errorf("malformed ping/pong payload")
	}
	b = b[n:]
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return m, protowire.ParseError(n)
	}
	m.Nonce = v
	return m, nil
}

type requestAddressesMsg struct {
	IncludeAllSubnetworks bool
	SubnetworkID          []byte
}

func (m requestAddressesMsg) encode() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, boolToVarint(m.IncludeAllSubnetworks))
	if len(m.SubnetworkID) > 0 {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, m.SubnetworkID)
	}
	return b
}

// addressEntry is the wire shape of one record inside an Addresses message:
// a 4- or 16-byte IP, a port, and a timestamp that's accepted on the wire
// but ignored by the catalog.
type addressEntry struct {
	IP        []byte
	Port      uint16
	Timestamp int64
}

type addressesMsg struct {
	Addresses []addressEntry
}

func (e addressEntry) encode() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, e.IP)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Port))
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Timestamp))
	return b
}

func decodeAddressEntry(b []byte) (addressEntry, error) {
	var e addressEntry
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return e, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			e.IP = append([]byte(nil), v...)
			b = b[n:]
		case 2:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			e.Port = uint16(v)
			b = b[n:]
		case 3:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			e.Timestamp = int64(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return e, nil
}

func (m addressesMsg) encode() []byte {
	var b []byte
	for _, a := range m.Addresses {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, a.encode())
	}
	return b
}

func decodeAddresses(b []byte) (addressesMsg, error) {
	var m addressesMsg
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return m, protowire.ParseError(n)
		}
		b = b[n:]
		if num != 1 || typ != protowire.BytesType {
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return m, protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return m, protowire.ParseError(n)
		}
		b = b[n:]
		entry, err := decodeAddressEntry(v)
		if err != nil {
			return m, err
		}
		m.Addresses = append(m.Addresses, entry)
	}
	return m, nil
}

func boolToVarint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
