// Package p2p implements the peer protocol client: dial, handshake with
// bounded version negotiation, a RequestAddresses/Addresses exchange, and
// ping/pong liveness, packaged as one Probe call per peer.
//
// Grounded on dnsseed.go's creep() (NewOutboundPeer/AssociateConnection/
// QueueMessage/Disconnect, OnVersion/OnAddr listeners) with the framing
// rebuilt around the teacher module's protobuf/grpc dependencies rather than
// the older btcd fixed-header wire format — see DESIGN.md.
package p2p

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/kaspanet/kaspad/util/subnetworkid"

	"github.com/Tondi-Foundation/Kaseeder/internal/catalog"
	"github.com/Tondi-Foundation/Kaseeder/internal/logctx"
)

const (
	ConnectTimeout    = 10 * time.Second
	AddressesTimeout  = 3 * time.Second
	DefaultPingIdle   = 60 * time.Second
	maxVersionRetries = 3
)

// PeerVersion is what a successful handshake reveals about the peer.
type PeerVersion struct {
	ProtocolVersion uint32
	UserAgent       string
	SubnetworkID    string
}

// Client performs probes against individual peers. It is safe for
// concurrent use; the crawler rotates a small pool of these round-robin.
type Client struct {
	UserAgentName    string
	UserAgentVersion string
	Network          string

	// ProtocolVersions is the descending candidate table negotiation walks,
	// e.g. []uint32{5, 4, 3}. Only the first maxVersionRetries entries are
	// tried.
	ProtocolVersions []uint32

	ConnectTimeout   time.Duration
	AddressesTimeout time.Duration
	PingIdle         time.Duration

	// Dial is overridable for tests; defaults to net.DialTimeout("tcp", ...).
	Dial func(addr string, timeout time.Duration) (net.Conn, error)

	// MinAcceptableProtocolVersion is the lowest protocol version the
	// client will accept from a peer without treating it as a version
	// mismatch worth retrying at a lower proposal. Zero disables the check
	// at the transport layer; the crawler applies its own, configured gate
	// on top of the returned PeerVersion.
	MinAcceptableProtocolVersion uint32

	log *logctx.Logger
}

// NewClient returns a Client configured with sensible default timeouts.
func NewClient(userAgentName, userAgentVersion, network string, protocolVersions []uint32) *Client {
	return &Client{
		UserAgentName:    userAgentName,
		UserAgentVersion: userAgentVersion,
		Network:          network,
		ProtocolVersions: protocolVersions,
		ConnectTimeout:   ConnectTimeout,
		AddressesTimeout: AddressesTimeout,
		PingIdle:         DefaultPingIdle,
		log:              logctx.New("p2p"),
	}
}

func (c *Client) dial(addr string) (net.Conn, error) {
	if c.Dial != nil {
		return c.Dial(addr, c.connectTimeout())
	}
	return net.DialTimeout("tcp", addr, c.connectTimeout())
}

func (c *Client) connectTimeout() time.Duration {
	if c.ConnectTimeout > 0 {
		return c.ConnectTimeout
	}
	return ConnectTimeout
}

func (c *Client) addressesTimeout() time.Duration {
	if c.AddressesTimeout > 0 {
		return c.AddressesTimeout
	}
	return AddressesTimeout
}

func (c *Client) pingIdle() time.Duration {
	if c.PingIdle > 0 {
		return c.PingIdle
	}
	return DefaultPingIdle
}

// Probe performs one connect-handshake-request-addresses attempt against
// target, retrying the handshake with the next-lower protocol version (up
// to maxVersionRetries total attempts) on a version mismatch only. No other
// retry happens inside Probe — that is the crawler's responsibility.
func (c *Client) Probe(ctx context.Context, target catalog.NetAddress) (PeerVersion, []catalog.NetAddress, error) {
	if target.IP == nil || target.Port == 0 {
		return PeerVersion{}, nil, newProbeError(KindInvalidAddress, nil)
	}

	versions := c.ProtocolVersions
	if len(versions) == 0 {
		versions = []uint32{1}
	}
	if len(versions) > maxVersionRetries {
		versions = versions[:maxVersionRetries]
	}

	var lastErr error
	for _, pv := range versions {
		pver, addrs, err := c.attempt(ctx, target, pv)
		if err == nil {
			return pver, addrs, nil
		}
		lastErr = err
		if KindOf(err) != KindProtocolVersionMismatch {
			return PeerVersion{}, nil, err
		}
	}
	return PeerVersion{}, nil, lastErr
}

func (c *Client) attempt(ctx context.Context, target catalog.NetAddress, myVersion uint32) (PeerVersion, []catalog.NetAddress, error) {
	conn, err := c.dial(target.Key())
	if err != nil {
		return PeerVersion{}, nil, classifyDialErr(err)
	}
	defer conn.Close()

	if err := c.handshake(conn, myVersion); err != nil {
		return PeerVersion{}, nil, err
	}

	peerVer, err := c.readPeerVersion(conn)
	if err != nil {
		return PeerVersion{}, nil, err
	}

	if err := c.completeHandshake(conn); err != nil {
		return PeerVersion{}, nil, err
	}

	if err := writeFrame(conn, frame{Kind: kindRequestAddresses, Payload: requestAddressesMsg{
		IncludeAllSubnetworks: true,
	}.encode()}); err != nil {
		return PeerVersion{}, nil, wrapf(KindIO, err, "sending RequestAddresses")
	}

	addrs, err := c.readUntilAddresses(conn)
	if err != nil {
		return PeerVersion{}, nil, err
	}

	return peerVer, addrs, nil
}

func (c *Client) handshake(conn net.Conn, myVersion uint32) error {
	_ = conn.SetDeadline(time.Now().Add(c.connectTimeout()))
	msg := versionMsg{
		ProtocolVersion: myVersion,
		Services:        0,
		Timestamp:       time.Now().Unix(),
		RandomID:        randomID(),
		UserAgent:       "/" + c.UserAgentName + ":" + c.UserAgentVersion + "/",
		DisableRelayTx:  true,
		SubnetworkID:    subnetworkid.SubnetworkIDSupportsAll[:],
		Network:         c.Network,
	}
	if err := writeFrame(conn, frame{Kind: kindVersion, Payload: msg.encode()}); err != nil {
		return wrapf(KindIO, err, "sending Version")
	}
	return nil
}

func (c *Client) readPeerVersion(conn net.Conn) (PeerVersion, error) {
	f, err := readFrame(conn)
	if err != nil {
		return PeerVersion{}, classifyReadErr(err)
	}
	if f.Kind != kindVersion {
		return PeerVersion{}, newProbeError(KindProtocol, errUnexpectedKind(kindVersion, f.Kind))
	}
	v, err := decodeVersion(f.Payload)
	if err != nil {
		return PeerVersion{}, wrapf(KindProtocol, err, "decoding Version")
	}
	if c.MinAcceptableProtocolVersion > 0 && v.ProtocolVersion < c.MinAcceptableProtocolVersion {
		return PeerVersion{}, newProbeError(KindProtocolVersionMismatch, nil)
	}
	return PeerVersion{
		ProtocolVersion: v.ProtocolVersion,
		UserAgent:       v.UserAgent,
		SubnetworkID:    string(v.SubnetworkID),
	}, nil
}

// completeHandshake sends our Verack and accepts either a Verack or Ready
// from the peer as handshake completion.
func (c *Client) completeHandshake(conn net.Conn) error {
	if err := writeFrame(conn, frame{Kind: kindVerack}); err != nil {
		return wrapf(KindIO, err, "sending Verack")
	}
	f, err := readFrame(conn)
	if err != nil {
		return classifyReadErr(err)
	}
	if f.Kind != kindVerack && f.Kind != kindReady {
		return newProbeError(KindProtocol, errUnexpectedKind(kindVerack, f.Kind))
	}
	return nil
}

// readUntilAddresses drains messages, replying to Ping and sending an idle
// Ping if the peer goes quiet, until Addresses arrives or AddressesTimeout
// elapses. A timeout is not an error — the handshake already validated the
// peer.
func (c *Client) readUntilAddresses(conn net.Conn) ([]catalog.NetAddress, error) {
	deadline := time.Now().Add(c.addressesTimeout())
	lastActivity := time.Now()

	for {
		now := time.Now()
		if !now.Before(deadline) {
			return nil, nil
		}

		// Block until whichever comes first: the overall AddressesTimeout,
		// or this session's idle-ping interval. The idle interval is only
		// the limiting factor when AddressesTimeout is configured longer
		// than PingIdle; with the defaults (3 s vs 60 s) it never is.
		nextPing := lastActivity.Add(c.pingIdle())
		readDeadline := deadline
		if nextPing.Before(readDeadline) {
			readDeadline = nextPing
		}
		_ = conn.SetReadDeadline(readDeadline)

		f, err := readFrame(conn)
		if err != nil {
			if isTimeout(err) {
				if !time.Now().Before(deadline) {
					return nil, nil
				}
				// Idle interval elapsed before the overall deadline: ping
				// and keep waiting for Addresses.
				if err := writeFrame(conn, frame{Kind: kindPing, Payload: pingPongMsg{Nonce: randomID()}.encode()}); err != nil {
					return nil, wrapf(KindIO, err, "sending idle Ping")
				}
				lastActivity = time.Now()
				continue
			}
			return nil, classifyReadErr(err)
		}
		lastActivity = time.Now()

		switch f.Kind {
		case kindAddresses:
			msg, err := decodeAddresses(f.Payload)
			if err != nil {
				return nil, wrapf(KindProtocol, err, "decoding Addresses")
			}
			return toNetAddresses(msg), nil
		case kindPing:
			ping, err := decodePingPong(f.Payload)
			if err != nil {
				return nil, wrapf(KindProtocol, err, "decoding Ping")
			}
			if err := writeFrame(conn, frame{Kind: kindPong, Payload: pingPongMsg{Nonce: ping.Nonce}.encode()}); err != nil {
				return nil, wrapf(KindIO, err, "sending Pong")
			}
		case kindVerack, kindVersion, kindReady, kindRequestAddresses:
			// Spec-allowed stray messages during this window; ignore.
		default:
			c.log.Debugf("ignoring unexpected message kind %s while awaiting Addresses", f.Kind)
		}
	}
}

func toNetAddresses(msg addressesMsg) []catalog.NetAddress {
	out := make([]catalog.NetAddress, 0, len(msg.Addresses))
	for _, e := range msg.Addresses {
		ip := net.IP(e.IP)
		if ip == nil || e.Port == 0 {
			continue
		}
		out = append(out, catalog.NetAddress{IP: ip, Port: e.Port})
	}
	return out
}

func randomID() uint64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint64(b[:])
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

func classifyDialErr(err error) error {
	if isTimeout(err) {
		return wrapf(KindNetworkTimeout, err, "dialing peer")
	}
	if isRefused(err) {
		return wrapf(KindConnectionRefused, err, "dialing peer")
	}
	return wrapf(KindIO, err, "dialing peer")
}

func classifyReadErr(err error) error {
	if err == io.EOF {
		return wrapf(KindProtocol, err, "connection closed by peer")
	}
	if isTimeout(err) {
		return wrapf(KindNetworkTimeout, err, "reading from peer")
	}
	return wrapf(KindIO, err, "reading from peer")
}

func isRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

func errUnexpectedKind(want, got messageKind) error {
	return &unexpectedKindError{want: want, got: got}
}

type unexpectedKindError struct {
	want, got messageKind
}

func (e *unexpectedKindError) Error() string {
	return "expected " + e.want.String() + ", got " + e.got.String()
}
