package p2p

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tondi-Foundation/Kaseeder/internal/catalog"
)

// fakePeer runs handler against exactly one inbound connection and returns
// the listener's address.
func fakePeer(t *testing.T, handler func(conn net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

func mustTarget(t *testing.T, addr string) catalog.NetAddress {
	t.Helper()
	na, err := catalog.ParseNetAddress(addr)
	require.NoError(t, err)
	return na
}

func testClient() *Client {
	c := NewClient("kaseeder", "0.0.1", "kaspa-mainnet", []uint32{6, 5, 4})
	c.ConnectTimeout = 2 * time.Second
	c.AddressesTimeout = 2 * time.Second
	return c
}

// A successful probe returns the peer's version and the addresses it sent.
func TestProbeSuccess(t *testing.T) {
	addr := fakePeer(t, func(conn net.Conn) {
		f, err := readFrame(conn)
		require.NoError(t, err)
		require.Equal(t, kindVersion, f.Kind)

		_ = writeFrame(conn, frame{Kind: kindVersion, Payload: versionMsg{
			ProtocolVersion: 6,
			UserAgent:       "/x:1.0/",
			Network:         "kaspa-mainnet",
		}.encode()})

		f, err = readFrame(conn)
		require.NoError(t, err)
		require.Equal(t, kindVerack, f.Kind)
		_ = writeFrame(conn, frame{Kind: kindVerack})

		f, err = readFrame(conn)
		require.NoError(t, err)
		require.Equal(t, kindRequestAddresses, f.Kind)

		_ = writeFrame(conn, frame{Kind: kindAddresses, Payload: addressesMsg{
			Addresses: []addressEntry{{IP: net.ParseIP("9.9.9.9").To4(), Port: 16111}},
		}.encode()})
	})

	c := testClient()
	pv, addrs, err := c.Probe(context.Background(), mustTarget(t, addr))
	require.NoError(t, err)
	require.Equal(t, uint32(6), pv.ProtocolVersion)
	require.Equal(t, "/x:1.0/", pv.UserAgent)
	require.Len(t, addrs, 1)
	require.Equal(t, "9.9.9.9:16111", addrs[0].Key())
}

// No Addresses message within AddressesTimeout: empty list, not an error.
func TestProbeAddressesTimeoutIsNotError(t *testing.T) {
	addr := fakePeer(t, func(conn net.Conn) {
		_, _ = readFrame(conn) // Version
		_ = writeFrame(conn, frame{Kind: kindVersion, Payload: versionMsg{ProtocolVersion: 6}.encode()})
		_, _ = readFrame(conn) // Verack
		_ = writeFrame(conn, frame{Kind: kindVerack})
		_, _ = readFrame(conn) // RequestAddresses
		// never reply with Addresses
		time.Sleep(3 * time.Second)
	})

	c := testClient()
	c.AddressesTimeout = 300 * time.Millisecond
	pv, addrs, err := c.Probe(context.Background(), mustTarget(t, addr))
	require.NoError(t, err)
	require.Equal(t, uint32(6), pv.ProtocolVersion)
	require.Empty(t, addrs)
}

// A peer below MinAcceptableProtocolVersion is reported as a version
// mismatch.
func TestProbeVersionGateRejects(t *testing.T) {
	addr := fakePeer(t, func(conn net.Conn) {
		_, _ = readFrame(conn)
		_ = writeFrame(conn, frame{Kind: kindVersion, Payload: versionMsg{ProtocolVersion: 5}.encode()})
	})

	c := testClient()
	c.ProtocolVersions = []uint32{6}
	c.MinAcceptableProtocolVersion = 6
	_, _, err := c.Probe(context.Background(), mustTarget(t, addr))
	require.Error(t, err)
	require.Equal(t, KindProtocolVersionMismatch, KindOf(err))
}

// The client replies Pong to an unsolicited Ping while awaiting Addresses,
// and still completes the exchange.
func TestProbeRepliesToPing(t *testing.T) {
	addr := fakePeer(t, func(conn net.Conn) {
		_, _ = readFrame(conn)
		_ = writeFrame(conn, frame{Kind: kindVersion, Payload: versionMsg{ProtocolVersion: 6}.encode()})
		_, _ = readFrame(conn)
		_ = writeFrame(conn, frame{Kind: kindVerack})
		_, _ = readFrame(conn) // RequestAddresses

		_ = writeFrame(conn, frame{Kind: kindPing, Payload: pingPongMsg{Nonce: 42}.encode()})

		_ = conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		pong, err := readFrame(conn)
		require.NoError(t, err)
		require.Equal(t, kindPong, pong.Kind)
		got, err := decodePingPong(pong.Payload)
		require.NoError(t, err)
		require.Equal(t, uint64(42), got.Nonce)

		_ = writeFrame(conn, frame{Kind: kindAddresses, Payload: addressesMsg{}.encode()})
	})

	c := testClient()
	_, addrs, err := c.Probe(context.Background(), mustTarget(t, addr))
	require.NoError(t, err)
	require.Empty(t, addrs)
}

func TestProbeConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close()) // nothing listening now

	c := testClient()
	c.ConnectTimeout = 500 * time.Millisecond
	_, _, err = c.Probe(context.Background(), mustTarget(t, addr))
	require.Error(t, err)
}

func TestProbeInvalidAddress(t *testing.T) {
	c := testClient()
	_, _, err := c.Probe(context.Background(), catalog.NetAddress{})
	require.Error(t, err)
	require.Equal(t, KindInvalidAddress, KindOf(err))
}
