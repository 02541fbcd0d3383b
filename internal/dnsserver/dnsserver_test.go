package dnsserver

import (
	"net"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"

	"github.com/Tondi-Foundation/Kaseeder/internal/catalog"
)

type fakeCatalog struct {
	good map[uint16][]catalog.NetAddress
}

func (f *fakeCatalog) GoodAddresses(qtype uint16, includeAllSubnetworks bool, subnetworkID string) []catalog.NetAddress {
	return f.good[qtype]
}

func newTestServer(good map[uint16][]catalog.NetAddress) *Server {
	return New("seed.example.com", "ns.example.com", "127.0.0.1:0", &fakeCatalog{good: good})
}

func query(name string, qtype uint16) *dns.Msg {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true
	return m
}

func TestAnswerA(t *testing.T) {
	s := newTestServer(map[uint16][]catalog.NetAddress{
		dns.TypeA: {{IP: net.ParseIP("1.2.3.4"), Port: 16111}, {IP: net.ParseIP("5.6.7.8"), Port: 16111}},
	})
	resp := s.answer(query("seed.example.com", dns.TypeA))

	require.Equal(t, dns.RcodeSuccess, resp.Rcode)
	require.True(t, resp.Authoritative)
	require.False(t, resp.RecursionAvailable)
	require.True(t, resp.RecursionDesired)
	require.Len(t, resp.Answer, 2)
	a, ok := resp.Answer[0].(*dns.A)
	require.True(t, ok)
	require.Equal(t, uint32(ATTL), a.Hdr.Ttl)
}

func TestAnswerAAAAPlaceholderWhenEmpty(t *testing.T) {
	s := newTestServer(nil)
	resp := s.answer(query("seed.example.com", dns.TypeAAAA))

	require.Equal(t, dns.RcodeSuccess, resp.Rcode)
	require.Len(t, resp.Answer, 1)
	aaaa, ok := resp.Answer[0].(*dns.AAAA)
	require.True(t, ok)
	require.Equal(t, net.ParseIP("0100::"), aaaa.AAAA)
}

func TestAnswerAAAACapsAtEight(t *testing.T) {
	var addrs []catalog.NetAddress
	for i := 0; i < 20; i++ {
		addrs = append(addrs, catalog.NetAddress{IP: net.ParseIP("2001:db8::1"), Port: 16111})
	}
	s := newTestServer(map[uint16][]catalog.NetAddress{dns.TypeAAAA: addrs})
	resp := s.answer(query("seed.example.com", dns.TypeAAAA))
	require.Len(t, resp.Answer, AnswerCap)
}

func TestAnswerNS(t *testing.T) {
	s := newTestServer(nil)
	resp := s.answer(query("seed.example.com", dns.TypeNS))

	require.Len(t, resp.Answer, 1)
	ns, ok := resp.Answer[0].(*dns.NS)
	require.True(t, ok)
	require.Equal(t, "ns.example.com.", ns.Ns)
	require.Equal(t, uint32(NSTTL), ns.Hdr.Ttl)
}

func TestAnswerHostnameMismatchServfail(t *testing.T) {
	s := newTestServer(map[uint16][]catalog.NetAddress{
		dns.TypeA: {{IP: net.ParseIP("1.2.3.4"), Port: 16111}},
	})
	resp := s.answer(query("not-the-seed.example.com", dns.TypeA))
	require.Equal(t, dns.RcodeServerFailure, resp.Rcode)
}

func TestAnswerHostnameCaseInsensitiveAndTrailingDot(t *testing.T) {
	s := newTestServer(map[uint16][]catalog.NetAddress{
		dns.TypeA: {{IP: net.ParseIP("1.2.3.4"), Port: 16111}},
	})
	resp := s.answer(query("SEED.EXAMPLE.COM.", dns.TypeA))
	require.Equal(t, dns.RcodeSuccess, resp.Rcode)
}

func TestAnswerUnsupportedQtypeServfail(t *testing.T) {
	s := newTestServer(nil)
	resp := s.answer(query("seed.example.com", dns.TypeMX))
	require.Equal(t, dns.RcodeServerFailure, resp.Rcode)
}

func TestAnswerMultiQuestionServfail(t *testing.T) {
	s := newTestServer(nil)
	m := query("seed.example.com", dns.TypeA)
	m.Question = append(m.Question, m.Question[0])
	resp := s.answer(m)
	require.Equal(t, dns.RcodeServerFailure, resp.Rcode)
}

func TestAnswerIDCopied(t *testing.T) {
	s := newTestServer(nil)
	m := query("seed.example.com", dns.TypeA)
	m.Id = 0xBEEF
	resp := s.answer(m)
	require.Equal(t, m.Id, resp.Id)
}
