// Package dnsserver implements an authoritative UDP DNS responder: a single
// configured hostname answers A, AAAA, and NS queries by reading the peer
// catalog, the way a DNS seed advertises the peers it knows about.
//
// Built on github.com/miekg/dns's dns.Server/dns.ServeMux, the same
// package the teacher module depends on for catalog/manager.go's qtype
// constants. Answer synthesis (cap, TTLs, AAAA placeholder) is grounded on
// other_examples' decred-dcrseeder manager.go (GoodDNSAddresses) and
// original_source/src/dns.rs.
package dnsserver

import (
	"context"
	"net"
	"strings"
	"sync"

	"github.com/miekg/dns"

	"github.com/Tondi-Foundation/Kaseeder/internal/catalog"
	"github.com/Tondi-Foundation/Kaseeder/internal/logctx"
)

const (
	ATTL  = 30
	NSTTL = 86400

	// AnswerCap bounds the number of address records in one response so
	// the payload stays within the 512 B non-EDNS UDP limit.
	AnswerCap = 8
)

// aaaaPlaceholder satisfies resolvers that reject an AAAA response with
// zero records, by returning a single unroutable placeholder address
// instead of an empty answer section.
var aaaaPlaceholder = "0100::"

// Catalog is the subset of *catalog.Catalog the responder depends on.
type Catalog interface {
	GoodAddresses(qtype uint16, includeAllSubnetworks bool, subnetworkID string) []catalog.NetAddress
}

// Server is the authoritative DNS responder. It wraps a dns.Server per
// miekg/dns's usual embedding server pattern; ListenAndServe blocks the
// calling goroutine until Shutdown is called or the socket errors.
type Server struct {
	Hostname   string
	Nameserver string
	Addr       string

	catalog Catalog
	log     *logctx.Logger

	mu  sync.Mutex
	srv *dns.Server
}

// New builds a Server bound to addr (host:port, UDP) that answers only for
// hostname, returning nameserver as the single NS record.
func New(hostname, nameserver, addr string, cat Catalog) *Server {
	return &Server{
		Hostname:   dns.CanonicalName(hostname),
		Nameserver: dns.CanonicalName(nameserver),
		Addr:       addr,
		catalog:    cat,
		log:        logctx.New("dnsserver"),
	}
}

// ListenAndServe starts the UDP listener and blocks until ctx is
// cancelled or the server stops for another reason.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := dns.NewServeMux()
	mux.HandleFunc(".", s.handle)

	srv := &dns.Server{Addr: s.Addr, Net: "udp", Handler: mux}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		_ = srv.ShutdownContext(context.Background())
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the listener immediately, for callers not using
// ListenAndServe's context-driven lifecycle.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown()
}

func (s *Server) handle(w dns.ResponseWriter, req *dns.Msg) {
	resp := s.answer(req)
	if resp == nil {
		return
	}
	if err := w.WriteMsg(resp); err != nil {
		s.log.Warnf("failed to write DNS response: %v", err)
	}
}

// answer validates req and, if valid, synthesizes a response. It never
// returns nil: a request that fails validation gets a SERVFAIL reply, and
// miekg/dns already drops unparsable datagrams before this point.
func (s *Server) answer(req *dns.Msg) *dns.Msg {
	resp := new(dns.Msg)
	resp.SetReply(req)
	resp.Authoritative = true
	resp.RecursionAvailable = false

	if req.Opcode != dns.OpcodeQuery || len(req.Question) != 1 {
		resp.Rcode = dns.RcodeServerFailure
		return resp
	}

	q := req.Question[0]
	if q.Qclass != dns.ClassINET || !s.matchesHostname(q.Name) {
		resp.Rcode = dns.RcodeServerFailure
		return resp
	}

	switch q.Qtype {
	case dns.TypeA:
		resp.Answer = s.aRecords(q.Name)
	case dns.TypeAAAA:
		resp.Answer = s.aaaaRecords(q.Name)
	case dns.TypeNS:
		resp.Answer = []dns.RR{s.nsRecord(q.Name)}
	default:
		resp.Rcode = dns.RcodeServerFailure
	}

	return resp
}

func (s *Server) matchesHostname(name string) bool {
	return strings.EqualFold(dns.CanonicalName(name), s.Hostname)
}

func (s *Server) aRecords(name string) []dns.RR {
	addrs := s.catalog.GoodAddresses(dns.TypeA, true, "")
	out := make([]dns.RR, 0, len(addrs))
	for i, addr := range addrs {
		if i >= AnswerCap {
			break
		}
		ip4 := addr.IP.To4()
		if ip4 == nil {
			continue
		}
		out = append(out, &dns.A{
			Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: ATTL},
			A:   ip4,
		})
	}
	return out
}

func (s *Server) aaaaRecords(name string) []dns.RR {
	addrs := s.catalog.GoodAddresses(dns.TypeAAAA, true, "")
	out := make([]dns.RR, 0, len(addrs))
	for i, addr := range addrs {
		if i >= AnswerCap {
			break
		}
		ip6 := addr.IP.To16()
		if ip6 == nil || addr.IP.To4() != nil {
			continue
		}
		out = append(out, &dns.AAAA{
			Hdr:  dns.RR_Header{Name: name, Rrtype: dns.TypeAAAA, Class: dns.ClassINET, Ttl: ATTL},
			AAAA: ip6,
		})
	}
	if len(out) == 0 {
		out = append(out, &dns.AAAA{
			Hdr:  dns.RR_Header{Name: name, Rrtype: dns.TypeAAAA, Class: dns.ClassINET, Ttl: ATTL},
			AAAA: net.ParseIP(aaaaPlaceholder),
		})
	}
	return out
}

func (s *Server) nsRecord(name string) dns.RR {
	return &dns.NS{
		Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeNS, Class: dns.ClassINET, Ttl: NSTTL},
		Ns:  s.Nameserver,
	}
}
