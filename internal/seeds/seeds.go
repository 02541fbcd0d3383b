// Package seeds resolves a network's configured bootstrap hostnames into
// peer candidates (C2). Grounded on dnsseed.go's hostLookup/
// connmgr.SeedFromDNS call: plain OS resolution per hostname, tolerating
// per-host failures, returning the union across all configured seeds.
package seeds

import (
	"net"

	"github.com/Tondi-Foundation/Kaseeder/internal/catalog"
	"github.com/Tondi-Foundation/Kaseeder/internal/logctx"
	"github.com/Tondi-Foundation/Kaseeder/internal/netparams"
)

// Lookup resolves a hostname to a set of IPs. Overridable in tests;
// production callers should pass net.LookupIP (or leave it nil, which
// Resolve treats as net.LookupIP).
type Lookup func(host string) ([]net.IP, error)

var log = logctx.New("seeds")

// Resolve resolves every hostname in params.SeedHosts, pairing each
// returned IP with params.DefaultPort. A per-host failure is logged and
// skipped; the overall result may be empty.
func Resolve(params netparams.Params, lookup Lookup) []catalog.NetAddress {
	if lookup == nil {
		lookup = net.LookupIP
	}

	var out []catalog.NetAddress
	for _, host := range params.SeedHosts {
		ips, err := lookup(host)
		if err != nil {
			log.Warnf("failed to resolve seed host %s: %v", host, err)
			continue
		}
		for _, ip := range ips {
			out = append(out, catalog.NetAddress{IP: ip, Port: params.DefaultPort})
		}
	}
	return out
}
