// Package netparams describes the two networks the seeder can crawl:
// mainnet and testnet (with a numeric suffix). It supplies the default P2P
// port, the outgoing "network" identifier, and the static DNS seed hostname
// table C2 resolves against.
package netparams

import "fmt"

// Params describes one network's seeder-relevant parameters.
type Params struct {
	// Name is used both as the network field in outgoing Version messages
	// and as the catalog persistence subdirectory name.
	Name string
	// DefaultPort is the P2P port assumed for bootstrap candidates that
	// don't carry an explicit port (DNS seed results, a --seeder given as a
	// bare IP or hostname).
	DefaultPort uint16
	// SeedHosts is the static, reviewable table of bootstrap hostnames
	// resolved by internal/seeds.
	SeedHosts []string
}

// Mainnet is the production network.
func Mainnet() Params {
	return Params{
		Name:        "kaspa-mainnet",
		DefaultPort: 16111,
		SeedHosts: []string{
			"seeder1.kaspad.net",
			"seeder2.kaspad.net",
			"seeder3.kaspad.net",
			"seeder4.kaspad.net",
			"kaspadns.kaspacalc.net",
			"n-mainnet.kaspa.ws",
			"dnsseeder-kaspa-mainnet.x-con.at",
		},
	}
}

// Testnet returns the testnet parameters for the given numeric suffix.
// Suffix 11 uses port 16311; every other supported suffix (including the
// default, 10) uses 16211.
func Testnet(suffix uint16) Params {
	port := uint16(16211)
	if suffix == 11 {
		port = 16311
	}
	name := fmt.Sprintf("kaspa-testnet-%d", suffix)
	seeds := []string{fmt.Sprintf("seed%d.testnet.kaspa.org", suffix)}
	if suffix > 0 {
		seeds = append(seeds, fmt.Sprintf("seed1-%d-testnet.kaspad.net", suffix))
	} else {
		seeds = append(seeds, "seed1-testnet.kaspad.net")
	}
	return Params{
		Name:        name,
		DefaultPort: port,
		SeedHosts:   seeds,
	}
}
