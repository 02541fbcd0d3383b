package seeds

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Tondi-Foundation/Kaseeder/internal/netparams"
)

func TestResolveUnionsAcrossSeedsAndTreatsFailuresAsSkips(t *testing.T) {
	params := netparams.Params{
		Name:        "test",
		DefaultPort: 16111,
		SeedHosts:   []string{"good1.example.com", "broken.example.com", "good2.example.com"},
	}

	lookup := func(host string) ([]net.IP, error) {
		switch host {
		case "good1.example.com":
			return []net.IP{net.ParseIP("10.0.0.1")}, nil
		case "good2.example.com":
			return []net.IP{net.ParseIP("11.0.0.2")}, nil
		default:
			return nil, net.UnknownNetworkError("boom")
		}
	}

	got := Resolve(params, lookup)
	require.Len(t, got, 2)

	keys := map[string]bool{}
	for _, a := range got {
		keys[a.Key()] = true
	}
	require.True(t, keys["10.0.0.1:16111"])
	require.True(t, keys["11.0.0.2:16111"])
}

func TestResolveEmptyIsTolerated(t *testing.T) {
	params := netparams.Params{SeedHosts: nil}
	got := Resolve(params, func(string) ([]net.IP, error) { return nil, nil })
	require.Empty(t, got)
}
