package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsAndResolvesNetwork(t *testing.T) {
	cfg, err := Load([]string{"--host", "seed.example.com", "--nameserver", "ns.example.com"})
	require.NoError(t, err)
	require.Equal(t, "seed.example.com", cfg.Host)
	require.Equal(t, defaultThreads, cfg.Threads)
	require.Equal(t, "kaspa-mainnet", cfg.Params.Name)
	require.NotEmpty(t, cfg.AppDir)
}

func TestLoadTestnetSuffix11UsesPort16311(t *testing.T) {
	cfg, err := Load([]string{"--host", "seed.example.com", "--testnet", "--net-suffix", "11"})
	require.NoError(t, err)
	require.Equal(t, uint16(16311), cfg.Params.DefaultPort)
}

func TestLoadRejectsThreadsOutOfRange(t *testing.T) {
	_, err := Load([]string{"--host", "seed.example.com", "--threads", "0"})
	require.Error(t, err)

	_, err = Load([]string{"--host", "seed.example.com", "--threads", "33"})
	require.Error(t, err)
}

func TestLoadRequiresHost(t *testing.T) {
	_, err := Load([]string{"--nameserver", "ns.example.com"})
	require.Error(t, err)
}

func TestCatalogPathJoinsAppDirAndNetwork(t *testing.T) {
	cfg, err := Load([]string{"--host", "seed.example.com", "--app-dir", "/tmp/kaseeder-test"})
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/tmp/kaseeder-test", "kaspa-mainnet", "peers.json"), cfg.CatalogPath())
}

func TestTOMLOverlayFillsUnsetFlags(t *testing.T) {
	dir := t.TempDir()
	tomlPath := filepath.Join(dir, "kaseeder.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(`
nameserver = "ns.from-toml.example.com"
threads = 16
`), 0o644))

	cfg, err := Load([]string{"--host", "seed.example.com", "--config", tomlPath})
	require.NoError(t, err)
	require.Equal(t, "ns.from-toml.example.com", cfg.Nameserver)
	require.Equal(t, 16, cfg.Threads)
}

func TestLoadDebugFlagEnablesLogging(t *testing.T) {
	cfg, err := Load([]string{"--host", "seed.example.com", "--debuglevel"})
	require.NoError(t, err)
	require.True(t, cfg.Debug)
}

func TestTOMLOverlayMissingFileIsTolerated(t *testing.T) {
	cfg, err := Load([]string{"--host", "seed.example.com", "--config", "/does/not/exist.toml"})
	require.NoError(t, err)
	require.Equal(t, "seed.example.com", cfg.Host)
}
