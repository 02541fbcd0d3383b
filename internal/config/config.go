// Package config implements the seeder's CLI surface: the flags needed to
// bind a DNS listener, point the crawler at a network and bootstrap peers,
// and locate the on-disk catalog, plus an app-dir/TOML-overlay convention
// typical of this lineage of seeder.
//
// Grounded on the teacher module's github.com/jessevdk/go-flags dependency
// and the btcd/dcrd-family loadConfig() idiom dnsseed.go's main() calls but
// doesn't define in the retrieved sources (config.go is absent from the
// teacher's thin checkout; the flag struct tags and defaulting pattern
// below follow that family's well-known shape).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	flags "github.com/jessevdk/go-flags"
	"github.com/pkg/errors"

	"github.com/Tondi-Foundation/Kaseeder/internal/netparams"
)

const (
	defaultAppDirName = "kaseeder"
	defaultListen     = ":5354"
	defaultThreads    = 8
	minThreads        = 1
	maxThreads        = 32
)

// Config is the fully resolved, validated configuration the rest of the
// program runs from.
type Config struct {
	Host       string `long:"host" description:"FQDN the DNS responder answers for (required, here or in the TOML overlay)"`
	Nameserver string `long:"nameserver" description:"FQDN returned in NS records"`
	Listen     string `long:"listen" description:"UDP listen address for the DNS responder" default:":5354"`
	AppDir     string `long:"app-dir" description:"Directory holding per-network catalog state"`

	Seeder     string `long:"seeder" description:"Bootstrap peer, ip[:port] or hostname"`
	KnownPeers string `long:"known-peers" description:"Comma-separated list of trusted ip:port peers"`

	Threads int `long:"threads" description:"Number of rotating P2P clients (1-32)" default:"8"`

	MinProtoVer uint16 `long:"min-proto-ver" description:"Minimum acceptable peer protocol version"`
	MinUAVer    string `long:"min-ua-ver" description:"Minimum acceptable peer user-agent version, e.g. 1.2.0"`

	Testnet   bool   `long:"testnet" description:"Use testnet parameters instead of mainnet"`
	NetSuffix uint16 `long:"net-suffix" description:"Testnet suffix (10 or 11)" default:"10"`

	Debug bool `long:"debuglevel" description:"Enable debug-level logging"`

	// TOMLConfig optionally names a file overlaying defaults for any flag
	// not explicitly set on the command line; see loadTOMLOverlay.
	TOMLConfig string `long:"config" description:"Optional TOML file overlaying unset flags"`

	// Params is resolved from Testnet/NetSuffix, not parsed directly.
	Params netparams.Params `no-flag:"true"`
}

// tomlOverlay mirrors the subset of Config fields an operator may want to
// set from a file instead of argv; the schema is intentionally loose, a flat
// key/value map with no formal validation beyond Go's own type decoding.
type tomlOverlay struct {
	Host        *string `toml:"host"`
	Nameserver  *string `toml:"nameserver"`
	Listen      *string `toml:"listen"`
	AppDir      *string `toml:"app_dir"`
	Seeder      *string `toml:"seeder"`
	KnownPeers  *string `toml:"known_peers"`
	Threads     *int    `toml:"threads"`
	MinProtoVer *uint16 `toml:"min_proto_ver"`
	MinUAVer    *string `toml:"min_ua_ver"`
	Testnet     *bool   `toml:"testnet"`
	NetSuffix   *uint16 `toml:"net_suffix"`
	Debug       *bool   `toml:"debuglevel"`
}

// Load parses argv, applies a best-effort TOML overlay for any flag the
// caller left at its default, resolves app-dir and network parameters, and
// validates ranges. Returns a non-nil error for any condition that should
// abort startup: a missing required flag, an out-of-range value, or a
// malformed overlay file.
func Load(argv []string) (*Config, error) {
	cfg := &Config{}
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(argv); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, errors.Wrap(err, "parsing command line")
	}

	if cfg.TOMLConfig != "" {
		if err := applyTOMLOverlay(cfg); err != nil {
			return nil, errors.Wrapf(err, "loading TOML overlay %s", cfg.TOMLConfig)
		}
	}

	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyTOMLOverlay fills in any field still at its flag-default from the
// TOML file. A missing file is not an error, since the overlay is opt-in;
// a malformed one is, since the operator clearly intended it to be read.
func applyTOMLOverlay(cfg *Config) error {
	if _, err := os.Stat(cfg.TOMLConfig); os.IsNotExist(err) {
		return nil
	}
	var overlay tomlOverlay
	if _, err := toml.DecodeFile(cfg.TOMLConfig, &overlay); err != nil {
		return err
	}

	if overlay.Host != nil && cfg.Host == "" {
		cfg.Host = *overlay.Host
	}
	if overlay.Nameserver != nil && cfg.Nameserver == "" {
		cfg.Nameserver = *overlay.Nameserver
	}
	if overlay.Listen != nil && cfg.Listen == defaultListen {
		cfg.Listen = *overlay.Listen
	}
	if overlay.AppDir != nil && cfg.AppDir == "" {
		cfg.AppDir = *overlay.AppDir
	}
	if overlay.Seeder != nil && cfg.Seeder == "" {
		cfg.Seeder = *overlay.Seeder
	}
	if overlay.KnownPeers != nil && cfg.KnownPeers == "" {
		cfg.KnownPeers = *overlay.KnownPeers
	}
	if overlay.Threads != nil && cfg.Threads == defaultThreads {
		cfg.Threads = *overlay.Threads
	}
	if overlay.MinProtoVer != nil && cfg.MinProtoVer == 0 {
		cfg.MinProtoVer = *overlay.MinProtoVer
	}
	if overlay.MinUAVer != nil && cfg.MinUAVer == "" {
		cfg.MinUAVer = *overlay.MinUAVer
	}
	if overlay.Testnet != nil && !cfg.Testnet {
		cfg.Testnet = *overlay.Testnet
	}
	if overlay.NetSuffix != nil && cfg.NetSuffix == 10 {
		cfg.NetSuffix = *overlay.NetSuffix
	}
	if overlay.Debug != nil && !cfg.Debug {
		cfg.Debug = *overlay.Debug
	}
	return nil
}

// resolve fills derived fields and validates ranges not expressible as
// go-flags struct tags.
func (cfg *Config) resolve() error {
	if cfg.Host == "" {
		return fmt.Errorf("host must be set with --host or in the TOML overlay")
	}
	if cfg.Threads < minThreads || cfg.Threads > maxThreads {
		return fmt.Errorf("threads must be in [%d, %d], got %d", minThreads, maxThreads, cfg.Threads)
	}

	if cfg.Testnet {
		cfg.Params = netparams.Testnet(cfg.NetSuffix)
	} else {
		cfg.Params = netparams.Mainnet()
	}

	if cfg.AppDir == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "resolving default app directory")
		}
		cfg.AppDir = filepath.Join(dir, "."+defaultAppDirName)
	}

	return nil
}

// CatalogPath returns the per-network peers file path:
// <app_dir>/<network_name>/peers.json.
func (cfg *Config) CatalogPath() string {
	return filepath.Join(cfg.AppDir, cfg.Params.Name, "peers.json")
}
