// Command kaseeder is the DNS seeder binary: it wires configuration,
// catalog, crawler, and DNS responder together and runs until an OS
// interrupt requests a graceful shutdown.
//
// Grounded on dnsseed.go's main() (load config, build manager, bootstrap
// seeder, launch creep + dns server goroutines, wait for an interrupt,
// shut down via a shared quit channel and sync.WaitGroup).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Tondi-Foundation/Kaseeder/internal/catalog"
	"github.com/Tondi-Foundation/Kaseeder/internal/config"
	"github.com/Tondi-Foundation/Kaseeder/internal/crawler"
	"github.com/Tondi-Foundation/Kaseeder/internal/dnsserver"
	"github.com/Tondi-Foundation/Kaseeder/internal/logctx"
)

const (
	userAgentName    = "kaseeder"
	userAgentVersion = "0.1.0"
)

// protocolVersions is the descending table the P2P client walks during
// handshake negotiation (newest first).
var protocolVersions = []uint32{6, 5, 4}

var log = logctx.New("main")

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "kaseeder: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logctx.SetDebug(cfg.Debug)

	cat, err := catalog.New(cfg.CatalogPath())
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	cat.Start()

	cr := crawler.New(crawler.Config{
		Threads:             cfg.Threads,
		KnownPeers:          cfg.KnownPeers,
		Seeder:              cfg.Seeder,
		MinProtocolVersion:  uint32(cfg.MinProtoVer),
		MinUserAgentVersion: cfg.MinUAVer,
		UserAgentName:       userAgentName,
		UserAgentVersion:    userAgentVersion,
		Network:             cfg.Params.Name,
		ProtocolVersions:    protocolVersions,
	}, cat, cfg.Params)

	srv := dnsserver.New(cfg.Host, cfg.Nameserver, cfg.Listen, cat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	cr.Bootstrap(ctx)

	wg.Add(1)
	go func() {
		defer wg.Done()
		cr.Run(ctx)
		log.Infof("crawler stopped")
	}()

	dnsErrCh := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		dnsErrCh <- srv.ListenAndServe(ctx)
	}()

	// An unbindable DNS socket is a fatal startup error, not a background
	// failure to log and ignore: stop() cancels ctx so the crawler also
	// unwinds, and the error is threaded back through run()'s return so
	// main() exits non-zero.
	var dnsErr error
	select {
	case <-ctx.Done():
		log.Infof("shutdown requested, waiting for subsystems")
	case dnsErr = <-dnsErrCh:
		if dnsErr != nil {
			log.Errorf("dns server failed: %v", dnsErr)
		}
		stop()
	}

	wg.Wait()

	if err := cat.Shutdown(); err != nil {
		return fmt.Errorf("flushing catalog: %w", err)
	}
	if dnsErr != nil {
		return fmt.Errorf("dns server: %w", dnsErr)
	}

	log.Infof("seeder shutdown complete")
	return nil
}
