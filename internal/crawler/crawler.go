// Package crawler implements the crawler scheduler (C5): a bounded-
// concurrency loop that draws candidates from the catalog (C4), drives the
// P2P client (C3), writes results back to the catalog, and bootstraps via
// the DNS seed resolver (C2) when the catalog is empty.
//
// Grounded on dnsseed.go's creep() main loop (bootstrap-from-seed,
// wgCreep batch fan-out, per-peer timeout select) generalized around
// catalog.DueForProbe instead of the teacher's amgr.Addresses() linear
// scan, and original_source/src/crawler.rs's batch clamp / semaphore /
// adaptive backoff shape and checkversion.rs's tolerant version gate.
package crawler

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Tondi-Foundation/Kaseeder/internal/catalog"
	"github.com/Tondi-Foundation/Kaseeder/internal/logctx"
	"github.com/Tondi-Foundation/Kaseeder/internal/netparams"
	"github.com/Tondi-Foundation/Kaseeder/internal/p2p"
	"github.com/Tondi-Foundation/Kaseeder/internal/seeds"
)

const (
	MaxConcurrentPolls = 100
	CrawlerSleep       = 10 * time.Second
	MaxRetries         = 3
	MinBatchSize       = 20
	MaxBatchSize       = 50

	// SanityMaxProtocolVersion rejects peers reporting an implausibly high
	// protocol version, treating it as a misbehaving or lying peer rather
	// than a newer one.
	SanityMaxProtocolVersion = 100
)

// Stats tracks running counters for the scheduler's probe loop.
type Stats struct {
	PollsTotal    uint64
	PollsSuccess  uint64
	PollsFail     uint64
	LastBatchSize int
	AverageLatency time.Duration
}

// Config configures one Crawler. Threads sizes the round-robin P2P client
// pool; the in-flight probe count is separately bounded by
// MaxConcurrentPolls regardless of Threads.
type Config struct {
	Threads int

	KnownPeers string // comma-separated ip:port, operator-supplied and trusted
	Seeder     string // single bootstrap host or IP, resolved like a known peer

	MinProtocolVersion  uint32
	MinUserAgentVersion string

	UserAgentName    string
	UserAgentVersion string
	Network          string
	ProtocolVersions []uint32
}

// Crawler owns the scheduling loop. It is not safe to Run concurrently from
// two goroutines, but its Stats() may be read from any goroutine while
// running.
type Crawler struct {
	cfg     Config
	catalog *Catalog
	params  netparams.Params
	clients []*p2p.Client
	next    uint32 // round-robin cursor, accessed only from Run's goroutine

	lookup seeds.Lookup

	mu    sync.Mutex
	stats Stats

	log *logctx.Logger
}

// Catalog is the subset of *catalog.Catalog the crawler depends on,
// narrowed so tests can substitute a fake.
type Catalog interface {
	Add(addrs []catalog.NetAddress, acceptUnroutable bool) int
	DueForProbe(n int) []catalog.NetAddress
	MarkAttempt(addr catalog.NetAddress)
	MarkGood(addr catalog.NetAddress, userAgent, subnetworkID string, services uint64)
	Total() int
}

// New builds a Crawler with a rotating pool of cfg.Threads P2P clients.
func New(cfg Config, cat Catalog, params netparams.Params) *Crawler {
	threads := cfg.Threads
	if threads < 1 {
		threads = 1
	}
	clients := make([]*p2p.Client, threads)
	for i := range clients {
		clients[i] = p2p.NewClient(cfg.UserAgentName, cfg.UserAgentVersion, cfg.Network, cfg.ProtocolVersions)
	}
	return &Crawler{
		cfg:     cfg,
		catalog: cat,
		params:  params,
		clients: clients,
		log:     logctx.New("crawler"),
	}
}

// SetLookup overrides DNS resolution for bootstrap; nil restores
// net.LookupIP. Exposed for tests.
func (c *Crawler) SetLookup(l seeds.Lookup) { c.lookup = l }

// Bootstrap runs once before the main loop: known_peers and seeder are
// pushed into the catalog as trusted (accept_unroutable=true) and marked
// attempted and good without a probe, so they're DNS-answerable before the
// first full batch; the main loop probes them once they go stale.
func (c *Crawler) Bootstrap(ctx context.Context) {
	var known []catalog.NetAddress
	for _, raw := range strings.Split(c.cfg.KnownPeers, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		na, err := catalog.ParseNetAddress(raw)
		if err != nil {
			c.log.Warnf("ignoring malformed known peer %q: %v", raw, err)
			continue
		}
		known = append(known, na)
	}

	if seeder := strings.TrimSpace(c.cfg.Seeder); seeder != "" {
		if na, ok := c.resolveSeeder(seeder); ok {
			known = append(known, na)
		}
	}

	if len(known) == 0 {
		return
	}

	c.catalog.Add(known, true)
	for _, na := range known {
		c.catalog.MarkAttempt(na)
		c.catalog.MarkGood(na, "", "", 0)
	}
	c.log.Infof("bootstrap: seeded %d known peers", len(known))
}

// resolveSeeder accepts an ip:port, a literal IP, or a hostname, matching
// dnsseed.go's main()'s handling of cfg.Seeder. A bare IP or hostname gets
// the network's default port.
func (c *Crawler) resolveSeeder(seeder string) (catalog.NetAddress, bool) {
	if na, err := catalog.ParseNetAddress(seeder); err == nil {
		return na, true
	}
	if ip := net.ParseIP(seeder); ip != nil {
		return catalog.NetAddress{IP: ip, Port: c.params.DefaultPort}, true
	}
	lookup := c.lookup
	if lookup == nil {
		lookup = net.LookupIP
	}
	ips, err := lookup(seeder)
	if err != nil || len(ips) == 0 {
		c.log.Warnf("failed to resolve seed host %q, ignoring: %v", seeder, err)
		return catalog.NetAddress{}, false
	}
	return catalog.NetAddress{IP: ips[0], Port: c.params.DefaultPort}, true
}

// Run executes the main loop until ctx is cancelled. A shutdown request
// aborts at the next iteration boundary; in-flight probes are abandoned,
// their cost bounded by each client's ConnectTimeout+AddressesTimeout.
func (c *Crawler) Run(ctx context.Context) {
	sem := make(chan struct{}, MaxConcurrentPolls)

	for {
		if ctx.Err() != nil {
			return
		}

		batchSize := clamp(c.cfg.Threads, MinBatchSize, MaxBatchSize)
		peers := c.catalog.DueForProbe(batchSize)

		if len(peers) == 0 && c.catalog.Total() == 0 {
			c.bootstrapFromSeeds(ctx)
			peers = c.catalog.DueForProbe(batchSize)
		}

		if len(peers) == 0 {
			if !sleepOrDone(ctx, CrawlerSleep) {
				return
			}
			continue
		}

		successes := c.runBatch(ctx, sem, peers)

		var sleep time.Duration
		if successes > 0 {
			sleep = CrawlerSleep / 2
		} else {
			sleep = CrawlerSleep * 2
		}
		if !sleepOrDone(ctx, sleep) {
			return
		}
	}
}

func (c *Crawler) bootstrapFromSeeds(ctx context.Context) {
	resolved := seeds.Resolve(c.params, c.lookup)
	if len(resolved) == 0 {
		return
	}
	added := c.catalog.Add(resolved, false)
	c.log.Infof("seed bootstrap: resolved %d addresses, %d new", len(resolved), added)
}

// runBatch launches one probe task per peer under the semaphore and waits
// for the whole batch, returning the number of probes that succeeded.
func (c *Crawler) runBatch(ctx context.Context, sem chan struct{}, peers []catalog.NetAddress) int {
	var wg sync.WaitGroup
	var successes uint32
	var mu sync.Mutex
	var latencies []time.Duration

	for _, peer := range peers {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return int(successes)
		}

		client := c.nextClient()
		wg.Add(1)
		go func(peer catalog.NetAddress) {
			defer wg.Done()
			defer func() { <-sem }()

			start := time.Now()
			ok := c.probeOne(ctx, client, peer)
			elapsed := time.Since(start)

			mu.Lock()
			latencies = append(latencies, elapsed)
			mu.Unlock()

			if ok {
				atomic.AddUint32(&successes, 1)
			}
		}(peer)
	}
	wg.Wait()

	total := int(atomic.LoadUint32(&successes))
	c.recordBatch(len(peers), total, latencies)
	return total
}

func (c *Crawler) nextClient() *p2p.Client {
	i := c.next % uint32(len(c.clients))
	c.next++
	return c.clients[i]
}

// probeOne connects to one peer, retrying the handshake with exponential
// backoff on top of the client's own per-attempt Probe, then applies the
// version gate and records the result to the catalog.
func (c *Crawler) probeOne(ctx context.Context, client *p2p.Client, peer catalog.NetAddress) bool {
	c.catalog.MarkAttempt(peer)

	var (
		pv    p2p.PeerVersion
		addrs []catalog.NetAddress
		err   error
	)
	for attempt := 1; attempt <= MaxRetries; attempt++ {
		pv, addrs, err = client.Probe(ctx, peer)
		if err == nil {
			break
		}
		if attempt == MaxRetries {
			break
		}
		backoff := time.Duration(1<<(attempt-1)) * time.Second
		if !sleepOrDone(ctx, backoff) {
			return false
		}
	}
	if err != nil {
		c.log.Debugf("probe failed for %s: %v", peer, err)
		c.recordFailure()
		return false
	}

	if !c.acceptableVersion(pv) {
		c.log.Debugf("rejecting %s: version gate (protocol=%d, user_agent=%q)", peer, pv.ProtocolVersion, pv.UserAgent)
		c.recordFailure()
		return false
	}

	c.catalog.Add(addrs, false)
	c.catalog.MarkGood(peer, pv.UserAgent, pv.SubnetworkID, 0)
	c.recordSuccess()
	return true
}

// acceptableVersion gates a peer on a strict protocol-version floor and
// sanity ceiling, plus a lenient dotted-numeric user-agent floor that
// accepts the peer whenever either side fails to parse as a dotted-numeric
// version (original_source/src/checkversion.rs's "accept on parse failure").
func (c *Crawler) acceptableVersion(pv p2p.PeerVersion) bool {
	if c.cfg.MinProtocolVersion > 0 {
		if pv.ProtocolVersion < c.cfg.MinProtocolVersion {
			return false
		}
		if pv.ProtocolVersion > SanityMaxProtocolVersion {
			return false
		}
	}
	if c.cfg.MinUserAgentVersion != "" {
		if cmp, ok := compareDottedVersions(c.cfg.MinUserAgentVersion, extractVersion(pv.UserAgent)); ok {
			return cmp <= 0
		}
		// Parse failure on either side is treated as indeterminate, not a
		// rejection.
	}
	return true
}

func (c *Crawler) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.PollsTotal++
	c.stats.PollsSuccess++
}

func (c *Crawler) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.PollsTotal++
	c.stats.PollsFail++
}

func (c *Crawler) recordBatch(size, successes int, latencies []time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.LastBatchSize = size
	if len(latencies) == 0 {
		return
	}
	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	c.stats.AverageLatency = sum / time.Duration(len(latencies))
}

// Stats returns a snapshot of the running counters.
func (c *Crawler) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// sleepOrDone sleeps d, returning false immediately if ctx is cancelled
// first so the main loop can exit at the next iteration boundary.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// extractVersion pulls the dotted version out of a "/name:1.2.3/"
// user-agent string; it returns the whole string unchanged if it doesn't
// match that shape, so a malformed user agent still reaches the tolerant
// comparison (and fails to parse there, which accepts the peer).
func extractVersion(userAgent string) string {
	ua := strings.Trim(userAgent, "/")
	if idx := strings.LastIndex(ua, ":"); idx >= 0 {
		return ua[idx+1:]
	}
	return ua
}

// compareDottedVersions compares two dotted-numeric version strings
// (e.g. "1.2.3"), returning (-1, 0, 1) the way strings.Compare does. ok is
// false if either side fails to parse as a dotted-numeric version, at
// which point callers must treat the comparison as indeterminate.
func compareDottedVersions(a, b string) (cmp int, ok bool) {
	av, aok := parseDottedVersion(a)
	bv, bok := parseDottedVersion(b)
	if !aok || !bok {
		return 0, false
	}
	n := len(av)
	if len(bv) > n {
		n = len(bv)
	}
	for i := 0; i < n; i++ {
		var x, y int
		if i < len(av) {
			x = av[i]
		}
		if i < len(bv) {
			y = bv[i]
		}
		if x != y {
			if x < y {
				return -1, true
			}
			return 1, true
		}
	}
	return 0, true
}

func parseDottedVersion(s string) ([]int, bool) {
	if s == "" {
		return nil, false
	}
	parts := strings.Split(s, ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}
