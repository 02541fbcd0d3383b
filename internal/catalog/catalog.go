// Package catalog implements the peer catalog (C4): a concurrent, persisted
// address book with a NEW/GOOD/STALE/EXPIRED lifecycle, prune/dump
// background tasks, and the read paths the crawler and DNS responder use.
//
// Grounded on other_examples' decred-dcrseeder Manager: the map-plus-mutex
// shape, the addressHandler ticker loop, and the temp-file-and-rename dump
// are all carried over; the lifecycle itself is generalized from the
// teacher's binary good/stale split to a fuller NEW/GOOD/STALE/EXPIRED
// machine driven purely off timestamps.
package catalog

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/pkg/errors"

	"github.com/Tondi-Foundation/Kaseeder/internal/logctx"
	"github.com/Tondi-Foundation/Kaseeder/internal/routability"
)

// Stats summarizes the catalog's contents for observability.
type Stats struct {
	Total   int
	Good    int
	Stale   int
	New     int
	Expired int
	IPv4    int
	IPv6    int
}

// Catalog is the concurrently-accessed peer store.
type Catalog struct {
	mu    sync.RWMutex
	nodes map[string]*Node

	path string
	now  func() time.Time
	log  *logctx.Logger

	quit     chan struct{}
	wg       sync.WaitGroup
	started  bool
	stopOnce sync.Once
}

// Option configures a Catalog at construction time.
type Option func(*Catalog)

// WithClock overrides the time source; used by tests to avoid real sleeps.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) { c.now = now }
}

// New creates a Catalog backed by the peers file at path, eagerly creating
// and validating its parent directory so an unusable data dir surfaces
// immediately as a startup error rather than at the first background dump.
// If the peers file exists it is loaded; a malformed file also aborts New
// (callers decide whether that's fatal).
func New(path string, opts ...Option) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrapf(err, "creating app dir for %s", path)
	}

	c := &Catalog{
		nodes: make(map[string]*Node),
		path:  path,
		now:   time.Now,
		log:   logctx.New("catalog"),
		quit:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.load(); err != nil {
		return nil, errors.Wrap(err, "loading catalog")
	}
	return c, nil
}

// Start launches the background pruner and dumper tasks.
func (c *Catalog) Start() {
	c.wg.Add(1)
	go c.backgroundLoop()
	c.started = true
}

// Shutdown flushes the catalog to disk and stops background tasks. Safe to
// call even if Start was never called.
func (c *Catalog) Shutdown() error {
	c.stopOnce.Do(func() { close(c.quit) })
	if c.started {
		c.wg.Wait()
	}
	return c.dump()
}

func (c *Catalog) backgroundLoop() {
	defer c.wg.Done()

	pruneTicker := time.NewTicker(PruneTick)
	defer pruneTicker.Stop()
	dumpTicker := time.NewTicker(DumpTick)
	defer dumpTicker.Stop()

	for {
		select {
		case <-pruneTicker.C:
			c.prune()
		case <-dumpTicker.C:
			if err := c.dump(); err != nil {
				c.log.Errorf("dump failed, will retry next tick: %v", err)
			}
		case <-c.quit:
			return
		}
	}
}

// Add inserts or touches addrs. For each address with a non-zero port that
// is either routable or accepted unconditionally (acceptUnroutable, used
// for operator-supplied known peers and the --seeder host; DNS seed results
// and gossip are not accepted unconditionally), a new Node is inserted with
// LastSeen=now, or an existing Node's LastSeen is advanced. Returns the
// count of newly inserted nodes.
func (c *Catalog) Add(addrs []NetAddress, acceptUnroutable bool) int {
	now := c.now()
	added := 0

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, addr := range addrs {
		if addr.Port == 0 {
			continue
		}
		if !acceptUnroutable && !routability.IsRoutable(addr.IP, addr.Port) {
			continue
		}
		key := addr.Key()
		if existing, ok := c.nodes[key]; ok {
			existing.LastSeen = now
			continue
		}
		c.nodes[key] = &Node{
			Address:  addr,
			LastSeen: now,
		}
		added++
	}
	return added
}

// DueForProbe returns at most n addresses to probe next, preferring NEW
// (never-succeeded) nodes before STALE ones. Iteration order within a tier
// is unspecified (map order).
func (c *Catalog) DueForProbe(n int) []NetAddress {
	if n <= 0 {
		return nil
	}
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	var newTier, staleTier []NetAddress
	for _, node := range c.nodes {
		if !isStale(node, now) {
			continue
		}
		if isNew(node) {
			newTier = append(newTier, node.Address)
		} else {
			staleTier = append(staleTier, node.Address)
		}
	}

	out := make([]NetAddress, 0, n)
	for _, a := range newTier {
		if len(out) >= n {
			return out
		}
		out = append(out, a)
	}
	for _, a := range staleTier {
		if len(out) >= n {
			return out
		}
		out = append(out, a)
	}
	return out
}

// MarkAttempt records an attempted probe against addr.
func (c *Catalog) MarkAttempt(addr NetAddress) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if node, ok := c.nodes[addr.Key()]; ok {
		node.LastAttempt = now
		node.Attempts++
	}
}

// MarkGood records a successful handshake against addr.
func (c *Catalog) MarkGood(addr NetAddress, userAgent, subnetworkID string, services uint64) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	node, ok := c.nodes[addr.Key()]
	if !ok {
		node = &Node{Address: addr, LastSeen: now}
		c.nodes[addr.Key()] = node
	}
	node.LastSuccess = now
	if now.After(node.LastSeen) {
		node.LastSeen = now
	}
	node.UserAgent = userAgent
	node.SubnetworkID = subnetworkID
	node.Services = services
}

// TouchSeen advances LastSeen for addr without implying a successful
// contact; unknown addresses are ignored. The crawler's gossip path uses
// Add, which advances LastSeen for already-tracked addresses itself.
func (c *Catalog) TouchSeen(addr NetAddress) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if node, ok := c.nodes[addr.Key()]; ok {
		node.LastSeen = now
	}
}

// GoodAddresses returns up to DefaultMaxAnswers good addresses matching
// qtype (dns.TypeA or dns.TypeAAAA) and, unless includeAllSubnetworks,
// matching subnetworkID exactly.
func (c *Catalog) GoodAddresses(qtype uint16, includeAllSubnetworks bool, subnetworkID string) []NetAddress {
	if qtype != dns.TypeA && qtype != dns.TypeAAAA {
		return nil
	}
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]NetAddress, 0, DefaultMaxAnswers)
	for _, node := range c.nodes {
		if len(out) >= DefaultMaxAnswers {
			break
		}
		if qtype == dns.TypeA && !node.Address.IsIPv4() {
			continue
		}
		if qtype == dns.TypeAAAA && node.Address.IsIPv4() {
			continue
		}
		if !isGood(node, now) {
			continue
		}
		if !includeAllSubnetworks && node.SubnetworkID != subnetworkID {
			continue
		}
		out = append(out, node.Address)
	}
	return out
}

// Total returns the current node count.
func (c *Catalog) Total() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.nodes)
}

// AllNodes returns a snapshot copy of every node, for observability.
func (c *Catalog) AllNodes() []Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Node, 0, len(c.nodes))
	for _, n := range c.nodes {
		out = append(out, *n)
	}
	return out
}

// Stats summarizes the catalog by lifecycle state, mirroring the pruner's
// log line in the teacher's addressHandler.
func (c *Catalog) Stats() Stats {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()

	var s Stats
	s.Total = len(c.nodes)
	for _, n := range c.nodes {
		if n.Address.IsIPv4() {
			s.IPv4++
		} else {
			s.IPv6++
		}
		switch state(n, now) {
		case StateGood:
			s.Good++
		case StateStale:
			s.Stale++
		case StateNew:
			s.New++
		case StateExpired:
			s.Expired++
		}
	}
	return s
}

func (c *Catalog) prune() {
	now := c.now()
	c.mu.Lock()
	before := len(c.nodes)
	for key, node := range c.nodes {
		if isExpired(node, now) {
			delete(c.nodes, key)
		}
	}
	after := len(c.nodes)
	c.mu.Unlock()

	s := c.Stats()
	c.log.Infof("pruned %d, %d good, %d stale, %d new, %d expired, %d ipv4, %d ipv6, %d total",
		before-after, s.Good, s.Stale, s.New, s.Expired, s.IPv4, s.IPv6, s.Total)
}
