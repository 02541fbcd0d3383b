package catalog

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

const neverSentinel = "never"

// timestamp marshals a time.Time as RFC 3339, or the sentinel "never" for
// the zero value, tolerating both forms on load.
type timestamp time.Time

func (t timestamp) MarshalJSON() ([]byte, error) {
	tt := time.Time(t)
	if tt.IsZero() {
		return json.Marshal(neverSentinel)
	}
	return json.Marshal(tt.Format(time.RFC3339Nano))
}

func (t *timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" || s == neverSentinel {
		*t = timestamp(time.Time{})
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return err
		}
	}
	*t = timestamp(parsed)
	return nil
}

type persistedAddress struct {
	IP   string `json:"ip"`
	Port uint16 `json:"port"`
}

type persistedNode struct {
	Address      persistedAddress `json:"address"`
	LastSeen     timestamp        `json:"last_seen"`
	LastAttempt  timestamp        `json:"last_attempt"`
	LastSuccess  timestamp        `json:"last_success"`
	UserAgent    *string          `json:"user_agent,omitempty"`
	SubnetworkID *string          `json:"subnetwork_id,omitempty"`
	Services     uint64           `json:"services"`
}

type persistedEntry struct {
	Key  string        `json:"key"`
	Node persistedNode `json:"node"`
}

func toPersisted(n *Node) persistedEntry {
	p := persistedEntry{
		Key: n.Key(),
		Node: persistedNode{
			Address: persistedAddress{
				IP:   n.Address.IP.String(),
				Port: n.Address.Port,
			},
			LastSeen:    timestamp(n.LastSeen),
			LastAttempt: timestamp(n.LastAttempt),
			LastSuccess: timestamp(n.LastSuccess),
			Services:    n.Services,
		},
	}
	if n.UserAgent != "" {
		ua := n.UserAgent
		p.Node.UserAgent = &ua
	}
	if n.SubnetworkID != "" {
		sid := n.SubnetworkID
		p.Node.SubnetworkID = &sid
	}
	return p
}

func fromPersisted(p persistedEntry) (*Node, error) {
	ip := net.ParseIP(p.Node.Address.IP)
	if ip == nil {
		return nil, errors.Errorf("malformed peers file: invalid ip %q", p.Node.Address.IP)
	}
	n := &Node{
		Address: NetAddress{
			IP:   ip,
			Port: p.Node.Address.Port,
		},
		LastSeen:    time.Time(p.Node.LastSeen),
		LastAttempt: time.Time(p.Node.LastAttempt),
		LastSuccess: time.Time(p.Node.LastSuccess),
		Services:    p.Node.Services,
	}
	if p.Node.UserAgent != nil {
		n.UserAgent = *p.Node.UserAgent
	}
	if p.Node.SubnetworkID != nil {
		n.SubnetworkID = *p.Node.SubnetworkID
	}
	return n, nil
}

// load reads the catalog's peers file if present. A missing file is not an
// error (first run); a malformed file is.
func (c *Catalog) load() error {
	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "opening peers file %s", c.path)
	}
	defer f.Close()

	var entries []persistedEntry
	if err := json.NewDecoder(f).Decode(&entries); err != nil {
		return errors.Wrapf(err, "decoding peers file %s", c.path)
	}

	nodes := make(map[string]*Node, len(entries))
	for _, e := range entries {
		n, err := fromPersisted(e)
		if err != nil {
			return err
		}
		nodes[e.Key] = n
	}

	c.mu.Lock()
	c.nodes = nodes
	c.mu.Unlock()

	c.log.Infof("loaded %d nodes from %s", len(nodes), c.path)
	return nil
}

// dump serializes the catalog to a temp file and atomically renames it into
// place, creating the parent directory on demand.
func (c *Catalog) dump() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return errors.Wrapf(err, "creating app dir for %s", c.path)
	}

	c.mu.RLock()
	entries := make([]persistedEntry, 0, len(c.nodes))
	for _, n := range c.nodes {
		entries = append(entries, toPersisted(n))
	}
	c.mu.RUnlock()

	tmpPath := c.path + ".new"
	f, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrapf(err, "creating temp peers file %s", tmpPath)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		f.Close()
		return errors.Wrapf(err, "encoding peers file %s", tmpPath)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "closing temp peers file %s", tmpPath)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return errors.Wrapf(err, "renaming %s to %s", tmpPath, c.path)
	}

	c.log.Infof("dumped %d nodes to %s", len(entries), c.path)
	return nil
}
