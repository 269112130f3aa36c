// Package nodemonitor keeps the live set of cache nodes in sync with the
// deployment, tracking each node's address, geo-coordinates, and a bounded
// history of resource-usage samples.
package nodemonitor

import (
	"log"
	"sync"
	"time"

	"github.com/maypok86/otter"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/steering/content-steering/internal/scanloop"
)

// historySize is the number of samples retained per node.
const historySize = 10

// Node is one running cache: a stable logical name, its current address,
// and optional geo-coordinates.
type Node struct {
	Name    string
	Address string
	Lat     *float64
	Lon     *float64
}

// Sample is one per-tick observation for a node.
type Sample struct {
	CPUPercent float64
	MemPercent float64
	RxBytes    int64
	TxBytes    int64
	RxRateBps  float64
	TxRateBps  float64
	Address    string
	Lat        *float64
	Lon        *float64
	ObservedAt time.Time
}

// Lister enumerates currently running cache nodes. Implementations: a
// Kubernetes-backed production lister and a static YAML-backed test
// harness lister.
type Lister interface {
	List() ([]Node, error)
}

type ring struct {
	mu      sync.Mutex
	samples []Sample // most recent last, bounded to historySize
	prev    *Sample  // previous sample for byte-rate deltas
}

func newRing() *ring {
	return &ring{samples: make([]Sample, 0, historySize)}
}

func (r *ring) push(s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.samples) == historySize {
		copy(r.samples, r.samples[1:])
		r.samples = r.samples[:historySize-1]
	}
	r.samples = append(r.samples, s)
	r.prev = &s
}

func (r *ring) last() (Sample, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.samples) == 0 {
		return Sample{}, false
	}
	return r.samples[len(r.samples)-1], true
}

// Monitor periodically enumerates running cache nodes and keeps a bounded
// history of stats samples per node.
type Monitor struct {
	lister   Lister
	interval time.Duration
	verbose  bool

	nodes   *xsync.Map[string, Node]
	history otter.Cache[string, *ring]
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
	startMu sync.Mutex
}

// New builds a Monitor. A non-positive interval falls back to the 2s
// default.
func New(lister Lister, interval time.Duration, verbose bool) *Monitor {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	cache, err := otter.MustBuilder[string, *ring](4096).
		Cost(func(_ string, _ *ring) uint32 { return 1 }).
		Build()
	if err != nil {
		panic("nodemonitor: failed to create history cache: " + err.Error())
	}
	return &Monitor{
		lister:   lister,
		interval: interval,
		verbose:  verbose,
		nodes:    xsync.NewMap[string, Node](),
		history:  cache,
	}
}

// Start begins the background tick loop. Idempotent; a no-op if the
// monitor has no usable lister.
func (m *Monitor) Start() {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	if m.running {
		return
	}
	if m.lister == nil {
		log.Printf("nodemonitor: Start called without a lister; no-op")
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})

	go func() {
		defer close(m.doneCh)
		scanloop.Run(m.stopCh, m.interval, 0, m.tick)
	}()
}

// Stop blocks until the tick loop exits, with a bounded timeout.
func (m *Monitor) Stop() {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	if !m.running {
		return
	}
	close(m.stopCh)
	select {
	case <-m.doneCh:
	case <-time.After(m.interval + time.Second):
		log.Printf("nodemonitor: Stop timed out waiting for tick loop to exit")
	}
	m.running = false
}

func (m *Monitor) tick() {
	found, err := m.lister.List()
	if err != nil {
		log.Printf("nodemonitor: list failed, keeping previous state: %v", err)
		return
	}

	seen := make(map[string]struct{}, len(found))
	now := time.Now()
	for _, n := range found {
		seen[n.Name] = struct{}{}
		m.nodes.Store(n.Name, n)

		r, ok := m.history.Get(n.Name)
		if !ok {
			r = newRing()
			m.history.Set(n.Name, r)
		}

		sample := Sample{Address: n.Address, Lat: n.Lat, Lon: n.Lon, ObservedAt: now}
		r.mu.Lock()
		if r.prev != nil {
			dt := now.Sub(r.prev.ObservedAt).Seconds()
			if dt > 0 {
				sample.RxRateBps = float64(sample.RxBytes-r.prev.RxBytes) / dt
				sample.TxRateBps = float64(sample.TxBytes-r.prev.TxBytes) / dt
			}
		}
		r.mu.Unlock()
		r.push(sample)

		if m.verbose {
			log.Printf("nodemonitor: observed %s at %s", n.Name, n.Address)
		}
	}

	// Drop nodes absent from this tick.
	var stale []string
	m.nodes.Range(func(name string, _ Node) bool {
		if _, ok := seen[name]; !ok {
			stale = append(stale, name)
		}
		return true
	})
	for _, name := range stale {
		m.nodes.Delete(name)
		m.history.Delete(name)
	}
}

// Nodes returns a snapshot of (name, address) pairs for nodes with a
// resolved address.
func (m *Monitor) Nodes() []Node {
	var out []Node
	m.nodes.Range(func(_ string, n Node) bool {
		if n.Address != "" {
			out = append(out, n)
		}
		return true
	})
	return out
}

// NodeCoordinates returns a snapshot of name -> (lat, lon) for nodes whose
// geo-labels were supplied.
func (m *Monitor) NodeCoordinates() map[string][2]float64 {
	out := make(map[string][2]float64)
	m.nodes.Range(func(name string, n Node) bool {
		if n.Lat != nil && n.Lon != nil {
			out[name] = [2]float64{*n.Lat, *n.Lon}
		}
		return true
	})
	return out
}

// NodeData returns the named field of the node's most recent sample, or
// nil if the node or field is unknown.
func (m *Monitor) NodeData(name, key string) any {
	r, ok := m.history.Get(name)
	if !ok {
		return nil
	}
	s, ok := r.last()
	if !ok {
		return nil
	}
	switch key {
	case "cpu_percent":
		return s.CPUPercent
	case "mem_percent":
		return s.MemPercent
	case "rx_bytes":
		return s.RxBytes
	case "tx_bytes":
		return s.TxBytes
	case "rx_rate_bps":
		return s.RxRateBps
	case "tx_rate_bps":
		return s.TxRateBps
	case "address":
		return s.Address
	default:
		return nil
	}
}
