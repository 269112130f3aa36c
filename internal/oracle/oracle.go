// Package oracle implements the dynamic latency oracle: a background
// simulator that produces a live latency estimate per cache, combining a
// base value, client-distance penalty, gaussian noise, and transient event
// modifiers.
package oracle

import (
	"log"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/steering/content-steering/internal/geo"
	"github.com/steering/content-steering/internal/nodemonitor"
	"github.com/steering/content-steering/internal/scanloop"
)

const (
	msPerKm     = 0.0250
	sigmaFactor = 0.15
	minLatency  = 5.0
)

var defaultBaseLatencies = map[string]float64{
	"cache-1": 30,
	"cache-2": 25,
	"cache-3": 125,
}

// Lister abstracts over the node monitor for the oracle's own sync step.
type Lister interface {
	Nodes() []nodemonitor.Node
	NodeCoordinates() map[string][2]float64
}

// eventModifier is a transient multiplicative latency modifier.
type eventModifier struct {
	factor    float64
	expiresAt time.Time // zero value means "sticky, never auto-clears"
}

func (m eventModifier) active() bool {
	return m.factor != 1.0 || !m.expiresAt.IsZero()
}

type state struct {
	baseLatencyMs    float64
	currentLatencyMs float64
	lat, lon         *float64
	modifier         eventModifier
}

// ClientPose is the client's last known geographic position.
type ClientPose struct {
	Lat, Lon float64
	At       time.Time
}

// Oracle maintains per-cache simulated latency state.
type Oracle struct {
	lister   Lister
	interval time.Duration
	verbose  bool

	// mu guards every field of every *state held in states. The map is
	// only safe for its own key/value operations; the structs its values
	// point at are mutated by the tick loop and by HTTP-triggered calls,
	// so all of their readers and writers take mu.
	mu     sync.Mutex
	states *xsync.Map[string, *state]
	pose   atomicPose

	stopCh  chan struct{}
	doneCh  chan struct{}
	startMu sync.Mutex
	running bool
}

// atomicPose guards ClientPose with a plain mutex; read/update frequency
// is low enough (one per tick, one per /coords call) that a mutex beats a
// lock-free structure in clarity here.
type atomicPose struct {
	mu   sync.Mutex
	pose ClientPose
}

func (p *atomicPose) get() ClientPose {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pose
}

func (p *atomicPose) set(pose ClientPose) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pose = pose
}

// New builds an Oracle. interval is clamped to a minimum of 500ms per the
// tick-rate floor.
func New(lister Lister, interval time.Duration, verbose bool) *Oracle {
	if interval < 500*time.Millisecond {
		interval = 500 * time.Millisecond
	}
	o := &Oracle{
		lister:   lister,
		interval: interval,
		verbose:  verbose,
		states:   xsync.NewMap[string, *state](),
	}
	o.pose.set(ClientPose{Lat: -23.0, Lon: -47.0, At: time.Time{}})
	return o
}

// UpdateClientLocation records the client's latest position. Non-blocking;
// a no-op if either coordinate is NaN.
func (o *Oracle) UpdateClientLocation(lat, lon float64) {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return
	}
	o.pose.set(ClientPose{Lat: lat, Lon: lon, At: time.Now()})
}

// CurrentPose returns the oracle's last recorded client position.
func (o *Oracle) CurrentPose() ClientPose {
	return o.pose.get()
}

// Start begins the background tick loop.
func (o *Oracle) Start() {
	o.startMu.Lock()
	defer o.startMu.Unlock()
	if o.running {
		return
	}
	o.running = true
	o.stopCh = make(chan struct{})
	o.doneCh = make(chan struct{})
	go func() {
		defer close(o.doneCh)
		scanloop.Run(o.stopCh, o.interval, 0, o.tick)
	}()
}

// Stop blocks until the tick loop exits, with a bounded timeout.
func (o *Oracle) Stop() {
	o.startMu.Lock()
	defer o.startMu.Unlock()
	if !o.running {
		return
	}
	close(o.stopCh)
	select {
	case <-o.doneCh:
	case <-time.After(o.interval + time.Second):
		log.Printf("oracle: Stop timed out waiting for tick loop to exit")
	}
	o.running = false
}

func (o *Oracle) tick() {
	if o.lister == nil {
		return
	}
	nodes := o.lister.Nodes()
	if len(nodes) == 0 {
		// Failure semantics: no nodes means retain previous state.
		return
	}
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.Name
	}
	coords := o.lister.NodeCoordinates()

	o.mu.Lock()
	defer o.mu.Unlock()

	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		seen[name] = struct{}{}
		st, ok := o.states.Load(name)
		if !ok {
			base, known := defaultBaseLatencies[name]
			if !known {
				base = 10 + rand.Float64()*20 // uniform[10,30]
			}
			st = &state{
				baseLatencyMs:    base,
				currentLatencyMs: base,
				modifier:         eventModifier{factor: 1.0},
			}
			o.states.Store(name, st)
		}
		if c, ok := coords[name]; ok {
			lat, lon := c[0], c[1]
			st.lat, st.lon = &lat, &lon
		} else {
			st.lat, st.lon = nil, nil
		}
	}

	var stale []string
	o.states.Range(func(name string, _ *state) bool {
		if _, ok := seen[name]; !ok {
			stale = append(stale, name)
		}
		return true
	})
	for _, name := range stale {
		o.states.Delete(name)
	}

	pose := o.pose.get()
	now := time.Now()
	for _, name := range names {
		st, ok := o.states.Load(name)
		if !ok {
			continue
		}
		o.recompute(st, pose, now)
	}
}

func (o *Oracle) recompute(st *state, pose ClientPose, now time.Time) {
	effectiveBase := st.baseLatencyMs
	if st.lat != nil && st.lon != nil {
		dist := geo.HaversineKm(pose.Lat, pose.Lon, *st.lat, *st.lon)
		effectiveBase += dist * msPerKm
	}

	factor := st.modifier.factor
	if !st.modifier.expiresAt.IsZero() && !now.Before(st.modifier.expiresAt) {
		st.modifier = eventModifier{factor: 1.0}
		factor = 1.0
	}

	sigma := math.Max(1, effectiveBase) * sigmaFactor
	noise := rand.NormFloat64() * sigma
	pre := math.Max(minLatency, effectiveBase+noise)
	st.currentLatencyMs = pre * factor
}

// GetCurrentLatency returns the current simulated latency for name. If the
// cache is unknown it attempts a one-shot sync, then falls back to a
// random value in [50,150] with a warning.
func (o *Oracle) GetCurrentLatency(name string) float64 {
	if ms, ok := o.currentLatency(name); ok {
		return ms
	}
	o.tick()
	if ms, ok := o.currentLatency(name); ok {
		return ms
	}
	log.Printf("oracle: unknown cache %q, returning fallback latency", name)
	return 50 + rand.Float64()*100
}

// currentLatency must not be called with mu held: its caller may fall
// through to tick, which takes mu itself.
func (o *Oracle) currentLatency(name string) (float64, bool) {
	st, ok := o.states.Load(name)
	if !ok {
		return 0, false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return st.currentLatencyMs, true
}

// GetAllCurrentLatencies returns a snapshot of name -> latency ms.
func (o *Oracle) GetAllCurrentLatencies() map[string]float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]float64)
	o.states.Range(func(name string, st *state) bool {
		out[name] = st.currentLatencyMs
		return true
	})
	return out
}

// ApplyEventModifier sets a transient (or sticky, if durationSec<=0)
// latency multiplier for name.
func (o *Oracle) ApplyEventModifier(name string, factor float64, durationSec float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.states.Load(name)
	if !ok {
		st = &state{baseLatencyMs: 10 + rand.Float64()*20}
		st.currentLatencyMs = st.baseLatencyMs
		st.modifier = eventModifier{factor: 1.0}
		o.states.Store(name, st)
	}
	var expiresAt time.Time
	if durationSec > 0 {
		expiresAt = time.Now().Add(time.Duration(durationSec * float64(time.Second)))
	}
	st.modifier = eventModifier{factor: factor, expiresAt: expiresAt}
	if o.verbose {
		log.Printf("oracle: applied event modifier on %s: factor=%v duration=%vs", name, factor, durationSec)
	}
}

// IsAnyEventActive reports whether any cache currently has a non-identity
// event modifier.
func (o *Oracle) IsAnyEventActive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	active := false
	o.states.Range(func(_ string, st *state) bool {
		if st.modifier.active() {
			active = true
			return false
		}
		return true
	})
	return active
}
