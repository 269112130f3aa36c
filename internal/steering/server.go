package steering

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/steering/content-steering/internal/bandit"
	"github.com/steering/content-steering/internal/feedbacklog"
	"github.com/steering/content-steering/internal/geoip"
	"github.com/steering/content-steering/internal/nodemonitor"
)

// NodeSource is the subset of the node monitor's contract the front-end
// depends on.
type NodeSource interface {
	Nodes() []nodemonitor.Node
}

// LatencySource is the subset of the latency oracle's contract the
// front-end depends on.
type LatencySource interface {
	UpdateClientLocation(lat, lon float64)
	GetCurrentLatency(name string) float64
	GetAllCurrentLatencies() map[string]float64
	ApplyEventModifier(name string, factor, durationSec float64)
}

// Front composes the node monitor, latency oracle, and bandit selector
// behind the HTTP steering surface.
type Front struct {
	nodes    NodeSource
	oracle   LatencySource
	selector bandit.Selector
	envAware bandit.EnvironmentalAware // non-nil only when selector is D-UCB
	logger   *feedbacklog.Logger
	geoSvc   *geoip.Service
	strategy string
	verbose  bool

	mu           sync.Mutex
	lastDecision string
	lastPose     clientPoseTuple

	handler    http.Handler
	httpServer *http.Server
}

type clientPoseTuple struct {
	lat, lon float64
	at       time.Time
	valid    bool
}

// Config bundles Front's construction dependencies.
type Config struct {
	Nodes      NodeSource
	Oracle     LatencySource
	Selector   bandit.Selector
	Logger     *feedbacklog.Logger
	GeoIP      *geoip.Service
	Strategy   string
	AdminToken string
	MaxBody    int64
	Verbose    bool
}

// NewFront builds a Front and its HTTP handler. Routes are split across
// a public mux and an authed submux: /latency_event alone requires the
// admin token (when configured), everything else is open to DASH clients.
func NewFront(cfg Config) *Front {
	f := &Front{
		nodes:    cfg.Nodes,
		oracle:   cfg.Oracle,
		selector: cfg.Selector,
		logger:   cfg.Logger,
		geoSvc:   cfg.GeoIP,
		strategy: cfg.Strategy,
		verbose:  cfg.Verbose,
	}
	if ea, ok := cfg.Selector.(bandit.EnvironmentalAware); ok {
		f.envAware = ea
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", http.HandlerFunc(f.handleHealthz))
	mux.Handle("POST /coords", http.HandlerFunc(f.handleCoords))

	authed := http.NewServeMux()
	authed.Handle("POST /latency_event", http.HandlerFunc(f.handleLatencyEvent))
	mux.Handle("/latency_event", AuthMiddleware(cfg.AdminToken, authed))

	// Everything else (GET/POST /<path>) is the steering manifest route.
	mux.Handle("/", http.HandlerFunc(f.handleManifest))

	f.handler = RequestBodyLimitMiddleware(cfg.MaxBody, mux)
	return f
}

// Handler returns the root http.Handler, including body-limit and auth
// middleware, suitable for http.Server.Handler or httptest.
func (f *Front) Handler() http.Handler {
	return f.handler
}

// ListenAndServe starts the HTTP server on addr. Blocks until the server
// stops.
func (f *Front) ListenAndServe(addr string) error {
	f.httpServer = &http.Server{Addr: addr, Handler: f.handler}
	return f.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (f *Front) Shutdown(ctx context.Context) error {
	if f.httpServer == nil {
		return nil
	}
	return f.httpServer.Shutdown(ctx)
}
