package steering

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/steering/content-steering/internal/bandit"
	"github.com/steering/content-steering/internal/feedbacklog"
	"github.com/steering/content-steering/internal/nodemonitor"
)

type fakeNodes struct {
	nodes []nodemonitor.Node
}

func (f *fakeNodes) Nodes() []nodemonitor.Node { return f.nodes }

type fakeOracle struct {
	latencies map[string]float64
	events    []string
}

func (f *fakeOracle) UpdateClientLocation(lat, lon float64) {}
func (f *fakeOracle) GetCurrentLatency(name string) float64 { return f.latencies[name] }
func (f *fakeOracle) GetAllCurrentLatencies() map[string]float64 {
	return f.latencies
}
func (f *fakeOracle) ApplyEventModifier(name string, factor, durationSec float64) {
	f.events = append(f.events, name)
}

func newTestLogger(t *testing.T) *feedbacklog.Logger {
	t.Helper()
	dir := t.TempDir()
	l, err := feedbacklog.Open(dir, "test_strategy", "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func newTestFront(t *testing.T, selector bandit.Selector, nodes []nodemonitor.Node, latencies map[string]float64) (*Front, *fakeOracle) {
	t.Helper()
	oracle := &fakeOracle{latencies: latencies}
	f := NewFront(Config{
		Nodes:    &fakeNodes{nodes: nodes},
		Oracle:   oracle,
		Selector: selector,
		Logger:   newTestLogger(t),
		Strategy: "test_strategy",
		MaxBody:  1 << 20,
	})
	return f, oracle
}

func TestHandleManifest_NotReady(t *testing.T) {
	f, _ := newTestFront(t, bandit.NewNoSteering(), nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/out.m3u8", nil)
	w := httptest.NewRecorder()
	f.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleManifest_Shape(t *testing.T) {
	nodes := []nodemonitor.Node{{Name: "cache-1", Address: "10.0.0.1"}, {Name: "cache-2", Address: "10.0.0.2"}}
	f, _ := newTestFront(t, bandit.NewNoSteering(), nodes, nil)

	req := httptest.NewRequest(http.MethodGet, "/out.m3u8", nil)
	w := httptest.NewRecorder()
	f.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var m Manifest
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if len(m.PathwayPriority) != 3 || m.PathwayPriority[2] != baselinePathway {
		t.Fatalf("unexpected pathway priority: %+v", m.PathwayPriority)
	}
	if len(m.PathwayClones) != 2 {
		t.Fatalf("expected 2 pathway clones, got %d", len(m.PathwayClones))
	}
	if m.ReloadURI == "" {
		t.Fatal("expected non-empty reload uri")
	}
}

func TestHandleCoords_RejectsEmptyBody(t *testing.T) {
	nodes := []nodemonitor.Node{{Name: "cache-1"}}
	f, _ := newTestFront(t, bandit.NewNoSteering(), nodes, nil)

	req := httptest.NewRequest(http.MethodPost, "/coords", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	f.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleCoords_LocationOnly(t *testing.T) {
	nodes := []nodemonitor.Node{{Name: "cache-1"}}
	f, _ := newTestFront(t, bandit.NewNoSteering(), nodes, nil)

	body := `{"lat": 37.0, "long": -122.0}`
	req := httptest.NewRequest(http.MethodPost, "/coords", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	f.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleCoords_Feedback(t *testing.T) {
	nodes := []nodemonitor.Node{{Name: "cache-1"}, {Name: "cache-2"}}
	sel := bandit.NewEpsilonGreedy(func() float64 { return 0.1 })
	f, _ := newTestFront(t, sel, nodes, map[string]float64{"cache-1": 42})

	body := `{"lat": 37.0, "long": -122.0, "server_used": "cache-1", "rt": 50}`
	req := httptest.NewRequest(http.MethodPost, "/coords", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	f.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	counts := sel.Counts()
	if counts["cache-1"] != 1 {
		t.Fatalf("expected cache-1 count 1, got %+v", counts)
	}
}

func TestHandleCoords_UnknownArmRejected(t *testing.T) {
	nodes := []nodemonitor.Node{{Name: "cache-1"}}
	f, _ := newTestFront(t, bandit.NewNoSteering(), nodes, nil)

	body := `{"server_used": "cache-ghost", "rt": 50}`
	req := httptest.NewRequest(http.MethodPost, "/coords", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	f.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleLatencyEvent_RequiresAuthWhenConfigured(t *testing.T) {
	nodes := []nodemonitor.Node{{Name: "cache-1"}}
	oracle := &fakeOracle{latencies: map[string]float64{}}
	f := NewFront(Config{
		Nodes:      &fakeNodes{nodes: nodes},
		Oracle:     oracle,
		Selector:   bandit.NewNoSteering(),
		Logger:     newTestLogger(t),
		Strategy:   "test_strategy",
		AdminToken: "secret",
		MaxBody:    1 << 20,
	})

	body := `{"server_name": "cache-1", "factor": 2.5, "duration_seconds": 10}`
	req := httptest.NewRequest(http.MethodPost, "/latency_event", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	f.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/latency_event", bytes.NewBufferString(body))
	req2.Header.Set("Authorization", "Bearer secret")
	w2 := httptest.NewRecorder()
	f.Handler().ServeHTTP(w2, req2)
	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", w2.Code, w2.Body.String())
	}
	if len(oracle.events) != 1 || oracle.events[0] != "cache-1" {
		t.Fatalf("expected event applied to cache-1, got %+v", oracle.events)
	}
}

func TestReloadURIHonorsForwardedHeaders(t *testing.T) {
	nodes := []nodemonitor.Node{{Name: "cache-1", Address: "10.0.0.1"}}
	f, _ := newTestFront(t, bandit.NewNoSteering(), nodes, nil)

	req := httptest.NewRequest(http.MethodGet, "/vod/manifest", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Host", "steering.example.com")
	w := httptest.NewRecorder()
	f.Handler().ServeHTTP(w, req)

	var m Manifest
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if m.ReloadURI != "https://steering.example.com/vod/manifest" {
		t.Fatalf("ReloadURI = %q, want forwarded scheme/host with request path", m.ReloadURI)
	}
}

func TestEvaluateMovement(t *testing.T) {
	nodes := []nodemonitor.Node{{Name: "cache-1"}}
	f, _ := newTestFront(t, bandit.NewNoSteering(), nodes, nil)

	// First observation only seeds the stored pose.
	if f.evaluateMovement(-23.0, -47.0) {
		t.Fatal("first observation should never count as movement")
	}

	// Too soon after the stored pose: no movement, pose unchanged.
	if f.evaluateMovement(-23.0, -47.01) {
		t.Fatal("observation within the elapsed-time floor should not count as movement")
	}

	// Age the stored pose past the floor; ~1km shift is movement.
	f.mu.Lock()
	f.lastPose.at = time.Now().Add(-time.Second)
	f.mu.Unlock()
	if !f.evaluateMovement(-23.0, -47.01) {
		t.Fatal("expected a ~1km shift after 1s to count as movement")
	}

	// A stationary client after the floor is not moving.
	f.mu.Lock()
	f.lastPose.at = time.Now().Add(-time.Second)
	f.mu.Unlock()
	if f.evaluateMovement(-23.0, -47.01) {
		t.Fatal("stationary client should not count as moving")
	}
}

func TestHandleCoords_DUCBFeedbackUpdatesRealCounts(t *testing.T) {
	nodes := []nodemonitor.Node{{Name: "cache-1"}, {Name: "cache-2"}}
	sel := bandit.NewDUCB(false)
	f, _ := newTestFront(t, sel, nodes, map[string]float64{"cache-1": 30, "cache-2": 40})

	body := `{"lat": -23.0, "long": -47.0, "server_used": "cache-1", "rt": 35}`
	req := httptest.NewRequest(http.MethodPost, "/coords", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	f.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if f.envAware == nil {
		t.Fatal("expected the front-end to detect the environmental capability")
	}
	real := sel.RealCounts()
	if real["cache-1"] != 1 {
		t.Fatalf("expected cache-1 actual count 1, got %+v", real)
	}
}

func TestHandleLatencyEvent_ValidatesFactor(t *testing.T) {
	nodes := []nodemonitor.Node{{Name: "cache-1"}}
	f, _ := newTestFront(t, bandit.NewNoSteering(), nodes, nil)

	body := `{"server_name": "cache-1", "factor": 0}`
	req := httptest.NewRequest(http.MethodPost, "/latency_event", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	f.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
