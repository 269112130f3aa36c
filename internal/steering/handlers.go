package steering

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/steering/content-steering/internal/geo"
)

const movementDistanceThresholdKm = 0.05
const movementMinElapsed = 900 * time.Millisecond

func (f *Front) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (f *Front) currentArmNames() []string {
	nodes := f.nodes.Nodes()
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.Name
	}
	return names
}

// handleManifest serves GET/POST /<path>: the steering decision endpoint.
func (f *Front) handleManifest(w http.ResponseWriter, r *http.Request) {
	names := f.currentArmNames()
	f.selector.Initialize(names)
	if len(names) == 0 {
		writeError(w, http.StatusServiceUnavailable, "SERVICE_NOT_READY", "no cache nodes known yet")
		return
	}

	ranked := f.selector.SelectArm()
	if len(ranked) == 0 {
		writeError(w, http.StatusServiceUnavailable, "NO_SELECTABLE_SERVER", "selector returned no arms")
		return
	}

	f.mu.Lock()
	f.lastDecision = ranked[0]
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, buildManifest(r, ranked))
}

type coordsRequest struct {
	Time       *float64 `json:"time"`
	Lat        *float64 `json:"lat"`
	Long       *float64 `json:"long"`
	RT         *float64 `json:"rt"`
	ServerUsed *string  `json:"server_used"`
}

// handleCoords serves POST /coords: client feedback ingestion.
func (f *Front) handleCoords(w http.ResponseWriter, r *http.Request) {
	var body coordsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "malformed JSON body")
		return
	}

	hasLoc := body.Lat != nil && body.Long != nil
	var lat, lon float64
	if hasLoc {
		lat, lon = *body.Lat, *body.Long
	} else if f.geoSvc != nil {
		if glat, glon, ok := f.resolveGeoIP(r); ok {
			lat, lon, hasLoc = glat, glon, true
		}
	}

	isMoving := false
	if hasLoc {
		f.oracle.UpdateClientLocation(lat, lon)
		isMoving = f.evaluateMovement(lat, lon)
	}

	allLatencies := f.oracle.GetAllCurrentLatencies()

	hasFeedback := body.ServerUsed != nil && body.RT != nil
	switch {
	case hasFeedback:
		f.handleFeedback(w, *body.ServerUsed, allLatencies, isMoving, *body.RT, lat, lon, hasLoc, body.Time)
	case hasLoc:
		if _, err := f.logger.Write(locationOnlyRecord(lat, lon, body.Time)); err != nil {
			log.Printf("steering: failed to log location-only row: %v", err)
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	default:
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "neither location nor feedback supplied")
	}
}

func (f *Front) handleFeedback(w http.ResponseWriter, serverUsed string, allLatencies map[string]float64, isMoving bool, clientRT, lat, lon float64, hasLoc bool, simTime *float64) {
	names := f.currentArmNames()
	f.selector.Initialize(names)
	if !contains(names, serverUsed) {
		writeError(w, http.StatusBadRequest, "UNKNOWN_ARM", "server_used is not a known cache")
		return
	}

	oracleLatency, ok := allLatencies[serverUsed]
	if !ok {
		oracleLatency = f.oracle.GetCurrentLatency(serverUsed)
	}

	var gamma *float64
	if f.envAware != nil {
		shock := f.envAware.CheckLatencyShock(serverUsed, oracleLatency)
		f.envAware.UpdateEnvironmentalState(isMoving, shock)
	}
	f.selector.Update(serverUsed, oracleLatency)
	if f.envAware != nil {
		g := f.envAware.CurrentGamma()
		gamma = &g
	}

	f.mu.Lock()
	decision := f.lastDecision
	f.mu.Unlock()

	rec := feedbackRecord(feedbackRecordArgs{
		lat: lat, lon: lon, hasLoc: hasLoc,
		serverUsed: serverUsed, clientRT: clientRT, oracleLatency: oracleLatency,
		allLatencies: allLatencies, decision: decision,
		strategy: f.strategy, counts: f.selector.Counts(), values: f.selector.Values(),
		realCounts: envRealCounts(f.envAware), gamma: gamma, simTime: simTime,
	})
	if _, err := f.logger.Write(rec); err != nil {
		log.Printf("steering: failed to log feedback row: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged"})
}

func envRealCounts(ea interface {
	RealCounts() map[string]float64
}) map[string]float64 {
	if ea == nil {
		return nil
	}
	return ea.RealCounts()
}

func contains(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// evaluateMovement updates the tracked client pose and reports whether the
// client moved more than movementDistanceThresholdKm since a stored pose
// that is at least movementMinElapsed old. A newer stored pose is left as
// it is and the call reports no movement.
func (f *Front) evaluateMovement(lat, lon float64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	prev := f.lastPose
	if !prev.valid || now.Sub(prev.at) < movementMinElapsed {
		if !prev.valid {
			f.lastPose = clientPoseTuple{lat: lat, lon: lon, at: now, valid: true}
		}
		return false
	}

	dist := geo.HaversineKm(prev.lat, prev.lon, lat, lon)
	f.lastPose = clientPoseTuple{lat: lat, lon: lon, at: now, valid: true}
	return dist > movementDistanceThresholdKm
}

func (f *Front) resolveGeoIP(r *http.Request) (lat, lon float64, ok bool) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return 0, 0, false
	}
	return f.geoSvc.Lookup(addr)
}

type latencyEventRequest struct {
	ServerName      string  `json:"server_name"`
	Factor          float64 `json:"factor"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// handleLatencyEvent serves POST /latency_event: operator-injected events.
func (f *Front) handleLatencyEvent(w http.ResponseWriter, r *http.Request) {
	var body latencyEventRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "malformed JSON body")
		return
	}
	if body.ServerName == "" || body.Factor <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "server_name and a positive factor are required")
		return
	}

	f.oracle.ApplyEventModifier(body.ServerName, body.Factor, body.DurationSeconds)
	if f.verbose {
		log.Printf("steering: applied latency event on %s factor=%v duration=%vs", body.ServerName, body.Factor, body.DurationSeconds)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}
