package steering

import (
	"time"

	"github.com/steering/content-steering/internal/feedbacklog"
)

// locationOnlyRecord builds a log row for a /coords call that carried a
// client position but no server feedback.
func locationOnlyRecord(lat, lon float64, simTime *float64) feedbacklog.Record {
	return feedbacklog.Record{
		TimestampServer: time.Now().UTC().Format(time.RFC3339Nano),
		SimTimeClient:   simTime,
		ClientLat:       &lat,
		ClientLon:       &lon,
	}
}

type feedbackRecordArgs struct {
	lat, lon      float64
	hasLoc        bool
	serverUsed    string
	clientRT      float64
	oracleLatency float64
	allLatencies  map[string]float64
	decision      string
	strategy      string
	counts        map[string]float64
	values        map[string]float64
	realCounts    map[string]float64
	gamma         *float64
	simTime       *float64
}

// feedbackRecord builds a log row for a /coords call reporting feedback on
// a server that was actually used.
func feedbackRecord(a feedbackRecordArgs) feedbacklog.Record {
	rec := feedbacklog.Record{
		TimestampServer:            time.Now().UTC().Format(time.RFC3339Nano),
		SimTimeClient:              a.simTime,
		ServerUsedForLatency:       a.serverUsed,
		ExperiencedLatencyMsClient: &a.clientRT,
		ExperiencedLatencyMsOracle: &a.oracleLatency,
		AllServersOracleLatency:    a.allLatencies,
		SteeringDecisionMain:       a.decision,
		RLStrategy:                 a.strategy,
		RLCounts:                   a.counts,
		RLActualCounts:             a.realCounts,
		RLValues:                   a.values,
		GammaValue:                 a.gamma,
	}
	if a.hasLoc {
		rec.ClientLat = &a.lat
		rec.ClientLon = &a.lon
	}
	return rec
}
