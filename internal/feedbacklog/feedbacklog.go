// Package feedbacklog writes the append-only structured CSV log of
// decision+feedback tuples used for offline evaluation.
package feedbacklog

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Columns is the contractual CSV header, in order. The DecisionID column
// is additive — appended after the contractual columns so existing offline
// tooling that reads the first 15 fields is unaffected.
var Columns = []string{
	"timestamp_server", "sim_time_client", "client_lat", "client_lon",
	"server_used_for_latency", "experienced_latency_ms_CLIENT",
	"experienced_latency_ms_ORACLE", "experienced_latency_ms",
	"all_servers_oracle_latency_json", "steering_decision_main_server",
	"rl_strategy", "rl_counts_json", "rl_actual_counts_json", "rl_values_json",
	"gamma_value",
	"decision_id",
}

// Record is one row of the log. Pointer fields are nullable to represent
// "not applicable for this call" (e.g. latency fields on a location-only
// update).
type Record struct {
	TimestampServer string
	SimTimeClient   *float64
	ClientLat       *float64
	ClientLon       *float64

	ServerUsedForLatency       string
	ExperiencedLatencyMsClient *float64
	ExperiencedLatencyMsOracle *float64

	AllServersOracleLatency map[string]float64
	SteeringDecisionMain    string

	RLStrategy     string
	RLCounts       map[string]float64
	RLActualCounts map[string]float64
	RLValues       map[string]float64
	GammaValue     *float64
}

// Logger is a single append-only CSV writer, one per process run.
type Logger struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
	path   string
}

// Open resolves log_<strategy><suffix>_<N>.csv under dir, where N is the
// lowest integer making the filename non-existent at startup, and writes
// the header row.
func Open(dir, strategy, suffix string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("feedbacklog: failed to create log dir %s: %w", dir, err)
	}

	path, err := resolvePath(dir, strategy, suffix)
	if err != nil {
		return nil, err
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("feedbacklog: failed to create log file %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(Columns); err != nil {
		f.Close()
		return nil, fmt.Errorf("feedbacklog: failed to write header: %w", err)
	}
	w.Flush()

	return &Logger{file: f, writer: w, path: path}, nil
}

func resolvePath(dir, strategy, suffix string) (string, error) {
	for n := 0; ; n++ {
		name := fmt.Sprintf("log_%s%s_%d.csv", strategy, suffix, n)
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		} else if err != nil {
			return "", fmt.Errorf("feedbacklog: failed to stat %s: %w", path, err)
		}
	}
}

// Path returns the resolved log file path.
func (l *Logger) Path() string {
	return l.path
}

// Write appends one row, assigning it a fresh decision ID for offline
// correlation with the /coords call that produced it.
func (l *Logger) Write(rec Record) (decisionID string, err error) {
	row, id, err := toRow(rec)
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writer.Write(row); err != nil {
		return "", fmt.Errorf("feedbacklog: failed to write row: %w", err)
	}
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		return "", fmt.Errorf("feedbacklog: flush failed: %w", err)
	}
	return id, nil
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer.Flush()
	return l.file.Close()
}

func toRow(rec Record) ([]string, string, error) {
	id := uuid.NewString()

	countsJSON, err := marshalOrEmpty(rec.RLCounts)
	if err != nil {
		return nil, "", err
	}
	actualCountsJSON, err := marshalOrEmpty(rec.RLActualCounts)
	if err != nil {
		return nil, "", err
	}
	valuesJSON, err := marshalOrEmpty(rec.RLValues)
	if err != nil {
		return nil, "", err
	}
	allLatenciesJSON, err := marshalOrEmpty(rec.AllServersOracleLatency)
	if err != nil {
		return nil, "", err
	}

	experiencedMs := ""
	if rec.ExperiencedLatencyMsOracle != nil {
		experiencedMs = formatFloat(*rec.ExperiencedLatencyMsOracle)
	}

	return []string{
		rec.TimestampServer,
		formatFloatPtr(rec.SimTimeClient),
		formatFloatPtr(rec.ClientLat),
		formatFloatPtr(rec.ClientLon),
		rec.ServerUsedForLatency,
		formatFloatPtr(rec.ExperiencedLatencyMsClient),
		formatFloatPtr(rec.ExperiencedLatencyMsOracle),
		experiencedMs,
		allLatenciesJSON,
		rec.SteeringDecisionMain,
		rec.RLStrategy,
		countsJSON,
		actualCountsJSON,
		valuesJSON,
		formatFloatPtr(rec.GammaValue),
		id,
	}, id, nil
}

func marshalOrEmpty(m map[string]float64) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("feedbacklog: failed to marshal json column: %w", err)
	}
	return string(b), nil
}

func formatFloatPtr(f *float64) string {
	if f == nil {
		return ""
	}
	return formatFloat(*f)
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}
