package feedbacklog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
)

func f64(v float64) *float64 { return &v }

func TestOpenResolvesIncrementingFilenames(t *testing.T) {
	dir := t.TempDir()

	l1, err := Open(dir, "epsilon_greedy", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer l1.Close()
	if filepath.Base(l1.Path()) != "log_epsilon_greedy_0.csv" {
		t.Fatalf("path = %s, want log_epsilon_greedy_0.csv", l1.Path())
	}

	l2, err := Open(dir, "epsilon_greedy", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer l2.Close()
	if filepath.Base(l2.Path()) != "log_epsilon_greedy_1.csv" {
		t.Fatalf("path = %s, want log_epsilon_greedy_1.csv", l2.Path())
	}
}

func TestWriteProducesOneRowPerCall(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, "ucb1", "_run1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer l.Close()

	for i := 0; i < 3; i++ {
		if _, err := l.Write(Record{
			TimestampServer:            "2026-01-01T00:00:00Z",
			ServerUsedForLatency:       "cache-1",
			ExperiencedLatencyMsOracle: f64(42.5),
			RLStrategy:                 "ucb1",
		}); err != nil {
			t.Fatalf("Write() error: %v", err)
		}
	}

	f, err := os.Open(l.Path())
	if err != nil {
		t.Fatalf("failed to open log file: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to read csv: %v", err)
	}
	if len(rows) != 4 { // header + 3 rows
		t.Fatalf("rows = %d, want 4 (header + 3)", len(rows))
	}
	for _, row := range rows {
		if len(row) != len(Columns) {
			t.Fatalf("row has %d columns, want %d", len(row), len(Columns))
		}
	}
}

func TestWriteAssignsUniqueDecisionIDs(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, "random", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer l.Close()

	id1, err := l.Write(Record{TimestampServer: "t1"})
	if err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	id2, err := l.Write(Record{TimestampServer: "t2"})
	if err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if id1 == "" || id2 == "" || id1 == id2 {
		t.Fatalf("expected distinct non-empty decision IDs, got %q and %q", id1, id2)
	}
}
