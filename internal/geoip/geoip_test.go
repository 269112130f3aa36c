package geoip

import (
	"net/netip"
	"testing"
)

func TestNewServiceEmptyPathIsNoOp(t *testing.T) {
	s, err := NewService("", "0 7 * * *", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, _, ok := s.Lookup(netip.MustParseAddr("1.2.3.4"))
	if ok {
		t.Fatal("expected no-op service to never resolve a location")
	}
}

func TestNewServiceRejectsBadCronSchedule(t *testing.T) {
	if _, err := NewService("/nonexistent.mmdb", "not a cron expr", NoOpOpen); err == nil {
		t.Fatal("expected error for invalid cron schedule")
	}
}
