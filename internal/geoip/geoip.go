// Package geoip provides an optional fallback that resolves an
// approximate client position from a request's IP address when a
// /coords call omits lat/lon.
package geoip

import (
	"fmt"
	"log"
	"net"
	"net/netip"
	"sync"

	"github.com/oschwald/maxminddb-golang"
	"github.com/robfig/cron/v3"
)

// Reader abstracts the GeoIP database reader, so tests can substitute a
// stub without a real mmdb file.
type Reader interface {
	Lookup(ip netip.Addr) (lat, lon float64, ok bool)
	Close() error
}

// OpenFunc opens a GeoIP database file and returns a Reader.
type OpenFunc func(path string) (Reader, error)

type noOpReader struct{}

func (noOpReader) Lookup(_ netip.Addr) (float64, float64, bool) { return 0, 0, false }
func (noOpReader) Close() error                                 { return nil }

// NoOpOpen is a placeholder OpenFunc for tests and for running without a
// configured database.
func NoOpOpen(_ string) (Reader, error) { return noOpReader{}, nil }

type cityRecord struct {
	Location struct {
		Latitude  float64 `maxminddb:"latitude"`
		Longitude float64 `maxminddb:"longitude"`
	} `maxminddb:"location"`
}

type mmdbReader struct {
	reader *maxminddb.Reader
}

func (m *mmdbReader) Lookup(ip netip.Addr) (float64, float64, bool) {
	if m == nil || m.reader == nil || !ip.IsValid() {
		return 0, 0, false
	}
	var rec cityRecord
	if err := m.reader.Lookup(net.IP(ip.Unmap().AsSlice()), &rec); err != nil {
		return 0, 0, false
	}
	if rec.Location.Latitude == 0 && rec.Location.Longitude == 0 {
		return 0, 0, false
	}
	return rec.Location.Latitude, rec.Location.Longitude, true
}

func (m *mmdbReader) Close() error {
	if m == nil || m.reader == nil {
		return nil
	}
	return m.reader.Close()
}

// MMDBOpen opens a MaxMind GeoLite2-City-compatible database.
func MMDBOpen(path string) (Reader, error) {
	reader, err := maxminddb.Open(path)
	if err != nil {
		return nil, err
	}
	return &mmdbReader{reader: reader}, nil
}

// Service wraps a hot-reloadable GeoIP Reader, refreshed on a cron
// schedule so an operator can replace the database file without a
// restart.
type Service struct {
	mu     sync.RWMutex
	reader Reader

	path   string
	openDB OpenFunc
	cron   *cron.Cron
}

// NewService builds a Service bound to the given database path and cron
// schedule. If path is empty the service behaves as a permanent no-op.
func NewService(path, schedule string, openDB OpenFunc) (*Service, error) {
	if openDB == nil {
		openDB = MMDBOpen
	}
	s := &Service{path: path, openDB: openDB, reader: noOpReader{}}
	if path == "" {
		return s, nil
	}

	if err := s.reload(); err != nil {
		log.Printf("geoip: initial load failed, falling back to no-op: %v", err)
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if err := s.reload(); err != nil {
			log.Printf("geoip: scheduled reload failed: %v", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("geoip: invalid cron schedule %q: %w", schedule, err)
	}
	s.cron = c
	c.Start()
	return s, nil
}

func (s *Service) reload() error {
	r, err := s.openDB(s.path)
	if err != nil {
		return fmt.Errorf("geoip: open %s: %w", s.path, err)
	}
	s.mu.Lock()
	old := s.reader
	s.reader = r
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

// Lookup resolves an approximate (lat, lon) for ip.
func (s *Service) Lookup(ip netip.Addr) (lat, lon float64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader.Lookup(ip)
}

// Stop stops the cron scheduler and closes the underlying reader.
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reader != nil {
		s.reader.Close()
	}
	s.reader = noOpReader{}
}
