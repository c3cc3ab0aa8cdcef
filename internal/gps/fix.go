// Package gps maintains the fused GPS fix from a live NMEA stream.
//
// The fix record is updated incrementally: each recognized sentence kind
// overwrites only the fields it carries, so a field missing from the most
// recent sentence keeps its previous value. The record starts at safe
// defaults and is never wholly invalid.
package gps

import (
	"sync"
	"time"
)

// Fix status values. GSA reports the coarse 1/2/3 fix type, RMC reports
// plain validity; both write the same field, last writer wins.
const (
	StatusNoFix = "No Fix"
	Status2D    = "2D Fix"
	Status3D    = "3D Fix"
	StatusValid = "Valid Fix"
)

// GGA fix-quality indicator lookup.
var qualityNames = map[string]string{
	"0": "No Fix",
	"1": "GPS Fix",
	"2": "DGPS Fix",
	"3": "PPS Fix",
	"4": "RTK Fix",
	"5": "Float RTK",
	"6": "Estimated",
	"7": "Manual",
	"8": "Simulation",
}

// Fix is the fused navigation state.
type Fix struct {
	Status           string    `json:"fix_status"`
	Quality          string    `json:"signal_quality"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	Altitude         float64   `json:"altitude"`
	SpeedKnots       float64   `json:"speed_knots"`
	SpeedKmh         float64   `json:"speed_kmh"`
	Course           float64   `json:"course"`
	SatellitesUsed   int       `json:"satellites_used"`
	SatellitesInView int       `json:"satellites_view"`
	HDOP             float64   `json:"hdop"`
	PDOP             float64   `json:"pdop"`
	VDOP             float64   `json:"vdop"`
	TimeUTC          string    `json:"time_utc"`
	Date             string    `json:"date"`
	Systems          []string  `json:"satellite_systems"`
	LastUpdate       time.Time `json:"last_update"`
}

// HasFix reports whether the receiver currently claims any usable fix.
func (f *Fix) HasFix() bool {
	return f.Status == StatusValid || f.Status == Status2D || f.Status == Status3D
}

// State owns the mutable fix. All access goes through Ingest and
// Snapshot; callers never hold a reference into live state.
type State struct {
	mu        sync.Mutex
	fix       Fix
	parseMiss uint64
	now       func() time.Time
}

// NewState returns a state at safe defaults (no fix, zero numerics).
func NewState() *State {
	return &State{
		fix: Fix{
			Status:  StatusNoFix,
			Quality: "Unknown",
			TimeUTC: "N/A",
			Date:    "N/A",
		},
		now: time.Now,
	}
}

// Snapshot returns a value copy of the fix and its age. The age is zero
// until the first successful update.
func (s *State) Snapshot() (Fix, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fix := s.fix
	fix.Systems = append([]string(nil), s.fix.Systems...)
	var age time.Duration
	if !fix.LastUpdate.IsZero() {
		age = s.now().Sub(fix.LastUpdate)
	}
	return fix, age
}

// ParseMisses returns how many ingested lines were dropped as
// unframed or unrecognized.
func (s *State) ParseMisses() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parseMiss
}
