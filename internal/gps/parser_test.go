package gps

import (
	"math"
	"testing"
	"time"
)

func almost(t *testing.T, got, want, tol float64, what string) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s = %v, want %v (±%v)", what, got, want, tol)
	}
}

func TestIngestRMCActive(t *testing.T) {
	s := NewState()
	s.Ingest("$GPRMC,123519,A,4807.038,N,01131.000,W,022.4,084.4,110825,003.1,W*6A")

	fix, _ := s.Snapshot()
	if fix.Status != StatusValid {
		t.Fatalf("status = %q, want %q", fix.Status, StatusValid)
	}
	almost(t, fix.Latitude, 48.1173, 1e-4, "latitude")
	almost(t, fix.Longitude, -11.516667, 1e-4, "longitude")
	almost(t, fix.SpeedKnots, 22.4, 1e-9, "speed knots")
	almost(t, fix.SpeedKmh, 41.4848, 1e-3, "speed kmh")
	almost(t, fix.Course, 84.4, 1e-9, "course")
	if fix.TimeUTC != "12:35:19" {
		t.Errorf("time = %q, want 12:35:19", fix.TimeUTC)
	}
	if fix.Date != "2025-08-11" {
		t.Errorf("date = %q, want 2025-08-11", fix.Date)
	}
}

func TestIngestRMCInactiveKeepsPosition(t *testing.T) {
	s := NewState()
	s.Ingest("$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,110825,003.1,W*6A")
	s.Ingest("$GPRMC,123520,V,,,,,,,110825,,*52")

	fix, _ := s.Snapshot()
	if fix.Status != StatusNoFix {
		t.Fatalf("status after void sentence = %q, want %q", fix.Status, StatusNoFix)
	}
	// Sparse update: the void sentence carries no position, so the last
	// good coordinates survive.
	almost(t, fix.Latitude, 48.1173, 1e-4, "latitude")
	almost(t, fix.Longitude, 11.516667, 1e-4, "longitude")
	if fix.TimeUTC != "12:35:20" {
		t.Errorf("time = %q, want 12:35:20", fix.TimeUTC)
	}
}

func TestIngestGGA(t *testing.T) {
	s := NewState()
	s.Ingest("$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47")

	fix, _ := s.Snapshot()
	if fix.Quality != "GPS Fix" {
		t.Errorf("quality = %q, want GPS Fix", fix.Quality)
	}
	if fix.SatellitesUsed != 8 {
		t.Errorf("satellites used = %d, want 8", fix.SatellitesUsed)
	}
	almost(t, fix.HDOP, 0.9, 1e-9, "hdop")
	almost(t, fix.Altitude, 545.4, 1e-9, "altitude")
}

func TestIngestGSAStripsChecksumFromVDOP(t *testing.T) {
	s := NewState()
	s.Ingest("$GPGSA,A,3,04,05,,09,12,,,24,,,,,1.8,1.0,2.3*39")

	fix, _ := s.Snapshot()
	if fix.Status != Status3D {
		t.Errorf("status = %q, want %q", fix.Status, Status3D)
	}
	almost(t, fix.PDOP, 1.8, 1e-9, "pdop")
	almost(t, fix.HDOP, 1.0, 1e-9, "hdop")
	almost(t, fix.VDOP, 2.3, 1e-9, "vdop")
}

func TestIngestGSV(t *testing.T) {
	s := NewState()
	s.Ingest("$GPGSV,2,1,08,01,40,083,46,02,17,308,41,12,07,344,39,14,22,228,45*75")
	s.Ingest("$GPGSV,2,2,08,03,12,110,30,06,05,050,25,09,30,200,33,22,15,270,28*70")
	s.Ingest("$GLGSV,1,1,03,65,60,100,40,66,30,210,35,77,10,330,22*5C")

	fix, _ := s.Snapshot()
	if fix.SatellitesInView != 3 {
		t.Errorf("satellites in view = %d, want 3 (first message of latest sequence)", fix.SatellitesInView)
	}
	want := []string{"GPS", "GLONASS"}
	if len(fix.Systems) != len(want) {
		t.Fatalf("systems = %v, want %v", fix.Systems, want)
	}
	for i := range want {
		if fix.Systems[i] != want[i] {
			t.Errorf("systems[%d] = %q, want %q", i, fix.Systems[i], want[i])
		}
	}
}

func TestIngestGSVContinuationSkipsCount(t *testing.T) {
	s := NewState()
	s.Ingest("$GPGSV,2,1,08,01,40,083,46,02,17,308,41,12,07,344,39,14,22,228,45*75")
	s.Ingest("$GPGSV,2,2,11,03,12,110,30,06,05,050,25,09,30,200,33*70")

	fix, _ := s.Snapshot()
	if fix.SatellitesInView != 8 {
		t.Errorf("satellites in view = %d, want 8 (continuation must not update the count)", fix.SatellitesInView)
	}
}

func TestIngestRejectsUnframedLines(t *testing.T) {
	s := NewState()
	lines := []string{
		"",
		"OK",
		"+QGPSLOC: no fix",
		"$GPRMC,123519,A",               // no checksum suffix
		"$XXRMC,123519,A,4807.038,N*11", // wrong talker prefix
		"$GPXTE,A,A,0.67,L,N*6F",        // framed but unrecognized kind
	}
	for _, line := range lines {
		s.Ingest(line)
	}
	if got := s.ParseMisses(); got != uint64(len(lines)) {
		t.Errorf("parse misses = %d, want %d", got, len(lines))
	}
	fix, _ := s.Snapshot()
	if !fix.LastUpdate.IsZero() {
		t.Error("rejected lines must not touch the update timestamp")
	}
}

func TestIngestTruncatedSentenceIsAMiss(t *testing.T) {
	s := NewState()
	// Framed and of a recognized kind, but too few fields to carry data.
	truncated := []string{
		"$GPRMC,123519,A*28",
		"$GPGGA,123519,4807.038,N*47",
		"$GPGSA,A,3*39",
		"$GPGSV,2*75",
	}
	for _, line := range truncated {
		s.Ingest(line)
	}
	if got := s.ParseMisses(); got != uint64(len(truncated)) {
		t.Errorf("parse misses = %d, want %d", got, len(truncated))
	}
	fix, _ := s.Snapshot()
	if !fix.LastUpdate.IsZero() {
		t.Error("a truncated sentence must not refresh the staleness age")
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	s := NewState()
	s.Ingest("$GPGSV,2,1,08,01,40,083,46*75")

	fix1, _ := s.Snapshot()
	fix1.Systems[0] = "mutated"
	fix2, _ := s.Snapshot()
	if fix2.Systems[0] != "GPS" {
		t.Error("snapshot shares the systems slice with live state")
	}
}

func TestSnapshotAge(t *testing.T) {
	s := NewState()
	base := time.Date(2025, 8, 11, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	s.Ingest("$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47")

	s.now = func() time.Time { return base.Add(42 * time.Second) }
	_, age := s.Snapshot()
	if age != 42*time.Second {
		t.Errorf("age = %v, want 42s", age)
	}
}

func TestDefaultsBeforeFirstSentence(t *testing.T) {
	s := NewState()
	fix, age := s.Snapshot()
	if fix.Status != StatusNoFix || fix.Quality != "Unknown" || fix.TimeUTC != "N/A" || fix.Date != "N/A" {
		t.Errorf("unexpected defaults: %+v", fix)
	}
	if fix.HasFix() {
		t.Error("default state must not claim a fix")
	}
	if age != 0 {
		t.Errorf("age before first update = %v, want 0", age)
	}
}
