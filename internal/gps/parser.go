package gps

import (
	"strconv"
	"strings"
)

// Ingest consumes one line of text from the receiver. Lines that do not
// carry NMEA framing ($...*hh) or do not match a recognized sentence
// kind are counted as parse misses and otherwise ignored; Ingest never
// fails to the caller.
func (s *State) Ingest(line string) {
	line = strings.TrimSpace(line)
	if !framed(line) {
		s.miss()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var applied bool
	switch {
	case strings.Contains(line, "RMC"):
		applied = s.parseRMC(line)
	case strings.Contains(line, "GGA"):
		applied = s.parseGGA(line)
	case strings.Contains(line, "GSA"):
		applied = s.parseGSA(line)
	case strings.Contains(line, "GSV"):
		applied = s.parseGSV(line)
	}
	// A truncated sentence of a recognized kind is still a miss, and it
	// must not reset the staleness age.
	if !applied {
		s.parseMiss++
		return
	}
	s.fix.LastUpdate = s.now()
}

// framed reports whether line looks like $<talker+type>,...*hh. The
// checksum value itself is not verified; receivers behind an AT-command
// multiplexer occasionally recompute it wrong and the field-level sparse
// parse already tolerates garbage.
func framed(line string) bool {
	if len(line) < 9 || line[0] != '$' || line[1] != 'G' {
		return false
	}
	// Talker+type code before the first comma: $GPRMC, $GNGGA, ...
	comma := strings.IndexByte(line, ',')
	if comma < 4 {
		return false
	}
	star := strings.LastIndexByte(line, '*')
	if star < comma || len(line)-star != 3 {
		return false
	}
	for _, c := range line[star+1:] {
		if !isHex(byte(c)) {
			return false
		}
	}
	return true
}

func isHex(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'A' && c <= 'F' || c >= 'a' && c <= 'f'
}

func (s *State) miss() {
	s.mu.Lock()
	s.parseMiss++
	s.mu.Unlock()
}

// parseRMC handles position/velocity sentences (GPRMC, GNRMC, ...).
// Position fields are applied only while the validity flag is active.
func (s *State) parseRMC(line string) bool {
	parts := strings.Split(line, ",")
	if len(parts) < 12 {
		return false
	}

	if t := parts[1]; len(t) >= 6 {
		s.fix.TimeUTC = t[:2] + ":" + t[2:4] + ":" + t[4:6]
	}

	active := parts[2] == "A"
	if active {
		s.fix.Status = StatusValid
	} else {
		s.fix.Status = StatusNoFix
	}

	if active {
		if lat, ok := parseCoordinate(parts[3], parts[4], 2); ok {
			if lon, ok := parseCoordinate(parts[5], parts[6], 3); ok {
				s.fix.Latitude = lat
				s.fix.Longitude = lon
			}
		}
		if kn, ok := parseFloat(parts[7]); ok {
			s.fix.SpeedKnots = kn
			s.fix.SpeedKmh = kn * 1.852
		}
		if crs, ok := parseFloat(parts[8]); ok {
			s.fix.Course = crs
		}
		if d := parts[9]; len(d) >= 6 {
			s.fix.Date = "20" + d[4:6] + "-" + d[2:4] + "-" + d[:2]
		}
	}
	return true
}

// parseGGA handles fix-quality sentences.
func (s *State) parseGGA(line string) bool {
	parts := strings.Split(line, ",")
	if len(parts) < 15 {
		return false
	}
	if name, ok := qualityNames[parts[6]]; ok {
		s.fix.Quality = name
	}
	if n, ok := parseInt(parts[7]); ok {
		s.fix.SatellitesUsed = n
	}
	if v, ok := parseFloat(parts[8]); ok {
		s.fix.HDOP = v
	}
	if v, ok := parseFloat(parts[9]); ok {
		s.fix.Altitude = v
	}
	return true
}

// parseGSA handles DOP/fix-type sentences. The last field carries the
// checksum suffix, which is stripped before the numeric parse.
func (s *State) parseGSA(line string) bool {
	parts := strings.Split(line, ",")
	if len(parts) < 18 {
		return false
	}
	switch parts[2] {
	case "1":
		s.fix.Status = StatusNoFix
	case "2":
		s.fix.Status = Status2D
	case "3":
		s.fix.Status = Status3D
	}
	if v, ok := parseFloat(parts[15]); ok {
		s.fix.PDOP = v
	}
	if v, ok := parseFloat(parts[16]); ok {
		s.fix.HDOP = v
	}
	vdop, _, _ := strings.Cut(parts[17], "*")
	if v, ok := parseFloat(vdop); ok {
		s.fix.VDOP = v
	}
	return true
}

// parseGSV handles satellites-in-view sentences. Only the first message
// of a multi-message sequence updates the in-view count; later messages
// repeat stale totals. The talker prefix identifies the constellation.
func (s *State) parseGSV(line string) bool {
	parts := strings.Split(line, ",")
	if len(parts) < 4 {
		return false
	}

	system := "Unknown"
	switch {
	case strings.HasPrefix(line, "$GP"):
		system = "GPS"
	case strings.HasPrefix(line, "$GL"):
		system = "GLONASS"
	case strings.HasPrefix(line, "$GA"):
		system = "Galileo"
	case strings.HasPrefix(line, "$GB"):
		system = "BeiDou"
	case strings.HasPrefix(line, "$GN"):
		system = "Multi-GNSS"
	}
	if !contains(s.fix.Systems, system) {
		s.fix.Systems = append(s.fix.Systems, system)
	}

	if parts[2] == "1" {
		if n, ok := parseInt(parts[3]); ok {
			s.fix.SatellitesInView = n
		}
	}
	return true
}

// parseCoordinate converts a sexagesimal-packed DDMM.MMMM (degDigits=2)
// or DDDMM.MMMM (degDigits=3) value with hemisphere letter to signed
// decimal degrees.
func parseCoordinate(raw, hemi string, degDigits int) (float64, bool) {
	if len(raw) <= degDigits {
		return 0, false
	}
	deg, err := strconv.ParseFloat(raw[:degDigits], 64)
	if err != nil {
		return 0, false
	}
	min, err := strconv.ParseFloat(raw[degDigits:], 64)
	if err != nil {
		return 0, false
	}
	v := deg + min/60
	if hemi == "S" || hemi == "W" {
		v = -v
	}
	return v, true
}

func parseFloat(raw string) (float64, bool) {
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseInt(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
