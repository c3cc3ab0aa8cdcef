package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/golang/geo/r3"

	"fieldscout/internal/gps"
	"fieldscout/internal/imu"
)

// fileLineSource tails NMEA sentences from a character device or a
// recorded sentence log. EOF is treated as "no sentence yet" so a
// recorded file behaves like a quiet receiver once exhausted.
type fileLineSource struct {
	f  *os.File
	br *bufio.Reader
}

func openLineSource(path string) (*fileLineSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gps source: %w", err)
	}
	return &fileLineSource{f: f, br: bufio.NewReader(f)}, nil
}

func (s *fileLineSource) ReadLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	line, err := s.br.ReadString('\n')
	if err == io.EOF {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
		return "", gps.ErrReadTimeout
	}
	if err != nil {
		return "", err
	}
	return line, nil
}

func (s *fileLineSource) Close() error { return s.f.Close() }

// simLineSource emits a plausible NMEA burst once per second for a unit
// drifting around a base coordinate. Useful on the bench where no
// receiver is attached.
type simLineSource struct {
	lat, lon float64
	speedKmh float64
	course   float64
	rng      *rand.Rand
	pending  []string
	now      func() time.Time
}

func newSimLineSource() *simLineSource {
	return &simLineSource{
		lat:      47.4203,
		lon:      9.3765,
		speedKmh: 12,
		course:   80,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
	}
}

func (s *simLineSource) ReadLine(ctx context.Context) (string, error) {
	if len(s.pending) == 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Second):
		}
		s.step()
	}
	line := s.pending[0]
	s.pending = s.pending[1:]
	return line, nil
}

func (s *simLineSource) step() {
	s.lat += (s.rng.Float64() - 0.5) * 0.0004
	s.lon += (s.rng.Float64() - 0.5) * 0.0004
	s.speedKmh += (s.rng.Float64() - 0.5) * 2
	if s.speedKmh < 0 {
		s.speedKmh = 0
	}
	s.course += (s.rng.Float64() - 0.5) * 10
	for s.course < 0 {
		s.course += 360
	}
	for s.course >= 360 {
		s.course -= 360
	}

	t := s.now().UTC()
	hms := t.Format("150405")
	date := t.Format("020106")
	latRaw, latHemi := nmeaCoordinate(s.lat, false)
	lonRaw, lonHemi := nmeaCoordinate(s.lon, true)
	knots := s.speedKmh / 1.852

	s.pending = append(s.pending,
		nmeaSentence(fmt.Sprintf("GPRMC,%s,A,%s,%s,%s,%s,%05.1f,%05.1f,%s,,,A",
			hms, latRaw, latHemi, lonRaw, lonHemi, knots, s.course, date)),
		nmeaSentence(fmt.Sprintf("GPGGA,%s,%s,%s,%s,%s,1,08,0.9,420.0,M,47.0,M,,",
			hms, latRaw, latHemi, lonRaw, lonHemi)),
		nmeaSentence("GPGSA,A,3,01,04,07,11,17,19,24,28,,,,,1.8,0.9,1.2"),
		nmeaSentence("GPGSV,3,1,11,01,70,120,45,04,55,045,42,07,40,300,38,11,35,210,37"),
	)
}

// nmeaCoordinate renders a decimal-degree coordinate in the receiver's
// ddmm.mmmm (latitude) or dddmm.mmmm (longitude) form.
func nmeaCoordinate(value float64, isLon bool) (string, string) {
	hemi := "N"
	if isLon {
		hemi = "E"
	}
	if value < 0 {
		value = -value
		if isLon {
			hemi = "W"
		} else {
			hemi = "S"
		}
	}
	deg := int(value)
	min := (value - float64(deg)) * 60
	if isLon {
		return fmt.Sprintf("%03d%07.4f", deg, min), hemi
	}
	return fmt.Sprintf("%02d%07.4f", deg, min), hemi
}

// nmeaSentence frames a payload with the $ prefix and XOR checksum.
func nmeaSentence(payload string) string {
	var sum byte
	for i := 0; i < len(payload); i++ {
		sum ^= payload[i]
	}
	return fmt.Sprintf("$%s*%02X", payload, sum)
}

// simFrameReader produces raw frames for a level, slowly rotating unit:
// gravity on Z, a magnetic field vector sweeping the horizontal plane,
// and a mild hard-iron offset so calibration has something to find.
type simFrameReader struct {
	rng   *rand.Rand
	angle float64
	rate  time.Duration
}

func newSimFrameReader() *simFrameReader {
	return &simFrameReader{
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
		rate: 50 * time.Millisecond,
	}
}

func (r *simFrameReader) ReadFrame(ctx context.Context) (imu.RawFrame, error) {
	select {
	case <-ctx.Done():
		return imu.RawFrame{}, ctx.Err()
	case <-time.After(r.rate):
	}
	r.angle += 0.02
	noise := func(scale float64) float64 { return (r.rng.Float64() - 0.5) * scale }

	// ~1g on Z in ±8g counts, horizontal field of ~0.5 gauss in
	// 16-bit counts, hard-iron offset of 900 counts on X.
	const gravityCounts = 4098
	fieldCounts := 0.5 * 16384
	return imu.RawFrame{
		Acc: r3.Vector{X: noise(40), Y: noise(40), Z: gravityCounts + noise(40)},
		Gyr: r3.Vector{X: noise(10), Y: noise(10), Z: noise(10)},
		Mag: r3.Vector{
			X: 900 + fieldCounts*math.Cos(r.angle) + noise(60),
			Y: fieldCounts*math.Sin(r.angle) + noise(60),
			Z: 0.3*16384 + noise(60),
		},
		Temperature: 24.5 + noise(0.4),
		Pressure:    1013.2 + noise(0.6),
	}, nil
}

// simPulses reports a plausible pulse count per drain for a meter
// running at a steady few liters per hour.
type simPulses struct {
	rng *rand.Rand
}

func newSimPulses() *simPulses {
	return &simPulses{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (p *simPulses) DrainPulses() int {
	return 40 + p.rng.Intn(20)
}

// simCamera returns a fixed minimal JPEG so the encoding path is
// exercised without hardware.
type simCamera struct{}

var stubJPEG = []byte{
	0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00,
	0x01, 0x01, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0xFF, 0xD9,
}

func (simCamera) CaptureStill(ctx context.Context) ([]byte, error) {
	return stubJPEG, nil
}

func (simCamera) Release() error { return nil }
