package imu

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
)

// Convergence defaults, from the bench calibration procedure: the run is
// done when fewer than 5 min/max changes occur across 150 consecutive
// iterations.
const (
	defaultWindowIters = 150
	defaultMaxChanges  = 5
)

// Extremes tracks the observed magnetometer envelope per axis, in raw
// counts.
type Extremes struct {
	Min r3.Vector
	Max r3.Vector
}

// Profile holds the derived corrections: hard-iron offset (subtracted
// from raw counts) and soft-iron scale (per-axis multiplier).
type Profile struct {
	Offset r3.Vector
	Scale  r3.Vector
}

// Identity returns a profile that leaves readings untouched.
func Identity() Profile {
	return Profile{Scale: r3.Vector{X: 1, Y: 1, Z: 1}}
}

// Apply corrects one raw magnetometer reading and converts it to gauss.
func (p Profile) Apply(raw r3.Vector) r3.Vector {
	return r3.Vector{
		X: (raw.X - p.Offset.X) * p.Scale.X * magResolution,
		Y: (raw.Y - p.Offset.Y) * p.Scale.Y * magResolution,
		Z: (raw.Z - p.Offset.Z) * p.Scale.Z * magResolution,
	}
}

// Profile derives corrections from the envelope: offset is the midpoint
// of min/max, scale is the ratio of the average axis range to each
// axis's own range. A degenerate (zero-range) axis keeps scale 1.
func (e Extremes) Profile() Profile {
	offset := r3.Vector{
		X: (e.Min.X + e.Max.X) / 2,
		Y: (e.Min.Y + e.Max.Y) / 2,
		Z: (e.Min.Z + e.Max.Z) / 2,
	}
	rx := (e.Max.X - e.Min.X) / 2
	ry := (e.Max.Y - e.Min.Y) / 2
	rz := (e.Max.Z - e.Min.Z) / 2
	avg := (rx + ry + rz) / 3

	scale := func(r float64) float64 {
		if r <= 0 {
			return 1
		}
		return avg / r
	}
	return Profile{
		Offset: offset,
		Scale:  r3.Vector{X: scale(rx), Y: scale(ry), Z: scale(rz)},
	}
}

// Brackets reports whether reading already lies within the stored
// envelope widened by tol counts on every axis. When persisted extremes
// bracket live readings, a fresh calibration run is unnecessary.
func (e Extremes) Brackets(reading r3.Vector, tol float64) bool {
	within := func(v, lo, hi float64) bool {
		return v >= lo-tol && v <= hi+tol
	}
	return within(reading.X, e.Min.X, e.Max.X) &&
		within(reading.Y, e.Min.Y, e.Max.Y) &&
		within(reading.Z, e.Min.Z, e.Max.Z)
}

// Calibrator consumes raw magnetometer readings and decides when the
// min/max envelope has settled.
type Calibrator struct {
	WindowIters int
	MaxChanges  int

	extremes    Extremes
	started     bool
	windowIters int
	windowHits  int
	converged   bool
}

// NewCalibrator returns a calibrator with the bench defaults.
func NewCalibrator() *Calibrator {
	return &Calibrator{WindowIters: defaultWindowIters, MaxChanges: defaultMaxChanges}
}

// Observe feeds one reading and reports whether the envelope changed.
func (c *Calibrator) Observe(raw r3.Vector) bool {
	changed := false
	if !c.started {
		c.extremes = Extremes{Min: raw, Max: raw}
		c.started = true
		changed = true
	} else {
		if raw.X < c.extremes.Min.X {
			c.extremes.Min.X = raw.X
			changed = true
		}
		if raw.Y < c.extremes.Min.Y {
			c.extremes.Min.Y = raw.Y
			changed = true
		}
		if raw.Z < c.extremes.Min.Z {
			c.extremes.Min.Z = raw.Z
			changed = true
		}
		if raw.X > c.extremes.Max.X {
			c.extremes.Max.X = raw.X
			changed = true
		}
		if raw.Y > c.extremes.Max.Y {
			c.extremes.Max.Y = raw.Y
			changed = true
		}
		if raw.Z > c.extremes.Max.Z {
			c.extremes.Max.Z = raw.Z
			changed = true
		}
	}

	c.windowIters++
	if changed {
		c.windowHits++
	}
	if c.windowIters >= c.WindowIters {
		c.converged = c.windowHits < c.MaxChanges
		c.windowIters = 0
		c.windowHits = 0
	}
	return changed
}

// Converged reports whether the most recent full window saw fewer than
// MaxChanges envelope updates.
func (c *Calibrator) Converged() bool { return c.converged }

// Extremes returns the envelope observed so far.
func (c *Calibrator) Extremes() Extremes { return c.extremes }

// Persistence uses the key = value layout of the bench tool so profiles
// survive across firmware generations.
var extremeKeys = []string{"magXmin", "magYmin", "magZmin", "magXmax", "magYmax", "magZmax"}

// SaveExtremes writes the envelope with a temp-file rename.
func SaveExtremes(path string, e Extremes) error {
	vals := []float64{e.Min.X, e.Min.Y, e.Min.Z, e.Max.X, e.Max.Y, e.Max.Z}
	var b strings.Builder
	for i, k := range extremeKeys {
		fmt.Fprintf(&b, "%s = %d\n", k, int64(vals[i]))
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write calibration: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit calibration: %w", err)
	}
	return nil
}

// LoadExtremes reads a persisted envelope. A missing file is reported
// via os.IsNotExist on the returned error.
func LoadExtremes(path string) (Extremes, error) {
	f, err := os.Open(path)
	if err != nil {
		return Extremes{}, err
	}
	defer f.Close()

	vals := make(map[string]float64, len(extremeKeys))
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, val, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			continue
		}
		vals[strings.TrimSpace(key)] = n
	}
	if err := sc.Err(); err != nil {
		return Extremes{}, fmt.Errorf("read calibration: %w", err)
	}
	for _, k := range extremeKeys {
		if _, ok := vals[k]; !ok {
			return Extremes{}, fmt.Errorf("calibration file %s missing %s", path, k)
		}
	}
	return Extremes{
		Min: r3.Vector{X: vals["magXmin"], Y: vals["magYmin"], Z: vals["magZmin"]},
		Max: r3.Vector{X: vals["magXmax"], Y: vals["magYmax"], Z: vals["magZmax"]},
	}, nil
}
