// Package progress estimates transfer progress from marker characters
// printed by the device. Estimates are advisory only.
package progress

import (
	"fmt"
	"strings"
	"time"
)

// etaThreshold is the percentage above which an ETA is reported.
const etaThreshold = 1.0

// Estimate is a snapshot of heuristic progress.
type Estimate struct {
	// Bytes is the estimated number of bytes processed.
	Bytes int64

	// Percent is Bytes over the declared total, capped below 100.
	Percent float64

	// Elapsed is the time since the operation started.
	Elapsed time.Duration

	// ETA is the estimated remaining time; zero until Percent passes the threshold.
	ETA time.Duration
}

// Meter counts markers in device output.
type Meter struct {
	Marker         byte
	BytesPerMarker int64
	Total          int64
	Start          time.Time
}

// NewMeter creates a meter started now.
func NewMeter(marker byte, bytesPerMarker, total int64) *Meter {
	return &Meter{
		Marker:         marker,
		BytesPerMarker: bytesPerMarker,
		Total:          total,
		Start:          time.Now(),
	}
}

// Estimate computes progress from the accumulated output buffer.
func (m *Meter) Estimate(buffer string, now time.Time) Estimate {
	e := Estimate{
		Bytes:   int64(strings.Count(buffer, string(m.Marker))) * m.BytesPerMarker,
		Elapsed: now.Sub(m.Start),
	}
	if m.Total <= 0 {
		return e
	}

	e.Percent = float64(e.Bytes) / float64(m.Total) * 100
	if e.Percent > 99.9 {
		e.Percent = 99.9
	}
	if e.Percent > etaThreshold {
		total := time.Duration(float64(e.Elapsed) / e.Percent * 100)
		e.ETA = total - e.Elapsed
	}
	return e
}

// String renders the estimate for logs.
func (e Estimate) String() string {
	if e.ETA > 0 {
		return fmt.Sprintf("%.1f%% (%d bytes, elapsed %s, eta %s)", e.Percent, e.Bytes, e.Elapsed.Round(time.Second), e.ETA.Round(time.Second))
	}
	return fmt.Sprintf("%.1f%% (%d bytes, elapsed %s)", e.Percent, e.Bytes, e.Elapsed.Round(time.Second))
}
