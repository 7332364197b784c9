// Package report aggregates per-device results into fleet-wide reports.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/eugenetaranov/fwhelper/internal/fault"
	"github.com/eugenetaranov/fwhelper/internal/transfer"
)

// Format selects the serialization of saved reports.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case JSON, "":
		return JSON, nil
	case YAML, "yml":
		return YAML, nil
	}
	return "", fmt.Errorf("unknown report format %q (want json or yaml)", s)
}

// Write serializes v in the given format.
func Write(w io.Writer, format Format, v any) error {
	switch format {
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "    ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		return nil
	}
}

// Failure is the serialized form of a failed pipeline.
type Failure struct {
	Kind   fault.Kind `json:"kind" yaml:"kind"`
	Detail string     `json:"detail" yaml:"detail"`
}

// NewFailure describes err.
func NewFailure(err error) *Failure {
	return &Failure{Kind: fault.KindOf(err), Detail: fault.Detail(err)}
}

// Record is one device outcome in a fleet report.
type Record struct {
	Device  string           `json:"device" yaml:"device"`
	Outcome transfer.Outcome `json:"outcome" yaml:"outcome"`
}

// FleetReport maps device identity to outcome. Safe for concurrent Add.
type FleetReport struct {
	mu       sync.Mutex
	outcomes map[string]transfer.Outcome
}

// NewFleetReport creates an empty report.
func NewFleetReport() *FleetReport {
	return &FleetReport{outcomes: make(map[string]transfer.Outcome)}
}

// Add records an outcome. A device listed more than once gets a "#n"
// suffix so no outcome is lost. Returns the key used.
func (r *FleetReport) Add(device string, o transfer.Outcome) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := device
	for n := 2; ; n++ {
		if _, exists := r.outcomes[key]; !exists {
			break
		}
		key = fmt.Sprintf("%s#%d", device, n)
	}
	r.outcomes[key] = o
	return key
}

// Get returns the outcome for device.
func (r *FleetReport) Get(device string) (transfer.Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.outcomes[device]
	return o, ok
}

// Len returns the number of recorded outcomes.
func (r *FleetReport) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outcomes)
}

// Records returns every outcome sorted by device.
func (r *FleetReport) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	devices := lo.Keys(r.outcomes)
	sort.Strings(devices)
	return lo.Map(devices, func(d string, _ int) Record {
		return Record{Device: d, Outcome: r.outcomes[d]}
	})
}

// Counts returns the number of outcomes per status.
func (r *FleetReport) Counts() map[transfer.Status]int {
	counts := make(map[transfer.Status]int)
	for _, rec := range r.Records() {
		counts[rec.Outcome.Status]++
	}
	return counts
}

// Failed returns the records whose status is Failed.
func (r *FleetReport) Failed() []Record {
	return lo.Filter(r.Records(), func(rec Record, _ int) bool {
		return rec.Outcome.Status == transfer.StatusFailed
	})
}
