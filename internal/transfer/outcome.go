package transfer

import (
	"fmt"
	"strings"

	"github.com/eugenetaranov/fwhelper/internal/fault"
)

// Status is the terminal state of one transfer pipeline.
type Status string

const (
	StatusUpToDate          Status = "UpToDate"
	StatusReadyNoCopyNeeded Status = "ReadyNoCopyNeeded"
	StatusInsufficientSpace Status = "InsufficientSpace"
	StatusDryRunSkipped     Status = "DryRunSkipped"
	StatusTransferred       Status = "Transferred"
	StatusFailed            Status = "Failed"
)

// Outcome is the immutable result of one job. Verified is meaningful only
// for Transferred; Kind only for Failed.
type Outcome struct {
	Status   Status     `json:"status" yaml:"status"`
	Verified bool       `json:"verified,omitempty" yaml:"verified,omitempty"`
	Kind     fault.Kind `json:"kind,omitempty" yaml:"kind,omitempty"`
	Detail   string     `json:"detail,omitempty" yaml:"detail,omitempty"`
	Notes    []string   `json:"notes,omitempty" yaml:"notes,omitempty"`
	Checksum string     `json:"checksum,omitempty" yaml:"checksum,omitempty"`
}

// newOutcome copies notes so the outcome never aliases pipeline state.
func newOutcome(status Status, detail string, notes []string, checksum string) Outcome {
	o := Outcome{Status: status, Detail: detail, Checksum: checksum}
	if len(notes) > 0 {
		o.Notes = append([]string(nil), notes...)
	}
	return o
}

// Failure builds a Failed outcome from err.
func Failure(err error, notes []string, checksum string) Outcome {
	o := newOutcome(StatusFailed, fault.Detail(err), notes, checksum)
	o.Kind = fault.KindOf(err)
	return o
}

// Transferred builds a Transferred outcome.
func Transferred(verified bool, detail string, notes []string, checksum string) Outcome {
	o := newOutcome(StatusTransferred, detail, notes, checksum)
	o.Verified = verified
	return o
}

// Succeeded reports whether the device ends up ready for the target image.
func (o Outcome) Succeeded() bool {
	switch o.Status {
	case StatusUpToDate, StatusReadyNoCopyNeeded:
		return true
	case StatusTransferred:
		return o.Verified
	}
	return false
}

// Label renders the tagged form, e.g. "Transferred{verified:true}" or
// "Failed{ConnectivityFailure}".
func (o Outcome) Label() string {
	switch o.Status {
	case StatusTransferred:
		return fmt.Sprintf("Transferred{verified:%t}", o.Verified)
	case StatusFailed:
		return fmt.Sprintf("Failed{%s}", o.Kind)
	}
	return string(o.Status)
}

// String renders the label with detail.
func (o Outcome) String() string {
	parts := []string{o.Label()}
	if o.Detail != "" {
		parts = append(parts, o.Detail)
	}
	return strings.Join(parts, ": ")
}
