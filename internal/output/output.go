// Package output provides formatted terminal output for fleet runs.
package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Colors for terminal output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// Stats holds execution statistics for output.
type Stats interface {
	GetOK() int
	GetChanged() int
	GetFailed() int
	GetSkipped() int
	GetDuration() time.Duration
}

// Status classifies a device result for display.
type Status string

const (
	StatusOK      Status = "ok"
	StatusChanged Status = "changed"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Output handles formatted output. Device results arrive from many
// workers at once, so every write is serialized.
type Output struct {
	mu       sync.Mutex
	w        io.Writer
	useColor bool
	debug    bool
}

// New creates a new output handler.
func New(w io.Writer) *Output {
	return &Output{
		w:        w,
		useColor: true,
	}
}

// SetColor enables or disables color output.
func (o *Output) SetColor(enabled bool) {
	o.useColor = enabled
}

// SetDebug enables or disables debug output.
func (o *Output) SetDebug(enabled bool) {
	o.debug = enabled
}

// color returns the string wrapped in color codes if enabled.
func (o *Output) color(c, s string) string {
	if !o.useColor {
		return s
	}
	return c + s + colorReset
}

// FleetStart prints the run banner.
func (o *Output) FleetStart(operation string, devices, workers int) {
	o.printf("\n%s %s %s\n", o.color(colorBold, "FLEET"), operation,
		o.color(colorGray, fmt.Sprintf("(%d devices, %d workers)", devices, workers)))
	if o.debug {
		o.printf("%s\n", strings.Repeat("-", 60))
	}
}

// FleetEnd prints the run summary.
func (o *Output) FleetEnd(stats Stats) {
	ok := o.color(colorGreen, fmt.Sprintf("ok=%d", stats.GetOK()))
	changed := o.color(colorYellow, fmt.Sprintf("changed=%d", stats.GetChanged()))
	failed := o.color(colorRed, fmt.Sprintf("failed=%d", stats.GetFailed()))
	skipped := o.color(colorCyan, fmt.Sprintf("skipped=%d", stats.GetSkipped()))

	o.printf("\n%s %s %s %s %s %s\n", o.color(colorBold, "RECAP"), ok, changed, failed, skipped,
		o.color(colorGray, fmt.Sprintf("(%.2fs)", stats.GetDuration().Seconds())))
}

// DeviceResult prints one device result in a single line.
// Format: [indicator] device label
func (o *Output) DeviceResult(device string, status Status, label, message string) {
	indicator, statusColor := o.style(status)

	o.mu.Lock()
	defer o.mu.Unlock()

	o.printfLocked("  %s %s %s\n", o.color(statusColor, indicator), device, o.color(statusColor, label))
	if o.debug && message != "" {
		o.printfLocked("    %s %s\n", o.color(colorGray, "→"), message)
	}
}

// DeviceNotes prints the notes collected for a device (debug mode only).
func (o *Output) DeviceNotes(device string, notes []string) {
	if !o.debug || len(notes) == 0 {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.printfLocked("      %s\n", o.color(colorGray, device+" notes:"))
	for _, n := range notes {
		o.printfLocked("        %s\n", n)
	}
}

func (o *Output) style(status Status) (string, string) {
	switch status {
	case StatusOK:
		return "✓", colorGreen
	case StatusChanged:
		return "✓", colorYellow
	case StatusSkipped:
		return "○", colorCyan
	case StatusFailed:
		return "✗", colorRed
	default:
		return "?", colorGray
	}
}

// Section prints a section header.
func (o *Output) Section(name string) {
	o.printf("\n%s\n", o.color(colorBold, name))
}

// Line prints a raw line.
func (o *Output) Line(s string) {
	o.printf("%s\n", s)
}

// Info prints an informational message.
func (o *Output) Info(format string, args ...any) {
	o.printf("%s %s\n", o.color(colorBlue, "INFO"), fmt.Sprintf(format, args...))
}

// Warn prints a warning message.
func (o *Output) Warn(format string, args ...any) {
	o.printf("%s %s\n", o.color(colorYellow, "WARN"), fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (o *Output) Error(format string, args ...any) {
	o.printf("%s %s\n", o.color(colorRed, "ERROR"), fmt.Sprintf(format, args...))
}

// Debug prints a debug message (only in debug mode).
func (o *Output) Debug(format string, args ...any) {
	if o.debug {
		o.printf("%s %s\n", o.color(colorGray, "DEBUG"), fmt.Sprintf(format, args...))
	}
}

func (o *Output) printf(format string, args ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.printfLocked(format, args...)
}

func (o *Output) printfLocked(format string, args ...any) {
	fmt.Fprintf(o.w, format, args...)
}
