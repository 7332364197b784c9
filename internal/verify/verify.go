// Package verify computes on-device file checksums by polling the raw channel.
package verify

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/eugenetaranov/fwhelper/internal/connector"
	"github.com/eugenetaranov/fwhelper/internal/fault"
	"github.com/eugenetaranov/fwhelper/internal/progress"
)

const (
	// DoneToken is printed by the device once hashing completes.
	DoneToken = "Done!"

	// Marker is the progress character printed while hashing.
	Marker = '.'

	// BytesPerMarker approximates how much of the file each marker covers.
	BytesPerMarker = 16 * 1024
)

var (
	checksumPattern = regexp.MustCompile(`(?m)=\s*([0-9a-fA-F]+)\s*$`)
	errorPattern    = regexp.MustCompile(`(?m)^%Error.*$`)
)

// Poller issues checksum commands and waits for their result.
type Poller struct {
	// Interval is the pause between channel reads.
	Interval time.Duration

	// Timeout bounds one checksum computation.
	Timeout time.Duration

	Log zerolog.Logger
}

// New creates a poller.
func New(interval, timeout time.Duration, log zerolog.Logger) *Poller {
	return &Poller{Interval: interval, Timeout: timeout, Log: log}
}

// Command returns the checksum command for a fully-qualified path.
func Command(path string) string {
	return "verify /md5 " + path
}

// Extract returns the first checksum in out, lower-cased.
func Extract(out string) (string, bool) {
	m := checksumPattern.FindStringSubmatch(out)
	if m == nil {
		return "", false
	}
	return strings.ToLower(m[1]), true
}

// Checksum runs the checksum command for path and polls until the device
// prints the completion token and a checksum. size feeds the progress
// estimate and may be zero.
func (p *Poller) Checksum(ctx context.Context, ch connector.Channel, path string, size int64) (string, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	log := p.Log.With().Str("path", path).Logger()
	meter := progress.NewMeter(Marker, BytesPerMarker, size)

	buf, err := ch.SendCommandTiming(ctx, Command(path))
	if err != nil {
		return "", classify("verify", err)
	}

	for {
		if m := errorPattern.FindString(buf); m != "" {
			return "", fault.New(fault.Unclassified, "verify", strings.TrimSpace(m))
		}
		if strings.Contains(buf, DoneToken) {
			if sum, ok := Extract(buf); ok {
				log.Debug().Str("checksum", sum).Dur("elapsed", time.Since(meter.Start)).Msg("checksum computed")
				return sum, nil
			}
		}

		select {
		case <-ctx.Done():
			// Interrupt the hash so the next command finds the prompt.
			_ = ch.Write("\x03")
			return "", fault.Wrap(fault.Timeout, "verify", ctx.Err())
		case <-time.After(p.Interval):
		}

		chunk, err := ch.ReadAvailable()
		if err != nil {
			return "", classify("verify", err)
		}
		buf += chunk

		log.Debug().Str("progress", meter.Estimate(buf, time.Now()).String()).Msg("verifying")
	}
}

// classify keeps the kind of err, mapping context expiry to a timeout.
func classify(op string, err error) error {
	return fault.Wrap(fault.KindOf(err), op, err)
}
