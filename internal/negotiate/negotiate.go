// Package negotiate drives an interactive device copy command by answering
// its prompts over the raw channel.
package negotiate

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/eugenetaranov/fwhelper/internal/connector"
	"github.com/eugenetaranov/fwhelper/internal/fault"
	"github.com/eugenetaranov/fwhelper/internal/progress"
)

const (
	// Marker is the progress character printed while copying.
	Marker = '!'

	// BulkBytesPerMarker applies to schemes that move whole buffers per marker.
	BulkBytesPerMarker = 8192

	// BlockBytesPerMarker applies to schemes that print a marker per small block.
	BlockBytesPerMarker = 512
)

// Request describes one copy onto device storage.
type Request struct {
	// Source is the URI the device pulls from (e.g. tftp://10.0.0.5/c2960.bin).
	Source string

	// Destination is the device path (e.g. flash:c2960.bin).
	Destination string

	// Size is the declared image size in bytes, used for progress only.
	Size int64

	// SourcePassword answers a password prompt from the source server.
	SourcePassword string
}

// Command returns the device copy command.
func (r Request) Command() string {
	return fmt.Sprintf("copy %s %s", r.Source, r.Destination)
}

// Scheme returns the lower-cased URI scheme of the source.
func (r Request) Scheme() string {
	u, err := url.Parse(r.Source)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

// BytesPerMarker returns the progress constant for the source scheme.
func (r Request) BytesPerMarker() int64 {
	switch r.Scheme() {
	case "tftp", "rcp":
		return BlockBytesPerMarker
	default:
		return BulkBytesPerMarker
	}
}

// PromptRule maps a prompt on the last output line to a canned response.
type PromptRule struct {
	Name     string
	Pattern  *regexp.Regexp
	Response func(Request) string
}

func accept(Request) string { return "\n" }

func decline(Request) string { return "n\n" }

// Rules is the ordered prompt table. The first matching rule answers.
// Erase prompts are always declined; "[confirm]" is only accepted after
// overwrite wording.
var Rules = []PromptRule{
	{Name: "erase", Pattern: regexp.MustCompile(`(?i)(erase\s+\S+.*|remove all files.*)\[confirm\]\s*$`), Response: decline},
	{Name: "remote-host", Pattern: regexp.MustCompile(`(?i)address or name of remote host.*\?\s*$`), Response: accept},
	{Name: "source-username", Pattern: regexp.MustCompile(`(?i)source username.*\?\s*$`), Response: accept},
	{Name: "source-filename", Pattern: regexp.MustCompile(`(?i)source filename.*\?\s*$`), Response: accept},
	{Name: "destination-filename", Pattern: regexp.MustCompile(`(?i)destination filename.*\?\s*$`), Response: accept},
	{Name: "overwrite", Pattern: regexp.MustCompile(`(?i)over\s?write.*\[confirm\]\s*$`), Response: accept},
	{Name: "password", Pattern: regexp.MustCompile(`(?i)password:\s*$`), Response: func(r Request) string { return r.SourcePassword + "\n" }},
}

var (
	copyErrorPattern = regexp.MustCompile(`(?m)^%Error.*$`)
	copyOKPattern    = regexp.MustCompile(`\[OK - (\d+) bytes\]`)
)

// Result summarizes a completed negotiation.
type Result struct {
	// Output is the full channel transcript.
	Output string

	// Answered lists the rule names that fired, in order.
	Answered []string

	// BytesCopied is the byte count the device reported, or -1.
	BytesCopied int64

	// Progress is the last heuristic estimate.
	Progress progress.Estimate
}

// Negotiator runs copy sessions.
type Negotiator struct {
	// Rules defaults to the package Rules table.
	Rules []PromptRule

	// Interval is the pause between channel reads.
	Interval time.Duration

	// Timeout bounds one copy.
	Timeout time.Duration

	Log zerolog.Logger
}

// New creates a negotiator with the default prompt table.
func New(interval, timeout time.Duration, log zerolog.Logger) *Negotiator {
	return &Negotiator{Rules: Rules, Interval: interval, Timeout: timeout, Log: log}
}

// Copy sends the copy command and answers prompts until the device prompt
// reappears. Only the last line of the transcript is matched, and a line is
// answered at most once.
func (n *Negotiator) Copy(ctx context.Context, ch connector.Channel, req Request) (*Result, error) {
	if n.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.Timeout)
		defer cancel()
	}

	rules := n.Rules
	if rules == nil {
		rules = Rules
	}

	prompt, err := ch.FindPrompt(ctx)
	if err != nil {
		return nil, err
	}

	log := n.Log.With().Str("source", req.Source).Str("destination", req.Destination).Logger()
	meter := progress.NewMeter(Marker, req.BytesPerMarker(), req.Size)
	result := &Result{BytesCopied: -1}

	buf, err := ch.SendCommandTiming(ctx, req.Command())
	if err != nil {
		return nil, fault.Wrap(fault.KindOf(err), "copy", err)
	}
	answeredAt := 0

	for {
		if lastLine(buf) == prompt {
			result.Output = buf
			result.Progress = meter.Estimate(buf, time.Now())
			return result, finish(buf, result)
		}

		start := strings.LastIndex(buf, "\n") + 1
		if start >= answeredAt {
			line := buf[start:]
			for _, rule := range rules {
				if !rule.Pattern.MatchString(line) {
					continue
				}
				log.Debug().Str("rule", rule.Name).Str("prompt", strings.TrimSpace(line)).Msg("answering prompt")
				if err := ch.Write(rule.Response(req)); err != nil {
					return nil, fault.Wrap(fault.KindOf(err), "copy", err)
				}
				result.Answered = append(result.Answered, rule.Name)
				answeredAt = len(buf) + 1
				break
			}
		}

		select {
		case <-ctx.Done():
			// Abort the transfer so the device returns to its prompt.
			_ = ch.Write("\x03")
			result.Output = buf
			return result, fault.Wrap(fault.Timeout, "copy", ctx.Err())
		case <-time.After(n.Interval):
		}

		chunk, err := ch.ReadAvailable()
		if err != nil {
			result.Output = buf
			return result, fault.Wrap(fault.KindOf(err), "copy", err)
		}
		buf += chunk

		if chunk != "" {
			log.Debug().Str("progress", meter.Estimate(buf, time.Now()).String()).Msg("copying")
		}
	}
}

// finish inspects the completed transcript for device errors.
func finish(buf string, result *Result) error {
	if m := copyOKPattern.FindStringSubmatch(buf); m != nil {
		result.BytesCopied, _ = strconv.ParseInt(m[1], 10, 64)
	}
	if m := copyErrorPattern.FindString(buf); m != "" {
		return fault.New(fault.Copy, "copy", strings.TrimSpace(m))
	}
	return nil
}

// lastLine returns the last non-empty line, trimmed.
func lastLine(s string) string {
	s = strings.TrimRight(s, " \t\r\n")
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
