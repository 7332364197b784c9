// Package terminal drives a prompt-based network device CLI over any byte stream.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/eugenetaranov/fwhelper/internal/connector"
	"github.com/eugenetaranov/fwhelper/internal/fault"
	"github.com/eugenetaranov/fwhelper/pkg/facts"
)

// promptPattern matches a bare device prompt such as "sw1>" or "core-01(config)#".
var promptPattern = regexp.MustCompile(`^[\w.\-@:/]+(\([\w.\-]+\))?[#>]$`)

// Session is a device CLI session over a byte stream. It implements both
// connector.Session and connector.Channel.
type Session struct {
	rwc    io.ReadWriteCloser
	target connector.Target
	name   string
	settle time.Duration
	closer func() error

	mu      sync.Mutex
	buf     strings.Builder
	readErr error
	notify  chan struct{}

	prompt    string
	closeOnce sync.Once
	closeErr  error
}

// Option configures a terminal session.
type Option func(*Session)

// WithName sets the description returned by String.
func WithName(name string) Option {
	return func(s *Session) {
		s.name = name
	}
}

// WithSettle sets how long timing-mode commands wait for output.
func WithSettle(d time.Duration) Option {
	return func(s *Session) {
		s.settle = d
	}
}

// WithCloser registers an extra cleanup run after the stream is closed.
func WithCloser(fn func() error) Option {
	return func(s *Session) {
		s.closer = fn
	}
}

// New wraps rwc and starts pumping its output into an internal buffer.
func New(rwc io.ReadWriteCloser, target connector.Target, opts ...Option) *Session {
	s := &Session{
		rwc:    rwc,
		target: target,
		name:   target.String(),
		settle: 2 * time.Second,
		notify: make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(s)
	}

	go s.pump()
	return s
}

// pump copies stream output into the buffer until the stream fails.
func (s *Session) pump() {
	chunk := make([]byte, 4096)
	for {
		n, err := s.rwc.Read(chunk)
		s.mu.Lock()
		if n > 0 {
			s.buf.WriteString(strings.ReplaceAll(string(chunk[:n]), "\r", ""))
		}
		if err != nil {
			s.readErr = err
		}
		s.mu.Unlock()

		select {
		case s.notify <- struct{}{}:
		default:
		}

		if err != nil {
			return
		}
	}
}

// Prepare finds the prompt, escalates with the enable secret when needed,
// and disables paging.
func (s *Session) Prepare(ctx context.Context) error {
	if _, err := s.FindPrompt(ctx); err != nil {
		return err
	}

	if s.target.Secret != "" {
		if err := s.Enable(ctx); err != nil {
			return err
		}
	}

	if s.target.Dialect() == "cisco_ios" {
		for _, cmd := range []string{"terminal length 0", "terminal width 511"} {
			if _, err := s.SendCommand(ctx, cmd); err != nil {
				return fmt.Errorf("failed to disable paging: %w", err)
			}
		}
	}

	return nil
}

// ReadAvailable returns and clears buffered output without blocking.
func (s *Session) ReadAvailable() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.buf.String()
	s.buf.Reset()
	if out == "" && s.readErr != nil {
		return "", s.readErr
	}
	return out, nil
}

// Write sends raw text to the device.
func (s *Session) Write(text string) error {
	if _, err := io.WriteString(s.rwc, text); err != nil {
		return fmt.Errorf("failed to write to %s: %w", s.name, err)
	}
	return nil
}

// FindPrompt sends a newline and returns the prompt the device answers with.
func (s *Session) FindPrompt(ctx context.Context) (string, error) {
	if err := s.Write("\n"); err != nil {
		return "", err
	}

	out, err := s.readUntil(ctx, func(acc string) bool {
		return promptPattern.MatchString(lastLine(acc))
	})
	if err != nil {
		return "", fault.Wrap(fault.Parse, "find-prompt", fmt.Errorf("no prompt in %q: %w", tail(out), err))
	}

	s.prompt = lastLine(out)
	return s.prompt, nil
}

// Enable escalates to privileged mode using the target's secret.
func (s *Session) Enable(ctx context.Context) error {
	prompt, err := s.FindPrompt(ctx)
	if err != nil {
		return err
	}
	if strings.HasSuffix(prompt, "#") {
		return nil
	}

	if err := s.Write("enable\n"); err != nil {
		return err
	}

	out, err := s.readUntil(ctx, func(acc string) bool {
		return strings.Contains(acc, "assword") || s.atPrompt(acc)
	})
	if err != nil {
		return fault.Wrap(fault.Authentication, "enable", err)
	}

	if strings.Contains(out, "assword") {
		if err := s.Write(s.target.Secret + "\n"); err != nil {
			return err
		}
		if _, err := s.readUntil(ctx, s.atPrompt); err != nil {
			return fault.Wrap(fault.Authentication, "enable", err)
		}
	}

	prompt, err = s.FindPrompt(ctx)
	if err != nil {
		return err
	}
	if !strings.HasSuffix(prompt, "#") {
		return fault.New(fault.Authentication, "enable", "enable secret rejected")
	}
	return nil
}

// SendCommand writes cmd and waits for the prompt. The command echo and the
// trailing prompt are stripped from the returned output.
func (s *Session) SendCommand(ctx context.Context, cmd string) (string, error) {
	if s.prompt == "" {
		if _, err := s.FindPrompt(ctx); err != nil {
			return "", err
		}
	}

	if err := s.Write(cmd + "\n"); err != nil {
		return "", err
	}

	out, err := s.readUntil(ctx, s.atPrompt)
	if err != nil {
		return out, fmt.Errorf("command %q did not complete: %w", cmd, err)
	}
	return stripEcho(out, cmd), nil
}

// SendCommandTiming writes cmd and returns what arrives within the settle delay.
func (s *Session) SendCommandTiming(ctx context.Context, cmd string) (string, error) {
	if err := s.Write(cmd + "\n"); err != nil {
		return "", err
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(s.settle):
	}

	return s.ReadAvailable()
}

// Execute runs each command in order and returns the raw outputs.
func (s *Session) Execute(ctx context.Context, cmds []string) (map[string]string, error) {
	results := make(map[string]string, len(cmds))
	for _, cmd := range cmds {
		out, err := s.SendCommand(ctx, cmd)
		if err != nil {
			return results, err
		}
		results[cmd] = out
	}
	return results, nil
}

// Facts gathers device facts using the target's dialect.
func (s *Session) Facts(ctx context.Context) (connector.Facts, error) {
	return facts.Gather(ctx, s, s.target.Dialect())
}

// Channel returns the session itself.
func (s *Session) Channel() connector.Channel {
	return s
}

// Close closes the stream and runs the registered closer. Safe to call
// more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.rwc.Close()
		if s.closer != nil {
			if err := s.closer(); err != nil && s.closeErr == nil {
				s.closeErr = err
			}
		}
	})
	return s.closeErr
}

// String returns a description of the session.
func (s *Session) String() string {
	return s.name
}

// WaitFor accumulates output until done reports true. Used for login
// exchanges that happen before a prompt exists.
func (s *Session) WaitFor(ctx context.Context, done func(string) bool) (string, error) {
	return s.readUntil(ctx, done)
}

// IsPrompt reports whether line looks like a device prompt.
func IsPrompt(line string) bool {
	return promptPattern.MatchString(strings.TrimSpace(line))
}

// LastLine returns the last non-empty line of s, trimmed.
func LastLine(s string) string {
	return lastLine(s)
}

// readUntil accumulates output until done reports true, the stream fails,
// or the target timeout elapses.
func (s *Session) readUntil(ctx context.Context, done func(string) bool) (string, error) {
	if s.target.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.target.Timeout)
		defer cancel()
	}

	var acc strings.Builder
	for {
		chunk, err := s.ReadAvailable()
		acc.WriteString(chunk)
		if done(acc.String()) {
			return acc.String(), nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return acc.String(), fmt.Errorf("connection to %s closed", s.name)
			}
			return acc.String(), err
		}

		select {
		case <-ctx.Done():
			return acc.String(), ctx.Err()
		case <-s.notify:
		}
	}
}

// atPrompt reports whether the last line of acc is the session prompt,
// allowing for a mode suffix such as "(config)".
func (s *Session) atPrompt(acc string) bool {
	line := lastLine(acc)
	if !promptPattern.MatchString(line) {
		return false
	}
	base := strings.TrimRight(s.prompt, "#>")
	if i := strings.Index(base, "("); i >= 0 {
		base = base[:i]
	}
	return base == "" || strings.HasPrefix(line, base)
}

// lastLine returns the last non-empty line of s, trimmed.
func lastLine(s string) string {
	s = strings.TrimRight(s, " \t\n")
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

// stripEcho removes the echoed command line and the trailing prompt line.
func stripEcho(out, cmd string) string {
	lines := strings.Split(strings.TrimRight(out, " \t\n"), "\n")
	if len(lines) > 0 && strings.Contains(lines[0], strings.TrimSpace(cmd)) {
		lines = lines[1:]
	}
	if len(lines) > 0 && promptPattern.MatchString(strings.TrimSpace(lines[len(lines)-1])) {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

func tail(s string) string {
	if len(s) > 80 {
		return s[len(s)-80:]
	}
	return s
}

// Ensure Session implements the connector interfaces.
var (
	_ connector.Session = (*Session)(nil)
	_ connector.Channel = (*Session)(nil)
)
