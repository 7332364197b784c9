// Package connectortest provides scripted in-memory sessions for tests.
package connectortest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/eugenetaranov/fwhelper/internal/connector"
)

// Exchange is one scripted device reaction. When a write contains Match,
// Output is queued and handed out one chunk per ReadAvailable call.
type Exchange struct {
	Match  string
	Output []string
}

// Channel is a scripted terminal. Written text is echoed back like a real
// device would. Exchanges are consumed in order.
type Channel struct {
	mu sync.Mutex

	Prompt    string
	Exchanges []Exchange

	// ReadErr is returned by ReadAvailable once the queue is empty.
	ReadErr error

	// PromptErr is returned by FindPrompt.
	PromptErr error

	pending []string
	writes  []string
}

// NewChannel creates a channel with the given prompt and script.
func NewChannel(prompt string, script ...Exchange) *Channel {
	return &Channel{Prompt: prompt, Exchanges: script}
}

// Writes returns everything written to the channel, in order.
func (c *Channel) Writes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.writes...)
}

// Wrote reports whether any write contained s.
func (c *Channel) Wrote(s string) bool {
	for _, w := range c.Writes() {
		if strings.Contains(w, s) {
			return true
		}
	}
	return false
}

// Remaining returns the number of unconsumed exchanges.
func (c *Channel) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Exchanges)
}

func (c *Channel) FindPrompt(context.Context) (string, error) {
	if c.PromptErr != nil {
		return "", c.PromptErr
	}
	return c.Prompt, nil
}

func (c *Channel) Enable(context.Context) error {
	return nil
}

func (c *Channel) SendCommand(ctx context.Context, cmd string) (string, error) {
	if err := c.Write(cmd + "\n"); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := strings.Join(c.pending, "")
	c.pending = nil
	return out, nil
}

func (c *Channel) SendCommandTiming(ctx context.Context, cmd string) (string, error) {
	if err := c.Write(cmd + "\n"); err != nil {
		return "", err
	}
	return c.ReadAvailable()
}

func (c *Channel) ReadAvailable() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) == 0 {
		return "", c.ReadErr
	}
	chunk := c.pending[0]
	c.pending = c.pending[1:]
	return chunk, nil
}

func (c *Channel) Write(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.writes = append(c.writes, s)

	echo := s
	if len(c.Exchanges) > 0 && strings.Contains(s, c.Exchanges[0].Match) {
		out := c.Exchanges[0].Output
		c.Exchanges = c.Exchanges[1:]
		if len(out) > 0 {
			c.pending = append(c.pending, echo+out[0])
			c.pending = append(c.pending, out[1:]...)
			return nil
		}
	}
	c.pending = append(c.pending, echo)
	return nil
}

// Session is a scripted device session.
type Session struct {
	mu sync.Mutex

	Name string

	// Outputs maps commands to Execute output.
	Outputs map[string]string

	// Errors maps commands to Execute errors.
	Errors map[string]error

	FactsValue connector.Facts
	FactsErr   error

	Chan *Channel

	// CloseErr is returned by Close.
	CloseErr error

	// PanicOn makes Execute panic when it runs this command.
	PanicOn string

	executed []string
	closed   int
}

func (s *Session) Execute(ctx context.Context, cmds []string) (map[string]string, error) {
	out := make(map[string]string, len(cmds))
	for _, cmd := range cmds {
		s.mu.Lock()
		s.executed = append(s.executed, cmd)
		s.mu.Unlock()

		if cmd == s.PanicOn && cmd != "" {
			panic(fmt.Sprintf("scripted panic on %q", cmd))
		}
		if err := s.Errors[cmd]; err != nil {
			return out, err
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out[cmd] = s.Outputs[cmd]
	}
	return out, nil
}

func (s *Session) Facts(ctx context.Context) (connector.Facts, error) {
	if s.FactsErr != nil {
		return connector.Facts{}, s.FactsErr
	}
	return s.FactsValue, nil
}

func (s *Session) Channel() connector.Channel {
	if s.Chan == nil {
		s.Chan = NewChannel("sw1#")
	}
	return s.Chan
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return s.CloseErr
}

func (s *Session) String() string {
	if s.Name != "" {
		return s.Name
	}
	return "fake"
}

// Executed returns the commands run through Execute.
func (s *Session) Executed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.executed...)
}

// Closed returns how many times Close was called.
func (s *Session) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
