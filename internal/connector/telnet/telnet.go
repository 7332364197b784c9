// Package telnet opens device CLI sessions over Telnet.
package telnet

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/eugenetaranov/fwhelper/internal/connector"
	"github.com/eugenetaranov/fwhelper/internal/connector/terminal"
	"github.com/eugenetaranov/fwhelper/internal/fault"
)

// DefaultPort is the standard Telnet port.
const DefaultPort = 23

// Telnet protocol bytes (RFC 854).
const (
	cmdSE   = 240
	cmdSB   = 250
	cmdWILL = 251
	cmdWONT = 252
	cmdDO   = 253
	cmdDONT = 254
	cmdIAC  = 255

	optEcho = 1
	optSGA  = 3
)

// Reader states for option negotiation.
const (
	stateData = iota
	stateIAC
	stateOption
	stateSub
	stateSubIAC
)

// Conn is a Telnet byte stream. Reads strip negotiation sequences and
// answer them; writes escape IAC bytes.
type Conn struct {
	net.Conn

	wmu   sync.Mutex
	state int
	verb  byte
}

// NewConn wraps an established TCP connection.
func NewConn(c net.Conn) *Conn {
	return &Conn{Conn: c}
}

// Read returns application data with Telnet commands removed.
func (c *Conn) Read(p []byte) (int, error) {
	for {
		raw := make([]byte, len(p))
		n, err := c.Conn.Read(raw)

		out := 0
		for _, b := range raw[:n] {
			switch c.state {
			case stateData:
				if b == cmdIAC {
					c.state = stateIAC
					continue
				}
				p[out] = b
				out++
			case stateIAC:
				switch b {
				case cmdIAC:
					p[out] = b
					out++
					c.state = stateData
				case cmdWILL, cmdWONT, cmdDO, cmdDONT:
					c.verb = b
					c.state = stateOption
				case cmdSB:
					c.state = stateSub
				default:
					c.state = stateData
				}
			case stateOption:
				c.reply(c.verb, b)
				c.state = stateData
			case stateSub:
				if b == cmdIAC {
					c.state = stateSubIAC
				}
			case stateSubIAC:
				if b == cmdSE {
					c.state = stateData
				} else {
					c.state = stateSub
				}
			}
		}

		if out > 0 || err != nil {
			return out, err
		}
	}
}

// reply accepts server echo and suppress-go-ahead and refuses everything else.
func (c *Conn) reply(verb, opt byte) {
	var answer byte
	switch verb {
	case cmdWILL:
		if opt == optEcho || opt == optSGA {
			answer = cmdDO
		} else {
			answer = cmdDONT
		}
	case cmdDO:
		if opt == optSGA {
			answer = cmdWILL
		} else {
			answer = cmdWONT
		}
	default:
		return
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, _ = c.Conn.Write([]byte{cmdIAC, answer, opt})
}

// Write sends p, doubling any IAC bytes.
func (c *Conn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	escaped := make([]byte, 0, len(p))
	for _, b := range p {
		if b == cmdIAC {
			escaped = append(escaped, cmdIAC)
		}
		escaped = append(escaped, b)
	}
	if _, err := c.Conn.Write(escaped); err != nil {
		return 0, err
	}
	return len(p), nil
}

// loginFailures are device messages meaning the credentials were refused.
var loginFailures = []string{
	"% Authentication failed",
	"% Login invalid",
	"% Bad passwords",
	"Login incorrect",
	"Access denied",
}

// Dial connects to target on port, logs in and prepares the CLI.
func Dial(ctx context.Context, target connector.Target, port int, opts ...terminal.Option) (*terminal.Session, error) {
	if port == 0 {
		port = DefaultPort
	}
	addr := net.JoinHostPort(target.Address, strconv.Itoa(port))

	dialer := net.Dialer{Timeout: target.Timeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fault.Wrap(fault.Connectivity, "telnet-dial", err)
	}

	opts = append([]terminal.Option{terminal.WithName("telnet://" + target.Username + "@" + addr)}, opts...)
	sess := terminal.New(NewConn(raw), target, opts...)

	if err := login(ctx, sess, target); err != nil {
		_ = sess.Close()
		return nil, err
	}
	if err := sess.Prepare(ctx); err != nil {
		_ = sess.Close()
		return nil, err
	}
	return sess, nil
}

// login answers the username and password prompts until a CLI prompt appears.
func login(ctx context.Context, sess *terminal.Session, target connector.Target) error {
	sentPassword := false

	for attempt := 0; attempt < 4; attempt++ {
		out, err := sess.WaitFor(ctx, func(acc string) bool {
			last := terminal.LastLine(acc)
			return isUserPrompt(last) || strings.HasSuffix(last, "assword:") ||
				terminal.IsPrompt(last) || hasLoginFailure(acc)
		})
		if err != nil {
			return fault.Wrap(fault.Authentication, "telnet-login", fmt.Errorf("no login prompt: %w", err))
		}

		last := terminal.LastLine(out)
		switch {
		case hasLoginFailure(out):
			return fault.New(fault.Authentication, "telnet-login", "credentials rejected")
		case terminal.IsPrompt(last):
			return nil
		case isUserPrompt(last):
			if sentPassword {
				return fault.New(fault.Authentication, "telnet-login", "credentials rejected")
			}
			if err := sess.Write(target.Username + "\n"); err != nil {
				return err
			}
		case strings.HasSuffix(last, "assword:"):
			if sentPassword {
				return fault.New(fault.Authentication, "telnet-login", "credentials rejected")
			}
			if err := sess.Write(target.Password + "\n"); err != nil {
				return err
			}
			sentPassword = true
		}
	}

	return fault.New(fault.Authentication, "telnet-login", "login did not reach a prompt")
}

func isUserPrompt(line string) bool {
	return strings.HasSuffix(line, "sername:") || strings.HasSuffix(line, "ogin:")
}

func hasLoginFailure(out string) bool {
	for _, msg := range loginFailures {
		if strings.Contains(out, msg) {
			return true
		}
	}
	return false
}
