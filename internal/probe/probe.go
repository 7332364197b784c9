// Package probe determines which management transport a device answers on.
package probe

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/rs/zerolog"

	"github.com/eugenetaranov/fwhelper/internal/connector"
	"github.com/eugenetaranov/fwhelper/internal/fault"
)

// Attempts is the number of connect attempts per port before it is
// declared closed.
const Attempts = 3

// DialFunc opens a TCP connection. It matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Result is the transport chosen for a device.
type Result struct {
	Transport connector.Transport
	Port      int
}

// Prober checks SSH first and falls back to Telnet.
type Prober struct {
	// SSHPort and TelnetPort default to 22 and 23.
	SSHPort    int
	TelnetPort int

	// Timeout bounds each connect attempt.
	Timeout time.Duration

	// RetryDelay is the pause between attempts on the same port.
	RetryDelay time.Duration

	// Dial overrides the TCP dialer (tests).
	Dial DialFunc

	Log zerolog.Logger
}

// New creates a prober with the standard ports.
func New(timeout time.Duration, log zerolog.Logger) *Prober {
	return &Prober{
		SSHPort:    22,
		TelnetPort: 23,
		Timeout:    timeout,
		Log:        log,
	}
}

// Probe returns the preferred reachable transport for address. SSH always
// wins when both ports are open.
func (p *Prober) Probe(ctx context.Context, address string) (Result, error) {
	candidates := []Result{
		{Transport: connector.SSH, Port: p.port(p.SSHPort, 22)},
		{Transport: connector.Telnet, Port: p.port(p.TelnetPort, 23)},
	}

	for _, c := range candidates {
		if p.IsOpen(ctx, address, c.Port) {
			p.Log.Debug().Str("device", address).Str("transport", string(c.Transport)).Int("port", c.Port).Msg("transport reachable")
			return c, nil
		}
		if err := ctx.Err(); err != nil {
			return Result{}, fault.Wrap(fault.Timeout, "probe", err)
		}
	}

	return Result{}, fault.Newf(fault.Connectivity, "probe", "SSH and Telnet connectivity failed to %s", address)
}

// IsOpen reports whether a TCP connect to address:port succeeds within
// Attempts tries.
func (p *Prober) IsOpen(ctx context.Context, address string, port int) bool {
	target := net.JoinHostPort(address, strconv.Itoa(port))

	policy := retrypolicy.Builder[net.Conn]().
		WithMaxRetries(Attempts - 1).
		WithDelay(p.RetryDelay).
		OnRetry(func(e failsafe.ExecutionEvent[net.Conn]) {
			p.Log.Debug().Str("target", target).Int("retry", e.Retries()).Err(e.LastError()).Msg("connect failed, retrying")
		}).
		Build()

	conn, err := failsafe.NewExecutor[net.Conn](policy).WithContext(ctx).Get(func() (net.Conn, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, p.timeout())
		defer cancel()
		return p.dial()(attemptCtx, "tcp", target)
	})
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func (p *Prober) dial() DialFunc {
	if p.Dial != nil {
		return p.Dial
	}
	var d net.Dialer
	return d.DialContext
}

func (p *Prober) timeout() time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return 5 * time.Second
}

func (p *Prober) port(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
