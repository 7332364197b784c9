package probe

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eugenetaranov/fwhelper/internal/connector"
	"github.com/eugenetaranov/fwhelper/internal/fault"
)

// listen opens a loopback listener that accepts and drops connections.
func listen(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

// closedPort returns a loopback port nothing listens on.
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func newProber(sshPort, telnetPort int) *Prober {
	p := New(time.Second, zerolog.Nop())
	p.SSHPort = sshPort
	p.TelnetPort = telnetPort
	p.RetryDelay = time.Millisecond
	return p
}

func TestProbe(t *testing.T) {
	sshOpen, telnetOpen := listen(t), listen(t)
	sshClosed, telnetClosed := closedPort(t), closedPort(t)

	tests := []struct {
		name          string
		sshPort       int
		telnetPort    int
		wantTransport connector.Transport
		wantPort      int
		wantKind      fault.Kind
	}{
		{"both open prefers ssh", sshOpen, telnetOpen, connector.SSH, sshOpen, ""},
		{"ssh only", sshOpen, telnetClosed, connector.SSH, sshOpen, ""},
		{"telnet fallback", sshClosed, telnetOpen, connector.Telnet, telnetOpen, ""},
		{"both closed", sshClosed, telnetClosed, "", 0, fault.Connectivity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newProber(tt.sshPort, tt.telnetPort).Probe(context.Background(), "127.0.0.1")
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, fault.KindOf(err))
				assert.Contains(t, err.Error(), "SSH and Telnet connectivity failed to 127.0.0.1")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTransport, res.Transport)
			assert.Equal(t, tt.wantPort, res.Port)
		})
	}
}

func TestIsOpenRetries(t *testing.T) {
	var calls atomic.Int32
	p := newProber(22, 23)
	p.Dial = func(ctx context.Context, network, address string) (net.Conn, error) {
		calls.Add(1)
		assert.Equal(t, "192.0.2.1:22", address)
		return nil, errors.New("connection refused")
	}

	assert.False(t, p.IsOpen(context.Background(), "192.0.2.1", 22))
	assert.Equal(t, int32(Attempts), calls.Load())
}

func TestIsOpenRecovers(t *testing.T) {
	var calls atomic.Int32
	p := newProber(22, 23)
	p.Dial = func(ctx context.Context, network, address string) (net.Conn, error) {
		if calls.Add(1) < Attempts {
			return nil, errors.New("connection refused")
		}
		client, server := net.Pipe()
		server.Close()
		return client, nil
	}

	assert.True(t, p.IsOpen(context.Background(), "192.0.2.1", 22))
	assert.Equal(t, int32(Attempts), calls.Load())
}

func TestProbeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newProber(22, 23)
	p.Dial = func(ctx context.Context, network, address string) (net.Conn, error) {
		return nil, ctx.Err()
	}

	_, err := p.Probe(ctx, "192.0.2.1")
	require.Error(t, err)
	assert.Equal(t, fault.Timeout, fault.KindOf(err))
}
