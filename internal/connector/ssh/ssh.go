// Package ssh opens device CLI sessions over SSH.
package ssh

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/eugenetaranov/fwhelper/internal/connector"
	"github.com/eugenetaranov/fwhelper/internal/connector/terminal"
	"github.com/eugenetaranov/fwhelper/internal/fault"
)

// DefaultPort is the standard SSH port.
const DefaultPort = 22

// shell bundles the PTY shell streams so the terminal can own them.
type shell struct {
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
}

func (s *shell) Read(p []byte) (int, error)  { return s.stdout.Read(p) }
func (s *shell) Write(p []byte) (int, error) { return s.stdin.Write(p) }

func (s *shell) Close() error {
	_ = s.stdin.Close()
	return s.session.Close()
}

// Dial connects to target on port, starts an interactive shell and
// prepares the CLI (prompt, enable, paging).
func Dial(ctx context.Context, target connector.Target, port int, opts ...terminal.Option) (*terminal.Session, error) {
	if port == 0 {
		port = DefaultPort
	}
	addr := net.JoinHostPort(target.Address, strconv.Itoa(port))

	config := &ssh.ClientConfig{
		User: target.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(target.Password),
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = target.Password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         target.Timeout,
	}

	// Older IOS images only offer legacy algorithms.
	config.KeyExchanges = append(config.KeyExchanges,
		"curve25519-sha256", "ecdh-sha2-nistp256", "diffie-hellman-group14-sha256",
		"diffie-hellman-group14-sha1", "diffie-hellman-group1-sha1")
	config.Ciphers = append(config.Ciphers,
		"aes128-gcm@openssh.com", "aes128-ctr", "aes192-ctr", "aes256-ctr", "aes128-cbc", "3des-cbc")

	dialer := net.Dialer{Timeout: target.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fault.Wrap(fault.Connectivity, "ssh-dial", err)
	}

	if target.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(target.Timeout))
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, fault.Wrap(fault.Authentication, "ssh-auth", err)
		}
		return nil, fault.Wrap(fault.Connectivity, "ssh-handshake", err)
	}
	_ = conn.SetDeadline(time.Time{})
	client := ssh.NewClient(c, chans, reqs)

	sh, err := startShell(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to start shell on %s: %w", addr, err)
	}

	opts = append([]terminal.Option{
		terminal.WithName("ssh://" + target.Username + "@" + addr),
		terminal.WithCloser(client.Close),
	}, opts...)
	sess := terminal.New(sh, target, opts...)

	if err := sess.Prepare(ctx); err != nil {
		_ = sess.Close()
		return nil, err
	}
	return sess, nil
}

// startShell requests a PTY and starts the remote shell.
func startShell(client *ssh.Client) (*shell, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("vt100", 0, 511, modes); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("request for pseudo terminal failed: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	if err := session.Shell(); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to start shell: %w", err)
	}

	return &shell{session: session, stdin: stdin, stdout: stdout}, nil
}
