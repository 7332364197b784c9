package integration

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gopkg.in/yaml.v3"

	"github.com/eugenetaranov/fwhelper/internal/connector"
	"github.com/eugenetaranov/fwhelper/internal/connector/ssh"
	"github.com/eugenetaranov/fwhelper/internal/fault"
	"github.com/eugenetaranov/fwhelper/internal/probe"
	"github.com/eugenetaranov/fwhelper/internal/report"
)

const (
	sshUser     = "fwtest"
	sshPassword = "fwtest-pw"
	sshPort     = "2222/tcp"
)

var (
	fwBinaryPath string
	projectRoot  string
)

func TestMain(m *testing.M) {
	var err error
	projectRoot, err = findProjectRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to find project root: %v\n", err)
		os.Exit(1)
	}

	// Build fw binary
	fwBinaryPath = filepath.Join(projectRoot, "bin", "fw")
	fmt.Println("Building fw binary...")
	cmd := exec.Command("go", "build", "-o", fwBinaryPath, "./cmd/fw")
	cmd.Dir = projectRoot
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build fw: %v\n", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func findProjectRoot() (string, error) {
	// Start from current directory and look for go.mod
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("could not find project root (go.mod)")
		}
		dir = parent
	}
}

// setupSSHContainer starts an OpenSSH server that accepts password logins.
func setupSSHContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string, int) {
	t.Helper()

	cleanupExistingContainer()

	req := testcontainers.ContainerRequest{
		Image:        "lscr.io/linuxserver/openssh-server:latest",
		Name:         "fw-integration-test",
		ExposedPorts: []string{sshPort},
		Env: map[string]string{
			"PASSWORD_ACCESS": "true",
			"USER_NAME":       sshUser,
			"USER_PASSWORD":   sshPassword,
		},
		WaitingFor: wait.ForListeningPort(sshPort).WithStartupTimeout(90 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start test container")

	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, sshPort)
	require.NoError(t, err)

	return container, host, port.Int()
}

func cleanupExistingContainer() {
	cmd := exec.Command("docker", "rm", "-f", "fw-integration-test")
	_ = cmd.Run() // Ignore errors - container may not exist
}

// closedPort returns a local port nothing listens on.
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestSSHTransport(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, host, port := setupSSHContainer(t, ctx)

	t.Run("ServerRunning", func(t *testing.T) {
		assertCommandOutput(t, ctx, container, []string{"cat", "/etc/passwd"}, []string{sshUser})
	})

	t.Run("ProbeFindsSSH", func(t *testing.T) {
		p := probe.New(5*time.Second, zerolog.Nop())
		p.SSHPort = port
		p.TelnetPort = closedPort(t)

		res, err := p.Probe(ctx, host)
		require.NoError(t, err)
		assert.Equal(t, connector.SSH, res.Transport)
		assert.Equal(t, port, res.Port)
	})

	t.Run("ProbeNothingListening", func(t *testing.T) {
		p := probe.New(time.Second, zerolog.Nop())
		p.SSHPort = closedPort(t)
		p.TelnetPort = closedPort(t)

		_, err := p.Probe(ctx, "127.0.0.1")
		require.Error(t, err)
		assert.Equal(t, fault.Connectivity, fault.KindOf(err))
	})

	t.Run("WrongPassword", func(t *testing.T) {
		target := connector.NewTarget(host, sshUser, "not-the-password", "", "ios", 10*time.Second)
		_, err := ssh.Dial(ctx, target, port)
		require.Error(t, err)
		assert.Equal(t, fault.Authentication, fault.KindOf(err))
	})
}

func TestCLIValidate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	good := writeTemp(t, "good.tsv",
		"10.1.1.1\t15.0(2)SE11\ttftp://10.0.0.5/c2960.bin\t14000000\taa11bb22cc33dd44ee55ff6677889900\n")
	bad := writeTemp(t, "bad.tsv",
		"10.1.1.1\t15.0(2)SE11\ttftp://10.0.0.5/c2960.bin\tlarge\taa11bb22cc33dd44ee55ff6677889900\n")

	out, code := runFW(t, "validate", good)
	assert.Equal(t, 0, code, out)
	assert.Contains(t, out, "(1 jobs)")

	out, code = runFW(t, "validate", good, bad)
	assert.NotEqual(t, 0, code)
	assert.Contains(t, out, "FAIL: "+bad)
	assert.Contains(t, out, "invalid size")
}

func TestCLITemplates(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	out, code := runFW(t, "templates")
	assert.Equal(t, 0, code, out)
	for _, name := range []string{"cisco_ios/show version", "cisco_ios/dir", "cisco_ios/ping"} {
		assert.Contains(t, out, name)
	}
}

func TestCLITransferUnreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	// 192.0.2.0/24 is reserved for documentation and never routed.
	list := writeTemp(t, "transfer.tsv", strings.Join([]string{
		"192.0.2.10\t15.0(2)SE11\ttftp://10.0.0.5/c2960.bin\t14000000\taa11bb22cc33dd44ee55ff6677889900",
		"192.0.2.11\t15.0(2)SE11\ttftp://10.0.0.5/c2960.bin\tlarge\taa11bb22cc33dd44ee55ff6677889900",
	}, "\n")+"\n")
	outPath := filepath.Join(t.TempDir(), "transfer.yaml")

	out, code := runFW(t, "transfer",
		"--transfer-list", list,
		"--output", outPath,
		"--format", "yaml",
		"--delay", "1",
		"-u", "admin", "-p", "pw")
	assert.NotEqual(t, 0, code, "failed devices give a non-zero exit")
	assert.Contains(t, out, "RECAP ok=0 changed=0 failed=2 skipped=0")

	content, err := os.ReadFile(outPath)
	require.NoError(t, err)

	var records []report.Record
	require.NoError(t, yaml.Unmarshal(content, &records))
	require.Len(t, records, 2)
	assert.Equal(t, "192.0.2.10", records[0].Device)
	assert.Equal(t, fault.Connectivity, records[0].Outcome.Kind)
	assert.Equal(t, "192.0.2.11", records[1].Device)
	assert.Equal(t, fault.Parse, records[1].Outcome.Kind)
}
