package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("fw", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fw.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	s, err := Load(newFlags(t))
	require.NoError(t, err)

	assert.Equal(t, 80, s.Parallel)
	assert.Equal(t, 10, s.Delay)
	assert.Equal(t, "ios", s.Driver)
	assert.False(t, s.ConfirmCopy)
	assert.Equal(t, "output.json", s.Output)
	assert.Equal(t, time.Second, s.PollInterval)
	assert.Equal(t, 2*time.Hour, s.CopyTimeout)
	assert.Equal(t, "flash:", s.FileSystem)
	assert.Equal(t, 100*time.Second, s.TargetTimeout())
	assert.Equal(t, 10*time.Second, s.ProbeTimeout())
}

func TestLoadWithoutFlags(t *testing.T) {
	s, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 80, s.Parallel)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, "user: file-user\nparallel: 20\ndelay: 3\ncopy-timeout: 45m\n")

	t.Run("file over defaults", func(t *testing.T) {
		s, err := Load(newFlags(t, "--config", path))
		require.NoError(t, err)
		assert.Equal(t, "file-user", s.User)
		assert.Equal(t, 20, s.Parallel)
		assert.Equal(t, 45*time.Minute, s.CopyTimeout)
		assert.Equal(t, 30*time.Second, s.TargetTimeout())
	})

	t.Run("env over file", func(t *testing.T) {
		t.Setenv("FW_USER", "env-user")
		t.Setenv("FW_CONFIRM_COPY", "true")
		s, err := Load(newFlags(t, "--config", path))
		require.NoError(t, err)
		assert.Equal(t, "env-user", s.User)
		assert.True(t, s.ConfirmCopy)
	})

	t.Run("flag over env", func(t *testing.T) {
		t.Setenv("FW_USER", "env-user")
		s, err := Load(newFlags(t, "--config", path, "-u", "flag-user", "-n", "5"))
		require.NoError(t, err)
		assert.Equal(t, "flag-user", s.User)
		assert.Equal(t, 5, s.Parallel)
	})
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		args func(t *testing.T) []string
		want string
	}{
		{
			name: "unknown config key",
			args: func(t *testing.T) []string {
				return []string{"--config", writeConfig(t, "parallell: 3\n")}
			},
			want: "unknown settings: parallell",
		},
		{
			name: "zero parallel",
			args: func(*testing.T) []string { return []string{"-n", "0"} },
			want: "parallel must be at least 1",
		},
		{
			name: "bad format",
			args: func(*testing.T) []string { return []string{"--format", "xml"} },
			want: "unknown report format",
		},
		{
			name: "missing config file",
			args: func(*testing.T) []string { return []string{"--config", "/nonexistent/fw.yaml"} },
			want: "failed to read config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(newFlags(t, tt.args(t)...))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDefaultsAndLogging(t *testing.T) {
	s, err := Load(newFlags(t, "-u", "admin", "-p", "pw", "-e", "sec", "--confirm-copy", "--delay", "2", "-d", "--no-color"))
	require.NoError(t, err)

	d := s.Defaults()
	assert.Equal(t, "admin", d.Username)
	assert.Equal(t, "pw", d.Password)
	assert.Equal(t, "sec", d.Secret)
	assert.True(t, d.Confirm)
	assert.Equal(t, 20*time.Second, d.Timeout)

	lc := s.Logging()
	assert.True(t, lc.Debug)
	assert.False(t, lc.Console)
}
