package inventory

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eugenetaranov/fwhelper/internal/fault"
)

var defaults = Defaults{
	Username: "admin",
	Password: "pw",
	Secret:   "en",
	Driver:   "ios",
	Timeout:  100 * time.Second,
	Confirm:  true,
}

func TestParseDeviceList(t *testing.T) {
	input := "10.1.1.1\n\n# core\n  10.1.1.2  \nsw3.example.net\n"

	addrs, err := ParseDeviceList(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"10.1.1.1", "10.1.1.2", "sw3.example.net"}, addrs)
}

func TestLoadDeviceList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.txt")
	require.NoError(t, os.WriteFile(path, []byte("10.1.1.1\r\n10.1.1.2\r\n"), 0o644))

	addrs, err := LoadDeviceList(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.1.1.1", "10.1.1.2"}, addrs)

	_, err = LoadDeviceList(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestParseTransferJobs(t *testing.T) {
	input := strings.Join([]string{
		"10.1.1.1\t15.0(2)SE11\ttftp://10.0.0.5/c2960.bin\t14000000\tAA11BB22CC33DD44EE55FF6677889900",
		"# comment",
		"",
		"10.1.1.2\t15.0(2)SE11\ttftp://10.0.0.5/c2960.bin\t14000000",
		"10.1.1.3\t15.0(2)SE11\ttftp://10.0.0.5/c2960.bin\tbig\taa11bb22cc33dd44ee55ff6677889900",
		"10.1.1.4\t15.0(2)SE11\ttftp://10.0.0.5/c2960.bin\t14000000\tnot-a-sum",
		"\t15.0(2)SE11\ttftp://10.0.0.5/c2960.bin\t1\taa11bb22cc33dd44ee55ff6677889900",
		"10.1.1.6\t15.0(2)SE11\tflash:c2960.bin\t0\taa11bb22cc33dd44ee55ff6677889900\r",
	}, "\n")

	jobs, bad, err := ParseTransferJobs(strings.NewReader(input), defaults)
	require.NoError(t, err)

	require.Len(t, jobs, 2)
	job := jobs[0]
	assert.Equal(t, "10.1.1.1", job.Device())
	assert.Equal(t, "15.0(2)SE11", job.TargetVersion)
	assert.Equal(t, "tftp://10.0.0.5/c2960.bin", job.Source)
	assert.Equal(t, int64(14000000), job.Size)
	assert.Equal(t, "aa11bb22cc33dd44ee55ff6677889900", job.Checksum)
	assert.True(t, job.Confirm)
	assert.Equal(t, "admin", job.Target.Username)
	assert.Equal(t, "en", job.Target.Secret)
	assert.Equal(t, "cisco_ios", job.Target.Dialect())

	assert.Equal(t, "10.1.1.6", jobs[1].Device())
	assert.Zero(t, jobs[1].Size)

	require.Len(t, bad, 4)
	wantLines := []int{4, 5, 6, 7}
	wantDevices := []string{"10.1.1.2", "10.1.1.3", "10.1.1.4", "line-7"}
	for i, rec := range bad {
		assert.Equal(t, wantLines[i], rec.Line)
		assert.Equal(t, wantDevices[i], rec.Device())
		assert.Equal(t, fault.Parse, fault.KindOf(rec))
	}
	assert.Contains(t, bad[0].Error(), "line 4: ")
	assert.Contains(t, bad[0].Error(), "expected 5 tab-separated fields, got 4")
}

func TestJobsAreIndependent(t *testing.T) {
	input := "10.1.1.1\tv1\tflash:a.bin\t1\taa11bb22cc33dd44ee55ff6677889900\n" +
		"10.1.1.2\tv1\tflash:a.bin\t1\taa11bb22cc33dd44ee55ff6677889900\n"

	jobs, _, err := ParseTransferJobs(strings.NewReader(input), defaults)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	jobs[0].Target.Password = "changed"
	assert.Equal(t, "pw", jobs[1].Target.Password)
}

func TestLoadTransferJobs(t *testing.T) {
	_, _, err := LoadTransferJobs(filepath.Join(t.TempDir(), "missing.txt"), defaults)
	assert.Error(t, err)
}

func TestDefaultsTarget(t *testing.T) {
	target := Defaults{}.Target("10.1.1.1")
	assert.Equal(t, "ios", target.Driver)
	assert.Equal(t, 100*time.Second, target.Timeout)
	assert.Equal(t, "10.1.1.1", target.String())
}
