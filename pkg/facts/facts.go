// Package facts gathers identity information from network devices.
package facts

import (
	"context"
	"fmt"
	"regexp"

	"github.com/eugenetaranov/fwhelper/internal/connector"
	"github.com/eugenetaranov/fwhelper/internal/fault"
	"github.com/eugenetaranov/fwhelper/internal/parser"
)

// Runner executes device commands.
type Runner interface {
	Execute(ctx context.Context, cmds []string) (map[string]string, error)
}

var (
	imageNamePattern    = regexp.MustCompile(`.*?\((.*?)\).*`)
	imageVersionPattern = regexp.MustCompile(`.*Version ([^,\s]+)`)
)

// Gather runs "show version" and extracts the device facts.
func Gather(ctx context.Context, r Runner, dialect string) (connector.Facts, error) {
	raw, err := r.Execute(ctx, []string{"show version"})
	if err != nil {
		return connector.Facts{}, fmt.Errorf("failed to run show version: %w", err)
	}
	return FromShowVersion(dialect, raw["show version"])
}

// FromShowVersion builds facts from raw "show version" output.
func FromShowVersion(dialect, raw string) (connector.Facts, error) {
	records, err := parser.Parse(dialect, "show version", raw)
	if err != nil {
		return connector.Facts{}, err
	}

	rec := records[0]
	f := connector.Facts{
		Hostname:  rec["hostname"],
		Model:     rec["hardware"],
		Serial:    rec["serial"],
		OSVersion: rec["os_version"],
		Uptime:    rec["uptime"],
		Vendor:    "Cisco",
	}

	if f.OSVersion == "" {
		return f, fault.New(fault.Parse, "facts", "no OS version line in show version output")
	}
	return f, nil
}

// ImageName returns the software image name from an OS version string,
// e.g. "C2960-LANBASEK9-M".
func ImageName(osVersion string) (string, error) {
	m := imageNamePattern.FindStringSubmatch(osVersion)
	if m == nil {
		return "", fault.Newf(fault.Parse, "image-name", "no image name in %q", osVersion)
	}
	return m[1], nil
}

// ImageVersion returns the release from an OS version string, e.g. "12.2(55)SE7".
func ImageVersion(osVersion string) (string, error) {
	m := imageVersionPattern.FindStringSubmatch(osVersion)
	if m == nil {
		return "", fault.Newf(fault.Parse, "image-version", "no version in %q", osVersion)
	}
	return m[1], nil
}
