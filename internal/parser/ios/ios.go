// Package ios provides command templates for the cisco_ios dialect.
package ios

import (
	"regexp"
	"strings"

	"github.com/eugenetaranov/fwhelper/internal/parser"
)

// Dialect is the parser dialect served by this package.
const Dialect = "cisco_ios"

func init() {
	parser.Register(&ShowVersion{})
	parser.Register(&Dir{})
	parser.Register(&Ping{})
}

// ShowVersion parses "show version".
type ShowVersion struct{}

var (
	versionOSLine   = regexp.MustCompile(`^Cisco IOS.*Software.*Version`)
	versionUptime   = regexp.MustCompile(`^(\S+)\s+uptime\s+is\s+(.+)$`)
	versionImage    = regexp.MustCompile(`^System\s+image\s+file\s+is\s+"(?:[^:"]*:)?/?([^"]*)"`)
	versionHardware = regexp.MustCompile(`^[Cc]isco\s+(\S+)\s+(?:\(.+\)\s+)?processor`)
	versionSerial   = regexp.MustCompile(`^Processor\s+board\s+ID\s+(\S+)`)
	versionRegister = regexp.MustCompile(`^Configuration\s+register\s+is\s+(\S+)`)
	versionRelease  = regexp.MustCompile(`Version\s+([^,\s]+)`)
	versionSoftware = regexp.MustCompile(`\(([^)]+)\)`)
)

// Dialect returns the template dialect.
func (t *ShowVersion) Dialect() string { return Dialect }

// Command returns the parsed command.
func (t *ShowVersion) Command() string { return "show version" }

// Parse extracts one record with fields os_version, version, software_image,
// hostname, uptime, running_image, hardware, serial and config_register.
func (t *ShowVersion) Parse(raw string) ([]parser.Record, error) {
	rec := parser.Record{}

	for _, line := range lines(raw) {
		switch {
		case rec["os_version"] == "" && versionOSLine.MatchString(line):
			rec["os_version"] = line
			if m := versionRelease.FindStringSubmatch(line); m != nil {
				rec["version"] = m[1]
			}
			if m := versionSoftware.FindStringSubmatch(line); m != nil {
				rec["software_image"] = m[1]
			}
		case versionUptime.MatchString(line):
			m := versionUptime.FindStringSubmatch(line)
			rec["hostname"] = m[1]
			rec["uptime"] = m[2]
		case versionImage.MatchString(line):
			rec["running_image"] = versionImage.FindStringSubmatch(line)[1]
		case rec["hardware"] == "" && versionHardware.MatchString(line):
			rec["hardware"] = versionHardware.FindStringSubmatch(line)[1]
		case rec["serial"] == "" && versionSerial.MatchString(line):
			rec["serial"] = versionSerial.FindStringSubmatch(line)[1]
		case versionRegister.MatchString(line):
			rec["config_register"] = versionRegister.FindStringSubmatch(line)[1]
		}
	}

	if len(rec) == 0 {
		return nil, nil
	}
	return []parser.Record{rec}, nil
}

// Dir parses "dir".
type Dir struct{}

var (
	dirHeader = regexp.MustCompile(`^Directory\s+of\s+(\S+)`)
	dirEntry  = regexp.MustCompile(`^(\d+)\s+([-a-z]{4,})\s+(\d+)\s+(.*?)\s*(\S+)$`)
	dirTotals = regexp.MustCompile(`^(\d+)\s+bytes\s+total\s+\((\d+)\s+bytes\s+free\)`)
)

// Dialect returns the template dialect.
func (t *Dir) Dialect() string { return Dialect }

// Command returns the parsed command.
func (t *Dir) Command() string { return "dir" }

// Parse returns one record per directory entry with fields file_system,
// index, permissions, size, date_time, name, total_size and total_free.
// The totals are filled into every record. An empty directory yields a
// single record with an empty name.
func (t *Dir) Parse(raw string) ([]parser.Record, error) {
	var (
		records   []parser.Record
		fs        string
		total     string
		free      string
		sawTotals bool
	)

	for _, line := range lines(raw) {
		if m := dirHeader.FindStringSubmatch(line); m != nil {
			fs = strings.TrimSuffix(m[1], "/")
			continue
		}
		if m := dirTotals.FindStringSubmatch(line); m != nil {
			total, free = m[1], m[2]
			sawTotals = true
			continue
		}
		if m := dirEntry.FindStringSubmatch(line); m != nil {
			records = append(records, parser.Record{
				"index":       m[1],
				"permissions": m[2],
				"size":        m[3],
				"date_time":   strings.TrimSpace(m[4]),
				"name":        m[5],
			})
		}
	}

	if !sawTotals {
		return nil, nil
	}
	if len(records) == 0 {
		records = append(records, parser.Record{"name": ""})
	}
	for _, rec := range records {
		rec["file_system"] = fs
		rec["total_size"] = total
		rec["total_free"] = free
	}
	return records, nil
}

// Ping parses "ping <target>".
type Ping struct{}

var (
	pingSending = regexp.MustCompile(`Sending\s+(\d+),\s+(\d+)-byte\s+ICMP\s+Echos\s+to\s+(\S+?),`)
	pingSuccess = regexp.MustCompile(`Success\s+rate\s+is\s+(\d+)\s+percent\s+\((\d+)/(\d+)\)(?:,\s+round-trip\s+min/avg/max\s+=\s+(\d+)/(\d+)/(\d+)\s+ms)?`)
)

// Dialect returns the template dialect.
func (t *Ping) Dialect() string { return Dialect }

// Command returns the parsed command.
func (t *Ping) Command() string { return "ping" }

// Parse extracts one record with fields destination, sent, packet_size,
// success_rate, received, rtt_min, rtt_avg and rtt_max.
func (t *Ping) Parse(raw string) ([]parser.Record, error) {
	rec := parser.Record{}

	if m := pingSending.FindStringSubmatch(raw); m != nil {
		rec["sent"] = m[1]
		rec["packet_size"] = m[2]
		rec["destination"] = m[3]
	}
	m := pingSuccess.FindStringSubmatch(raw)
	if m == nil {
		return nil, nil
	}
	rec["success_rate"] = m[1]
	rec["received"] = m[2]
	if rec["sent"] == "" {
		rec["sent"] = m[3]
	}
	rec["rtt_min"] = m[4]
	rec["rtt_avg"] = m[5]
	rec["rtt_max"] = m[6]

	return []parser.Record{rec}, nil
}

// lines splits raw output into trimmed, non-empty lines.
func lines(raw string) []string {
	var out []string
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r", ""), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Ensure templates implement the parser.Template interface.
var (
	_ parser.Template = (*ShowVersion)(nil)
	_ parser.Template = (*Dir)(nil)
	_ parser.Template = (*Ping)(nil)
)
