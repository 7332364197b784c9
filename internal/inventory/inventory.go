// Package inventory reads device lists and transfer-job files.
package inventory

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/eugenetaranov/fwhelper/internal/connector"
	"github.com/eugenetaranov/fwhelper/internal/fault"
	"github.com/eugenetaranov/fwhelper/internal/transfer"
)

// transferFields is the column count of a transfer-job record.
const transferFields = 5

var checksumFormat = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)

// Defaults are the credentials and settings shared by every device.
type Defaults struct {
	Username string
	Password string
	Secret   string
	Driver   string
	Timeout  time.Duration
	Confirm  bool
}

// Target builds an independent target for address.
func (d Defaults) Target(address string) connector.Target {
	return connector.NewTarget(address, d.Username, d.Password, d.Secret, d.Driver, d.Timeout)
}

// RecordError is a malformed input line. It never aborts the run.
type RecordError struct {
	Line    int
	Address string
	Err     error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Device returns the address of the record, or a line reference when the
// address column is missing.
func (e *RecordError) Device() string {
	if e.Address != "" {
		return e.Address
	}
	return fmt.Sprintf("line-%d", e.Line)
}

// LoadDeviceList reads a device list file.
func LoadDeviceList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read device list: %w", err)
	}
	defer f.Close()

	return ParseDeviceList(f)
}

// ParseDeviceList returns one address per non-empty line. Lines starting
// with '#' are comments.
func ParseDeviceList(r io.Reader) ([]string, error) {
	var addrs []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		addrs = append(addrs, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read device list: %w", err)
	}
	return addrs, nil
}

// LoadTransferJobs reads a transfer-job file.
func LoadTransferJobs(path string, d Defaults) ([]transfer.Job, []*RecordError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read transfer list: %w", err)
	}
	defer f.Close()

	return ParseTransferJobs(f, d)
}

// ParseTransferJobs parses tab-delimited records
// "address, target_version, source_path, expected_size_bytes, expected_checksum".
// Malformed records are returned as RecordErrors alongside the valid jobs.
func ParseTransferJobs(r io.Reader, d Defaults) ([]transfer.Job, []*RecordError, error) {
	var (
		jobs    []transfer.Job
		badRecs []*RecordError
		lineNo  int
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}

		job, err := parseTransferRecord(line, d)
		if err != nil {
			badRecs = append(badRecs, &RecordError{
				Line:    lineNo,
				Address: strings.TrimSpace(strings.SplitN(line, "\t", 2)[0]),
				Err:     err,
			})
			continue
		}
		jobs = append(jobs, job)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read transfer list: %w", err)
	}

	return jobs, badRecs, nil
}

func parseTransferRecord(line string, d Defaults) (transfer.Job, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != transferFields {
		return transfer.Job{}, fault.Newf(fault.Parse, "transfer-list", "expected %d tab-separated fields, got %d", transferFields, len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	address, version, source, sizeRaw, checksum := fields[0], fields[1], fields[2], fields[3], fields[4]
	if address == "" || version == "" || source == "" {
		return transfer.Job{}, fault.New(fault.Parse, "transfer-list", "address, version and source are required")
	}

	size, err := strconv.ParseInt(sizeRaw, 10, 64)
	if err != nil || size < 0 {
		return transfer.Job{}, fault.Newf(fault.Parse, "transfer-list", "invalid size %q", sizeRaw)
	}
	if !checksumFormat.MatchString(checksum) {
		return transfer.Job{}, fault.Newf(fault.Parse, "transfer-list", "invalid md5 checksum %q", checksum)
	}

	return transfer.Job{
		Target:        d.Target(address),
		TargetVersion: version,
		Source:        source,
		Size:          size,
		Checksum:      strings.ToLower(checksum),
		Confirm:       d.Confirm,
	}, nil
}
