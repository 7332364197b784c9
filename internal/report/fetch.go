package report

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/eugenetaranov/fwhelper/internal/connector"
	"github.com/eugenetaranov/fwhelper/internal/fault"
	"github.com/eugenetaranov/fwhelper/internal/parser"
	"github.com/eugenetaranov/fwhelper/pkg/facts"
)

// summaryColumns is the number of data columns in a summary line.
const summaryColumns = 7

// Summary is the informational view of one device.
type Summary struct {
	Hostname     string `json:"hostname" yaml:"hostname"`
	Address      string `json:"address" yaml:"address"`
	Model        string `json:"model" yaml:"model"`
	Image        string `json:"image" yaml:"image"`
	Version      string `json:"version" yaml:"version"`
	RunningImage string `json:"running_image" yaml:"running_image"`
	FreeSpace    string `json:"free_space" yaml:"free_space"`
}

// Line renders the summary as tab-separated columns.
func (s Summary) Line() string {
	return strings.Join([]string{
		s.Hostname, s.Address, s.Model, s.Image, s.Version, s.RunningImage, s.FreeSpace,
	}, "\t")
}

// BuildSummary derives the summary from facts and parsed command output.
func BuildSummary(address string, f connector.Facts, parsed map[string][]parser.Record) (Summary, error) {
	image, err := facts.ImageName(f.OSVersion)
	if err != nil {
		return Summary{}, err
	}
	version, err := facts.ImageVersion(f.OSVersion)
	if err != nil {
		return Summary{}, err
	}

	showVersion := parsed["show version"]
	dir := parsed["dir"]
	if len(showVersion) == 0 || len(dir) == 0 {
		return Summary{}, fault.New(fault.Parse, "summary", "missing show version or dir records")
	}

	return Summary{
		Hostname:     f.Hostname,
		Address:      address,
		Model:        f.Model,
		Image:        image,
		Version:      version,
		RunningImage: showVersion[0]["running_image"],
		FreeSpace:    dir[0]["total_free"],
	}, nil
}

// FetchRecord holds everything gathered from one device. On failure the
// data gathered before the failure is kept.
type FetchRecord struct {
	Device  string                     `json:"device" yaml:"device"`
	Raw     map[string]string          `json:"raw,omitempty" yaml:"raw,omitempty"`
	Parsed  map[string][]parser.Record `json:"parsed,omitempty" yaml:"parsed,omitempty"`
	Facts   *connector.Facts           `json:"facts,omitempty" yaml:"facts,omitempty"`
	Summary *Summary                   `json:"summary,omitempty" yaml:"summary,omitempty"`
	Error   *Failure                   `json:"error,omitempty" yaml:"error,omitempty"`
}

// SummaryLine renders the record. A failed record keeps the address, leaves
// the other columns blank and appends the failure.
func (r FetchRecord) SummaryLine() string {
	if r.Error == nil && r.Summary != nil {
		return r.Summary.Line()
	}

	cols := make([]string, summaryColumns, summaryColumns+1)
	cols[1] = r.Device
	detail := "no summary"
	if r.Error != nil {
		detail = fmt.Sprintf("%s: %s", r.Error.Kind, r.Error.Detail)
	}
	return strings.Join(append(cols, detail), "\t")
}

// ReadFetchRecords decodes a saved fetch report. JSON and YAML are both
// accepted.
func ReadFetchRecords(r io.Reader) ([]FetchRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read fetch output: %w", err)
	}

	var records []FetchRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("invalid fetch output: %w", err)
	}
	return records, nil
}

// SortFetchRecords orders records by device.
func SortFetchRecords(records []FetchRecord) {
	sort.Slice(records, func(i, j int) bool { return records[i].Device < records[j].Device })
}

// WriteSummary writes one summary line per record.
func WriteSummary(w io.Writer, records []FetchRecord) error {
	bw := bufio.NewWriter(w)
	for _, rec := range records {
		if _, err := fmt.Fprintln(bw, rec.SummaryLine()); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// FailedDevices returns the devices whose fetch failed with kind.
func FailedDevices(records []FetchRecord, kind fault.Kind) []string {
	failed := lo.Filter(records, func(r FetchRecord, _ int) bool {
		return r.Error != nil && r.Error.Kind == kind
	})
	return lo.Map(failed, func(r FetchRecord, _ int) string { return r.Device })
}
