package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eugenetaranov/fwhelper/internal/connector"
	"github.com/eugenetaranov/fwhelper/internal/fault"
	"github.com/eugenetaranov/fwhelper/internal/parser"
)

var sw1Facts = connector.Facts{
	Hostname:  "sw1",
	Model:     "WS-C2960-24TT-L",
	OSVersion: "Cisco IOS Software, C2960 Software (C2960-LANBASEK9-M), Version 12.2(55)SE7, RELEASE SOFTWARE (fc1)",
	Vendor:    "Cisco",
}

var sw1Parsed = map[string][]parser.Record{
	"show version": {{"running_image": "c2960-lanbasek9-mz.122-55.SE7.bin"}},
	"dir":          {{"name": "vlan.dat", "total_free": "20095488"}},
}

func TestBuildSummary(t *testing.T) {
	s, err := BuildSummary("10.1.1.1", sw1Facts, sw1Parsed)
	require.NoError(t, err)

	assert.Equal(t, "sw1\t10.1.1.1\tWS-C2960-24TT-L\tC2960-LANBASEK9-M\t12.2(55)SE7\tc2960-lanbasek9-mz.122-55.SE7.bin\t20095488", s.Line())
}

func TestBuildSummaryErrors(t *testing.T) {
	_, err := BuildSummary("10.1.1.1", connector.Facts{OSVersion: "unknown"}, sw1Parsed)
	assert.Equal(t, fault.Parse, fault.KindOf(err))

	_, err = BuildSummary("10.1.1.1", sw1Facts, map[string][]parser.Record{"dir": sw1Parsed["dir"]})
	assert.Equal(t, fault.Parse, fault.KindOf(err))
}

func TestSummaryLine(t *testing.T) {
	ok := FetchRecord{Device: "10.1.1.1", Summary: &Summary{Hostname: "sw1", Address: "10.1.1.1"}}
	assert.Equal(t, "sw1\t10.1.1.1\t\t\t\t\t", ok.SummaryLine())

	failed := FetchRecord{
		Device: "10.1.1.2",
		Error:  &Failure{Kind: fault.Authentication, Detail: "login rejected"},
	}
	assert.Equal(t, "\t10.1.1.2\t\t\t\t\t\tAuthenticationFailure: login rejected", failed.SummaryLine())

	empty := FetchRecord{Device: "10.1.1.3"}
	assert.Equal(t, "\t10.1.1.3\t\t\t\t\t\tno summary", empty.SummaryLine())
}

func TestReadFetchRecords(t *testing.T) {
	records := []FetchRecord{
		{
			Device:  "10.1.1.1",
			Raw:     map[string]string{"dir": "Directory of flash:/"},
			Parsed:  sw1Parsed,
			Facts:   &sw1Facts,
			Summary: &Summary{Hostname: "sw1", Address: "10.1.1.1", FreeSpace: "20095488"},
		},
		{
			Device: "10.1.1.2",
			Error:  &Failure{Kind: fault.Connectivity, Detail: "SSH and Telnet connectivity failed to 10.1.1.2"},
		},
	}

	for _, format := range []Format{JSON, YAML} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Write(&buf, format, records))

			got, err := ReadFetchRecords(&buf)
			require.NoError(t, err)
			assert.Equal(t, records, got)
		})
	}
}

func TestReadFetchRecordsInvalid(t *testing.T) {
	_, err := ReadFetchRecords(bytes.NewBufferString("{device: [unterminated"))
	assert.Error(t, err)
}

func TestWriteSummaryAndFailedDevices(t *testing.T) {
	records := []FetchRecord{
		{Device: "10.1.1.3", Error: &Failure{Kind: fault.Connectivity, Detail: "down"}},
		{Device: "10.1.1.1", Summary: &Summary{Hostname: "sw1", Address: "10.1.1.1"}},
		{Device: "10.1.1.2", Error: &Failure{Kind: fault.Authentication, Detail: "denied"}},
		{Device: "10.1.1.4", Error: &Failure{Kind: fault.Connectivity, Detail: "down"}},
	}
	SortFetchRecords(records)

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, records))
	assert.Equal(t, "sw1\t10.1.1.1\t\t\t\t\t\n"+
		"\t10.1.1.2\t\t\t\t\t\tAuthenticationFailure: denied\n"+
		"\t10.1.1.3\t\t\t\t\t\tConnectivityFailure: down\n"+
		"\t10.1.1.4\t\t\t\t\t\tConnectivityFailure: down\n", buf.String())

	assert.Equal(t, []string{"10.1.1.3", "10.1.1.4"}, FailedDevices(records, fault.Connectivity))
	assert.Equal(t, []string{"10.1.1.2"}, FailedDevices(records, fault.Authentication))
	assert.Empty(t, FailedDevices(records, fault.Timeout))
}
