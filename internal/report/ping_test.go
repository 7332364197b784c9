package report

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eugenetaranov/fwhelper/internal/fault"
	"github.com/eugenetaranov/fwhelper/internal/parser"
)

func TestNewPingResult(t *testing.T) {
	got := NewPingResult(parser.Record{
		"success_rate": "60",
		"sent":         "5",
		"received":     "3",
		"rtt_min":      "1",
		"rtt_avg":      "2",
		"rtt_max":      "4",
	})
	assert.Equal(t, PingResult{SuccessRate: 60, Sent: 5, Received: 3, RTTMin: 1, RTTAvg: 2, RTTMax: 4}, got)

	assert.Equal(t, PingResult{Sent: 5}, NewPingResult(parser.Record{"success_rate": "0", "sent": "5", "received": "0", "rtt_avg": ""}))
}

func TestTransportRecordLine(t *testing.T) {
	tests := []struct {
		name string
		rec  TransportRecord
		want string
	}{
		{"ssh", TransportRecord{Device: "10.1.1.1", Transport: "ssh"}, "10.1.1.1\tssh"},
		{"telnet", TransportRecord{Device: "10.1.1.2", Transport: "telnet"}, "10.1.1.2\ttelnet"},
		{"unreachable", TransportRecord{Device: "10.1.1.3", Error: &Failure{Kind: fault.Connectivity}}, "10.1.1.3\tError"},
		{"empty", TransportRecord{Device: "10.1.1.4"}, "10.1.1.4\tError"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rec.Line())
		})
	}
}
