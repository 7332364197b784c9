package report

import (
	"strconv"

	"github.com/eugenetaranov/fwhelper/internal/parser"
)

// PingResult is the outcome of pinging one destination from a device.
type PingResult struct {
	SuccessRate int    `json:"success_rate" yaml:"success_rate"`
	Sent        int    `json:"sent" yaml:"sent"`
	Received    int    `json:"received" yaml:"received"`
	RTTMin      int    `json:"rtt_min,omitempty" yaml:"rtt_min,omitempty"`
	RTTAvg      int    `json:"rtt_avg,omitempty" yaml:"rtt_avg,omitempty"`
	RTTMax      int    `json:"rtt_max,omitempty" yaml:"rtt_max,omitempty"`
	Error       string `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewPingResult converts a parsed ping record.
func NewPingResult(rec parser.Record) PingResult {
	atoi := func(k string) int {
		n, _ := strconv.Atoi(rec[k])
		return n
	}
	return PingResult{
		SuccessRate: atoi("success_rate"),
		Sent:        atoi("sent"),
		Received:    atoi("received"),
		RTTMin:      atoi("rtt_min"),
		RTTAvg:      atoi("rtt_avg"),
		RTTMax:      atoi("rtt_max"),
	}
}

// PingRecord holds the pings run from one device.
type PingRecord struct {
	Device string                `json:"device" yaml:"device"`
	Pings  map[string]PingResult `json:"pings,omitempty" yaml:"pings,omitempty"`
	Error  *Failure              `json:"error,omitempty" yaml:"error,omitempty"`
}

// TransportRecord is the reachability of one device.
type TransportRecord struct {
	Device    string   `json:"device" yaml:"device"`
	Transport string   `json:"transport,omitempty" yaml:"transport,omitempty"`
	Error     *Failure `json:"error,omitempty" yaml:"error,omitempty"`
}

// Line renders "address<TAB>ssh|telnet|Error".
func (r TransportRecord) Line() string {
	if r.Error != nil || r.Transport == "" {
		return r.Device + "\tError"
	}
	return r.Device + "\t" + r.Transport
}
