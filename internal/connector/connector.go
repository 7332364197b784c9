// Package connector defines the device session boundary used by the pipelines.
package connector

import (
	"context"
	"fmt"
	"time"
)

// Transport is the management protocol used to reach a device.
type Transport string

const (
	SSH    Transport = "ssh"
	Telnet Transport = "telnet"
)

// Target describes how to reach and authenticate to one device.
// It is passed by value and never mutated after construction.
type Target struct {
	// Address is the hostname or IP address of the device.
	Address string

	// Username and Password authenticate the management session.
	Username string
	Password string

	// Secret is the optional enable secret for privileged mode.
	Secret string

	// Driver is the CLI dialect (e.g. "ios").
	Driver string

	// Timeout bounds connection setup and each blocking command.
	Timeout time.Duration
}

// NewTarget builds a Target, falling back to sane defaults for the
// driver and timeout.
func NewTarget(address, username, password, secret, driver string, timeout time.Duration) Target {
	if driver == "" {
		driver = "ios"
	}
	if timeout <= 0 {
		timeout = 100 * time.Second
	}
	return Target{
		Address:  address,
		Username: username,
		Password: password,
		Secret:   secret,
		Driver:   driver,
		Timeout:  timeout,
	}
}

// Dialect returns the command-parser dialect for the target's driver.
func (t Target) Dialect() string {
	switch t.Driver {
	case "ios", "cisco_ios", "":
		return "cisco_ios"
	default:
		return t.Driver
	}
}

// String returns a human-readable description of the target.
func (t Target) String() string {
	if t.Username != "" {
		return fmt.Sprintf("%s@%s", t.Username, t.Address)
	}
	return t.Address
}

// Facts holds identity information reported by a device.
type Facts struct {
	Hostname  string `json:"hostname" yaml:"hostname"`
	Model     string `json:"model" yaml:"model"`
	Serial    string `json:"serial_number,omitempty" yaml:"serial_number,omitempty"`
	OSVersion string `json:"os_version" yaml:"os_version"`
	Uptime    string `json:"uptime,omitempty" yaml:"uptime,omitempty"`
	Vendor    string `json:"vendor" yaml:"vendor"`
}

// Channel exposes the raw terminal primitives the interactive protocols need.
type Channel interface {
	// FindPrompt returns the current device prompt (e.g. "sw1#").
	FindPrompt(ctx context.Context) (string, error)

	// Enable escalates to privileged mode if the session is not already there.
	Enable(ctx context.Context) error

	// SendCommand writes cmd and blocks until the prompt returns.
	SendCommand(ctx context.Context, cmd string) (string, error)

	// SendCommandTiming writes cmd and returns whatever arrives before the
	// channel goes quiet, without waiting for the prompt.
	SendCommandTiming(ctx context.Context, cmd string) (string, error)

	// ReadAvailable returns buffered output without blocking.
	ReadAvailable() (string, error)

	// Write sends raw text to the channel.
	Write(s string) error
}

// Session is one authenticated, exclusively owned connection to a device.
type Session interface {
	// Execute runs each command and returns its raw output keyed by command.
	Execute(ctx context.Context, cmds []string) (map[string]string, error)

	// Facts retrieves device identity facts.
	Facts(ctx context.Context) (Facts, error)

	// Channel returns the raw terminal channel.
	Channel() Channel

	// Close terminates the connection.
	Close() error

	// String returns a human-readable description of the connection.
	String() string
}
