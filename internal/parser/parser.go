// Package parser turns raw device command output into structured records.
package parser

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/eugenetaranov/fwhelper/internal/fault"
)

// Record is one structured row extracted from command output.
// Keys are lower-case field names (e.g. "name", "total_free").
type Record map[string]string

// Template parses the output of one command for one dialect.
type Template interface {
	// Dialect returns the device dialect (e.g. "cisco_ios").
	Dialect() string

	// Command returns the command the template parses (e.g. "dir").
	Command() string

	// Parse extracts records from raw output.
	Parse(raw string) ([]Record, error)
}

// registry holds all registered templates keyed by dialect and command.
var (
	registry   = make(map[string]Template)
	registryMu sync.RWMutex
)

func key(dialect, command string) string {
	return dialect + "/" + strings.Join(strings.Fields(command), " ")
}

// Register adds a template to the registry.
// It panics if a template for the same dialect and command is already registered.
func Register(t Template) {
	registryMu.Lock()
	defer registryMu.Unlock()

	k := key(t.Dialect(), t.Command())
	if _, exists := registry[k]; exists {
		panic(fmt.Sprintf("template %q is already registered", k))
	}
	registry[k] = t
}

// Get retrieves a template. Returns nil if none is registered.
func Get(dialect, command string) Template {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[key(dialect, command)]
}

// List returns "dialect/command" for every registered template, sorted.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Parse runs the registered template for dialect and command. A missing
// template or an output yielding no records is a parse failure.
func Parse(dialect, command, raw string) ([]Record, error) {
	t := Get(dialect, command)
	if t == nil {
		return nil, fault.Newf(fault.Parse, "parse", "no template for %s %q", dialect, command)
	}

	records, err := t.Parse(raw)
	if err != nil {
		return nil, fault.Wrap(fault.Parse, "parse "+command, err)
	}
	if len(records) == 0 {
		return nil, fault.Newf(fault.Parse, "parse", "no records in %q output", command)
	}
	return records, nil
}
