// Package dialect provides the firmware-dialect capability set: how an
// outgoing line is put on the wire, and how an inbound reply line is
// classified. Variants are registered statically by name (with room for an
// embedding application to register more at runtime), replacing the
// source's dynamic plugin loading.
package dialect

import (
	"fmt"
	"strings"
	"sync"
)

// Kind classifies a single reply line from the firmware.
type Kind int

const (
	// Other is anything that isn't an acknowledgement, a wait, or a
	// temperature report. It is forwarded to observers only.
	Other Kind = iota
	// Ack is an "ok"-class reply: it clears the in-flight slot and is the
	// only event that permits the next dequeue.
	Ack
	// Wait is an informational "still here, not done yet" reply. It does
	// not consume the in-flight slot.
	Wait
	// TemperatureReport carries a parsed Temperature.
	TemperatureReport
	// Status carries a dialect-defined realtime status report (GRBL-style).
	Status
)

// Temperature is the dialect-neutral shape of a parsed temperature report.
// atcore.Temperature is built from this.
type Temperature struct {
	ExtruderCurrent float32
	ExtruderTarget  float32
	BedCurrent      float32
	BedTarget       float32
}

// PrinterStatus is the dialect-neutral shape of a realtime status report,
// modelled on GRBL's `<...>` status line.
type PrinterStatus struct {
	State string
	// MachineX/Y/Z and WorkX/Y/Z are populated when the dialect reports
	// positions (GRBL's MPos/WPos fields); left zero otherwise.
	MachineX, MachineY, MachineZ float64
	WorkX, WorkY, WorkZ          float64
	Raw                          string
}

// Reply is the result of classifying one inbound line.
type Reply struct {
	Kind        Kind
	Temperature Temperature
	Status      PrinterStatus
}

// Dialect is the capability set a firmware variant implements: identify
// itself, encode outgoing lines, and classify inbound ones.
type Dialect interface {
	// Name is the stable identifier used for discovery and selection.
	Name() string
	// Encode returns the final on-wire form of line: by default, the
	// native encoding plus a single newline terminator.
	Encode(line string) []byte
	// Classify inspects a single inbound reply line (already stripped of
	// its terminator) and reports what it means.
	Classify(reply string) Reply
}

var (
	mu       sync.RWMutex
	registry = map[string]Dialect{}
)

// Register adds (or replaces) a dialect under its own Name() in the
// package-level registry. Built-in dialects call this from their init().
func Register(d Dialect) {
	mu.Lock()
	defer mu.Unlock()
	registry[d.Name()] = d
}

// Lookup returns the dialect registered under name, or an error if none is
// registered (the spec's "unrecognised dialect name requested" case).
func Lookup(name string) (Dialect, error) {
	mu.RLock()
	defer mu.RUnlock()
	d, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("dialect: unrecognised firmware dialect %q", name)
	}
	return d, nil
}

// Names returns the names of every registered dialect, for
// ListFirmwarePlugins().
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// Detect returns a registered dialect whose name appears as a
// case-insensitive substring of message, or false if none match; when
// several names match, which one is returned is not defined. Used by
// firmware auto-detection against an M115 reply.
func Detect(message string) (Dialect, bool) {
	mu.RLock()
	defer mu.RUnlock()
	lower := strings.ToLower(message)
	for name, d := range registry {
		if strings.Contains(lower, strings.ToLower(name)) {
			return d, true
		}
	}
	return nil, false
}
