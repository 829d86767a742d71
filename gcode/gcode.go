// Package gcode holds the small set of G/M-code line templates the
// scheduler needs to build outgoing commands. It is deliberately not the
// exhaustive opcode-to-description catalogue a full front-end would want;
// that catalogue is treated as an external collaborator.
package gcode

import "fmt"

// Opcode identifies a single G-code or M-code line template.
type Opcode int

const (
	Move Opcode = iota
	Home
	HomeAxes
	AbsolutePosition
	RelativePosition
	SetExtruderTemp
	SetExtruderTempWait
	SetBedTemp
	SetBedTempWait
	SetFan
	FanOff
	EmergencyStop
	ReportPosition
	RequestFirmware
	RequestTemperature
	ShowMessage
	IdleHold
	PrinterSpeed
	FlowRate
	UnitsMetric
	UnitsImperial
)

var templates = map[Opcode]string{
	Move:                 "G1 %c%0.4f",
	Home:                 "G28",
	HomeAxes:             "G28 %s",
	AbsolutePosition:     "G90",
	RelativePosition:     "G91",
	SetExtruderTemp:      "M104 S%0.f T%d",
	SetExtruderTempWait:  "M109 S%0.f T%d",
	SetBedTemp:           "M140 S%0.f",
	SetBedTempWait:       "M190 S%0.f",
	SetFan:               "M106 S%d P%d",
	FanOff:               "M107 P%d",
	EmergencyStop:        "M112",
	ReportPosition:       "M114",
	RequestFirmware:      "M115",
	RequestTemperature:   "M105",
	ShowMessage:          "M117 %s",
	IdleHold:             "M18 S%d",
	PrinterSpeed:         "M220 S%d",
	FlowRate:             "M221 S%d",
	UnitsMetric:          "G21",
	UnitsImperial:        "G20",
}

var descriptions = map[Opcode]string{
	Move:                "linear move",
	Home:                "home all axes",
	HomeAxes:            "home the given axes",
	AbsolutePosition:    "use absolute positioning",
	RelativePosition:    "use relative positioning",
	SetExtruderTemp:     "set extruder temperature",
	SetExtruderTempWait: "set extruder temperature and wait",
	SetBedTemp:          "set bed temperature",
	SetBedTempWait:      "set bed temperature and wait",
	SetFan:              "set fan speed",
	FanOff:              "turn fan off",
	EmergencyStop:       "emergency stop",
	ReportPosition:      "report current position",
	RequestFirmware:     "request firmware info",
	RequestTemperature:  "request temperature report",
	ShowMessage:         "show a message on the LCD",
	IdleHold:            "set idle-hold release delay",
	PrinterSpeed:        "set printer speed percentage",
	FlowRate:            "set extruder flow rate percentage",
	UnitsMetric:         "select metric units",
	UnitsImperial:       "select imperial units",
}

// Template returns the fmt-style template registered for op, or "" if op is
// unknown.
func Template(op Opcode) string { return templates[op] }

// Description returns a short human-readable description of op.
func Description(op Opcode) string { return descriptions[op] }

// Build formats op's template with args, the way fmt.Sprintf would. It
// panics if op has no registered template, since callers only ever pass
// opcodes from this package's own constants.
func Build(op Opcode, args ...interface{}) string {
	tmpl, ok := templates[op]
	if !ok {
		panic(fmt.Sprintf("gcode: no template for opcode %d", op))
	}
	return fmt.Sprintf(tmpl, args...)
}
