package dialect

import (
	"strconv"
	"strings"
)

// textual implements the shared ok/wait/T:/B: parsing rules common to
// Marlin and Repetier-style firmware. Ported from AtCore's MarlinPlugin
// (extractTemp/validateCommand): split the reply on whitespace, find the
// token-prefixed field and the "/target" field that follows it, parse both
// as floats, and degrade silently to Other on anything that doesn't fit —
// the textual protocol is liberal in practice and partial reports must not
// stall the pipeline.
type textual struct {
	name string
}

func (t textual) Name() string { return t.name }

func (t textual) Encode(line string) []byte {
	return []byte(line + "\n")
}

func (t textual) Classify(reply string) Reply {
	if temp, ok := parseTemperature(reply); ok {
		return Reply{Kind: TemperatureReport, Temperature: temp}
	}
	if strings.Contains(reply, "ok") {
		return Reply{Kind: Ack}
	}
	if strings.Contains(reply, "wait") {
		return Reply{Kind: Wait}
	}
	return Reply{Kind: Other}
}

// parseTemperature recognises replies of the form
// "ok T:185.4 /185.0 B:60.5 /60.0" (T0: is read as the extruder field; T1:
// and other tool fields are ignored). A T:, T0: or B: field whose value
// does not parse as a number is skipped; ok is false only when no such
// field parses.
func parseTemperature(reply string) (Temperature, bool) {
	fields := strings.Fields(reply)

	var temp Temperature
	var found bool

	for i := 0; i < len(fields); i++ {
		field := fields[i]
		colon := strings.IndexByte(field, ':')
		if colon < 0 {
			continue
		}
		key := field[:colon]
		if key != "T" && key != "T0" && key != "B" {
			continue
		}

		current, err := strconv.ParseFloat(field[colon+1:], 32)
		if err != nil {
			continue
		}

		var target float64
		if i+1 < len(fields) && strings.HasPrefix(fields[i+1], "/") {
			if t, err := strconv.ParseFloat(fields[i+1][1:], 32); err == nil {
				target = t
			}
			i++
		}

		found = true
		switch key {
		case "T", "T0":
			temp.ExtruderCurrent = float32(current)
			temp.ExtruderTarget = float32(target)
		case "B":
			temp.BedCurrent = float32(current)
			temp.BedTarget = float32(target)
		}
	}

	return temp, found
}
