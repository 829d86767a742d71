package dialect

import (
	"fmt"
	"strings"
)

// grbl adapts the teacher's GRBLStatus parser (spjs/grblstatus.go) into the
// Dialect capability set: realtime `<...>` status reports become
// dialect-defined PrinterStatus events (forwarded by the scheduler as
// PrinterStatusChanged) instead of temperature updates, since GRBL has no
// heated bed/extruder concept. "ok" and "error:N" both free the one
// command slot GRBL's ack protocol grants; classifying error:N as an
// ordinary Ack (rather than stalling the queue on it) matches GRBL's own
// one-line-per-ack behaviour. Because error:N is an Ack, the scheduler does
// not publish it as a ReceivedMessage, so its text does not reach observers.
type grbl struct{}

func init() { Register(grbl{}) }

func (grbl) Name() string { return "GRBL" }

func (grbl) Encode(line string) []byte {
	switch line {
	case "!", "~", "\x18":
		// Realtime commands have no line terminator.
		return []byte(line)
	}
	return []byte(line + "\n")
}

func (grbl) Classify(reply string) Reply {
	reply = strings.TrimSpace(reply)
	if strings.HasPrefix(reply, "<") {
		return Reply{Kind: Status, Status: parseGRBLStatus(reply)}
	}
	if reply == "ok" {
		return Reply{Kind: Ack}
	}
	if strings.HasPrefix(reply, "error:") {
		return Reply{Kind: Ack}
	}
	return Reply{Kind: Other}
}

func parseGRBLStatus(data string) PrinterStatus {
	stat := PrinterStatus{Raw: data}

	data = strings.TrimPrefix(data, "<")
	data = strings.TrimSuffix(data, ">")
	parts := strings.Split(data, "|")
	if len(parts) == 0 {
		return stat
	}
	stat.State = parts[0]

	for _, part := range parts[1:] {
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "MPos":
			fmt.Sscanf(kv[1], "%f,%f,%f", &stat.MachineX, &stat.MachineY, &stat.MachineZ)
			stat.WorkX, stat.WorkY, stat.WorkZ = stat.MachineX, stat.MachineY, stat.MachineZ
		case "WPos":
			fmt.Sscanf(kv[1], "%f,%f,%f", &stat.WorkX, &stat.WorkY, &stat.WorkZ)
			stat.MachineX, stat.MachineY, stat.MachineZ = stat.WorkX, stat.WorkY, stat.WorkZ
		}
	}

	return stat
}
