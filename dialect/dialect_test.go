package dialect

import "testing"

func TestTextualClassifiesAck(t *testing.T) {
	d, err := Lookup("Marlin")
	if err != nil {
		t.Fatal(err)
	}
	r := d.Classify("ok")
	if r.Kind != Ack {
		t.Fatalf("got %v, want Ack", r.Kind)
	}
}

func TestTextualClassifiesWait(t *testing.T) {
	d, _ := Lookup("Repetier")
	r := d.Classify("wait")
	if r.Kind != Wait {
		t.Fatalf("got %v, want Wait", r.Kind)
	}
}

func TestTextualParsesTemperatureReport(t *testing.T) {
	d, _ := Lookup("Marlin")
	r := d.Classify("ok T:185.4 /185.0 B:60.5 /60.0")
	if r.Kind != TemperatureReport {
		t.Fatalf("got %v, want TemperatureReport", r.Kind)
	}
	want := Temperature{ExtruderCurrent: 185.4, ExtruderTarget: 185.0, BedCurrent: 60.5, BedTarget: 60.0}
	if r.Temperature != want {
		t.Fatalf("got %+v, want %+v", r.Temperature, want)
	}
}

func TestTextualParseIsIdempotent(t *testing.T) {
	d, _ := Lookup("Marlin")
	const line = "ok T:185.4 /185.0 B:60.5 /60.0"
	a := d.Classify(line)
	b := d.Classify(line)
	if a.Temperature != b.Temperature {
		t.Fatalf("parsing twice gave different results: %+v vs %+v", a.Temperature, b.Temperature)
	}
}

func TestTextualMalformedReportDegradesToOther(t *testing.T) {
	d, _ := Lookup("Marlin")
	r := d.Classify("T:notanumber")
	if r.Kind != Other {
		t.Fatalf("got %v, want Other", r.Kind)
	}
}

func TestDetectCaseInsensitiveSubstring(t *testing.T) {
	d, ok := Detect("FIRMWARE_NAME:Marlin 1.1.9")
	if !ok || d.Name() != "Marlin" {
		t.Fatalf("got %v, %v, want Marlin", d, ok)
	}
}

func TestLookupUnknownDialect(t *testing.T) {
	_, err := Lookup("NoSuchFirmware")
	if err == nil {
		t.Fatalf("expected error for unknown dialect")
	}
}

func TestGRBLStatusParsing(t *testing.T) {
	d, _ := Lookup("GRBL")
	r := d.Classify("<Idle|MPos:1.000,2.000,3.000|FS:0,0>")
	if r.Kind != Status {
		t.Fatalf("got %v, want Status", r.Kind)
	}
	if r.Status.State != "Idle" || r.Status.MachineX != 1 || r.Status.MachineY != 2 || r.Status.MachineZ != 3 {
		t.Fatalf("got %+v", r.Status)
	}
}

func TestGRBLAckAndError(t *testing.T) {
	d, _ := Lookup("GRBL")
	if r := d.Classify("ok"); r.Kind != Ack {
		t.Fatalf("got %v, want Ack", r.Kind)
	}
	if r := d.Classify("error:9"); r.Kind != Ack {
		t.Fatalf("got %v, want Ack for error reply", r.Kind)
	}
}

func TestEncodeAppendsNewline(t *testing.T) {
	d, _ := Lookup("Marlin")
	got := d.Encode("G28")
	if string(got) != "G28\n" {
		t.Fatalf("got %q, want %q", got, "G28\n")
	}
}
