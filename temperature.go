package atcore

import "github.com/atgocore/atcore/dialect"

// Temperature is a snapshot of the extruder and bed temperatures. Writes
// originate exclusively from dialect classification on the scheduler
// goroutine; this type is otherwise a plain value copied out to observers.
type Temperature struct {
	ExtruderCurrent float32
	ExtruderTarget  float32
	BedCurrent      float32
	BedTarget       float32
}

func fromDialect(t dialect.Temperature) Temperature {
	return Temperature{
		ExtruderCurrent: t.ExtruderCurrent,
		ExtruderTarget:  t.ExtruderTarget,
		BedCurrent:      t.BedCurrent,
		BedTarget:       t.BedTarget,
	}
}

// reached reports whether cur is within eps of target — the heat-and-wait
// completion check (§4.6). eps defaults to 0.5°C (SchedulerConfig's
// HeatWaitEpsilon) when the caller passes 0.
func reached(cur, target, eps float32) bool {
	if eps <= 0 {
		eps = 0.5
	}
	diff := cur - target
	if diff < 0 {
		diff = -diff
	}
	return diff <= eps
}
