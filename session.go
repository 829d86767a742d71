// Package atcore is a transport-agnostic host-side library for driving a
// G-code device over an acknowledgement-paced serial-style link: connect,
// detect firmware, queue commands, and run a print job, all through a
// small event bus instead of blocking calls.
package atcore

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/atgocore/atcore/dialect"
	"github.com/atgocore/atcore/gcode"
	"github.com/atgocore/atcore/printjob"
	"github.com/atgocore/atcore/transport"
)

// ListPorts returns the endpoints currently visible through tr.
func ListPorts(tr transport.Transport) ([]string, error) {
	return tr.Enumerate()
}

// Open establishes a connection through tr and starts the scheduler. The
// returned Session is in state Connecting; firmware detection begins
// immediately and the session reaches Idle (or Error, on timeout) via a
// StateChanged event.
func Open(ctx context.Context, tr transport.Transport, port string, baud int, opts ...Option) (*Session, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	s := newScheduler(tr, cfg)
	s.setState(Connecting)

	handle, err := tr.Open(ctx, port, baud)
	if err != nil {
		s.setState(Disconnected)
		return nil, &TransportError{Op: "open", Err: err}
	}
	s.handle = handle

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(runCtx)
	s.cast(func(s *scheduler) { s.startDetection() })

	return &Session{sched: s}, nil
}

// Session is a single open connection to a device, and the library's
// public façade over the scheduler goroutine. All of its methods are safe
// for concurrent use.
type Session struct {
	sched *scheduler
}

// Subscribe registers handler for events of kind; call the returned
// function to unsubscribe.
func (sess *Session) Subscribe(kind EventKind, handler Handler) (unsubscribe func()) {
	return sess.sched.bus.Subscribe(kind, handler)
}

// State returns the session's current state.
func (sess *Session) State() PrinterState {
	return sess.sched.snapshot().state
}

// Temperature returns the most recent temperature snapshot.
func (sess *Session) Temperature() Temperature {
	return sess.sched.snapshot().temperature
}

// Progress returns the active print job's progress as a percentage in
// [0,100], or the last known value after a job finishes.
func (sess *Session) Progress() float32 {
	return sess.sched.snapshot().progress
}

// LoadFirmware forces dialect selection by name, bypassing auto-detection.
// It returns a ProtocolError if name is not a registered dialect.
func (sess *Session) LoadFirmware(name string) error {
	return sess.sched.call(func(s *scheduler) error {
		d, err := dialect.Lookup(name)
		if err != nil {
			return &ProtocolError{Reason: "unrecognised firmware dialect", Err: err}
		}
		s.dlg = d
		s.setState(Idle)
		return nil
	})
}

// DetectFirmware re-runs auto-detection: issues M115 and waits for a reply
// whose text contains a registered dialect name, within
// SchedulerConfig.DetectionTimeout. It does not block the caller; the
// outcome surfaces as a StateChanged event (Idle on success, Error with a
// ProtocolError on timeout).
func (sess *Session) DetectFirmware() {
	sess.sched.cast(func(s *scheduler) { s.startDetection() })
}

// PushCommand appends a raw command line to the normal-priority queue.
func (sess *Session) PushCommand(line string) {
	sess.sched.cast(func(s *scheduler) { s.q.Push(line) })
}

// Home issues G28, optionally restricted to the given axes (0 homes all
// axes).
func (sess *Session) Home(axes Axis) {
	sess.sched.cast(func(s *scheduler) {
		if axes == 0 {
			s.q.Push(gcode.Build(gcode.Home))
			return
		}
		s.q.Push(gcode.Build(gcode.HomeAxes, axes.Letters()))
	})
}

// Move issues a single-axis linear move to pos, in the unit system most
// recently selected with SetUnits.
func (sess *Session) Move(axis Axis, pos float32) {
	letter := axis.Letter()
	if letter == 0 {
		return
	}
	sess.sched.cast(func(s *scheduler) {
		s.q.Push(gcode.Build(gcode.Move, letter, pos))
	})
}

// SetExtruderTemp sets the extruder target temperature for tool index idx.
// When wait is true, the command blocks the firmware (and so the queue)
// until the target is reached, gated entirely by the firmware's own
// acknowledgement.
func (sess *Session) SetExtruderTemp(temp float32, idx int, wait bool) {
	sess.sched.cast(func(s *scheduler) {
		if wait {
			s.q.Push(gcode.Build(gcode.SetExtruderTempWait, temp, idx))
			s.heatWaiting, s.heatWaitTarget, s.heatWaitIsBed = true, temp, false
			return
		}
		s.q.Push(gcode.Build(gcode.SetExtruderTemp, temp, idx))
	})
}

// SetBedTemp sets the bed target temperature. See SetExtruderTemp for wait
// semantics.
func (sess *Session) SetBedTemp(temp float32, wait bool) {
	sess.sched.cast(func(s *scheduler) {
		if wait {
			s.q.Push(gcode.Build(gcode.SetBedTempWait, temp))
			s.heatWaiting, s.heatWaitTarget, s.heatWaitIsBed = true, temp, true
			return
		}
		s.q.Push(gcode.Build(gcode.SetBedTemp, temp))
	})
}

// SetFan sets fan index idx to speed percent (0-100), scaled to M106's
// 0-255 range, or turns it off when speed is 0.
func (sess *Session) SetFan(idx, speed int) {
	sess.sched.cast(func(s *scheduler) {
		if speed <= 0 {
			s.q.Push(gcode.Build(gcode.FanOff, idx))
			return
		}
		s.q.Push(gcode.Build(gcode.SetFan, speed*255/100, idx))
	})
}

// SetAbsolutePosition switches to absolute positioning (G90).
func (sess *Session) SetAbsolutePosition() {
	sess.sched.cast(func(s *scheduler) { s.q.Push(gcode.Build(gcode.AbsolutePosition)) })
}

// SetRelativePosition switches to relative positioning (G91).
func (sess *Session) SetRelativePosition() {
	sess.sched.cast(func(s *scheduler) { s.q.Push(gcode.Build(gcode.RelativePosition)) })
}

// SetIdleHold sets the stepper idle-hold release delay, in seconds.
func (sess *Session) SetIdleHold(seconds int) {
	sess.sched.cast(func(s *scheduler) { s.q.Push(gcode.Build(gcode.IdleHold, seconds)) })
}

// SetPrinterSpeed sets the overall feed-rate percentage.
func (sess *Session) SetPrinterSpeed(percent int) {
	sess.sched.cast(func(s *scheduler) { s.q.Push(gcode.Build(gcode.PrinterSpeed, percent)) })
}

// SetFlowRate sets the extrusion flow-rate percentage.
func (sess *Session) SetFlowRate(percent int) {
	sess.sched.cast(func(s *scheduler) { s.q.Push(gcode.Build(gcode.FlowRate, percent)) })
}

// SetUnits switches the unit system (G21/G20). It affects only the command
// issued; callers are responsible for interpreting subsequent Move calls
// consistently.
func (sess *Session) SetUnits(u Units) {
	sess.sched.cast(func(s *scheduler) {
		if u == Imperial {
			s.q.Push(gcode.Build(gcode.UnitsImperial))
			return
		}
		s.q.Push(gcode.Build(gcode.UnitsMetric))
	})
}

// ShowMessage displays msg on the device's status display (M117).
func (sess *Session) ShowMessage(msg string) {
	sess.sched.cast(func(s *scheduler) { s.q.Push(gcode.Build(gcode.ShowMessage, msg)) })
}

// SetSerialTimerInterval overrides the idle temperature-poll interval for
// the remainder of the session; 0 disables polling.
func (sess *Session) SetSerialTimerInterval(d time.Duration) {
	sess.sched.cast(func(s *scheduler) { s.cfg.TemperaturePoll = d })
}

// Print begins streaming r (size bytes total, 0 if unknown) as a G-code
// job. It returns a StateError without changing state if a job is already
// active or the session is not Idle.
func (sess *Session) Print(name string, r io.Reader, size int64) error {
	return sess.sched.call(func(s *scheduler) error {
		st := s.snapshot().state
		if st != Idle {
			return &StateError{Action: "print", State: st}
		}
		if s.job != nil {
			return &StateError{Action: "print", State: st}
		}
		s.job = printjob.New(name, r, size)
		s.setState(StartingPrint)
		s.setState(Busy)
		return nil
	})
}

// Pause pauses the active print job. actions is a comma-separated list of
// raw G-code lines to run once the current position has been captured
// (e.g. "M104 S0" to idle the hotend); it may be empty. Pause is a no-op
// unless a job is actively printing.
func (sess *Session) Pause(actions string) {
	sess.sched.cast(func(s *scheduler) {
		if s.job == nil || s.snapshot().state != Busy {
			return
		}
		var list []string
		for _, a := range strings.Split(actions, ",") {
			a = strings.TrimSpace(a)
			if a != "" {
				list = append(list, a)
			}
		}
		s.job.Pause(list)
		s.q.PushFront(gcode.Build(gcode.ReportPosition))
		for _, a := range list {
			s.q.PushFront(a)
		}
		s.setState(Paused)
	})
}

// Resume resumes a paused print job: it moves back to the position
// captured at Pause time, then lets the job continue feeding lines.
func (sess *Session) Resume() {
	sess.sched.cast(func(s *scheduler) {
		if s.job == nil || s.snapshot().state != Paused {
			return
		}
		if pos := s.job.ResumePosition(); pos != "" {
			s.q.Push(pos)
		}
		s.job.Resume()
		s.setState(Busy)
	})
}

// Stop aborts the active print job, if any, and clears the queue. The
// connection is preserved.
func (sess *Session) Stop() {
	sess.sched.cast(func(s *scheduler) {
		s.setState(Stopping)
		s.q.Clear()
		if s.job != nil {
			s.job.Stop()
			s.job = nil
		}
		s.setState(Idle)
	})
}

// EmergencyStop discards the queue and writes M112 immediately, ahead of
// any outstanding acknowledgement — it does not wait its turn behind the
// one-ack-in-flight rule the way a normal queued command would.
func (sess *Session) EmergencyStop() {
	sess.sched.cast(func(s *scheduler) {
		s.q.Clear()
		if s.job != nil {
			s.job.Stop()
			s.job = nil
		}
		s.setState(Error)
		if err := s.writeRaw(gcode.Build(gcode.EmergencyStop)); err != nil {
			s.fatalTransport("emergency_stop", err)
			return
		}
		s.inFlight = nil
	})
}

// Close tears down the session: the scheduler goroutine stops, the
// transport handle is closed, the queue is discarded and the state becomes
// Disconnected. No further writes occur after Close returns.
func (sess *Session) Close() error {
	sess.sched.cancel()
	<-sess.sched.done
	// The scheduler goroutine has exited, so nothing else writes this state.
	sess.sched.q.Clear()
	if sess.sched.snapshot().state != Disconnected {
		sess.sched.setState(Disconnected)
	}
	return nil
}
