package atcore

import (
	"context"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/atgocore/atcore/dialect"
	"github.com/atgocore/atcore/gcode"
	"github.com/atgocore/atcore/printjob"
	"github.com/atgocore/atcore/queue"
	"github.com/atgocore/atcore/transport"
)

// call is a synchronous request executed on the scheduler goroutine; the
// caller blocks on resp. Used only where the spec requires a synchronous
// result (Print's StateError, LoadFirmware's ProtocolError) — everything
// else is fire-and-forget, per §5: client-facing entry points enqueue work
// and return promptly.
type call struct {
	fn   func(s *scheduler) error
	resp chan error
}

// scheduler is the sole writer of PrinterState, the queue head cursor, the
// in-flight flag, and the temperature record — all of it touched only on
// the run() goroutine. It is the generalisation of the teacher's
// Controller/Port/Client trio (spjs/controller.go, spjs/port.go,
// spjs/client.go).
type scheduler struct {
	cfg SchedulerConfig
	tr  transport.Transport

	handle transport.Handle
	dlg    dialect.Dialect

	q   *queue.Queue
	bus *bus

	job *printjob.Job

	calls chan call
	casts chan func(*scheduler)

	done   chan struct{}
	cancel context.CancelFunc

	snapMu sync.RWMutex
	snap   snapshot

	inFlight         *string
	awaitingPosition bool
	heatWaiting      bool
	heatWaitTarget   float32
	heatWaitIsBed    bool
	malformedLines   int
	lastPorts        []string
	nextTempPoll     time.Time

	detectTimer *time.Timer
}

type snapshot struct {
	state       PrinterState
	temperature Temperature
	progress    float32
}

func newScheduler(tr transport.Transport, cfg SchedulerConfig) *scheduler {
	return &scheduler{
		cfg:   cfg,
		tr:    tr,
		q:     queue.New(),
		bus:   newBus(),
		calls: make(chan call),
		casts: make(chan func(*scheduler), 64),
		done:  make(chan struct{}),
	}
}

func (s *scheduler) setState(state PrinterState) {
	s.snapMu.Lock()
	s.snap.state = state
	s.snapMu.Unlock()
	s.bus.Publish(Event{Kind: StateChanged, State: state})
}

// setError logs err and transitions to Error. Used for failures that abort
// whatever is in progress but leave the transport open for the caller to
// inspect or retry (ProtocolError, JobError) — unlike fatalTransport, which
// is reserved for a dead connection.
func (s *scheduler) setError(err error) {
	log.Println("ERROR:", err)
	s.setState(Error)
}

func (s *scheduler) setTemperature(t Temperature) {
	s.snapMu.Lock()
	changed := s.snap.temperature != t
	s.snap.temperature = t
	s.snapMu.Unlock()
	if changed {
		s.bus.Publish(Event{Kind: TemperatureChanged, Temperature: t})
	}
}

func (s *scheduler) setProgress(p float32) {
	s.snapMu.Lock()
	changed := p > s.snap.progress
	s.snap.progress = p
	s.snapMu.Unlock()
	if changed {
		s.bus.Publish(Event{Kind: PrintProgressChanged, Progress: p})
	}
}

func (s *scheduler) snapshot() snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap
}

// call submits fn to run on the scheduler goroutine and blocks for its
// result.
func (s *scheduler) call(fn func(s *scheduler) error) error {
	c := call{fn: fn, resp: make(chan error, 1)}
	select {
	case s.calls <- c:
	case <-s.done:
		return &StateError{Action: "call", State: Disconnected}
	}
	select {
	case err := <-c.resp:
		return err
	case <-s.done:
		return nil
	}
}

// cast submits fn to run on the scheduler goroutine without waiting for it.
func (s *scheduler) cast(fn func(s *scheduler)) {
	select {
	case s.casts <- fn:
	case <-s.done:
	}
}

// run is the single cooperative scheduler loop. It yields between each
// inbound line it processes, each outbound write it issues, and each timer
// expiry (§5).
func (s *scheduler) run(ctx context.Context) {
	defer close(s.done)
	defer s.handle.Close()

	commandTicker := time.NewTicker(s.cfg.CommandTick)
	defer commandTicker.Stop()

	var portTicker *time.Ticker
	if s.cfg.SerialPollInterval > 0 {
		portTicker = time.NewTicker(s.cfg.SerialPollInterval)
		defer portTicker.Stop()
	}

	s.detectTimer = time.NewTimer(s.cfg.DetectionTimeout)
	defer s.detectTimer.Stop()

	lines := s.handle.Lines()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-s.calls:
			c.resp <- c.fn(s)

		case f := <-s.casts:
			f(s)

		case line, ok := <-lines:
			if !ok {
				s.fatalTransport("read", nil)
				return
			}
			s.handleInbound(line)

		case <-commandTicker.C:
			if s.tick() {
				return
			}
			s.maybePollTemperature()

		case <-tickerChan(portTicker):
			s.pollPorts()

		case <-s.detectTimer.C:
			if s.snapshot().state == Connecting {
				s.setError(&ProtocolError{Reason: ErrFirmwareUndetected})
			}
		}
	}
}

func tickerChan(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

// startDetection writes M115 directly (bypassing the queue, since detection
// is not a normal outgoing command) and arms the detection deadline.
func (s *scheduler) startDetection() {
	s.setState(Connecting)
	s.detectTimer.Reset(s.cfg.DetectionTimeout)
	line := gcode.Build(gcode.RequestFirmware)
	if err := s.writeRaw(line); err != nil {
		s.fatalTransport("detect", err)
	}
}

func (s *scheduler) writeRaw(line string) error {
	enc := encode(s.dlg, line)
	if err := s.handle.Write(enc); err != nil {
		return err
	}
	return nil
}

// encode uses dlg's encoding when a dialect has been selected, or the bare
// newline-terminated default otherwise (detection happens before any
// dialect is loaded).
func encode(dlg dialect.Dialect, line string) []byte {
	if dlg != nil {
		return dlg.Encode(line)
	}
	return []byte(line + "\n")
}

func (s *scheduler) handleInbound(raw string) {
	raw = strings.TrimRight(raw, "\r")

	st := s.snapshot().state
	if st == Connecting {
		s.handleDetectionLine(raw)
		return
	}

	if s.dlg == nil {
		s.malformedLines++
		log.Printf("WARN: reply before firmware detection: %q", raw)
		return
	}

	if s.awaitingPosition {
		if pos, ok := parsePositionReply(raw); ok {
			s.awaitingPosition = false
			if s.job != nil {
				s.job.SetResumePosition(pos)
			}
		}
	}

	reply := s.dlg.Classify(raw)
	switch reply.Kind {
	case dialect.Ack:
		s.inFlight = nil
	case dialect.Wait:
		// Informational only; does not consume the in-flight slot.
	case dialect.TemperatureReport:
		// A report that also carries "ok" (the reply to M105) acknowledges
		// the in-flight line as well.
		if strings.Contains(raw, "ok") {
			s.inFlight = nil
		}
		temp := fromDialect(reply.Temperature)
		s.setTemperature(temp)
		s.checkHeatWait(temp)
	case dialect.Status:
		s.bus.Publish(Event{Kind: PrinterStatusChanged, Status: reply.Status})
	default:
		s.bus.Publish(Event{Kind: ReceivedMessage, Message: []byte(raw)})
	}
}

func (s *scheduler) handleDetectionLine(raw string) {
	d, ok := dialect.Detect(raw)
	if !ok {
		return
	}
	s.dlg = d
	log.Println("Detected firmware dialect:", d.Name())
	s.setState(Idle)
}

func (s *scheduler) checkHeatWait(t Temperature) {
	if !s.heatWaiting {
		return
	}
	var cur float32
	if s.heatWaitIsBed {
		cur = t.BedCurrent
	} else {
		cur = t.ExtruderCurrent
	}
	if reached(cur, s.heatWaitTarget, s.cfg.HeatWaitEpsilon) {
		s.heatWaiting = false
	}
}

// tick is the command tick: pop and write the next line when no ack is
// outstanding, the queue is non-empty, and the state permits outgoing
// traffic. It reports fatal=true when the write failed and the caller
// (run's select loop) must stop the scheduler and close the handle.
func (s *scheduler) tick() (fatal bool) {
	st := s.snapshot().state
	s.feedJob(st)

	if s.inFlight != nil {
		return false
	}
	if !st.acceptsOutgoingTraffic() {
		return false
	}
	line, ok := s.q.Pop()
	if !ok {
		return false
	}

	if line == gcode.Build(gcode.ReportPosition) {
		s.awaitingPosition = true
	}

	if err := s.writeRaw(line); err != nil {
		s.fatalTransport("write", err)
		return true
	}
	s.inFlight = &line
	return false
}

// feedJob pushes the next job line onto the queue while the job is active,
// unpaused, and the queue has fewer than one pending entry (K=1, preserving
// one-ack-in-flight).
func (s *scheduler) feedJob(st PrinterState) {
	if s.job == nil {
		return
	}
	status := s.job.Status()
	if !status.Active || status.Paused {
		return
	}
	if s.q.Len() >= 1 {
		return
	}

	line, ready, exhausted := s.job.TryNext()
	switch {
	case exhausted:
		readErr := s.job.Status().Err
		s.job.Finish()
		s.job = nil
		if readErr != nil {
			s.setError(&JobError{Op: "read", Err: readErr})
			return
		}
		if st == Busy {
			s.setState(FinishedPrint)
			s.setState(Idle)
		}
	case ready:
		s.q.Push(line)
	}

	s.setProgress(s.jobProgress())
}

func (s *scheduler) jobProgress() float32 {
	if s.job == nil {
		return s.snapshot().progress
	}
	return s.job.Status().Progress() * 100
}

// maybePollTemperature queues an M105 once per TemperaturePoll interval
// while idle. Driven off the command tick rather than its own ticker so a
// runtime change to the interval (SetSerialTimerInterval) takes effect
// without recreating a timer.
func (s *scheduler) maybePollTemperature() {
	if s.cfg.TemperaturePoll <= 0 {
		return
	}
	if !s.snapshot().state.acceptsOutgoingTraffic() {
		return
	}
	now := time.Now()
	if now.Before(s.nextTempPoll) {
		return
	}
	s.nextTempPoll = now.Add(s.cfg.TemperaturePoll)
	if s.q.Len() > 0 || s.inFlight != nil {
		return
	}
	s.q.Push(gcode.Build(gcode.RequestTemperature))
}

func (s *scheduler) pollPorts() {
	ports, err := s.tr.Enumerate()
	if err != nil {
		return
	}
	if samePortSet(s.lastPorts, ports) {
		return
	}
	s.lastPorts = ports
	s.bus.Publish(Event{Kind: PortsChanged, Ports: ports})
}

func samePortSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, p := range a {
		seen[p]++
	}
	for _, p := range b {
		seen[p]--
	}
	for _, n := range seen {
		if n != 0 {
			return false
		}
	}
	return true
}

// fatalTransport marks the connection dead. Callers inside run's select
// loop (the read-failure case, tick) also return immediately so the
// deferred handle.Close() in run fires on this same pass; callers running
// inside a cast closure (startDetection, EmergencyStop) cannot return out
// of run directly, so cancel is what actually stops the loop and closes
// the handle for them, on run's next iteration.
func (s *scheduler) fatalTransport(op string, err error) {
	if err != nil {
		log.Printf("ERROR: transport %s: %v", op, err)
	} else {
		log.Printf("ERROR: transport %s: connection closed", op)
	}
	s.setState(Disconnected)
	s.cancel()
}

// parsePositionReply extracts X/Y/Z from an M114-style reply such as
// "X:12.00 Y:34.00 Z:0.20 E:5.00 ok", ignoring everything from "Count"
// onward if present. Ported from the parseM114 style seen across the
// firmware-reply-parsing examples in the corpus.
func parsePositionReply(raw string) (string, bool) {
	text := raw
	if i := strings.Index(text, "Count"); i >= 0 {
		text = text[:i]
	}

	var x, y, z string
	var found bool
	for _, field := range strings.Fields(text) {
		colon := strings.IndexByte(field, ':')
		if colon < 0 {
			continue
		}
		key, val := field[:colon], field[colon+1:]
		if _, err := strconv.ParseFloat(val, 64); err != nil {
			continue
		}
		switch key {
		case "X":
			x, found = val, true
		case "Y":
			y, found = val, true
		case "Z":
			z, found = val, true
		}
	}
	if !found {
		return "", false
	}
	return "G1 X" + x + " Y" + y + " Z" + z, true
}
