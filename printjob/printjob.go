// Package printjob implements the lazy, restartable reader over a G-code
// file that feeds the scheduler's command queue incrementally and tracks
// byte progress. Adapted from the teacher's jobController
// (spjs/jobcontroller.go): the same bufio.Scanner read loop and a
// mutex-guarded status struct, generalised from GRBL's line-counted
// progress to byte-counted progress, with the pause/resume semantics GRBL
// jobs never needed.
package printjob

import (
	"bufio"
	"io"
	"strings"
	"sync"
)

// Status is a snapshot of a job's progress, safe to copy and hand to
// observers.
type Status struct {
	Name string

	TotalBytes    int64
	BytesConsumed int64

	Active bool
	Paused bool
	Done   bool

	Err error
}

// Progress returns bytesConsumed/totalBytes as a fraction in [0,1], or 0 if
// TotalBytes is unknown or zero.
func (s Status) Progress() float32 {
	if s.TotalBytes <= 0 {
		return 0
	}
	return float32(s.BytesConsumed) / float32(s.TotalBytes)
}

// Job is a single streaming G-code source. At most one Job exists per
// session.
type Job struct {
	mu     sync.Mutex
	status Status

	lines  chan string
	source io.Closer

	// done is closed by Stop to unstick readLoop if it is blocked sending
	// to lines (nobody calling TryNext anymore) or reading from source;
	// Stop checks done before closing it, so calling Stop again is safe.
	// closeOnce guards the source Close against running twice, whether
	// Stop races with the reader's own natural EOF or is called more than
	// once.
	done      chan struct{}
	closeOnce sync.Once

	pauseActions       []string
	resumePositionLine string
}

// New starts reading r in the background. size is the file's total byte
// length (0 if unknown, which disables percentage reporting).
func New(name string, r io.Reader, size int64) *Job {
	j := &Job{
		status: Status{Name: name, TotalBytes: size, Active: true},
		lines:  make(chan string, 1024),
		done:   make(chan struct{}),
	}
	if c, ok := r.(io.Closer); ok {
		j.source = c
	}
	go j.readLoop(r)
	return j
}

func (j *Job) readLoop(r io.Reader) {
	defer close(j.lines)
	defer j.closeSource()

	scan := bufio.NewScanner(r)
	for scan.Scan() {
		raw := scan.Text()
		consumed := int64(len(raw)) + 1 // raw line length including its terminator

		line := stripComment(raw)
		j.mu.Lock()
		j.status.BytesConsumed += consumed
		j.mu.Unlock()

		if line == "" {
			continue
		}
		select {
		case j.lines <- line:
		case <-j.done:
			return
		}
	}

	if err := scan.Err(); err != nil {
		j.mu.Lock()
		j.status.Err = err
		j.mu.Unlock()
	}
}

func (j *Job) closeSource() {
	j.closeOnce.Do(func() {
		if j.source != nil {
			j.source.Close()
		}
	})
}

// stripComment drops a trailing ";"-to-end-of-line comment and trims
// surrounding whitespace; it reports "" for blank or comment-only lines.
func stripComment(line string) string {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}

// TryNext returns the next queued command line without blocking. ready is
// false if the reader hasn't produced a line yet; exhausted is true once
// the source is fully drained (the scheduler should then finish the job).
func (j *Job) TryNext() (line string, ready bool, exhausted bool) {
	select {
	case l, ok := <-j.lines:
		if !ok {
			return "", false, true
		}
		return l, true, false
	default:
		return "", false, false
	}
}

// Status returns a snapshot of the job's current progress.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Pause marks the job paused and records the pause-time actions to run
// after the resume position is captured. The caller (scheduler) is
// responsible for pushing the M114 probe and the actions themselves onto
// the command queue; Pause only updates book-keeping.
func (j *Job) Pause(actions []string) {
	j.mu.Lock()
	j.status.Paused = true
	j.pauseActions = actions
	j.mu.Unlock()
}

// PauseActions returns the actions recorded by the most recent Pause call.
func (j *Job) PauseActions() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.pauseActions
}

// SetResumePosition stores the position line parsed from the M114 reply
// that followed a Pause, for Resume to move back to.
func (j *Job) SetResumePosition(line string) {
	j.mu.Lock()
	j.resumePositionLine = line
	j.mu.Unlock()
}

// ResumePosition returns the position line recorded by SetResumePosition.
func (j *Job) ResumePosition() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.resumePositionLine
}

// Resume clears the paused flag.
func (j *Job) Resume() {
	j.mu.Lock()
	j.status.Paused = false
	j.mu.Unlock()
}

// Stop marks the job inactive and terminates readLoop: it closes done (so
// a blocked send to lines returns immediately) and the source, if it is
// an io.Closer (so a blocked Read is interrupted too). The scheduler
// clears the command queue and moves the session through Stopping to Idle
// at once; it does not emit FinishedPrint for a stopped job and does not
// wait for the in-flight line to acknowledge.
func (j *Job) Stop() {
	j.mu.Lock()
	j.status.Active = false
	j.status.Done = true
	j.mu.Unlock()

	select {
	case <-j.done:
	default:
		close(j.done)
	}
	j.closeSource()
}

// Finish marks the job as having completed normally (source exhausted,
// all lines acknowledged).
func (j *Job) Finish() {
	j.mu.Lock()
	j.status.Active = false
	j.status.Done = true
	j.mu.Unlock()
}
