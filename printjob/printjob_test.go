package printjob

import (
	"io"
	"strings"
	"testing"
	"time"
)

func drainAll(t *testing.T, j *Job) []string {
	t.Helper()
	var got []string
	deadline := time.After(time.Second)
	for {
		line, ready, exhausted := j.TryNext()
		if exhausted {
			return got
		}
		if ready {
			got = append(got, line)
			continue
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for job to drain")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestSkipsBlankAndCommentLines(t *testing.T) {
	src := "G28\n; a full comment\n\nG1 X10 ; move\nG1 Y10\n"
	j := New("test.gcode", strings.NewReader(src), int64(len(src)))

	got := drainAll(t, j)
	want := []string{"G28", "G1 X10", "G1 Y10"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	src := "G28\nG1 X10\nG1 Y10\n"
	j := New("test.gcode", strings.NewReader(src), int64(len(src)))

	var last float32
	for {
		_, ready, exhausted := j.TryNext()
		if exhausted {
			break
		}
		if !ready {
			time.Sleep(time.Millisecond)
			continue
		}
		p := j.Status().Progress()
		if p < last {
			t.Fatalf("progress went backwards: %v then %v", last, p)
		}
		last = p
	}
}

func TestPauseRecordsActionsAndResumeClearsPaused(t *testing.T) {
	j := New("test.gcode", strings.NewReader("G28\n"), 4)
	j.Pause([]string{"M104 S0"})

	st := j.Status()
	if !st.Paused {
		t.Fatalf("expected Paused after Pause()")
	}
	if got := j.PauseActions(); len(got) != 1 || got[0] != "M104 S0" {
		t.Fatalf("got %v, want [M104 S0]", got)
	}

	j.SetResumePosition("G1 X12.00 Y34.00 Z0.20")
	j.Resume()
	if j.Status().Paused {
		t.Fatalf("expected !Paused after Resume()")
	}
	if got := j.ResumePosition(); got != "G1 X12.00 Y34.00 Z0.20" {
		t.Fatalf("got %q", got)
	}
}

func TestStopMarksInactiveAndDone(t *testing.T) {
	j := New("test.gcode", strings.NewReader("G28\n"), 4)
	j.Stop()
	st := j.Status()
	if st.Active || !st.Done {
		t.Fatalf("got %+v, want inactive and done", st)
	}
}

// blockingReadCloser simulates a source (e.g. a network stream) whose Read
// never returns on its own; only Close unblocks it.
type blockingReadCloser struct {
	closed chan struct{}
}

func newBlockingReadCloser() *blockingReadCloser {
	return &blockingReadCloser{closed: make(chan struct{})}
}

func (b *blockingReadCloser) Read(p []byte) (int, error) {
	<-b.closed
	return 0, io.EOF
}

func (b *blockingReadCloser) Close() error {
	select {
	case <-b.closed:
	default:
		close(b.closed)
	}
	return nil
}

// Scenario: Stop interrupts a readLoop blocked on a Read that never returns
// on its own, by closing the source, rather than leaking the goroutine and
// its descriptor for the life of the process.
func TestStopClosesBlockedSource(t *testing.T) {
	src := newBlockingReadCloser()
	j := New("stream.gcode", src, 0)

	j.Stop()

	select {
	case <-src.closed:
	case <-time.After(time.Second):
		t.Fatalf("Stop did not close the blocked source")
	}
}

// Scenario: Stop also unblocks a readLoop stuck sending to a full lines
// channel once nothing calls TryNext anymore — readLoop actually exits
// (closing lines) instead of leaking, which TryNext surfaces as exhausted
// once any buffered lines are drained.
func TestStopUnblocksFullLinesChannel(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 2000; i++ {
		b.WriteString("G1 X1\n")
	}
	j := New("big.gcode", strings.NewReader(b.String()), int64(b.Len()))

	// Let the reader fill the 1024-entry buffer and block on the 1025th
	// send, without ever calling TryNext to drain it.
	time.Sleep(20 * time.Millisecond)
	j.Stop()

	deadline := time.After(time.Second)
	for {
		_, ready, exhausted := j.TryNext()
		if exhausted {
			return
		}
		if ready {
			continue
		}
		select {
		case <-deadline:
			t.Fatalf("readLoop never exited after Stop; lines channel still open")
		case <-time.After(time.Millisecond):
		}
	}
}
