package atcore

import (
	"context"
	"strings"
	"sync"

	"github.com/atgocore/atcore/transport"
)

// fakeTransport is an in-memory transport.Transport used by the scheduler
// tests in this package, standing in for a real serial/network adapter.
// Writes are recorded in order; a reply can be scripted or enqueued from
// the test goroutine as the exchange progresses.
type fakeTransport struct {
	ports []string

	mu      sync.Mutex
	handles []*fakeHandle
}

func newFakeTransport(ports ...string) *fakeTransport {
	return &fakeTransport{ports: ports}
}

func (t *fakeTransport) Enumerate() ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.ports))
	copy(out, t.ports)
	return out, nil
}

func (t *fakeTransport) setPorts(ports []string) {
	t.mu.Lock()
	t.ports = ports
	t.mu.Unlock()
}

func (t *fakeTransport) Open(ctx context.Context, port string, baud int) (transport.Handle, error) {
	h := &fakeHandle{lines: make(chan string, 256)}
	t.mu.Lock()
	t.handles = append(t.handles, h)
	t.mu.Unlock()
	return h, nil
}

// lastHandle returns the most recently opened handle, for tests that only
// open a single connection.
func (t *fakeTransport) lastHandle() *fakeHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handles[len(t.handles)-1]
}

type fakeHandle struct {
	mu      sync.Mutex
	writes  []string
	lines   chan string
	closed  bool
	failNth int // if > 0, the failNth Write call returns an error
	writeN  int
}

func (h *fakeHandle) Write(p []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writeN++
	if h.failNth > 0 && h.writeN == h.failNth {
		return transport.NewError("write", transport.ErrIO, errFakeWrite)
	}
	h.writes = append(h.writes, strings.TrimRight(string(p), "\n"))
	return nil
}

func (h *fakeHandle) Lines() <-chan string { return h.lines }

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	close(h.lines)
	return nil
}

// reply injects a line as if the device had sent it.
func (h *fakeHandle) reply(line string) {
	h.lines <- line
}

func (h *fakeHandle) writtenLines() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.writes))
	copy(out, h.writes)
	return out
}

var errFakeWrite = fakeWriteError{}

type fakeWriteError struct{}

func (fakeWriteError) Error() string { return "fake write failure" }
