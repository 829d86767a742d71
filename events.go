package atcore

import (
	"sync"

	"github.com/atgocore/atcore/dialect"
)

// EventKind identifies the category of an Event. Replaces the source's
// Qt signal/slot observers with an explicit subscription model: the
// scheduler is the sole publisher, and Subscribe returns an unsubscribe
// handle instead of requiring a disconnect-by-object-identity call.
type EventKind int

const (
	StateChanged EventKind = iota
	PortsChanged
	PrintProgressChanged
	ReceivedMessage
	TemperatureChanged
	PrinterStatusChanged
)

// Event is a single published notification. Only the field matching Kind
// is populated.
type Event struct {
	Kind EventKind

	State       PrinterState
	Ports       []string
	Progress    float32
	Message     []byte
	Temperature Temperature
	Status      dialect.PrinterStatus
}

// Handler receives published events. It must not block for long: the
// dispatcher runs every subscriber's Handler synchronously on its own
// goroutine, fed by a buffered channel, so a slow observer cannot stall
// the scheduler but can fall behind its own queue.
type Handler func(Event)

type subscription struct {
	id      uint64
	kind    EventKind
	handler Handler
}

// bus is the scheduler's sole publishing point. Publish never blocks the
// scheduler goroutine: each subscriber has its own buffered channel and
// dispatch goroutine.
type bus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*dispatcher
}

type dispatcher struct {
	kind EventKind
	ch   chan Event
	done chan struct{}
}

func newBus() *bus {
	return &bus{subs: map[uint64]*dispatcher{}}
}

// Subscribe registers handler for events of kind. The returned function
// unsubscribes; it is safe to call more than once.
func (b *bus) Subscribe(kind EventKind, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	d := &dispatcher{kind: kind, ch: make(chan Event, 64), done: make(chan struct{})}
	b.subs[id] = d
	b.mu.Unlock()

	go func() {
		for {
			select {
			case ev := <-d.ch:
				handler(ev)
			case <-d.done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(d.done)
		})
	}
}

// Publish fans ev out to every subscriber registered for ev.Kind. A
// subscriber whose queue is full drops the event rather than blocking the
// publisher (the scheduler).
func (b *bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range b.subs {
		if d.kind != ev.Kind {
			continue
		}
		select {
		case d.ch <- ev:
		default:
		}
	}
}
