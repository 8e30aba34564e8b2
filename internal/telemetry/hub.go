// internal/telemetry/hub.go
package telemetry

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/ColonelBlimp/wklink/internal/logger"
)

// DefaultBuffer is the event queue length used when none is given.
const DefaultBuffer = 256

// Sink receives events on the hub goroutine.
type Sink interface {
	Name() string
	Handle(ev Event) error
}

// Publisher is the producer side of the hub.
type Publisher interface {
	Publish(ev Event)
}

// Discard is a Publisher that drops everything.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}

// Hub queues events from the bridge and delivers them to every subscribed sink
// on its own goroutine. Publish never blocks: when the queue is full the event
// is dropped and counted.
type Hub struct {
	mu      sync.RWMutex
	ch      chan Event
	closed  bool
	running bool
	done    chan struct{}

	sinks  *xsync.MapOf[uint64, Sink]
	nextID atomic.Uint64

	published atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64

	logger logger.Logger
}

var _ Publisher = (*Hub)(nil)

// NewHub creates a hub with a queue of size buffer.
func NewHub(buffer int, log logger.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if log == nil {
		log = logger.Default()
	}
	return &Hub{
		ch:     make(chan Event, buffer),
		done:   make(chan struct{}),
		sinks:  xsync.NewMapOf[uint64, Sink](),
		logger: log.With("component", "telemetry"),
	}
}

// Subscribe adds a sink and returns its id.
func (h *Hub) Subscribe(s Sink) uint64 {
	id := h.nextID.Add(1)
	h.sinks.Store(id, s)
	h.logger.Debug("sink subscribed", "sink", s.Name(), "id", id)
	return id
}

// Unsubscribe removes a sink. Unknown ids are ignored.
func (h *Hub) Unsubscribe(id uint64) {
	if s, ok := h.sinks.LoadAndDelete(id); ok {
		h.logger.Debug("sink unsubscribed", "sink", s.Name(), "id", id)
	}
}

// Sinks returns the number of subscribed sinks.
func (h *Hub) Sinks() int {
	return h.sinks.Size()
}

// Publish queues ev. It is a no-op after Close.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	select {
	case h.ch <- ev:
		h.published.Add(1)
	default:
		h.dropped.Add(1)
	}
}

// Run delivers queued events until Close has been called and the queue is
// drained, or ctx is done. Run after Close, or a second Run, returns at once.
func (h *Hub) Run(ctx context.Context) error {
	h.mu.Lock()
	if h.running || h.closed {
		h.mu.Unlock()
		return nil
	}
	h.running = true
	h.mu.Unlock()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-h.ch:
			if !ok {
				return nil
			}
			h.deliver(ev)
		}
	}
}

// Close stops accepting events and waits for Run to flush what is queued. If Run
// was never started the queue is flushed inline.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.ch)
	running := h.running
	h.mu.Unlock()

	if running {
		<-h.done
		return
	}
	for ev := range h.ch {
		h.deliver(ev)
	}
}

func (h *Hub) deliver(ev Event) {
	h.sinks.Range(func(id uint64, s Sink) bool {
		if err := s.Handle(ev); err != nil {
			h.failed.Add(1)
			h.logger.Debug("sink failed", "sink", s.Name(), "kind", ev.Kind, "error", err)
		}
		return true
	})
}

// Published returns the number of events queued.
func (h *Hub) Published() uint64 { return h.published.Load() }

// Dropped returns the number of events lost to a full queue.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Failed returns the number of sink deliveries that returned an error.
func (h *Hub) Failed() uint64 { return h.failed.Load() }
