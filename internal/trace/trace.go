// Package trace keeps a bounded, observable log of recent gateway traffic.
//
// A Trace is the only state shared by concurrent RPC invocations. Record
// appends, evicts the oldest entries until at most Capacity remain, notifies
// observers and queues the event for the journal, all under one lock so
// interleaved callers cannot break the capacity bound or reorder what
// observers and the journal see.
//
// Journal writes happen on a goroutine owned by the Trace. Record never waits
// for them; when the queue is full the event is dropped from the journal and
// counted.
package trace

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tjfontaine/memories-gateway/internal/core/domain"
	"github.com/tjfontaine/memories-gateway/internal/core/ports"
)

// Capacity is the number of events retained in memory.
const Capacity = 3

// Journal queue defaults.
const (
	DefaultJournalQueueSize = 256
	DefaultJournalTimeout   = 5 * time.Second
)

// Option configures a Trace.
type Option func(*Trace)

// WithJournal forwards every recorded event to a durable journal.
func WithJournal(j ports.TraceJournal) Option {
	return func(t *Trace) {
		t.journal = j
	}
}

// WithJournalQueueSize bounds the number of events waiting for the journal.
func WithJournalQueueSize(n int) Option {
	return func(t *Trace) {
		if n > 0 {
			t.queueSize = n
		}
	}
}

// WithJournalTimeout bounds each journal append.
func WithJournalTimeout(d time.Duration) Option {
	return func(t *Trace) {
		if d > 0 {
			t.journalTimeout = d
		}
	}
}

// WithDropHook registers a callback invoked each time an event is dropped
// because the journal queue is full.
func WithDropHook(hook func()) Option {
	return func(t *Trace) {
		t.dropHooks = append(t.dropHooks, hook)
	}
}

// WithLogger sets the logger used for journal failures.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Trace) {
		t.logger = logger
	}
}

// journalItem is either an event to append or a flush barrier.
type journalItem struct {
	event   domain.TraceEvent
	barrier chan struct{}
}

// Trace is a fixed-capacity FIFO of domain.TraceEvent.
type Trace struct {
	mu          sync.Mutex
	events      []domain.TraceEvent
	subscribers map[int]chan struct{}
	hooks       []func([]domain.TraceEvent)
	nextID      int

	journal        ports.TraceJournal
	queueSize      int
	journalTimeout time.Duration
	queue          chan journalItem
	drained        chan struct{}
	closed         bool
	closeMu        sync.RWMutex
	dropped        atomic.Uint64
	dropHooks      []func()

	logger *slog.Logger
}

var _ ports.TraceRecorder = (*Trace)(nil)

// New creates an empty Trace. With a journal configured, the Trace starts a
// writer goroutine that runs until Close.
func New(opts ...Option) *Trace {
	t := &Trace{
		events:         make([]domain.TraceEvent, 0, Capacity+1),
		subscribers:    make(map[int]chan struct{}),
		queueSize:      DefaultJournalQueueSize,
		journalTimeout: DefaultJournalTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.journal != nil {
		t.queue = make(chan journalItem, t.queueSize)
		t.drained = make(chan struct{})
		go t.writeJournal()
	}
	return t
}

// Record appends an event, evicts from the front until the capacity bound
// holds, and emits a change notification. It never blocks on observers or
// on the journal.
func (t *Trace) Record(event domain.TraceEvent) {
	t.mu.Lock()
	t.events = append(t.events, event)
	if over := len(t.events) - Capacity; over > 0 {
		t.events = append(t.events[:0], t.events[over:]...)
	}
	for _, ch := range t.subscribers {
		select {
		case ch <- struct{}{}:
		default:
			// a notification is already pending; observers re-read the snapshot
		}
	}
	if len(t.hooks) > 0 {
		snapshot := t.snapshotLocked()
		for _, hook := range t.hooks {
			hook(snapshot)
		}
	}
	dropped := false
	if t.queue != nil && !t.closed {
		select {
		case t.queue <- journalItem{event: event}:
		default:
			dropped = true
		}
	}
	t.mu.Unlock()

	if dropped {
		n := t.dropped.Add(1)
		for _, hook := range t.dropHooks {
			hook()
		}
		t.logger.Warn("trace journal queue full, event dropped",
			slog.String("kind", string(event.Kind)),
			slog.String("url", event.URL),
			slog.Uint64("dropped_total", n))
	}
}

// Dropped returns the number of events the journal never received because
// its queue was full.
func (t *Trace) Dropped() uint64 {
	return t.dropped.Load()
}

// Flush waits until every event recorded before the call has been handed to
// the journal, or ctx is done.
func (t *Trace) Flush(ctx context.Context) error {
	t.closeMu.RLock()
	t.mu.Lock()
	inactive := t.queue == nil || t.closed
	t.mu.Unlock()
	if inactive {
		t.closeMu.RUnlock()
		return nil
	}

	barrier := make(chan struct{})
	select {
	case t.queue <- journalItem{barrier: barrier}:
		t.closeMu.RUnlock()
	case <-ctx.Done():
		t.closeMu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting journal work, waits for queued events to be written
// and stops the writer goroutine. Recording after Close still updates the
// in-memory trace. Close does not close the journal itself.
func (t *Trace) Close() error {
	t.closeMu.Lock()
	t.mu.Lock()
	if t.queue == nil || t.closed {
		t.mu.Unlock()
		t.closeMu.Unlock()
		return nil
	}
	t.closed = true
	close(t.queue)
	t.mu.Unlock()
	t.closeMu.Unlock()

	<-t.drained
	return nil
}

func (t *Trace) writeJournal() {
	defer close(t.drained)
	for item := range t.queue {
		if item.barrier != nil {
			close(item.barrier)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), t.journalTimeout)
		err := t.journal.Append(ctx, item.event)
		cancel()
		if err != nil {
			// The journal is best effort and must not surface into the caller.
			t.logger.Warn("trace journal append failed",
				slog.String("error", err.Error()),
				slog.String("kind", string(item.event.Kind)),
				slog.String("url", item.event.URL))
		}
	}
}

// Snapshot returns a copy of the current events, oldest first.
func (t *Trace) Snapshot() []domain.TraceEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Trace) snapshotLocked() []domain.TraceEvent {
	out := make([]domain.TraceEvent, len(t.events))
	copy(out, t.events)
	return out
}

// Len returns the number of retained events.
func (t *Trace) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}

// Subscribe returns a channel that receives a value after each change.
// Notifications coalesce: a slow reader sees at most one pending signal.
// The returned function unsubscribes and closes the channel.
func (t *Trace) Subscribe() (<-chan struct{}, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++
	ch := make(chan struct{}, 1)
	t.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subscribers, id)
			t.mu.Unlock()
			close(ch)
		})
	}
}

// OnChange registers a hook invoked with the post-insertion snapshot after
// every Record. Hooks run under the trace lock in insertion order; they must
// be quick and must not call back into the Trace.
func (t *Trace) OnChange(hook func([]domain.TraceEvent)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hooks = append(t.hooks, hook)
}
