package events

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

// Defaults for Config.
const (
	DefaultQueueSize   = 256
	DefaultWorkers     = 4
	DefaultSinkTimeout = 5 * time.Second
)

// Config tunes a Bus.
type Config struct {
	// QueueSize is the buffer size of each worker's queue.
	QueueSize int

	// Workers is the number of delivery goroutines.
	Workers int

	// SinkTimeout bounds a single Sink.Handle call.
	SinkTimeout time.Duration
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Stats holds delivery counters.
type Stats struct {
	Published  uint64 `json:"published"`
	Dropped    uint64 `json:"dropped"`
	Delivered  uint64 `json:"delivered"`
	SinkErrors uint64 `json:"sink_errors"`
	Panics     uint64 `json:"panics"`
}

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func (c *closeOnce) Close() { c.once.Do(func() { close(c.ch) }) }

func (c *closeOnce) Done() <-chan struct{} { return c.ch }

// Bus fans events out to sinks through a bounded worker pool.
//
// Thread Safety: all methods are safe for concurrent use.
type Bus struct {
	cfg    Config
	queues []chan Event
	done   *closeOnce
	wg     sync.WaitGroup

	// closeMu orders queue sends before Close; a send never lands after the
	// workers have drained.
	closeMu sync.RWMutex
	closed  bool

	sinkMu sync.RWMutex
	sinks  []Sink

	logger Logger

	published  atomic.Uint64
	dropped    atomic.Uint64
	delivered  atomic.Uint64
	sinkErrors atomic.Uint64
	panics     atomic.Uint64
}

var _ Publisher = (*Bus)(nil)

// NewBus creates a bus and starts its workers. Zero config fields take their
// defaults.
func NewBus(cfg Config, sinks ...Sink) *Bus {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = DefaultSinkTimeout
	}

	b := &Bus{
		cfg:    cfg,
		queues: make([]chan Event, cfg.Workers),
		done:   &closeOnce{ch: make(chan struct{})},
		sinks:  sinks,
		logger: noopLogger{},
	}
	for i := range b.queues {
		b.queues[i] = make(chan Event, cfg.QueueSize)
		b.wg.Add(1)
		go b.worker(b.queues[i])
	}
	return b
}

// SetLogger sets the logger for delivery failures. Call it before the first
// Publish.
func (b *Bus) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	b.logger = logger
}

// Subscribe adds a sink. Events already queued may or may not reach it.
func (b *Bus) Subscribe(s Sink) {
	b.sinkMu.Lock()
	b.sinks = append(b.sinks, s)
	b.sinkMu.Unlock()
}

// Publish queues ev without blocking. It returns false when the event was
// dropped because the queue is full or the bus is closed.
func (b *Bus) Publish(ev Event) bool {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	if b.closed {
		b.dropped.Add(1)
		return false
	}

	select {
	case b.queues[b.shard(ev.SessionID)] <- ev:
		b.published.Add(1)
		return true
	default:
		b.dropped.Add(1)
		b.logger.Warn("event queue full, dropping event", "type", string(ev.Type), "session_id", ev.SessionID)
		return false
	}
}

// Close stops accepting events, delivers what is already queued and waits
// for the workers to exit. Safe to call more than once.
func (b *Bus) Close() {
	b.closeMu.Lock()
	b.closed = true
	b.closeMu.Unlock()

	b.done.Close()
	b.wg.Wait()
}

// Stats returns a snapshot of the delivery counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Published:  b.published.Load(),
		Dropped:    b.dropped.Load(),
		Delivered:  b.delivered.Load(),
		SinkErrors: b.sinkErrors.Load(),
		Panics:     b.panics.Load(),
	}
}

func (b *Bus) shard(key string) int {
	if len(b.queues) == 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(key)) //nolint:errcheck // hash writes never fail
	return int(h.Sum32() % uint32(len(b.queues))) //nolint:gosec // worker count is small
}

func (b *Bus) worker(queue chan Event) {
	defer b.wg.Done()

	for {
		select {
		case <-b.done.Done():
			b.drain(queue)
			return
		case ev := <-queue:
			b.deliver(ev)
		}
	}
}

// drain delivers whatever is left in queue without waiting for more.
func (b *Bus) drain(queue chan Event) {
	for {
		select {
		case ev := <-queue:
			b.deliver(ev)
		default:
			return
		}
	}
}

func (b *Bus) deliver(ev Event) {
	b.sinkMu.RLock()
	sinks := b.sinks
	b.sinkMu.RUnlock()

	for _, s := range sinks {
		b.handle(s, ev)
	}
	b.delivered.Add(1)
}

// handle runs one sink, converting a panic into a logged error.
func (b *Bus) handle(s Sink, ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.SinkTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			b.panics.Add(1)
			b.logger.Error("event sink panic", "type", string(ev.Type), "error", fmt.Sprintf("%v", r))
		}
	}()

	if err := s.Handle(ctx, ev); err != nil {
		b.sinkErrors.Add(1)
		b.logger.Warn("event sink failed", "type", string(ev.Type), "error", err)
	}
}
