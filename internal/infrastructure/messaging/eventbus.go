// Package messaging implements the in-process event bus that carries
// progress, quiz and certificate events to their handlers.
package messaging

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/skillforge/lms-backend/internal/domain/shared"
	"github.com/skillforge/lms-backend/pkg/logger"
)

var (
	ErrBusClosed    = errors.New("event bus: closed")
	ErrHandlerPanic = errors.New("event bus: handler panicked")
	errNilHandler   = errors.New("event bus: nil handler")
	errNilEvent     = errors.New("event bus: nil event")
)

// Config sizes the bus. Workers == 0 delivers synchronously inside Publish.
type Config struct {
	Workers   int
	QueueSize int
	Logger    *logger.Logger
}

// DefaultConfig runs 4 workers over a queue of 256 deliveries.
func DefaultConfig() Config {
	return Config{Workers: 4, QueueSize: 256}
}

// Stats are cumulative delivery counters.
type Stats struct {
	Published int64
	Delivered int64
	Failed    int64
	// Inline counts deliveries run by the publisher because the queue was full.
	Inline int64
}

type delivery struct {
	event   shared.Event
	handler shared.EventHandler
}

// Bus fans events out to handlers registered per type and to catch-all
// handlers. Publishers never see handler errors: events are published
// after the state they describe is saved, so a failing handler is logged
// and counted only. Close delivers everything already queued.
type Bus struct {
	log *logger.Logger

	mu       sync.RWMutex
	byType   map[shared.EventType][]shared.EventHandler
	catchAll []shared.EventHandler
	closed   bool

	queue   chan delivery
	workers sync.WaitGroup

	published, delivered, failed, inline atomic.Int64
}

var _ shared.EventBus = (*Bus)(nil)

// New starts the bus workers.
func New(cfg Config) *Bus {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	b := &Bus{
		log:    log.With(logger.Component("event_bus")),
		byType: make(map[shared.EventType][]shared.EventHandler),
	}
	if cfg.Workers > 0 {
		size := cfg.QueueSize
		if size < cfg.Workers {
			size = cfg.Workers
		}
		b.queue = make(chan delivery, size)
		for i := 0; i < cfg.Workers; i++ {
			b.workers.Add(1)
			go b.work()
		}
	}
	return b
}

func (b *Bus) Subscribe(eventType shared.EventType, h shared.EventHandler) error {
	return b.subscribe(h, func() { b.byType[eventType] = append(b.byType[eventType], h) })
}

func (b *Bus) SubscribeAll(h shared.EventHandler) error {
	return b.subscribe(h, func() { b.catchAll = append(b.catchAll, h) })
}

func (b *Bus) subscribe(h shared.EventHandler, add func()) error {
	if h == nil {
		return errNilHandler
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	add()
	return nil
}

// Publish hands the event to every matching handler. With workers it
// only enqueues; when the queue is full the publisher delivers inline
// rather than dropping the event.
func (b *Bus) Publish(event shared.Event) error {
	if event == nil {
		return errNilEvent
	}

	// The read lock is held while enqueueing so Close cannot close the
	// queue under a publisher.
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	b.published.Add(1)

	typed := b.byType[event.EventType()]
	for _, hs := range [][]shared.EventHandler{typed, b.catchAll} {
		for _, h := range hs {
			d := delivery{event: event, handler: h}
			if b.queue == nil {
				b.deliver(d)
				continue
			}
			select {
			case b.queue <- d:
			default:
				b.inline.Add(1)
				b.deliver(d)
			}
		}
	}
	return nil
}

func (b *Bus) work() {
	defer b.workers.Done()
	for d := range b.queue {
		b.deliver(d)
	}
}

func (b *Bus) deliver(d delivery) {
	if err := b.invoke(d); err != nil {
		b.failed.Add(1)
		b.log.Error("event handler failed",
			logger.String("event_type", string(d.event.EventType())),
			logger.String("aggregate_id", d.event.AggregateID()),
			logger.Err(err),
		)
		return
	}
	b.delivered.Add(1)
}

func (b *Bus) invoke(d delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panic", logger.Any("panic", r), logger.String("stack", string(debug.Stack())))
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return d.handler(d.event)
}

// Close rejects new events and subscriptions, then waits until the queue
// is drained. Calling it twice is harmless.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	if b.queue != nil {
		close(b.queue)
	}
	b.mu.Unlock()

	b.workers.Wait()
	return nil
}

func (b *Bus) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
		Failed:    b.failed.Load(),
		Inline:    b.inline.Load(),
	}
}
