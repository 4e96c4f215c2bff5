package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/birdhomie/internal/logger"
)

// Config holds event bus configuration
type Config struct {
	BufferSize int
	Workers    int
}

// DefaultConfig returns the default event bus configuration
func DefaultConfig() Config {
	return Config{
		BufferSize: 1000,
		Workers:    2,
	}
}

// Stats are cumulative bus counters
type Stats struct {
	Received       uint64
	Dropped        uint64
	Delivered      uint64
	ConsumerErrors uint64
}

// DeliveryObserver is told about every consumer call
type DeliveryObserver func(consumer string, err error)

// Bus delivers events to consumers on worker goroutines. Publish never
// blocks; events are dropped when the buffer is full.
type Bus struct {
	ch      chan Event
	workers int
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	log     logger.Logger

	mu        sync.RWMutex
	consumers []Consumer
	observer  DeliveryObserver
	onDrop    func()

	started atomic.Bool
	closed  atomic.Bool

	received       atomic.Uint64
	dropped        atomic.Uint64
	delivered      atomic.Uint64
	consumerErrors atomic.Uint64
}

// NewBus creates a bus; workers start on the first Start call
func NewBus(cfg Config) *Bus {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		ch:      make(chan Event, cfg.BufferSize),
		workers: cfg.Workers,
		ctx:     ctx,
		cancel:  cancel,
		log:     GetLogger(),
	}
}

// RegisterConsumer adds c. Names must be unique.
func (b *Bus) RegisterConsumer(c Consumer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.consumers {
		if existing.Name() == c.Name() {
			return fmt.Errorf("consumer %s already registered", c.Name())
		}
	}
	b.consumers = append(b.consumers, c)
	b.log.Info("registered event consumer", logger.String("consumer", c.Name()))
	return nil
}

// SetDeliveryObserver installs fn; call before Start
func (b *Bus) SetDeliveryObserver(fn DeliveryObserver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observer = fn
}

// SetDropObserver installs fn, called for every dropped event
func (b *Bus) SetDropObserver(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDrop = fn
}

// Start launches the workers. Calling it again is a no-op.
func (b *Bus) Start() {
	if b.started.Swap(true) {
		return
	}
	b.log.Debug("starting event bus workers", logger.Int("count", b.workers))
	for id := range b.workers {
		b.wg.Go(func() { b.worker(id) })
	}
}

// Publish implements Publisher. The event time is set when missing.
func (b *Bus) Publish(e Event) {
	if b.closed.Load() {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	select {
	case b.ch <- e:
		b.received.Add(1)
	default:
		b.dropped.Add(1)
		b.mu.RLock()
		onDrop := b.onDrop
		b.mu.RUnlock()
		if onDrop != nil {
			onDrop()
		}
		b.log.Debug("event dropped due to full buffer", logger.String("type", string(e.Type)))
	}
}

func (b *Bus) worker(id int) {
	log := b.log.With(logger.Int("worker_id", id))
	for {
		select {
		case <-b.ctx.Done():
			// drain what is already queued
			for {
				select {
				case e := <-b.ch:
					b.deliver(e, log)
				default:
					return
				}
			}
		case e := <-b.ch:
			b.deliver(e, log)
		}
	}
}

func (b *Bus) deliver(e Event, log logger.Logger) {
	b.mu.RLock()
	consumers := append([]Consumer(nil), b.consumers...)
	observe := b.observer
	b.mu.RUnlock()

	for _, c := range consumers {
		err := b.consume(c, e)
		if err != nil {
			b.consumerErrors.Add(1)
			log.Warn("event consumer failed",
				logger.String("consumer", c.Name()),
				logger.String("type", string(e.Type)),
				logger.Error(err))
		} else {
			b.delivered.Add(1)
		}
		if observe != nil {
			observe(c.Name(), err)
		}
	}
}

// consume shields the bus from panicking consumers. Consumers keep a live
// context while the queue drains during shutdown.
func (b *Bus) consume(c Consumer, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("consumer panicked: %v", r)
		}
	}()
	return c.Consume(context.WithoutCancel(b.ctx), e)
}

// Shutdown stops accepting events, delivers the queued ones and waits
// for the workers up to timeout.
func (b *Bus) Shutdown(timeout time.Duration) error {
	if b.closed.Swap(true) {
		return nil
	}
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		b.log.Debug("event bus shutdown complete")
		return nil
	case <-time.After(timeout):
		b.log.Warn("event bus shutdown timeout exceeded", logger.Duration("timeout", timeout))
		return fmt.Errorf("event bus shutdown timeout exceeded")
	}
}

// Stats returns the cumulative counters
func (b *Bus) Stats() Stats {
	return Stats{
		Received:       b.received.Load(),
		Dropped:        b.dropped.Load(),
		Delivered:      b.delivered.Load(),
		ConsumerErrors: b.consumerErrors.Load(),
	}
}
