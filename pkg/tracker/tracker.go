// Package tracker is the client side of the analytics pipeline. It stamps
// events with a durable client identifier, the device class and a timestamp,
// buffers them, and ships them in batches.
//
// Delivery is fire-and-forget: a batch that fails to send is logged and
// dropped.
package tracker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"blogpulse/pkg/event"
)

// Event is the tracked unit
type Event = event.Event

// Clock abstracts time for the flush timer
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of time.Ticker the tracker uses
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} }

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop() { r.t.Stop() }

// SystemClock is the wall clock
var SystemClock Clock = realClock{}

// Config tunes batching
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	SendTimeout   time.Duration
	// UserAgent classifies the device when an event has none
	UserAgent string
}

// DefaultConfig flushes every 5 events or every 3 seconds
func DefaultConfig() Config {
	return Config{
		BatchSize:     5,
		FlushInterval: 3 * time.Second,
		SendTimeout:   10 * time.Second,
	}
}

// Tracker buffers events and flushes them by size or timer. Safe for
// concurrent use.
type Tracker struct {
	cfg       Config
	transport Transport
	ids       *ClientIDResolver
	clock     Clock
	log       *zap.Logger

	mu     sync.Mutex
	buf    []Event
	closed bool

	ticker Ticker
	stop   chan struct{}
	done   chan struct{}
	sends  sync.WaitGroup
}

// New starts a tracker. Its timer runs until Close.
func New(cfg Config, transport Transport, ids *ClientIDResolver, clock Clock, log *zap.Logger) *Tracker {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	if clock == nil {
		clock = SystemClock
	}
	if log == nil {
		log = zap.NewNop()
	}

	t := &Tracker{
		cfg:       cfg,
		transport: transport,
		ids:       ids,
		clock:     clock,
		log:       log.Named("tracker"),
		buf:       make([]Event, 0, cfg.BatchSize),
		ticker:    clock.NewTicker(cfg.FlushInterval),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *Tracker) run() {
	defer close(t.done)
	for {
		select {
		case <-t.ticker.C():
			t.Flush()
		case <-t.stop:
			return
		}
	}
}

// Track fills in missing fields and buffers the event. A full buffer is
// flushed right away.
func (t *Tracker) Track(e Event) {
	if e.ClientID == "" && t.ids != nil {
		e.ClientID = t.ids.GetOrCreate()
	}
	if e.Device == "" {
		e.Device = event.ClassifyDevice(t.cfg.UserAgent)
	}
	if e.CreatedAt == nil {
		now := t.clock.Now().UTC()
		e.CreatedAt = &now
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		t.log.Debug("Dropping event tracked after close", zap.String("event", string(e.Event)))
		return
	}
	t.buf = append(t.buf, e)
	var batch []Event
	if len(t.buf) >= t.cfg.BatchSize {
		batch = t.takeLocked()
	}
	t.mu.Unlock()

	if batch != nil {
		t.send(batch)
	}
}

// Flush ships whatever is buffered
func (t *Tracker) Flush() {
	t.mu.Lock()
	batch := t.takeLocked()
	t.mu.Unlock()

	if batch != nil {
		t.send(batch)
	}
}

// Pending returns the number of buffered events
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buf)
}

func (t *Tracker) takeLocked() []Event {
	if len(t.buf) == 0 {
		return nil
	}
	batch := t.buf
	t.buf = make([]Event, 0, t.cfg.BatchSize)
	return batch
}

func (t *Tracker) send(batch []Event) {
	t.sends.Add(1)
	go func() {
		defer t.sends.Done()
		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.SendTimeout)
		defer cancel()
		if err := t.transport.Send(ctx, batch); err != nil {
			t.log.Warn("Dropping analytics batch",
				zap.Int("events", len(batch)),
				zap.Error(err),
			)
		}
	}()
}

// Close stops the timer, flushes the buffer and waits for in-flight sends
// until ctx is done
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.ticker.Stop()
	close(t.stop)
	<-t.done

	t.Flush()

	waited := make(chan struct{})
	go func() {
		t.sends.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
