package queue

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"blogpulse/pkg/metrics"
)

// MaintainerSchedule holds cron specs for the housekeeping tasks
type MaintainerSchedule struct {
	Promote string
	Reap    string
	Gauges  string
}

// DefaultSchedule promotes every second, reaps every 30s and refreshes
// depth gauges every 15s
func DefaultSchedule() MaintainerSchedule {
	return MaintainerSchedule{
		Promote: "@every 1s",
		Reap:    "@every 30s",
		Gauges:  "@every 15s",
	}
}

// Maintainer runs the queue housekeeping on a cron schedule
type Maintainer struct {
	queue    *Queue
	cron     *cron.Cron
	schedule MaintainerSchedule
	log      *zap.Logger
	timeout  time.Duration

	mu      sync.Mutex
	running bool
}

// cronLogger adapts zap to the cron logger interface
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}

// NewMaintainer wires the housekeeping jobs for q
func NewMaintainer(q *Queue, schedule MaintainerSchedule, log *zap.Logger) (*Maintainer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cl := cronLogger{log: log.Sugar()}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	m := &Maintainer{
		queue:    q,
		cron:     c,
		schedule: schedule,
		log:      log.With(zap.String("queue", q.Name())),
		timeout:  10 * time.Second,
	}

	tasks := []struct {
		spec string
		fn   func()
	}{
		{schedule.Promote, m.promote},
		{schedule.Reap, m.reap},
		{schedule.Gauges, m.gauges},
	}
	for _, t := range tasks {
		if t.spec == "" {
			continue
		}
		if _, err := c.AddFunc(t.spec, t.fn); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Start begins the schedule
func (m *Maintainer) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.cron.Start()
	m.running = true
	m.log.Info("Queue maintainer started")
}

// Stop halts the schedule and waits for running tasks or ctx
func (m *Maintainer) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	m.running = false
	done := m.cron.Stop()
	select {
	case <-done.Done():
		m.log.Info("Queue maintainer stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Maintainer) promote() {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	n, err := m.queue.PromoteDue(ctx)
	if err != nil {
		m.log.Warn("Failed to promote delayed jobs", zap.Error(err))
		return
	}
	if n > 0 {
		metrics.QueueMaintenance.WithLabelValues(m.queue.Name(), "promoted").Add(float64(n))
	}
}

func (m *Maintainer) reap() {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	n, err := m.queue.ReapStalled(ctx)
	if err != nil {
		m.log.Warn("Failed to reap stalled jobs", zap.Error(err))
		return
	}
	if n > 0 {
		metrics.QueueMaintenance.WithLabelValues(m.queue.Name(), "reaped").Add(float64(n))
	}
}

func (m *Maintainer) gauges() {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	stats, err := m.queue.Stats(ctx)
	if err != nil {
		m.log.Warn("Failed to read queue stats", zap.Error(err))
		return
	}
	PublishGauges(m.queue.Name(), stats)
}

// PublishGauges exports stats as depth gauges
func PublishGauges(name string, s Stats) {
	metrics.QueueDepth.WithLabelValues(name, "waiting").Set(float64(s.Waiting))
	metrics.QueueDepth.WithLabelValues(name, "active").Set(float64(s.Active))
	metrics.QueueDepth.WithLabelValues(name, "delayed").Set(float64(s.Delayed))
	metrics.QueueDepth.WithLabelValues(name, "dead").Set(float64(s.DeadLettered))
}
