package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"blogpulse/internal/domain"
	"blogpulse/internal/repository"
	"blogpulse/pkg/logger"
	"blogpulse/pkg/metrics"
	"blogpulse/pkg/queue"
)

// ProcessorConfig tunes the worker pool
type ProcessorConfig struct {
	Workers    int
	JobTimeout time.Duration
	// Retry routes failed writes through the queue's backoff and dead
	// letter. When false a failed job is logged and acknowledged.
	Retry    bool
	PollWait time.Duration
}

// DefaultProcessorConfig returns production defaults
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		Workers:    4,
		JobTimeout: 10 * time.Second,
		Retry:      false,
		PollWait:   2 * time.Second,
	}
}

// JobSource is the consuming side of the durable queue
type JobSource interface {
	Dequeue(ctx context.Context, wait time.Duration) (*queue.Delivery, error)
	Ack(ctx context.Context, d *queue.Delivery) error
	Fail(ctx context.Context, d *queue.Delivery, cause error) (bool, error)
	DeadLetter(ctx context.Context, d *queue.Delivery, cause error) error
}

// EventProcessor drains the queue and writes events to the analytics store
type EventProcessor struct {
	source JobSource
	writer repository.EventWriter
	cfg    ProcessorConfig
	logger *logger.Logger
	now    func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewEventProcessor creates a processor. Call Start to run the workers.
func NewEventProcessor(source JobSource, writer repository.EventWriter, cfg ProcessorConfig, logger *logger.Logger) *EventProcessor {
	def := DefaultProcessorConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}
	if cfg.PollWait <= 0 {
		cfg.PollWait = def.PollWait
	}
	return &EventProcessor{
		source: source,
		writer: writer,
		cfg:    cfg,
		logger: logger.Component("processor"),
		now:    time.Now,
	}
}

// Start launches the workers
func (p *EventProcessor) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.running = true

	p.logger.WithFields(map[string]interface{}{
		"workers":     p.cfg.Workers,
		"job_timeout": p.cfg.JobTimeout.String(),
		"retry":       p.cfg.Retry,
	}).Info("Event processor started")
}

// Stop signals the workers and waits for in-flight jobs or ctx
func (p *EventProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Event processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *EventProcessor) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.WithField("worker", id)

	for {
		if ctx.Err() != nil {
			return
		}

		d, err := p.source.Dequeue(ctx, p.cfg.PollWait)
		if errors.Is(err, queue.ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("Failed to dequeue job")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		// queue bookkeeping must finish even while shutting down
		p.Handle(context.WithoutCancel(ctx), d)
	}
}

// Handle runs one delivery and settles it with the queue
func (p *EventProcessor) Handle(ctx context.Context, d *queue.Delivery) {
	start := time.Now()
	defer func() {
		metrics.JobDuration.Observe(time.Since(start).Seconds())
	}()

	log := p.logger.WithFields(map[string]interface{}{
		"job_id":   d.Job.ID,
		"attempts": d.Job.Attempts,
	})

	var event domain.AnalyticsEvent
	if err := json.Unmarshal(d.Job.Payload, &event); err != nil {
		log.WithError(err).Error("Dead-lettering undecodable job")
		if dlErr := p.source.DeadLetter(ctx, d, err); dlErr != nil {
			log.WithError(dlErr).Error("Failed to dead-letter job")
		}
		metrics.JobsProcessed.WithLabelValues("dead").Inc()
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, p.cfg.JobTimeout)
	result := p.Process(jobCtx, event)
	cancel()

	if !result.Failed() {
		if err := p.source.Ack(ctx, d); err != nil {
			log.WithError(err).Warn("Failed to ack job")
		}
		metrics.JobsProcessed.WithLabelValues("ok").Inc()
		return
	}

	log = log.WithError(result.Err).WithFields(map[string]interface{}{
		"event":           string(event.Event),
		"event_logged":    result.EventLogged,
		"raw_view_logged": result.RawViewLogged,
	})

	if !p.cfg.Retry {
		log.Warn("Analytics write failed, dropping event")
		if err := p.source.Ack(ctx, d); err != nil {
			log.Warn("Failed to ack dropped job", zap.NamedError("ack_error", err))
		}
		metrics.JobsProcessed.WithLabelValues("dropped").Inc()
		return
	}

	dead, err := p.source.Fail(ctx, d, result.Err)
	if err != nil {
		log.Error("Failed to record job failure", zap.NamedError("fail_error", err))
		return
	}
	if dead {
		log.Error("Analytics write failed, job dead-lettered")
		metrics.JobsProcessed.WithLabelValues("dead").Inc()
		return
	}
	log.Warn("Analytics write failed, job scheduled for retry")
	metrics.JobsProcessed.WithLabelValues("retried").Inc()
}

// Process writes the event-log row and, for eligible post views, the raw
// view row. A failed event-log write skips the raw view.
func (p *EventProcessor) Process(ctx context.Context, event domain.AnalyticsEvent) domain.ProcessResult {
	var result domain.ProcessResult
	now := p.now().UTC()

	if err := p.writer.InsertEvent(ctx, domain.NewEventRow(event, now)); err != nil {
		result.Err = fmt.Errorf("event log: %w", err)
		return result
	}
	result.EventLogged = true

	view, ok := domain.NewRawView(event, now)
	if !ok {
		return result
	}
	if err := p.writer.InsertRawView(ctx, view); err != nil {
		result.Err = fmt.Errorf("raw view: %w", err)
		return result
	}
	result.RawViewLogged = true
	return result
}
