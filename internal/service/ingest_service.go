package service

import (
	"context"
	"time"

	"blogpulse/internal/domain"
	apperrors "blogpulse/pkg/errors"
	"blogpulse/pkg/logger"
	"blogpulse/pkg/metrics"
	"blogpulse/pkg/validation"
)

// DefaultMaxBatchSize bounds one ingestion request
const DefaultMaxBatchSize = 100

// ingestService validates and enriches events, then hands them to the queue.
// It never touches the analytics store.
type ingestService struct {
	queue        EventQueue
	activity     ActivityService
	logger       *logger.Logger
	maxBatchSize int
}

// NewIngestService creates a new ingest service. activity may be nil.
func NewIngestService(queue EventQueue, activity ActivityService, logger *logger.Logger, maxBatchSize int) IngestService {
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	return &ingestService{
		queue:        queue,
		activity:     activity,
		logger:       logger.Component("ingest"),
		maxBatchSize: maxBatchSize,
	}
}

// Track normalizes every event against what the server observed, validates
// the whole batch and enqueues it in order. Nothing is enqueued when any
// event is invalid.
func (s *ingestService) Track(ctx context.Context, events []domain.AnalyticsEvent, meta domain.RequestMeta) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	if len(events) > s.maxBatchSize {
		metrics.IngestRejected.WithLabelValues("validation").Inc()
		return 0, apperrors.NewValidationError("too many events in one batch", map[string]interface{}{
			"max_batch_size": s.maxBatchSize,
			"received":       len(events),
		})
	}

	normalized := make([]domain.AnalyticsEvent, len(events))
	for i, e := range events {
		normalized[i] = enrich(e, meta)
	}

	if err := validation.Struct(domain.EventBatch{Events: normalized}); err != nil {
		metrics.IngestRejected.WithLabelValues("validation").Inc()
		details := map[string]interface{}{}
		if verrs, ok := err.(validation.Errors); ok {
			details = verrs.Details()
		}
		return 0, apperrors.NewValidationError(err.Error(), details)
	}

	payloads := make([]any, len(normalized))
	for i := range normalized {
		payloads[i] = normalized[i]
	}

	if _, err := s.queue.EnqueueBatch(ctx, JobProcessEvent, payloads); err != nil {
		metrics.IngestRejected.WithLabelValues("enqueue").Inc()
		s.logger.WithError(err).WithField("events", len(normalized)).Error("Failed to enqueue analytics events")
		return 0, apperrors.NewUnavailableError("analytics queue unavailable", err)
	}

	for _, e := range normalized {
		metrics.EventsIngested.WithLabelValues(string(e.Event)).Inc()
	}
	s.recordActors(normalized)

	return len(normalized), nil
}

// enrich applies the server-side view of the request: the session decides
// user_id, the connection decides ip, the user agent fills a missing device
func enrich(e domain.AnalyticsEvent, meta domain.RequestMeta) domain.AnalyticsEvent {
	if meta.Authenticated() {
		e.UserID = meta.Session.UserID
	} else {
		e.UserID = ""
	}
	e.Metadata = e.Metadata.WithServerIP(meta.IP)
	if e.Device == "" {
		e.Device = domain.ClassifyDevice(meta.UserAgent)
	}
	return e
}

func (s *ingestService) recordActors(events []domain.AnalyticsEvent) {
	if s.activity == nil {
		return
	}
	actors := make(map[string]struct{})
	for _, e := range events {
		if id := e.ActorID(); id != "" {
			actors[id] = struct{}{}
		}
	}
	if len(actors) == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for id := range actors {
			if err := s.activity.RecordActive(ctx, id); err != nil {
				return
			}
		}
	}()
}
