package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"blogpulse/internal/domain"
	"blogpulse/internal/repository"
	"blogpulse/pkg/logger"
	"blogpulse/pkg/metrics"
	"blogpulse/pkg/redis"
)

// DedupCounter is the atomic increment-with-expiry primitive
type DedupCounter interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// viewCounterService counts one view (or read) per actor, post and window
type viewCounterService struct {
	posts    repository.PostRepository
	dedup    DedupCounter
	keys     *redis.KeyBuilder
	queue    EventQueue
	notifier Notifier
	ttl      time.Duration
	logger   *logger.Logger

	// async tracks background enqueues so tests and shutdown can wait
	async func(func())
}

// NewViewCounterService creates a new view counter service. notifier may be nil.
func NewViewCounterService(posts repository.PostRepository, redisClient *redis.Client, queue EventQueue, notifier Notifier, ttl time.Duration, logger *logger.Logger) ViewCounterService {
	return newViewCounterService(posts, redisClient, redisClient.KeyBuilder, queue, notifier, ttl, logger)
}

func newViewCounterService(posts repository.PostRepository, dedup DedupCounter, keys *redis.KeyBuilder, queue EventQueue, notifier Notifier, ttl time.Duration, logger *logger.Logger) *viewCounterService {
	if ttl <= 0 {
		ttl = redis.TTLViewDedup
	}
	return &viewCounterService{
		posts:    posts,
		dedup:    dedup,
		keys:     keys,
		queue:    queue,
		notifier: notifier,
		ttl:      ttl,
		logger:   logger.Component("views"),
		async:    func(f func()) { go f() },
	}
}

// ActorIdentity picks who a view is attributed to: the session user, then
// the client ID, then a hash of the network fingerprint
func ActorIdentity(clientID string, meta domain.RequestMeta) string {
	if meta.Authenticated() {
		return "u:" + meta.Session.UserID
	}
	if clientID != "" {
		return "c:" + clientID
	}
	sum := sha256.Sum256([]byte(meta.IP + "|" + meta.UserAgent))
	return "h:" + hex.EncodeToString(sum[:16])
}

// RecordView serves the post and counts the signal only on the first hit of
// the window. Dedup failures serve the post uncounted.
func (s *viewCounterService) RecordView(ctx context.Context, kind domain.ViewKind, postID, clientID string, meta domain.RequestMeta) (*domain.ViewOutcome, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}

	outcome := &domain.ViewOutcome{Post: post}
	key := s.keys.KeyViewDedup(string(kind), postID, ActorIdentity(clientID, meta))

	hits, err := s.dedup.IncrWithTTL(ctx, key, s.ttl)
	if err != nil {
		metrics.DedupOutcomes.WithLabelValues(string(kind), "error").Inc()
		s.logger.WithError(err).WithField("post_id", postID).Warn("Dedup store unavailable, view not counted")
		return outcome, nil
	}
	outcome.Hits = hits

	if hits > 1 {
		metrics.DedupOutcomes.WithLabelValues(string(kind), "duplicate").Inc()
		return outcome, nil
	}

	counter := kind.Counter()
	value, err := s.posts.IncrementCounter(ctx, postID, counter)
	if err != nil {
		metrics.DedupOutcomes.WithLabelValues(string(kind), "error").Inc()
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"post_id": postID,
			"counter": string(counter),
		}).Error("Failed to increment post counter")
		return outcome, nil
	}

	metrics.DedupOutcomes.WithLabelValues(string(kind), "counted").Inc()
	outcome.Counted = true
	updated := *post
	if counter == domain.CounterReads {
		updated.Reads = value
	} else {
		updated.Views = value
	}
	outcome.Post = &updated

	if s.notifier != nil {
		s.notifier.NotifyCounter(domain.CounterChange{PostID: postID, Counter: counter, Value: value})
	}
	s.emit(kind, postID, clientID, meta)

	return outcome, nil
}

// emit enqueues the matching analytics event without blocking the caller
func (s *viewCounterService) emit(kind domain.ViewKind, postID, clientID string, meta domain.RequestMeta) {
	if s.queue == nil {
		return
	}
	now := time.Now().UTC()
	event := domain.AnalyticsEvent{
		Event:     kind.Event(),
		ClientID:  clientID,
		PostID:    postID,
		Device:    domain.ClassifyDevice(meta.UserAgent),
		CreatedAt: &now,
	}
	if meta.Authenticated() {
		event.UserID = meta.Session.UserID
	}
	event.Metadata = event.Metadata.WithServerIP(meta.IP)
	event.Metadata.Referrer = meta.Referrer

	s.async(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := s.queue.Enqueue(ctx, JobProcessEvent, event); err != nil {
			s.logger.WithError(err).WithField("post_id", postID).Warn("Failed to enqueue view event")
		}
	})
}
