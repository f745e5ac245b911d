// Package queue is a durable at-least-once job queue on Redis.
//
// Jobs wait in a list, move atomically to an active list when a worker takes
// them, and carry a lease key while being processed. Failed jobs are retried
// through a delayed sorted set with exponential backoff and end up in a
// capped dead-letter list once their attempts are exhausted. All state lives
// in Redis, so a restarted process picks up where the previous one stopped;
// jobs orphaned by a crash are returned to the wait list by ReapStalled.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"blogpulse/pkg/redis"
)

// ErrEmpty is returned by Dequeue when no job became available in time
var ErrEmpty = errors.New("queue: no job available")

// Structure names under the queue key prefix
const (
	partWait      = "wait"
	partActive    = "active"
	partDelayed   = "delayed"
	partFailed    = "failed"
	partProcessed = "processed"
	partDead      = "dead"
	partRetried   = "retried"
)

// Job is one unit of work
type Job struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	LastError   string          `json:"last_error,omitempty"`
}

// Delivery is a job handed to a worker. raw is the exact list entry, needed
// to remove it from the active list.
type Delivery struct {
	Job Job
	raw string
}

// Options configures a queue
type Options struct {
	Name        string
	MaxAttempts int           // total tries before dead-lettering
	Backoff     time.Duration // base delay, doubled per attempt
	MaxBackoff  time.Duration
	LeaseTTL    time.Duration // how long a worker may hold a job
	KeepFailed  int64         // dead-letter list cap
}

// DefaultOptions returns production defaults for the named queue
func DefaultOptions(name string) Options {
	return Options{
		Name:        name,
		MaxAttempts: 3,
		Backoff:     2 * time.Second,
		MaxBackoff:  5 * time.Minute,
		LeaseTTL:    time.Minute,
		KeepFailed:  10000,
	}
}

// Stats is a point-in-time view of the queue
type Stats struct {
	Waiting      int64
	Active       int64
	Delayed      int64
	DeadLettered int64
	Processed    int64
	Dead         int64
	Retried      int64
}

// promoteScript moves due jobs from the delayed set to the wait list
var promoteScript = goredis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, item in ipairs(due) do
  redis.call('ZREM', KEYS[1], item)
  redis.call('LPUSH', KEYS[2], item)
end
return #due
`)

// requeueScript moves one entry from the active list back to the wait list,
// only if it is still there
var requeueScript = goredis.NewScript(`
local removed = redis.call('LREM', KEYS[1], 1, ARGV[1])
if removed > 0 then
  redis.call('LPUSH', KEYS[2], ARGV[1])
end
return removed
`)

// Queue is safe for concurrent use by many workers and processes
type Queue struct {
	rdb  *goredis.Client
	kb   *redis.KeyBuilder
	opts Options
	log  *zap.Logger
	now  func() time.Time

	mu      sync.Mutex
	suspect map[string]struct{} // active jobs seen without a lease on the previous reap
}

// New creates a queue on top of the shared Redis client
func New(client *redis.Client, opts Options, log *zap.Logger) *Queue {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = time.Minute
	}
	if opts.KeepFailed <= 0 {
		opts.KeepFailed = 10000
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{
		rdb:     client.Raw(),
		kb:      client.KeyBuilder,
		opts:    opts,
		log:     log.With(zap.String("queue", opts.Name)),
		now:     time.Now,
		suspect: make(map[string]struct{}),
	}
}

// Name returns the queue name
func (q *Queue) Name() string {
	return q.opts.Name
}

func (q *Queue) key(part string) string {
	return q.kb.KeyQueue(q.opts.Name, part)
}

func (q *Queue) leaseKey(jobID string) string {
	return q.kb.KeyQueueLease(q.opts.Name, jobID)
}

func (q *Queue) newJob(name string, payload any) (Job, string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Job{}, "", fmt.Errorf("failed to encode job payload: %w", err)
	}
	job := Job{
		ID:          uuid.NewString(),
		Name:        name,
		Payload:     body,
		MaxAttempts: q.opts.MaxAttempts,
		EnqueuedAt:  q.now().UTC(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return Job{}, "", fmt.Errorf("failed to encode job: %w", err)
	}
	return job, string(raw), nil
}

// Enqueue adds one job and returns its ID
func (q *Queue) Enqueue(ctx context.Context, name string, payload any) (string, error) {
	job, raw, err := q.newJob(name, payload)
	if err != nil {
		return "", err
	}
	if err := q.rdb.LPush(ctx, q.key(partWait), raw).Err(); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}
	return job.ID, nil
}

// EnqueueBatch adds jobs in order with a single round trip
func (q *Queue) EnqueueBatch(ctx context.Context, name string, payloads []any) ([]string, error) {
	if len(payloads) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(payloads))
	raws := make([]interface{}, 0, len(payloads))
	for _, p := range payloads {
		job, raw, err := q.newJob(name, p)
		if err != nil {
			return nil, err
		}
		ids = append(ids, job.ID)
		raws = append(raws, raw)
	}

	// LPUSH with several values pushes them left to right, so the first
	// payload ends up closest to the consuming (right) end.
	if err := q.rdb.LPush(ctx, q.key(partWait), raws...).Err(); err != nil {
		return nil, fmt.Errorf("failed to enqueue batch: %w", err)
	}
	return ids, nil
}

// Dequeue takes the oldest waiting job. With wait > 0 it blocks up to wait;
// otherwise it returns ErrEmpty immediately when nothing is queued.
func (q *Queue) Dequeue(ctx context.Context, wait time.Duration) (*Delivery, error) {
	var (
		raw string
		err error
	)
	if wait > 0 {
		raw, err = q.rdb.BLMove(ctx, q.key(partWait), q.key(partActive), "RIGHT", "LEFT", wait).Result()
	} else {
		raw, err = q.rdb.LMove(ctx, q.key(partWait), q.key(partActive), "RIGHT", "LEFT").Result()
	}
	if errors.Is(err, goredis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		// Unparseable entries cannot be leased or retried.
		q.log.Warn("dropping malformed queue entry", zap.Error(err))
		pipe := q.rdb.TxPipeline()
		pipe.LRem(ctx, q.key(partActive), 1, raw)
		pipe.LPush(ctx, q.key(partFailed), raw)
		pipe.Incr(ctx, q.key(partDead))
		if _, perr := pipe.Exec(ctx); perr != nil {
			return nil, fmt.Errorf("failed to dead-letter malformed job: %w", perr)
		}
		return nil, ErrEmpty
	}

	if err := q.rdb.Set(ctx, q.leaseKey(job.ID), q.now().Unix(), q.opts.LeaseTTL).Err(); err != nil {
		q.log.Warn("failed to set job lease", zap.String("job_id", job.ID), zap.Error(err))
	}

	return &Delivery{Job: job, raw: raw}, nil
}

// Ack marks a delivery as done
func (q *Queue) Ack(ctx context.Context, d *Delivery) error {
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.key(partActive), 1, d.raw)
	pipe.Del(ctx, q.leaseKey(d.Job.ID))
	pipe.Incr(ctx, q.key(partProcessed))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to ack job %s: %w", d.Job.ID, err)
	}
	return nil
}

// Fail records a failed attempt. The job is scheduled for retry with
// backoff while attempts remain, otherwise it is dead-lettered. dead reports
// which of the two happened.
func (q *Queue) Fail(ctx context.Context, d *Delivery, cause error) (dead bool, err error) {
	job := d.Job
	job.Attempts++
	if cause != nil {
		job.LastError = cause.Error()
	}
	return q.moveFailed(ctx, d, job, job.Attempts >= job.MaxAttempts)
}

// DeadLetter moves a delivery straight to the dead-letter list
func (q *Queue) DeadLetter(ctx context.Context, d *Delivery, cause error) error {
	job := d.Job
	job.Attempts++
	if cause != nil {
		job.LastError = cause.Error()
	}
	_, err := q.moveFailed(ctx, d, job, true)
	return err
}

func (q *Queue) moveFailed(ctx context.Context, d *Delivery, job Job, dead bool) (bool, error) {
	raw, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("failed to encode job: %w", err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.key(partActive), 1, d.raw)
	pipe.Del(ctx, q.leaseKey(job.ID))
	if dead {
		pipe.LPush(ctx, q.key(partFailed), raw)
		pipe.LTrim(ctx, q.key(partFailed), 0, q.opts.KeepFailed-1)
		pipe.Incr(ctx, q.key(partDead))
	} else {
		readyAt := q.now().Add(q.backoff(job.Attempts))
		pipe.ZAdd(ctx, q.key(partDelayed), goredis.Z{Score: float64(readyAt.UnixMilli()), Member: string(raw)})
		pipe.Incr(ctx, q.key(partRetried))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to record failure of job %s: %w", job.ID, err)
	}
	return dead, nil
}

// backoff is Backoff * 2^(attempt-1), capped at MaxBackoff
func (q *Queue) backoff(attempt int) time.Duration {
	if q.opts.Backoff <= 0 {
		return 0
	}
	d := time.Duration(float64(q.opts.Backoff) * math.Pow(2, float64(attempt-1)))
	if q.opts.MaxBackoff > 0 && d > q.opts.MaxBackoff {
		return q.opts.MaxBackoff
	}
	return d
}

// PromoteDue moves delayed jobs whose backoff elapsed back to the wait list
func (q *Queue) PromoteDue(ctx context.Context) (int, error) {
	n, err := promoteScript.Run(ctx, q.rdb,
		[]string{q.key(partDelayed), q.key(partWait)},
		strconv.FormatInt(q.now().UnixMilli(), 10), 500,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to promote delayed jobs: %w", err)
	}
	if n > 0 {
		q.log.Debug("promoted delayed jobs", zap.Int("count", n))
	}
	return n, nil
}

// ReapStalled returns active jobs without a lease to the wait list. A job
// must be seen lease-less on two consecutive calls, which leaves room for a
// worker that has moved a job but not yet written its lease.
func (q *Queue) ReapStalled(ctx context.Context) (int, error) {
	entries, err := q.rdb.LRange(ctx, q.key(partActive), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list active jobs: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	nextSuspect := make(map[string]struct{})
	requeued := 0
	for _, raw := range entries {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			continue
		}
		leased, err := q.rdb.Exists(ctx, q.leaseKey(job.ID)).Result()
		if err != nil {
			return requeued, fmt.Errorf("failed to check lease: %w", err)
		}
		if leased > 0 {
			continue
		}
		if _, seen := q.suspect[job.ID]; !seen {
			nextSuspect[job.ID] = struct{}{}
			continue
		}
		moved, err := requeueScript.Run(ctx, q.rdb, []string{q.key(partActive), q.key(partWait)}, raw).Int()
		if err != nil {
			return requeued, fmt.Errorf("failed to requeue stalled job: %w", err)
		}
		if moved > 0 {
			requeued++
			q.log.Info("requeued stalled job", zap.String("job_id", job.ID), zap.Int("attempts", job.Attempts))
		}
	}
	q.suspect = nextSuspect
	return requeued, nil
}

// Stats reads all depths and counters in one pipeline
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	pipe := q.rdb.Pipeline()
	waiting := pipe.LLen(ctx, q.key(partWait))
	active := pipe.LLen(ctx, q.key(partActive))
	delayed := pipe.ZCard(ctx, q.key(partDelayed))
	failed := pipe.LLen(ctx, q.key(partFailed))
	processed := pipe.Get(ctx, q.key(partProcessed))
	dead := pipe.Get(ctx, q.key(partDead))
	retried := pipe.Get(ctx, q.key(partRetried))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return Stats{}, fmt.Errorf("failed to read queue stats: %w", err)
	}

	return Stats{
		Waiting:      waiting.Val(),
		Active:       active.Val(),
		Delayed:      delayed.Val(),
		DeadLettered: failed.Val(),
		Processed:    counter(processed),
		Dead:         counter(dead),
		Retried:      counter(retried),
	}, nil
}

// DeadLetters returns up to limit dead-lettered jobs, newest first
func (q *Queue) DeadLetters(ctx context.Context, limit int64) ([]Job, error) {
	raws, err := q.rdb.LRange(ctx, q.key(partFailed), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read dead letters: %w", err)
	}
	jobs := make([]Job, 0, len(raws))
	for _, raw := range raws {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err == nil {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

// Ping checks the backing store
func (q *Queue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

func counter(cmd *goredis.StringCmd) int64 {
	n, err := cmd.Int64()
	if err != nil {
		return 0
	}
	return n
}
