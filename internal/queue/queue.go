// Package queue is a durable, at-least-once job queue on Redis with leases,
// delayed scheduling and bounded failure history.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/timmy/linkweaver/internal/domain"
)

const (
	defaultPrefix = "linkweaver"
	// promoteBatch caps how many jobs one promote or reap pass moves.
	promoteBatch = 100
)

// ErrLeaseLost is returned when a job is no longer active under this worker,
// typically because its lease expired and it was handed to another worker.
var ErrLeaseLost = errors.New("queue: job lease lost")

// ErrJobNotFound is returned by Get for an unknown or evicted job.
var ErrJobNotFound = errors.New("queue: job not found")

// Options tunes queue behaviour. Zero values fall back to defaults.
type Options struct {
	Prefix      string
	Lease       time.Duration
	MaxAttempts int
	Backoff     time.Duration
	// KeepFailed and KeepCompleted bound the finished-job history.
	// A negative value keeps none.
	KeepFailed    int
	KeepCompleted int
}

func (o Options) withDefaults() Options {
	if o.Prefix == "" {
		o.Prefix = defaultPrefix
	}
	if o.Lease <= 0 {
		o.Lease = 5 * time.Minute
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 1
	}
	if o.Backoff <= 0 {
		o.Backoff = 30 * time.Second
	}
	switch {
	case o.KeepFailed == 0:
		o.KeepFailed = 3
	case o.KeepFailed < 0:
		o.KeepFailed = 0
	}
	switch {
	case o.KeepCompleted == 0:
		o.KeepCompleted = 100
	case o.KeepCompleted < 0:
		o.KeepCompleted = 0
	}
	return o
}

// Job is a queued unit of work as stored in Redis.
type Job struct {
	ID          string          `json:"id"`
	Kind        domain.JobKind  `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	State       domain.JobState `json:"state"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	RunAt       time.Time       `json:"run_at"`
}

// Decode returns the typed payload.
func (j *Job) Decode() (domain.JobPayload, error) {
	return domain.DecodePayload(j.Kind, j.Payload)
}

// Stats counts jobs per state.
type Stats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Delayed   int64 `json:"delayed"`
	Failed    int64 `json:"failed"`
	Completed int64 `json:"completed"`
}

// Queue is the Redis-backed job queue.
type Queue struct {
	rdb  redis.UniversalClient
	opts Options
	now  func() time.Time
}

// New creates a Queue over an existing Redis client.
func New(rdb redis.UniversalClient, opts Options) *Queue {
	return &Queue{rdb: rdb, opts: opts.withDefaults(), now: time.Now}
}

// Lease returns the lease a claimed job holds before it can be reaped.
func (q *Queue) Lease() time.Duration { return q.opts.Lease }

func (q *Queue) key(name string) string { return q.opts.Prefix + ":" + name }
func (q *Queue) jobPrefix() string      { return q.key("job:") }
func (q *Queue) jobKey(id string) string {
	return q.jobPrefix() + id
}

// EnqueueOption customises a single Enqueue call.
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	id          string
	runAt       time.Time
	maxAttempts int
}

// WithJobID sets a deterministic job id. Enqueueing an id that still exists is a no-op.
func WithJobID(id string) EnqueueOption {
	return func(o *enqueueOptions) { o.id = id }
}

// WithRunAt schedules the job as delayed until t.
func WithRunAt(t time.Time) EnqueueOption {
	return func(o *enqueueOptions) { o.runAt = t }
}

// WithMaxAttempts overrides the queue-wide attempt limit for one job.
func WithMaxAttempts(n int) EnqueueOption {
	return func(o *enqueueOptions) { o.maxAttempts = n }
}

// Enqueue adds a job for payload.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - payload: typed job payload; its Kind tags the job.
//   - opts: optional id, delay and attempt overrides.
// Returns:
//   - string: the job id.
//   - bool: false if a job with that id already existed and nothing was added.
//   - error: non-nil on encoding or Redis failure.
func (q *Queue) Enqueue(ctx context.Context, payload domain.JobPayload, opts ...EnqueueOption) (string, bool, error) {
	o := enqueueOptions{maxAttempts: q.opts.MaxAttempts}
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = uuid.New().String()
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", false, fmt.Errorf("encode %s payload: %w", payload.Kind(), err)
	}

	now := q.now()
	runAt := now
	delayed := "0"
	if o.runAt.After(now) {
		runAt = o.runAt
		delayed = "1"
	}

	added, err := enqueueScript.Run(ctx, q.rdb,
		[]string{q.jobKey(o.id), q.key("waiting"), q.key("delayed")},
		o.id, string(payload.Kind()), string(raw), o.maxAttempts, now.UnixMilli(), runAt.UnixMilli(), delayed,
	).Int()
	if err != nil {
		return "", false, fmt.Errorf("enqueue %s job: %w", payload.Kind(), err)
	}
	return o.id, added == 1, nil
}

// Claim leases the oldest waiting job. It returns nil, nil when nothing is waiting.
func (q *Queue) Claim(ctx context.Context) (*Job, error) {
	deadline := q.now().Add(q.opts.Lease).UnixMilli()
	id, err := claimScript.Run(ctx, q.rdb,
		[]string{q.key("waiting"), q.key("active")},
		deadline, q.jobPrefix(),
	).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return q.Get(ctx, id)
}

// Renew pushes the lease deadline of an active job out by one lease period.
func (q *Queue) Renew(ctx context.Context, id string) error {
	deadline := q.now().Add(q.opts.Lease).UnixMilli()
	ok, err := renewScript.Run(ctx, q.rdb, []string{q.key("active")}, id, deadline).Int()
	if err != nil {
		return fmt.Errorf("renew lease %s: %w", id, err)
	}
	if ok == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Complete marks an active job completed.
func (q *Queue) Complete(ctx context.Context, id string) error {
	ok, err := completeScript.Run(ctx, q.rdb,
		[]string{q.jobKey(id), q.key("active"), q.key("completed")},
		id, q.opts.KeepCompleted, q.jobPrefix(), q.now().UnixMilli(),
	).Int()
	if err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	if ok == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Fail records a failed attempt. The job is rescheduled with exponential
// backoff while it has attempts left, and moved to the failed list otherwise.
// It reports whether the job will run again.
func (q *Queue) Fail(ctx context.Context, job *Job, reason string) (bool, error) {
	now := q.now()
	due := now.Add(q.backoff(job.Attempts))
	res, err := failScript.Run(ctx, q.rdb,
		[]string{q.jobKey(job.ID), q.key("active"), q.key("delayed"), q.key("failed")},
		job.ID, reason, now.UnixMilli(), due.UnixMilli(), q.opts.KeepFailed, q.jobPrefix(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("fail job %s: %w", job.ID, err)
	}
	if res < 0 {
		return false, ErrLeaseLost
	}
	return res == 1, nil
}

func (q *Queue) backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	exp := math.Min(float64(attempts-1), 16)
	return time.Duration(float64(q.opts.Backoff) * math.Pow(2, exp))
}

// Delay moves an active job to delayed until the given time without
// consuming an attempt.
func (q *Queue) Delay(ctx context.Context, id string, until time.Time, reason string) error {
	ok, err := delayScript.Run(ctx, q.rdb,
		[]string{q.jobKey(id), q.key("active"), q.key("delayed")},
		id, until.UnixMilli(), reason,
	).Int()
	if err != nil {
		return fmt.Errorf("delay job %s: %w", id, err)
	}
	if ok == 0 {
		return ErrLeaseLost
	}
	return nil
}

// PromoteDue moves delayed jobs whose time has come back to waiting.
func (q *Queue) PromoteDue(ctx context.Context) (int, error) {
	n, err := promoteScript.Run(ctx, q.rdb,
		[]string{q.key("delayed"), q.key("waiting")},
		q.now().UnixMilli(), q.jobPrefix(), promoteBatch,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("promote delayed jobs: %w", err)
	}
	return n, nil
}

// ReapResult counts what one reap pass did with expired leases.
type ReapResult struct {
	Requeued int
	Failed   int
}

// ReapExpired handles active jobs whose lease ran out. This is how work held
// by a crashed worker is picked up again. A job that has already used
// max_attempts claims is failed with "lease expired" instead of requeued.
func (q *Queue) ReapExpired(ctx context.Context) (ReapResult, error) {
	res, err := reapScript.Run(ctx, q.rdb,
		[]string{q.key("active"), q.key("waiting"), q.key("failed")},
		q.now().UnixMilli(), q.jobPrefix(), promoteBatch, q.opts.KeepFailed,
	).Int64Slice()
	if err != nil {
		return ReapResult{}, fmt.Errorf("reap expired leases: %w", err)
	}
	if len(res) != 2 {
		return ReapResult{}, fmt.Errorf("reap expired leases: unexpected reply %v", res)
	}
	return ReapResult{Requeued: int(res[0]), Failed: int(res[1])}, nil
}

// Get loads a job by id.
func (q *Queue) Get(ctx context.Context, id string) (*Job, error) {
	fields, err := q.rdb.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, ErrJobNotFound
	}
	return parseJob(id, fields)
}

// Stats counts jobs in each state.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	pipe := q.rdb.Pipeline()
	waiting := pipe.LLen(ctx, q.key("waiting"))
	active := pipe.ZCard(ctx, q.key("active"))
	delayed := pipe.ZCard(ctx, q.key("delayed"))
	failed := pipe.LLen(ctx, q.key("failed"))
	completed := pipe.LLen(ctx, q.key("completed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return Stats{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Delayed:   delayed.Val(),
		Failed:    failed.Val(),
		Completed: completed.Val(),
	}, nil
}

func parseJob(id string, f map[string]string) (*Job, error) {
	attempts, err := strconv.Atoi(f["attempts"])
	if err != nil {
		return nil, fmt.Errorf("job %s: bad attempts %q", id, f["attempts"])
	}
	maxAttempts, err := strconv.Atoi(f["max_attempts"])
	if err != nil {
		return nil, fmt.Errorf("job %s: bad max_attempts %q", id, f["max_attempts"])
	}
	return &Job{
		ID:          id,
		Kind:        domain.JobKind(f["kind"]),
		Payload:     json.RawMessage(f["payload"]),
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
		State:       domain.JobState(f["state"]),
		LastError:   f["last_error"],
		CreatedAt:   parseMillis(f["created_at"]),
		RunAt:       parseMillis(f["run_at"]),
	}, nil
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
