package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/timmy/linkweaver/internal/domain"
	"github.com/timmy/linkweaver/internal/logger"
)

// Handlers runs jobs, one method per job kind.
// Returning a *DelayError reschedules the job; any other error fails it.
type Handlers interface {
	HandlePlacement(ctx context.Context, job *Job, p domain.PlacementPayload) error
	HandleContent(ctx context.Context, job *Job, p domain.ContentPayload) error
}

// PoolConfig sizes the worker pool.
type PoolConfig struct {
	Concurrency     int
	PollInterval    time.Duration
	PromoteInterval time.Duration
}

// Pool runs queued jobs on a fixed number of workers.
type Pool struct {
	queue    *Queue
	handlers Handlers
	cfg      PoolConfig
	metrics  *Metrics
}

// NewPool creates a pool. metrics may be nil.
func NewPool(q *Queue, h Handlers, cfg PoolConfig, metrics *Metrics) *Pool {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.PromoteInterval <= 0 {
		cfg.PromoteInterval = 5 * time.Second
	}
	return &Pool{queue: q, handlers: h, cfg: cfg, metrics: metrics}
}

// Run starts the workers and the maintenance loop and blocks until ctx is done.
// Jobs already running when ctx is cancelled are finished first.
func (p *Pool) Run(ctx context.Context) error {
	ctx = logger.SetComponent(ctx, "worker_pool")
	logger.CtxInfo(ctx, "Starting worker pool: concurrency=%d", p.cfg.Concurrency)

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p.worker(ctx, workerID)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.maintain(ctx)
	}()

	wg.Wait()
	logger.CtxInfo(ctx, "Worker pool stopped")
	return nil
}

func (p *Pool) worker(ctx context.Context, workerID int) {
	ctx = logger.WithField(ctx, "worker", workerID)
	for {
		if ctx.Err() != nil {
			return
		}
		processed, err := p.ProcessNext(ctx)
		if err != nil {
			logger.CtxError(ctx, "Worker loop error: %v", err)
		}
		if processed {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

// maintain promotes due delayed jobs, reaps expired leases and samples depth.
func (p *Pool) maintain(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PromoteInterval)
	defer ticker.Stop()
	for {
		p.Maintain(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Maintain runs one promote, reap and depth-sampling pass.
func (p *Pool) Maintain(ctx context.Context) {
	if n, err := p.queue.PromoteDue(ctx); err != nil {
		logger.CtxWarn(ctx, "Promote delayed jobs failed: %v", err)
	} else if n > 0 {
		logger.With(nil).WithCount(n).Debug(ctx, "Promoted delayed jobs")
	}
	if r, err := p.queue.ReapExpired(ctx); err != nil {
		logger.CtxWarn(ctx, "Reap expired leases failed: %v", err)
	} else {
		if r.Requeued > 0 {
			logger.With(nil).WithCount(r.Requeued).Warn(ctx, "Returned jobs with expired leases to waiting")
		}
		if r.Failed > 0 {
			logger.With(nil).WithCount(r.Failed).Error(ctx, "Failed jobs whose lease expired on their last attempt")
		}
	}
	if stats, err := p.queue.Stats(ctx); err == nil {
		p.metrics.observeStats(stats)
	}
}

// ProcessNext claims and runs one job. It reports whether a job was claimed.
func (p *Pool) ProcessNext(ctx context.Context) (bool, error) {
	job, err := p.queue.Claim(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	// A claimed job runs to completion even if the pool is shutting down.
	p.process(context.WithoutCancel(ctx), job)
	return true, nil
}

func (p *Pool) process(ctx context.Context, job *Job) {
	ctx = logger.SetJobID(ctx, job.ID)
	ctx = logger.SetJobKind(ctx, string(job.Kind))
	if p.metrics != nil {
		p.metrics.BusyWorkers.Inc()
		defer p.metrics.BusyWorkers.Dec()
	}

	stopRenew := p.keepLease(ctx, job.ID)
	start := time.Now()
	err := p.dispatch(ctx, job)
	stopRenew()
	elapsed := time.Since(start)

	if p.metrics != nil {
		p.metrics.JobDuration.WithLabelValues(string(job.Kind)).Observe(elapsed.Seconds())
	}
	outcome := p.settle(ctx, job, err)
	if p.metrics != nil {
		p.metrics.JobsProcessed.WithLabelValues(string(job.Kind), outcome).Inc()
	}

	logger.With(nil).
		WithDuration(elapsed.Milliseconds()).
		WithStatus(outcome).
		WithAttempt(job.Attempts).
		Info(ctx, "Job finished")
}

// dispatch decodes the payload and hands it to the handler for its kind.
// Panics are turned into errors so one bad job cannot take the worker down.
func (p *Pool) dispatch(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.CtxError(ctx, "Job handler panicked: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	payload, err := job.Decode()
	if err != nil {
		return err
	}
	switch pl := payload.(type) {
	case domain.PlacementPayload:
		return p.handlers.HandlePlacement(ctx, job, pl)
	case domain.ContentPayload:
		return p.handlers.HandleContent(ctx, job, pl)
	default:
		return fmt.Errorf("no handler for job kind %q", payload.Kind())
	}
}

// settle moves the job to its next state and returns the outcome label.
func (p *Pool) settle(ctx context.Context, job *Job, err error) string {
	var delay *DelayError
	switch {
	case err == nil:
		if cerr := p.queue.Complete(ctx, job.ID); cerr != nil {
			return p.settleError(ctx, cerr)
		}
		return OutcomeCompleted

	case errors.As(err, &delay):
		logger.CtxInfo(ctx, "Job delayed until %s: %s", delay.Until.UTC().Format(time.RFC3339), delay.Reason)
		if derr := p.queue.Delay(ctx, job.ID, delay.Until, delay.Reason); derr != nil {
			return p.settleError(ctx, derr)
		}
		return OutcomeDelayed

	default:
		logger.FromContext(ctx).WithError(err).Errorf("Job attempt %d/%d failed", job.Attempts, job.MaxAttempts)
		retried, ferr := p.queue.Fail(ctx, job, err.Error())
		if ferr != nil {
			return p.settleError(ctx, ferr)
		}
		if retried {
			return OutcomeRetried
		}
		return OutcomeFailed
	}
}

func (p *Pool) settleError(ctx context.Context, err error) string {
	if errors.Is(err, ErrLeaseLost) {
		logger.CtxWarn(ctx, "Job lease was lost before it could be settled")
		return OutcomeLeaseLost
	}
	logger.CtxError(ctx, "Failed to settle job: %v", err)
	return OutcomeFailed
}

// keepLease renews the job's lease at a third of the lease period until stopped.
func (p *Pool) keepLease(ctx context.Context, id string) (stop func()) {
	interval := p.queue.Lease() / 3
	if interval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := p.queue.Renew(ctx, id); err != nil {
					logger.CtxWarn(ctx, "Lease renewal failed: %v", err)
					if errors.Is(err, ErrLeaseLost) {
						return
					}
				}
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}
