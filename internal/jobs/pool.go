package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/JonMunkholm/catalogsync/internal/logging"
)

// Queue is the durable job store the pool consumes.
type Queue interface {
	// Enqueue stores a queued job and returns its id. When the payload has a
	// dedupe key and a job with that key is still pending, the pending job's
	// id is returned instead.
	Enqueue(ctx context.Context, p Payload) (string, error)

	// Claim moves the oldest ready job to validating on behalf of workerID.
	// It returns ErrEmpty when nothing is ready.
	Claim(ctx context.Context, workerID string) (*Job, error)

	// Transition moves a job from one status to another. detail is stored
	// as the summary of a committed job or the error of a failed one. It
	// returns ErrLeaseLost when the job is not in the from status.
	Transition(ctx context.Context, id string, from, to Status, detail string) error

	Get(ctx context.Context, id string) (*Job, error)
}

// Advance moves the running job to a later status. Handlers call it with
// StatusMerging once their inputs are validated.
type Advance func(ctx context.Context, to Status) error

// Handler runs one claimed job. The returned summary is stored on the job
// when it commits.
type Handler interface {
	Handle(ctx context.Context, job *Job, advance Advance) (summary string, err error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *Job, advance Advance) (string, error)

func (f HandlerFunc) Handle(ctx context.Context, job *Job, advance Advance) (string, error) {
	return f(ctx, job, advance)
}

// PoolConfig tunes a Pool. Zero values fall back to the defaults below.
type PoolConfig struct {
	Concurrency  int
	PollInterval time.Duration
	JobTimeout   time.Duration
	WorkerPrefix string

	// OnFailure is called after a job has been marked failed.
	OnFailure func(ctx context.Context, job *Job, err error)

	// DescribeError renders the failure stored on the job. Defaults to
	// err.Error().
	DescribeError func(err error) string
}

const (
	DefaultConcurrency  = 4
	DefaultPollInterval = time.Second
	DefaultJobTimeout   = 15 * time.Minute
)

// Pool runs jobs from a Queue on a fixed number of goroutines.
type Pool struct {
	queue   Queue
	handler Handler
	cfg     PoolConfig
}

func NewPool(queue Queue, handler Handler, cfg PoolConfig) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	if cfg.WorkerPrefix == "" {
		cfg.WorkerPrefix = "worker"
	}
	if cfg.DescribeError == nil {
		cfg.DescribeError = func(err error) string { return err.Error() }
	}
	return &Pool{queue: queue, handler: handler, cfg: cfg}
}

// Run starts the workers and blocks until ctx is cancelled and every
// in-flight job has finished. Jobs are never interrupted once claimed.
func (p *Pool) Run(ctx context.Context) {
	slog.Info("worker pool started",
		"concurrency", p.cfg.Concurrency,
		"poll_interval", p.cfg.PollInterval,
	)

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Concurrency; i++ {
		workerID := fmt.Sprintf("%s-%d", p.cfg.WorkerPrefix, i+1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.loop(ctx, workerID)
		}()
	}
	wg.Wait()

	slog.Info("worker pool stopped")
}

func (p *Pool) loop(ctx context.Context, workerID string) {
	for {
		if ctx.Err() != nil {
			return
		}

		ran, err := p.RunOnce(ctx, workerID)
		if err != nil {
			slog.Error("claim failed", "worker_id", workerID, "error", err)
		}
		if ran {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

// RunOnce claims and runs at most one job. It reports whether a job ran.
func (p *Pool) RunOnce(ctx context.Context, workerID string) (bool, error) {
	job, err := p.queue.Claim(ctx, workerID)
	if errors.Is(err, ErrEmpty) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	p.process(ctx, job)
	return true, nil
}

func (p *Pool) process(ctx context.Context, job *Job) {
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.JobTimeout)
	defer cancel()

	jobCtx, logger := logging.ForJob(jobCtx, job.ID, string(job.Payload.JobType), job.Payload.RestaurantID)
	logger.Info("job started", "attempt", job.Attempts, "worker_id", job.WorkerID)
	start := time.Now()

	current := job.Status
	advance := func(ctx context.Context, to Status) error {
		if !ValidTransition(current, to) {
			return fmt.Errorf("job %s cannot move from %s to %s", job.ID, current, to)
		}
		if err := p.queue.Transition(ctx, job.ID, current, to, ""); err != nil {
			return err
		}
		current = to
		job.Status = to
		return nil
	}

	summary, err := p.handle(jobCtx, job, advance)
	if err == nil && current == StatusValidating {
		err = advance(jobCtx, StatusMerging)
	}

	if errors.Is(err, ErrLeaseLost) {
		logger.Warn("job lease lost, leaving it to its new owner", "error", err)
		return
	}

	if err != nil {
		detail := p.cfg.DescribeError(err)
		if terr := p.queue.Transition(jobCtx, job.ID, current, StatusFailed, detail); terr != nil {
			logger.Error("failed to mark job failed", "error", terr)
		}
		job.Status = StatusFailed
		job.LastError = detail
		logger.Error("job failed",
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		if p.cfg.OnFailure != nil {
			p.cfg.OnFailure(jobCtx, job, err)
		}
		return
	}

	if terr := p.queue.Transition(jobCtx, job.ID, current, StatusCommitted, summary); terr != nil {
		logger.Error("failed to mark job committed", "error", terr)
		return
	}
	job.Status = StatusCommitted
	job.Summary = summary
	logger.Info("job committed", "duration_ms", time.Since(start).Milliseconds())
}

// handle runs the handler, turning a panic into an error so the worker
// survives and the job is marked failed.
func (p *Pool) handle(ctx context.Context, job *Job, advance Advance) (summary string, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.FromContext(ctx).Error("panic in job handler", "panic", r)
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	return p.handler.Handle(ctx, job, advance)
}
