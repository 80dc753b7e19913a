// Package worker runs per-item pipeline work on a fixed-size goroutine pool.
// Stages hand the pool a batch of jobs and wait for the whole batch; the
// pool bounds concurrency across callers and survives job panics.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/newsdocket/docket/pkg/config"
)

// ErrStopped is returned for jobs that could not be handed to a worker
// because the pool was stopped.
var ErrStopped = errors.New("worker pool stopped")

// Job is one unit of work. Name appears in logs only.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

type envelope struct {
	ctx  context.Context
	job  Job
	done func(error)
}

// Pool is a fixed-size worker pool. Jobs are handed off unbuffered, so every
// job accepted by Do is guaranteed to run even across a concurrent Stop.
type Pool struct {
	cfg    *config.PoolConfig
	logger *slog.Logger

	jobs     chan envelope
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu      sync.Mutex
	started bool
}

// NewPool creates a pool; call Start before submitting work.
func NewPool(cfg *config.PoolConfig, logger *slog.Logger) *Pool {
	return &Pool{
		cfg:    cfg,
		logger: logger.With("component", "worker"),
		jobs:   make(chan envelope),
		stopCh: make(chan struct{}),
	}
}

// Start spawns the worker goroutines. Duplicate calls are no-ops.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		p.logger.Warn("worker pool already started")
		return
	}
	p.started = true

	p.logger.Info("starting worker pool", "worker_count", p.cfg.WorkerCount)
	for i := 0; i < p.cfg.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case env := <-p.jobs:
			env.done(p.run(env.ctx, env.job, id))
		}
	}
}

// run executes one job, converting panics into errors.
func (p *Pool) run(ctx context.Context, job Job, workerID int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
			p.logger.Error("job panicked", "job", job.Name, "worker", workerID, "panic", r)
		}
	}()
	if err := job.Run(ctx); err != nil {
		p.logger.Warn("job failed", "job", job.Name, "worker", workerID, "error", err)
		return err
	}
	return nil
}

// Do submits a batch of jobs and waits for all of them to finish. The
// returned error joins every job failure; jobs that never reached a worker
// fail with ErrStopped or the context error.
func (p *Pool) Do(ctx context.Context, jobs []Job) error {
	if len(jobs) == 0 {
		return nil
	}
	var wg sync.WaitGroup
	errs := make([]error, len(jobs))

	for i, job := range jobs {
		wg.Add(1)
		env := envelope{ctx: ctx, job: job, done: func(err error) {
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", job.Name, err)
			}
			wg.Done()
		}}
		select {
		case p.jobs <- env:
		case <-p.stopCh:
			errs[i] = fmt.Errorf("%s: %w", job.Name, ErrStopped)
			wg.Done()
		case <-ctx.Done():
			errs[i] = fmt.Errorf("%s: %w", job.Name, ctx.Err())
			wg.Done()
		}
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Stop signals workers to exit after their current job and waits up to the
// configured graceful shutdown timeout.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.logger.Info("worker pool stopped")
	case <-time.After(p.cfg.GracefulShutdownTimeout):
		p.logger.Warn("worker pool shutdown timed out",
			"timeout", p.cfg.GracefulShutdownTimeout)
	}
}
