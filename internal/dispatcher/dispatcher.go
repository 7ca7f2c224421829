package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"

	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
	"github.com/onronder/ContentLabTech-sub011/internal/processor"
	"github.com/onronder/ContentLabTech-sub011/internal/queue"
	"github.com/onronder/ContentLabTech-sub011/pkg/log"
	"github.com/onronder/ContentLabTech-sub011/pkg/metrics"
)

// JobQueue is the part of the queue used by the workers.
type JobQueue interface {
	Next(ctx context.Context, workerID string) (*analysis.Job, error)
	Track(id uuid.UUID, cancel context.CancelFunc) error
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int, message string) error
	Complete(ctx context.Context, id uuid.UUID, result *analysis.JobResult) (*analysis.Job, error)
	Fail(ctx context.Context, id uuid.UUID, f queue.Failure) (*analysis.Job, error)
	Release(ctx context.Context, id uuid.UUID) (*analysis.Job, error)
	Deadline(j *analysis.Job) (time.Duration, error)
	ReapOrphans(ctx context.Context) int
	Prune() int
	Capacity() int
}

type Processors interface {
	Get(t analysis.JobType) (processor.Processor, error)
}

// ResultWriter receives the data of every completed job.
type ResultWriter interface {
	Put(ctx context.Context, job *analysis.Job, data any) (analysis.ResultEntry, error)
}

type Option func(d *Dispatcher)

// WithReaperInterval sets how often orphaned jobs are reaped. A non-positive interval keeps
// the default.
func WithReaperInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.reaperInterval = interval
		}
	}
}

// Dispatcher runs a fixed pool of workers. Each worker claims a job, runs its processor under
// a deadline and reports the outcome to the queue. No queue lock is held while a processor runs.
type Dispatcher struct {
	queue          JobQueue
	processors     Processors
	results        ResultWriter
	workers        int
	reaperInterval time.Duration

	mu           sync.Mutex
	wg           sync.WaitGroup
	stopClaiming context.CancelFunc
	jobsCtx      context.Context
	abortJobs    context.CancelFunc
	log          *zap.SugaredLogger
}

// New sizes the pool with the queue capacity.
func New(q JobQueue, processors Processors, results ResultWriter, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:          q,
		processors:     processors,
		results:        results,
		workers:        max(q.Capacity(), 1),
		reaperInterval: time.Minute,
		log:            zap.S().Named("dispatcher"),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Start launches the workers and the reaper. Cancelling ctx stops claiming but lets running jobs
// finish; use Stop to wait for them.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopClaiming != nil {
		return
	}

	var loopCtx context.Context
	loopCtx, d.stopClaiming = context.WithCancel(ctx)
	d.jobsCtx, d.abortJobs = context.WithCancel(context.WithoutCancel(ctx))

	for i := 0; i < d.workers; i++ {
		workerID := fmt.Sprintf("worker-%d", i)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.work(loopCtx, workerID)
		}()
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.reap(loopCtx)
	}()
	d.log.Infof("dispatcher started with %d workers", d.workers)
}

// Stop stops claiming and waits for running jobs. When ctx ends first the running processors are
// cancelled and their jobs go back to pending without using retry budget.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	stop, abort := d.stopClaiming, d.abortJobs
	d.mu.Unlock()
	if stop == nil {
		return nil
	}
	stop()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		abort()
		d.log.Info("dispatcher stopped")
		return nil
	case <-ctx.Done():
		abort()
		<-done
		d.log.Warn("dispatcher stopped before running jobs finished")
		return ctx.Err()
	}
}

func (d *Dispatcher) work(ctx context.Context, workerID string) {
	for {
		job, err := d.queue.Next(ctx, workerID)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, queue.ErrQueueClosed) {
				d.log.Errorw("worker stopped", "worker_id", workerID, "error", err)
			}
			return
		}
		d.run(job, workerID)
	}
}

// run drives one claimed job to its outcome.
func (d *Dispatcher) run(job *analysis.Job, workerID string) {
	started := time.Now()
	tracer := log.NewDebugLogger("dispatcher").
		WithContext(d.jobsCtx).
		Operation("process_job").
		WithUUID("job_id", job.ID).
		WithString("type", string(job.Type)).
		WithString("worker_id", workerID).
		WithInt("retry_count", job.RetryCount).
		Build()
	// outcomes are reported even when the job context is gone
	reportCtx := context.WithoutCancel(d.jobsCtx)

	p, err := d.processors.Get(job.Type)
	if err != nil {
		tracer.Error(err).Log()
		d.fail(reportCtx, job, queue.Failure{Message: err.Error()}, metrics.OutcomeFailed, started)
		return
	}
	timeout, err := d.queue.Deadline(job)
	if err != nil {
		tracer.Error(err).Log()
		d.fail(reportCtx, job, queue.Failure{Message: err.Error()}, metrics.OutcomeFailed, started)
		return
	}

	ctx, cancel := context.WithTimeout(d.jobsCtx, timeout)
	defer cancel()
	if err := d.queue.Track(job.ID, cancel); err != nil {
		// cancelled between claim and start
		tracer.Step("dropped").WithParam("reason", err.Error()).Log()
		return
	}
	if err := p.Validate(job.Data); err != nil {
		tracer.Error(err).Log()
		d.fail(reportCtx, job, queue.Failure{Message: err.Error()}, metrics.OutcomeFailed, started)
		return
	}
	tracer.Step("processing").WithParam("timeout", timeout.String()).Log()

	result, err := d.invoke(ctx, p, job)
	var panicked *panicError
	switch {
	case d.jobsCtx.Err() != nil:
		if _, err := d.queue.Release(reportCtx, job.ID); err != nil {
			tracer.Error(err).Log()
		}
		metrics.ObserveJobRun(string(job.Type), metrics.OutcomeReleased, time.Since(started))
		tracer.Step("released").Log()
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		msg := fmt.Sprintf("processing timed out after %s", timeout)
		tracer.Error(errors.New(msg)).Log()
		d.fail(reportCtx, job, queue.Failure{Message: msg}, metrics.OutcomeTimeout, started)
	case errors.Is(ctx.Err(), context.Canceled):
		metrics.ObserveJobRun(string(job.Type), metrics.OutcomeCancelled, time.Since(started))
		tracer.Step("cancelled").Log()
	case errors.As(err, &panicked):
		tracer.Error(err).Log()
		d.fail(reportCtx, job, queue.Failure{Message: err.Error()}, metrics.OutcomePanic, started)
	case err != nil:
		tracer.Error(err).Log()
		d.fail(reportCtx, job, queue.Failure{Message: err.Error()}, metrics.OutcomeFailed, started)
	case !result.Success:
		tracer.Step("failed").WithString("error", result.Error).WithBool("retryable", result.Retryable).Log()
		outcome := metrics.OutcomeFailed
		if result.Retryable {
			outcome = metrics.OutcomeRetrying
		}
		d.fail(reportCtx, job, queue.Failure{Message: result.Error, Retryable: result.Retryable, NotBefore: result.RetryAfter}, outcome, started)
	default:
		d.complete(reportCtx, job, result, started)
		tracer.Success().WithParam("duration", time.Since(started).String()).Log()
	}
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("processor panicked: %v", e.value)
}

// invoke runs the processor in its own goroutine so a processor ignoring its context cannot
// hold the worker past the deadline.
func (d *Dispatcher) invoke(ctx context.Context, p processor.Processor, job *analysis.Job) (*analysis.JobResult, error) {
	type outcome struct {
		result *analysis.JobResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: &panicError{value: r}}
			}
		}()
		result, err := p.Process(ctx, job, d.progress(ctx, job.ID))
		if err == nil && result == nil {
			err = errors.New("processor returned no result")
		}
		done <- outcome{result: result, err: err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Dispatcher) progress(ctx context.Context, id uuid.UUID) processor.ProgressFunc {
	return func(progress int, message string) {
		if ctx.Err() != nil {
			return
		}
		if err := d.queue.UpdateProgress(ctx, id, progress, message); err != nil {
			d.log.Debugw("progress update rejected", "job_id", id, "error", err)
		}
	}
}

func (d *Dispatcher) complete(ctx context.Context, job *analysis.Job, result *analysis.JobResult, started time.Time) {
	done, err := d.queue.Complete(ctx, job.ID, result)
	if err != nil {
		// cancelled while the processor was finishing
		d.log.Infow("discarding result", "job_id", job.ID, "error", err)
		return
	}
	metrics.ObserveJobRun(string(job.Type), metrics.OutcomeCompleted, time.Since(started))
	if _, err := d.results.Put(ctx, done, result.Data); err != nil {
		d.log.Errorw("failed to store result", "job_id", job.ID, "project_id", done.Data.ProjectID, "error", err)
	}
}

func (d *Dispatcher) fail(ctx context.Context, job *analysis.Job, f queue.Failure, outcome string, started time.Time) {
	failed, err := d.queue.Fail(ctx, job.ID, f)
	if err != nil {
		d.log.Infow("discarding failure", "job_id", job.ID, "error", err)
		return
	}
	if outcome == metrics.OutcomeRetrying && failed.Status == analysis.StatusFailed {
		outcome = metrics.OutcomeFailed
	}
	metrics.ObserveJobRun(string(job.Type), outcome, time.Since(started))
}

// reap periodically releases orphaned jobs and prunes old history.
func (d *Dispatcher) reap(ctx context.Context) {
	ticker := jitterbug.New(d.reaperInterval, &jitterbug.Norm{Stdev: d.reaperInterval / 10, Mean: 0})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			released := d.queue.ReapOrphans(ctx)
			pruned := d.queue.Prune()
			if released > 0 || pruned > 0 {
				d.log.Infow("reaper pass", "released", released, "pruned", pruned)
			}
		}
	}
}
