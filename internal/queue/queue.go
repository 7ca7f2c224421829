package queue

import (
	"container/heap"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
	"github.com/onronder/ContentLabTech-sub011/internal/store"
	"github.com/onronder/ContentLabTech-sub011/internal/store/model"
)

// Processors validates and estimates jobs. It is satisfied by the processor registry.
type Processors interface {
	Validate(t analysis.JobType, data analysis.JobData) error
	Estimate(t analysis.JobType, data analysis.JobData) (time.Duration, error)
}

type Event string

const (
	EventEnqueued  Event = "enqueued"
	EventStarted   Event = "started"
	EventCompleted Event = "completed"
	EventRetrying  Event = "retrying"
	EventFailed    Event = "failed"
	EventCancelled Event = "cancelled"
	EventReleased  Event = "released"
	EventRecovered Event = "recovered"
)

// Transition describes one job status change. Job is a copy taken right after the change.
type Transition struct {
	Event Event
	From  analysis.Status
	Job   *analysis.Job
}

type Hook func(Transition)

// Failure is the outcome of an unsuccessful run.
type Failure struct {
	Message   string
	Retryable bool
	// NotBefore is an earliest retry time suggested by the processor. The backoff delay wins
	// when it ends later.
	NotBefore *time.Time
}

type entry struct {
	job      *analysis.Job
	data     []byte
	result   []byte
	seq      uint64
	revision int64
	cancel   context.CancelFunc
	// set on processing jobs loaded by Recover that no worker owns
	orphanDeadline *time.Time
}

// change is a snapshot taken under the lock and published after it is released.
type change struct {
	record     model.ProcessingJob
	transition Transition
}

// Queue holds every job of the process. Pending jobs are claimed in priority order, FIFO within
// a priority. All state changes go through the queue methods and are written through to the
// record store when one is configured.
//
// Ordering is strict: there is no fairness between projects, so a steady stream of critical jobs
// from one project starves lower priorities of every other project.
type Queue struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]*entry
	ready   readyHeap
	delayed delayedHeap
	seq     uint64
	wake    chan struct{}
	closed  bool

	processors        Processors
	capacity          int
	maxRetries        int
	timeoutMultiplier int
	backoffBase       time.Duration
	backoffCap        time.Duration
	retention         time.Duration
	recorder          store.Job
	hooks             []Hook
	now               func() time.Time
	log               *zap.SugaredLogger
}

func New(processors Processors, opts ...Option) *Queue {
	q := &Queue{
		jobs:              make(map[uuid.UUID]*entry),
		wake:              make(chan struct{}),
		processors:        processors,
		capacity:          1,
		maxRetries:        3,
		timeoutMultiplier: 3,
		backoffBase:       30 * time.Second,
		backoffCap:        10 * time.Minute,
		retention:         24 * time.Hour,
		now:               time.Now,
		log:               zap.S().Named("queue"),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Enqueue validates the payload and adds a pending job. Invalid payloads are rejected with the
// validation error and no job is created. An empty priority means medium.
func (q *Queue) Enqueue(ctx context.Context, t analysis.JobType, data analysis.JobData, priority analysis.Priority) (*analysis.Job, error) {
	if err := q.processors.Validate(t, data); err != nil {
		return nil, err
	}
	if priority == "" {
		priority = analysis.PriorityMedium
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job data: %w", err)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrQueueClosed
	}
	e := &entry{
		job: &analysis.Job{
			ID:         uuid.New(),
			Type:       t,
			Status:     analysis.StatusPending,
			Priority:   priority,
			Data:       data,
			CreatedAt:  q.now().UTC(),
			MaxRetries: q.maxRetries,
		},
		data: raw,
	}
	q.jobs[e.job.ID] = e
	q.pushReady(e, q.nextSeq())
	c := q.changed(e, EventEnqueued, "")
	q.signal()
	q.mu.Unlock()

	q.publish(ctx, c)
	return c.transition.Job, nil
}

// Claim hands the next claimable job to workerID and marks it processing. It never blocks and
// returns false when nothing is claimable. A job is handed to exactly one caller.
func (q *Queue) Claim(ctx context.Context, workerID string) (*analysis.Job, bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, false
	}
	c, ok := q.claimLocked(workerID)
	q.mu.Unlock()

	if !ok {
		return nil, false
	}
	q.publish(ctx, c)
	return c.transition.Job, true
}

// Next blocks until a job can be claimed for workerID, the context ends or the queue is closed.
func (q *Queue) Next(ctx context.Context, workerID string) (*analysis.Job, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		c, ok := q.claimLocked(workerID)
		wake := q.wake
		wait := time.Duration(-1)
		if !ok && q.delayed.Len() > 0 {
			wait = max(q.delayed[0].at.Sub(q.now()), time.Millisecond)
		}
		q.mu.Unlock()

		if ok {
			q.publish(ctx, c)
			return c.transition.Job, nil
		}

		var timer *time.Timer
		var fire <-chan time.Time
		if wait > 0 {
			timer = time.NewTimer(wait)
			fire = timer.C
		}
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil, ctx.Err()
		case <-wake:
		case <-fire:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// Track registers the cancel function of a running job. Cancel calls it.
func (q *Queue) Track(id uuid.UUID, cancel context.CancelFunc) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, err := q.lookup(id, analysis.StatusProcessing)
	if err != nil {
		return err
	}
	e.cancel = cancel
	return nil
}

// UpdateProgress records intermediate progress of a processing job, clamped to [0,99].
func (q *Queue) UpdateProgress(ctx context.Context, id uuid.UUID, progress int, message string) error {
	q.mu.Lock()
	e, err := q.lookup(id, analysis.StatusProcessing)
	if err != nil {
		q.mu.Unlock()
		return err
	}
	progress = min(max(progress, 0), 99)
	if e.job.Progress == progress && e.job.ProgressMessage == message {
		q.mu.Unlock()
		return nil
	}
	e.job.Progress = progress
	e.job.ProgressMessage = message
	c := q.changed(e, "", analysis.StatusProcessing)
	q.mu.Unlock()

	q.publish(ctx, c)
	return nil
}

// Complete moves a processing job to completed and keeps the result data with the job record.
func (q *Queue) Complete(ctx context.Context, id uuid.UUID, result *analysis.JobResult) (*analysis.Job, error) {
	var raw []byte
	message := ""
	if result != nil {
		message = result.ProgressMessage
		if result.Data != nil {
			var err error
			if raw, err = json.Marshal(result.Data); err != nil {
				return nil, fmt.Errorf("failed to encode result of job %s: %w", id, err)
			}
		}
	}

	q.mu.Lock()
	e, err := q.lookup(id, analysis.StatusProcessing)
	if err != nil {
		q.mu.Unlock()
		return nil, err
	}
	now := q.now().UTC()
	e.job.Status = analysis.StatusCompleted
	e.job.Progress = 100
	e.job.ProgressMessage = message
	e.job.CompletedAt = &now
	e.job.Error = ""
	e.result = raw
	e.cancel = nil
	e.orphanDeadline = nil
	c := q.changed(e, EventCompleted, analysis.StatusProcessing)
	q.mu.Unlock()

	q.publish(ctx, c)
	return c.transition.Job, nil
}

// Fail records an unsuccessful run. A retryable failure is requeued with an incremented
// RetryCount as long as RetryCount is below MaxRetries; the budget is checked before any backoff
// is scheduled. Anything else is terminal.
func (q *Queue) Fail(ctx context.Context, id uuid.UUID, f Failure) (*analysis.Job, error) {
	q.mu.Lock()
	e, err := q.lookup(id, analysis.StatusProcessing)
	if err != nil {
		q.mu.Unlock()
		return nil, err
	}
	now := q.now().UTC()
	job := e.job
	job.Error = f.Message
	e.cancel = nil
	e.orphanDeadline = nil

	event := EventFailed
	if f.Retryable && job.RetryCount < job.MaxRetries {
		at := now.Add(q.backoff(job.RetryCount))
		if f.NotBefore != nil && f.NotBefore.After(at) {
			at = f.NotBefore.UTC()
		}
		job.RetryCount++
		job.Status = analysis.StatusPending
		job.RetryAfter = &at
		job.Progress = 0
		job.ProgressMessage = fmt.Sprintf("retry %d of %d scheduled", job.RetryCount, job.MaxRetries)
		job.StartedAt = nil
		job.WorkerID = ""
		q.pushDelayed(e, q.nextSeq(), at)
		q.signal()
		event = EventRetrying
	} else {
		job.Status = analysis.StatusFailed
		job.RetryAfter = nil
		job.CompletedAt = &now
	}
	c := q.changed(e, event, analysis.StatusProcessing)
	q.mu.Unlock()

	q.publish(ctx, c)
	return c.transition.Job, nil
}

// Cancel moves a pending or processing job to cancelled. A running processor has its context
// cancelled and its late outcome is rejected.
func (q *Queue) Cancel(ctx context.Context, id uuid.UUID) (*analysis.Job, error) {
	q.mu.Lock()
	e, err := q.lookup(id, analysis.StatusPending, analysis.StatusProcessing)
	if err != nil {
		q.mu.Unlock()
		return nil, err
	}
	from := e.job.Status
	now := q.now().UTC()
	e.job.Status = analysis.StatusCancelled
	e.job.CompletedAt = &now
	e.job.RetryAfter = nil
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.orphanDeadline = nil
	c := q.changed(e, EventCancelled, from)
	q.mu.Unlock()

	q.publish(ctx, c)
	return c.transition.Job, nil
}

// Release puts a processing job back to pending without using its retry budget. The job keeps
// its place in the FIFO order of its priority.
func (q *Queue) Release(ctx context.Context, id uuid.UUID) (*analysis.Job, error) {
	q.mu.Lock()
	e, err := q.lookup(id, analysis.StatusProcessing)
	if err != nil {
		q.mu.Unlock()
		return nil, err
	}
	q.resetLocked(e)
	c := q.changed(e, EventReleased, analysis.StatusProcessing)
	q.signal()
	q.mu.Unlock()

	q.publish(ctx, c)
	return c.transition.Job, nil
}

// ReapOrphans releases recovered processing jobs whose deadline has passed.
func (q *Queue) ReapOrphans(ctx context.Context) int {
	q.mu.Lock()
	now := q.now()
	var changes []change
	for _, e := range q.jobs {
		if e.orphanDeadline == nil || e.job.Status != analysis.StatusProcessing || now.Before(*e.orphanDeadline) {
			continue
		}
		q.resetLocked(e)
		changes = append(changes, q.changed(e, EventRecovered, analysis.StatusProcessing))
	}
	if len(changes) > 0 {
		q.signal()
	}
	q.mu.Unlock()

	q.publish(ctx, changes...)
	return len(changes)
}

// Prune drops terminal jobs that completed before the retention window from memory. The record
// store keeps them.
func (q *Queue) Prune() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-q.retention)
	pruned := 0
	for id, e := range q.jobs {
		if e.job.IsTerminal() && e.job.CompletedAt != nil && e.job.CompletedAt.Before(cutoff) {
			delete(q.jobs, id)
			pruned++
		}
	}
	return pruned
}

func (q *Queue) Get(id uuid.UUID) (*analysis.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, found := q.jobs[id]
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return e.job.Clone(), nil
}

// List returns the jobs of a project, newest first. An empty projectID lists every job and a
// limit of zero means no limit.
func (q *Queue) List(projectID string, limit int) []*analysis.Job {
	q.mu.Lock()
	entries := make([]*entry, 0, len(q.jobs))
	for _, e := range q.jobs {
		if projectID == "" || e.job.Data.ProjectID == projectID {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].job, entries[j].job
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	jobs := make([]*analysis.Job, 0, len(entries))
	for _, e := range entries {
		jobs = append(jobs, e.job.Clone())
	}
	q.mu.Unlock()
	return jobs
}

// Stats counts the jobs held by the queue.
func (q *Queue) Stats() analysis.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := analysis.QueueStats{Total: len(q.jobs), ProcessingCapacity: q.capacity}
	for _, e := range q.jobs {
		switch e.job.Status {
		case analysis.StatusPending:
			stats.Pending++
		case analysis.StatusProcessing:
			stats.Processing++
		case analysis.StatusCompleted:
			stats.Completed++
		case analysis.StatusFailed:
			stats.Failed++
		case analysis.StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

// Capacity is the number of jobs processed at the same time.
func (q *Queue) Capacity() int {
	return q.capacity
}

// Deadline is the hard limit for processing job j.
func (q *Queue) Deadline(j *analysis.Job) (time.Duration, error) {
	estimate, err := q.processors.Estimate(j.Type, j.Data)
	if err != nil {
		return 0, err
	}
	return estimate * time.Duration(q.timeoutMultiplier), nil
}

// Close wakes every waiter. Further claims and enqueues fail.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.signal()
}

func (q *Queue) claimLocked(workerID string) (change, bool) {
	now := q.now().UTC()
	q.promote(now)
	for q.ready.Len() > 0 {
		item := heap.Pop(&q.ready).(readyItem)
		e, found := q.jobs[item.id]
		if !found || e.job.Status != analysis.StatusPending || e.seq != item.seq {
			continue
		}
		e.job.Status = analysis.StatusProcessing
		e.job.StartedAt = &now
		e.job.WorkerID = workerID
		e.job.RetryAfter = nil
		e.job.Progress = 0
		e.job.ProgressMessage = ""
		return q.changed(e, EventStarted, analysis.StatusPending), true
	}
	return change{}, false
}

// promote moves delayed jobs whose backoff ended to the ready heap.
func (q *Queue) promote(now time.Time) {
	for q.delayed.Len() > 0 && !q.delayed[0].at.After(now) {
		item := heap.Pop(&q.delayed).(delayedItem)
		if e, found := q.jobs[item.id]; found && e.job.Status == analysis.StatusPending && e.seq == item.seq {
			heap.Push(&q.ready, item.readyItem)
		}
	}
}

func (q *Queue) resetLocked(e *entry) {
	e.job.Status = analysis.StatusPending
	e.job.StartedAt = nil
	e.job.WorkerID = ""
	e.job.Progress = 0
	e.job.ProgressMessage = ""
	e.cancel = nil
	e.orphanDeadline = nil
	q.pushReady(e, e.seq)
}

func (q *Queue) lookup(id uuid.UUID, allowed ...analysis.Status) (*entry, error) {
	e, found := q.jobs[id]
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	for _, s := range allowed {
		if e.job.Status == s {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, id, e.job.Status)
}

func (q *Queue) nextSeq() uint64 {
	q.seq++
	return q.seq
}

func (q *Queue) pushReady(e *entry, seq uint64) {
	e.seq = seq
	heap.Push(&q.ready, readyItem{id: e.job.ID, rank: e.job.Priority.Rank(), seq: seq})
}

func (q *Queue) pushDelayed(e *entry, seq uint64, at time.Time) {
	e.seq = seq
	heap.Push(&q.delayed, delayedItem{
		readyItem: readyItem{id: e.job.ID, rank: e.job.Priority.Rank(), seq: seq},
		at:        at,
	})
}

// signal wakes every goroutine blocked in Next.
func (q *Queue) signal() {
	close(q.wake)
	q.wake = make(chan struct{})
}

// backoff is min(base * 2^retryCount, cap).
func (q *Queue) backoff(retryCount int) time.Duration {
	b := retry.NewExponential(q.backoffBase)
	if q.backoffCap > 0 {
		b = retry.WithCappedDuration(q.backoffCap, b)
	}
	var d time.Duration
	for i := 0; i <= retryCount; i++ {
		d, _ = b.Next()
	}
	return d
}

func (q *Queue) changed(e *entry, event Event, from analysis.Status) change {
	e.revision++
	return change{
		record:     toRecord(e),
		transition: Transition{Event: event, From: from, Job: e.job.Clone()},
	}
}

func (q *Queue) publish(ctx context.Context, changes ...change) {
	ctx = context.WithoutCancel(ctx)
	for _, c := range changes {
		if q.recorder != nil {
			if _, err := q.recorder.Save(ctx, c.record); err != nil {
				q.log.Errorw("failed to record job", "job_id", c.record.JobID, "status", c.record.Status, "error", err)
			}
		}
		if c.transition.Event == "" {
			continue
		}
		for _, h := range q.hooks {
			h(c.transition)
		}
	}
}
