package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
	"github.com/onronder/ContentLabTech-sub011/internal/store"
	"github.com/onronder/ContentLabTech-sub011/internal/store/model"
	"github.com/onronder/ContentLabTech-sub011/pkg/log"
)

func toRecord(e *entry) model.ProcessingJob {
	j := e.job.Clone()
	rec := model.ProcessingJob{
		JobID:           j.ID,
		ProjectID:       j.Data.ProjectID,
		JobType:         string(j.Type),
		Status:          string(j.Status),
		Priority:        string(j.Priority),
		Progress:        j.Progress,
		ProgressMessage: j.ProgressMessage,
		CreatedAt:       j.CreatedAt,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
		RetryAfter:      j.RetryAfter,
		RetryCount:      j.RetryCount,
		MaxRetries:      j.MaxRetries,
		UserID:          j.Data.UserID,
		TeamID:          j.Data.TeamID,
		JobData:         e.data,
		ResultData:      e.result,
		Revision:        e.revision,
	}
	if j.Error != "" {
		rec.ErrorMessage = &j.Error
	}
	if j.WorkerID != "" {
		rec.WorkerID = &j.WorkerID
	}
	return rec
}

func fromRecord(rec model.ProcessingJob) (*entry, error) {
	t, err := analysis.ParseJobType(rec.JobType)
	if err != nil {
		return nil, err
	}
	data, err := analysis.DecodeJobData(t, rec.JobData)
	if err != nil {
		return nil, err
	}
	priority, err := analysis.ParsePriority(rec.Priority)
	if err != nil {
		return nil, err
	}
	status := analysis.Status(rec.Status)
	if !slices.Contains(analysis.Statuses, status) {
		return nil, fmt.Errorf("unknown job status %q", rec.Status)
	}

	job := &analysis.Job{
		ID:              rec.JobID,
		Type:            t,
		Status:          status,
		Priority:        priority,
		Data:            data,
		Progress:        rec.Progress,
		ProgressMessage: rec.ProgressMessage,
		CreatedAt:       rec.CreatedAt,
		StartedAt:       rec.StartedAt,
		CompletedAt:     rec.CompletedAt,
		RetryCount:      rec.RetryCount,
		MaxRetries:      rec.MaxRetries,
		RetryAfter:      rec.RetryAfter,
	}
	if rec.ErrorMessage != nil {
		job.Error = *rec.ErrorMessage
	}
	if rec.WorkerID != nil {
		job.WorkerID = *rec.WorkerID
	}
	return &entry{job: job, data: rec.JobData, result: rec.ResultData, revision: rec.Revision}, nil
}

// JobFromRecord rebuilds a job from its stored record.
func JobFromRecord(rec model.ProcessingJob) (*analysis.Job, error) {
	e, err := fromRecord(rec)
	if err != nil {
		return nil, err
	}
	return e.job, nil
}

// Recover loads the record store into the queue after a restart. Pending jobs are queued again in
// creation order. Processing jobs past their deadline go back to pending; the others are kept
// as orphans until ReapOrphans finds their deadline passed. Terminal jobs within the retention
// window are loaded as history.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	if q.recorder == nil {
		return 0, errors.New("queue has no record store")
	}
	tracer := log.NewDebugLogger("queue").
		WithContext(ctx).
		Operation("recover").
		Build()

	active, err := q.recorder.List(ctx,
		store.NewJobQueryFilter().ByStatus(string(analysis.StatusPending), string(analysis.StatusProcessing)),
		store.NewJobQueryOptions().WithSortOrder(store.SortByCreatedTime))
	if err != nil {
		tracer.Error(err).Log()
		return 0, fmt.Errorf("failed to list active jobs: %w", err)
	}
	history, err := q.recorder.List(ctx,
		store.NewJobQueryFilter().
			ByStatus(string(analysis.StatusCompleted), string(analysis.StatusFailed), string(analysis.StatusCancelled)).
			CompletedSince(q.now().Add(-q.retention)),
		store.NewJobQueryOptions().WithSortOrder(store.SortByCreatedTime))
	if err != nil {
		tracer.Error(err).Log()
		return 0, fmt.Errorf("failed to list job history: %w", err)
	}
	tracer.Step("records_loaded").WithInt("active", len(active)).WithInt("history", len(history)).Log()

	q.mu.Lock()
	now := q.now()
	var changes []change
	loaded := 0
	for _, rec := range append(active, history...) {
		if _, found := q.jobs[rec.JobID]; found {
			continue
		}
		e, err := fromRecord(rec)
		if err != nil {
			q.log.Warnw("skipping unreadable job record", "job_id", rec.JobID, "error", err)
			continue
		}
		q.jobs[e.job.ID] = e
		loaded++

		switch e.job.Status {
		case analysis.StatusPending:
			if e.job.RetryAfter != nil && e.job.RetryAfter.After(now) {
				q.pushDelayed(e, q.nextSeq(), *e.job.RetryAfter)
			} else {
				q.pushReady(e, q.nextSeq())
			}
		case analysis.StatusProcessing:
			e.seq = q.nextSeq()
			deadline := q.recoveryDeadline(e.job)
			if deadline.After(now) {
				e.orphanDeadline = &deadline
				continue
			}
			q.resetLocked(e)
			changes = append(changes, q.changed(e, EventRecovered, analysis.StatusProcessing))
		}
	}
	q.signal()
	q.mu.Unlock()

	q.publish(ctx, changes...)
	tracer.Success().WithInt("loaded", loaded).WithInt("requeued", len(changes)).Log()
	return loaded, nil
}

func (q *Queue) recoveryDeadline(j *analysis.Job) time.Time {
	started := j.CreatedAt
	if j.StartedAt != nil {
		started = *j.StartedAt
	}
	timeout, err := q.Deadline(j)
	if err != nil {
		return started
	}
	return started.Add(timeout)
}
