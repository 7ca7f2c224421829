package status

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
	"github.com/onronder/ContentLabTech-sub011/internal/queue"
	"github.com/onronder/ContentLabTech-sub011/internal/store"
)

// QueueLister is implemented by the job queue.
type QueueLister interface {
	List(projectID string, limit int) []*analysis.Job
}

// QueueJobs lists the jobs held by the queue. With a record store it fills the list with older
// jobs the queue no longer holds.
type QueueJobs struct {
	Queue   QueueLister
	Records store.Job
}

var _ JobLister = QueueJobs{}

func (s QueueJobs) ListJobs(ctx context.Context, projectID string, limit int) ([]*analysis.Job, error) {
	jobs := s.Queue.List(projectID, limit)
	if s.Records == nil || (limit > 0 && len(jobs) >= limit) {
		return jobs, nil
	}

	opts := store.NewJobQueryOptions().WithSortOrder(store.SortByCreatedTimeDesc)
	if limit > 0 {
		opts = opts.WithLimit(limit)
	}
	recs, err := s.Records.List(ctx, store.NewJobQueryFilter().ByProjectID(projectID), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list job records: %w", err)
	}

	seen := make(map[uuid.UUID]struct{}, len(jobs))
	for _, j := range jobs {
		seen[j.ID] = struct{}{}
	}
	for _, rec := range recs {
		if _, found := seen[rec.JobID]; found {
			continue
		}
		job, err := queue.JobFromRecord(rec)
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}

	sort.SliceStable(jobs, func(i, k int) bool { return jobs[i].CreatedAt.After(jobs[k].CreatedAt) })
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}
