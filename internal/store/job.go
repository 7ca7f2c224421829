package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/onronder/ContentLabTech-sub011/internal/store/model"
)

// Job persists ProcessingJob records.
type Job interface {
	InitialMigration(ctx context.Context) error
	// Save upserts rec unless the stored record already has the same or a newer revision.
	// It reports whether the record was written.
	Save(ctx context.Context, rec model.ProcessingJob) (bool, error)
	Get(ctx context.Context, id uuid.UUID) (*model.ProcessingJob, error)
	List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.ProcessingJobList, error)
	// ResultHistory lists completed jobs with a result, oldest first.
	ResultHistory(ctx context.Context, projectID, jobType string, since time.Time, limit int) (model.ProcessingJobList, error)
}

type JobStore struct {
	db *gorm.DB
}

// Make sure we conform to Job interface
var _ Job = (*JobStore)(nil)

func NewJobStore(db *gorm.DB) Job {
	return &JobStore{db: db}
}

func (s *JobStore) InitialMigration(ctx context.Context) error {
	return s.getDB(ctx).AutoMigrate(&model.ProcessingJob{})
}

var jobUpdateColumns = []string{
	"status", "priority", "progress", "progress_message", "error_message", "started_at",
	"completed_at", "retry_after", "retry_count", "max_retries", "worker_id", "result_data", "revision",
}

func (s *JobStore) Save(ctx context.Context, rec model.ProcessingJob) (bool, error) {
	result := s.getDB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}},
		DoUpdates: clause.AssignmentColumns(jobUpdateColumns),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "processing_jobs.revision < excluded.revision"},
		}},
	}).Create(&rec)
	if result.Error != nil {
		return false, fmt.Errorf("saving job %s: %w", rec.JobID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *JobStore) Get(ctx context.Context, id uuid.UUID) (*model.ProcessingJob, error) {
	var rec model.ProcessingJob
	result := s.getDB(ctx).First(&rec, "job_id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying job: %w", result.Error)
	}
	return &rec, nil
}

func (s *JobStore) List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.ProcessingJobList, error) {
	var recs model.ProcessingJobList
	tx := s.getDB(ctx).Model(&recs)

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}
	if opts != nil {
		for _, fn := range opts.QueryFn {
			tx = fn(tx)
		}
	}

	if result := tx.Find(&recs); result.Error != nil {
		return nil, result.Error
	}
	return recs, nil
}

func (s *JobStore) ResultHistory(ctx context.Context, projectID, jobType string, since time.Time, limit int) (model.ProcessingJobList, error) {
	filter := NewJobQueryFilter().
		ByProjectID(projectID).
		ByType(jobType).
		ByStatus("completed").
		CompletedSince(since).
		WithResult()
	// newest first so the limit keeps the latest entries
	opts := NewJobQueryOptions().WithSortOrder(SortByCompletedTimeDesc)
	if limit > 0 {
		opts = opts.WithLimit(limit)
	}
	recs, err := s.List(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	slices.Reverse(recs)
	return recs, nil
}

func (s *JobStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}
