package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
	"github.com/onronder/ContentLabTech-sub011/internal/processor"
	"github.com/onronder/ContentLabTech-sub011/internal/store"
	"github.com/onronder/ContentLabTech-sub011/internal/store/model"
)

// Archiver keeps a copy of every stored result outside the database.
type Archiver interface {
	Archive(ctx context.Context, entry analysis.ResultEntry) error
}

type key struct {
	projectID string
	jobType   analysis.JobType
}

// Store keeps the latest successful result per project and analysis type. Entries are replaced
// on each completion, never merged. The dispatcher is the only writer.
type Store struct {
	mu       sync.RWMutex
	entries  map[key]analysis.ResultEntry
	records  store.Result
	archiver Archiver
	now      func() time.Time
	log      *zap.SugaredLogger
}

var _ processor.ResultReader = (*Store)(nil)

type Option func(s *Store)

// WithRecordStore mirrors entries to the analysis_results table.
func WithRecordStore(r store.Result) Option {
	return func(s *Store) {
		s.records = r
	}
}

func WithArchiver(a Archiver) Option {
	return func(s *Store) {
		s.archiver = a
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		entries: make(map[key]analysis.ResultEntry),
		now:     time.Now,
		log:     zap.S().Named("results"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Put stores the result of a completed job. A result older than the stored one is ignored.
func (s *Store) Put(ctx context.Context, job *analysis.Job, data any) (analysis.ResultEntry, error) {
	updated := s.now().UTC()
	if job.CompletedAt != nil {
		updated = *job.CompletedAt
	}
	entry := analysis.ResultEntry{
		ProjectID:   job.Data.ProjectID,
		Type:        job.Type,
		JobID:       job.ID,
		Data:        data,
		LastUpdated: updated,
	}

	k := key{projectID: entry.ProjectID, jobType: entry.Type}
	s.mu.Lock()
	if current, found := s.entries[k]; found && current.LastUpdated.After(entry.LastUpdated) {
		s.mu.Unlock()
		return current, nil
	}
	s.entries[k] = entry
	s.mu.Unlock()

	if s.records != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return entry, fmt.Errorf("failed to encode %s result: %w", entry.Type, err)
		}
		if err := s.records.Upsert(ctx, model.AnalysisResult{
			ProjectID:    entry.ProjectID,
			AnalysisType: string(entry.Type),
			JobID:        entry.JobID,
			Data:         raw,
			UpdatedAt:    entry.LastUpdated,
		}); err != nil {
			return entry, err
		}
	}

	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, entry); err != nil {
			s.log.Warnw("failed to archive result", "project_id", entry.ProjectID, "type", entry.Type, "job_id", entry.JobID, "error", err)
		}
	}
	return entry, nil
}

// Latest returns nil when the project has no result of type t.
func (s *Store) Latest(_ context.Context, projectID string, t analysis.JobType) (*analysis.ResultEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, found := s.entries[key{projectID: projectID, jobType: t}]
	if !found {
		return nil, nil
	}
	return &entry, nil
}

// Project returns the latest results of a project in analysis type order.
func (s *Store) Project(projectID string) []analysis.ResultEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]analysis.ResultEntry, 0, len(analysis.JobTypes))
	for _, t := range analysis.JobTypes {
		if entry, found := s.entries[key{projectID: projectID, jobType: t}]; found {
			entries = append(entries, entry)
		}
	}
	return entries
}

func (s *Store) ProjectResults(_ context.Context, projectID string) ([]analysis.ResultEntry, error) {
	return s.Project(projectID), nil
}

// Load fills the store from the record store.
func (s *Store) Load(ctx context.Context) (int, error) {
	if s.records == nil {
		return 0, errors.New("result store has no record store")
	}
	rows, err := s.records.List(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to list results: %w", err)
	}

	loaded := 0
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		t, err := analysis.ParseJobType(row.AnalysisType)
		if err != nil {
			s.log.Warnw("skipping result of unknown type", "project_id", row.ProjectID, "type", row.AnalysisType)
			continue
		}
		report, err := processor.DecodeReport(t, row.Data)
		if err != nil {
			s.log.Warnw("skipping unreadable result", "project_id", row.ProjectID, "type", row.AnalysisType, "error", err)
			continue
		}
		s.entries[key{projectID: row.ProjectID, jobType: t}] = analysis.ResultEntry{
			ProjectID:   row.ProjectID,
			Type:        t,
			JobID:       row.JobID,
			Data:        report,
			LastUpdated: row.UpdatedAt,
		}
		loaded++
	}
	return loaded, nil
}

// History reads past results from the completed job records.
type History struct {
	jobs  store.Job
	limit int
	log   *zap.SugaredLogger
}

var _ processor.HistoryReader = (*History)(nil)

// NewHistory returns at most limit results per call, the most recent ones.
func NewHistory(jobs store.Job, limit int) *History {
	return &History{jobs: jobs, limit: limit, log: zap.S().Named("results")}
}

func (h *History) ResultHistory(ctx context.Context, projectID string, t analysis.JobType, since time.Time) ([]analysis.ResultEntry, error) {
	recs, err := h.jobs.ResultHistory(ctx, projectID, string(t), since, h.limit)
	if err != nil {
		return nil, err
	}

	entries := make([]analysis.ResultEntry, 0, len(recs))
	for _, rec := range recs {
		report, err := processor.DecodeReport(t, rec.ResultData)
		if err != nil {
			h.log.Warnw("skipping unreadable result", "job_id", rec.JobID, "error", err)
			continue
		}
		entries = append(entries, analysis.ResultEntry{
			ProjectID:   rec.ProjectID,
			Type:        t,
			JobID:       rec.JobID,
			Data:        report,
			LastUpdated: *rec.CompletedAt,
		})
	}
	return slices.Clip(entries), nil
}
