package status

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
)

type JobLister interface {
	// ListJobs returns the jobs of a project, newest first.
	ListJobs(ctx context.Context, projectID string, limit int) ([]*analysis.Job, error)
}

type ResultLister interface {
	ProjectResults(ctx context.Context, projectID string) ([]analysis.ResultEntry, error)
}

type StatsSource interface {
	Stats() analysis.QueueStats
}

// Section names.
const (
	SectionJobs    = "jobs"
	SectionResults = "results"
	SectionQueue   = "queue"
)

// SectionError reports a part of the status that could not be gathered.
type SectionError struct {
	Section string `json:"section"`
	Error   string `json:"error"`
}

type LastError struct {
	JobID   uuid.UUID        `json:"jobId"`
	Type    analysis.JobType `json:"type"`
	Message string           `json:"message"`
	// Retryable is true when the job waits for another attempt, false when it failed for good.
	Retryable bool      `json:"retryable"`
	At        time.Time `json:"at"`
}

type Summary struct {
	Total        int        `json:"total"`
	Pending      int        `json:"pending"`
	Processing   int        `json:"processing"`
	Completed    int        `json:"completed"`
	Failed       int        `json:"failed"`
	Cancelled    int        `json:"cancelled"`
	RetryPending int        `json:"retryPending"`
	LastError    *LastError `json:"lastError,omitempty"`
}

// AnalyticsStatus is the combined view of a project. It is derived on every request.
type AnalyticsStatus struct {
	ProjectID   string                                     `json:"projectId"`
	Jobs        []*analysis.Job                            `json:"jobs"`
	Results     map[analysis.JobType]*analysis.ResultEntry `json:"results"`
	Queue       analysis.QueueStats                        `json:"queue"`
	Summary     Summary                                    `json:"summary"`
	Errors      []SectionError                             `json:"errors,omitempty"`
	GeneratedAt time.Time                                  `json:"generatedAt"`
}

type Aggregator struct {
	jobs         JobLister
	results      ResultLister
	stats        StatsSource
	historyLimit int
	now          func() time.Time
}

func NewAggregator(jobs JobLister, results ResultLister, stats StatsSource, historyLimit int) *Aggregator {
	return &Aggregator{
		jobs:         jobs,
		results:      results,
		stats:        stats,
		historyLimit: historyLimit,
		now:          time.Now,
	}
}

// Status gathers the sections concurrently. A failing section is reported in Errors and never
// aborts the others.
func (a *Aggregator) Status(ctx context.Context, projectID string) *AnalyticsStatus {
	st := &AnalyticsStatus{
		ProjectID:   projectID,
		Jobs:        []*analysis.Job{},
		Results:     make(map[analysis.JobType]*analysis.ResultEntry, len(analysis.JobTypes)),
		GeneratedAt: a.now().UTC(),
	}
	for _, t := range analysis.JobTypes {
		st.Results[t] = nil
	}

	var (
		jobs    []*analysis.Job
		entries []analysis.ResultEntry
		stats   analysis.QueueStats
	)
	sections := []struct {
		name string
		run  func(ctx context.Context) error
	}{
		{SectionJobs, func(ctx context.Context) (err error) {
			jobs, err = a.jobs.ListJobs(ctx, projectID, a.historyLimit)
			return err
		}},
		{SectionResults, func(ctx context.Context) (err error) {
			entries, err = a.results.ProjectResults(ctx, projectID)
			return err
		}},
		{SectionQueue, func(context.Context) error {
			stats = a.stats.Stats()
			return nil
		}},
	}

	errs := make([]error, len(sections))
	var g errgroup.Group
	for i, s := range sections {
		g.Go(func() error {
			errs[i] = settle(ctx, s.run)
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err != nil {
			st.Errors = append(st.Errors, SectionError{Section: sections[i].name, Error: err.Error()})
		}
	}
	if errs[0] == nil && jobs != nil {
		st.Jobs = jobs
	}
	if errs[1] == nil {
		for i := range entries {
			st.Results[entries[i].Type] = &entries[i]
		}
	}
	if errs[2] == nil {
		st.Queue = stats
	}
	st.Summary = summarize(st.Jobs)
	return st
}

// settle runs one section and turns a panic into its error.
func settle(ctx context.Context, run func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("section panicked: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	return run(ctx)
}

func summarize(jobs []*analysis.Job) Summary {
	s := Summary{Total: len(jobs)}
	var withError []*analysis.Job
	for _, j := range jobs {
		switch j.Status {
		case analysis.StatusPending:
			s.Pending++
			if j.RetryPending() {
				s.RetryPending++
			}
		case analysis.StatusProcessing:
			s.Processing++
		case analysis.StatusCompleted:
			s.Completed++
		case analysis.StatusFailed:
			s.Failed++
		case analysis.StatusCancelled:
			s.Cancelled++
		}
		if j.Error != "" && (j.Status == analysis.StatusFailed || j.RetryPending()) {
			withError = append(withError, j)
		}
	}
	if len(withError) == 0 {
		return s
	}

	sort.SliceStable(withError, func(i, k int) bool {
		return errorTime(withError[i]).After(errorTime(withError[k]))
	})
	last := withError[0]
	s.LastError = &LastError{
		JobID:     last.ID,
		Type:      last.Type,
		Message:   last.Error,
		Retryable: last.Status == analysis.StatusPending,
		At:        errorTime(last),
	}
	return s
}

// errorTime is when the last failure of j happened as far as the job tells.
func errorTime(j *analysis.Job) time.Time {
	switch {
	case j.CompletedAt != nil:
		return *j.CompletedAt
	case j.RetryAfter != nil:
		return *j.RetryAfter
	default:
		return j.CreatedAt
	}
}
