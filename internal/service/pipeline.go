package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
	"github.com/onronder/ContentLabTech-sub011/internal/processor"
	"github.com/onronder/ContentLabTech-sub011/internal/queue"
	"github.com/onronder/ContentLabTech-sub011/internal/status"
	"github.com/onronder/ContentLabTech-sub011/internal/store"
	"github.com/onronder/ContentLabTech-sub011/pkg/log"
	"github.com/onronder/ContentLabTech-sub011/pkg/metrics"
)

type JobQueue interface {
	Enqueue(ctx context.Context, t analysis.JobType, data analysis.JobData, priority analysis.Priority) (*analysis.Job, error)
	Get(id uuid.UUID) (*analysis.Job, error)
	Cancel(ctx context.Context, id uuid.UUID) (*analysis.Job, error)
	Stats() analysis.QueueStats
}

type StatusReader interface {
	Status(ctx context.Context, projectID string) *status.AnalyticsStatus
}

type ContractLister interface {
	Contracts() []processor.Contract
}

// SubmitJobRequest is the raw form of a submission. Params are decoded against Type.
type SubmitJobRequest struct {
	ProjectID string          `json:"projectId"`
	UserID    string          `json:"userId"`
	TeamID    string          `json:"teamId"`
	Type      string          `json:"type"`
	Priority  string          `json:"priority,omitempty"`
	Params    json.RawMessage `json:"params"`
}

type PipelineService struct {
	queue     JobQueue
	status    StatusReader
	contracts ContractLister
	records   store.Job
	logger    *log.StructuredLogger
}

// NewPipelineService builds the service. records may be nil; it is used to find jobs that are
// no longer held by the queue.
func NewPipelineService(q JobQueue, st StatusReader, contracts ContractLister, records store.Job) *PipelineService {
	return &PipelineService{
		queue:     q,
		status:    st,
		contracts: contracts,
		records:   records,
		logger:    log.NewDebugLogger("pipeline_service"),
	}
}

func (s *PipelineService) SubmitJob(ctx context.Context, req SubmitJobRequest) (*analysis.Job, error) {
	tracer := s.logger.WithContext(ctx).
		Operation("submit_job").
		WithString("project_id", req.ProjectID).
		WithString("type", req.Type).
		WithString("priority", req.Priority).
		Build()

	jobType, err := analysis.ParseJobType(req.Type)
	if err != nil {
		return nil, NewErrInvalidField("type", err.Error())
	}
	priority, err := analysis.ParsePriority(req.Priority)
	if err != nil {
		return nil, NewErrInvalidField("priority", err.Error())
	}
	params, err := analysis.DecodeParams(jobType, req.Params)
	if err != nil {
		return nil, NewErrInvalidJob(err)
	}

	data := analysis.JobData{
		ProjectID: req.ProjectID,
		UserID:    req.UserID,
		TeamID:    req.TeamID,
		Params:    params,
	}
	job, err := s.queue.Enqueue(ctx, jobType, data, priority)
	if err != nil {
		var verr *analysis.ValidationError
		switch {
		case errors.As(err, &verr):
			tracer.Step("rejected").WithString("reason", verr.Error()).Log()
			return nil, NewErrInvalidJob(verr)
		case errors.Is(err, queue.ErrQueueClosed):
			return nil, NewErrServiceUnavailable()
		}
		tracer.Error(err).Log()
		return nil, err
	}

	metrics.IncreaseJobsSubmittedMetric(string(job.Type), string(job.Priority))
	metrics.UniqueProjectsPerWeek.Add(job.Data.ProjectID)

	tracer.Success().WithUUID("job_id", job.ID).Log()
	return job, nil
}

// GetStatus never fails: sections that could not be gathered are listed in the status errors.
func (s *PipelineService) GetStatus(ctx context.Context, projectID string) (*status.AnalyticsStatus, error) {
	if projectID == "" {
		return nil, NewErrInvalidField("projectId", "is required")
	}
	tracer := s.logger.WithContext(ctx).Operation("get_status").WithString("project_id", projectID).Build()

	st := s.status.Status(ctx, projectID)

	tracer.Success().WithInt("jobs", len(st.Jobs)).WithInt("section_errors", len(st.Errors)).Log()
	return st, nil
}

// CancelJob cancels a pending or processing job.
func (s *PipelineService) CancelJob(ctx context.Context, id uuid.UUID) (*analysis.Job, error) {
	tracer := s.logger.WithContext(ctx).Operation("cancel_job").WithUUID("job_id", id).Build()

	job, err := s.queue.Cancel(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, queue.ErrJobNotFound):
		// a job pruned from the queue is terminal
		if rec, rerr := s.GetJob(ctx, id); rerr == nil {
			return nil, NewErrJobNotCancellable(id, rec.Status)
		}
		return nil, NewErrJobNotFound(id)
	case errors.Is(err, queue.ErrInvalidTransition):
		current, gerr := s.queue.Get(id)
		if gerr != nil {
			return nil, NewErrJobNotFound(id)
		}
		return nil, NewErrJobNotCancellable(id, current.Status)
	default:
		tracer.Error(err).Log()
		return nil, err
	}

	tracer.Success().WithString("status", string(job.Status)).Log()
	return job, nil
}

// GetJob returns a job from the queue, or from the record store once the queue has pruned it.
func (s *PipelineService) GetJob(ctx context.Context, id uuid.UUID) (*analysis.Job, error) {
	job, err := s.queue.Get(id)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, queue.ErrJobNotFound) {
		return nil, err
	}
	if s.records == nil {
		return nil, NewErrJobNotFound(id)
	}

	rec, err := s.records.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}
	return queue.JobFromRecord(*rec)
}

func (s *PipelineService) QueueStats() analysis.QueueStats {
	return s.queue.Stats()
}

func (s *PipelineService) Contracts() []processor.Contract {
	return s.contracts.Contracts()
}
