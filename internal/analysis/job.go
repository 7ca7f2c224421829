package analysis

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type JobType string

const (
	JobTypeContentAnalysis         JobType = "content-analysis"
	JobTypeSEOHealth               JobType = "seo-health"
	JobTypePerformance             JobType = "performance"
	JobTypeCompetitiveIntelligence JobType = "competitive-intelligence"
	JobTypeIndustryBenchmarking    JobType = "industry-benchmarking"
	JobTypeProjectHealth           JobType = "project-health"
)

// JobTypes lists every analysis kind in a stable order.
var JobTypes = []JobType{
	JobTypeContentAnalysis,
	JobTypeSEOHealth,
	JobTypePerformance,
	JobTypeCompetitiveIntelligence,
	JobTypeIndustryBenchmarking,
	JobTypeProjectHealth,
}

func ParseJobType(s string) (JobType, error) {
	for _, t := range JobTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown analysis type %q", s)
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var Statuses = []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled}

func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

// Rank orders priorities, higher runs first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// ParsePriority defaults to medium when s is empty.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return Priority(s), nil
	default:
		return "", fmt.Errorf("unknown priority %q", s)
	}
}

// JobData is the payload of a job. Params is always the concrete type matching the job type.
type JobData struct {
	ProjectID string `json:"projectId" validate:"required,max=128"`
	UserID    string `json:"userId" validate:"required,max=128"`
	TeamID    string `json:"teamId" validate:"required,max=128"`
	Params    Params `json:"params" validate:"-"`
}

type rawJobData struct {
	ProjectID string          `json:"projectId"`
	UserID    string          `json:"userId"`
	TeamID    string          `json:"teamId"`
	Params    json.RawMessage `json:"params"`
}

// DecodeJobData rebuilds the payload of a job of type t from its JSON form.
func DecodeJobData(t JobType, data []byte) (JobData, error) {
	var raw rawJobData
	if err := json.Unmarshal(data, &raw); err != nil {
		return JobData{}, fmt.Errorf("failed to decode job data: %w", err)
	}
	params, err := DecodeParams(t, raw.Params)
	if err != nil {
		return JobData{}, err
	}
	return JobData{ProjectID: raw.ProjectID, UserID: raw.UserID, TeamID: raw.TeamID, Params: params}, nil
}

type Job struct {
	ID              uuid.UUID  `json:"id"`
	Type            JobType    `json:"type"`
	Status          Status     `json:"status"`
	Priority        Priority   `json:"priority"`
	Data            JobData    `json:"data"`
	Progress        int        `json:"progress"`
	ProgressMessage string     `json:"progressMessage,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	RetryCount      int        `json:"retryCount"`
	MaxRetries      int        `json:"maxRetries"`
	RetryAfter      *time.Time `json:"retryAfter,omitempty"`
	Error           string     `json:"error,omitempty"`
	WorkerID        string     `json:"workerId,omitempty"`
}

func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// RetryPending is true for a job waiting out a backoff after a retryable failure.
func (j *Job) RetryPending() bool {
	return j.Status == StatusPending && j.RetryCount > 0 && j.Error != ""
}

// Clone returns a copy that shares no mutable state with j. Params values are never
// mutated after validation and are shared.
func (j *Job) Clone() *Job {
	c := *j
	c.StartedAt = copyTime(j.StartedAt)
	c.CompletedAt = copyTime(j.CompletedAt)
	c.RetryAfter = copyTime(j.RetryAfter)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// QueueStats is derived from the queue contents on every call.
type QueueStats struct {
	Total              int `json:"total"`
	Pending            int `json:"pending"`
	Processing         int `json:"processing"`
	Completed          int `json:"completed"`
	Failed             int `json:"failed"`
	Cancelled          int `json:"cancelled"`
	ProcessingCapacity int `json:"processing_capacity"`
}
