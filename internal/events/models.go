package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
)

const kindPrefix = "contentlab.analysis.job."

// JobEventKind is the CloudEvents type of a job lifecycle event, e.g. contentlab.analysis.job.completed.
func JobEventKind(event string) string {
	return kindPrefix + event
}

type JobEvent struct {
	JobID      uuid.UUID         `json:"job_id"`
	ProjectID  string            `json:"project_id"`
	TeamID     string            `json:"team_id"`
	Type       analysis.JobType  `json:"type"`
	Status     analysis.Status   `json:"status"`
	From       analysis.Status   `json:"from,omitempty"`
	Priority   analysis.Priority `json:"priority"`
	Progress   int               `json:"progress"`
	RetryCount int               `json:"retry_count"`
	RetryAfter *time.Time        `json:"retry_after,omitempty"`
	Error      string            `json:"error,omitempty"`
	At         time.Time         `json:"at"`
}

func newJobEvent(j *analysis.Job, from analysis.Status, at time.Time) JobEvent {
	return JobEvent{
		JobID:      j.ID,
		ProjectID:  j.Data.ProjectID,
		TeamID:     j.Data.TeamID,
		Type:       j.Type,
		Status:     j.Status,
		From:       from,
		Priority:   j.Priority,
		Progress:   j.Progress,
		RetryCount: j.RetryCount,
		RetryAfter: j.RetryAfter,
		Error:      j.Error,
		At:         at,
	}
}

func (e JobEvent) subject() string {
	return fmt.Sprintf("projects/%s/jobs/%s", e.ProjectID, e.JobID)
}
