package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ProcessingJob is the durable record of one analysis job.
type ProcessingJob struct {
	JobID           uuid.UUID  `gorm:"column:job_id;primaryKey;type:uuid"`
	ProjectID       string     `gorm:"column:project_id;type:VARCHAR;size:128;not null;index:processing_jobs_project_type"`
	JobType         string     `gorm:"column:job_type;type:VARCHAR;size:64;not null;index:processing_jobs_project_type"`
	Status          string     `gorm:"column:status;type:VARCHAR;size:32;not null;index"`
	Priority        string     `gorm:"column:priority;type:VARCHAR;size:16;not null"`
	Progress        int        `gorm:"column:progress;not null;default:0"`
	ProgressMessage string     `gorm:"column:progress_message"`
	ErrorMessage    *string    `gorm:"column:error_message"`
	CreatedAt       time.Time  `gorm:"column:created_at;not null;autoCreateTime:false"`
	StartedAt       *time.Time `gorm:"column:started_at"`
	CompletedAt     *time.Time `gorm:"column:completed_at"`
	RetryAfter      *time.Time `gorm:"column:retry_after"`
	RetryCount      int        `gorm:"column:retry_count;not null;default:0"`
	MaxRetries      int        `gorm:"column:max_retries;not null"`
	UserID          string     `gorm:"column:user_id;type:VARCHAR;size:128"`
	TeamID          string     `gorm:"column:team_id;type:VARCHAR;size:128"`
	WorkerID        *string    `gorm:"column:worker_id"`
	JobData         []byte     `gorm:"column:job_data;type:jsonb;not null"`
	ResultData      []byte     `gorm:"column:result_data;type:jsonb"`
	Revision        int64      `gorm:"column:revision;not null;default:0"`
}

func (ProcessingJob) TableName() string {
	return "processing_jobs"
}

func (p ProcessingJob) String() string {
	val, _ := json.Marshal(p)
	return string(val)
}

type ProcessingJobList []ProcessingJob

// AnalysisResult is the latest successful result of one analysis type for a project.
type AnalysisResult struct {
	ProjectID    string    `gorm:"column:project_id;primaryKey;type:VARCHAR;size:128"`
	AnalysisType string    `gorm:"column:analysis_type;primaryKey;type:VARCHAR;size:64"`
	JobID        uuid.UUID `gorm:"column:job_id;type:uuid;not null"`
	Data         []byte    `gorm:"column:data;type:jsonb;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

func (AnalysisResult) TableName() string {
	return "analysis_results"
}

type AnalysisResultList []AnalysisResult
