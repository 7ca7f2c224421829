package types

import (
	"time"
)

type ReportRenderer interface {
	Render(data *ReportData) ([]byte, error)
	SupportedFormat() ReportFormat
	ContentType() string
}

type ReportFormat string

const (
	ReportFormatCSV  ReportFormat = "csv"
	ReportFormatXLSX ReportFormat = "xlsx"
)

// ReportData is the flattened form of a project status, shared by every renderer.
type ReportData struct {
	ProjectID  string
	Summary    SummaryMetrics
	Results    []ResultRow
	Jobs       []JobRow
	Findings   []FindingRow
	Queue      QueueMetrics
	Errors     []string
	Timestamps ReportTimestamps
}

type SummaryMetrics struct {
	TotalJobs    int
	Pending      int
	Processing   int
	Completed    int
	Failed       int
	Cancelled    int
	RetryPending int
	LastError    string
}

type ResultRow struct {
	Type        string
	Available   bool
	Score       int
	JobID       string
	LastUpdated time.Time
}

type JobRow struct {
	ID          string
	Type        string
	Status      string
	Priority    string
	Progress    int
	RetryCount  int
	CreatedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// FindingRow is a recommendation or an issue taken from a result.
type FindingRow struct {
	Type     string
	Kind     string
	Title    string
	Severity string
	Impact   int
	Effort   string
}

type QueueMetrics struct {
	Total              int
	Pending            int
	Processing         int
	ProcessingCapacity int
}

type ReportTimestamps struct {
	Generated     string
	GeneratedTime string
}
