package analysis

import (
	"time"

	"github.com/google/uuid"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

func (s Severity) Weight() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}

type Effort string

const (
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
)

var Efforts = []Effort{EffortLow, EffortMedium, EffortHigh}

type IssueType string

const (
	IssueTechnical   IssueType = "technical"
	IssueOnPage      IssueType = "on_page"
	IssuePerformance IssueType = "performance"
	IssueMobile      IssueType = "mobile"
	IssueContent     IssueType = "content"
	IssueSecurity    IssueType = "security"
)

var IssueTypes = []IssueType{IssueTechnical, IssueOnPage, IssuePerformance, IssueMobile, IssueContent, IssueSecurity}

type Category string

const (
	CategoryTechnical   Category = "technical"
	CategoryContent     Category = "content"
	CategoryPerformance Category = "performance"
	CategoryMobile      Category = "mobile"
	CategoryKeywords    Category = "keywords"
	CategoryCompetitive Category = "competitive"
	CategoryStrategy    Category = "strategy"
)

var Categories = []Category{
	CategoryTechnical, CategoryContent, CategoryPerformance, CategoryMobile,
	CategoryKeywords, CategoryCompetitive, CategoryStrategy,
}

type Direction string

const (
	DirectionUp     Direction = "up"
	DirectionDown   Direction = "down"
	DirectionStable Direction = "stable"
)

// Limits on the lists carried by a result.
const (
	MaxIssues          = 20
	MaxRecommendations = 10
)

type Issue struct {
	Type           IssueType `json:"type"`
	Severity       Severity  `json:"severity"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Recommendation string    `json:"recommendation"`
	Impact         int       `json:"impact"`
	Effort         Effort    `json:"effort"`
	// Priority is the 1-based fix order within the result.
	Priority int      `json:"priority"`
	Pages    []string `json:"pages,omitempty"`
}

type ImplementationPlan struct {
	Steps        []string `json:"steps"`
	TimeEstimate string   `json:"timeEstimate"`
}

type Recommendation struct {
	Title          string             `json:"title"`
	Description    string             `json:"description"`
	Impact         int                `json:"impact"`
	Effort         Effort             `json:"effort"`
	Category       Category           `json:"category"`
	Implementation ImplementationPlan `json:"implementation"`
}

type Trend struct {
	Direction Direction `json:"direction"`
	Magnitude int       `json:"magnitude"`
}

type Metadata struct {
	ProcessingTime time.Duration  `json:"processingTime"`
	ResourcesUsed  map[string]int `json:"resourcesUsed,omitempty"`
	QualityScore   int            `json:"qualityScore"`
}

// JobResult is produced by a processor and consumed by the dispatcher. Data is set iff
// Success, Error iff !Success.
type JobResult struct {
	Success         bool       `json:"success"`
	Data            any        `json:"data,omitempty"`
	Error           string     `json:"error,omitempty"`
	Retryable       bool       `json:"retryable,omitempty"`
	Progress        int        `json:"progress"`
	ProgressMessage string     `json:"progressMessage,omitempty"`
	RetryAfter      *time.Time `json:"retryAfter,omitempty"`
	Metadata        *Metadata  `json:"metadata,omitempty"`
}

func Succeeded(data any, meta *Metadata) *JobResult {
	return &JobResult{Success: true, Data: data, Progress: 100, Metadata: meta}
}

func Failed(err string, retryable bool) *JobResult {
	return &JobResult{Success: false, Error: err, Retryable: retryable}
}

// ResultEntry is the latest successful result of one analysis type for a project.
type ResultEntry struct {
	ProjectID   string    `json:"projectId"`
	Type        JobType   `json:"type"`
	JobID       uuid.UUID `json:"jobId"`
	Data        any       `json:"data"`
	LastUpdated time.Time `json:"lastUpdated"`
}
