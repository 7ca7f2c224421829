package processor

import (
	"context"
	"time"

	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
)

// ProgressFunc reports coarse progress (0-100) while a job runs.
type ProgressFunc func(progress int, message string)

// Processor implements one analysis type.
type Processor interface {
	// Type is the analysis type this processor serves, used as the registry key.
	Type() analysis.JobType
	// Validate checks the job payload. It has no side effects and is cheap enough to run at
	// enqueue time and again before processing.
	Validate(data analysis.JobData) error
	// EstimateProcessingTime is a pure function of the payload.
	EstimateProcessingTime(data analysis.JobData) time.Duration
	// Contract returns the published category weights and estimate formula.
	Contract() Contract
	// Process runs the analysis. Expected failures (network, unreachable pages) come back as
	// a JobResult with Success false. A returned error is a defect and is never retried.
	Process(ctx context.Context, job *analysis.Job, progress ProgressFunc) (*analysis.JobResult, error)
}

// Contract is the published scoring contract of a processor.
type Contract struct {
	Type     analysis.JobType `json:"type"`
	Weights  Weights          `json:"weights"`
	Estimate string           `json:"estimate"`
}

// paramsOf extracts the typed params of a job, accepting both value and pointer forms.
func paramsOf[T analysis.Params](data analysis.JobData) (T, bool) {
	if p, ok := data.Params.(T); ok {
		return p, true
	}
	if p, ok := any(data.Params).(*T); ok && p != nil {
		return *p, true
	}
	var zero T
	return zero, false
}

func noProgress(int, string) {}
