package processor

import (
	"fmt"
	"sort"
	"time"

	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
)

// Registry maps analysis types to processors. It is filled at start-up and read-only after.
type Registry struct {
	processors map[analysis.JobType]Processor
}

func NewRegistry() *Registry {
	return &Registry{processors: make(map[analysis.JobType]Processor)}
}

// Register panics if a processor for the same type is already registered.
func (r *Registry) Register(p Processor) {
	if _, found := r.processors[p.Type()]; found {
		panic(fmt.Sprintf("processor: %q already registered", p.Type()))
	}
	r.processors[p.Type()] = p
}

func (r *Registry) Get(t analysis.JobType) (Processor, error) {
	p, found := r.processors[t]
	if !found {
		return nil, fmt.Errorf("no processor registered for %q", t)
	}
	return p, nil
}

// Validate runs the processor validation of the job type.
func (r *Registry) Validate(t analysis.JobType, data analysis.JobData) error {
	p, err := r.Get(t)
	if err != nil {
		return analysis.NewValidationError(analysis.FieldError{Field: "type", Message: err.Error()})
	}
	return p.Validate(data)
}

// Estimate returns the processing time estimate of a job of type t.
func (r *Registry) Estimate(t analysis.JobType, data analysis.JobData) (time.Duration, error) {
	p, err := r.Get(t)
	if err != nil {
		return 0, err
	}
	return p.EstimateProcessingTime(data), nil
}

func (r *Registry) Contracts() []Contract {
	contracts := make([]Contract, 0, len(r.processors))
	for _, p := range r.processors {
		contracts = append(contracts, p.Contract())
	}
	sort.Slice(contracts, func(i, j int) bool { return contracts[i].Type < contracts[j].Type })
	return contracts
}

// Dependencies shared by the processors.
type Dependencies struct {
	Fetcher SiteFetcher
	Results ResultReader
	History HistoryReader
}

// NewDefaultRegistry registers the six analysis processors.
func NewDefaultRegistry(deps Dependencies) *Registry {
	r := NewRegistry()
	r.Register(NewContentAnalysisProcessor(deps.Fetcher))
	r.Register(NewSEOHealthProcessor(deps.Fetcher))
	r.Register(NewPerformanceProcessor(deps.Fetcher))
	r.Register(NewCompetitiveIntelligenceProcessor(deps.Fetcher, deps.Results))
	r.Register(NewIndustryBenchmarkingProcessor(deps.Results))
	r.Register(NewProjectHealthProcessor(deps.Results, deps.History))
	return r
}
