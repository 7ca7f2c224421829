package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Params is the closed set of per-type job parameters. Only the six types of this
// package implement it.
type Params interface {
	JobType() JobType
	isParams()
}

type AnalysisDepth string

const (
	DepthBasic         AnalysisDepth = "basic"
	DepthComprehensive AnalysisDepth = "comprehensive"
	DepthEnterprise    AnalysisDepth = "enterprise"
)

type AnalysisScope string

const (
	ScopeBasic         AnalysisScope = "basic"
	ScopeComprehensive AnalysisScope = "comprehensive"
)

type Device string

const (
	DeviceDesktop Device = "desktop"
	DeviceMobile  Device = "mobile"
	DeviceTablet  Device = "tablet"
)

type Timeframe string

const (
	Timeframe7d  Timeframe = "7d"
	Timeframe30d Timeframe = "30d"
	Timeframe90d Timeframe = "90d"
	Timeframe1y  Timeframe = "1y"
)

// Metric names accepted by industry benchmarking.
const (
	MetricSEO         = "seo"
	MetricPerformance = "performance"
	MetricContent     = "content"
	MetricTechnical   = "technical"
)

var BenchmarkMetrics = []string{MetricSEO, MetricPerformance, MetricContent, MetricTechnical}

type ContentAnalysisParams struct {
	WebsiteURL     string        `json:"websiteUrl" validate:"required,weburl"`
	TargetKeywords []string      `json:"targetKeywords" validate:"required,min=1,max=50,dive,required,max=100"`
	CompetitorURLs []string      `json:"competitorUrls,omitempty" validate:"omitempty,max=10,dive,weburl"`
	AnalysisDepth  AnalysisDepth `json:"analysisDepth" validate:"required,oneof=basic comprehensive enterprise"`
}

type SEOHealthParams struct {
	WebsiteURL         string   `json:"websiteUrl" validate:"required,weburl"`
	Pages              []string `json:"pages" validate:"required,min=1,max=50,dive,urlpath"`
	IncludePerformance bool     `json:"includePerformance"`
	IncludeMobile      bool     `json:"includeMobile"`
}

type PerformanceParams struct {
	WebsiteURL string   `json:"websiteUrl" validate:"required,weburl"`
	Pages      []string `json:"pages" validate:"required,min=1,max=20,dive,urlpath"`
	Locations  []string `json:"locations" validate:"required,min=1,max=10,dive,required,max=64"`
	Devices    []Device `json:"devices" validate:"required,min=1,max=3,unique,dive,oneof=desktop mobile tablet"`
}

type CompetitiveIntelligenceParams struct {
	TargetDomain      string        `json:"targetDomain" validate:"required,domain"`
	CompetitorDomains []string      `json:"competitorDomains" validate:"required,min=1,max=10,dive,domain"`
	Keywords          []string      `json:"keywords" validate:"required,min=1,max=50,dive,required,max=100"`
	AnalysisScope     AnalysisScope `json:"analysisScope" validate:"required,oneof=basic comprehensive"`
}

type IndustryBenchmarkingParams struct {
	Industry      string   `json:"industry" validate:"required,max=100"`
	BusinessType  string   `json:"businessType" validate:"required,max=100"`
	TargetMetrics []string `json:"targetMetrics" validate:"required,min=1,unique,dive,oneof=seo performance content technical"`
	Region        string   `json:"region" validate:"required,max=64"`
}

type ProjectHealthParams struct {
	IncludeHistorical bool      `json:"includeHistorical"`
	Timeframe         Timeframe `json:"timeframe" validate:"required,oneof=7d 30d 90d 1y"`
}

func (ContentAnalysisParams) JobType() JobType         { return JobTypeContentAnalysis }
func (SEOHealthParams) JobType() JobType               { return JobTypeSEOHealth }
func (PerformanceParams) JobType() JobType             { return JobTypePerformance }
func (CompetitiveIntelligenceParams) JobType() JobType { return JobTypeCompetitiveIntelligence }
func (IndustryBenchmarkingParams) JobType() JobType    { return JobTypeIndustryBenchmarking }
func (ProjectHealthParams) JobType() JobType           { return JobTypeProjectHealth }

func (ContentAnalysisParams) isParams()         {}
func (SEOHealthParams) isParams()               {}
func (PerformanceParams) isParams()             {}
func (CompetitiveIntelligenceParams) isParams() {}
func (IndustryBenchmarkingParams) isParams()    {}
func (ProjectHealthParams) isParams()           {}

// Duration of the timeframe, a year counts as 365 days.
func (t Timeframe) Days() int {
	switch t {
	case Timeframe7d:
		return 7
	case Timeframe30d:
		return 30
	case Timeframe90d:
		return 90
	case Timeframe1y:
		return 365
	default:
		return 0
	}
}

// DecodeParams decodes raw into the params type of t. Unknown fields are rejected.
func DecodeParams(t JobType, raw json.RawMessage) (Params, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, NewValidationError(FieldError{Field: "params", Message: "is required"})
	}

	var p Params
	switch t {
	case JobTypeContentAnalysis:
		p = &ContentAnalysisParams{}
	case JobTypeSEOHealth:
		p = &SEOHealthParams{}
	case JobTypePerformance:
		p = &PerformanceParams{}
	case JobTypeCompetitiveIntelligence:
		p = &CompetitiveIntelligenceParams{}
	case JobTypeIndustryBenchmarking:
		p = &IndustryBenchmarkingParams{}
	case JobTypeProjectHealth:
		p = &ProjectHealthParams{}
	default:
		return nil, fmt.Errorf("unknown analysis type %q", t)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return nil, NewValidationError(FieldError{Field: "params", Message: err.Error()})
	}

	return deref(p), nil
}

// deref stores params by value so a job's params can't be changed through a shared pointer.
func deref(p Params) Params {
	switch v := p.(type) {
	case *ContentAnalysisParams:
		return *v
	case *SEOHealthParams:
		return *v
	case *PerformanceParams:
		return *v
	case *CompetitiveIntelligenceParams:
		return *v
	case *IndustryBenchmarkingParams:
		return *v
	case *ProjectHealthParams:
		return *v
	default:
		return p
	}
}
