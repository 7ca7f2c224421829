package processor

import (
	"fmt"
	"math"
	"sort"

	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
)

type Weight struct {
	Category string  `json:"category"`
	Weight   float64 `json:"weight"`
}

// Weights is the ordered list of categories that make up an overall score.
type Weights []Weight

// Overall is the weighted sum of the category scores, rounded and clamped to [0,100].
// Missing categories count as 0.
func (w Weights) Overall(scores map[string]int) int {
	var total float64
	for _, c := range w {
		total += float64(scores[c.Category]) * c.Weight
	}
	return clampScore(total)
}

// Check verifies the weights are positive and sum to 1.
func (w Weights) Check() error {
	var sum float64
	for _, c := range w {
		if c.Weight <= 0 {
			return fmt.Errorf("weight of %q must be positive", c.Category)
		}
		sum += c.Weight
	}
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("weights sum to %.4f, want 1", sum)
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// clampScore rounds v to the nearest integer within [0,100].
func clampScore(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return clamp(int(math.Round(v)), 0, 100)
}

// ratioScore maps part/whole onto [0,100]. An empty whole scores full marks.
func ratioScore(part, whole int) int {
	if whole <= 0 {
		return 100
	}
	return clampScore(100 * float64(part) / float64(whole))
}

// bandScore is 100 at or below good and falls linearly to 0 at bad.
func bandScore(v, good, bad float64) int {
	switch {
	case v <= good:
		return 100
	case v >= bad:
		return 0
	default:
		return clampScore(100 * (bad - v) / (bad - good))
	}
}

func average(values []int) int {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return clampScore(float64(sum) / float64(len(values)))
}

// rankIssues orders issues by impact then severity, numbers their priority and keeps at
// most MaxIssues.
func rankIssues(issues []analysis.Issue) []analysis.Issue {
	out := make([]analysis.Issue, len(issues))
	copy(out, issues)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Impact != out[j].Impact {
			return out[i].Impact > out[j].Impact
		}
		return out[i].Severity.Weight() > out[j].Severity.Weight()
	})
	if len(out) > analysis.MaxIssues {
		out = out[:analysis.MaxIssues]
	}
	for i := range out {
		out[i].Impact = clamp(out[i].Impact, 1, 100)
		out[i].Priority = i + 1
	}
	return out
}

// criticalIssues keeps the high and critical severity issues.
func criticalIssues(issues []analysis.Issue) []analysis.Issue {
	out := make([]analysis.Issue, 0)
	for _, i := range issues {
		if i.Severity == analysis.SeverityHigh || i.Severity == analysis.SeverityCritical {
			out = append(out, i)
		}
	}
	return out
}

// rankRecommendations orders by impact and keeps at most MaxRecommendations, dropping
// duplicate titles.
func rankRecommendations(recs []analysis.Recommendation) []analysis.Recommendation {
	seen := make(map[string]struct{}, len(recs))
	out := make([]analysis.Recommendation, 0, len(recs))
	for _, r := range recs {
		if _, dup := seen[r.Title]; dup {
			continue
		}
		seen[r.Title] = struct{}{}
		r.Impact = clamp(r.Impact, 1, 100)
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Impact > out[j].Impact })
	if len(out) > analysis.MaxRecommendations {
		out = out[:analysis.MaxRecommendations]
	}
	return out
}

// recommendationFor turns an issue into an actionable recommendation.
func recommendationFor(issue analysis.Issue, category analysis.Category, steps ...string) analysis.Recommendation {
	if len(steps) == 0 {
		steps = []string{issue.Recommendation}
	}
	return analysis.Recommendation{
		Title:       issue.Title,
		Description: issue.Recommendation,
		Impact:      issue.Impact,
		Effort:      issue.Effort,
		Category:    category,
		Implementation: analysis.ImplementationPlan{
			Steps:        steps,
			TimeEstimate: timeEstimate(issue.Effort),
		},
	}
}

func timeEstimate(e analysis.Effort) string {
	switch e {
	case analysis.EffortLow:
		return "1-2 hours"
	case analysis.EffortMedium:
		return "1-2 days"
	default:
		return "1-2 weeks"
	}
}

// trendOf compares a score with a previous one. Moves of two points or less are stable.
func trendOf(current int, previous *int) analysis.Trend {
	if previous == nil {
		return analysis.Trend{Direction: analysis.DirectionStable}
	}
	delta := current - *previous
	switch {
	case delta > 2:
		return analysis.Trend{Direction: analysis.DirectionUp, Magnitude: clamp(delta, 0, 100)}
	case delta < -2:
		return analysis.Trend{Direction: analysis.DirectionDown, Magnitude: clamp(-delta, 0, 100)}
	default:
		return analysis.Trend{Direction: analysis.DirectionStable, Magnitude: clamp(abs(delta), 0, 100)}
	}
}

// marketPosition maps a percentile onto the 1 (leader) to 10 scale.
func marketPosition(percentile int) int {
	return clamp(10-int(math.Round(float64(clamp(percentile, 0, 100))*9/100)), 1, 10)
}

// normalPercentile is the percentile of v in a normal distribution.
func normalPercentile(v, mean, stddev float64) int {
	if stddev <= 0 {
		if v >= mean {
			return 100
		}
		return 0
	}
	z := (v - mean) / stddev
	return clampScore(50 * (1 + math.Erf(z/math.Sqrt2)))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
