package processor

import (
	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
)

// finding is an issue template together with the steps that fix it.
type finding struct {
	issue analysis.Issue
	steps []string
}

// findings collects issues across pages, merging repeats of the same finding.
type findings struct {
	order []string
	items map[string]*finding
}

func newFindings() *findings {
	return &findings{items: make(map[string]*finding)}
}

func (f *findings) add(tpl finding, page string) {
	existing, found := f.items[tpl.issue.Title]
	if !found {
		c := tpl
		c.issue.Pages = nil
		existing = &c
		f.items[tpl.issue.Title] = existing
		f.order = append(f.order, tpl.issue.Title)
	}
	if page != "" {
		existing.issue.Pages = append(existing.issue.Pages, page)
	}
}

func (f *findings) issues() []analysis.Issue {
	out := make([]analysis.Issue, 0, len(f.order))
	for _, title := range f.order {
		out = append(out, f.items[title].issue)
	}
	return rankIssues(out)
}

func (f *findings) recommendations() []analysis.Recommendation {
	out := make([]analysis.Recommendation, 0, len(f.order))
	for _, title := range f.order {
		item := f.items[title]
		out = append(out, recommendationFor(item.issue, categoryFor(item.issue.Type), item.steps...))
	}
	return rankRecommendations(out)
}

func categoryFor(t analysis.IssueType) analysis.Category {
	switch t {
	case analysis.IssuePerformance:
		return analysis.CategoryPerformance
	case analysis.IssueMobile:
		return analysis.CategoryMobile
	case analysis.IssueOnPage, analysis.IssueContent:
		return analysis.CategoryContent
	default:
		return analysis.CategoryTechnical
	}
}

func newFinding(t analysis.IssueType, sev analysis.Severity, impact int, effort analysis.Effort, title, description, recommendation string, steps ...string) finding {
	return finding{
		issue: analysis.Issue{
			Type:           t,
			Severity:       sev,
			Title:          title,
			Description:    description,
			Recommendation: recommendation,
			Impact:         impact,
			Effort:         effort,
		},
		steps: steps,
	}
}
