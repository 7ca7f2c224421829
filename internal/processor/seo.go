package processor

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
)

const (
	seoSecondsPerPage    = 30
	seoPerformanceExtra  = 60
	seoMobileExtra       = 60
	seoFetchConcurrency  = 4
	thinContentWordCount = 300
)

var seoHealthWeights = Weights{
	{Category: "technical", Weight: 0.35},
	{Category: "onPage", Weight: 0.30},
	{Category: "performance", Weight: 0.25},
	{Category: "mobile", Weight: 0.10},
}

var (
	findingNoHTTPS = newFinding(analysis.IssueSecurity, analysis.SeverityCritical, 90, analysis.EffortMedium,
		"Site is not served over HTTPS",
		"Pages load over plain HTTP, browsers flag them as not secure and search engines rank them lower.",
		"Serve every page over HTTPS and redirect HTTP requests permanently.",
		"Provision a TLS certificate", "Redirect all HTTP traffic with 301 responses", "Update internal links and canonical URLs to https")
	findingUnreachable = newFinding(analysis.IssueTechnical, analysis.SeverityCritical, 85, analysis.EffortMedium,
		"Page could not be fetched",
		"The page did not respond or the connection failed.",
		"Check the server and DNS configuration for the affected pages.",
		"Reproduce the failure from outside your network", "Check server and CDN logs", "Fix the origin or DNS configuration")
	findingClientError = newFinding(analysis.IssueTechnical, analysis.SeverityHigh, 75, analysis.EffortLow,
		"Page returns a client error",
		"The page answered with a 4xx status code and will drop out of the index.",
		"Restore the page or redirect it to the closest live equivalent.",
		"List the broken URLs", "Restore content or add 301 redirects", "Update links pointing at the old URLs")
	findingNoindex = newFinding(analysis.IssueTechnical, analysis.SeverityHigh, 80, analysis.EffortLow,
		"Page is excluded from indexing",
		"A robots meta tag tells search engines not to index the page.",
		"Remove the noindex directive from pages that should rank.",
		"Confirm the page should be indexed", "Remove noindex from the robots meta tag", "Request re-indexing in search console")
	findingNoCanonical = newFinding(analysis.IssueTechnical, analysis.SeverityLow, 35, analysis.EffortLow,
		"Missing canonical URL",
		"Without a canonical link, duplicate URLs compete for the same ranking.",
		"Add a self-referencing canonical link to every page.",
		"Add <link rel=\"canonical\"> to the page template", "Point it at the preferred https URL")
	findingNoLang = newFinding(analysis.IssueTechnical, analysis.SeverityLow, 20, analysis.EffortLow,
		"Missing document language",
		"The html element has no lang attribute.",
		"Declare the page language on the html element.",
		"Add lang to the root html element of the layout")
	findingNoStructuredData = newFinding(analysis.IssueTechnical, analysis.SeverityLow, 30, analysis.EffortMedium,
		"No structured data",
		"Pages carry no JSON-LD markup, so they are not eligible for rich results.",
		"Add schema.org JSON-LD describing the organisation and page content.",
		"Pick schema.org types for each template", "Emit JSON-LD in the page head", "Validate with a rich results test")
	findingNoTitle = newFinding(analysis.IssueOnPage, analysis.SeverityHigh, 80, analysis.EffortLow,
		"Missing page title",
		"The page has no title element, search results will show a generated one.",
		"Write a unique descriptive title for the page.",
		"Write a title of 10 to 60 characters", "Lead with the primary keyword")
	findingTitleLength = newFinding(analysis.IssueOnPage, analysis.SeverityMedium, 50, analysis.EffortLow,
		"Title length outside 10-60 characters",
		"Titles that are too short say little and long ones are truncated in results.",
		"Rewrite the title to between 10 and 60 characters.",
		"Rewrite the title to 10 to 60 characters", "Keep the primary keyword near the start")
	findingNoMetaDescription = newFinding(analysis.IssueOnPage, analysis.SeverityHigh, 70, analysis.EffortLow,
		"Missing meta description",
		"Without a meta description search engines pick arbitrary page text for the snippet.",
		"Add a compelling meta description to each page.",
		"Write a 50 to 160 character summary per page", "Include a call to action", "Add it as <meta name=\"description\">")
	findingMetaDescriptionLength = newFinding(analysis.IssueOnPage, analysis.SeverityLow, 35, analysis.EffortLow,
		"Meta description length outside 50-160 characters",
		"Descriptions that are too short or too long produce poor snippets.",
		"Rewrite the meta description to between 50 and 160 characters.",
		"Rewrite the description to 50 to 160 characters")
	findingNoH1 = newFinding(analysis.IssueOnPage, analysis.SeverityMedium, 55, analysis.EffortLow,
		"Missing H1 heading",
		"The page has no main heading describing its topic.",
		"Add a single H1 that states the page topic.",
		"Add one H1 per page", "Include the primary keyword in it")
	findingMultipleH1 = newFinding(analysis.IssueOnPage, analysis.SeverityLow, 30, analysis.EffortLow,
		"Multiple H1 headings",
		"Several H1 headings dilute the main topic of the page.",
		"Keep one H1 and demote the others to H2.",
		"Keep the most descriptive H1", "Demote the others to H2")
	findingMissingAlt = newFinding(analysis.IssueOnPage, analysis.SeverityMedium, 45, analysis.EffortLow,
		"Images without alt text",
		"Images lack alt attributes, hurting accessibility and image search.",
		"Describe every meaningful image in its alt attribute.",
		"List images without alt", "Write short descriptive alt text", "Use alt=\"\" for decorative images")
	findingThinContent = newFinding(analysis.IssueContent, analysis.SeverityMedium, 50, analysis.EffortMedium,
		"Thin content",
		fmt.Sprintf("The page has fewer than %d words of visible text.", thinContentWordCount),
		"Expand the page with substantive content that answers user intent.",
		"Research the questions the page should answer", "Expand the copy to at least 300 words", "Add supporting media and internal links")
	findingSlowResponse = newFinding(analysis.IssuePerformance, analysis.SeverityHigh, 70, analysis.EffortMedium,
		"Slow server response",
		"The server takes more than a second to respond.",
		"Reduce server response time with caching and a CDN.",
		"Enable full-page caching", "Serve static assets from a CDN", "Profile slow backend queries")
	findingModerateResponse = newFinding(analysis.IssuePerformance, analysis.SeverityMedium, 45, analysis.EffortMedium,
		"Server response above 600ms",
		"Response time is noticeable to users and crawlers.",
		"Tune caching to bring response time under 600ms.",
		"Enable caching for anonymous traffic", "Check hosting capacity")
	findingHeavyPage = newFinding(analysis.IssuePerformance, analysis.SeverityMedium, 50, analysis.EffortMedium,
		"Heavy page",
		"The HTML document is larger than 2MB.",
		"Trim inline data and markup to reduce document size.",
		"Remove inlined assets", "Paginate or lazy-load long lists")
	findingBlockingScripts = newFinding(analysis.IssuePerformance, analysis.SeverityMedium, 45, analysis.EffortMedium,
		"Render-blocking scripts",
		"Scripts in the head load synchronously and delay rendering.",
		"Load scripts with async or defer.",
		"Audit scripts in the head", "Add defer to non-critical scripts", "Move the rest to the end of the body")
	findingNoCompression = newFinding(analysis.IssuePerformance, analysis.SeverityMedium, 40, analysis.EffortLow,
		"Response not compressed",
		"HTML is served without gzip or brotli compression.",
		"Enable gzip or brotli compression on the web server.",
		"Enable compression for text/html", "Verify Content-Encoding in responses")
	findingImagesNoSize = newFinding(analysis.IssuePerformance, analysis.SeverityLow, 30, analysis.EffortLow,
		"Images without dimensions",
		"Images lack width and height, causing layout shifts while loading.",
		"Set explicit width and height on images.",
		"Add width and height attributes to img tags")
	findingNoViewport = newFinding(analysis.IssueMobile, analysis.SeverityHigh, 75, analysis.EffortLow,
		"Missing mobile viewport",
		"Without a viewport meta tag mobile browsers render the desktop layout.",
		"Add a device-width viewport meta tag.",
		"Add <meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">")
	findingFixedViewport = newFinding(analysis.IssueMobile, analysis.SeverityMedium, 55, analysis.EffortLow,
		"Fixed-width viewport",
		"The viewport is pinned to a fixed width instead of the device width.",
		"Use width=device-width in the viewport meta tag.",
		"Replace the fixed width with width=device-width")
	findingNoResponsiveImages = newFinding(analysis.IssueMobile, analysis.SeverityLow, 30, analysis.EffortMedium,
		"Images not responsive",
		"Images have no srcset, so phones download desktop-sized files.",
		"Serve responsive images with srcset and sizes.",
		"Generate image variants", "Add srcset and sizes attributes")
	findingFixedWidths = newFinding(analysis.IssueMobile, analysis.SeverityLow, 25, analysis.EffortMedium,
		"Fixed pixel widths in markup",
		"Inline styles set pixel widths that overflow small screens.",
		"Replace fixed pixel widths with responsive CSS.",
		"Find inline width styles", "Move layout to responsive CSS")
	findingNoTouchIcon = newFinding(analysis.IssueMobile, analysis.SeverityLow, 15, analysis.EffortLow,
		"Missing touch icon",
		"No apple-touch-icon is declared for home screen shortcuts.",
		"Add an apple-touch-icon link.",
		"Export a 180x180 icon", "Reference it with rel=\"apple-touch-icon\"")
)

// SEOHealthProcessor scores the technical, on-page, performance and mobile health of a set
// of pages.
type SEOHealthProcessor struct {
	fetcher SiteFetcher
}

var _ Processor = (*SEOHealthProcessor)(nil)

func NewSEOHealthProcessor(fetcher SiteFetcher) *SEOHealthProcessor {
	return &SEOHealthProcessor{fetcher: fetcher}
}

func (p *SEOHealthProcessor) Type() analysis.JobType {
	return analysis.JobTypeSEOHealth
}

func (p *SEOHealthProcessor) Validate(data analysis.JobData) error {
	return analysis.Validate(p.Type(), data)
}

func (p *SEOHealthProcessor) EstimateProcessingTime(data analysis.JobData) time.Duration {
	params, ok := paramsOf[analysis.SEOHealthParams](data)
	if !ok {
		return 0
	}
	seconds := seoSecondsPerPage * len(params.Pages)
	if params.IncludePerformance {
		seconds += seoPerformanceExtra
	}
	if params.IncludeMobile {
		seconds += seoMobileExtra
	}
	return time.Duration(seconds) * time.Second
}

func (p *SEOHealthProcessor) Contract() Contract {
	return Contract{
		Type:     p.Type(),
		Weights:  seoHealthWeights,
		Estimate: "30s per page, +60s with includePerformance, +60s with includeMobile",
	}
}

func (p *SEOHealthProcessor) Process(ctx context.Context, job *analysis.Job, progress ProgressFunc) (*analysis.JobResult, error) {
	started := time.Now()
	if progress == nil {
		progress = noProgress
	}
	params, ok := paramsOf[analysis.SEOHealthParams](job.Data)
	if !ok {
		return nil, fmt.Errorf("seo-health job %s carries %T params", job.ID, job.Data.Params)
	}
	if err := p.Validate(job.Data); err != nil {
		return analysis.Failed(err.Error(), false), nil
	}

	progress(10, fmt.Sprintf("fetching %d pages", len(params.Pages)))
	urls := make([]string, len(params.Pages))
	for i, path := range params.Pages {
		urls[i] = resolve(params.WebsiteURL, path)
	}
	pages, errs := fetchAll(ctx, p.fetcher, urls, seoFetchConcurrency)

	var firstErr error
	reachable := 0
	for i := range pages {
		if errs[i] != nil {
			if firstErr == nil {
				firstErr = errs[i]
			}
			continue
		}
		reachable++
	}
	if reachable == 0 {
		return analysis.Failed(fmt.Sprintf("no page of %s could be fetched: %v", params.WebsiteURL, firstErr), IsRetryable(firstErr)), nil
	}

	progress(50, "scoring pages")
	f := newFindings()
	var technical, onPage, performance, mobile []int
	summaries := make([]PageSummary, 0, len(pages))
	bytes := 0

	for i, page := range pages {
		path := params.Pages[i]
		if errs[i] != nil {
			f.add(findingUnreachable, path)
			technical = append(technical, 0)
			summaries = append(summaries, PageSummary{Path: path})
			continue
		}
		bytes += page.Bytes
		summaries = append(summaries, PageSummary{
			Path:         path,
			StatusCode:   page.StatusCode,
			ResponseTime: page.ResponseTime.Milliseconds(),
			Reachable:    true,
		})

		technical = append(technical, scoreTechnical(page, path, f))
		if !page.OK() {
			continue
		}
		onPage = append(onPage, scoreOnPage(page, path, f))
		performance = append(performance, scorePagePerformance(page, path, params.IncludePerformance, f))
		mobile = append(mobile, scoreMobile(page, path, params.IncludeMobile, f))
	}

	progress(90, "building recommendations")
	report := &SEOHealthReport{
		Technical:     average(technical),
		OnPage:        average(onPage),
		Performance:   average(performance),
		Mobile:        average(mobile),
		PagesAnalyzed: reachable,
		Pages:         summaries,
	}
	report.OverallScore = seoHealthWeights.Overall(report.Scores())
	report.Issues = f.issues()
	report.CriticalIssues = criticalIssues(report.Issues)
	report.Recommendations = f.recommendations()

	return analysis.Succeeded(report, &analysis.Metadata{
		ProcessingTime: time.Since(started),
		ResourcesUsed:  map[string]int{"pages": len(pages), "bytes": bytes},
		QualityScore:   ratioScore(reachable, len(pages)),
	}), nil
}

func scoreTechnical(page *Page, path string, f *findings) int {
	score := 0
	if page.HTTPS {
		score += 25
	} else {
		f.add(findingNoHTTPS, path)
	}
	if !page.OK() {
		f.add(findingClientError, path)
		return score
	}
	score += 25
	if page.Noindex() {
		f.add(findingNoindex, path)
	} else {
		score += 15
	}
	if page.Canonical != "" {
		score += 15
	} else {
		f.add(findingNoCanonical, path)
	}
	if page.Lang != "" {
		score += 10
	} else {
		f.add(findingNoLang, path)
	}
	if page.StructuredData {
		score += 10
	} else {
		f.add(findingNoStructuredData, path)
	}
	return score
}

func scoreOnPage(page *Page, path string, f *findings) int {
	score := 0
	switch n := utf8.RuneCountInString(page.Title); {
	case n == 0:
		f.add(findingNoTitle, path)
	case n < 10 || n > 60:
		score += 12
		f.add(findingTitleLength, path)
	default:
		score += 25
	}
	switch n := utf8.RuneCountInString(page.MetaDescription); {
	case n == 0:
		f.add(findingNoMetaDescription, path)
	case n < 50 || n > 160:
		score += 12
		f.add(findingMetaDescriptionLength, path)
	default:
		score += 25
	}
	switch len(page.H1) {
	case 0:
		f.add(findingNoH1, path)
	case 1:
		score += 20
	default:
		score += 10
		f.add(findingMultipleH1, path)
	}
	if page.ImagesMissingAlt > 0 {
		f.add(findingMissingAlt, path)
	}
	score += ratioScore(page.Images-page.ImagesMissingAlt, page.Images) * 15 / 100
	switch {
	case page.WordCount >= thinContentWordCount:
		score += 15
	case page.WordCount >= thinContentWordCount/2:
		score += 8
		f.add(findingThinContent, path)
	default:
		f.add(findingThinContent, path)
	}
	return clamp(score, 0, 100)
}

func scorePagePerformance(page *Page, path string, deep bool, f *findings) int {
	response := bandScore(float64(page.ResponseTime.Milliseconds()), 200, 2000)
	load := bandScore(float64(page.LoadTime.Milliseconds()), 500, 4000)
	size := bandScore(float64(page.Bytes), 500<<10, 3<<20)
	score := float64(response)*0.5 + float64(load)*0.3 + float64(size)*0.2

	switch ms := page.ResponseTime.Milliseconds(); {
	case ms > 1000:
		f.add(findingSlowResponse, path)
	case ms > 600:
		f.add(findingModerateResponse, path)
	}
	if page.Bytes > 2<<20 {
		f.add(findingHeavyPage, path)
	}

	if deep {
		if page.BlockingScripts > 0 {
			score -= float64(min(page.BlockingScripts*5, 20))
			f.add(findingBlockingScripts, path)
		}
		if !page.Compressed {
			score -= 10
			f.add(findingNoCompression, path)
		}
		if page.ImagesMissingSize > 0 {
			score -= float64(min(page.ImagesMissingSize*2, 10))
			f.add(findingImagesNoSize, path)
		}
	}
	return clampScore(score)
}

func scoreMobile(page *Page, path string, deep bool, f *findings) int {
	var viewport int
	switch {
	case page.MobileViewport():
		viewport = 100
	case page.FixedViewport:
		viewport = 30
		f.add(findingFixedViewport, path)
	default:
		f.add(findingNoViewport, path)
	}
	if !deep {
		return viewport
	}

	score := viewport / 2
	switch {
	case page.Images == 0:
		score += 20
	case page.ResponsiveImages == 0:
		f.add(findingNoResponsiveImages, path)
	default:
		score += ratioScore(page.ResponsiveImages, page.Images) * 20 / 100
	}
	if page.InlineStyleWidths == 0 {
		score += 20
	} else {
		score += max(20-4*page.InlineStyleWidths, 0)
		f.add(findingFixedWidths, path)
	}
	if page.TouchIcon {
		score += 10
	} else {
		f.add(findingNoTouchIcon, path)
	}
	return clamp(score, 0, 100)
}
