package processor

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
)

const performanceSecondsPerRun = 20

var performanceWeights = Weights{
	{Category: "speed", Weight: 0.40},
	{Category: "interactivity", Weight: 0.25},
	{Category: "stability", Weight: 0.20},
	{Category: "efficiency", Weight: 0.15},
}

// deviceProfile models how a device class stretches a desktop measurement.
type deviceProfile struct {
	cpu        float64
	throughput float64 // bytes per millisecond
}

var deviceProfiles = map[analysis.Device]deviceProfile{
	analysis.DeviceDesktop: {cpu: 1.0, throughput: 1250},
	analysis.DeviceTablet:  {cpu: 1.4, throughput: 625},
	analysis.DeviceMobile:  {cpu: 2.0, throughput: 200},
}

// locationRTT is the round trip added per test location, in milliseconds.
var locationRTT = map[string]int64{
	"us-east":      20,
	"us-west":      60,
	"us-central":   40,
	"eu-west":      80,
	"eu-central":   90,
	"eu-north":     100,
	"ap-southeast": 180,
	"ap-northeast": 150,
	"ap-south":     190,
	"sa-east":      140,
	"af-south":     210,
	"me-central":   160,
}

const defaultLocationRTT = 100

var (
	findingPoorLCP = newFinding(analysis.IssuePerformance, analysis.SeverityHigh, 80, analysis.EffortHigh,
		"Largest contentful paint above 4s",
		"The main content takes more than four seconds to render on at least one device.",
		"Cut render time by shrinking the critical path: server response, render-blocking resources and payload size.",
		"Preload the hero image and critical fonts", "Inline critical CSS", "Defer non-essential scripts", "Serve assets from a CDN")
	findingSlowLCP = newFinding(analysis.IssuePerformance, analysis.SeverityMedium, 55, analysis.EffortMedium,
		"Largest contentful paint above 2.5s",
		"The main content renders slower than the recommended 2.5 seconds.",
		"Optimise images and the critical rendering path.",
		"Compress and resize images", "Preload the largest above-the-fold element")
	findingPoorFID = newFinding(analysis.IssuePerformance, analysis.SeverityHigh, 70, analysis.EffortHigh,
		"Input delay above 300ms",
		"Heavy JavaScript keeps the main thread busy and delays interaction.",
		"Reduce and split JavaScript so the page responds quickly.",
		"Audit third-party scripts", "Code-split large bundles", "Defer work until after first input")
	findingSlowFID = newFinding(analysis.IssuePerformance, analysis.SeverityMedium, 45, analysis.EffortMedium,
		"Input delay above 100ms",
		"Script execution delays the first interaction on slower devices.",
		"Trim JavaScript executed during load.",
		"Remove unused scripts", "Load widgets on interaction")
	findingPoorCLS = newFinding(analysis.IssuePerformance, analysis.SeverityHigh, 65, analysis.EffortMedium,
		"Layout shift above 0.25",
		"Content moves while the page loads, frustrating users.",
		"Reserve space for images, embeds and late content.",
		"Set width and height on media", "Reserve space for ads and embeds", "Avoid inserting content above existing content")
	findingSlowCLS = newFinding(analysis.IssuePerformance, analysis.SeverityMedium, 40, analysis.EffortLow,
		"Layout shift above 0.1",
		"Some elements shift after first render.",
		"Give media explicit dimensions.",
		"Add width and height attributes to images")
	findingSlowTTFB = newFinding(analysis.IssuePerformance, analysis.SeverityHigh, 60, analysis.EffortMedium,
		"Time to first byte above 1.8s",
		"The server responds slowly from at least one test location.",
		"Cache responses and serve them close to users.",
		"Enable edge caching", "Add CDN points of presence near your audience")
	findingTooManyRequests = newFinding(analysis.IssuePerformance, analysis.SeverityLow, 30, analysis.EffortMedium,
		"Too many scripts and stylesheets",
		"The page references more than 25 scripts and stylesheets.",
		"Bundle and remove unused assets.",
		"Remove unused libraries", "Bundle remaining assets")
)

// PerformanceProcessor estimates Core Web Vitals for every page, device and location.
type PerformanceProcessor struct {
	fetcher SiteFetcher
}

var _ Processor = (*PerformanceProcessor)(nil)

func NewPerformanceProcessor(fetcher SiteFetcher) *PerformanceProcessor {
	return &PerformanceProcessor{fetcher: fetcher}
}

func (p *PerformanceProcessor) Type() analysis.JobType {
	return analysis.JobTypePerformance
}

func (p *PerformanceProcessor) Validate(data analysis.JobData) error {
	return analysis.Validate(p.Type(), data)
}

func (p *PerformanceProcessor) EstimateProcessingTime(data analysis.JobData) time.Duration {
	params, ok := paramsOf[analysis.PerformanceParams](data)
	if !ok {
		return 0
	}
	runs := len(params.Pages) * len(params.Devices) * len(params.Locations)
	return time.Duration(performanceSecondsPerRun*runs) * time.Second
}

func (p *PerformanceProcessor) Contract() Contract {
	return Contract{
		Type:     p.Type(),
		Weights:  performanceWeights,
		Estimate: "20s per page, device and location combination",
	}
}

func (p *PerformanceProcessor) Process(ctx context.Context, job *analysis.Job, progress ProgressFunc) (*analysis.JobResult, error) {
	started := time.Now()
	if progress == nil {
		progress = noProgress
	}
	params, ok := paramsOf[analysis.PerformanceParams](job.Data)
	if !ok {
		return nil, fmt.Errorf("performance job %s carries %T params", job.ID, job.Data.Params)
	}
	if err := p.Validate(job.Data); err != nil {
		return analysis.Failed(err.Error(), false), nil
	}

	progress(10, fmt.Sprintf("measuring %d pages", len(params.Pages)))
	urls := make([]string, len(params.Pages))
	for i, path := range params.Pages {
		urls[i] = resolve(params.WebsiteURL, path)
	}
	pages, errs := fetchAll(ctx, p.fetcher, urls, seoFetchConcurrency)

	f := newFindings()
	var measurements []Measurement
	var firstErr error
	bytes := 0
	for i, page := range pages {
		path := params.Pages[i]
		if errs[i] != nil {
			if firstErr == nil {
				firstErr = errs[i]
			}
			f.add(findingUnreachable, path)
			continue
		}
		if !page.OK() {
			f.add(findingClientError, path)
			continue
		}
		bytes += page.Bytes
		if page.Scripts+page.Stylesheets > 25 {
			f.add(findingTooManyRequests, path)
		}
		if !page.Compressed {
			f.add(findingNoCompression, path)
		}
		for _, device := range params.Devices {
			for _, location := range params.Locations {
				m := measure(page, path, device, location)
				flagVitals(m, f)
				measurements = append(measurements, m)
			}
		}
	}
	if len(measurements) == 0 {
		if firstErr != nil {
			return analysis.Failed(fmt.Sprintf("no page of %s could be measured: %v", params.WebsiteURL, firstErr), IsRetryable(firstErr)), nil
		}
		return analysis.Failed(fmt.Sprintf("no page of %s returned a successful response", params.WebsiteURL), false), nil
	}

	progress(70, "aggregating measurements")
	report := aggregateMeasurements(measurements)
	report.Issues = f.issues()
	report.Recommendations = f.recommendations()

	return analysis.Succeeded(report, &analysis.Metadata{
		ProcessingTime: time.Since(started),
		ResourcesUsed:  map[string]int{"pages": len(pages), "measurements": len(measurements), "bytes": bytes},
		QualityScore:   ratioScore(len(measurements), len(pages)*len(params.Devices)*len(params.Locations)),
	}), nil
}

func measure(page *Page, path string, device analysis.Device, location string) Measurement {
	profile, found := deviceProfiles[device]
	if !found {
		profile = deviceProfiles[analysis.DeviceDesktop]
	}
	rtt, found := locationRTT[strings.ToLower(location)]
	if !found {
		rtt = defaultLocationRTT
	}

	ttfb := page.ResponseTime.Milliseconds() + 2*rtt
	transfer := int64(float64(page.Bytes) / profile.throughput)
	render := int64(float64(page.Scripts*30+page.Stylesheets*20+page.BlockingScripts*60) * profile.cpu)
	lcp := ttfb + transfer + render
	fid := int64(float64(page.Scripts*12+page.BlockingScripts*40) * profile.cpu)
	cls := math.Min(1, float64(page.ImagesMissingSize)*0.04)
	if device != analysis.DeviceDesktop && !page.MobileViewport() {
		cls = math.Min(1, cls+0.15)
	}

	vitals := CoreWebVitals{LCP: lcp, FID: fid, CLS: math.Round(cls*1000) / 1000, TTFB: ttfb}
	scores := vitalScores(vitals, page)
	return Measurement{
		Path:     path,
		Device:   device,
		Location: location,
		Score:    performanceWeights.Overall(scores),
		Scores:   scores,
		Vitals:   vitals,
		Bytes:    page.Bytes,
	}
}

func vitalScores(v CoreWebVitals, page *Page) map[string]int {
	lcp := bandScore(float64(v.LCP), 2500, 6000)
	ttfb := bandScore(float64(v.TTFB), 800, 1800)
	compressed := 0
	if page.Compressed {
		compressed = 100
	}
	efficiency := float64(bandScore(float64(page.Bytes), 500<<10, 3<<20))*0.5 +
		float64(compressed)*0.25 +
		float64(bandScore(float64(page.Scripts+page.Stylesheets), 10, 40))*0.25

	return map[string]int{
		"speed":         clampScore(float64(lcp)*0.7 + float64(ttfb)*0.3),
		"interactivity": bandScore(float64(v.FID), 100, 300),
		"stability":     bandScore(v.CLS, 0.1, 0.25),
		"efficiency":    clampScore(efficiency),
	}
}

func flagVitals(m Measurement, f *findings) {
	switch {
	case m.Vitals.LCP > 4000:
		f.add(findingPoorLCP, m.Path)
	case m.Vitals.LCP > 2500:
		f.add(findingSlowLCP, m.Path)
	}
	switch {
	case m.Vitals.FID > 300:
		f.add(findingPoorFID, m.Path)
	case m.Vitals.FID > 100:
		f.add(findingSlowFID, m.Path)
	}
	switch {
	case m.Vitals.CLS > 0.25:
		f.add(findingPoorCLS, m.Path)
	case m.Vitals.CLS > 0.1:
		f.add(findingSlowCLS, m.Path)
	}
	if m.Vitals.TTFB > 1800 {
		f.add(findingSlowTTFB, m.Path)
	}
}

func aggregateMeasurements(ms []Measurement) *PerformanceReport {
	var speed, interactivity, stability, efficiency []int
	var lcp, fid, ttfb int64
	var cls float64
	perDevice := map[analysis.Device][]int{}

	for _, m := range ms {
		s := m.Scores
		speed = append(speed, s["speed"])
		interactivity = append(interactivity, s["interactivity"])
		stability = append(stability, s["stability"])
		efficiency = append(efficiency, s["efficiency"])
		lcp += m.Vitals.LCP
		fid += m.Vitals.FID
		ttfb += m.Vitals.TTFB
		cls += m.Vitals.CLS
		perDevice[m.Device] = append(perDevice[m.Device], m.Score)
	}

	n := int64(len(ms))
	report := &PerformanceReport{
		Speed:         average(speed),
		Interactivity: average(interactivity),
		Stability:     average(stability),
		Efficiency:    average(efficiency),
		Vitals: CoreWebVitals{
			LCP:  lcp / n,
			FID:  fid / n,
			TTFB: ttfb / n,
			CLS:  math.Round(cls/float64(n)*1000) / 1000,
		},
		DeviceScores: make(map[analysis.Device]int, len(perDevice)),
		Measurements: ms,
	}
	for device, scores := range perDevice {
		report.DeviceScores[device] = average(scores)
	}
	report.OverallScore = performanceWeights.Overall(report.Scores())

	sort.SliceStable(report.Measurements, func(i, j int) bool {
		return report.Measurements[i].Score < report.Measurements[j].Score
	})
	return report
}
