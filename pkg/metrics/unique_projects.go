package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type uniqueProjects struct {
	counter      prometheus.Gauge
	projectCache map[string]struct{}
	mu           sync.Mutex
}

const projectCountPerWeek = "projects_count_per_week"

var totalUniqueProjectsPerWeekMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: analysisPipeline,
		Name:      projectCountPerWeek,
		Help:      "number of distinct projects that submitted an analysis this week",
	},
)

var UniqueProjectsPerWeek = &uniqueProjects{
	counter:      totalUniqueProjectsPerWeekMetric,
	projectCache: make(map[string]struct{}),
}

func (v *uniqueProjects) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.projectCache = make(map[string]struct{})
	v.counter.Set(0)
}

func (v *uniqueProjects) Add(projectID string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, exists := v.projectCache[projectID]; exists {
		return
	}
	v.projectCache[projectID] = struct{}{}
	v.counter.Inc()
}
