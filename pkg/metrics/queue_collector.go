package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
)

// StatsSource is implemented by the job queue.
type StatsSource interface {
	Stats() analysis.QueueStats
}

type queueStatsCollector struct {
	source   StatsSource
	jobs     *prometheus.Desc
	capacity *prometheus.Desc
}

func NewQueueStatsCollector(s StatsSource) prometheus.Collector {
	fqName := func(name string) string {
		return fmt.Sprintf("%s_queue_%s", analysisPipeline, name)
	}

	return &queueStatsCollector{
		source: s,
		jobs: prometheus.NewDesc(
			fqName("jobs"),
			"Jobs held by the queue by status.",
			[]string{"status"},
			prometheus.Labels{},
		),
		capacity: prometheus.NewDesc(
			fqName("processing_capacity"),
			"Number of jobs processed at the same time.",
			nil,
			prometheus.Labels{},
		),
	}
}

func (c *queueStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.jobs
	ch <- c.capacity
}

// Collect implements Collector.
func (c *queueStatsCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Stats()
	counts := map[analysis.Status]int{
		analysis.StatusPending:    stats.Pending,
		analysis.StatusProcessing: stats.Processing,
		analysis.StatusCompleted:  stats.Completed,
		analysis.StatusFailed:     stats.Failed,
		analysis.StatusCancelled:  stats.Cancelled,
	}
	for _, status := range analysis.Statuses {
		ch <- prometheus.MustNewConstMetric(c.jobs, prometheus.GaugeValue, float64(counts[status]), string(status))
	}
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(stats.ProcessingCapacity))
}

// RegisterQueueCollector registers the queue gauges with the default registry.
func RegisterQueueCollector(s StatsSource) error {
	return prometheus.Register(NewQueueStatsCollector(s))
}
