package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "reportbuilder"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	buildDuration   *prom.HistogramVec
	buildOutcome    *prom.CounterVec
	changedFiles    *prom.HistogramVec
	versionsCreated *prom.CounterVec
	uploads         *prom.CounterVec
}

// NewPrometheusRecorder constructs the collectors and registers them on reg.
// A nil registry gets a fresh private one.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		buildDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Duration of report builds by output kind",
			Buckets:   prom.DefBuckets,
		}, []string{"kind"}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by output kind and final status",
		}, []string{"kind", "outcome"}),
		changedFiles: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_changed_files",
			Help:      "Number of output files changed by a successful build",
			Buckets:   []float64{0, 1, 5, 10, 50, 100, 500},
		}, []string{"kind"}),
		versionsCreated: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "versions_created_total",
			Help:      "Version directories created by output kind",
		}, []string{"kind"}),
		uploads: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Figure uploads by acceptance",
		}, []string{"result"}),
	}
	reg.MustRegister(pr.buildDuration, pr.buildOutcome, pr.changedFiles, pr.versionsCreated, pr.uploads)
	return pr
}

func (p *PrometheusRecorder) ObserveBuildDuration(kind string, d time.Duration) {
	if p == nil || p.buildDuration == nil {
		return
	}
	p.buildDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(kind string, outcome BuildOutcomeLabel) {
	if p == nil || p.buildOutcome == nil {
		return
	}
	p.buildOutcome.WithLabelValues(kind, string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveChangedFiles(kind string, n int) {
	if p == nil || p.changedFiles == nil {
		return
	}
	p.changedFiles.WithLabelValues(kind).Observe(float64(n))
}

func (p *PrometheusRecorder) IncVersionCreated(kind string) {
	if p == nil || p.versionsCreated == nil {
		return
	}
	p.versionsCreated.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) IncUpload(accepted bool) {
	if p == nil || p.uploads == nil {
		return
	}
	res := "rejected"
	if accepted {
		res = "accepted"
	}
	p.uploads.WithLabelValues(res).Inc()
}
