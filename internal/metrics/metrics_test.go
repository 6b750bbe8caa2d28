package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveBuildDuration("html", 500*time.Millisecond)
	pr.IncBuildOutcome("html", OutcomeSuccess)
	pr.IncBuildOutcome("pdf", OutcomeTimeout)
	pr.ObserveChangedFiles("html", 3)
	pr.IncVersionCreated("html")
	pr.IncVersionCreated("html")
	pr.IncUpload(false)

	assert.InDelta(t, 1, testutil.ToFloat64(pr.buildOutcome.WithLabelValues("pdf", "timeout")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(pr.versionsCreated.WithLabelValues("html")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.uploads.WithLabelValues("rejected")), 0)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}

func TestNilPrometheusRecorderIsSafe(t *testing.T) {
	var pr *PrometheusRecorder
	assert.NotPanics(t, func() {
		pr.ObserveBuildDuration("html", time.Second)
		pr.IncBuildOutcome("html", OutcomeFailed)
		pr.ObserveChangedFiles("html", 1)
		pr.IncVersionCreated("html")
		pr.IncUpload(true)
	})
}

func TestHTTPHandlerServesRegistry(t *testing.T) {
	reg := prom.NewRegistry()
	NewPrometheusRecorder(reg).IncVersionCreated("latex")

	rec := httptest.NewRecorder()
	HTTPHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `reportbuilder_versions_created_total{kind="latex"} 1`)
}

func TestNoopRecorderSatisfiesInterface(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.IncBuildOutcome("html", OutcomeCanceled)
}
