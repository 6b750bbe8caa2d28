package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/reportbuilder/internal/eventstore"
	derrors "git.home.luguber.info/inful/reportbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/reportbuilder/internal/reports"
	"git.home.luguber.info/inful/reportbuilder/internal/server/responses"
	"git.home.luguber.info/inful/reportbuilder/internal/sourcerepo"
	"git.home.luguber.info/inful/reportbuilder/internal/unit"
)

// stubService answers MainArtifact and History; everything else is unused.
type stubService struct {
	ReportService
	artifact    string
	artifactErr error
	limit       int
}

func (s *stubService) MainArtifact(context.Context, string, unit.Kind) (string, error) {
	return s.artifact, s.artifactErr
}

func (s *stubService) History(_ context.Context, _ string, limit int) ([]*eventstore.BuildSummary, error) {
	s.limit = limit
	return []*eventstore.BuildSummary{}, nil
}

func (s *stubService) Commits(string, int) ([]sourcerepo.Commit, error) { return nil, nil }

func serve(h http.HandlerFunc, pattern, target string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestContentServesPDFDirectly(t *testing.T) {
	pdf := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.5"), 0o600))
	h := NewReportHandlers(&stubService{artifact: pdf}, nil)

	rec := serve(h.HandleContent, "GET /api/reports/{unit}/content/{kind}", "/api/reports/net1/content/pdf")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, "%PDF-1.5", string(body))
}

func TestContentRedirectsHTML(t *testing.T) {
	h := NewReportHandlers(&stubService{artifact: "/data/net 1/build/html/report.html"}, nil)
	rec := serve(h.HandleContent, "GET /api/reports/{unit}/content/{kind}", "/api/reports/net%201/content/html")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/api/reports/net%201/content/html/report.html", rec.Header().Get("Location"))
}

func TestContentBuildFailureIsUnprocessable(t *testing.T) {
	failure := derrors.BuildFailure("build failed", 2).WithContext("unit", "net1").Build()
	h := NewReportHandlers(&stubService{artifactErr: failure}, nil)

	rec := serve(h.HandleContent, "GET /api/reports/{unit}/content/{kind}", "/api/reports/net1/content/latex")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body derrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "build failed", body.Error)
	assert.InDelta(t, 2, body.Details["exit_code"], 0)
}

func TestLimitParsing(t *testing.T) {
	svc := &stubService{}
	h := NewReportHandlers(svc, nil)
	pattern := "GET /api/reports/{unit}/history"

	rec := serve(h.HandleHistory, pattern, "/api/reports/net1/history")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultListLimit, svc.limit)

	rec = serve(h.HandleHistory, pattern, "/api/reports/net1/history?limit=100000")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxListLimit, svc.limit)

	rec = serve(h.HandleHistory, pattern, "/api/reports/net1/history?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPrettyJSON(t *testing.T) {
	h := NewReportHandlers(&stubService{}, nil)
	rec := serve(h.HandleCommits, "GET /api/reports/{unit}/commits", "/api/reports/net1/commits?pretty=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "\n  \"unit\": \"net1\"")
}

func TestHealthCheck(t *testing.T) {
	h := NewMonitoringHandlers(time.Now().Add(-time.Minute), nil)
	rec := httptest.NewRecorder()
	h.HandleHealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health responses.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.GreaterOrEqual(t, health.Uptime, 60.0)

	rec = httptest.NewRecorder()
	h.HandleMetrics(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

var _ ReportService = (*reports.Service)(nil)
