// Package responses defines API response types used by the report HTTP handlers.
package responses

import (
	"time"

	"git.home.luguber.info/inful/reportbuilder/internal/eventstore"
	"git.home.luguber.info/inful/reportbuilder/internal/reports"
	"git.home.luguber.info/inful/reportbuilder/internal/sourcerepo"
	"git.home.luguber.info/inful/reportbuilder/internal/unit"
)

// HealthResponse represents the health check API response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    float64   `json:"uptime"`
}

// ReportListResponse lists the provisioned reports.
type ReportListResponse struct {
	Reports []reports.Summary `json:"reports"`
}

// BuildResponse is returned by the build endpoint.
type BuildResponse struct {
	*reports.BuildResult
	DurationMS int64 `json:"duration_ms"`
}

// SaveSourceRequest is the body of a source update.
type SaveSourceRequest struct {
	SourceText  string `json:"source_text"`
	AuthorName  string `json:"author_name,omitempty"`
	AuthorEmail string `json:"author_email,omitempty"`
}

// SaveSourceResponse reports whether the edit produced a commit.
type SaveSourceResponse struct {
	Committed bool   `json:"committed"`
	Commit    string `json:"commit,omitempty"`
}

// SourceResponse carries the master source text.
type SourceResponse struct {
	Unit       string `json:"unit"`
	Commit     string `json:"commit,omitempty"`
	SourceText string `json:"source_text"`
}

// CommitsResponse lists source commits, newest first.
type CommitsResponse struct {
	Unit    string              `json:"unit"`
	Commits []sourcerepo.Commit `json:"commits"`
}

// VersionsResponse lists the versions of one output kind.
type VersionsResponse struct {
	Unit     string         `json:"unit"`
	Kind     unit.Kind      `json:"kind"`
	Versions []unit.Version `json:"versions"`
}

// LogsResponse carries the last build log of a kind.
type LogsResponse struct {
	Unit   string    `json:"unit"`
	Kind   unit.Kind `json:"kind"`
	Log    string    `json:"log"`
	Errors []string  `json:"errors"`
}

// HistoryResponse lists recent builds of a unit.
type HistoryResponse struct {
	Unit   string                     `json:"unit"`
	Builds []*eventstore.BuildSummary `json:"builds"`
}
