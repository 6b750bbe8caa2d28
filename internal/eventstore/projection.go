package eventstore

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	buildStatusRunning   = "running"
	buildStatusCompleted = "completed"
	buildStatusFailed    = "failed"
	buildStatusTimeout   = "timeout"
)

// BuildSummary is a read model summarizing one build.
type BuildSummary struct {
	BuildID      string     `json:"build_id"`
	Unit         string     `json:"unit"`
	Kind         string     `json:"kind"`
	Status       string     `json:"status"` // running, completed, failed, timeout
	Force        bool       `json:"force"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	DurationMS   int64      `json:"duration_ms,omitempty"`
	ExitCode     int        `json:"exit_code"`
	Version      string     `json:"version,omitempty"`
	ChangedFiles int        `json:"changed_files"`
	VersionFiles []string   `json:"version_files,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// Summarize folds events into one summary per build, newest first.
func Summarize(events []Event) []*BuildSummary {
	builds := map[string]*BuildSummary{}
	for _, e := range events {
		apply(builds, e)
	}
	out := make([]*BuildSummary, 0, len(builds))
	for _, s := range builds {
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

func apply(builds map[string]*BuildSummary, event Event) {
	buildID := event.BuildID()
	if buildID == "" {
		return
	}
	summary, ok := builds[buildID]
	if !ok {
		summary = &BuildSummary{
			BuildID:   buildID,
			Unit:      event.Unit(),
			Status:    buildStatusRunning,
			StartedAt: event.Timestamp(),
		}
		builds[buildID] = summary
	}

	switch event.Type() {
	case TypeBuildStarted:
		summary.StartedAt = event.Timestamp()
		var payload struct {
			Kind  string `json:"kind"`
			Force bool   `json:"force"`
		}
		if err := json.Unmarshal(event.Payload(), &payload); err == nil {
			summary.Kind = payload.Kind
			summary.Force = payload.Force
		}

	case TypeBuildCompleted:
		finish(summary, event.Timestamp())
		summary.Status = buildStatusCompleted
		var payload struct {
			Kind         string `json:"kind"`
			Version      string `json:"version"`
			ChangedFiles int    `json:"changed_files"`
			DurationMS   int64  `json:"duration_ms"`
		}
		if err := json.Unmarshal(event.Payload(), &payload); err == nil {
			summary.Kind = payload.Kind
			summary.Version = payload.Version
			summary.ChangedFiles = payload.ChangedFiles
			if payload.DurationMS > 0 {
				summary.DurationMS = payload.DurationMS
			}
		}

	case TypeBuildFailed:
		finish(summary, event.Timestamp())
		summary.Status = buildStatusFailed
		var payload struct {
			Kind     string `json:"kind"`
			ExitCode int    `json:"exit_code"`
			TimedOut bool   `json:"timed_out"`
			Error    string `json:"error"`
		}
		if err := json.Unmarshal(event.Payload(), &payload); err == nil {
			summary.Kind = payload.Kind
			summary.ExitCode = payload.ExitCode
			summary.ErrorMessage = payload.Error
			if payload.TimedOut {
				summary.Status = buildStatusTimeout
			}
		}

	case TypeVersionCreated:
		applyVersion(summary, event)
	}
}

func applyVersion(summary *BuildSummary, event Event) {
	var payload struct {
		Kind    string   `json:"kind"`
		Version string   `json:"version"`
		Files   []string `json:"files"`
	}
	if err := json.Unmarshal(event.Payload(), &payload); err != nil {
		return
	}
	if summary.Kind == "" {
		summary.Kind = payload.Kind
	}
	summary.Version = payload.Version
	summary.VersionFiles = payload.Files
}

func finish(s *BuildSummary, at time.Time) {
	s.CompletedAt = &at
	s.DurationMS = at.Sub(s.StartedAt).Milliseconds()
}
