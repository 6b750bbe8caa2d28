package eventstore

import (
	"encoding/json"
	"time"

	"git.home.luguber.info/inful/reportbuilder/internal/foundation/errors"
)

// Event type names.
const (
	TypeBuildStarted   = "BuildStarted"
	TypeBuildCompleted = "BuildCompleted"
	TypeBuildFailed    = "BuildFailed"
	TypeVersionCreated = "VersionCreated"
)

// BuildStarted is emitted when a build begins.
type BuildStarted struct {
	BaseEvent
	Kind  string `json:"kind"`
	Force bool   `json:"force"`
}

// NewBuildStarted creates a BuildStarted event.
func NewBuildStarted(unit, buildID, kind string, force bool) (*BuildStarted, error) {
	payload, err := json.Marshal(map[string]any{"kind": kind, "force": force})
	if err != nil {
		return nil, marshalError(err, TypeBuildStarted, buildID)
	}
	return &BuildStarted{
		BaseEvent: newBase(unit, buildID, TypeBuildStarted, payload),
		Kind:      kind,
		Force:     force,
	}, nil
}

// BuildCompletedMeta carries the outcome of a successful build.
type BuildCompletedMeta struct {
	Kind         string        `json:"kind"`
	Version      string        `json:"version,omitempty"`
	ChangedFiles int           `json:"changed_files"`
	Duration     time.Duration `json:"-"`
}

// BuildCompleted is emitted when the engine succeeded.
type BuildCompleted struct {
	BaseEvent
	Meta BuildCompletedMeta
}

// NewBuildCompleted creates a BuildCompleted event.
func NewBuildCompleted(unit, buildID string, meta BuildCompletedMeta) (*BuildCompleted, error) {
	payload, err := json.Marshal(map[string]any{
		"kind":          meta.Kind,
		"version":       meta.Version,
		"changed_files": meta.ChangedFiles,
		"duration_ms":   meta.Duration.Milliseconds(),
	})
	if err != nil {
		return nil, marshalError(err, TypeBuildCompleted, buildID)
	}
	return &BuildCompleted{
		BaseEvent: newBase(unit, buildID, TypeBuildCompleted, payload),
		Meta:      meta,
	}, nil
}

// BuildFailed is emitted when the engine failed, timed out or could not run.
type BuildFailed struct {
	BaseEvent
	Kind     string `json:"kind"`
	ExitCode int    `json:"exit_code"`
	TimedOut bool   `json:"timed_out"`
	Error    string `json:"error,omitempty"`
}

// NewBuildFailed creates a BuildFailed event.
func NewBuildFailed(unit, buildID, kind string, exitCode int, timedOut bool, errMsg string) (*BuildFailed, error) {
	payload, err := json.Marshal(map[string]any{
		"kind":      kind,
		"exit_code": exitCode,
		"timed_out": timedOut,
		"error":     errMsg,
	})
	if err != nil {
		return nil, marshalError(err, TypeBuildFailed, buildID)
	}
	return &BuildFailed{
		BaseEvent: newBase(unit, buildID, TypeBuildFailed, payload),
		Kind:      kind,
		ExitCode:  exitCode,
		TimedOut:  timedOut,
		Error:     errMsg,
	}, nil
}

// VersionCreated is emitted when a build stored a new numbered version.
type VersionCreated struct {
	BaseEvent
	Kind    string   `json:"kind"`
	Version string   `json:"version"`
	Files   []string `json:"files"`
}

// NewVersionCreated creates a VersionCreated event. files are relative to
// the version directory.
func NewVersionCreated(unit, buildID, kind, version string, files []string) (*VersionCreated, error) {
	payload, err := json.Marshal(map[string]any{
		"kind":    kind,
		"version": version,
		"files":   files,
	})
	if err != nil {
		return nil, marshalError(err, TypeVersionCreated, buildID)
	}
	return &VersionCreated{
		BaseEvent: newBase(unit, buildID, TypeVersionCreated, payload),
		Kind:      kind,
		Version:   version,
		Files:     files,
	}, nil
}

func newBase(unit, buildID, typ string, payload []byte) BaseEvent {
	return BaseEvent{
		EventUnit:      unit,
		EventBuildID:   buildID,
		EventType:      typ,
		EventTimestamp: time.Now(),
		EventPayload:   payload,
	}
}

func marshalError(err error, typ, buildID string) error {
	return errors.EventStoreError("failed to marshal event payload").
		WithCause(err).
		WithContext("event_type", typ).
		WithContext("build_id", buildID).
		Build()
}
