package metrics

import "time"

// BuildOutcomeLabel enumerates final build outcomes.
type BuildOutcomeLabel string

const (
	OutcomeSuccess  BuildOutcomeLabel = "success"
	OutcomeFailed   BuildOutcomeLabel = "failed"
	OutcomeTimeout  BuildOutcomeLabel = "timeout"
	OutcomeCanceled BuildOutcomeLabel = "canceled"
)

// Recorder defines observability hooks for report builds. Kind labels are the
// output kinds (html, latex, pdf).
type Recorder interface {
	ObserveBuildDuration(kind string, d time.Duration)
	IncBuildOutcome(kind string, outcome BuildOutcomeLabel)
	ObserveChangedFiles(kind string, n int)
	IncVersionCreated(kind string)
	IncUpload(accepted bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveBuildDuration(string, time.Duration) {}
func (NoopRecorder) IncBuildOutcome(string, BuildOutcomeLabel)  {}
func (NoopRecorder) ObserveChangedFiles(string, int)            {}
func (NoopRecorder) IncVersionCreated(string)                   {}
func (NoopRecorder) IncUpload(bool)                             {}
