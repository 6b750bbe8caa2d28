// Package metrics provides build observability for the report builder.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so nothing has to nil-check before recording:
//
//	m := unit.NewManager(eng).WithRecorder(metrics.NewPrometheusRecorder(reg))
//
// PrometheusRecorder registers its collectors on the supplied registry and
// HTTPHandler exposes that registry for scraping.
package metrics
