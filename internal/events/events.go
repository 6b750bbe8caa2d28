// Package events publishes build notifications for other services.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	derrors "git.home.luguber.info/inful/reportbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/reportbuilder/internal/logfields"
	"git.home.luguber.info/inful/reportbuilder/internal/retry"
)

// DefaultSubject is the subject prefix used when none is configured.
const DefaultSubject = "reportbuilder.builds"

// BuildEvent is the message published after every build.
type BuildEvent struct {
	BuildID      string    `json:"build_id"`
	Unit         string    `json:"unit"`
	Kind         string    `json:"kind"`
	Status       string    `json:"status"`
	ExitCode     int       `json:"exit_code"`
	Version      string    `json:"version,omitempty"`
	ChangedFiles []string  `json:"changed_files,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	Timestamp    time.Time `json:"timestamp"`
}

// Publisher delivers build events.
type Publisher interface {
	PublishBuild(ctx context.Context, ev BuildEvent) error
	Close()
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) PublishBuild(context.Context, BuildEvent) error { return nil }
func (NoopPublisher) Close()                                         {}

// NATSPublisher publishes build events on core NATS subjects of the form
// <prefix>.<unit>.<kind>.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	policy retry.Policy
}

// Option customizes a NATSPublisher.
type Option func(*NATSPublisher)

// WithRetryPolicy sets the backoff used when a publish fails.
func WithRetryPolicy(p retry.Policy) Option {
	return func(n *NATSPublisher) { n.policy = p }
}

// NewNATSPublisher connects to url.
func NewNATSPublisher(url, subject string, opts ...Option) (*NATSPublisher, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	conn, err := nats.Connect(url,
		nats.Name("reportbuilder"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1))
	if err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryRuntime, "failed to connect to NATS").
			WithContext("url", url).
			Retryable().
			Build()
	}
	slog.Info("NATS publisher connected", "url", url, "subject", subject)
	p := &NATSPublisher{conn: conn, prefix: subject, policy: retry.DefaultPolicy()}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Subject returns the subject ev is published on.
func (p *NATSPublisher) Subject(ev BuildEvent) string {
	return Subject(p.prefix, ev.Unit, ev.Kind)
}

// Subject joins prefix, unit and kind into a NATS subject, replacing
// characters that are not valid in a subject token.
func Subject(prefix, unit, kind string) string {
	return fmt.Sprintf("%s.%s.%s", prefix, token(unit), token(kind))
}

func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, s)
}

func (p *NATSPublisher) PublishBuild(ctx context.Context, ev BuildEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryInternal, "failed to marshal build event").Build()
	}
	subject := p.Subject(ev)
	attempts := 0
	err = p.policy.Do(ctx, func() error {
		attempts++
		return p.conn.Publish(subject, data)
	})
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryRuntime, "failed to publish build event").
			WithContext("subject", subject).
			WithContext("attempts", attempts).
			Retryable().
			Build()
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		slog.Warn("NATS flush failed", logfields.Error(err))
	}
	slog.Debug("Published build event", logfields.Unit(ev.Unit), logfields.Kind(ev.Kind), logfields.BuildID(ev.BuildID))
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
