// Package eventstore records the build history of report units as an
// append-only log of events backed by SQLite.
package eventstore

import (
	"context"
	"time"
)

// Store defines the interface for persisting and retrieving events.
type Store interface {
	// Append adds an event to the store.
	Append(ctx context.Context, e Event) error

	// GetByBuildID retrieves all events for a specific build.
	GetByBuildID(ctx context.Context, buildID string) ([]Event, error)

	// GetRange retrieves events within a time range.
	GetRange(ctx context.Context, start, end time.Time) ([]Event, error)

	// RecentBuilds returns the events of the last limit builds of unit, oldest first.
	RecentBuilds(ctx context.Context, unit string, limit int) ([]Event, error)

	// Close closes the store and releases resources.
	Close() error
}
