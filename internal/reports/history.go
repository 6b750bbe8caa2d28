package reports

import (
	"context"

	"git.home.luguber.info/inful/reportbuilder/internal/eventstore"
)

// History returns summaries of the last limit builds of unit name, newest
// first. Without a history store the list is empty.
func (s *Service) History(ctx context.Context, name string, limit int) ([]*eventstore.BuildSummary, error) {
	if _, err := s.roots.Open(name); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []*eventstore.BuildSummary{}, nil
	}
	evs, err := s.history.RecentBuilds(ctx, name, limit)
	if err != nil {
		return nil, err
	}
	return eventstore.Summarize(evs), nil
}
