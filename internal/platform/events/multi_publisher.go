package events

import (
	"context"
	"errors"

	"github.com/stocktide/api/internal/services"
)

// MultiPublisher delivers each event to every wrapped publisher. The in-process
// bus always receives the event even when the Pub/Sub mirror fails; errors are
// joined so the caller can log the partial failure.
type MultiPublisher struct {
	publishers []services.MutationPublisher
}

// NewMultiPublisher bundles publishers; nil entries are skipped.
func NewMultiPublisher(publishers ...services.MutationPublisher) *MultiPublisher {
	kept := make([]services.MutationPublisher, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			kept = append(kept, p)
		}
	}
	return &MultiPublisher{publishers: kept}
}

// PublishMutation fans the event out to all wrapped publishers.
func (m *MultiPublisher) PublishMutation(ctx context.Context, event services.MutationEvent) error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.PublishMutation(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ services.MutationPublisher = (*MultiPublisher)(nil)
