package worker

import (
	"context"
	"log/slog"

	audit "shepherd/pkg/platform/audit"
)

// Worker consumes audit events from a channel, persists them, and fans them
// out to the publisher when one is configured. It keeps background processing
// off the transition hot path.
type Worker struct {
	store     audit.Store
	publisher audit.Publisher
	inbox     <-chan audit.Event
	logger    *slog.Logger
}

func NewWorker(store audit.Store, publisher audit.Publisher, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	return &Worker{store: store, publisher: publisher, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				return err
			}
			if w.publisher != nil {
				if err := w.publisher.Publish(ctx, event); err != nil {
					// Publishing is best-effort; the local store already has
					// the event.
					w.logger.WarnContext(ctx, "audit publish failed",
						"action", event.Action,
						"child_id", event.ChildID,
						"error", err,
					)
				}
			}
		}
	}
}
