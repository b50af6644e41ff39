package cache

import (
	"context"
	"log/slog"

	"shepherd/internal/realtime"
)

// Reconciler folds classified sync messages into a Store. Because every
// Apply is LWW on the server timestamp, replaying the same stream of
// messages (after a reconnect, or out of order) converges on the same cache
// state.
type Reconciler struct {
	store  Store
	logger *slog.Logger
}

func NewReconciler(store Store, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, logger: logger}
}

// Reconcile applies one message to the cache. Messages that carry no cache
// state (heartbeats, errors, unknown variants) are ignored. It reports
// whether the cache changed.
func (r *Reconciler) Reconcile(ctx context.Context, msg realtime.Message) (bool, error) {
	switch msg.Type {
	case realtime.TypeChildStatusUpdate:
		if msg.Child == nil {
			r.logger.Warn("child status update without child payload")
			return false, nil
		}
		return r.store.ApplyChild(ctx, *msg.Child, msg.Timestamp)

	case realtime.TypeServiceCapacityUpdate:
		if msg.Service == nil {
			r.logger.Warn("capacity update without service payload")
			return false, nil
		}
		return r.store.ApplyService(ctx, *msg.Service, msg.Timestamp)

	case realtime.TypeCheckInUpdate, realtime.TypeCheckOutUpdate:
		if msg.Record == nil {
			r.logger.Warn("record update without record payload", "type", msg.Type)
			return false, nil
		}
		return r.store.ApplyRecord(ctx, *msg.Record, msg.Timestamp)

	default:
		return false, nil
	}
}
