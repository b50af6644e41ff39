// Package cache is the device-local snapshot of server-owned check-in state.
// It is a cache, never a source of truth: writes carry the server's timestamp
// and an entry only moves forward in time (last write wins). Replaying a
// stale or duplicate update is a no-op, which makes reconciliation after a
// reconnect idempotent.
package cache

import (
	"context"
	"time"

	"shepherd/internal/checkin/models"
	id "shepherd/pkg/domain"
)

// Store holds locally cached snapshots keyed by entity ID.
//
// Apply methods report whether the write was taken: false means the cache
// already held a snapshot at or after the given server timestamp and the
// update was discarded. Lookups return sentinel.ErrNotFound on a miss.
type Store interface {
	ApplyChild(ctx context.Context, child models.Child, at time.Time) (bool, error)
	ApplyService(ctx context.Context, service models.KidsService, at time.Time) (bool, error)
	ApplyRecord(ctx context.Context, record models.CheckInRecord, at time.Time) (bool, error)

	Child(ctx context.Context, childID id.ChildID) (models.Child, error)
	Service(ctx context.Context, serviceID id.ServiceID) (models.KidsService, error)
	Record(ctx context.Context, recordID id.RecordID) (models.CheckInRecord, error)
}
