package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shepherd/internal/checkin/models"
	id "shepherd/pkg/domain"
	"shepherd/pkg/platform/sentinel"
)

var baseTime = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func child(status id.CheckInStatus) models.Child {
	return models.Child{ID: "child-1", FirstName: "Noah", Status: status}
}

func TestApplyChild_NewerWins(t *testing.T) {
	ctx := context.Background()
	store := New()

	taken, err := store.ApplyChild(ctx, child(id.StatusCheckedIn), baseTime)
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = store.ApplyChild(ctx, child(id.StatusCheckedOut), baseTime.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, taken)

	got, err := store.Child(ctx, "child-1")
	require.NoError(t, err)
	assert.Equal(t, id.StatusCheckedOut, got.Status)
}

// A device whose local snapshot is newer keeps it: the server update that
// raced in behind is discarded.
func TestApplyChild_StaleUpdateDiscarded(t *testing.T) {
	ctx := context.Background()
	store := New()

	_, err := store.ApplyChild(ctx, child(id.StatusCheckedOut), baseTime.Add(time.Minute))
	require.NoError(t, err)

	taken, err := store.ApplyChild(ctx, child(id.StatusCheckedIn), baseTime)
	require.NoError(t, err)
	assert.False(t, taken)

	got, err := store.Child(ctx, "child-1")
	require.NoError(t, err)
	assert.Equal(t, id.StatusCheckedOut, got.Status, "stale write must not regress state")
}

// Equal timestamps are not "newer": replaying the same update is a no-op,
// which is what makes post-reconnect reconciliation idempotent.
func TestApplyChild_ReplayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := New()

	taken, err := store.ApplyChild(ctx, child(id.StatusCheckedIn), baseTime)
	require.NoError(t, err)
	assert.True(t, taken)

	for i := 0; i < 3; i++ {
		taken, err = store.ApplyChild(ctx, child(id.StatusCheckedIn), baseTime)
		require.NoError(t, err)
		assert.False(t, taken)
	}
}

func TestApplyService(t *testing.T) {
	ctx := context.Background()
	store := New()

	svc := models.KidsService{ID: "svc-1", Name: "Sprouts", MaxCapacity: 10, CurrentCapacity: 3}
	_, err := store.ApplyService(ctx, svc, baseTime)
	require.NoError(t, err)

	svc.CurrentCapacity = 4
	taken, err := store.ApplyService(ctx, svc, baseTime.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, taken)

	got, err := store.Service(ctx, "svc-1")
	require.NoError(t, err)
	assert.Equal(t, 4, got.CurrentCapacity)
}

func TestApplyRecord(t *testing.T) {
	ctx := context.Background()
	store := New()

	rec := models.CheckInRecord{ID: "rec-1", ChildID: "child-1", Status: id.StatusCheckedIn}
	taken, err := store.ApplyRecord(ctx, rec, baseTime)
	require.NoError(t, err)
	assert.True(t, taken)

	got, err := store.Record(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, id.StatusCheckedIn, got.Status)
}

func TestLookupMiss(t *testing.T) {
	ctx := context.Background()
	store := New()

	_, err := store.Child(ctx, "ghost")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	_, err = store.Service(ctx, "ghost")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	_, err = store.Record(ctx, "ghost")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

// Entities version independently: an old service update still applies after
// a newer child update.
func TestTimestampsTrackedPerEntity(t *testing.T) {
	ctx := context.Background()
	store := New()

	_, err := store.ApplyChild(ctx, child(id.StatusCheckedIn), baseTime.Add(time.Hour))
	require.NoError(t, err)

	taken, err := store.ApplyService(ctx, models.KidsService{ID: "svc-1"}, baseTime)
	require.NoError(t, err)
	assert.True(t, taken)
}
