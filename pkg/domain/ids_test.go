package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "shepherd/pkg/domain-errors"
)

// TestParseIDs validates the parsing invariant: identifiers coming in from
// transport must be non-empty. Typed IDs otherwise stay opaque.
func TestParseIDs(t *testing.T) {
	t.Run("rejects empty child id", func(t *testing.T) {
		_, err := ParseChildID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects empty service id", func(t *testing.T) {
		_, err := ParseServiceID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects empty actor id", func(t *testing.T) {
		_, err := ParseActorID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts opaque values", func(t *testing.T) {
		id, err := ParseChildID("child-123")
		require.NoError(t, err)
		assert.Equal(t, ChildID("child-123"), id)
	})
}

// TestTypeDistinction verifies the compiler enforces type safety.
// If this compiles, a ChildID cannot be passed where a ServiceID belongs.
func TestTypeDistinction(t *testing.T) {
	childID := ChildID("a")
	serviceID := ServiceID("a")

	// These would fail to compile if types were interchangeable:
	// var _ ChildID = serviceID   // compile error
	// var _ ServiceID = childID   // compile error

	assert.Equal(t, childID.String(), serviceID.String())
}

func TestCheckInStatus(t *testing.T) {
	t.Run("lifecycle gates", func(t *testing.T) {
		assert.True(t, StatusNotInService.CanCheckIn())
		assert.True(t, StatusCheckedOut.CanCheckIn())
		assert.False(t, StatusCheckedIn.CanCheckIn())

		assert.True(t, StatusCheckedIn.CanCheckOut())
		assert.False(t, StatusCheckedOut.CanCheckOut())
		assert.False(t, StatusNotInService.CanCheckOut())
	})

	t.Run("validity", func(t *testing.T) {
		assert.True(t, StatusCheckedIn.IsValid())
		assert.False(t, CheckInStatus("LOST").IsValid())
	})
}
