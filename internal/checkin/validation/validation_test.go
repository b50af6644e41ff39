package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"shepherd/internal/checkin/models"
	id "shepherd/pkg/domain"
	dErrors "shepherd/pkg/domain-errors"
	"shepherd/pkg/testutil"
)

var testNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func childAged(years int) models.Child {
	return models.Child{
		ID:          "child-1",
		ParentID:    "parent-1",
		FirstName:   "Noah",
		LastName:    "Reed",
		DateOfBirth: testNow.AddDate(-years, 0, -30),
		Status:      id.StatusNotInService,
		EmergencyContact: models.EmergencyContact{
			Name: "Dana Reed", Phone: "555-0101", Relationship: "mother",
		},
	}
}

func openService() models.KidsService {
	return models.KidsService{
		ID:                  "svc-1",
		Name:                "Sprouts",
		MinAge:              5,
		MaxAge:              10,
		MaxCapacity:         20,
		CurrentCapacity:     3,
		IsAcceptingCheckIns: true,
		StaffIDs:            []id.StaffID{"staff-1"},
		StartTime:           testNow.Add(-time.Hour),
		EndTime:             testNow.Add(time.Hour),
	}
}

func TestValidateAgeRequirements(t *testing.T) {
	t.Run("age inside inclusive window passes", func(t *testing.T) {
		for _, years := range []int{5, 7, 10} {
			r := ValidateAgeRequirements(childAged(years), openService(), testNow)
			assert.True(t, r.IsValid(), "age %d should pass", years)
		}
	})

	t.Run("too young fails", func(t *testing.T) {
		r := ValidateAgeRequirements(childAged(4), openService(), testNow)
		assert.False(t, r.IsValid())
		assert.Equal(t, dErrors.CodeInvalidAgeForService, r.Code())
	})

	t.Run("too old fails", func(t *testing.T) {
		r := ValidateAgeRequirements(childAged(12), openService(), testNow)
		assert.False(t, r.IsValid())
		assert.Equal(t, dErrors.CodeInvalidAgeForService, r.Code())
	})

	t.Run("birthday later this year does not inflate age", func(t *testing.T) {
		child := childAged(5)
		// Born 5 years ago minus a month: the fifth birthday is still ahead.
		child.DateOfBirth = testNow.AddDate(-5, 1, 0)
		r := ValidateAgeRequirements(child, openService(), testNow)
		assert.False(t, r.IsValid())
	})
}

func TestValidateServiceCapacity(t *testing.T) {
	t.Run("spots remaining passes", func(t *testing.T) {
		assert.True(t, ValidateServiceCapacity(openService()).IsValid())
	})

	t.Run("full service fails with capacity code", func(t *testing.T) {
		svc := openService()
		svc.CurrentCapacity = svc.MaxCapacity
		r := ValidateServiceCapacity(svc)
		assert.False(t, r.IsValid())
		assert.Equal(t, dErrors.CodeServiceAtCapacity, r.Code())
	})

	t.Run("negative occupancy is a corrupt-data failure", func(t *testing.T) {
		svc := openService()
		svc.CurrentCapacity = -1
		r := ValidateServiceCapacity(svc)
		assert.False(t, r.IsValid())
		assert.Equal(t, dErrors.CodeValidation, r.Code())
	})
}

func TestValidateServiceAvailability(t *testing.T) {
	svc := openService()
	svc.IsAcceptingCheckIns = false
	r := ValidateServiceAvailability(svc)
	assert.False(t, r.IsValid())
	assert.Equal(t, dErrors.CodeServiceNotAcceptingChecks, r.Code())
}

func TestValidateServiceStaffing(t *testing.T) {
	svc := openService()
	svc.StaffIDs = nil
	r := ValidateServiceStaffing(svc)
	assert.False(t, r.IsValid())
}

func TestValidateChildStatus(t *testing.T) {
	t.Run("checked-in child cannot check in again", func(t *testing.T) {
		child := childAged(7)
		child.Status = id.StatusCheckedIn
		r := ValidateChildStatusForCheckIn(child)
		assert.False(t, r.IsValid())
		assert.Equal(t, dErrors.CodeChildAlreadyCheckedIn, r.Code())
	})

	t.Run("checked-out child can check in again", func(t *testing.T) {
		child := childAged(7)
		child.Status = id.StatusCheckedOut
		assert.True(t, ValidateChildStatusForCheckIn(child).IsValid())
	})

	t.Run("only checked-in children can check out", func(t *testing.T) {
		for _, status := range []id.CheckInStatus{id.StatusNotInService, id.StatusCheckedOut} {
			child := childAged(7)
			child.Status = status
			r := ValidateChildStatusForCheckOut(child)
			assert.False(t, r.IsValid(), "status %s", status)
			assert.Equal(t, dErrors.CodeChildNotCheckedIn, r.Code())
		}
	})

	t.Run("checked-in without service reference is corrupt state", func(t *testing.T) {
		child := childAged(7)
		child.Status = id.StatusCheckedIn
		child.CurrentServiceID = ""
		r := ValidateChildStatusForCheckOut(child)
		assert.False(t, r.IsValid())
		assert.Equal(t, dErrors.CodeValidation, r.Code())
	})
}

func TestValidateParentAuthorization(t *testing.T) {
	child := childAged(7)

	t.Run("registered parent passes", func(t *testing.T) {
		assert.True(t, ValidateParentAuthorization(child, "parent-1").IsValid())
	})

	t.Run("someone else fails", func(t *testing.T) {
		r := ValidateParentAuthorization(child, "stranger-9")
		assert.False(t, r.IsValid())
		assert.Equal(t, dErrors.CodeUnauthorized, r.Code())
	})
}

func TestCheckInValidation(t *testing.T) {
	auth := AuthContext{Caller: "parent-1"}

	t.Run("eligible child and open service pass every field", func(t *testing.T) {
		result := CheckInValidation(childAged(7), openService(), auth, testNow)
		assert.True(t, result.IsValid())
		assert.Empty(t, result.AllErrorMessages())
	})

	t.Run("messages keep assembly order", func(t *testing.T) {
		svc := openService()
		svc.CurrentCapacity = svc.MaxCapacity
		svc.IsAcceptingCheckIns = false
		result := CheckInValidation(childAged(12), svc, auth, testNow)

		msgs := result.AllErrorMessages()
		assert.Len(t, msgs, 3)
		// age first, then capacity, then availability - the order the
		// composite assembles fields in, not sorted.
		assert.Contains(t, msgs[0], "accepts ages")
		assert.Contains(t, msgs[1], "capacity")
		assert.Contains(t, msgs[2], "not accepting")
	})

	t.Run("first code reflects first failing field", func(t *testing.T) {
		svc := openService()
		svc.CurrentCapacity = svc.MaxCapacity
		result := CheckInValidation(childAged(12), svc, auth, testNow)
		assert.Equal(t, dErrors.CodeInvalidAgeForService, result.FirstCode())
	})

	t.Run("staff caller bypasses parent ownership", func(t *testing.T) {
		result := CheckInValidation(childAged(7), openService(), AuthContext{Caller: "staff-2", IsStaff: true}, testNow)
		assert.True(t, result.IsValid())
	})

	t.Run("non-parent caller without staff role is rejected", func(t *testing.T) {
		result := CheckInValidation(childAged(7), openService(), AuthContext{Caller: "stranger-9"}, testNow)
		assert.False(t, result.IsValid())
		assert.Equal(t, dErrors.CodeUnauthorized, result.FirstCode())
	})
}

func TestCheckOutValidation(t *testing.T) {
	t.Run("checked-in child with parent caller passes", func(t *testing.T) {
		child := childAged(7)
		child.Status = id.StatusCheckedIn
		child.CurrentServiceID = "svc-1"
		result := CheckOutValidation(child, AuthContext{Caller: "parent-1"})
		assert.True(t, result.IsValid())
	})

	t.Run("not-checked-in child fails", func(t *testing.T) {
		result := CheckOutValidation(childAged(7), AuthContext{Caller: "parent-1"})
		assert.False(t, result.IsValid())
		assert.Equal(t, dErrors.CodeChildNotCheckedIn, result.FirstCode())
	})
}

func TestFullServiceTurnsAwayEligibleChild(t *testing.T) {
	testutil.Given(t, "a service with no spots left", func(t *testing.T) {
		svc := openService()
		svc.CurrentCapacity = svc.MaxCapacity

		testutil.When(t, "an eligible child attempts check-in", func(t *testing.T) {
			result := CheckInValidation(childAged(7), svc, AuthContext{Caller: "parent-1"}, testNow)

			testutil.Then(t, "the only failing field is capacity", func(t *testing.T) {
				assert.False(t, result.IsValid())
				assert.Equal(t, dErrors.CodeServiceAtCapacity, result.FirstCode())
				assert.Len(t, result.AllErrorMessages(), 1)
			})
		})
	})
}

// TestRejectionPurity pins the purity contract: validators never mutate the
// snapshots passed in, no matter the outcome.
func TestRejectionPurity(t *testing.T) {
	child := childAged(12)
	child.Status = id.StatusCheckedIn
	child.CurrentServiceID = "svc-1"
	svc := openService()
	svc.CurrentCapacity = svc.MaxCapacity

	childBefore := child
	svcBefore := svc

	_ = CheckInValidation(child, svc, AuthContext{Caller: "stranger-9"}, testNow)
	_ = CheckOutValidation(child, AuthContext{Caller: "stranger-9"})
	_ = ValidateServiceCapacity(svc)
	_ = ValidateAgeRequirements(child, svc, testNow)

	assert.Equal(t, childBefore, child)
	assert.Equal(t, svcBefore, svc)
}
