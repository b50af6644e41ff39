// Package validation holds the pure business-rule checks run before any
// check-in or check-out transition. Every function is side-effect free: it
// takes snapshots by value, performs no I/O, and returns a Result value
// instead of an error. Rule failures are expected outcomes, not exceptions.
package validation

import (
	"fmt"
	"time"

	"shepherd/internal/checkin/models"
	id "shepherd/pkg/domain"
	dErrors "shepherd/pkg/domain-errors"
)

// Result is the outcome of a single rule check: Valid, or Invalid with a
// classification code and a display-ready reason.
type Result struct {
	valid  bool
	code   dErrors.Code
	reason string
}

// Valid returns a passing result.
func Valid() Result {
	return Result{valid: true}
}

// Invalid returns a failing result carrying a code from the rejection
// taxonomy and a message suitable for direct display.
func Invalid(code dErrors.Code, reason string) Result {
	return Result{code: code, reason: reason}
}

func (r Result) IsValid() bool      { return r.valid }
func (r Result) Code() dErrors.Code { return r.code }
func (r Result) Reason() string     { return r.reason }

// AuthContext describes who is attempting the transition. Staff role is an
// external capability: when IsStaff is set the parent-ownership check is
// bypassed, because the auth backend already vouched for the caller.
type AuthContext struct {
	Caller  id.ActorID
	IsStaff bool
}

// ValidateAgeRequirements fails when the child's age falls outside the
// service's inclusive [MinAge, MaxAge] window.
func ValidateAgeRequirements(child models.Child, service models.KidsService, now time.Time) Result {
	age := child.AgeAt(now)
	if !service.AcceptsAge(age) {
		return Invalid(dErrors.CodeInvalidAgeForService,
			fmt.Sprintf("%s is %d; %s accepts ages %d to %d", child.FirstName, age, service.Name, service.MinAge, service.MaxAge))
	}
	return Valid()
}

// ValidateServiceCapacity fails when the service is full, or when the counter
// is negative (corrupt data guard).
func ValidateServiceCapacity(service models.KidsService) Result {
	if service.CurrentCapacity < 0 {
		return Invalid(dErrors.CodeValidation,
			fmt.Sprintf("%s reports a negative occupancy; refusing check-in until corrected", service.Name))
	}
	if service.CurrentCapacity >= service.MaxCapacity {
		return Invalid(dErrors.CodeServiceAtCapacity,
			fmt.Sprintf("%s is at capacity (%d of %d)", service.Name, service.CurrentCapacity, service.MaxCapacity))
	}
	return Valid()
}

// ValidateServiceAvailability fails when the service is not accepting
// check-ins, independent of capacity.
func ValidateServiceAvailability(service models.KidsService) Result {
	if !service.IsAcceptingCheckIns {
		return Invalid(dErrors.CodeServiceNotAcceptingChecks,
			fmt.Sprintf("%s is not accepting check-ins right now", service.Name))
	}
	return Valid()
}

// ValidateServiceStaffing fails when the service has no staff assigned; an
// unstaffed service is unusable.
func ValidateServiceStaffing(service models.KidsService) Result {
	if len(service.StaffIDs) == 0 {
		return Invalid(dErrors.CodeServiceNotAcceptingChecks,
			fmt.Sprintf("%s has no staff assigned", service.Name))
	}
	return Valid()
}

// ValidateChildStatusForCheckIn fails when the child is already checked in;
// CHECKED_OUT and NOT_IN_SERVICE both pass.
func ValidateChildStatusForCheckIn(child models.Child) Result {
	if !child.Status.CanCheckIn() {
		return Invalid(dErrors.CodeChildAlreadyCheckedIn,
			fmt.Sprintf("%s is already checked in and must be checked out first", child.FirstName))
	}
	return Valid()
}

// ValidateChildStatusForCheckOut passes only for CHECKED_IN, and additionally
// fails when the current service reference is blank (corrupt-state guard).
func ValidateChildStatusForCheckOut(child models.Child) Result {
	if !child.Status.CanCheckOut() {
		return Invalid(dErrors.CodeChildNotCheckedIn,
			fmt.Sprintf("%s is not checked in to any service", child.FirstName))
	}
	if child.CurrentServiceID.IsEmpty() {
		return Invalid(dErrors.CodeValidation,
			fmt.Sprintf("%s is marked checked in but has no current service; state needs repair", child.FirstName))
	}
	return Valid()
}

// ValidateParentAuthorization fails when the caller is not the child's
// registered parent. Staff bypass is decided by the caller via AuthContext,
// not here.
func ValidateParentAuthorization(child models.Child, caller id.ActorID) Result {
	if child.ParentID != caller {
		return Invalid(dErrors.CodeUnauthorized,
			fmt.Sprintf("only %s's registered parent may do this", child.FirstName))
	}
	return Valid()
}

// FieldResult names one rule's outcome inside a composite validation.
type FieldResult struct {
	Field  string
	Result Result
}

// FormValidationResult aggregates named rule outcomes. IsValid holds iff
// every sub-result passed; error messages keep the order of assembly so
// rejection reporting is deterministic.
type FormValidationResult struct {
	Fields []FieldResult
}

// IsValid reports whether every aggregated rule passed.
func (f FormValidationResult) IsValid() bool {
	for _, fr := range f.Fields {
		if !fr.Result.IsValid() {
			return false
		}
	}
	return true
}

// AllErrorMessages returns every failure reason in assembly order.
func (f FormValidationResult) AllErrorMessages() []string {
	var msgs []string
	for _, fr := range f.Fields {
		if !fr.Result.IsValid() {
			msgs = append(msgs, fr.Result.Reason())
		}
	}
	return msgs
}

// FirstCode returns the classification code of the first failing rule, or
// CodeUnknown when everything passed.
func (f FormValidationResult) FirstCode() dErrors.Code {
	for _, fr := range f.Fields {
		if !fr.Result.IsValid() {
			return fr.Result.Code()
		}
	}
	return dErrors.CodeUnknown
}

// CheckInValidation runs every rule that gates a check-in. Assembly order is
// fixed: age, capacity, availability, staffing, child status, authorization.
func CheckInValidation(child models.Child, service models.KidsService, auth AuthContext, now time.Time) FormValidationResult {
	authResult := Valid()
	if !auth.IsStaff {
		authResult = ValidateParentAuthorization(child, auth.Caller)
	}
	return FormValidationResult{Fields: []FieldResult{
		{Field: "age", Result: ValidateAgeRequirements(child, service, now)},
		{Field: "capacity", Result: ValidateServiceCapacity(service)},
		{Field: "availability", Result: ValidateServiceAvailability(service)},
		{Field: "staffing", Result: ValidateServiceStaffing(service)},
		{Field: "child_status", Result: ValidateChildStatusForCheckIn(child)},
		{Field: "authorization", Result: authResult},
	}}
}

// CheckOutValidation runs every rule that gates a check-out: child status,
// then authorization.
func CheckOutValidation(child models.Child, auth AuthContext) FormValidationResult {
	authResult := Valid()
	if !auth.IsStaff {
		authResult = ValidateParentAuthorization(child, auth.Caller)
	}
	return FormValidationResult{Fields: []FieldResult{
		{Field: "child_status", Result: ValidateChildStatusForCheckOut(child)},
		{Field: "authorization", Result: authResult},
	}}
}
