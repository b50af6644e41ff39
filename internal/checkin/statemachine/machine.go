// Package statemachine owns the canonical check-in/check-out transition
// logic: validate, then mutate copies or reject, never partially apply.
// Rejections are structured values drawn from the validation taxonomy; the
// machine never returns an error for an expected rule failure.
package statemachine

import (
	"time"

	"github.com/google/uuid"

	"shepherd/internal/checkin/models"
	"shepherd/internal/checkin/validation"
	id "shepherd/pkg/domain"
	dErrors "shepherd/pkg/domain-errors"
)

// Machine computes transitions over value copies. It holds no shared state
// itself; serializing transitions per child is the caller's job.
type Machine struct {
	now func() time.Time
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock overrides the transition clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

func New(opts ...Option) *Machine {
	m := &Machine{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Decision is the outcome of a transition attempt. On acceptance it carries
// updated copies of the child and service plus the record describing the
// transition; the inputs are never touched.
type Decision struct {
	Accepted bool
	Code     dErrors.Code
	Reasons  []string

	Child   models.Child
	Service models.KidsService
	Record  models.CheckInRecord
}

func rejected(code dErrors.Code, reasons []string) Decision {
	return Decision{Code: code, Reasons: reasons}
}

// CheckIn validates and, if every rule passes, produces the checked-in child,
// the service with its occupancy incremented, and a fresh CHECKED_IN record.
func (m *Machine) CheckIn(child models.Child, service models.KidsService, auth validation.AuthContext, notes string) Decision {
	result := validation.CheckInValidation(child, service, auth, m.now())
	if !result.IsValid() {
		return rejected(result.FirstCode(), result.AllErrorMessages())
	}

	now := m.now()
	service.CurrentCapacity++

	child.Status = id.StatusCheckedIn
	child.CurrentServiceID = service.ID
	child.CheckInTime = &now
	child.CheckOutTime = nil

	record := models.CheckInRecord{
		ID:          id.RecordID(uuid.NewString()),
		ChildID:     child.ID,
		ServiceID:   service.ID,
		CheckInTime: now,
		CheckedInBy: auth.Caller,
		Notes:       notes,
		Status:      id.StatusCheckedIn,
	}

	return Decision{Accepted: true, Child: child, Service: service, Record: record}
}

// ConfirmCapacity guards the commit against concurrent check-ins racing past
// the initial read. Call it with the snapshot the decision was computed from
// and a freshly-read one; any capacity movement in between is a concurrency
// conflict, reported distinctly from a plain capacity rejection.
func (m *Machine) ConfirmCapacity(read, fresh models.KidsService) Decision {
	if fresh.CurrentCapacity != read.CurrentCapacity {
		return rejected(dErrors.CodeConcurrencyConflict,
			[]string{"another device changed this service's occupancy; please retry"})
	}
	if capacity := validation.ValidateServiceCapacity(fresh); !capacity.IsValid() {
		return rejected(capacity.Code(), []string{capacity.Reason()})
	}
	return Decision{Accepted: true, Service: fresh}
}

// CheckOut validates and, if the rules pass, produces the checked-out child,
// the service with its occupancy decremented (floored at zero), and the open
// record closed. The service pointer may be nil when the child's current
// service could not be resolved; the child is still freed.
func (m *Machine) CheckOut(child models.Child, service *models.KidsService, open models.CheckInRecord, auth validation.AuthContext, notes string) Decision {
	result := validation.CheckOutValidation(child, auth)
	if !result.IsValid() {
		return rejected(result.FirstCode(), result.AllErrorMessages())
	}

	now := m.now()
	decision := Decision{Accepted: true}

	if service != nil {
		updated := *service
		if updated.CurrentCapacity > 0 {
			updated.CurrentCapacity--
		}
		decision.Service = updated
	}

	child.Status = id.StatusCheckedOut
	child.CurrentServiceID = ""
	child.CheckInTime = nil
	child.CheckOutTime = &now
	decision.Child = child

	open.CheckOutTime = &now
	open.CheckedOutBy = auth.Caller
	open.Status = id.StatusCheckedOut
	if notes != "" {
		open.Notes = notes
	}
	decision.Record = open

	return decision
}
