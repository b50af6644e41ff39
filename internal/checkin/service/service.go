// Package service orchestrates single check-in/check-out transitions: fetch
// snapshots, run the state machine, persist through the repository, and
// classify every failure into the domain error taxonomy before it escapes.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"shepherd/internal/checkin/metrics"
	"shepherd/internal/checkin/models"
	"shepherd/internal/checkin/statemachine"
	"shepherd/internal/checkin/store"
	"shepherd/internal/checkin/validation"
	id "shepherd/pkg/domain"
	dErrors "shepherd/pkg/domain-errors"
	"shepherd/pkg/platform/audit"
	"shepherd/pkg/platform/sentinel"
)

// Notifier receives successful transition facts so the realtime layer can
// broadcast them. Implementations must not block.
type Notifier interface {
	ChildStatusChanged(child models.Child, previous id.CheckInStatus, serviceID id.ServiceID, at time.Time)
	ServiceCapacityChanged(service models.KidsService, previousCapacity int, at time.Time)
	RecordChanged(record models.CheckInRecord, at time.Time)
}

// Outcome bundles the updated snapshots a successful transition produced.
type Outcome struct {
	Child   models.Child
	Service models.KidsService
	Record  models.CheckInRecord
}

type Service struct {
	repo       store.Repository
	machine    *statemachine.Machine
	locks      *childLocks
	logger     *slog.Logger
	metrics    *metrics.Metrics
	notifier   Notifier
	auditInbox chan<- audit.Event
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithAuditInbox(inbox chan<- audit.Event) Option {
	return func(s *Service) { s.auditInbox = inbox }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(repo store.Repository, machine *statemachine.Machine, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("check-in repository is required")
	}
	if machine == nil {
		machine = statemachine.New()
	}
	svc := &Service{
		repo:    repo,
		machine: machine,
		locks:   newChildLocks(),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CheckIn executes one check-in transition for a child. Transitions for the
// same child are serialized; a concurrency conflict is retried once with
// fresh snapshots and then surfaced.
func (s *Service) CheckIn(ctx context.Context, childID id.ChildID, serviceID id.ServiceID, auth validation.AuthContext, notes string) (Outcome, error) {
	start := s.now()
	s.locks.lock(childID.String())
	defer s.locks.unlock(childID.String())

	outcome, previous, err := s.checkInOnce(ctx, childID, serviceID, auth, notes)
	if err != nil && dErrors.HasCode(err, dErrors.CodeConcurrencyConflict) {
		s.logger.InfoContext(ctx, "retrying check-in after concurrency conflict",
			"child_id", childID, "service_id", serviceID)
		outcome, previous, err = s.checkInOnce(ctx, childID, serviceID, auth, notes)
	}

	s.finishTransition(ctx, start, err, audit.Event{
		Action:    audit.ActionChildCheckedIn,
		ChildID:   childID,
		ServiceID: serviceID,
		ActorID:   auth.Caller,
		Notes:     notes,
	})
	if err != nil {
		return Outcome{}, err
	}

	if s.notifier != nil {
		s.notifier.ChildStatusChanged(outcome.Child, previous, serviceID, outcome.Record.CheckInTime)
		s.notifier.ServiceCapacityChanged(outcome.Service, outcome.Service.CurrentCapacity-1, outcome.Record.CheckInTime)
		s.notifier.RecordChanged(outcome.Record, outcome.Record.CheckInTime)
	}
	if s.metrics != nil {
		s.metrics.CheckInsTotal.Inc()
		s.metrics.SetOccupancy(outcome.Service.ID.String(), outcome.Service.CurrentCapacity)
	}
	return outcome, nil
}

func (s *Service) checkInOnce(ctx context.Context, childID id.ChildID, serviceID id.ServiceID, auth validation.AuthContext, notes string) (Outcome, id.CheckInStatus, error) {
	child, err := s.repo.GetChildByID(ctx, childID)
	if err != nil {
		return Outcome{}, "", classifyLookup(err, dErrors.CodeChildNotFound, "child not found")
	}
	previous := child.Status

	service, err := s.repo.GetServiceByID(ctx, serviceID)
	if err != nil {
		return Outcome{}, previous, classifyLookup(err, dErrors.CodeServiceNotFound, "service not found")
	}

	decision := s.machine.CheckIn(child, service, auth, notes)
	if !decision.Accepted {
		return Outcome{}, previous, rejection(decision)
	}

	// Capacity can move between our read and the commit; re-read and let the
	// machine decide whether the decision still stands.
	fresh, err := s.repo.GetServiceByID(ctx, serviceID)
	if err != nil {
		return Outcome{}, previous, classifyLookup(err, dErrors.CodeServiceNotFound, "service not found")
	}
	if confirm := s.machine.ConfirmCapacity(service, fresh); !confirm.Accepted {
		return Outcome{}, previous, rejection(confirm)
	}

	record, err := s.repo.CheckInChild(ctx, childID, serviceID, auth.Caller, notes)
	if err != nil {
		return Outcome{}, previous, classifyCheckInWrite(err)
	}

	return Outcome{Child: decision.Child, Service: decision.Service, Record: record}, previous, nil
}

// CheckOut executes one check-out transition. The child's current service is
// resolved on a best-effort basis: a dangling reference must not keep a child
// stuck in CHECKED_IN, so lookup failures only skip the occupancy release.
func (s *Service) CheckOut(ctx context.Context, childID id.ChildID, auth validation.AuthContext, notes string) (Outcome, error) {
	start := s.now()
	s.locks.lock(childID.String())
	defer s.locks.unlock(childID.String())

	outcome, previous, err := s.checkOutOnce(ctx, childID, auth, notes)

	s.finishTransition(ctx, start, err, audit.Event{
		Action:  audit.ActionChildCheckedOut,
		ChildID: childID,
		ActorID: auth.Caller,
		Notes:   notes,
	})
	if err != nil {
		return Outcome{}, err
	}

	if s.notifier != nil {
		at := s.now()
		if outcome.Record.CheckOutTime != nil {
			at = *outcome.Record.CheckOutTime
		}
		s.notifier.ChildStatusChanged(outcome.Child, previous, outcome.Record.ServiceID, at)
		if !outcome.Service.ID.IsEmpty() {
			s.notifier.ServiceCapacityChanged(outcome.Service, outcome.Service.CurrentCapacity+1, at)
		}
		s.notifier.RecordChanged(outcome.Record, at)
	}
	if s.metrics != nil {
		s.metrics.CheckOutsTotal.Inc()
		if !outcome.Service.ID.IsEmpty() {
			s.metrics.SetOccupancy(outcome.Service.ID.String(), outcome.Service.CurrentCapacity)
		}
	}
	return outcome, nil
}

func (s *Service) checkOutOnce(ctx context.Context, childID id.ChildID, auth validation.AuthContext, notes string) (Outcome, id.CheckInStatus, error) {
	child, err := s.repo.GetChildByID(ctx, childID)
	if err != nil {
		return Outcome{}, "", classifyLookup(err, dErrors.CodeChildNotFound, "child not found")
	}
	previous := child.Status

	var servicePtr *models.KidsService
	if !child.CurrentServiceID.IsEmpty() {
		service, err := s.repo.GetServiceByID(ctx, child.CurrentServiceID)
		if err != nil {
			// Kept lenient on purpose: the source system releases the child
			// even when the service reference dangles. This can mask a
			// data-integrity problem, hence the loud log instead of a fix.
			s.logger.WarnContext(ctx, "check-out with dangling service reference",
				"child_id", childID, "service_id", child.CurrentServiceID, "error", err)
		} else {
			servicePtr = &service
		}
	}

	var open models.CheckInRecord
	if child.Status == id.StatusCheckedIn {
		open, err = s.repo.GetOpenRecordByChild(ctx, childID)
		if errors.Is(err, sentinel.ErrNotFound) {
			// Same leniency as the dangling service reference: a checked-in
			// child with no open record is still released, and the repository
			// synthesizes the closing record.
			s.logger.WarnContext(ctx, "check-out with no open record",
				"child_id", childID)
			open = models.CheckInRecord{}
		} else if err != nil {
			return Outcome{}, previous, classifyLookup(err, dErrors.CodeInternal, "could not load the open check-in record")
		}
	}

	decision := s.machine.CheckOut(child, servicePtr, open, auth, notes)
	if !decision.Accepted {
		return Outcome{}, previous, rejection(decision)
	}

	record, err := s.repo.CheckOutChild(ctx, childID, auth.Caller, notes)
	if err != nil {
		return Outcome{}, previous, classifyCheckOutWrite(err)
	}

	return Outcome{Child: decision.Child, Service: decision.Service, Record: record}, previous, nil
}

// EligibleServices returns every service the child could enter right now:
// age window fits, spots remain, and check-ins are open. Services with more
// than five open spots are flagged recommended for UI ranking. Read-only.
func (s *Service) EligibleServices(ctx context.Context, childID id.ChildID) ([]models.EligibleService, error) {
	var (
		child    models.Child
		services []models.KidsService
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := s.repo.GetChildByID(gctx, childID)
		if err != nil {
			return classifyLookup(err, dErrors.CodeChildNotFound, "child not found")
		}
		child = c
		return nil
	})
	g.Go(func() error {
		list, err := s.repo.GetServicesAcceptingCheckIns(gctx)
		if err != nil {
			return classifyLookup(err, dErrors.CodeInternal, "could not list services")
		}
		services = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := s.now()
	age := child.AgeAt(now)
	var out []models.EligibleService
	for _, svc := range services {
		if !svc.IsAcceptingCheckIns || !svc.AcceptsAge(age) || !svc.HasAvailableSpots() {
			continue
		}
		out = append(out, models.EligibleService{
			Service:        svc,
			AvailableSpots: svc.AvailableSpots(),
			IsRecommended:  svc.AvailableSpots() > 5,
		})
	}
	return out, nil
}

func (s *Service) finishTransition(ctx context.Context, start time.Time, err error, event audit.Event) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(s.now().Sub(start))
		if err != nil {
			s.metrics.RecordRejection(string(dErrors.CodeOf(err)))
		}
	}

	event.Timestamp = s.now()
	if err != nil {
		event.Reason = dErrors.MessageOf(err)
		switch event.Action {
		case audit.ActionChildCheckedIn:
			event.Action = audit.ActionCheckInRejected
		case audit.ActionChildCheckedOut:
			event.Action = audit.ActionCheckOutRejected
		}
	}
	if s.auditInbox != nil {
		select {
		case s.auditInbox <- event:
		default:
			s.logger.WarnContext(ctx, "audit inbox full, dropping event", "action", event.Action)
		}
	}
}

func rejection(d statemachine.Decision) error {
	return dErrors.New(d.Code, strings.Join(d.Reasons, "; "))
}

// classifyLookup translates repository read failures: missing entities get
// their domain code, timeouts and transport failures keep their own class,
// and anything else is wrapped without losing the original message.
func classifyLookup(err error, notFound dErrors.Code, message string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(notFound, message)
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "the server took too long to respond")
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeNetwork, "could not reach the server")
	default:
		return dErrors.Wrap(err, dErrors.CodeUnknown, "unexpected failure")
	}
}

// classifyCheckInWrite prefers the business-rule classification when both a
// storage failure and a rule failure are plausible: a conflict on the write
// is a capacity race, not an I/O error.
func classifyCheckInWrite(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeServiceAtCapacity, "the service filled up before this check-in could be saved")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeChildAlreadyCheckedIn, "this child was checked in from another device")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeChildNotFound, "child or service disappeared before the check-in could be saved")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "the server took too long to respond")
	default:
		return dErrors.Wrap(err, dErrors.CodeUnknown, "could not save the check-in")
	}
}

func classifyCheckOutWrite(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeChildNotCheckedIn, "this child was already checked out from another device")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeChildNotFound, "child not found")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "the server took too long to respond")
	default:
		return dErrors.Wrap(err, dErrors.CodeUnknown, "could not save the check-out")
	}
}
