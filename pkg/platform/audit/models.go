package audit

import (
	"context"
	"time"

	id "shepherd/pkg/domain"
)

// Event is emitted from domain logic to capture key check-in actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Action    Action
	ChildID   id.ChildID
	ServiceID id.ServiceID
	ActorID   id.ActorID
	Reason    string
	Notes     string
	Timestamp time.Time
}

// Action names the audited transition outcome.
type Action string

const (
	ActionChildCheckedIn   Action = "child_checked_in"
	ActionChildCheckedOut  Action = "child_checked_out"
	ActionCheckInRejected  Action = "check_in_rejected"
	ActionCheckOutRejected Action = "check_out_rejected"
)

// Store persists audit events for later review.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Publisher fans events out to an external sink (Kafka). Implementations must
// tolerate being nil-checked by callers; publishing is best-effort and never
// blocks a transition.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
