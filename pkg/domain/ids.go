// Package domain holds the typed identifiers and enums shared across the
// check-in core. Identifiers are opaque strings assigned by the server; typing
// them prevents a ChildID from being passed where a ServiceID belongs.
package domain

import dErrors "shepherd/pkg/domain-errors"

type (
	// ChildID identifies a child in the family registry.
	ChildID string
	// ServiceID identifies a kids service occurrence.
	ServiceID string
	// ActorID identifies whoever performs a transition: a parent or a staff
	// member. Child.ParentID is an ActorID so authorization is a comparison.
	ActorID string
	// StaffID identifies a staff member on a service roster.
	StaffID string
	// RecordID identifies a single check-in record.
	RecordID string
)

func (id ChildID) String() string   { return string(id) }
func (id ServiceID) String() string { return string(id) }
func (id ActorID) String() string   { return string(id) }
func (id StaffID) String() string   { return string(id) }
func (id RecordID) String() string  { return string(id) }

func (id ChildID) IsEmpty() bool   { return id == "" }
func (id ServiceID) IsEmpty() bool { return id == "" }
func (id ActorID) IsEmpty() bool   { return id == "" }
func (id StaffID) IsEmpty() bool   { return id == "" }
func (id RecordID) IsEmpty() bool  { return id == "" }

// ParseChildID constructs a ChildID from external input.
// Errors: returns CodeInvalidInput when the value is blank.
func ParseChildID(s string) (ChildID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "child id cannot be empty")
	}
	return ChildID(s), nil
}

// ParseServiceID constructs a ServiceID from external input.
// Errors: returns CodeInvalidInput when the value is blank.
func ParseServiceID(s string) (ServiceID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "service id cannot be empty")
	}
	return ServiceID(s), nil
}

// ParseActorID constructs an ActorID from external input.
// Errors: returns CodeInvalidInput when the value is blank.
func ParseActorID(s string) (ActorID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "actor id cannot be empty")
	}
	return ActorID(s), nil
}
