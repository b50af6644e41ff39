// Package models holds the entities the check-in core operates on. Snapshots
// of Child and KidsService are owned by the server; everything here is a plain
// value that validation and the state machine can copy freely.
package models

import (
	"time"

	id "shepherd/pkg/domain"
)

// EmergencyContact must be complete before a child can be enrolled. All three
// fields are required and non-blank.
type EmergencyContact struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship"`
}

// IsComplete reports whether every required contact field is filled in.
func (c EmergencyContact) IsComplete() bool {
	return c.Name != "" && c.Phone != "" && c.Relationship != ""
}

// Child is a server-owned snapshot of a child's registration and check-in
// state.
//
// Invariant: CurrentServiceID and CheckInTime are both set or both nil, except
// transiently during check-out (CheckOutTime set, status CHECKED_OUT,
// CurrentServiceID cleared).
type Child struct {
	ID               id.ChildID       `json:"id"`
	ParentID         id.ActorID       `json:"parentId"`
	FirstName        string           `json:"firstName"`
	LastName         string           `json:"lastName"`
	DateOfBirth      time.Time        `json:"dateOfBirth"`
	MedicalNotes     string           `json:"medicalNotes,omitempty"`
	DietaryNotes     string           `json:"dietaryNotes,omitempty"`
	EmergencyContact EmergencyContact `json:"emergencyContact"`

	Status           id.CheckInStatus `json:"status"`
	CurrentServiceID id.ServiceID     `json:"currentServiceId,omitempty"`
	CheckInTime      *time.Time       `json:"checkInTime,omitempty"`
	CheckOutTime     *time.Time       `json:"checkOutTime,omitempty"`
}

// AgeAt returns the child's age in full years at the given instant.
func (c Child) AgeAt(now time.Time) int {
	age := now.Year() - c.DateOfBirth.Year()
	anniversary := c.DateOfBirth.AddDate(age, 0, 0)
	if anniversary.After(now) {
		age--
	}
	return age
}

// KidsService is a server-owned snapshot of one supervised service occurrence.
//
// Invariant: 0 <= CurrentCapacity <= MaxCapacity.
type KidsService struct {
	ID                  id.ServiceID `json:"id"`
	Name                string       `json:"name"`
	MinAge              int          `json:"minAge"`
	MaxAge              int          `json:"maxAge"`
	MaxCapacity         int          `json:"maxCapacity"`
	CurrentCapacity     int          `json:"currentCapacity"`
	IsAcceptingCheckIns bool         `json:"isAcceptingCheckIns"`
	StaffIDs            []id.StaffID `json:"staffIds"`
	StartTime           time.Time    `json:"startTime"`
	EndTime             time.Time    `json:"endTime"`
}

// AvailableSpots returns how many more children the service can admit.
func (s KidsService) AvailableSpots() int {
	return s.MaxCapacity - s.CurrentCapacity
}

// HasAvailableSpots reports whether at least one spot remains.
func (s KidsService) HasAvailableSpots() bool {
	return s.AvailableSpots() > 0
}

// AcceptsAge reports whether the age falls inside the inclusive window.
func (s KidsService) AcceptsAge(age int) bool {
	return age >= s.MinAge && age <= s.MaxAge
}

// CheckInRecord links one child to one service occurrence. A child has at most
// one record with status CHECKED_IN at any time; the state machine enforces
// that, not storage constraints.
type CheckInRecord struct {
	ID           id.RecordID      `json:"id"`
	ChildID      id.ChildID       `json:"childId"`
	ServiceID    id.ServiceID     `json:"serviceId"`
	CheckInTime  time.Time        `json:"checkInTime"`
	CheckOutTime *time.Time       `json:"checkOutTime,omitempty"`
	CheckedInBy  id.ActorID       `json:"checkedInBy"`
	CheckedOutBy id.ActorID       `json:"checkedOutBy,omitempty"`
	Notes        string           `json:"notes,omitempty"`
	Status       id.CheckInStatus `json:"status"`
}

// EligibleService is the read-only projection returned by the eligibility
// query: a service the child could enter right now, flagged for UI ranking.
type EligibleService struct {
	Service        KidsService `json:"service"`
	AvailableSpots int         `json:"availableSpots"`
	IsRecommended  bool        `json:"isRecommended"`
}
