package domain

// CheckInStatus is the child-level lifecycle state. Lifecycle:
// NOT_IN_SERVICE/CHECKED_OUT -> (check-in) -> CHECKED_IN -> (check-out) ->
// CHECKED_OUT. There is no direct CHECKED_IN -> NOT_IN_SERVICE path.
type CheckInStatus string

const (
	StatusNotInService CheckInStatus = "NOT_IN_SERVICE"
	StatusCheckedIn    CheckInStatus = "CHECKED_IN"
	StatusCheckedOut   CheckInStatus = "CHECKED_OUT"
)

// validStatuses is the single source of truth for valid lifecycle states.
var validStatuses = map[CheckInStatus]bool{
	StatusNotInService: true,
	StatusCheckedIn:    true,
	StatusCheckedOut:   true,
}

// IsValid checks if the status is one of the supported enum values.
func (s CheckInStatus) IsValid() bool {
	return validStatuses[s]
}

// CanCheckIn reports whether a child in this status may enter a service.
func (s CheckInStatus) CanCheckIn() bool {
	return s == StatusNotInService || s == StatusCheckedOut
}

// CanCheckOut reports whether a child in this status may leave a service.
func (s CheckInStatus) CanCheckOut() bool {
	return s == StatusCheckedIn
}
