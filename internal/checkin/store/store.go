// Package store defines the repository contract the check-in core consumes.
// Implementations own persistence mechanics; they report facts through
// sentinel errors and leave business-rule classification to the service.
package store

import (
	"context"

	"shepherd/internal/checkin/models"
	id "shepherd/pkg/domain"
)

// Repository is the persistence boundary for the check-in core.
//
// CheckInChild and CheckOutChild apply the whole transition atomically: child
// status, service occupancy, and the check-in record move together or not at
// all. Stores return sentinel.ErrNotFound for missing entities and
// sentinel.ErrConflict when a capacity guard loses a race at the storage
// layer.
type Repository interface {
	GetChildByID(ctx context.Context, childID id.ChildID) (models.Child, error)
	GetServiceByID(ctx context.Context, serviceID id.ServiceID) (models.KidsService, error)
	GetServicesAcceptingCheckIns(ctx context.Context) ([]models.KidsService, error)
	// GetOpenRecordByChild returns the child's CHECKED_IN record, or
	// sentinel.ErrNotFound when none is open.
	GetOpenRecordByChild(ctx context.Context, childID id.ChildID) (models.CheckInRecord, error)
	CheckInChild(ctx context.Context, childID id.ChildID, serviceID id.ServiceID, checkedInBy id.ActorID, notes string) (models.CheckInRecord, error)
	CheckOutChild(ctx context.Context, childID id.ChildID, checkedOutBy id.ActorID, notes string) (models.CheckInRecord, error)
}
