package postgres

import (
	"time"

	"shepherd/internal/checkin/models"
	id "shepherd/pkg/domain"
)

type scanner interface {
	Scan(dest ...any) error
}

func scanChild(row scanner) (models.Child, error) {
	var (
		child            models.Child
		currentServiceID *string
	)
	err := row.Scan(
		&child.ID, &child.ParentID, &child.FirstName, &child.LastName, &child.DateOfBirth,
		&child.MedicalNotes, &child.DietaryNotes,
		&child.EmergencyContact.Name, &child.EmergencyContact.Phone, &child.EmergencyContact.Relationship,
		&child.Status, &currentServiceID, &child.CheckInTime, &child.CheckOutTime,
	)
	if err != nil {
		return models.Child{}, err
	}
	if currentServiceID != nil {
		child.CurrentServiceID = id.ServiceID(*currentServiceID)
	}
	return child, nil
}

func scanService(row scanner) (models.KidsService, error) {
	var (
		service  models.KidsService
		staffIDs []string
	)
	err := row.Scan(
		&service.ID, &service.Name, &service.MinAge, &service.MaxAge,
		&service.MaxCapacity, &service.CurrentCapacity,
		&service.IsAcceptingCheckIns, &staffIDs, &service.StartTime, &service.EndTime,
	)
	if err != nil {
		return models.KidsService{}, err
	}
	service.StaffIDs = make([]id.StaffID, len(staffIDs))
	for i, staffID := range staffIDs {
		service.StaffIDs[i] = id.StaffID(staffID)
	}
	return service, nil
}

func scanRecord(row scanner) (models.CheckInRecord, error) {
	var (
		record       models.CheckInRecord
		checkOutTime *time.Time
	)
	err := row.Scan(
		&record.ID, &record.ChildID, &record.ServiceID,
		&record.CheckInTime, &checkOutTime,
		&record.CheckedInBy, &record.CheckedOutBy, &record.Notes, &record.Status,
	)
	if err != nil {
		return models.CheckInRecord{}, err
	}
	record.CheckOutTime = checkOutTime
	return record, nil
}
