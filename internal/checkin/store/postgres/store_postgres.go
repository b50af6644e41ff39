// Package postgres persists check-in state in PostgreSQL. The capacity guard
// lives in the UPDATE's WHERE clause, so two transactions racing for the last
// spot cannot both take it regardless of what their validation snapshots saw.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shepherd/internal/checkin/models"
	id "shepherd/pkg/domain"
	"shepherd/pkg/platform/sentinel"
)

// Store is a Repository backed by a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const childColumns = `
	id, parent_id, first_name, last_name, date_of_birth,
	medical_notes, dietary_notes,
	emergency_contact_name, emergency_contact_phone, emergency_contact_relationship,
	status, current_service_id, check_in_time, check_out_time`

const serviceColumns = `
	id, name, min_age, max_age, max_capacity, current_capacity,
	is_accepting_check_ins, staff_ids, start_time, end_time`

const recordColumns = `
	id, child_id, service_id, check_in_time, check_out_time,
	checked_in_by, checked_out_by, notes, status`

func (s *Store) GetChildByID(ctx context.Context, childID id.ChildID) (models.Child, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT`+childColumns+` FROM children WHERE id = $1`, childID.String())
	child, err := scanChild(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Child{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Child{}, fmt.Errorf("get child by id: %w", err)
	}
	return child, nil
}

func (s *Store) GetServiceByID(ctx context.Context, serviceID id.ServiceID) (models.KidsService, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT`+serviceColumns+` FROM kids_services WHERE id = $1`, serviceID.String())
	service, err := scanService(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.KidsService{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.KidsService{}, fmt.Errorf("get service by id: %w", err)
	}
	return service, nil
}

func (s *Store) GetServicesAcceptingCheckIns(ctx context.Context) ([]models.KidsService, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT`+serviceColumns+` FROM kids_services WHERE is_accepting_check_ins ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list accepting services: %w", err)
	}
	defer rows.Close()

	var services []models.KidsService
	for rows.Next() {
		service, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, service)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list accepting services: %w", err)
	}
	return services, nil
}

// GetOpenRecordByChild returns the child's CHECKED_IN record. The partial
// index on open records keeps this a single-row lookup.
func (s *Store) GetOpenRecordByChild(ctx context.Context, childID id.ChildID) (models.CheckInRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT`+recordColumns+` FROM check_in_records WHERE child_id = $1 AND status = $2`,
		childID.String(), id.StatusCheckedIn)
	record, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.CheckInRecord{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.CheckInRecord{}, fmt.Errorf("get open record by child: %w", err)
	}
	return record, nil
}

// CheckInChild applies the full transition in one transaction. The occupancy
// increment only matches while current_capacity < max_capacity; a zero-row
// update against an existing, accepting service means the guard lost the
// race and is reported as sentinel.ErrConflict.
func (s *Store) CheckInChild(ctx context.Context, childID id.ChildID, serviceID id.ServiceID, checkedInBy id.ActorID, notes string) (models.CheckInRecord, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.CheckInRecord{}, fmt.Errorf("begin check-in: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE kids_services
		SET current_capacity = current_capacity + 1
		WHERE id = $1 AND current_capacity < max_capacity`,
		serviceID.String())
	if err != nil {
		return models.CheckInRecord{}, fmt.Errorf("reserve spot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM kids_services WHERE id = $1)`,
			serviceID.String()).Scan(&exists); err != nil {
			return models.CheckInRecord{}, fmt.Errorf("classify failed reservation: %w", err)
		}
		if !exists {
			return models.CheckInRecord{}, sentinel.ErrNotFound
		}
		return models.CheckInRecord{}, sentinel.ErrConflict
	}

	tag, err = tx.Exec(ctx, `
		UPDATE children
		SET status = $2, current_service_id = $3, check_in_time = now(), check_out_time = NULL
		WHERE id = $1 AND status <> $2`,
		childID.String(), id.StatusCheckedIn, serviceID.String())
	if err != nil {
		return models.CheckInRecord{}, fmt.Errorf("mark child checked in: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM children WHERE id = $1)`,
			childID.String()).Scan(&exists); err != nil {
			return models.CheckInRecord{}, fmt.Errorf("classify failed transition: %w", err)
		}
		if !exists {
			return models.CheckInRecord{}, sentinel.ErrNotFound
		}
		return models.CheckInRecord{}, sentinel.ErrInvalidState
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO check_in_records
			(id, child_id, service_id, check_in_time, checked_in_by, notes, status)
		VALUES ($1, $2, $3, now(), $4, $5, $6)
		RETURNING`+recordColumns,
		uuid.NewString(), childID.String(), serviceID.String(),
		checkedInBy.String(), notes, id.StatusCheckedIn)
	record, err := scanRecord(row)
	if err != nil {
		return models.CheckInRecord{}, fmt.Errorf("insert check-in record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.CheckInRecord{}, fmt.Errorf("commit check-in: %w", err)
	}
	return record, nil
}

// CheckOutChild releases the child and their spot in one transaction. A
// dangling current_service_id does not block the release; only the occupancy
// decrement is skipped. If no open record exists one is synthesized so the
// attendance trail always shows the exit.
func (s *Store) CheckOutChild(ctx context.Context, childID id.ChildID, checkedOutBy id.ActorID, notes string) (models.CheckInRecord, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.CheckInRecord{}, fmt.Errorf("begin check-out: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT`+childColumns+` FROM children WHERE id = $1 FOR UPDATE`, childID.String())
	child, err := scanChild(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.CheckInRecord{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.CheckInRecord{}, fmt.Errorf("lock child: %w", err)
	}
	if child.Status != id.StatusCheckedIn {
		return models.CheckInRecord{}, sentinel.ErrInvalidState
	}

	if _, err := tx.Exec(ctx, `
		UPDATE kids_services
		SET current_capacity = GREATEST(current_capacity - 1, 0)
		WHERE id = $1`,
		child.CurrentServiceID.String()); err != nil {
		return models.CheckInRecord{}, fmt.Errorf("release spot: %w", err)
	}

	row = tx.QueryRow(ctx, `
		UPDATE check_in_records
		SET check_out_time = now(), checked_out_by = $2, status = $3,
		    notes = CASE WHEN $4 <> '' THEN $4 ELSE notes END
		WHERE child_id = $1 AND status = $5
		RETURNING`+recordColumns,
		childID.String(), checkedOutBy.String(), id.StatusCheckedOut, notes, id.StatusCheckedIn)
	record, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		row = tx.QueryRow(ctx, `
			INSERT INTO check_in_records
				(id, child_id, service_id, check_in_time, check_out_time,
				 checked_in_by, checked_out_by, notes, status)
			VALUES ($1, $2, $3, now(), now(), '', $4, $5, $6)
			RETURNING`+recordColumns,
			uuid.NewString(), childID.String(), child.CurrentServiceID.String(),
			checkedOutBy.String(), notes, id.StatusCheckedOut)
		record, err = scanRecord(row)
	}
	if err != nil {
		return models.CheckInRecord{}, fmt.Errorf("close check-in record: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE children
		SET status = $2, current_service_id = NULL, check_in_time = NULL, check_out_time = now()
		WHERE id = $1`,
		childID.String(), id.StatusCheckedOut); err != nil {
		return models.CheckInRecord{}, fmt.Errorf("mark child checked out: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.CheckInRecord{}, fmt.Errorf("commit check-out: %w", err)
	}
	return record, nil
}

// PutChild upserts a child snapshot. Registration lives upstream; this keeps
// seed and test fixtures symmetric with the in-memory store.
func (s *Store) PutChild(ctx context.Context, child models.Child) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO children (`+childColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			parent_id = EXCLUDED.parent_id,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			date_of_birth = EXCLUDED.date_of_birth,
			medical_notes = EXCLUDED.medical_notes,
			dietary_notes = EXCLUDED.dietary_notes,
			emergency_contact_name = EXCLUDED.emergency_contact_name,
			emergency_contact_phone = EXCLUDED.emergency_contact_phone,
			emergency_contact_relationship = EXCLUDED.emergency_contact_relationship,
			status = EXCLUDED.status,
			current_service_id = EXCLUDED.current_service_id,
			check_in_time = EXCLUDED.check_in_time,
			check_out_time = EXCLUDED.check_out_time`,
		child.ID.String(), child.ParentID.String(), child.FirstName, child.LastName,
		child.DateOfBirth, child.MedicalNotes, child.DietaryNotes,
		child.EmergencyContact.Name, child.EmergencyContact.Phone, child.EmergencyContact.Relationship,
		child.Status, nullableID(child.CurrentServiceID.String()), child.CheckInTime, child.CheckOutTime)
	if err != nil {
		return fmt.Errorf("upsert child: %w", err)
	}
	return nil
}

// PutService upserts a service snapshot.
func (s *Store) PutService(ctx context.Context, service models.KidsService) error {
	staffIDs := make([]string, len(service.StaffIDs))
	for i, staffID := range service.StaffIDs {
		staffIDs[i] = string(staffID)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kids_services (`+serviceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			min_age = EXCLUDED.min_age,
			max_age = EXCLUDED.max_age,
			max_capacity = EXCLUDED.max_capacity,
			current_capacity = EXCLUDED.current_capacity,
			is_accepting_check_ins = EXCLUDED.is_accepting_check_ins,
			staff_ids = EXCLUDED.staff_ids,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time`,
		service.ID.String(), service.Name, service.MinAge, service.MaxAge,
		service.MaxCapacity, service.CurrentCapacity, service.IsAcceptingCheckIns,
		staffIDs, service.StartTime, service.EndTime)
	if err != nil {
		return fmt.Errorf("upsert service: %w", err)
	}
	return nil
}

func nullableID(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
