package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS children (
	id                              TEXT PRIMARY KEY,
	parent_id                       TEXT NOT NULL,
	first_name                      TEXT NOT NULL,
	last_name                       TEXT NOT NULL DEFAULT '',
	date_of_birth                   TIMESTAMPTZ NOT NULL,
	medical_notes                   TEXT NOT NULL DEFAULT '',
	dietary_notes                   TEXT NOT NULL DEFAULT '',
	emergency_contact_name          TEXT NOT NULL DEFAULT '',
	emergency_contact_phone         TEXT NOT NULL DEFAULT '',
	emergency_contact_relationship  TEXT NOT NULL DEFAULT '',
	status                          TEXT NOT NULL DEFAULT 'NOT_IN_SERVICE',
	current_service_id              TEXT,
	check_in_time                   TIMESTAMPTZ,
	check_out_time                  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS kids_services (
	id                      TEXT PRIMARY KEY,
	name                    TEXT NOT NULL,
	min_age                 INT NOT NULL,
	max_age                 INT NOT NULL,
	max_capacity            INT NOT NULL,
	current_capacity        INT NOT NULL DEFAULT 0,
	is_accepting_check_ins  BOOLEAN NOT NULL DEFAULT FALSE,
	staff_ids               TEXT[] NOT NULL DEFAULT '{}',
	start_time              TIMESTAMPTZ NOT NULL DEFAULT now(),
	end_time                TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT occupancy_within_bounds CHECK (current_capacity >= 0 AND current_capacity <= max_capacity)
);

CREATE TABLE IF NOT EXISTS check_in_records (
	id              TEXT PRIMARY KEY,
	child_id        TEXT NOT NULL,
	service_id      TEXT NOT NULL,
	check_in_time   TIMESTAMPTZ NOT NULL,
	check_out_time  TIMESTAMPTZ,
	checked_in_by   TEXT NOT NULL DEFAULT '',
	checked_out_by  TEXT NOT NULL DEFAULT '',
	notes           TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS check_in_records_open_by_child
	ON check_in_records (child_id) WHERE status = 'CHECKED_IN';
`

// Migrate creates the check-in tables if they do not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply check-in schema: %w", err)
	}
	return nil
}
