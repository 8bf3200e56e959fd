package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS doctors (
		id uuid PRIMARY KEY,
		name text NOT NULL,
		specialty text,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS patients (
		id uuid PRIMARY KEY,
		name text NOT NULL,
		email text,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS slots (
		id uuid PRIMARY KEY,
		doctor_id uuid NOT NULL REFERENCES doctors(id),
		visit_date date NOT NULL,
		start_time text NOT NULL,
		status text NOT NULL DEFAULT 'available',
		patient_id uuid REFERENCES patients(id),
		notes text NOT NULL DEFAULT '',
		diagnosis text NOT NULL DEFAULT '',
		prescription text NOT NULL DEFAULT '',
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_slots_doctor_day
		ON slots (doctor_id, visit_date, start_time)`,
	// A patient holds at most one booked slot per (date, time); the index is
	// the authority, claim paths map its violation to the double-booking error.
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_slots_patient_booking
		ON slots (patient_id, visit_date, start_time) WHERE status = 'booked'`,
	`CREATE TABLE IF NOT EXISTS event_logs (
		id bigserial PRIMARY KEY,
		event_type text NOT NULL,
		slot_id uuid,
		payload jsonb,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_event_logs_slot
		ON event_logs (slot_id, event_type)`,
}

// Migrate applies the schema. Statements are idempotent so it is safe to run
// on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
