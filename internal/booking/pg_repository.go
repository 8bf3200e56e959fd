package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const slotColumns = `id, doctor_id, visit_date, start_time, status, patient_id, notes, diagnosis, prescription, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var specialty *string

	err := row.Scan(
		&d.ID,
		&d.Name,
		&specialty,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.Specialty = specialty
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	var patientID *uuid.UUID

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.VisitDate,
		&s.StartTime,
		&s.Status,
		&patientID,
		&s.Notes,
		&s.Diagnosis,
		&s.Prescription,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.PatientID = patientID
	return &s, nil
}

func scanSlots(rows pgx.Rows) ([]Slot, error) {
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Interface methods

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) FindAvailableSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, startTime string) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE doctor_id = $1 AND visit_date = $2 AND start_time = $3 AND status = 'available'
		LIMIT 1
	`, doctorID, date, startTime)
	return scanSlot(row)
}

func (r *PgRepository) FindBookedSlotForPatientAt(ctx context.Context, patientID uuid.UUID, date time.Time, startTime string) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE patient_id = $1 AND visit_date = $2 AND start_time = $3 AND status = 'booked'
		LIMIT 1
	`, patientID, date, startTime)
	return scanSlot(row)
}

func (r *PgRepository) ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE doctor_id = $1 AND visit_date = $2 AND status = 'available'
		ORDER BY start_time ASC
	`, doctorID, date)
	if err != nil {
		return nil, err
	}
	return scanSlots(rows)
}

func (r *PgRepository) ClaimSlot(ctx context.Context, slotID, patientID uuid.UUID, notes string) (*Slot, error) {
	// Compare-and-set on status: of two concurrent claims exactly one sees
	// status = 'available' at write time; the loser gets zero rows back.
	row := r.pool.QueryRow(ctx, `
		UPDATE slots
		SET status = 'booked',
		    patient_id = $2,
		    notes = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'available'
		RETURNING `+slotColumns+`
	`, slotID, patientID, notes)

	slot, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, ErrSlotUnavailable
		}
		// uq_slots_patient_booking: the patient already holds a booked slot
		// at this (date, time) on some other row.
		if isUniqueViolation(err) {
			return nil, ErrDoubleBooking
		}
		return nil, err
	}
	return slot, nil
}

func (r *PgRepository) CancelSlot(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE slots
		SET status = 'cancelled',
		    patient_id = NULL,
		    notes = '',
		    updated_at = now()
		WHERE id = $1
		  AND status = 'booked'
		RETURNING `+slotColumns+`
	`, slotID)

	slot, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, err
	}
	return slot, nil
}

func (r *PgRepository) CompleteSlot(ctx context.Context, slotID uuid.UUID, diagnosis, prescription string) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE slots
		SET status = 'completed',
		    diagnosis = $2,
		    prescription = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'booked'
		RETURNING `+slotColumns+`
	`, slotID, diagnosis, prescription)

	slot, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, err
	}
	return slot, nil
}

func (r *PgRepository) MoveBooking(ctx context.Context, sourceSlotID, targetSlotID, patientID uuid.UUID, notes string) (*Slot, *Slot, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin move booking: %w", err)
	}
	defer tx.Rollback(ctx)

	// Release the source. The patient_id condition guards against the
	// booking having been moved or cancelled between the caller's read and
	// this write.
	row := tx.QueryRow(ctx, `
		UPDATE slots
		SET status = 'available',
		    patient_id = NULL,
		    notes = '',
		    updated_at = now()
		WHERE id = $1
		  AND status = 'booked'
		  AND patient_id = $2
		RETURNING `+slotColumns+`
	`, sourceSlotID, patientID)

	source, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, nil, ErrInvalidTransition
		}
		return nil, nil, fmt.Errorf("release source slot: %w", err)
	}

	row = tx.QueryRow(ctx, `
		UPDATE slots
		SET status = 'booked',
		    patient_id = $2,
		    notes = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'available'
		RETURNING `+slotColumns+`
	`, targetSlotID, patientID, notes)

	target, err := scanSlot(row)
	if err != nil {
		// Rolls back the release, so the source stays booked.
		if errors.Is(err, ErrSlotNotFound) {
			return nil, nil, ErrSlotUnavailable
		}
		if isUniqueViolation(err) {
			return nil, nil, ErrDoubleBooking
		}
		return nil, nil, fmt.Errorf("claim target slot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit move booking: %w", err)
	}

	return source, target, nil
}

func (r *PgRepository) ListBookedSlotsNeedingReminder(ctx context.Context, date time.Time) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+qualifiedSlotColumns("s")+`
		FROM slots s
		WHERE s.visit_date = $1
		  AND s.status = 'booked'
		  AND NOT EXISTS (
			SELECT 1 FROM event_logs e
			WHERE e.slot_id = s.id AND e.event_type = $2
		  )
		ORDER BY s.start_time ASC
	`, date, EventSlotReminder)
	if err != nil {
		return nil, err
	}
	return scanSlots(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, slot_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.SlotID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func qualifiedSlotColumns(alias string) string {
	return alias + ".id, " + alias + ".doctor_id, " + alias + ".visit_date, " +
		alias + ".start_time, " + alias + ".status, " + alias + ".patient_id, " +
		alias + ".notes, " + alias + ".diagnosis, " + alias + ".prescription, " +
		alias + ".created_at, " + alias + ".updated_at"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
