package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound  = errors.New("doctor not found")
	ErrPatientNotFound = errors.New("patient not found")
	ErrSlotNotFound    = errors.New("slot not found")

	// ErrSlotUnavailable means the target slot was not in the available
	// state at commit time. A booking attempt that loses the race against a
	// concurrent request surfaces this error, never a silent no-op.
	ErrSlotUnavailable = errors.New("slot is not available")
)

// Repository contains all DB interactions needed by the service.
//
// The mutating methods are conditional updates: they apply only if the row's
// current status matches the expected source state, and report zero affected
// rows as a typed error instead of succeeding silently. That conditional
// write is the authority for resolving concurrent requests; callers must not
// assume any in-process lock is sufficient on its own.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error)

	// Lookups keyed by (doctor, date, time) and for conflict checks.
	FindAvailableSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, startTime string) (*Slot, error)
	FindBookedSlotForPatientAt(ctx context.Context, patientID uuid.UUID, date time.Time, startTime string) (*Slot, error)
	ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Slot, error)

	// ClaimSlot books an available slot for a patient. Fails with
	// ErrSlotUnavailable if the slot is no longer available at write time,
	// and with ErrDoubleBooking if the patient already holds a booked slot
	// at the same (date, time) — implementations enforce that uniqueness at
	// write time, not by a prior read.
	ClaimSlot(ctx context.Context, slotID, patientID uuid.UUID, notes string) (*Slot, error)

	// CancelSlot moves a booked slot to cancelled and clears the claim.
	// Fails with ErrInvalidTransition if the slot is not booked.
	CancelSlot(ctx context.Context, slotID uuid.UUID) (*Slot, error)

	// CompleteSlot moves a booked slot to completed, attaching visit notes.
	// Fails with ErrInvalidTransition if the slot is not booked.
	CompleteSlot(ctx context.Context, slotID uuid.UUID, diagnosis, prescription string) (*Slot, error)

	// MoveBooking releases the source slot back to available and claims the
	// target slot for the patient, as a single atomic unit. Either side
	// failing its status precondition aborts the whole move. The claim side
	// carries the same patient-uniqueness rule as ClaimSlot; the released
	// source does not count against it.
	MoveBooking(ctx context.Context, sourceSlotID, targetSlotID, patientID uuid.UUID, notes string) (source, target *Slot, err error)

	// Reminder worker: booked slots on date with no reminder event yet.
	ListBookedSlotsNeedingReminder(ctx context.Context, date time.Time) ([]Slot, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
