package booking

import (
	"time"

	"github.com/google/uuid"
)

// SlotStatus is the lifecycle state of a schedulable slot.
//
//	available -> booked -> cancelled | completed
//
// booked may also move back to available, but only as the release half of a
// reschedule. cancelled and completed are terminal.
type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotBooked    SlotStatus = "booked"
	SlotCancelled SlotStatus = "cancelled"
	SlotCompleted SlotStatus = "completed"
)

// Terminal reports whether no further transition is allowed from s.
func (s SlotStatus) Terminal() bool {
	return s == SlotCancelled || s == SlotCompleted
}

// CanTransition reports whether the slot state machine permits moving from s
// to next.
func (s SlotStatus) CanTransition(next SlotStatus) bool {
	switch s {
	case SlotAvailable:
		return next == SlotBooked
	case SlotBooked:
		return next == SlotAvailable || next == SlotCancelled || next == SlotCompleted
	default:
		return false
	}
}

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Slot is one schedulable (doctor, date, time) unit. Doctor, date and time
// are immutable after creation; a reschedule moves the booking to a different
// slot rather than editing this one.
//
// PatientID is non-nil exactly when the slot carries a claim (booked or
// completed). Cancelling clears the claim even though the slot is terminal.
type Slot struct {
	ID           uuid.UUID
	DoctorID     uuid.UUID
	VisitDate    time.Time // calendar date, midnight UTC
	StartTime    string    // "HH:MM", 24h clock
	Status       SlotStatus
	PatientID    *uuid.UUID
	Notes        string
	Diagnosis    string
	Prescription string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EventLog is an append-only audit record for a slot transition.
type EventLog struct {
	ID        int64
	EventType string
	SlotID    *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}
