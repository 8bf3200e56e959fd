package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/slot-booking/internal/redlock"
)

const (
	EventSlotBooked      = "SLOT_BOOKED"
	EventSlotCancelled   = "SLOT_CANCELLED"
	EventSlotRescheduled = "SLOT_RESCHEDULED"
	EventSlotCompleted   = "SLOT_COMPLETED"
	EventSlotReminder    = "SLOT_REMINDER"
)

var (
	ErrInvalidTransition = errors.New("operation not allowed from current slot status")
	ErrDoubleBooking     = errors.New("patient already has a booked slot at that date and time")
	ErrPastDate          = errors.New("slot date is in the past")
	ErrSlotContended     = errors.New("slot is currently being booked, please retry")
)

// Service owns the slot state machine. It is safe for use by concurrent
// request handlers: cross-request ordering is delegated to the repository's
// conditional updates and transactions, with a per-slot Redis lock narrowing
// the window on the hot booking path.
type Service struct {
	repo   Repository
	locker redlock.Locker
	now    func() time.Time
}

func NewService(repo Repository, locker redlock.Locker) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		now:    time.Now,
	}
}

// today returns the current calendar date at midnight UTC.
func (s *Service) today() time.Time {
	y, m, d := s.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Service) isPastDate(date time.Time) bool {
	return date.Before(s.today())
}

// Book claims an available slot for a patient.
// Exactly one of two concurrent Book calls against the same slot succeeds;
// the other observes ErrSlotUnavailable.
func (s *Service) Book(ctx context.Context, slotID, patientID uuid.UUID, notes string) (*Slot, error) {
	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	slot, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load slot: %w", err)
	}
	if slot.Status != SlotAvailable {
		return nil, ErrSlotUnavailable
	}
	if s.isPastDate(slot.VisitDate) {
		return nil, ErrPastDate
	}

	var booked *Slot

	err = s.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		// Inside the critical section re-check the patient's schedule, then
		// commit via the conditional update.
		if err := s.checkDoubleBooking(lockCtx, patientID, slot.VisitDate, slot.StartTime, uuid.Nil); err != nil {
			return err
		}

		claimed, err := s.repo.ClaimSlot(lockCtx, slotID, patientID, notes)
		if err != nil {
			if errors.Is(err, ErrSlotUnavailable) || errors.Is(err, ErrDoubleBooking) {
				return err
			}
			return fmt.Errorf("claim slot: %w", err)
		}

		booked = claimed
		return nil
	})

	if err != nil {
		if errors.Is(err, redlock.ErrLockNotAcquired) {
			return nil, ErrSlotContended
		}
		return nil, err
	}

	s.logEvent(ctx, booked.ID, EventSlotBooked, map[string]any{
		"patient_id": patientID.String(),
		"visit_date": booked.VisitDate.Format("2006-01-02"),
		"start_time": booked.StartTime,
	})

	return booked, nil
}

// Cancel moves a booked slot to the terminal cancelled state and clears the
// patient's claim. The freed (doctor, date, time) is NOT reopened: a fresh
// available slot has to be created by schedule generation. Reschedule, by
// contrast, does release its source back to available. That asymmetry is a
// product decision carried over as observed, not something to normalize here.
func (s *Service) Cancel(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	slot, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load slot: %w", err)
	}
	if !slot.Status.CanTransition(SlotCancelled) {
		return nil, ErrInvalidTransition
	}
	if s.isPastDate(slot.VisitDate) {
		return nil, ErrPastDate
	}

	cancelled, err := s.repo.CancelSlot(ctx, slotID)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return nil, err
		}
		return nil, fmt.Errorf("cancel slot: %w", err)
	}

	s.logEvent(ctx, cancelled.ID, EventSlotCancelled, map[string]any{
		"visit_date": cancelled.VisitDate.Format("2006-01-02"),
		"start_time": cancelled.StartTime,
	})

	return cancelled, nil
}

// Reschedule moves a booking from its current slot to the available slot at
// (doctor, date, time). targetDoctorID defaults to the source slot's doctor
// when nil. Release of the source and claim of the target commit as one
// transaction; a reader never observes one side applied without the other.
func (s *Service) Reschedule(ctx context.Context, sourceSlotID uuid.UUID, targetDoctorID *uuid.UUID, targetDate time.Time, targetTime string) (source, target *Slot, err error) {
	src, err := s.repo.GetSlotByID(ctx, sourceSlotID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("load source slot: %w", err)
	}
	if !src.Status.CanTransition(SlotAvailable) || src.PatientID == nil {
		return nil, nil, ErrInvalidTransition
	}
	patientID := *src.PatientID

	doctorID := src.DoctorID
	if targetDoctorID != nil {
		doctorID = *targetDoctorID
		if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
			if errors.Is(err, ErrDoctorNotFound) {
				return nil, nil, err
			}
			return nil, nil, fmt.Errorf("load target doctor: %w", err)
		}
	}

	if s.isPastDate(targetDate) {
		return nil, nil, ErrPastDate
	}

	tgt, err := s.repo.FindAvailableSlot(ctx, doctorID, targetDate, targetTime)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, nil, ErrSlotUnavailable
		}
		return nil, nil, fmt.Errorf("find target slot: %w", err)
	}

	err = s.locker.WithSlotLock(ctx, tgt.ID, func(lockCtx context.Context) error {
		// The slot being moved does not count as a conflict with itself.
		if err := s.checkDoubleBooking(lockCtx, patientID, targetDate, targetTime, sourceSlotID); err != nil {
			return err
		}

		source, target, err = s.repo.MoveBooking(lockCtx, sourceSlotID, tgt.ID, patientID, src.Notes)
		if err != nil {
			if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrSlotUnavailable) || errors.Is(err, ErrDoubleBooking) {
				return err
			}
			return fmt.Errorf("move booking: %w", err)
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, redlock.ErrLockNotAcquired) {
			return nil, nil, ErrSlotContended
		}
		return nil, nil, err
	}

	s.logEvent(ctx, target.ID, EventSlotRescheduled, map[string]any{
		"source_slot_id": source.ID.String(),
		"patient_id":     patientID.String(),
		"visit_date":     target.VisitDate.Format("2006-01-02"),
		"start_time":     target.StartTime,
	})

	return source, target, nil
}

// Complete records the visit outcome on a booked slot. Completing an already
// completed slot fails with ErrInvalidTransition rather than being
// idempotent; the first completion's notes win. There is no past-date guard:
// completing yesterday's visit is the normal case.
func (s *Service) Complete(ctx context.Context, slotID uuid.UUID, diagnosis, prescription string) (*Slot, error) {
	slot, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load slot: %w", err)
	}
	if !slot.Status.CanTransition(SlotCompleted) {
		return nil, ErrInvalidTransition
	}

	completed, err := s.repo.CompleteSlot(ctx, slotID, diagnosis, prescription)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return nil, err
		}
		return nil, fmt.Errorf("complete slot: %w", err)
	}

	s.logEvent(ctx, completed.ID, EventSlotCompleted, map[string]any{
		"visit_date": completed.VisitDate.Format("2006-01-02"),
		"start_time": completed.StartTime,
	})

	return completed, nil
}

// ListAvailableSlots returns the doctor's open slots for one day, ordered by
// start time ascending.
func (s *Service) ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Slot, error) {
	slots, err := s.repo.ListAvailableSlots(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list available slots: %w", err)
	}
	return slots, nil
}

// AvailableSlots is the restartable sequence form of ListAvailableSlots.
// Each range over the sequence re-runs the query, so a second pass observes
// a fresh snapshot of the schedule.
func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) iter.Seq2[Slot, error] {
	return func(yield func(Slot, error) bool) {
		slots, err := s.repo.ListAvailableSlots(ctx, doctorID, date)
		if err != nil {
			yield(Slot{}, fmt.Errorf("list available slots: %w", err))
			return
		}
		for _, slot := range slots {
			if !yield(slot, nil) {
				return
			}
		}
	}
}

// SendDueReminders is intended to be called by the worker periodically. It
// emits one reminder event per booked slot scheduled for tomorrow; the event
// row doubles as the sent-marker, so a slot is never reminded twice.
func (s *Service) SendDueReminders(ctx context.Context) error {
	target := s.today().AddDate(0, 0, 1)

	due, err := s.repo.ListBookedSlotsNeedingReminder(ctx, target)
	if err != nil {
		return fmt.Errorf("find slots needing reminder: %w", err)
	}

	for _, slot := range due {
		payload, err := json.Marshal(map[string]any{
			"patient_id": slot.PatientID,
			"visit_date": slot.VisitDate.Format("2006-01-02"),
			"start_time": slot.StartTime,
		})
		if err != nil {
			log.Printf("failed to marshal reminder payload for slot %s: %v", slot.ID, err)
			continue
		}

		slotID := slot.ID
		ev := EventLog{
			EventType: EventSlotReminder,
			SlotID:    &slotID,
			Payload:   payload,
			CreatedAt: s.now(),
		}
		if err := s.repo.InsertEvent(ctx, ev); err != nil {
			log.Printf("failed to insert reminder event for slot %s: %v", slot.ID, err)
			continue
		}
	}

	return nil
}

// checkDoubleBooking fails when the patient already holds a booked slot at
// (date, time), no matter the doctor. excludeSlotID skips the booking being
// moved during a reschedule; pass uuid.Nil otherwise.
//
// This is a read-side fast path: slots being claimed concurrently under other
// per-slot locks are invisible to it. The repository's uniqueness rule on
// (patient, date, time) is the authority and reports ErrDoubleBooking from
// the claim itself.
func (s *Service) checkDoubleBooking(ctx context.Context, patientID uuid.UUID, date time.Time, startTime string, excludeSlotID uuid.UUID) error {
	existing, err := s.repo.FindBookedSlotForPatientAt(ctx, patientID, date, startTime)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil
		}
		return fmt.Errorf("check patient schedule: %w", err)
	}
	if existing.ID == excludeSlotID {
		return nil
	}
	return ErrDoubleBooking
}

func (s *Service) logEvent(ctx context.Context, slotID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	sID := slotID

	ev := EventLog{
		EventType: eventType,
		SlotID:    &sID,
		Payload:   data,
		CreatedAt: s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to insert event log %s for slot %s: %v", eventType, slotID, err)
	}
}
