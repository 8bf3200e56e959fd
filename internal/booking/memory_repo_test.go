package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Compile-time check that the fake satisfies the repository contract.
var _ Repository = (*memRepo)(nil)

// memRepo is a mutex-guarded in-memory Repository with the same conditional
// update semantics as the Postgres implementation: every mutation checks the
// row's current status under the lock and reports the typed error on a miss.
// That makes it a faithful stand-in for race tests.
type memRepo struct {
	mu       sync.Mutex
	doctors  map[uuid.UUID]Doctor
	patients map[uuid.UUID]Patient
	slots    map[uuid.UUID]*Slot
	events   []EventLog
}

func newMemRepo() *memRepo {
	return &memRepo{
		doctors:  make(map[uuid.UUID]Doctor),
		patients: make(map[uuid.UUID]Patient),
		slots:    make(map[uuid.UUID]*Slot),
	}
}

func (m *memRepo) addDoctor(d Doctor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doctors[d.ID] = d
}

func (m *memRepo) addPatient(p Patient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[p.ID] = p
}

func (m *memRepo) addSlot(s Slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := s
	m.slots[s.ID] = &cp
}

func (m *memRepo) getSlot(id uuid.UUID) Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.slots[id]
}

func (m *memRepo) eventsOfType(eventType string) []EventLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []EventLog
	for _, ev := range m.events {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func (m *memRepo) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (m *memRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (m *memRepo) GetSlotByID(_ context.Context, id uuid.UUID) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memRepo) FindAvailableSlot(_ context.Context, doctorID uuid.UUID, date time.Time, startTime string) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.slots {
		if s.DoctorID == doctorID && s.VisitDate.Equal(date) && s.StartTime == startTime && s.Status == SlotAvailable {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrSlotNotFound
}

func (m *memRepo) FindBookedSlotForPatientAt(_ context.Context, patientID uuid.UUID, date time.Time, startTime string) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.slots {
		if s.Status == SlotBooked && s.PatientID != nil && *s.PatientID == patientID &&
			s.VisitDate.Equal(date) && s.StartTime == startTime {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrSlotNotFound
}

func (m *memRepo) ListAvailableSlots(_ context.Context, doctorID uuid.UUID, date time.Time) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Slot
	for _, s := range m.slots {
		if s.DoctorID == doctorID && s.VisitDate.Equal(date) && s.Status == SlotAvailable {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

// patientBookedAtLocked reports whether the patient already holds a booked
// slot at (date, startTime) on a row other than exclude. Mirrors the partial
// unique index uq_slots_patient_booking. Caller holds m.mu.
func (m *memRepo) patientBookedAtLocked(patientID uuid.UUID, date time.Time, startTime string, exclude uuid.UUID) bool {
	for _, s := range m.slots {
		if s.ID == exclude {
			continue
		}
		if s.Status == SlotBooked && s.PatientID != nil && *s.PatientID == patientID &&
			s.VisitDate.Equal(date) && s.StartTime == startTime {
			return true
		}
	}
	return false
}

func (m *memRepo) ClaimSlot(_ context.Context, slotID, patientID uuid.UUID, notes string) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[slotID]
	if !ok || s.Status != SlotAvailable {
		return nil, ErrSlotUnavailable
	}
	if m.patientBookedAtLocked(patientID, s.VisitDate, s.StartTime, s.ID) {
		return nil, ErrDoubleBooking
	}
	pid := patientID
	s.Status = SlotBooked
	s.PatientID = &pid
	s.Notes = notes
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

func (m *memRepo) CancelSlot(_ context.Context, slotID uuid.UUID) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[slotID]
	if !ok || s.Status != SlotBooked {
		return nil, ErrInvalidTransition
	}
	s.Status = SlotCancelled
	s.PatientID = nil
	s.Notes = ""
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

func (m *memRepo) CompleteSlot(_ context.Context, slotID uuid.UUID, diagnosis, prescription string) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[slotID]
	if !ok || s.Status != SlotBooked {
		return nil, ErrInvalidTransition
	}
	s.Status = SlotCompleted
	s.Diagnosis = diagnosis
	s.Prescription = prescription
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

func (m *memRepo) MoveBooking(_ context.Context, sourceSlotID, targetSlotID, patientID uuid.UUID, notes string) (*Slot, *Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.slots[sourceSlotID]
	if !ok || src.Status != SlotBooked || src.PatientID == nil || *src.PatientID != patientID {
		return nil, nil, ErrInvalidTransition
	}
	tgt, ok := m.slots[targetSlotID]
	if !ok || tgt.Status != SlotAvailable {
		return nil, nil, ErrSlotUnavailable
	}
	// The source is released in the same transaction, so it does not count
	// against the one-booking-per-time constraint.
	if m.patientBookedAtLocked(patientID, tgt.VisitDate, tgt.StartTime, sourceSlotID) {
		return nil, nil, ErrDoubleBooking
	}

	// Both preconditions held, apply both sides.
	src.Status = SlotAvailable
	src.PatientID = nil
	src.Notes = ""
	src.UpdatedAt = time.Now()

	pid := patientID
	tgt.Status = SlotBooked
	tgt.PatientID = &pid
	tgt.Notes = notes
	tgt.UpdatedAt = time.Now()

	srcCp, tgtCp := *src, *tgt
	return &srcCp, &tgtCp, nil
}

func (m *memRepo) ListBookedSlotsNeedingReminder(_ context.Context, date time.Time) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reminded := make(map[uuid.UUID]bool)
	for _, ev := range m.events {
		if ev.EventType == EventSlotReminder && ev.SlotID != nil {
			reminded[*ev.SlotID] = true
		}
	}

	var out []Slot
	for _, s := range m.slots {
		if s.Status == SlotBooked && s.VisitDate.Equal(date) && !reminded[s.ID] {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (m *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = int64(len(m.events) + 1)
	m.events = append(m.events, ev)
	return nil
}
