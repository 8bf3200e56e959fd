package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/slot-booking/internal/booking"
)

type BookSlotRequest struct {
	PatientID string `json:"patient_id"`
	Notes     string `json:"notes"`
}

type RescheduleSlotRequest struct {
	DoctorID string `json:"doctor_id,omitempty"` // optional, defaults to the source slot's doctor
	Date     string `json:"date"`                // YYYY-MM-DD
	Time     string `json:"time"`                // HH:MM
}

type CompleteSlotRequest struct {
	Diagnosis    string `json:"diagnosis,omitempty"`
	Prescription string `json:"prescription,omitempty"`
}

type SlotResponse struct {
	ID           uuid.UUID  `json:"id"`
	DoctorID     uuid.UUID  `json:"doctor_id"`
	Date         string     `json:"date"`
	Time         string     `json:"time"`
	Status       string     `json:"status"`
	PatientID    *uuid.UUID `json:"patient_id,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	Diagnosis    string     `json:"diagnosis,omitempty"`
	Prescription string     `json:"prescription,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type RescheduleSlotResponse struct {
	Source SlotResponse `json:"source"`
	Target SlotResponse `json:"target"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toSlotResponse(s *booking.Slot) SlotResponse {
	return SlotResponse{
		ID:           s.ID,
		DoctorID:     s.DoctorID,
		Date:         s.VisitDate.Format("2006-01-02"),
		Time:         s.StartTime,
		Status:       string(s.Status),
		PatientID:    s.PatientID,
		Notes:        s.Notes,
		Diagnosis:    s.Diagnosis,
		Prescription: s.Prescription,
		UpdatedAt:    s.UpdatedAt,
	}
}
