package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentEventType string

const (
	AppointmentCreated     AppointmentEventType = "AppointmentCreated"
	AppointmentCancelled   AppointmentEventType = "AppointmentCancelled"
	AppointmentRescheduled AppointmentEventType = "AppointmentRescheduled"
)

// AppointmentEvent is emitted to the notification dispatcher after a
// booking change has been committed.
type AppointmentEvent struct {
	Type          AppointmentEventType `json:"type"`
	AppointmentID uuid.UUID            `json:"appointment_id"`
	DoctorID      uuid.UUID            `json:"doctor_id"`
	PatientID     uuid.UUID            `json:"patient_id"`
	StartTime     time.Time            `json:"start_time"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

func NewAppointmentEvent(t AppointmentEventType, apt *Appointment, now time.Time) AppointmentEvent {
	return AppointmentEvent{
		Type:          t,
		AppointmentID: apt.ID,
		DoctorID:      apt.DoctorID,
		PatientID:     apt.PatientID,
		StartTime:     apt.StartTime,
		OccurredAt:    now.UTC(),
	}
}

// Key partitions events per appointment on keyed brokers.
func (e AppointmentEvent) Key() string {
	return e.AppointmentID.String()
}
