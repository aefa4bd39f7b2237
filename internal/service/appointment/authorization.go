package appointment

import (
	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/pkg/errors"
)

// authorizeCreate lets admins book for anyone, doctors book into their own
// calendar and patients book for themselves.
func authorizeCreate(actor model.Identity, doctorID, patientID uuid.UUID) error {
	switch actor.Role {
	case model.RoleAdmin:
		return nil
	case model.RoleDoctor:
		if actor.Is(doctorID) {
			return nil
		}
	case model.RolePatient:
		if actor.Is(patientID) {
			return nil
		}
	}
	return errors.NewUnauthorized("not allowed to book for another user", nil)
}

// authorizeParticipant admits admins and the appointment's own doctor or
// patient.
func authorizeParticipant(actor model.Identity, apt *model.Appointment) error {
	switch {
	case actor.IsAdmin():
		return nil
	case actor.Role == model.RoleDoctor && actor.Is(apt.DoctorID):
		return nil
	case actor.Role == model.RolePatient && actor.Is(apt.PatientID):
		return nil
	}
	return errors.NewUnauthorized("not a participant of this appointment", nil)
}

// authorizeStatusChange: anyone taking part may cancel; only the doctor
// (or an admin) runs the visit.
func authorizeStatusChange(actor model.Identity, apt *model.Appointment, next model.AppointmentStatus) error {
	if next == model.AppointmentStatusCancelled {
		return authorizeParticipant(actor, apt)
	}
	if actor.IsAdmin() || (actor.Role == model.RoleDoctor && actor.Is(apt.DoctorID)) {
		return nil
	}
	return errors.NewUnauthorized("only the appointment's doctor can change its status", nil)
}

func authorizeRead(actor model.Identity, apt *model.Appointment) error {
	if actor.Role == model.RoleDoctor {
		return nil
	}
	return authorizeParticipant(actor, apt)
}

func authorizePatientListing(actor model.Identity, patientID uuid.UUID) error {
	if actor.IsAdmin() || actor.Role == model.RoleDoctor || actor.Is(patientID) {
		return nil
	}
	return errors.NewUnauthorized("not allowed to list another patient's appointments", nil)
}

func authorizeDoctorListing(actor model.Identity) error {
	if actor.IsAdmin() || actor.Role == model.RoleDoctor {
		return nil
	}
	return errors.NewUnauthorized("patients see availability, not other bookings", nil)
}
