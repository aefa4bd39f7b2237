package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/email"
	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
)

type UserLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// EmailNotifier consumes appointment events from the broker and mails both
// the doctor and the patient.
type EmailNotifier struct {
	mailer   email.Service
	users    UserLookup
	location *time.Location
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewEmailNotifier(mailer email.Service, users UserLookup, location *time.Location, logger *logger.Logger, metrics *metrics.Metrics) *EmailNotifier {
	if location == nil {
		location = time.UTC
	}
	return &EmailNotifier{
		mailer:   mailer,
		users:    users,
		location: location,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run handles messages until the channel closes or ctx ends. Failures are
// logged; the message is not redelivered.
func (n *EmailNotifier) Run(ctx context.Context, messages <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if err := n.Handle(ctx, msg); err != nil {
				n.metrics.NotificationsDelivered.WithLabelValues("email", "error").Inc()
				n.logger.Error(err, "failed to email appointment event")
				continue
			}
			n.metrics.NotificationsDelivered.WithLabelValues("email", "success").Inc()
		}
	}
}

func (n *EmailNotifier) Handle(ctx context.Context, payload []byte) error {
	var event model.AppointmentEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("malformed appointment event: %w", err)
	}

	doctor, err := n.users.Get(ctx, event.DoctorID)
	if err != nil {
		return fmt.Errorf("failed to load doctor %s: %w", event.DoctorID, err)
	}
	patient, err := n.users.Get(ctx, event.PatientID)
	if err != nil {
		return fmt.Errorf("failed to load patient %s: %w", event.PatientID, err)
	}

	subject, body, err := composeEmail(event, doctor, patient, n.location)
	if err != nil {
		return err
	}

	if err := n.mailer.SendCustom(ctx, []string{doctor.Email, patient.Email}, subject, body); err != nil {
		return err
	}
	n.logger.Debug("appointment email sent",
		"event_type", string(event.Type),
		"appointment_id", event.AppointmentID.String())
	return nil
}

func composeEmail(event model.AppointmentEvent, doctor, patient *model.User, loc *time.Location) (string, string, error) {
	when := event.StartTime.In(loc).Format("Mon Jan 2 2006 15:04 MST")

	var subject, line string
	switch event.Type {
	case model.AppointmentCreated:
		subject = "Appointment booked"
		line = "has been booked for"
	case model.AppointmentRescheduled:
		subject = "Appointment rescheduled"
		line = "has been moved to"
	case model.AppointmentCancelled:
		subject = "Appointment cancelled"
		line = "has been cancelled. It was scheduled for"
	default:
		return "", "", fmt.Errorf("unknown event type %q", event.Type)
	}

	body := fmt.Sprintf(
		"Hello,\n\nThe appointment between Dr. %s and %s %s %s.\n\nReference: %s\n",
		doctor.Name, patient.Name, line, when, event.AppointmentID,
	)
	return subject, body, nil
}
