package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/careops/clinic-scheduling/internal/appointment"
	"github.com/careops/clinic-scheduling/pkg/logging"
)

const timeFormat = "Monday, January 2 2006 at 15:04"

// Service implements appointment.NotificationSender. Lifecycle notifications
// fan out to both the patient and the doctor; reminders go to the patient
// only. With a nil EmailSender every message is logged instead of sent, which
// keeps dev environments working without a mail provider.
type Service struct {
	email  EmailSender
	logger *logging.Logger
}

func NewService(email EmailSender, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, logger: logger}
}

var _ appointment.NotificationSender = (*Service)(nil)

func (s *Service) AppointmentCreated(ctx context.Context, appt *appointment.Appointment, patient *appointment.Patient, doctor *appointment.Doctor) error {
	when := appt.StartTime.Format(timeFormat)
	body := fmt.Sprintf("An appointment with %s has been booked for %s.", doctor.Name, when)

	return errors.Join(
		s.sendTo(ctx, patient.Email, patient.Name, "Appointment booked", body),
		s.sendTo(ctx, doctor.Email, doctor.Name,
			"New appointment", fmt.Sprintf("%s booked an appointment for %s.", patient.Name, when)),
	)
}

func (s *Service) AppointmentCancelled(ctx context.Context, appt *appointment.Appointment, patient *appointment.Patient, doctor *appointment.Doctor) error {
	when := appt.StartTime.Format(timeFormat)
	return errors.Join(
		s.sendTo(ctx, patient.Email, patient.Name, "Appointment cancelled",
			fmt.Sprintf("Your appointment with %s on %s has been cancelled.", doctor.Name, when)),
		s.sendTo(ctx, doctor.Email, doctor.Name, "Appointment cancelled",
			fmt.Sprintf("The appointment with %s on %s has been cancelled.", patient.Name, when)),
	)
}

func (s *Service) AppointmentStatusChanged(ctx context.Context, appt *appointment.Appointment, patient *appointment.Patient, doctor *appointment.Doctor) error {
	body := fmt.Sprintf("Your appointment on %s is now %s.",
		appt.StartTime.Format(timeFormat), appt.Status)
	return errors.Join(
		s.sendTo(ctx, patient.Email, patient.Name, "Appointment updated", body),
		s.sendTo(ctx, doctor.Email, doctor.Name, "Appointment updated",
			fmt.Sprintf("The appointment with %s on %s is now %s.",
				patient.Name, appt.StartTime.Format(timeFormat), appt.Status)),
	)
}

func (s *Service) AppointmentReminder(ctx context.Context, appt *appointment.Appointment, patient *appointment.Patient, doctor *appointment.Doctor) error {
	hours := int(time.Until(appt.StartTime).Hours())
	body := fmt.Sprintf("Reminder: your appointment with %s is on %s (in about %d hours).",
		doctor.Name, appt.StartTime.Format(timeFormat), hours)
	return s.sendTo(ctx, patient.Email, patient.Name, "Appointment reminder", body)
}

func (s *Service) sendTo(ctx context.Context, email *string, name, subject, body string) error {
	if email == nil || *email == "" {
		s.logger.Debug("notify: recipient has no email, skipping", "name", name, "subject", subject)
		return nil
	}

	if s.email == nil {
		s.logger.Info("notify: email sender not configured, logging only",
			"to", *email, "subject", subject)
		return nil
	}

	if err := s.email.Send(ctx, EmailMessage{
		To:      *email,
		ToName:  name,
		Subject: subject,
		Body:    body,
	}); err != nil {
		return fmt.Errorf("send %q to %s: %w", subject, *email, err)
	}

	return nil
}
