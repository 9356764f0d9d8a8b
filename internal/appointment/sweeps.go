package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// The three sweeps are invoked by the sweep worker on independent tickers.
// Each appointment is an isolated unit of work: one failure is logged and the
// pass continues. Re-running a sweep against an unchanged store performs no
// duplicate transitions, because handled appointments fall outside the
// selection predicate.

// RunReminderSweep sends a reminder for every SCHEDULED appointment starting
// inside the configured window (default [now+24h, now+48h)). Patients without
// an email address are skipped. Returns the number of reminders sent.
func (s *Service) RunReminderSweep(ctx context.Context) (int, error) {
	now := s.now()
	from := now.Add(time.Duration(s.cfg.ReminderWindowStartHours) * time.Hour)
	to := now.Add(time.Duration(s.cfg.ReminderWindowEndHours) * time.Hour)

	upcoming, err := s.repo.FindByStatusAndStartBetween(ctx, StatusScheduled, from, to)
	if err != nil {
		return 0, fmt.Errorf("find upcoming appointments: %w", err)
	}

	s.logger.Info("reminder sweep selected appointments", "count", len(upcoming))

	sent := 0
	for i := range upcoming {
		appt := &upcoming[i]

		patient, err := s.repo.GetPatientByID(ctx, appt.PatientID)
		if err != nil {
			s.logger.Error("reminder sweep: patient load failed",
				"appointment_id", appt.ID, "error", err)
			s.metrics.ObserveSweepItem("reminder", "error")
			continue
		}

		if patient.Email == nil || *patient.Email == "" {
			s.logger.Warn("reminder sweep: patient has no email, skipping",
				"patient_id", patient.ID, "appointment_id", appt.ID)
			s.metrics.ObserveSweepItem("reminder", "skipped_no_email")
			continue
		}

		doctor, err := s.repo.GetDoctorByID(ctx, appt.DoctorID)
		if err != nil {
			s.logger.Error("reminder sweep: doctor load failed",
				"appointment_id", appt.ID, "error", err)
			s.metrics.ObserveSweepItem("reminder", "error")
			continue
		}

		if s.notifier != nil {
			if err := s.notifier.AppointmentReminder(ctx, appt, patient, doctor); err != nil {
				s.logger.Error("reminder sweep: dispatch failed",
					"appointment_id", appt.ID, "error", err)
				s.metrics.ObserveSweepItem("reminder", "error")
				continue
			}
		}

		s.metrics.ObserveSweepItem("reminder", "sent")
		sent++
	}

	s.metrics.ObserveSweepRun("reminder")
	s.logger.Info("reminder sweep complete", "sent", sent)
	return sent, nil
}

// RunNoShowSweep marks SCHEDULED appointments whose end passed more than the
// grace period ago (default 1h) as NO_SHOW. The compare-and-set update keeps
// the sweep idempotent and safe against concurrent status changes. Returns
// the number of appointments transitioned.
func (s *Service) RunNoShowSweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-time.Duration(s.cfg.NoShowGraceHours) * time.Hour)

	missed, err := s.repo.FindByStatusAndEndBefore(ctx, StatusScheduled, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find missed appointments: %w", err)
	}

	if len(missed) > 0 {
		s.logger.Info("no-show sweep found missed appointments", "count", len(missed))
	}

	marked := 0
	for i := range missed {
		appt := &missed[i]

		_, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusScheduled, StatusNoShow)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				// Already moved out of SCHEDULED by another writer.
				s.metrics.ObserveSweepItem("no_show", "skipped")
				continue
			}
			s.logger.Error("no-show sweep: update failed",
				"appointment_id", appt.ID, "error", err)
			s.metrics.ObserveSweepItem("no_show", "error")
			continue
		}

		s.logEvent(ctx, appt.ID, EventAppointmentNoShow, map[string]any{
			"end_time": appt.EndTime,
		})
		s.metrics.ObserveSweepItem("no_show", "transitioned")
		marked++
	}

	s.metrics.ObserveSweepRun("no_show")
	if marked > 0 {
		s.logger.Info("no-show sweep complete", "marked", marked)
	}
	return marked, nil
}

// RunCleanupSweep counts CANCELLED appointments older than the retention
// threshold (default 6 months) for archival reporting. Physical deletion
// belongs to a separate archival job, this sweep only observes.
func (s *Service) RunCleanupSweep(ctx context.Context) (int64, error) {
	cutoff := s.now().AddDate(0, -s.cfg.CleanupRetentionMonths, 0)

	count, err := s.repo.CountByStatusAndStartBefore(ctx, StatusCancelled, cutoff)
	if err != nil {
		return 0, fmt.Errorf("count old cancelled appointments: %w", err)
	}

	s.metrics.ObserveSweepRun("cleanup")
	s.logger.Info("cleanup sweep complete",
		"old_cancelled", count, "cutoff", cutoff.Format(time.RFC3339))
	return count, nil
}
