package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careops/clinic-scheduling/internal/config"
	"github.com/careops/clinic-scheduling/internal/metrics"
	redisclient "github.com/careops/clinic-scheduling/internal/redis"
	"github.com/careops/clinic-scheduling/pkg/logging"
)

const (
	EventAppointmentCreated       = "APPOINTMENT_CREATED"
	EventAppointmentCancelled     = "APPOINTMENT_CANCELLED"
	EventAppointmentStatusChanged = "APPOINTMENT_STATUS_CHANGED"
	EventAppointmentNoShow        = "APPOINTMENT_NO_SHOW"
)

var (
	// ErrBookingInProgress is returned when another booking for the same
	// doctor holds the lock; the caller should retry.
	ErrBookingInProgress = errors.New("doctor calendar is busy, please retry")
)

// NotificationSender dispatches messages after a lifecycle transition. A
// failure here is logged and swallowed, it never rolls back the transition.
type NotificationSender interface {
	AppointmentCreated(ctx context.Context, appt *Appointment, patient *Patient, doctor *Doctor) error
	AppointmentCancelled(ctx context.Context, appt *Appointment, patient *Patient, doctor *Doctor) error
	AppointmentStatusChanged(ctx context.Context, appt *Appointment, patient *Patient, doctor *Doctor) error
	AppointmentReminder(ctx context.Context, appt *Appointment, patient *Patient, doctor *Doctor) error
}

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	notifier NotificationSender
	cfg      config.Scheduling
	logger   *logging.Logger
	metrics  *metrics.SchedulingMetrics

	booking      *BookingPolicy
	cancellation *CancellationPolicy

	now func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, notifier NotificationSender, cfg config.Scheduling, logger *logging.Logger, m *metrics.SchedulingMetrics) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:         repo,
		locker:       locker,
		notifier:     notifier,
		cfg:          cfg,
		logger:       logger,
		metrics:      m,
		booking:      NewBookingPolicy(repo, cfg),
		cancellation: NewCancellationPolicy(cfg),
		now:          time.Now,
	}
}

// CreateInput carries a booking request into the service.
type CreateInput struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	StartTime time.Time
	EndTime   time.Time
	Reason    *string
	Notes     *string
}

// Create books an appointment. The conflict and daily-cap checks run inside a
// per-doctor lock together with the insert, so two concurrent requests for
// overlapping intervals cannot both succeed.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Appointment, error) {
	patient, err := s.repo.GetPatientByID(ctx, in.PatientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	doctor, err := s.repo.GetDoctorByID(ctx, in.DoctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	if err := s.booking.ValidateRequest(doctor, in.StartTime, in.EndTime, s.now()); err != nil {
		s.metrics.ObserveBooking(rejectionOutcome(err))
		return nil, err
	}

	var created *Appointment

	err = s.locker.WithDoctorLock(ctx, doctor.ID, func(lockCtx context.Context) error {
		if err := s.booking.ValidateAvailability(lockCtx, patient.ID, doctor.ID, in.StartTime, in.EndTime); err != nil {
			return err
		}

		appt, err := s.repo.CreateAppointment(lockCtx, &Appointment{
			PatientID: patient.ID,
			DoctorID:  doctor.ID,
			StartTime: in.StartTime,
			EndTime:   in.EndTime,
			Status:    StatusScheduled,
			Reason:    in.Reason,
			Notes:     in.Notes,
		})
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentCreated, map[string]any{
			"patient_id": patient.ID.String(),
			"doctor_id":  doctor.ID.String(),
			"start_time": appt.StartTime,
			"end_time":   appt.EndTime,
		})

		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			s.metrics.ObserveBooking("lock_contention")
			return nil, ErrBookingInProgress
		}
		s.metrics.ObserveBooking(rejectionOutcome(err))
		return nil, err
	}

	s.metrics.ObserveBooking("created")
	s.dispatch(ctx, "created", created, func(dctx context.Context) error {
		return s.notifier.AppointmentCreated(dctx, created, patient, doctor)
	})

	return created, nil
}

// Cancel transitions an appointment to CANCELLED, subject to the minimum
// notice policy.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.changeStatus(ctx, id, StatusCancelled)
}

// UpdateStatus applies a caller-requested lifecycle transition. A move into
// CANCELLED goes through the same cancellation policy as Cancel, and NO_SHOW
// is reserved for the sweep, never for direct requests.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	if to == StatusNoShow {
		return nil, ErrInvalidStatusTransition
	}
	return s.changeStatus(ctx, id, to)
}

// changeStatus is the single path for every status transition. It enforces
// state-machine legality, routes CANCELLED targets through the cancellation
// policy, and persists via compare-and-set on the loaded status.
func (s *Service) changeStatus(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if to == StatusCancelled && appt.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}

	if !CanTransition(appt.Status, to) {
		return nil, ErrInvalidStatusTransition
	}

	if to == StatusCancelled {
		if err := s.cancellation.Validate(appt, s.now()); err != nil {
			return nil, err
		}
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// The status moved under us between load and update.
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	event := EventAppointmentStatusChanged
	if to == StatusCancelled {
		event = EventAppointmentCancelled
	}
	s.logEvent(ctx, updated.ID, event, map[string]any{
		"from": string(appt.Status),
		"to":   string(to),
	})

	s.notifyStatusChange(ctx, updated, to)

	return updated, nil
}

func (s *Service) notifyStatusChange(ctx context.Context, appt *Appointment, to Status) {
	patient, err := s.repo.GetPatientByID(ctx, appt.PatientID)
	if err != nil {
		s.logger.Warn("skipping status notification, patient load failed",
			"appointment_id", appt.ID, "error", err)
		return
	}
	doctor, err := s.repo.GetDoctorByID(ctx, appt.DoctorID)
	if err != nil {
		s.logger.Warn("skipping status notification, doctor load failed",
			"appointment_id", appt.ID, "error", err)
		return
	}

	if to == StatusCancelled {
		s.dispatch(ctx, "cancelled", appt, func(dctx context.Context) error {
			return s.notifier.AppointmentCancelled(dctx, appt, patient, doctor)
		})
		return
	}
	s.dispatch(ctx, "status_changed", appt, func(dctx context.Context) error {
		return s.notifier.AppointmentStatusChanged(dctx, appt, patient, doctor)
	})
}

// dispatch fires a notification best-effort. Failures are logged, never
// returned.
func (s *Service) dispatch(ctx context.Context, kind string, appt *Appointment, send func(ctx context.Context) error) {
	if s.notifier == nil {
		return
	}
	if err := send(ctx); err != nil {
		s.logger.Error("notification dispatch failed",
			"kind", kind, "appointment_id", appt.ID, "error", err)
	}
}

// GetAppointment retrieves an appointment by ID.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// ListForDoctor returns a doctor's appointments with starts in [from, to),
// ascending by start time.
func (s *Service) ListForDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	appts, err := s.repo.ListDoctorAppointmentsBetween(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list doctor appointments: %w", err)
	}
	return appts, nil
}

// ListForPatient returns all of a patient's appointments regardless of status.
func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	appts, err := s.repo.ListPatientAppointments(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list patient appointments: %w", err)
	}
	return appts, nil
}

// ListInRange returns appointments across all doctors with starts in
// [from, to), ascending by start time.
func (s *Service) ListInRange(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	appts, err := s.repo.ListAppointmentsBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("marshal event payload failed", "event_type", eventType, "error", err)
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error("insert event log failed",
			"event_type", eventType, "appointment_id", appointmentID, "error", err)
	}
}

// rejectionOutcome maps a booking error onto a stable metrics label.
func rejectionOutcome(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInterval):
		return "invalid_interval"
	case errors.Is(err, ErrPastBooking):
		return "past_booking"
	case errors.Is(err, ErrOutsideWorkingHours):
		return "outside_working_hours"
	case errors.Is(err, ErrDoctorUnavailable):
		return "doctor_unavailable"
	case errors.Is(err, ErrDailyLimitExceeded):
		return "daily_limit_exceeded"
	default:
		return "error"
	}
}
