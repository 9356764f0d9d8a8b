package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careops/clinic-scheduling/internal/config"
)

var (
	ErrInvalidInterval     = errors.New("end time must be after start time")
	ErrPastBooking         = errors.New("cannot book appointments in the past")
	ErrOutsideWorkingHours = errors.New("requested time is outside the doctor's working hours")
	ErrDoctorUnavailable   = errors.New("doctor is not available at the requested time")
	ErrDailyLimitExceeded  = errors.New("patient has reached the maximum number of appointments for this day")

	ErrAlreadyCancelled = errors.New("appointment is already cancelled")
	ErrNoticeTooShort   = errors.New("cancellation notice period not met")
)

// BookingPolicy gates appointment creation. The request-shape checks
// (ValidateRequest) are pure; the store checks (ValidateAvailability) read the
// repository and must run inside the per-doctor lock so the conflict check and
// the insert form one critical section.
type BookingPolicy struct {
	repo Repository
	cfg  config.Scheduling
}

func NewBookingPolicy(repo Repository, cfg config.Scheduling) *BookingPolicy {
	return &BookingPolicy{repo: repo, cfg: cfg}
}

// ValidateRequest checks interval ordering, past booking and the doctor's
// working-hours window, in that order.
func (p *BookingPolicy) ValidateRequest(doctor *Doctor, start, end, now time.Time) error {
	if !end.After(start) {
		return ErrInvalidInterval
	}
	if !start.After(now) {
		return ErrPastBooking
	}
	if !withinWorkingHours(doctor, start, end) {
		return ErrOutsideWorkingHours
	}
	return nil
}

// ValidateAvailability checks the doctor's calendar for overlap and the
// patient's daily cap against the store's current state.
func (p *BookingPolicy) ValidateAvailability(ctx context.Context, patientID, doctorID uuid.UUID, start, end time.Time) error {
	conflict, err := p.HasConflict(ctx, doctorID, start, end)
	if err != nil {
		return err
	}
	if conflict {
		return ErrDoctorUnavailable
	}

	dayStart := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	count, err := p.repo.CountPatientAppointmentsBetween(ctx, patientID, dayStart, dayEnd)
	if err != nil {
		return fmt.Errorf("count patient appointments: %w", err)
	}
	if count >= int64(p.cfg.MaxPerPatientPerDay) {
		return ErrDailyLimitExceeded
	}

	return nil
}

// HasConflict reports whether any non-cancelled, non-no-show appointment for
// the doctor overlaps [start, end). Back-to-back appointments do not conflict.
func (p *BookingPolicy) HasConflict(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (bool, error) {
	conflicts, err := p.repo.FindDoctorConflicts(ctx, doctorID, start, end)
	if err != nil {
		return false, fmt.Errorf("find doctor conflicts: %w", err)
	}
	return len(conflicts) > 0, nil
}

// withinWorkingHours checks the appointment's clock times against the
// doctor's availability window. Doctors without a configured window accept
// any time. Windows never span midnight, so an appointment crossing into the
// next calendar day is always outside the window regardless of its clock
// times.
func withinWorkingHours(doctor *Doctor, start, end time.Time) bool {
	if doctor.AvailableFrom == "" || doctor.AvailableTo == "" {
		return true
	}

	from, err := clockMinutes(doctor.AvailableFrom)
	if err != nil {
		return true
	}
	to, err := clockMinutes(doctor.AvailableTo)
	if err != nil {
		return true
	}

	dayEnd := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location()).AddDate(0, 0, 1)
	if end.After(dayEnd) {
		return false
	}

	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()
	if endMin == 0 && end.After(start) {
		endMin = 24 * 60
	}

	return startMin >= from && endMin <= to && startMin < endMin
}

func clockMinutes(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// CancellationPolicy enforces the minimum-notice rule. Every path into
// CANCELLED goes through Validate, including generic status updates.
type CancellationPolicy struct {
	cfg config.Scheduling
}

func NewCancellationPolicy(cfg config.Scheduling) *CancellationPolicy {
	return &CancellationPolicy{cfg: cfg}
}

// Validate rejects cancelling an already-cancelled appointment, then requires
// at least CancellationNoticeHours whole hours between now and the start.
// A start exactly CancellationNoticeHours away is still cancellable.
func (p *CancellationPolicy) Validate(appt *Appointment, now time.Time) error {
	if appt.Status == StatusCancelled {
		return ErrAlreadyCancelled
	}

	hoursUntilStart := int(appt.StartTime.Sub(now).Hours())
	if hoursUntilStart < p.cfg.CancellationNoticeHours {
		return ErrNoticeTooShort
	}

	return nil
}
