package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Repository contains all DB interactions needed by the service and sweeps.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Booking checks. FindDoctorConflicts returns non-cancelled, non-no-show
	// appointments overlapping the half-open interval [start, end).
	// CountPatientAppointmentsBetween counts appointments starting in
	// [dayStart, dayEnd) with any status except CANCELLED.
	FindDoctorConflicts(ctx context.Context, doctorID uuid.UUID, start, end time.Time) ([]Appointment, error)
	CountPatientAppointmentsBetween(ctx context.Context, patientID uuid.UUID, dayStart, dayEnd time.Time) (int64, error)

	// CreateAppointment persists a new row and returns it with generated
	// id and timestamps. UpdateAppointmentStatus is compare-and-set: it
	// only updates when the row still has the expected current status,
	// otherwise it reports ErrAppointmentNotFound.
	CreateAppointment(ctx context.Context, appt *Appointment) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// Read queries, ascending by start time. The doctor calendar view
	// excludes CANCELLED and NO_SHOW rows; the patient history keeps every
	// status.
	ListDoctorAppointmentsBetween(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error)
	ListPatientAppointments(ctx context.Context, patientID uuid.UUID) ([]Appointment, error)
	ListAppointmentsBetween(ctx context.Context, from, to time.Time) ([]Appointment, error)

	// Sweep selection.
	FindByStatusAndStartBetween(ctx context.Context, status Status, from, to time.Time) ([]Appointment, error)
	FindByStatusAndEndBefore(ctx context.Context, status Status, cutoff time.Time) ([]Appointment, error)
	CountByStatusAndStartBefore(ctx context.Context, status Status, cutoff time.Time) (int64, error)

	// Audit trail.
	InsertEvent(ctx context.Context, ev EventLog) error
}
