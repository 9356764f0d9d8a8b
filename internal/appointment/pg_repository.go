package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the subset of pgxpool.Pool the repository needs. pgxmock
// satisfies it too, which keeps the SQL paths testable without a database.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool querier
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func newPgRepositoryWithQuerier(q querier) *PgRepository {
	return &PgRepository{pool: q}
}

const appointmentColumns = `id, patient_id, doctor_id, start_time, end_time, status, reason, notes, created_at, updated_at, cancelled_at`

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var email, specialty *string
	var availableFrom, availableTo *string

	err := row.Scan(
		&d.ID,
		&d.Name,
		&email,
		&specialty,
		&availableFrom,
		&availableTo,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.Email = email
	d.Specialty = specialty
	if availableFrom != nil {
		d.AvailableFrom = *availableFrom
	}
	if availableTo != nil {
		d.AvailableTo = *availableTo
	}
	return &d, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var reason, notes *string
	var cancelledAt *time.Time

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.StartTime,
		&a.EndTime,
		&a.Status,
		&reason,
		&notes,
		&a.CreatedAt,
		&a.UpdatedAt,
		&cancelledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Reason = reason
	a.Notes = notes
	a.CancelledAt = cancelledAt
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, specialty, available_from, available_to, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

// FindDoctorConflicts uses the strict half-open overlap predicate: an existing
// appointment conflicts iff existing.start < end AND existing.end > start, so
// back-to-back bookings never collide.
func (r *PgRepository) FindDoctorConflicts(ctx context.Context, doctorID uuid.UUID, start, end time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND status NOT IN ('CANCELLED', 'NO_SHOW')
		  AND start_time < $3
		  AND end_time > $2
	`, doctorID, start, end)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// CountPatientAppointmentsBetween excludes only CANCELLED: a no-show still
// consumed the patient's slot for that day.
func (r *PgRepository) CountPatientAppointmentsBetween(ctx context.Context, patientID uuid.UUID, dayStart, dayEnd time.Time) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM appointments
		WHERE patient_id = $1
		  AND status <> 'CANCELLED'
		  AND start_time >= $2
		  AND start_time < $3
	`, patientID, dayStart, dayEnd).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, appt *Appointment) (*Appointment, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, start_time, end_time, status, reason, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, appt.PatientID, appt.DoctorID, appt.StartTime, appt.EndTime, appt.Status, appt.Reason, appt.Notes)

	return scanAppointment(row)
}

// UpdateAppointmentStatus is compare-and-set on the current status, so two
// writers racing over the same appointment cannot both transition it. The
// cancelled_at timestamp is set exactly when the row enters CANCELLED.
func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now(),
		    cancelled_at = CASE WHEN $2 = 'CANCELLED' THEN now() ELSE cancelled_at END
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	return scanAppointment(row)
}

// ListDoctorAppointmentsBetween is the doctor's calendar view: cancelled and
// no-show rows are filtered out, unlike the patient history which keeps them.
func (r *PgRepository) ListDoctorAppointmentsBetween(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND status NOT IN ('CANCELLED', 'NO_SHOW')
		  AND start_time >= $2
		  AND start_time < $3
		ORDER BY start_time
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListPatientAppointments(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY start_time
	`, patientID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointmentsBetween(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE start_time >= $1
		  AND start_time < $2
		ORDER BY start_time
	`, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) FindByStatusAndStartBetween(ctx context.Context, status Status, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = $1
		  AND start_time >= $2
		  AND start_time < $3
		ORDER BY start_time
	`, status, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) FindByStatusAndEndBefore(ctx context.Context, status Status, cutoff time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = $1
		  AND end_time < $2
		ORDER BY end_time
	`, status, cutoff)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) CountByStatusAndStartBefore(ctx context.Context, status Status, cutoff time.Time) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM appointments
		WHERE status = $1
		  AND start_time < $2
	`, status, cutoff).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
