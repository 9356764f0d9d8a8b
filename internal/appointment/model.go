package appointment

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
	StatusNoShow    Status = "NO_SHOW"
)

var ErrInvalidStatusTransition = errors.New("invalid status transition")

// transitions is the single source of truth for the appointment lifecycle.
// CANCELLED, COMPLETED and NO_SHOW are terminal.
var transitions = map[Status][]Status{
	StatusScheduled: {StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow},
	StatusConfirmed: {StatusCancelled, StatusCompleted},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible from s.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// ParseStatus validates a caller-supplied status string.
func ParseStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusScheduled, StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow:
		return Status(raw), true
	}
	return "", false
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID            uuid.UUID
	Name          string
	Email         *string
	Specialty     *string
	AvailableFrom string // clock time "15:04", empty means no working-hours window
	AvailableTo   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Appointment is a half-open [StartTime, EndTime) booking of a doctor by a
// patient. CancelledAt is set exactly when Status is CANCELLED.
type Appointment struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	DoctorID    uuid.UUID
	StartTime   time.Time
	EndTime     time.Time
	Status      Status
	Reason      *string
	Notes       *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CancelledAt *time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
