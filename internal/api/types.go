package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/careops/clinic-scheduling/internal/appointment"
)

type CreateAppointmentRequest struct {
	PatientID string  `json:"patient_id"`
	DoctorID  string  `json:"doctor_id"`
	StartTime string  `json:"start_time"` // RFC 3339
	EndTime   string  `json:"end_time"`   // RFC 3339
	Reason    *string `json:"reason,omitempty"`
	Notes     *string `json:"notes,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type AppointmentResponse struct {
	ID          uuid.UUID  `json:"id"`
	PatientID   uuid.UUID  `json:"patient_id"`
	DoctorID    uuid.UUID  `json:"doctor_id"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     time.Time  `json:"end_time"`
	Status      string     `json:"status"`
	Reason      *string    `json:"reason,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		PatientID:   a.PatientID,
		DoctorID:    a.DoctorID,
		StartTime:   a.StartTime,
		EndTime:     a.EndTime,
		Status:      string(a.Status),
		Reason:      a.Reason,
		Notes:       a.Notes,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
		CancelledAt: a.CancelledAt,
	}
}

func toAppointmentListResponse(appts []appointment.Appointment) AppointmentListResponse {
	out := AppointmentListResponse{Appointments: make([]AppointmentResponse, 0, len(appts))}
	for i := range appts {
		out.Appointments = append(out.Appointments, toAppointmentResponse(&appts[i]))
	}
	return out
}
