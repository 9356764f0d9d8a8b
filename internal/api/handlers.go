package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/careops/clinic-scheduling/internal/appointment"
)

// SchedulingService is the slice of the appointment service the handlers use.
type SchedulingService interface {
	Create(ctx context.Context, in appointment.CreateInput) (*appointment.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to appointment.Status) (*appointment.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	ListForDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]appointment.Appointment, error)
	ListForPatient(ctx context.Context, patientID uuid.UUID) ([]appointment.Appointment, error)
	ListInRange(ctx context.Context, from, to time.Time) ([]appointment.Appointment, error)
}

func createAppointmentHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		start, err := time.Parse(time.RFC3339, req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be RFC 3339")
			return
		}

		end, err := time.Parse(time.RFC3339, req.EndTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end_time", "end_time must be RFC 3339")
			return
		}

		appt, err := svc.Create(r.Context(), appointment.CreateInput{
			PatientID: patientID,
			DoctorID:  doctorID,
			StartTime: start,
			EndTime:   end,
			Reason:    req.Reason,
			Notes:     req.Notes,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		appt, err := svc.Cancel(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func updateStatusHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		status, ok := appointment.ParseStatus(req.Status)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_status", "status must be one of SCHEDULED, CONFIRMED, CANCELLED, COMPLETED, NO_SHOW")
			return
		}

		appt, err := svc.UpdateStatus(r.Context(), id, status)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listDoctorAppointmentsHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		from, to, ok := parseRangeParams(w, r)
		if !ok {
			return
		}

		appts, err := svc.ListForDoctor(r.Context(), doctorID, from, to)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentListResponse(appts))
	}
}

func listPatientAppointmentsHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "id must be a valid UUID")
			return
		}

		appts, err := svc.ListForPatient(r.Context(), patientID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentListResponse(appts))
	}
}

func listAppointmentsHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, to, ok := parseRangeParams(w, r)
		if !ok {
			return
		}

		appts, err := svc.ListInRange(r.Context(), from, to)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentListResponse(appts))
	}
}

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseRangeParams(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_from", "from must be RFC 3339")
		return time.Time{}, time.Time{}, false
	}

	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_to", "to must be RFC 3339")
		return time.Time{}, time.Time{}, false
	}

	if !to.After(from) {
		writeError(w, http.StatusBadRequest, "invalid_range", "to must be after from")
		return time.Time{}, time.Time{}, false
	}

	return from, to, true
}

// handleServiceError maps service errors onto stable error codes so the UI
// can render actionable messages.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrInvalidInterval):
		writeError(w, http.StatusBadRequest, "invalid_interval", err.Error())
	case errors.Is(err, appointment.ErrPastBooking):
		writeError(w, http.StatusBadRequest, "past_booking", err.Error())
	case errors.Is(err, appointment.ErrOutsideWorkingHours):
		writeError(w, http.StatusBadRequest, "outside_working_hours", err.Error())
	case errors.Is(err, appointment.ErrDoctorUnavailable):
		writeError(w, http.StatusConflict, "doctor_unavailable", err.Error())
	case errors.Is(err, appointment.ErrDailyLimitExceeded):
		writeError(w, http.StatusConflict, "daily_limit_exceeded", err.Error())
	case errors.Is(err, appointment.ErrBookingInProgress):
		writeError(w, http.StatusConflict, "booking_in_progress", "doctor calendar is being booked, please retry shortly")
	case errors.Is(err, appointment.ErrAlreadyCancelled):
		writeError(w, http.StatusConflict, "already_cancelled", err.Error())
	case errors.Is(err, appointment.ErrNoticeTooShort):
		writeError(w, http.StatusConflict, "notice_too_short", err.Error())
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
