package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careops/clinic-scheduling/internal/appointment"
)

// stubService returns canned results so the handler tests cover only
// decoding, routing and error mapping.
type stubService struct {
	createFn       func(in appointment.CreateInput) (*appointment.Appointment, error)
	cancelFn       func(id uuid.UUID) (*appointment.Appointment, error)
	updateStatusFn func(id uuid.UUID, to appointment.Status) (*appointment.Appointment, error)
	getFn          func(id uuid.UUID) (*appointment.Appointment, error)
	listDoctorFn   func(doctorID uuid.UUID, from, to time.Time) ([]appointment.Appointment, error)
	listPatientFn  func(patientID uuid.UUID) ([]appointment.Appointment, error)
	listRangeFn    func(from, to time.Time) ([]appointment.Appointment, error)
}

func (s *stubService) Create(ctx context.Context, in appointment.CreateInput) (*appointment.Appointment, error) {
	return s.createFn(in)
}

func (s *stubService) Cancel(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return s.cancelFn(id)
}

func (s *stubService) UpdateStatus(ctx context.Context, id uuid.UUID, to appointment.Status) (*appointment.Appointment, error) {
	return s.updateStatusFn(id, to)
}

func (s *stubService) GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return s.getFn(id)
}

func (s *stubService) ListForDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]appointment.Appointment, error) {
	return s.listDoctorFn(doctorID, from, to)
}

func (s *stubService) ListForPatient(ctx context.Context, patientID uuid.UUID) ([]appointment.Appointment, error) {
	return s.listPatientFn(patientID)
}

func (s *stubService) ListInRange(ctx context.Context, from, to time.Time) ([]appointment.Appointment, error) {
	return s.listRangeFn(from, to)
}

func testRouter(svc SchedulingService) http.Handler {
	r := chi.NewRouter()
	r.Post("/appointments", createAppointmentHandler(svc))
	r.Get("/appointments", listAppointmentsHandler(svc))
	r.Get("/appointments/{id}", getAppointmentHandler(svc))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(svc))
	r.Patch("/appointments/{id}/status", updateStatusHandler(svc))
	r.Get("/doctors/{id}/appointments", listDoctorAppointmentsHandler(svc))
	r.Get("/patients/{id}/appointments", listPatientAppointmentsHandler(svc))
	return r
}

func sampleAppointment() *appointment.Appointment {
	return &appointment.Appointment{
		ID:        uuid.New(),
		PatientID: uuid.New(),
		DoctorID:  uuid.New(),
		StartTime: time.Date(2026, 3, 9, 14, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 3, 9, 15, 0, 0, 0, time.UTC),
		Status:    appointment.StatusScheduled,
	}
}

func TestCreateAppointment(t *testing.T) {
	appt := sampleAppointment()

	var gotInput appointment.CreateInput
	svc := &stubService{
		createFn: func(in appointment.CreateInput) (*appointment.Appointment, error) {
			gotInput = in
			return appt, nil
		},
	}

	body := `{
		"patient_id": "` + appt.PatientID.String() + `",
		"doctor_id": "` + appt.DoctorID.String() + `",
		"start_time": "2026-03-09T14:00:00Z",
		"end_time": "2026-03-09T15:00:00Z"
	}`

	req := httptest.NewRequest("POST", "/appointments", strings.NewReader(body))
	rec := httptest.NewRecorder()
	testRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, appt.PatientID, gotInput.PatientID)
	assert.Equal(t, appt.DoctorID, gotInput.DoctorID)

	var resp AppointmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, appt.ID, resp.ID)
	assert.Equal(t, string(appointment.StatusScheduled), resp.Status)
}

func TestCreateAppointmentBadRequests(t *testing.T) {
	svc := &stubService{
		createFn: func(in appointment.CreateInput) (*appointment.Appointment, error) {
			t.Fatal("service must not be called on a malformed request")
			return nil, nil
		},
	}
	router := testRouter(svc)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"malformed json", `{`, "invalid_request_body"},
		{"bad patient id", `{"patient_id":"nope","doctor_id":"` + uuid.NewString() + `","start_time":"2026-03-09T14:00:00Z","end_time":"2026-03-09T15:00:00Z"}`, "invalid_patient_id"},
		{"bad doctor id", `{"patient_id":"` + uuid.NewString() + `","doctor_id":"nope","start_time":"2026-03-09T14:00:00Z","end_time":"2026-03-09T15:00:00Z"}`, "invalid_doctor_id"},
		{"bad start time", `{"patient_id":"` + uuid.NewString() + `","doctor_id":"` + uuid.NewString() + `","start_time":"tomorrow","end_time":"2026-03-09T15:00:00Z"}`, "invalid_start_time"},
		{"bad end time", `{"patient_id":"` + uuid.NewString() + `","doctor_id":"` + uuid.NewString() + `","start_time":"2026-03-09T14:00:00Z","end_time":"never"}`, "invalid_end_time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/appointments", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.code, resp.Error)
		})
	}
}

func TestServiceErrorMapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{appointment.ErrPatientNotFound, http.StatusNotFound, "patient_not_found"},
		{appointment.ErrDoctorNotFound, http.StatusNotFound, "doctor_not_found"},
		{appointment.ErrInvalidInterval, http.StatusBadRequest, "invalid_interval"},
		{appointment.ErrPastBooking, http.StatusBadRequest, "past_booking"},
		{appointment.ErrOutsideWorkingHours, http.StatusBadRequest, "outside_working_hours"},
		{appointment.ErrDoctorUnavailable, http.StatusConflict, "doctor_unavailable"},
		{appointment.ErrDailyLimitExceeded, http.StatusConflict, "daily_limit_exceeded"},
		{appointment.ErrBookingInProgress, http.StatusConflict, "booking_in_progress"},
		{assert.AnError, http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			svc := &stubService{
				createFn: func(in appointment.CreateInput) (*appointment.Appointment, error) {
					return nil, tt.err
				},
			}

			body := `{"patient_id":"` + uuid.NewString() + `","doctor_id":"` + uuid.NewString() + `","start_time":"2026-03-09T14:00:00Z","end_time":"2026-03-09T15:00:00Z"}`
			req := httptest.NewRequest("POST", "/appointments", strings.NewReader(body))
			rec := httptest.NewRecorder()
			testRouter(svc).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantCode, resp.Error)
		})
	}
}

func TestCancelAppointment(t *testing.T) {
	appt := sampleAppointment()
	appt.Status = appointment.StatusCancelled

	svc := &stubService{
		cancelFn: func(id uuid.UUID) (*appointment.Appointment, error) {
			assert.Equal(t, appt.ID, id)
			return appt, nil
		},
	}

	req := httptest.NewRequest("POST", "/appointments/"+appt.ID.String()+"/cancel", nil)
	rec := httptest.NewRecorder()
	testRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp AppointmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, string(appointment.StatusCancelled), resp.Status)
}

func TestCancelAppointmentErrorMapping(t *testing.T) {
	for _, tc := range []struct {
		err      error
		wantCode string
	}{
		{appointment.ErrAlreadyCancelled, "already_cancelled"},
		{appointment.ErrNoticeTooShort, "notice_too_short"},
		{appointment.ErrInvalidStatusTransition, "invalid_status_transition"},
	} {
		t.Run(tc.wantCode, func(t *testing.T) {
			svc := &stubService{
				cancelFn: func(id uuid.UUID) (*appointment.Appointment, error) { return nil, tc.err },
			}

			req := httptest.NewRequest("POST", "/appointments/"+uuid.NewString()+"/cancel", nil)
			rec := httptest.NewRecorder()
			testRouter(svc).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusConflict, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tc.wantCode, resp.Error)
		})
	}
}

func TestUpdateStatus(t *testing.T) {
	appt := sampleAppointment()
	appt.Status = appointment.StatusConfirmed

	svc := &stubService{
		updateStatusFn: func(id uuid.UUID, to appointment.Status) (*appointment.Appointment, error) {
			assert.Equal(t, appointment.StatusConfirmed, to)
			return appt, nil
		},
	}

	req := httptest.NewRequest("PATCH", "/appointments/"+appt.ID.String()+"/status",
		strings.NewReader(`{"status":"CONFIRMED"}`))
	rec := httptest.NewRecorder()
	testRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	svc := &stubService{
		updateStatusFn: func(id uuid.UUID, to appointment.Status) (*appointment.Appointment, error) {
			t.Fatal("service must not be called with an unknown status")
			return nil, nil
		},
	}

	req := httptest.NewRequest("PATCH", "/appointments/"+uuid.NewString()+"/status",
		strings.NewReader(`{"status":"RESCHEDULED"}`))
	rec := httptest.NewRecorder()
	testRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAppointment(t *testing.T) {
	appt := sampleAppointment()
	svc := &stubService{
		getFn: func(id uuid.UUID) (*appointment.Appointment, error) { return appt, nil },
	}

	req := httptest.NewRequest("GET", "/appointments/"+appt.ID.String(), nil)
	rec := httptest.NewRecorder()
	testRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp AppointmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, appt.ID, resp.ID)
}

func TestGetAppointmentInvalidID(t *testing.T) {
	svc := &stubService{
		getFn: func(id uuid.UUID) (*appointment.Appointment, error) {
			t.Fatal("service must not be called with an invalid id")
			return nil, nil
		},
	}

	req := httptest.NewRequest("GET", "/appointments/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	testRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListDoctorAppointments(t *testing.T) {
	appt := sampleAppointment()
	svc := &stubService{
		listDoctorFn: func(doctorID uuid.UUID, from, to time.Time) ([]appointment.Appointment, error) {
			return []appointment.Appointment{*appt}, nil
		},
	}

	url := "/doctors/" + appt.DoctorID.String() + "/appointments?from=2026-03-01T00:00:00Z&to=2026-04-01T00:00:00Z"
	req := httptest.NewRequest("GET", url, nil)
	rec := httptest.NewRecorder()
	testRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp AppointmentListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Appointments, 1)
	assert.Equal(t, appt.ID, resp.Appointments[0].ID)
}

func TestListDoctorAppointmentsRangeValidation(t *testing.T) {
	svc := &stubService{
		listDoctorFn: func(doctorID uuid.UUID, from, to time.Time) ([]appointment.Appointment, error) {
			t.Fatal("service must not be called with an invalid range")
			return nil, nil
		},
	}
	router := testRouter(svc)

	for _, tc := range []struct {
		name  string
		query string
	}{
		{"missing from", "?to=2026-04-01T00:00:00Z"},
		{"missing to", "?from=2026-03-01T00:00:00Z"},
		{"inverted range", "?from=2026-04-01T00:00:00Z&to=2026-03-01T00:00:00Z"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/doctors/"+uuid.NewString()+"/appointments"+tc.query, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestListPatientAppointments(t *testing.T) {
	svc := &stubService{
		listPatientFn: func(patientID uuid.UUID) ([]appointment.Appointment, error) {
			return nil, nil
		},
	}

	req := httptest.NewRequest("GET", "/patients/"+uuid.NewString()+"/appointments", nil)
	rec := httptest.NewRecorder()
	testRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp AppointmentListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Empty(t, resp.Appointments)
}

func TestListAppointmentsInRange(t *testing.T) {
	appt := sampleAppointment()
	svc := &stubService{
		listRangeFn: func(from, to time.Time) ([]appointment.Appointment, error) {
			return []appointment.Appointment{*appt, *appt}, nil
		},
	}

	req := httptest.NewRequest("GET", "/appointments?from=2026-03-01T00:00:00Z&to=2026-04-01T00:00:00Z", nil)
	rec := httptest.NewRecorder()
	testRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp AppointmentListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Appointments, 2)
}
