package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/careops/clinic-scheduling/internal/redis"
)

// memRepo is an in-memory Repository for service and policy tests.
type memRepo struct {
	mu           sync.Mutex
	patients     map[uuid.UUID]*Patient
	doctors      map[uuid.UUID]*Doctor
	appointments map[uuid.UUID]*Appointment
	events       []EventLog

	createErr error
}

func newMemRepo() *memRepo {
	return &memRepo{
		patients:     make(map[uuid.UUID]*Patient),
		doctors:      make(map[uuid.UUID]*Doctor),
		appointments: make(map[uuid.UUID]*Appointment),
	}
}

func (r *memRepo) addPatient(p Patient) *Patient {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.patients[p.ID] = &p
	return &p
}

func (r *memRepo) addDoctor(d Doctor) *Doctor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	r.doctors[d.ID] = &d
	return &d
}

func (r *memRepo) addAppointment(a Appointment) *Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	r.appointments[a.ID] = &a
	return &a
}

func (r *memRepo) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memRepo) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memRepo) FindDoctorConflicts(ctx context.Context, doctorID uuid.UUID, start, end time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appointments {
		if a.DoctorID != doctorID {
			continue
		}
		if a.Status == StatusCancelled || a.Status == StatusNoShow {
			continue
		}
		if a.StartTime.Before(end) && a.EndTime.After(start) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memRepo) CountPatientAppointmentsBetween(ctx context.Context, patientID uuid.UUID, dayStart, dayEnd time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, a := range r.appointments {
		if a.PatientID != patientID || a.Status == StatusCancelled {
			continue
		}
		if !a.StartTime.Before(dayStart) && a.StartTime.Before(dayEnd) {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) CreateAppointment(ctx context.Context, appt *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	cp := *appt
	cp.ID = uuid.New()
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.appointments[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *memRepo) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	if to == StatusCancelled {
		now := time.Now()
		a.CancelledAt = &now
	}
	cp := *a
	return &cp, nil
}

func (r *memRepo) ListDoctorAppointmentsBetween(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appointments {
		if a.DoctorID != doctorID || a.Status == StatusCancelled || a.Status == StatusNoShow {
			continue
		}
		if !a.StartTime.Before(from) && a.StartTime.Before(to) {
			out = append(out, *a)
		}
	}
	sortByStart(out)
	return out, nil
}

func (r *memRepo) ListPatientAppointments(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appointments {
		if a.PatientID == patientID {
			out = append(out, *a)
		}
	}
	sortByStart(out)
	return out, nil
}

func (r *memRepo) ListAppointmentsBetween(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appointments {
		if !a.StartTime.Before(from) && a.StartTime.Before(to) {
			out = append(out, *a)
		}
	}
	sortByStart(out)
	return out, nil
}

func (r *memRepo) FindByStatusAndStartBetween(ctx context.Context, status Status, from, to time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appointments {
		if a.Status == status && !a.StartTime.Before(from) && a.StartTime.Before(to) {
			out = append(out, *a)
		}
	}
	sortByStart(out)
	return out, nil
}

func (r *memRepo) FindByStatusAndEndBefore(ctx context.Context, status Status, cutoff time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appointments {
		if a.Status == status && a.EndTime.Before(cutoff) {
			out = append(out, *a)
		}
	}
	sortByStart(out)
	return out, nil
}

func (r *memRepo) CountByStatusAndStartBefore(ctx context.Context, status Status, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, a := range r.appointments {
		if a.Status == status && a.StartTime.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) InsertEvent(ctx context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *memRepo) eventsOfType(eventType string) []EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []EventLog
	for _, ev := range r.events {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func sortByStart(appts []Appointment) {
	sort.Slice(appts, func(i, j int) bool { return appts[i].StartTime.Before(appts[j].StartTime) })
}

// mutexLocker serializes callers per doctor with in-process mutexes, so
// concurrency tests exercise the full critical section instead of bouncing
// on lock contention.
type mutexLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newMutexLocker() *mutexLocker {
	return &mutexLocker{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *mutexLocker) WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[doctorID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[doctorID] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

// contendedLocker always reports the lock as held elsewhere.
type contendedLocker struct{}

func (contendedLocker) WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

// recordingNotifier captures dispatched notifications.
type recordingNotifier struct {
	mu        sync.Mutex
	created   []uuid.UUID
	cancelled []uuid.UUID
	changed   []uuid.UUID
	reminders []uuid.UUID

	err error
}

func (n *recordingNotifier) record(dst *[]uuid.UUID, appt *Appointment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	*dst = append(*dst, appt.ID)
	return nil
}

func (n *recordingNotifier) AppointmentCreated(ctx context.Context, appt *Appointment, patient *Patient, doctor *Doctor) error {
	return n.record(&n.created, appt)
}

func (n *recordingNotifier) AppointmentCancelled(ctx context.Context, appt *Appointment, patient *Patient, doctor *Doctor) error {
	return n.record(&n.cancelled, appt)
}

func (n *recordingNotifier) AppointmentStatusChanged(ctx context.Context, appt *Appointment, patient *Patient, doctor *Doctor) error {
	return n.record(&n.changed, appt)
}

func (n *recordingNotifier) AppointmentReminder(ctx context.Context, appt *Appointment, patient *Patient, doctor *Doctor) error {
	return n.record(&n.reminders, appt)
}

func (n *recordingNotifier) reminderCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.reminders)
}
