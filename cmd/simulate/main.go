package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careops/clinic-scheduling/internal/config"
	"github.com/careops/clinic-scheduling/internal/db"
)

// The simulator hammers the booking API with overlapping intervals for a
// small set of doctors. With the per-doctor lock in place, every interval
// must produce exactly one 201 and conflicts for the rest; a success rate
// above the hot-interval count indicates a double booking.

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	CancelRatio  float64
	ReadRatio    float64
	PatientLimit int
	DoctorLimit  int
	PostgresDSN  string
}

type DataPool struct {
	Patients []uuid.UUID
	Doctors  []uuid.UUID

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total    int64
	Success  int64
	Conflict int64
	Error    int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.latencies) == 0 {
		return 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.latencies))
	copy(latencies, om.latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	p50 = latencies[len(latencies)*50/100]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
	return avg, p50, p95
}

type Metrics struct {
	Booking       OperationMetrics
	Cancel        OperationMetrics
	ReadByID      OperationMetrics
	ListByDoctor  OperationMetrics
	ListByPatient OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics

	// Pre-generated hot intervals shared by all workers so bookings collide.
	hotStarts []time.Time
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d booking=%.2f cancel=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.BookingRatio, cfg.CancelRatio, cfg.ReadRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d patients, %d doctors", len(dataPool.Patients), len(dataPool.Doctors))

	sim := &Simulator{
		config:    cfg,
		pool:      dataPool,
		client:    &http.Client{Timeout: 10 * time.Second},
		hotStarts: hotIntervalStarts(48),
	}

	sim.Run()
	sim.PrintReport()
}

// hotIntervalStarts spreads n hour-long slots over the next two weeks,
// aligned to working hours.
func hotIntervalStarts(n int) []time.Time {
	base := time.Now().Truncate(time.Hour)
	starts := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		day := 2 + i/8
		hour := 9 + i%8
		starts = append(starts, time.Date(base.Year(), base.Month(), base.Day(), hour, 0, 0, 0, base.Location()).AddDate(0, 0, day))
	}
	return starts
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.2),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 1000),
		DoctorLimit:  getInt("SIM_DOCTOR_LIMIT", 10),
		PostgresDSN:  baseCfg.PostgresDSN,
	}

	total := cfg.BookingRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}

	rows, err = pool.Query(ctx, `SELECT id FROM doctors LIMIT $1`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Doctors = append(dataPool.Doctors, id)
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dataPool.Doctors) == 0 {
		return nil, fmt.Errorf("no doctors loaded")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.CancelRatio:
				s.doCancel(ctx, rng)
			default:
				switch rng.Intn(3) {
				case 0:
					s.doReadByID(ctx, rng)
				case 1:
					s.doListByDoctor(ctx, rng)
				case 2:
					s.doListByPatient(ctx, rng)
				}
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	doctorID := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	slotStart := s.hotStarts[rng.Intn(len(s.hotStarts))]

	start := time.Now()

	reqBody := map[string]string{
		"patient_id": patientID.String(),
		"doctor_id":  doctorID.String(),
		"start_time": slotStart.Format(time.RFC3339),
		"end_time":   slotStart.Add(time.Hour).Format(time.RFC3339),
	}
	body, _ := json.Marshal(reqBody)

	req, _ := http.NewRequestWithContext(ctx, "POST", s.config.APIBaseURL+"/appointments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusCreated {
			success = true
			var apptResp struct {
				ID uuid.UUID `json:"id"`
			}
			bodyBytes, _ := io.ReadAll(resp.Body)
			if len(bodyBytes) > 0 {
				json.Unmarshal(bodyBytes, &apptResp)
				if apptResp.ID != uuid.Nil {
					s.pool.AddAppointment(apptResp.ID)
				}
			}
		} else if resp.StatusCode == http.StatusConflict {
			conflict = true
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "POST",
		fmt.Sprintf("%s/appointments/%s/cancel", s.config.APIBaseURL, apptID.String()), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			success = true
		} else if resp.StatusCode == http.StatusConflict {
			// Already cancelled or inside the notice window, both expected.
			conflict = true
		}
	}

	s.metrics.Cancel.Record(latency, success, conflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/appointments/%s", s.config.APIBaseURL, apptID.String()), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ReadByID.Record(latency, success, false)
}

func (s *Simulator) doListByDoctor(ctx context.Context, rng *rand.Rand) {
	doctorID := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]

	from := time.Now()
	to := from.AddDate(0, 0, 30)

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/doctors/%s/appointments?from=%s&to=%s",
			s.config.APIBaseURL, doctorID.String(),
			from.Format(time.RFC3339), to.Format(time.RFC3339)), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ListByDoctor.Record(latency, success, false)
}

func (s *Simulator) doListByPatient(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/patients/%s/appointments", s.config.APIBaseURL, patientID.String()), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ListByPatient.Record(latency, success, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\nSIMULATION REPORT")
	fmt.Printf("Duration: %s  Workers: %d  Hot intervals: %d\n\n",
		s.config.Duration, s.config.Workers, len(s.hotStarts))

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List by Doctor", &s.metrics.ListByDoctor)
	printOperationReport("List by Patient", &s.metrics.ListByPatient)

	booked := atomic.LoadInt64(&s.metrics.Booking.Success)
	maxPossible := int64(len(s.hotStarts) * len(s.pool.Doctors))
	if booked > maxPossible {
		fmt.Printf("WARNING: %d bookings succeeded but only %d doctor/interval pairs exist — double booking detected\n",
			booked, maxPossible)
	}
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	errCount := atomic.LoadInt64(&om.Error)

	avg, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if errCount > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errCount, float64(errCount)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s\n\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond), p95.Round(time.Millisecond))
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
