package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careops/clinic-scheduling/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedDoctors(context.Background(), pool, 50); err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d doctors", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	hours := [][2]string{
		{"08:00", "16:00"},
		{"09:00", "17:00"},
		{"10:00", "18:00"},
		{"07:30", "15:30"},
	}

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := fmt.Sprintf("Dr. %s %s", gofakeit.FirstName(), gofakeit.LastName())
		email := gofakeit.Email()
		specialty := specialties[gofakeit.Number(0, len(specialties)-1)]
		window := hours[gofakeit.Number(0, len(hours)-1)]

		_, err := pool.Exec(ctx, `
			INSERT INTO doctors (id, name, email, specialty, available_from, available_to, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		`, id, name, email, specialty, window[0], window[1])
		if err != nil {
			return fmt.Errorf("insert doctor %d: %w", i, err)
		}
	}

	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()

		// Roughly one in ten patients has no email on file, so reminder
		// skipping is exercised with realistic data.
		var email *string
		if gofakeit.Number(0, 9) > 0 {
			e := gofakeit.Email()
			email = &e
		}

		_, err := pool.Exec(ctx, `
			INSERT INTO patients (id, name, email, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, email)
		if err != nil {
			return fmt.Errorf("insert patient %d: %w", i, err)
		}
	}

	return nil
}
