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

	"github.com/salonflow/scheduling/internal/db"
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

	businessID, professionalIDs, err := seedBusiness(context.Background(), pool, 8)
	if err != nil {
		log.Fatalf("seed business: %v", err)
	}
	if err := seedServices(context.Background(), pool, businessID); err != nil {
		log.Fatalf("seed services: %v", err)
	}
	if err := seedWorkingHours(context.Background(), pool, businessID, professionalIDs); err != nil {
		log.Fatalf("seed working hours: %v", err)
	}
	if err := seedClients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed clients: %v", err)
	}

	log.Printf("seed complete business_id=%s", businessID)
}

func seedBusiness(ctx context.Context, pool *pgxpool.Pool, professionals int) (uuid.UUID, []uuid.UUID, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, nil, err
	}
	defer tx.Rollback(ctx)

	businessID := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO businesses (id, name, created_at, updated_at)
		VALUES ($1, $2, now(), now())
	`, businessID, gofakeit.Company()+" Salon")
	if err != nil {
		return uuid.Nil, nil, err
	}

	log.Printf("seeding %d professionals", professionals)

	ids := make([]uuid.UUID, 0, professionals)
	for i := 0; i < professionals; i++ {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO professionals (id, business_id, name, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, true, now(), now())
		`, id, businessID, gofakeit.Name())
		if err != nil {
			return uuid.Nil, nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, nil, err
	}

	return businessID, ids, nil
}

func seedServices(ctx context.Context, pool *pgxpool.Pool, businessID uuid.UUID) error {
	services := []struct {
		name     string
		duration int
		price    float64
	}{
		{"Haircut", 30, 45},
		{"Color & Highlights", 120, 180},
		{"Blowout", 45, 55},
		{"Manicure", 30, 35},
		{"Pedicure", 45, 50},
		{"Facial", 60, 95},
		{"Deep Conditioning", 30, 40},
		{"Beard Trim", 30, 25},
	}

	log.Printf("seeding %d services", len(services))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, s := range services {
		_, err := tx.Exec(ctx, `
			INSERT INTO services (id, business_id, name, duration_minutes, price, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, true, now(), now())
		`, uuid.New(), businessID, s.name, s.duration, s.price)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func seedWorkingHours(ctx context.Context, pool *pgxpool.Pool, businessID uuid.UUID, professionalIDs []uuid.UUID) error {
	log.Println("seeding working hours")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Business default: Tuesday through Saturday, 09:00-18:00 with a lunch break.
	for day := 2; day <= 6; day++ {
		_, err := tx.Exec(ctx, `
			INSERT INTO working_hours (id, business_id, professional_id, day_of_week, start_time, end_time, break_start, break_end, is_active, created_at, updated_at)
			VALUES ($1, $2, NULL, $3, '09:00', '18:00', '12:00', '13:00', true, now(), now())
		`, uuid.New(), businessID, day)
		if err != nil {
			return err
		}
	}

	// A couple of professionals get their own late shift on Thursday and Friday.
	for i, professionalID := range professionalIDs {
		if i >= 2 {
			break
		}
		for _, day := range []int{4, 5} {
			_, err := tx.Exec(ctx, `
				INSERT INTO working_hours (id, business_id, professional_id, day_of_week, start_time, end_time, break_start, break_end, is_active, created_at, updated_at)
				VALUES ($1, $2, $3, $4, '12:00', '21:00', '16:00', '16:30', true, now(), now())
			`, uuid.New(), businessID, professionalID, day)
			if err != nil {
				return err
			}
		}
	}

	return tx.Commit(ctx)
}

func seedClients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d clients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			email := gofakeit.Email()
			_, err := tx.Exec(ctx, `
				INSERT INTO clients (id, name, phone, email, total_visits, total_spent, created_at, updated_at)
				VALUES ($1, $2, $3, $4, 0, 0, now(), now())
			`, uuid.New(), gofakeit.Name(), fmt.Sprintf("+1%d", gofakeit.Number(2000000000, 9999999999)), email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("clients seeded: %d/%d", end, count)
	}

	log.Println("clients seeded")
	return nil
}
