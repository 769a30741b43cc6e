package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-slot-booking/internal/auth"
	"github.com/hackgods/doctor-slot-booking/internal/clock"
	"github.com/hackgods/doctor-slot-booking/internal/config"
	"github.com/hackgods/doctor-slot-booking/internal/db"
	"github.com/hackgods/doctor-slot-booking/internal/logging"
	"github.com/hackgods/doctor-slot-booking/internal/scheduling"
)

// Slot lengths a seeded doctor may work with, in minutes.
var slotLengths = []int{20, 30, 45}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if cfg.StoreBackend != config.BackendPostgres {
		log.Fatal("seed needs STORE_BACKEND=postgres")
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	doctors := getInt("SEED_DOCTORS", 10)
	patients := getInt("SEED_PATIENTS", 5)
	days := getInt("SEED_DAYS", 7)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	core := scheduling.NewReservationCore(scheduling.Options{
		Repository: scheduling.NewPgRepository(pool),
		Clock:      clock.NewSystem(cfg.Location),
		Logger:     logger.Named("seed").WithOptions(zap.IncreaseLevel(zap.WarnLevel)),
	})
	tokens := auth.NewManager(cfg.JWTSecret, 7*24*time.Hour)

	gofakeit.Seed(time.Now().UnixNano())

	admin := scheduling.Actor{UserID: uuid.MustParse(gofakeit.UUID()), Role: scheduling.RoleAdmin}
	printToken(tokens, "admin", admin)

	firstDay := core.Today().AddDays(1)
	for i := 0; i < doctors; i++ {
		doctor := scheduling.Actor{UserID: uuid.MustParse(gofakeit.UUID()), Role: scheduling.RoleDoctor}
		n, err := seedDoctorSlots(context.Background(), core, admin, doctor.UserID, firstDay, days)
		if err != nil {
			logger.Fatal("seed slots", zap.Stringer("doctor_id", doctor.UserID), zap.Error(err))
		}
		logger.Info("doctor seeded",
			zap.String("name", "Dr. "+gofakeit.LastName()),
			zap.Stringer("doctor_id", doctor.UserID),
			zap.Int("slots", n),
		)
		if i < 3 {
			printToken(tokens, "doctor", doctor)
		}
	}

	for i := 0; i < patients; i++ {
		patient := scheduling.Actor{UserID: uuid.MustParse(gofakeit.UUID()), Role: scheduling.RolePatient}
		printToken(tokens, "patient", patient)
	}

	logger.Info("seed complete", zap.Int("doctors", doctors), zap.Int("days", days))
}

// seedDoctorSlots lays out back-to-back slots over a morning and an afternoon
// session for each day. Every slot goes through CreateSlot, so shape and
// overlap rules apply exactly as they do for API callers.
func seedDoctorSlots(ctx context.Context, core *scheduling.ReservationCore, admin scheduling.Actor, doctorID uuid.UUID, first civil.Date, days int) (int, error) {
	length := slotLengths[gofakeit.Number(0, len(slotLengths)-1)]
	sessions := [][2]int{{9 * 60, 12 * 60}, {13 * 60, 17 * 60}}

	created := 0
	for d := 0; d < days; d++ {
		date := first.AddDays(d)
		if wd := date.In(time.UTC).Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		for _, session := range sessions {
			for start := session[0]; start+length <= session[1]; start += length {
				_, err := core.CreateSlot(ctx, admin, doctorID, date, minutes(start), minutes(start+length))
				if errors.Is(err, scheduling.ErrDuplicateSlot) || errors.Is(err, scheduling.ErrOverlap) {
					continue
				}
				if err != nil {
					return created, err
				}
				created++
			}
		}
	}
	return created, nil
}

func minutes(m int) civil.Time {
	return civil.Time{Hour: m / 60, Minute: m % 60}
}

func printToken(m *auth.Manager, label string, actor scheduling.Actor) {
	token, err := m.Issue(actor)
	if err != nil {
		log.Fatalf("issue %s token: %v", label, err)
	}
	fmt.Printf("%-8s %s %s\n", label, actor.UserID, token)
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
