package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-slot-booking/internal/auth"
	"github.com/hackgods/doctor-slot-booking/internal/scheduling"
)

type RouterConfig struct {
	Core        *scheduling.ReservationCore
	Auth        *auth.Manager
	PgPool      Pinger // nil for the in-memory store
	Redis       *redis.Client
	Logger      *zap.Logger
	Metrics     http.Handler // defaults to promhttp.Handler()
	CORSOrigins []string
	Env         string
	Version     string
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", metrics)

	core := cfg.Core
	r.Group(func(r chi.Router) {
		r.Use(cfg.Auth.Middleware)

		r.Route("/timeslots", func(r chi.Router) {
			r.Post("/", createSlotHandler(core))
			r.Get("/my", mySlotsHandler(core))
			r.Get("/{id}", getSlotHandler(core))
			r.Put("/{id}", updateSlotHandler(core))
			r.Delete("/{id}", deleteSlotHandler(core))
		})

		r.Get("/doctors/available", availableDoctorsHandler(core))
		r.Get("/doctors/{doctorID}/timeslots", doctorSlotsHandler(core))

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", bookHandler(core))
			r.Get("/me", myAppointmentsHandler(core))
			r.Get("/today", todayAppointmentsHandler(core))
			r.Get("/{id}", getAppointmentHandler(core))
			r.Patch("/{id}/status", changeStatusHandler(core))
			r.Post("/{id}/cancel", cancelHandler(core))
			r.Delete("/{id}", deleteAppointmentHandler(core))
		})

		r.Get("/admin/appointments", adminAppointmentsHandler(core))
		r.Get("/admin/timeslots", adminSlotsHandler(core))
	})

	return r
}
