package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/caresync/scheduling/internal/appointment"
	"github.com/caresync/scheduling/internal/calendar"
	"github.com/caresync/scheduling/internal/notify"
	"github.com/caresync/scheduling/internal/slot"
	"github.com/caresync/scheduling/pkg/logging"
)

type RouterConfig struct {
	Slots         *slot.Service
	Appointments  *appointment.Service
	Calendar      *calendar.Bridge
	Notifications notify.Store

	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Registry *prometheus.Registry
	Logger   *logging.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	if cfg.Logger != nil {
		r.Use(LoggingMiddleware(cfg.Logger))
	}

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/doctors/{doctorID}", func(r chi.Router) {
		r.Get("/slots", listSlotsHandler(cfg.Slots, false))
		r.Get("/slots/available", listSlotsHandler(cfg.Slots, true))
		r.Post("/slots/generate", generateSlotsHandler(cfg.Slots))
		r.Get("/appointments", listDoctorAppointmentsHandler(cfg.Appointments))

		if cfg.Calendar != nil {
			r.Post("/calendar/import", importCalendarHandler(cfg.Calendar))
			r.Post("/calendar/export", exportCalendarHandler(cfg.Calendar))
			r.Post("/calendar/sync", syncCalendarHandler(cfg.Calendar))
		}
	})

	r.Route("/slots", func(r chi.Router) {
		r.Post("/", createSlotHandler(cfg.Slots))
		r.Get("/{id}", getSlotHandler(cfg.Slots))
		r.Patch("/{id}", updateSlotHandler(cfg.Slots))
		r.Delete("/{id}", deleteSlotHandler(cfg.Slots))
	})

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", createAppointmentHandler(cfg.Appointments))
		r.Get("/{id}", getAppointmentHandler(cfg.Appointments))
		r.Patch("/{id}", updateAppointmentHandler(cfg.Appointments))
		r.Delete("/{id}", deleteAppointmentHandler(cfg.Appointments))
	})

	r.Get("/patients/{patientID}/appointments", listPatientAppointmentsHandler(cfg.Appointments))

	if cfg.Notifications != nil {
		r.Get("/users/{userID}/notifications", listNotificationsHandler(cfg.Notifications))
		r.Post("/notifications/{id}/read", markNotificationReadHandler(cfg.Notifications))
	}

	return r
}
