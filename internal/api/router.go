package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/medimitra/careplan-service/internal/careplan"
)

type RouterConfig struct {
	Service *careplan.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(ActorMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Care plan endpoints
	r.Post("/care-plans", createCarePlanHandler(cfg.Service))
	r.Get("/care-plans", listCarePlansHandler(cfg.Service))
	r.Get("/care-plans/{id}", getCarePlanHandler(cfg.Service))
	r.Post("/care-plans/{id}/tasks/{taskID}/complete", completeTaskHandler(cfg.Service))
	r.Post("/care-plans/{id}/tasks/{taskID}/miss", missTaskHandler(cfg.Service))

	// Prescription endpoints
	r.Get("/prescriptions", listPrescriptionsHandler(cfg.Service))

	// Chat endpoints
	r.Get("/chats", listChatsHandler(cfg.Service))
	r.Get("/chats/{id}/messages", listMessagesHandler(cfg.Service))
	r.Post("/chats/{id}/messages", sendMessageHandler(cfg.Service))

	// Analytics endpoints
	r.Get("/analytics/adherence", adherenceHandler(cfg.Service))

	return r
}
