package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/conflictlab/session-backend/internal/config"
	"github.com/conflictlab/session-backend/internal/registry"
	"github.com/conflictlab/session-backend/internal/ws"
)

func SetupRoutes(reg *registry.Registry, cfg config.Config, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", ws.Handler(reg, cfg, log))
	return r
}
