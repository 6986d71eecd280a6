package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/readstack/readstack/internal/api"
	"github.com/readstack/readstack/internal/api/handlers"
	"github.com/readstack/readstack/internal/api/middleware"
	"github.com/readstack/readstack/internal/metrics"
)

type RouterConfig struct {
	SearchHandler *handlers.SearchHandler
	AskHandler    *handlers.AskHandler
	ModelsHandler *handlers.ModelsHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 1 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(metrics.Middleware())
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/search", func(r chi.Router) {
		r.Post("/", cfg.SearchHandler.Search)
		r.Post("/ask", cfg.AskHandler.Ask)
		r.Post("/ask/simple", cfg.AskHandler.AskSimple)
		r.Post("/ask/chunk", cfg.AskHandler.ChunkAsk)
	})

	r.Route("/models", func(r chi.Router) {
		r.Post("/", cfg.ModelsHandler.Create)
		r.Get("/", cfg.ModelsHandler.List)
	})

	return r
}
