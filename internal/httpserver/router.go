package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"dialectgate/internal/dialect/anthropic"
	"dialectgate/internal/dialect/gemini"
	"dialectgate/internal/dialect/openai"
	"dialectgate/internal/handlers"
	"dialectgate/internal/metrics"
	"dialectgate/internal/middleware"
)

type Config struct {
	Handlers     handlers.Options
	MaxBodyBytes int64
	Version      string
}

func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, cfg Config) {
	metrics.Register()

	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer()) // panic recovery
	r.Use(middleware.CORS())
	r.Use(middleware.MaxBodySize(cfg.MaxBodyBytes))

	anthropicHandler := handlers.NewDialectHandler(anthropic.New(), cfg.Handlers)
	openaiHandler := handlers.NewDialectHandler(openai.New(), cfg.Handlers)
	geminiHandler := handlers.NewDialectHandler(gemini.New(), cfg.Handlers)

	// dialect routes
	r.Route("/v1", func(r chi.Router) {
		r.Method(http.MethodPost, "/messages", anthropicHandler)
		r.Method(http.MethodPost, "/chat/completions", openaiHandler)
		r.Method(http.MethodPost, "/generateContent", geminiHandler)
		r.Post("/models/{target}", geminiHandler.GeminiModelAction)
		r.Get("/models", handlers.Models(cfg.Handlers.BackendKind, cfg.Handlers.DefaultModel))
	})
	r.Post("/v1beta/models/{target}", geminiHandler.GeminiModelAction)

	r.Get("/", handlers.Info(cfg.Version, cfg.Handlers.BackendKind, cfg.Handlers.DefaultModel))

	// health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())

	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(handlers.NotFound)
}
