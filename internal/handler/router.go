package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/authgate/authgate-go/internal/middleware"
)

// RouterConfig holds what the HTTP surface needs beyond the auth handler.
type RouterConfig struct {
	Verifier    middleware.TokenVerifier
	CORSOrigins []string
	// RateLimitRPS <= 0 disables the signup/login limiter.
	RateLimitRPS   float64
	RateLimitBurst int
	Logger         *slog.Logger
}

// NewRouter wires the auth endpoints. ctx bounds background work such as
// rate limiter eviction.
func NewRouter(ctx context.Context, auth *AuthHandler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(chimw.Recoverer)

	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.Use(middleware.Session(cfg.Verifier, cfg.Logger))

		r.Group(func(r chi.Router) {
			if cfg.RateLimitRPS > 0 {
				r.Use(middleware.RateLimit(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst))
			}
			r.Post("/signup", auth.HandleSignup)
			r.Post("/login", auth.HandleLogin)
		})

		r.Post("/logout", auth.HandleLogout)
		r.Get("/me", auth.HandleMe)
	})

	return r
}
