package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/vasapolrittideah/echo-auth-api/services/auth-service/internal/payload"
	"github.com/vasapolrittideah/echo-auth-api/shared/utilities"
)

type RouterConfig struct {
	AllowedOrigins    []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// NewRouter builds the service's HTTP surface. Everything under /api/auth
// shares one per-IP rate limit.
func NewRouter(
	cfg RouterConfig,
	authHandler *AuthHTTPHandler,
	sessions SessionVerifier,
	logger *zerolog.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(hlog.NewHandler(*logger))
	r.Use(hlog.RequestIDHandler("request_id", "X-Request-Id"))
	r.Use(hlog.RemoteAddrHandler("ip"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, payload.MessageResponse{Message: "ok"})
	})

	tooManyRequests := payload.MessageResponse{Message: tooManyRequestsMessage(cfg.RateLimitWindow)}

	r.Route("/api/auth", func(r chi.Router) {
		r.Use(httprate.Limit(
			cfg.RateLimitRequests,
			cfg.RateLimitWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusTooManyRequests, tooManyRequests)
			}),
		))
		r.Mount("/", authHandler.Routes(RequireSession(sessions)))
	})

	return r
}

func tooManyRequestsMessage(window time.Duration) string {
	return "Too many signup attempts from this IP, please try again after " + utilities.HumanizeDuration(window)
}
