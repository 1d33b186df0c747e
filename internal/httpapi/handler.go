package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"docreg/internal/registration"
	"docreg/internal/tracing"
)

// Registrar is the registration store as used by the endpoint
type Registrar interface {
	Create(ctx context.Context, req registration.Request) (string, error)
	ListAll(ctx context.Context) ([]registration.Summary, error)
	UpdateStatus(ctx context.Context, id string, status registration.Status) (time.Time, error)
}

// Pinger reports storage liveness
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the HTTP surface
type Options struct {
	// BasePath prefixes every registration route, e.g. "/api"
	BasePath string
	// AdminToken protects list, operate and events when non-empty
	AdminToken string
	BcryptCost int
	// Events serves the live event feed; nil disables the route
	Events http.Handler
	Tracer trace.Tracer
}

// Handler handles HTTP requests
type Handler struct {
	registrar Registrar
	db        Pinger
	opts      Options
	logger    *slog.Logger
}

// NewHandler creates a new handler
func NewHandler(registrar Registrar, db Pinger, opts Options, logger *slog.Logger) *Handler {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &Handler{
		registrar: registrar,
		db:        db,
		opts:      opts,
		logger:    logger,
	}
}

// Router returns the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(tracing.Middleware(h.opts.Tracer))

	r.Get("/health", h.healthCheck)

	routes := func(r chi.Router) {
		r.Route("/registerUser", func(r chi.Router) {
			r.Put("/register", h.register)

			// Review routes
			r.Group(func(r chi.Router) {
				r.Use(adminAuth(h.opts.AdminToken))
				r.Get("/list", h.list)
				r.Post("/operate", h.operate)
				if h.opts.Events != nil {
					r.Method(http.MethodGet, "/events", h.opts.Events)
				}
			})
		})
	}

	if h.opts.BasePath != "" {
		r.Route(h.opts.BasePath, routes)
	} else {
		routes(r)
	}

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.logger.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// JSON response helpers

type clientError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type operateError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
