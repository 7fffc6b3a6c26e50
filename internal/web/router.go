package web

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/znz-systems/formdrop/internal/ratelimit"
	"github.com/znz-systems/formdrop/internal/web/handlers"
	"github.com/znz-systems/formdrop/internal/web/middleware"
)

const submitPattern = "/api/submit/{projectID}/*"

// RouterDeps holds all dependencies needed to build the router.
type RouterDeps struct {
	SubmitHandler *handlers.SubmitHandler
	// FilesHandler is nil when uploads live in a bucket with its own URLs.
	FilesHandler  *handlers.FilesHandler
	HealthHandler *handlers.HealthHandler
	Limiter       ratelimit.Allower
}

// NewRouter wires all routes into a Chi router.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RealIP)

	r.MethodNotAllowed(deps.SubmitHandler.HandleMethodNotAllowed)

	r.Get("/healthz", deps.HealthHandler.HandleHealth)

	if deps.FilesHandler != nil {
		r.Get("/files/*", deps.FilesHandler.HandleGetFile)
	}

	// Preflight is answered before rate limiting so browsers never see a
	// 429 on OPTIONS.
	r.Options(submitPattern, deps.SubmitHandler.HandlePreflight)

	// Public submission API (rate limited)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(deps.Limiter))

		r.Post(submitPattern, deps.SubmitHandler.HandleSubmit)
		r.Put(submitPattern, deps.SubmitHandler.HandleSubmit)
		r.Patch(submitPattern, deps.SubmitHandler.HandleSubmit)
	})

	return r
}
