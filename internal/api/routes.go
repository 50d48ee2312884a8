package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (h *Handler) Routes(m *Middleware, corsOrigins []string, rateLimitRPM int) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(m.RequestID)
	r.Use(m.RequestLogger)
	r.Use(m.Recoverer)
	r.Use(m.SecurityHeaders)
	r.Use(middleware.Heartbeat("/ping"))

	// CORS and rate limiting - configured from main
	r.Use(m.CORS(corsOrigins))
	r.Use(m.RateLimit(rateLimitRPM))

	// Shared-link sessions are detected once and scoped for every handler
	r.Use(m.ClientScope)

	// Request/response endpoints get compression and a hard deadline
	r.Group(func(r chi.Router) {
		r.Use(m.Compress)
		r.Use(m.Timeout(15 * time.Second))

		// Health endpoints
		r.Get("/healthz", h.Healthz)
		r.Get("/readyz", h.Readyz)

		// v1 API routes
		r.Route("/v1", func(r chi.Router) {
			// Static vocabularies for calendar rendering
			r.Get("/meta", h.GetMeta)

			// Client accounts
			r.Route("/accounts", func(r chi.Router) {
				r.Get("/", h.ListAccounts)
				r.Post("/", h.CreateAccount)
				r.Patch("/{id}", h.PatchAccount)
				r.Delete("/{id}", h.DeleteAccount)
				r.Put("/{id}/activate", h.ActivateAccount)
				r.Get("/{id}/share-link", h.GetShareLink)
			})

			// Scheduled posts
			r.Route("/posts", func(r chi.Router) {
				r.Get("/", h.ListPosts)
				r.Put("/", h.SavePost)
				r.Get("/{id}", h.GetPost)
				r.Delete("/{id}", h.DeletePost)
				r.Patch("/{id}/status", h.ChangeStatus)
				r.Post("/{id}/comments", h.AddComment)
				r.Post("/{id}/repost", h.Repost)
				r.Post("/{id}/duplicate", h.Duplicate)
				r.Get("/{id}/export", h.ExportPost)
			})

			// Weekly calendar grid
			r.Get("/calendar/slots", h.GetCalendarSlots)
		})
	})

	// Live updates hold their connection open: http.TimeoutHandler's writer
	// implements neither Flusher nor Hijacker, and gzip buffering would stall
	// the event stream, so these routes skip both.
	r.Get("/v1/stream", h.HandleSSE)
	r.Get("/v1/ws", h.HandleWebSocket)

	return r
}
