package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/housing-queue/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware портала.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	if h.metrics != nil {
		r.Use(h.metrics.Middleware)
	}
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
	})

	r.Route("/api/queue", func(r chi.Router) {
		r.Get("/", h.ListQueue)
		r.Get("/{number}", h.GetQueuePosition)

		r.Group(func(r chi.Router) {
			if h.rateLimiter != nil {
				r.Use(h.rateLimiter.Handler)
			}
			r.Post("/check", h.CheckQueue)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Route("/api/applications", func(r chi.Router) {
			r.Post("/", h.SubmitApplication)
			r.Get("/", h.GetApplications)
			r.Get("/{number}", h.GetApplication)
			r.Put("/{number}", h.UpdateApplication)
			r.Put("/{number}/documents/{type}", h.PutDocument)
			r.Delete("/{number}/documents/{type}", h.DeleteDocument)
		})

		r.Route("/api/admin/applications/{number}", func(r chi.Router) {
			r.Use(custommiddleware.AdminOnly)

			r.Post("/status", h.ChangeStatus)
			r.Post("/reject", h.RejectApplication)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
