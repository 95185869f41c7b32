package proforma

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/laha-editions/proforma/internal/platform/httpx"
)

const (
	sweepRateLimit  = 6
	sweepRateWindow = time.Minute
)

// MountRoutes registers the proforma endpoints on r, typically mounted at
// /api/proformas.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(sweepRateLimit, sweepRateWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), "")
		}),
	)

	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Post("/expire", h.expire)
	})
	r.Get("/{id}", h.show)
	r.Get("/{id}/pdf", h.pdf)
	r.Put("/{id}", h.update)
	r.Post("/{id}/recompute", h.recompute)
	r.Post("/{id}/{action}", h.transition)
}
