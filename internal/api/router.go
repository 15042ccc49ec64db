// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fourtytwo42/soraFeed-sub001/internal/middleware"
)

// Router assembles the chi HTTP surface.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router around the handler.
func NewRouter(handler *Handler, mw *ChiMiddleware) *Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, chiMiddleware: mw}
}

// SetupChi wires the full route tree. Global middleware first (request
// id, real IP, panic recovery, CORS), then per-group rate limits and
// security headers.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())

	// Health and metrics sit outside the default limiter so probes and
	// scrapers are never throttled with the API.
	r.Group(func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitCustom(RateLimitHealth))
		r.Get("/healthz", router.handler.Health)
		r.Handle("/metrics", promhttp.Handler())
	})

	// Realtime channel. The limiter bounds upgrade attempts only.
	r.Group(func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitCustom(RateLimitWebSocket))
		r.Get("/ws", router.handler.WebSocket)
	})

	// Display management and playback commands.
	r.Route("/displays", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitCustom(RateLimitWrite))
		r.Use(APISecurityHeaders())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))

		r.Post("/", router.handler.CreateDisplay)
		r.Get("/", router.handler.ListDisplays)
		r.Get("/{code}", router.handler.GetDisplay)
		r.Delete("/{code}", router.handler.DeleteDisplay)
		r.Post("/{code}/commands", router.handler.EnqueueCommand)
	})

	r.Group(func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))

		r.Get("/timeline/{code}", router.handler.Timeline)
	})

	r.Route("/playlists", func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))

		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimitCustom(RateLimitWrite))
			r.Post("/import", router.handler.ImportPlaylist)
			r.Put("/blocks/reorder", router.handler.ReorderBlocks)
			r.Put("/blocks/{id}", router.handler.UpdateBlock)
			r.Delete("/blocks/{id}", router.handler.DeleteBlock)
		})
		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimitCustom(RateLimitExport))
			r.Use(chiMiddleware(middleware.Compression))
			r.Get("/{id}", router.handler.GetPlaylist)
			r.Get("/{id}/export", router.handler.ExportPlaylist)
		})
	})

	// Public content index reads.
	r.Route("/api", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Use(chiMiddleware(middleware.Compression))

		r.Get("/latest", router.handler.Latest)
		r.Get("/search", router.handler.Search)
		r.Get("/stats", router.handler.Stats)
	})

	return r
}
