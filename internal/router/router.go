package router

import (
	"net/http"

	"bidhub-api/internal/handler"
	"bidhub-api/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler        *handler.Handler
	AuctionHandler *handler.AuctionHandler
	AdminHandler   *handler.AdminHandler
	AuthHandler    *handler.AuthHandler
	AuthMiddleware func(http.Handler) http.Handler
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Token", "X-User-ID", "X-User-Name"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// PUBLIC routes (no auth required)
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	// AUTHENTICATED routes (use Group to apply auth middleware only to these)
	r.Group(func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware)
		}

		r.Route("/api/v1", func(r chi.Router) {
			// Health check endpoints
			if cfg.Handler != nil {
				r.Get("/health", cfg.Handler.Health)
				r.Get("/ready", cfg.Handler.Ready)
			}

			// Auth endpoints
			if cfg.AuthHandler != nil {
				r.Route("/auth", func(r chi.Router) {
					r.Post("/token", cfg.AuthHandler.GenerateToken)
					r.Post("/revoke", cfg.AuthHandler.RevokeToken)
				})
			}

			// Lot and bidding endpoints
			if cfg.AuctionHandler != nil {
				r.Route("/lots", func(r chi.Router) {
					r.Post("/", cfg.AuctionHandler.CreateLot)
					r.Get("/", cfg.AuctionHandler.ListLots)
					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", cfg.AuctionHandler.GetLot)
						r.Post("/bid", cfg.AuctionHandler.PlaceBid)
						r.Post("/buy-now", cfg.AuctionHandler.BuyNow)
						r.Post("/auto-bid", cfg.AuctionHandler.AutoBid)
						r.Post("/end", cfg.AuctionHandler.EndLot)
					})
				})

				// Manual sweep trigger, mirrors what the ticker does.
				r.Get("/auction/test", cfg.AuctionHandler.TriggerReconcile)
			}

			// Admin endpoints
			if cfg.AdminHandler != nil {
				r.Route("/admin", func(r chi.Router) {
					r.Get("/stats", cfg.AdminHandler.GetStats)
				})
			}
		})
	})

	return r
}
