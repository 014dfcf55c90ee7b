package router

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"phone-auth-service/internal/handler"
)

func SetupRoutes(r chi.Router, h *handler.AuthHandler) chi.Router {
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api/v1", func(api chi.Router) {
		// ---------------- Public ----------------
		api.Group(func(pub chi.Router) {
			pub.Get("/auth/health", h.Health)
			pub.Post("/auth/otp/send", h.HandleSendOTP)
			pub.Post("/auth/otp/verify", h.HandleVerifyOTP)
		})

		// ---------------- Operator ----------------
		api.Group(func(ops chi.Router) {
			ops.Get("/ops/deliveries/failed", h.HandleFailedDeliveries)
		})
	})

	return r
}
