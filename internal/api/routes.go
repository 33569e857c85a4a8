package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupAPIRoutes sets up API v1 routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	// Health check
	r.Get("/health", s.HandleHealth)
	r.Get("/", s.HandleRoot)
	r.Handle("/metrics", promhttp.Handler())

	// Auth routes (public)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", s.HandleSignup)
		r.Get("/verify/{token}", s.HandleVerifyEmail)
		r.Post("/login", s.HandleLogin)
		r.Post("/refresh", s.HandleRefresh)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/auth/logout", s.HandleLogout)

		// Devices
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.HandleListDevices)
			r.Post("/", s.HandleRegisterDevice)
			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", s.HandleDeleteDevice)
				r.With(s.adminMiddleware).Post("/approve", s.HandleApproveDevice)
				r.With(s.adminMiddleware).Post("/reject", s.HandleRejectDevice)
			})
		})

		// Bookings
		r.Route("/bookings", func(r chi.Router) {
			r.Get("/", s.HandleListBookings)
			r.Post("/", s.HandleCreateBooking)
			r.Route("/{id}", func(r chi.Router) {
				r.Post("/start", s.HandleStartSession)
				r.Post("/pause", s.HandlePauseSession)
				r.Post("/resume", s.HandleResumeSession)
				r.Post("/end", s.HandleEndSession)
			})
		})

		// Admin
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.adminMiddleware)
			r.Get("/dashboard", s.HandleAdminDashboard)
			r.Get("/devices", s.HandleAdminListDevices)
			r.Get("/devices/{id}/logs", s.HandleAdminDeviceLogs)
			r.Get("/users/pending", s.HandleAdminPendingUsers)
			r.Post("/users/{id}/approve", s.HandleAdminApproveUser)
		})
	})
}
