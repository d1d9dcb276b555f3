package auth

import (
	"net/http"

	"github.com/EmpoweredVote/EV-Dashboard/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// SetupRoutes returns the dashboard router. Mount it at RouteDashboard.
func SetupRoutes(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		if h.limiter != nil {
			r.Use(h.limiter.Middleware)
		}
		r.Get("/login", h.LoginPage)
		r.Post("/login", h.LoginHandler)
		r.Get("/register", h.RegisterPage)
		r.Post("/register", h.RegisterHandler)
	})

	r.Get("/logout", h.LogoutHandler)
	r.Post("/logout", h.LogoutHandler)

	r.With(middleware.SessionMiddleware(h.sessions)).Get("/me", h.MeHandler)

	r.Group(func(r chi.Router) {
		r.Use(middleware.LoginRequired(h.sessions, RouteLogin))
		r.Use(middleware.RequirePasswordChange(RouteChangePassword, RouteLogout))

		r.Get("/", h.IndexHandler)
		r.Get("/change-password", h.ChangePasswordPage)
		r.Post("/change-password", h.ChangePasswordHandler)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminMiddleware)
			r.Get("/admin/activity", h.ActivityHandler)
		})
	})

	return r
}
