package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/EmpoweredVote/EV-Dashboard/internal/activity"
	"github.com/EmpoweredVote/EV-Dashboard/internal/flash"
	"github.com/EmpoweredVote/EV-Dashboard/internal/middleware"
	"github.com/EmpoweredVote/EV-Dashboard/internal/utils"
	"github.com/rs/zerolog/log"
)

const recentActivityLimit = 100

// ActivityReader lists recorded events for the admin view.
type ActivityReader interface {
	Recent(ctx context.Context, limit int) ([]activity.Event, error)
}

type HandlerOptions struct {
	Service  *Service
	Sessions SessionStore
	Events   ActivityReader
	// Limiter throttles login and registration posts per client IP. Nil disables it.
	Limiter       *middleware.IPRateLimiter
	SessionTTL    time.Duration
	SecureCookies bool
}

type Handler struct {
	svc      *Service
	sessions SessionStore
	events   ActivityReader
	limiter  *middleware.IPRateLimiter
	ttl      time.Duration
	secure   bool
}

func NewHandler(opts HandlerOptions) *Handler {
	return &Handler{
		svc:      opts.Service,
		sessions: opts.Sessions,
		events:   opts.Events,
		limiter:  opts.Limiter,
		ttl:      opts.SessionTTL,
		secure:   opts.SecureCookies,
	}
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secure,
		MaxAge:   int(h.ttl.Seconds()),
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secure,
		MaxAge:   -1,
	})
}

func sessionCookie(r *http.Request) string {
	c, err := r.Cookie(middleware.SessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, pageLogin, pageData{Title: "Log in"})
}

func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid Request Format", http.StatusBadRequest)
		return
	}
	username := r.PostForm.Get("username")
	form := map[string]string{"username": username}

	est, err := h.svc.Login(r.Context(), username, r.PostForm.Get("password"))
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		render(w, r, http.StatusUnauthorized, pageLogin, pageData{
			Title: "Log in",
			Error: "Invalid credentials. Please try again.",
			Form:  form,
		})
		return
	case err != nil:
		render(w, r, http.StatusInternalServerError, pageLogin, pageData{
			Title: "Log in",
			Error: "An error occurred. Please try again.",
			Form:  form,
		})
		return
	}

	h.svc.DiscardSession(r.Context(), sessionCookie(r))
	h.setSessionCookie(w, est.State.SessionID)
	flash.Add(w, est.Notice)
	http.Redirect(w, r, est.Redirect, http.StatusSeeOther)
}

// LogoutHandler clears the whole session. Without one it sends the browser to
// the login page with a notice.
func (h *Handler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	id := sessionCookie(r)
	var (
		sess utils.SessionData
		err  error
	)
	if id != "" {
		sess, err = h.sessions.FindSessionByID(r.Context(), id)
	}
	if id == "" || err != nil {
		h.clearSessionCookie(w)
		flash.Add(w, flash.Message{Kind: flash.Error, Text: "Please login to access this page."})
		http.Redirect(w, r, RouteLogin, http.StatusSeeOther)
		return
	}

	if err := h.svc.Logout(r.Context(), sess); err != nil {
		log.Error().Err(err).Msg("Failed to delete session on logout")
		flash.Add(w, flash.Message{Kind: flash.Error, Text: "An error occurred. Please try again."})
		http.Redirect(w, r, RouteDashboard, http.StatusSeeOther)
		return
	}
	h.clearSessionCookie(w)
	flash.Add(w, flash.Message{Kind: flash.Success, Text: "Logged out successfully"})
	http.Redirect(w, r, RouteLogin, http.StatusSeeOther)
}

func (h *Handler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, pageRegister, pageData{Title: "Register"})
}

func (h *Handler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid Request Format", http.StatusBadRequest)
		return
	}
	in := RegisterInput{
		Username: r.PostForm.Get("username"),
		Email:    r.PostForm.Get("email"),
		Password: r.PostForm.Get("password"),
	}
	form := map[string]string{"username": in.Username, "email": in.Email}

	_, err := h.svc.Register(r.Context(), in)
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		render(w, r, http.StatusBadRequest, pageRegister, pageData{Title: "Register", Error: verr.Message, Form: form})
		return
	case errors.Is(err, ErrConflict):
		render(w, r, http.StatusConflict, pageRegister, pageData{Title: "Register", Error: "Username or email already exists.", Form: form})
		return
	case err != nil:
		render(w, r, http.StatusInternalServerError, pageRegister, pageData{
			Title: "Register",
			Error: "An error occurred during registration. Please try again.",
			Form:  form,
		})
		return
	}

	flash.Add(w, flash.Message{Kind: flash.Success, Text: "Registration successful! You can now log in."})
	http.Redirect(w, r, RouteLogin, http.StatusSeeOther)
}

func (h *Handler) ChangePasswordPage(w http.ResponseWriter, r *http.Request) {
	sess, _ := utils.GetSessionFromContext(r.Context())
	render(w, r, http.StatusOK, pageChangePassword, pageData{Title: "Change password", Session: &sess})
}

func (h *Handler) ChangePasswordHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := utils.GetSessionFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, RouteLogin, http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid Request Format", http.StatusBadRequest)
		return
	}

	_, err := h.svc.ChangePassword(r.Context(), sess,
		r.PostForm.Get("current_password"),
		r.PostForm.Get("new_password"),
		r.PostForm.Get("confirm_password"),
	)

	page := pageData{Title: "Change password", Session: &sess}
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		page.Error = verr.Message
		render(w, r, http.StatusBadRequest, pageChangePassword, page)
		return
	case errors.Is(err, ErrManagedAccount):
		page.Error = "The admin password is managed by configuration."
		render(w, r, http.StatusBadRequest, pageChangePassword, page)
		return
	case errors.Is(err, ErrInvalidCredentials):
		page.Error = "Current password is incorrect."
		render(w, r, http.StatusUnauthorized, pageChangePassword, page)
		return
	case err != nil:
		page.Error = "An error occurred. Please try again."
		render(w, r, http.StatusInternalServerError, pageChangePassword, page)
		return
	}

	flash.Add(w, flash.Message{Kind: flash.Success, Text: "Password updated successfully."})
	http.Redirect(w, r, RouteDashboard, http.StatusSeeOther)
}

func (h *Handler) IndexHandler(w http.ResponseWriter, r *http.Request) {
	sess, _ := utils.GetSessionFromContext(r.Context())
	render(w, r, http.StatusOK, pageIndex, pageData{Title: "Dashboard", Session: &sess})
}

type MeResponse struct {
	Session utils.SessionData `json:"session"`
	User    *User             `json:"user"`
}

func (h *Handler) MeHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := utils.GetSessionFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: missing session in context", http.StatusUnauthorized)
		return
	}

	user, err := h.svc.CurrentUser(r.Context(), sess)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "Couldn't find user", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to load user", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(MeResponse{Session: sess, User: user}); err != nil {
		log.Error().Err(err).Msg("Failed to encode /me response")
	}
}

func (h *Handler) ActivityHandler(w http.ResponseWriter, r *http.Request) {
	sess, _ := utils.GetSessionFromContext(r.Context())

	var events []activity.Event
	if h.events != nil {
		var err error
		events, err = h.events.Recent(r.Context(), recentActivityLimit)
		if err != nil {
			log.Error().Err(err).Msg("Failed to load recent activity")
			http.Error(w, "Failed to load activity", http.StatusInternalServerError)
			return
		}
	}
	render(w, r, http.StatusOK, pageActivity, pageData{Title: "Activity", Session: &sess, Events: events})
}
