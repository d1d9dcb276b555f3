package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/EmpoweredVote/EV-Dashboard/internal/flash"
	"github.com/EmpoweredVote/EV-Dashboard/internal/utils"
)

const SessionCookieName = "session_id"

type SessionFetcher interface {
	FindSessionByID(ctx context.Context, id string) (utils.SessionData, error)
}

// loadSession resolves the session cookie. The returned message is the reason
// shown to API clients when no usable session exists.
func loadSession(fetcher SessionFetcher, r *http.Request) (utils.SessionData, string, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return utils.SessionData{}, "Couldn't find cookie", false
	}

	session, err := fetcher.FindSessionByID(r.Context(), cookie.Value)
	if err != nil {
		return utils.SessionData{}, "Couldn't find session", false
	}

	if session.Expired(time.Now()) {
		return utils.SessionData{}, "Session expired", false
	}

	return session, "", true
}

// SessionMiddleware rejects requests without a live session with 401.
func SessionMiddleware(fetcher SessionFetcher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, reason, ok := loadSession(fetcher, r)
			if !ok {
				http.Error(w, reason, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(utils.WithSession(r.Context(), session)))
		})
	}
}

// LoginRequired is SessionMiddleware for browser pages: instead of a 401 it
// redirects to loginPath with a notice.
func LoginRequired(fetcher SessionFetcher, loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, _, ok := loadSession(fetcher, r)
			if !ok {
				flash.Add(w, flash.Message{Kind: flash.Error, Text: "Please login to access this page."})
				http.Redirect(w, r, loginPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r.WithContext(utils.WithSession(r.Context(), session)))
		})
	}
}

// RequirePasswordChange keeps a session flagged with ForceChangePassword on
// changePath until the password has been replaced. Paths in allow stay reachable.
func RequirePasswordChange(changePath string, allow ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := utils.GetSessionFromContext(r.Context())
			if !ok || !session.ForceChangePassword || r.URL.Path == changePath || contains(allow, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			flash.Add(w, flash.Message{Kind: flash.Warning, Text: "You must change your password before continuing."})
			http.Redirect(w, r, changePath, http.StatusSeeOther)
		})
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ClientIP stores the caller's address on the request context.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := utils.WithClientIP(r.Context(), utils.ClientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CORS echoes Origin back only when it is on the allow-list.
func CORS(allowed []string) func(http.Handler) http.Handler {
	allowSet := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		allowSet[origin] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if _, ok := allowSet[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin") // important for caches
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods",
					"GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers",
					"Content-Type, Authorization")
			}

			w.Header().Set("Access-Control-Expose-Headers", "Retry-After")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AdminMiddleware lets through only sessions with IsAdmin set. It must run
// after SessionMiddleware or LoginRequired.
func AdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := utils.GetSessionFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized: missing session in context", http.StatusUnauthorized)
			return
		}

		if !session.IsAdmin {
			http.Error(w, "Forbidden: admin access required", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
