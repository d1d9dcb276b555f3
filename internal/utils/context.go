package utils

import (
	"context"
	"net"
	"net/http"
	"time"
)

type contextKey string

const (
	ContextUserIDKey   contextKey = "userID"
	ContextSessionKey  contextKey = "session"
	ContextClientIPKey contextKey = "clientIP"
)

// SessionData is the server-side state behind one session cookie.
type SessionData struct {
	SessionID           string    `json:"-"`
	AdminLoggedIn       bool      `json:"admin_logged_in"`
	// AuthSource names the credential store that authenticated the session:
	// "admin" for the configured admin, "database" or "legacy" otherwise.
	AuthSource          string    `json:"auth_source"`
	UserID              string    `json:"user_id,omitempty"`
	Username            string    `json:"username"`
	IsAdmin             bool      `json:"is_admin"`
	IsDemo              bool      `json:"is_demo"`
	IsDemoMode          bool      `json:"is_demo_mode"`
	IsVerified          bool      `json:"is_verified"`
	ForceChangePassword bool      `json:"force_change_password"`
	ClientIP            string    `json:"client_ip,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
}

func (s SessionData) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// WithSession stores s on ctx. The user id is also stored under
// ContextUserIDKey for handlers that only need that.
func WithSession(ctx context.Context, s SessionData) context.Context {
	ctx = context.WithValue(ctx, ContextSessionKey, s)
	return context.WithValue(ctx, ContextUserIDKey, s.UserID)
}

func GetSessionFromContext(ctx context.Context) (SessionData, bool) {
	s, ok := ctx.Value(ContextSessionKey).(SessionData)
	return s, ok
}

func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID := ctx.Value(ContextUserIDKey)
	userIDStr, ok := userID.(string)
	return userIDStr, ok
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ContextClientIPKey, ip)
}

func GetClientIPFromContext(ctx context.Context) (string, bool) {
	ip, ok := ctx.Value(ContextClientIPKey).(string)
	return ip, ok
}

// ClientIP is the host part of r.RemoteAddr. Run chi's RealIP middleware first
// so proxies' X-Forwarded-For / X-Real-IP are honored.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
