// Package flash carries one-shot notices across a redirect in a short-lived cookie.
package flash

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
)

const cookieName = "flash"

const (
	Success = "success"
	Error   = "error"
	Warning = "warning"
	Info    = "info"
)

type Message struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// Add sets the flash cookie to msgs. Call it before writing the response.
func Add(w http.ResponseWriter, msgs ...Message) {
	if len(msgs) == 0 {
		return
	}
	raw, err := json.Marshal(msgs)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    base64.RawURLEncoding.EncodeToString(raw),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   60,
	})
}

// Pop returns the pending messages and expires the cookie. A tampered or
// unreadable cookie yields no messages.
func Pop(w http.ResponseWriter, r *http.Request) []Message {
	c, err := r.Cookie(cookieName)
	if err != nil || c.Value == "" {
		return nil
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	raw, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil
	}
	var msgs []Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil
	}
	return msgs
}
