// Package activity records IP activity and audit events. Every event is
// written to the structured log immediately; persistence is asynchronous and
// best effort, so recording never fails or blocks the request that caused it.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/EmpoweredVote/EV-Dashboard/internal/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	CategoryIP    = "ip"
	CategoryAudit = "audit"
)

type Event struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Category  string    `gorm:"not null;index" json:"category"`
	Kind      string    `gorm:"not null;index" json:"kind"`
	Username  string    `gorm:"index" json:"username,omitempty"`
	ClientIP  string    `json:"client_ip,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Fields    string    `gorm:"type:text" json:"fields,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (Event) TableName() string { return "app_auth.activity_events" }

// Recorder is what the auth flows call. Implementations must not panic or block.
type Recorder interface {
	IPActivity(ctx context.Context, kind, detail string)
	Audit(ctx context.Context, kind string, fields map[string]any)
}

// Sink receives events for persistence.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// Logger is the Recorder used in production: a zerolog line per event plus an
// optional Sink (usually a *Dispatcher).
type Logger struct {
	sink Sink
	now  func() time.Time
}

func NewLogger(sink Sink) *Logger {
	return &Logger{sink: sink, now: time.Now}
}

func (l *Logger) IPActivity(ctx context.Context, kind, detail string) {
	ev := l.newEvent(ctx, CategoryIP, kind)
	ev.Detail = detail
	ev.Username = usernameFromDetail(detail)

	log.Info().
		Str("category", ev.Category).
		Str("kind", kind).
		Str("username", ev.Username).
		Str("client_ip", ev.ClientIP).
		Str("detail", detail).
		Msg("ip activity")

	l.emit(ctx, ev)
}

func (l *Logger) Audit(ctx context.Context, kind string, fields map[string]any) {
	ev := l.newEvent(ctx, CategoryAudit, kind)
	if username, ok := fields["username"].(string); ok {
		ev.Username = username
	}
	if details, ok := fields["details"].(string); ok {
		ev.Detail = details
	}
	if len(fields) > 0 {
		if raw, err := json.Marshal(fields); err == nil {
			ev.Fields = string(raw)
		}
	}

	entry := log.Info().
		Str("category", ev.Category).
		Str("kind", kind).
		Str("client_ip", ev.ClientIP)
	addFields(entry, fields)
	entry.Msg("audit event")

	l.emit(ctx, ev)
}

func (l *Logger) newEvent(ctx context.Context, category, kind string) Event {
	ip, _ := utils.GetClientIPFromContext(ctx)
	return Event{
		ID:        uuid.New(),
		Category:  category,
		Kind:      kind,
		ClientIP:  ip,
		CreatedAt: l.now().UTC(),
	}
}

func (l *Logger) emit(ctx context.Context, ev Event) {
	if l.sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("kind", ev.Kind).Msg("activity sink panicked")
		}
	}()
	l.sink.Emit(ctx, ev)
}

// usernameFromDetail pulls the name out of "User: x" and "Username: x" details.
func usernameFromDetail(detail string) string {
	for _, prefix := range []string{"User: ", "Username: "} {
		if name, ok := strings.CutPrefix(detail, prefix); ok {
			return name
		}
	}
	return ""
}

// addFields attaches fields in key order so log lines are stable.
func addFields(e *zerolog.Event, fields map[string]any) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e.Str(k, fmt.Sprint(fields[k]))
	}
}

// Discard is a Recorder that drops everything.
type Discard struct{}

func (Discard) IPActivity(context.Context, string, string)     {}
func (Discard) Audit(context.Context, string, map[string]any) {}
