package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/EmpoweredVote/EV-Dashboard/internal/db"
	"github.com/EmpoweredVote/EV-Dashboard/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionStore keeps server-side session state keyed by the session cookie.
// FindSessionByID returns ErrSessionNotFound for unknown ids.
type SessionStore interface {
	Save(ctx context.Context, s utils.SessionData) error
	FindSessionByID(ctx context.Context, id string) (utils.SessionData, error)
	Delete(ctx context.Context, id string) error
}

func sessionRow(s utils.SessionData) Session {
	return Session{
		SessionID:           s.SessionID,
		UserID:              s.UserID,
		Username:            s.Username,
		AdminLoggedIn:       s.AdminLoggedIn,
		AuthSource:          s.AuthSource,
		IsAdmin:             s.IsAdmin,
		IsDemo:              s.IsDemo,
		IsDemoMode:          s.IsDemoMode,
		IsVerified:          s.IsVerified,
		ForceChangePassword: s.ForceChangePassword,
		ClientIP:            s.ClientIP,
		CreatedAt:           s.CreatedAt,
		ExpiresAt:           s.ExpiresAt,
	}
}

func (s Session) data() utils.SessionData {
	return utils.SessionData{
		SessionID:           s.SessionID,
		UserID:              s.UserID,
		Username:            s.Username,
		AdminLoggedIn:       s.AdminLoggedIn,
		AuthSource:          s.AuthSource,
		IsAdmin:             s.IsAdmin,
		IsDemo:              s.IsDemo,
		IsDemoMode:          s.IsDemoMode,
		IsVerified:          s.IsVerified,
		ForceChangePassword: s.ForceChangePassword,
		ClientIP:            s.ClientIP,
		CreatedAt:           s.CreatedAt,
		ExpiresAt:           s.ExpiresAt,
	}
}

// GormSessionStore keeps sessions in app_auth.sessions.
type GormSessionStore struct {
	db *gorm.DB
}

func NewGormSessionStore(d *gorm.DB) *GormSessionStore {
	return &GormSessionStore{db: d}
}

func (s *GormSessionStore) Save(ctx context.Context, sess utils.SessionData) error {
	row := sessionRow(sess)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	if err != nil {
		return persistenceError("save session", err)
	}
	return nil
}

func (s *GormSessionStore) FindSessionByID(ctx context.Context, id string) (utils.SessionData, error) {
	var row Session
	err := s.db.WithContext(ctx).First(&row, "session_id = ?", id).Error
	if db.IsNotFound(err) {
		return utils.SessionData{}, ErrSessionNotFound
	}
	if err != nil {
		return utils.SessionData{}, persistenceError("find session", err)
	}
	return row.data(), nil
}

func (s *GormSessionStore) Delete(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Where("session_id = ?", id).Delete(&Session{}).Error
	if err != nil {
		return persistenceError("delete session", err)
	}
	return nil
}

// PruneExpired removes sessions that expired before now and reports how many.
func (s *GormSessionStore) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&Session{})
	if res.Error != nil {
		return 0, persistenceError("prune sessions", res.Error)
	}
	return res.RowsAffected, nil
}

// MemorySessionStore is an in-process SessionStore for tests and single-node
// development.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]utils.SessionData
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]utils.SessionData)}
}

func (m *MemorySessionStore) Save(_ context.Context, s utils.SessionData) error {
	if s.SessionID == "" {
		return errors.New("session id is empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.SessionID] = s
	return nil
}

func (m *MemorySessionStore) FindSessionByID(_ context.Context, id string) (utils.SessionData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return utils.SessionData{}, ErrSessionNotFound
	}
	return s, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemorySessionStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
