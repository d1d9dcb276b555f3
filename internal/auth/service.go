package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/EmpoweredVote/EV-Dashboard/internal/activity"
	"github.com/EmpoweredVote/EV-Dashboard/internal/legacy"
	"github.com/EmpoweredVote/EV-Dashboard/internal/password"
	"github.com/EmpoweredVote/EV-Dashboard/internal/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Credentials CredentialSource
	Users       Repository
	Sessions    SessionStore
	// Legacy is the flat-file store consulted after the database. Nil disables
	// legacy import.
	Legacy     legacy.Loader
	Activity   activity.Recorder
	Hasher     password.Hasher
	SessionTTL time.Duration
}

// Service runs the login, logout, registration and password-change flows.
type Service struct {
	authenticators []Authenticator
	establisher    *Establisher
	users          Repository
	sessions       SessionStore
	activity       activity.Recorder
	hasher         password.Hasher
	ttl            time.Duration
	now            func() time.Time
}

func NewService(opts Options) *Service {
	if opts.Activity == nil {
		opts.Activity = activity.Discard{}
	}
	if opts.Hasher == nil {
		opts.Hasher = password.BcryptHasher{}
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 6 * time.Hour
	}

	s := &Service{
		establisher: NewEstablisher(opts.Activity),
		users:       opts.Users,
		sessions:    opts.Sessions,
		activity:    opts.Activity,
		hasher:      opts.Hasher,
		ttl:         opts.SessionTTL,
		now:         time.Now,
	}

	// First match wins, in this order.
	s.authenticators = []Authenticator{
		NewAdminAuthenticator(opts.Credentials),
		NewDatabaseAuthenticator(opts.Users),
	}
	if opts.Legacy != nil {
		s.authenticators = append(s.authenticators, NewLegacyImporter(opts.Legacy, opts.Users))
	}
	return s
}

// Login authenticates username and pw, establishes a session and stores it.
// Every credential failure is ErrInvalidCredentials; a failing store is
// ErrPersistence.
func (s *Service) Login(ctx context.Context, username, pw string) (Establishment, error) {
	if username == "" || pw == "" {
		s.activity.IPActivity(ctx, KindFailedLogin, "Username: "+username)
		return Establishment{}, ErrInvalidCredentials
	}

	principal, err := s.authenticate(ctx, username, pw)
	if err != nil {
		log.Error().Err(err).Str("username", username).Msg("Login aborted by store failure")
		return Establishment{}, fmt.Errorf("login: %w", ErrPersistence)
	}
	if principal == nil {
		s.activity.IPActivity(ctx, KindFailedLogin, "Username: "+username)
		return Establishment{}, ErrInvalidCredentials
	}

	est := s.establisher.Establish(ctx, principal)

	now := s.now().UTC()
	est.State.SessionID = uuid.NewString()
	est.State.ClientIP, _ = utils.GetClientIPFromContext(ctx)
	est.State.CreatedAt = now
	est.State.ExpiresAt = now.Add(s.ttl)

	if err := s.sessions.Save(ctx, est.State); err != nil {
		return Establishment{}, fmt.Errorf("login: %w", ErrPersistence)
	}
	return est, nil
}

func (s *Service) authenticate(ctx context.Context, username, pw string) (*Principal, error) {
	for _, a := range s.authenticators {
		p, err := a.Authenticate(ctx, username, pw)
		if err != nil {
			return nil, err
		}
		if p != nil {
			return p, nil
		}
	}
	return nil, nil
}

// Logout removes the whole session.
func (s *Service) Logout(ctx context.Context, sess utils.SessionData) error {
	if err := s.sessions.Delete(ctx, sess.SessionID); err != nil {
		return err
	}
	s.activity.IPActivity(ctx, KindLogout, "Username: "+sess.Username)
	return nil
}

// DiscardSession drops a session without recording a logout, used when a
// browser logs in again over an old cookie.
func (s *Service) DiscardSession(ctx context.Context, id string) {
	if id == "" {
		return
	}
	if err := s.sessions.Delete(ctx, id); err != nil {
		log.Warn().Err(err).Msg("Failed to discard previous session")
	}
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Register creates a self-service user with its own workspace.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	username := strings.TrimSpace(in.Username)
	email := NormalizeEmail(in.Email)
	if username == "" || email == "" || in.Password == "" {
		return nil, invalid("All fields are required.")
	}

	_, err := s.users.FindByUsernameOrEmail(ctx, username, email)
	if err == nil {
		return nil, ErrConflict
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, persistenceError("hash password", err)
	}

	user := &User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         RoleUser,
		IsActive:     true,
		IsVerified:   false,
		IsDemo:       true,
	}
	ws := WorkspaceSpec{Owner: username, Name: username + "'s Portfolio"}
	if err := s.users.Create(ctx, user, ws); err != nil {
		return nil, err
	}

	s.activity.IPActivity(ctx, KindUserRegistration, "User: "+username)
	return user, nil
}

// ChangePassword replaces the stored password of the session's user and lifts
// a forced change. It returns the updated session.
func (s *Service) ChangePassword(ctx context.Context, sess utils.SessionData, current, next, confirm string) (utils.SessionData, error) {
	if configuredAdmin(sess) {
		return sess, ErrManagedAccount
	}
	if current == "" || next == "" || confirm == "" {
		return sess, invalid("All fields are required.")
	}
	if next != confirm {
		return sess, invalid("New passwords do not match.")
	}
	if next == current {
		return sess, invalid("New password must differ from the current one.")
	}

	user, err := s.users.FindByID(ctx, sess.UserID)
	if errors.Is(err, ErrNotFound) {
		return sess, ErrInvalidCredentials
	}
	if err != nil {
		return sess, err
	}
	if !password.Verify(user.PasswordHash, current) {
		return sess, ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return sess, persistenceError("hash password", err)
	}
	if err := s.users.UpdatePassword(ctx, user.UserID, hash); err != nil {
		return sess, err
	}

	sess.ForceChangePassword = false
	if err := s.sessions.Save(ctx, sess); err != nil {
		return sess, err
	}

	s.activity.Audit(ctx, KindPasswordChanged, map[string]any{"username": user.Username})
	return sess, nil
}

// CurrentUser loads the stored identity behind sess. The configured admin has
// none and gets a synthesized one.
func (s *Service) CurrentUser(ctx context.Context, sess utils.SessionData) (*User, error) {
	if configuredAdmin(sess) {
		return &User{Username: sess.Username, Role: RoleAdmin, IsActive: true, IsVerified: true}, nil
	}
	return s.users.FindByID(ctx, sess.UserID)
}

// configuredAdmin reports whether sess belongs to the admin from configuration,
// which has no stored identity.
func configuredAdmin(sess utils.SessionData) bool {
	return sess.AuthSource == string(SourceAdmin)
}
