// Package repofake provides an in-memory auth.Repository for tests.
package repofake

import (
	"context"
	"sync"
	"time"

	"github.com/EmpoweredVote/EV-Dashboard/internal/auth"
	"github.com/google/uuid"
)

type Repo struct {
	mu         sync.Mutex
	users      map[string]auth.User
	workspaces map[string]uuid.UUID

	// FailCreate, when set, is returned by Create without storing anything.
	FailCreate error
	// FailFind, when set, is returned by every lookup.
	FailFind error
	// BeforeCreate runs at the start of Create, outside the lock.
	BeforeCreate func(user *auth.User)

	creates int
}

func New(users ...auth.User) *Repo {
	r := &Repo{
		users:      make(map[string]auth.User),
		workspaces: make(map[string]uuid.UUID),
	}
	for _, u := range users {
		if u.UserID == "" {
			u.UserID = uuid.NewString()
		}
		r.users[u.UserID] = u
	}
	return r
}

// find fails on a cancelled ctx, as a database-backed lookup would.
func (r *Repo) find(ctx context.Context, match func(auth.User) bool) (*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailFind != nil {
		return nil, r.FailFind
	}
	for _, u := range r.users {
		if match(u) {
			u := u
			return &u, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *Repo) FindByID(ctx context.Context, userID string) (*auth.User, error) {
	return r.find(ctx, func(u auth.User) bool { return u.UserID == userID })
}

func (r *Repo) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	return r.find(ctx, func(u auth.User) bool { return u.Username == username })
}

func (r *Repo) FindByUsernameOrEmail(ctx context.Context, username, email string) (*auth.User, error) {
	return r.find(ctx, func(u auth.User) bool {
		return u.Username == username || (email != "" && u.Email == email)
	})
}

func (r *Repo) Create(ctx context.Context, user *auth.User, ws auth.WorkspaceSpec) error {
	if r.BeforeCreate != nil {
		r.BeforeCreate(user)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailCreate != nil {
		return r.FailCreate
	}
	for _, u := range r.users {
		if u.Username == user.Username || (user.Email != "" && u.Email == user.Email) {
			return auth.ErrConflict
		}
	}

	wsID, ok := r.workspaces[ws.Owner]
	if !ok {
		wsID = uuid.New()
		r.workspaces[ws.Owner] = wsID
	}
	user.WorkspaceID = wsID
	if user.UserID == "" {
		user.UserID = uuid.NewString()
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now

	r.users[user.UserID] = *user
	r.creates++
	return nil
}

func (r *Repo) UpdatePassword(_ context.Context, userID, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = hash
	u.MustChangePassword = false
	u.UpdatedAt = time.Now().UTC()
	r.users[userID] = u
	return nil
}

// Insert stores u directly, bypassing uniqueness checks and hooks.
func (r *Repo) Insert(u auth.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.UserID == "" {
		u.UserID = uuid.NewString()
	}
	r.users[u.UserID] = u
}

// Count is the number of stored users.
func (r *Repo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// Creates is the number of successful Create calls.
func (r *Repo) Creates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creates
}

// Workspaces is the number of provisioned workspaces.
func (r *Repo) Workspaces() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workspaces)
}
