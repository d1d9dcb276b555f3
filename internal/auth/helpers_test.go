package auth_test

import (
	"context"
	"sync"
	"testing"

	"github.com/EmpoweredVote/EV-Dashboard/internal/auth"
	"github.com/EmpoweredVote/EV-Dashboard/internal/auth/repofake"
	"github.com/EmpoweredVote/EV-Dashboard/internal/legacy"
	"github.com/EmpoweredVote/EV-Dashboard/internal/password"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var fastHasher = password.BcryptHasher{Cost: bcrypt.MinCost}

func mustHash(t *testing.T, pw string) string {
	t.Helper()
	hash, err := fastHasher.Hash(pw)
	require.NoError(t, err)
	return hash
}

func boolPtr(b bool) *bool { return &b }

type recordedEvent struct {
	Category string
	Kind     string
	Detail   string
	Fields   map[string]any
}

// recorder captures activity in memory.
type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorder) IPActivity(_ context.Context, kind, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Category: "ip", Kind: kind, Detail: detail})
}

func (r *recorder) Audit(_ context.Context, kind string, fields map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Category: "audit", Kind: kind, Fields: fields})
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (r *recorder) last() recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return recordedEvent{}
	}
	return r.events[len(r.events)-1]
}

type fixture struct {
	svc      *auth.Service
	users    *repofake.Repo
	sessions *auth.MemorySessionStore
	// store is what the service and handlers see; it wraps sessions.
	store    auth.SessionStore
	activity *recorder
}

// brokenDelete is a session store whose Delete always fails.
type brokenDelete struct {
	*auth.MemorySessionStore
	err error
}

func (b brokenDelete) Delete(context.Context, string) error { return b.err }

type fixtureOptions struct {
	admin    auth.StaticCredentials
	legacy   []legacy.Record
	loader   legacy.Loader
	users    []auth.User
	noLegacy bool
	// deleteErr makes every session Delete fail with this error.
	deleteErr error
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()

	f := &fixture{
		users:    repofake.New(opts.users...),
		sessions: auth.NewMemorySessionStore(),
		activity: &recorder{},
	}
	f.store = f.sessions
	if opts.deleteErr != nil {
		f.store = brokenDelete{MemorySessionStore: f.sessions, err: opts.deleteErr}
	}

	loader := opts.loader
	if loader == nil && !opts.noLegacy {
		loader = legacy.Static(opts.legacy...)
	}

	f.svc = auth.NewService(auth.Options{
		Credentials: opts.admin,
		Users:       f.users,
		Sessions:    f.store,
		Legacy:      loader,
		Activity:    f.activity,
		Hasher:      fastHasher,
	})
	return f
}
