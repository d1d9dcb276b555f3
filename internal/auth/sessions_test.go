package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/EmpoweredVote/EV-Dashboard/internal/auth"
	"github.com/EmpoweredVote/EV-Dashboard/internal/utils"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSession(id string, ttl time.Duration) utils.SessionData {
	now := time.Now().UTC().Truncate(time.Second)
	return utils.SessionData{
		SessionID:           id,
		UserID:              "user-1",
		Username:            "alice",
		IsDemo:              true,
		IsDemoMode:          true,
		ForceChangePassword: true,
		ClientIP:            "198.51.100.4",
		CreatedAt:           now,
		ExpiresAt:           now.Add(ttl),
	}
}

func exerciseStore(t *testing.T, store auth.SessionStore) {
	t.Helper()
	ctx := context.Background()

	_, err := store.FindSessionByID(ctx, "missing")
	require.ErrorIs(t, err, auth.ErrSessionNotFound)

	sess := sampleSession("sess-1", time.Hour)
	require.NoError(t, store.Save(ctx, sess))

	got, err := store.FindSessionByID(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, sess.SessionID, got.SessionID)
	assert.Equal(t, sess.Username, got.Username)
	assert.True(t, got.ForceChangePassword)
	assert.True(t, got.IsDemoMode)
	assert.True(t, sess.ExpiresAt.Equal(got.ExpiresAt))

	sess.ForceChangePassword = false
	require.NoError(t, store.Save(ctx, sess))
	got, err = store.FindSessionByID(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, got.ForceChangePassword)

	require.NoError(t, store.Delete(ctx, "sess-1"))
	_, err = store.FindSessionByID(ctx, "sess-1")
	require.ErrorIs(t, err, auth.ErrSessionNotFound)

	// Deleting twice is not an error.
	require.NoError(t, store.Delete(ctx, "sess-1"))
}

func TestMemorySessionStore(t *testing.T) {
	exerciseStore(t, auth.NewMemorySessionStore())
}

func newRedisStore(t *testing.T) (*auth.RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return auth.NewRedisSessionStore(client), mr
}

func TestRedisSessionStore(t *testing.T) {
	store, _ := newRedisStore(t)
	exerciseStore(t, store)
}

func TestRedisSessionStore_ExpiresWithSession(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleSession("sess-2", 10*time.Minute)))
	assert.True(t, mr.Exists("dashboard:session:sess-2"))

	mr.FastForward(11 * time.Minute)
	_, err := store.FindSessionByID(ctx, "sess-2")
	require.ErrorIs(t, err, auth.ErrSessionNotFound)
}

func TestRedisSessionStore_RejectsExpired(t *testing.T) {
	store, _ := newRedisStore(t)
	require.Error(t, store.Save(context.Background(), sampleSession("sess-3", -time.Minute)))
}

func TestRedisSessionStore_Unavailable(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	_, err := store.FindSessionByID(context.Background(), "sess-4")
	require.ErrorIs(t, err, auth.ErrPersistence)
}
