package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/EmpoweredVote/EV-Dashboard/internal/auth"
	"github.com/EmpoweredVote/EV-Dashboard/internal/legacy"
	"github.com/EmpoweredVote/EV-Dashboard/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// werkzeug pbkdf2 hash of "correct horse".
const legacyPBKDF2Hash = "pbkdf2:sha256:1000$NaClSalt$d40ab484b6bc977e578a4210ede35cf71ce8f84896d8c00ec8cb59e1087e85a0"

func TestLogin_LegacyUserIsMigratedOnce(t *testing.T) {
	f := newFixture(t, fixtureOptions{
		legacy: []legacy.Record{{
			Username:           "alice",
			PasswordHash:       mustHash(t, "pw"),
			Role:               "user",
			MustChangePassword: boolPtr(false),
		}},
	})
	ctx := context.Background()

	est, err := f.svc.Login(ctx, "alice", "pw")
	require.NoError(t, err)

	assert.Equal(t, auth.RouteDashboard, est.Redirect)
	assert.False(t, est.State.IsAdmin)
	assert.False(t, est.ForcePasswordChange)
	assert.Equal(t, "alice", est.State.Username)
	assert.NotEmpty(t, est.State.UserID)
	assert.Equal(t, 1, f.users.Count())

	stored, err := f.users.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleUser, stored.Role)
	assert.True(t, stored.IsDemo, "legacy users default to demo")
	assert.True(t, stored.IsActive)
	assert.Empty(t, stored.Email)

	// A second login finds the relational row and creates nothing.
	again, err := f.svc.Login(ctx, "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, est.State.UserID, again.State.UserID)
	assert.Equal(t, 1, f.users.Count())
	assert.Equal(t, 1, f.users.Creates())
}

func TestLogin_LegacyForcedPasswordChange(t *testing.T) {
	f := newFixture(t, fixtureOptions{
		legacy: []legacy.Record{{
			Username:           "bob",
			PasswordHash:       mustHash(t, "pw"),
			MustChangePassword: boolPtr(true),
		}},
	})

	est, err := f.svc.Login(context.Background(), "bob", "pw")
	require.NoError(t, err)

	assert.Equal(t, auth.RouteChangePassword, est.Redirect)
	assert.True(t, est.ForcePasswordChange)
	assert.True(t, est.State.ForceChangePassword)

	ev := f.activity.last()
	assert.Equal(t, auth.KindForcePasswordRequired, ev.Kind)
	assert.Equal(t, "bob", ev.Fields["username"])
	assert.NotContains(t, f.activity.kinds(), auth.KindUserLogin)

	stored, err := f.sessions.FindSessionByID(context.Background(), est.State.SessionID)
	require.NoError(t, err)
	assert.True(t, stored.ForceChangePassword)
}

func TestLogin_WerkzeugLegacyHash(t *testing.T) {
	f := newFixture(t, fixtureOptions{
		legacy: []legacy.Record{{Username: "carol", PasswordHash: legacyPBKDF2Hash, Email: "Carol@Example.COM "}},
	})

	est, err := f.svc.Login(context.Background(), "carol", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, auth.RouteDashboard, est.Redirect)

	stored, err := f.users.FindByUsername(context.Background(), "carol")
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", stored.Email)
	assert.Equal(t, legacyPBKDF2Hash, stored.PasswordHash, "legacy hash is carried over as is")
}

func TestLogin_AdminNeverForced(t *testing.T) {
	f := newFixture(t, fixtureOptions{
		admin: auth.StaticCredentials{Username: "root", PasswordHash: mustHash(t, "secret")},
		users: []auth.User{{
			Username:           "root",
			PasswordHash:       mustHash(t, "secret"),
			Role:               auth.RoleUser,
			IsActive:           true,
			IsDemo:             true,
			MustChangePassword: true,
		}},
		legacy: []legacy.Record{{Username: "root", PasswordHash: mustHash(t, "secret"), MustChangePassword: boolPtr(true)}},
	})

	est, err := f.svc.Login(context.Background(), "root", "secret")
	require.NoError(t, err)

	assert.Equal(t, auth.RouteDashboard, est.Redirect)
	assert.False(t, est.ForcePasswordChange)
	assert.True(t, est.State.AdminLoggedIn)
	assert.True(t, est.State.IsAdmin)
	assert.True(t, est.State.IsVerified)
	assert.False(t, est.State.IsDemo)
	assert.False(t, est.State.IsDemoMode)
	assert.Equal(t, "admin", est.State.AuthSource)
	assert.Equal(t, "Admin Login Successful!", est.Notice.Text)
	assert.Equal(t, []string{auth.KindAdminLogin}, f.activity.kinds())
	assert.Equal(t, "User: root", f.activity.last().Detail)
}

func TestLogin_DatabaseUserFlags(t *testing.T) {
	tests := []struct {
		name     string
		role     string
		demo     bool
		wantMode bool
	}{
		{"demo user", auth.RoleUser, true, true},
		{"regular user", auth.RoleUser, false, false},
		{"admin role ignores demo", auth.RoleAdmin, true, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, fixtureOptions{users: []auth.User{{
				Username:     "dave",
				PasswordHash: mustHash(t, "pw"),
				Role:         tc.role,
				IsActive:     true,
				IsVerified:   true,
				IsDemo:       tc.demo,
			}}})

			est, err := f.svc.Login(context.Background(), "dave", "pw")
			require.NoError(t, err)
			assert.Equal(t, tc.role == auth.RoleAdmin, est.State.IsAdmin)
			assert.Equal(t, tc.demo, est.State.IsDemo)
			assert.Equal(t, tc.wantMode, est.State.IsDemoMode)
			assert.True(t, est.State.IsVerified)
			assert.True(t, est.State.AdminLoggedIn)
			assert.Equal(t, "database", est.State.AuthSource)
			assert.Equal(t, "Welcome back, dave!", est.Notice.Text)

			ev := f.activity.last()
			assert.Equal(t, auth.KindUserLogin, ev.Kind)
			assert.Equal(t, "User: dave", ev.Detail)
		})
	}
}

func TestLogin_StampsSession(t *testing.T) {
	f := newFixture(t, fixtureOptions{users: []auth.User{{
		Username: "erin", PasswordHash: mustHash(t, "pw"), Role: auth.RoleUser, IsActive: true,
	}}})
	ctx := utils.WithClientIP(context.Background(), "203.0.113.7")

	est, err := f.svc.Login(ctx, "erin", "pw")
	require.NoError(t, err)

	assert.NotEmpty(t, est.State.SessionID)
	assert.Equal(t, "203.0.113.7", est.State.ClientIP)
	assert.True(t, est.State.ExpiresAt.After(est.State.CreatedAt))

	stored, err := f.sessions.FindSessionByID(ctx, est.State.SessionID)
	require.NoError(t, err)
	assert.Equal(t, est.State, stored)
}

func TestLogin_Rejections(t *testing.T) {
	frankHash := mustHash(t, "pw")
	users := []auth.User{
		{Username: "frank", PasswordHash: frankHash, Role: auth.RoleUser, IsActive: true},
		{Username: "gone", PasswordHash: mustHash(t, "pw"), Role: auth.RoleUser, IsActive: false},
	}
	tests := []struct {
		name     string
		username string
		password string
		legacy   []legacy.Record
	}{
		{name: "wrong password", username: "frank", password: "nope"},
		{name: "unknown user", username: "nobody", password: "pw"},
		{name: "inactive user", username: "gone", password: "pw"},
		{name: "empty username", username: "", password: "pw"},
		{name: "empty password", username: "frank", password: ""},
		{name: "trailing space", username: "frank ", password: "pw"},
		{
			name: "legacy record without hash", username: "lena", password: "pw",
			legacy: []legacy.Record{{Username: "lena", PasswordHash: ""}},
		},
		{
			name: "legacy record with unknown hash format", username: "lena", password: "pw",
			legacy: []legacy.Record{{Username: "lena", PasswordHash: "md5$abc"}},
		},
		{
			name: "legacy record without username", username: "", password: "pw",
			legacy: []legacy.Record{{Username: "", PasswordHash: mustHash(t, "pw")}},
		},
		{
			name: "legacy wrong password", username: "lena", password: "nope",
			legacy: []legacy.Record{{Username: "lena", PasswordHash: mustHash(t, "pw")}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, fixtureOptions{users: users, legacy: tc.legacy})

			_, err := f.svc.Login(context.Background(), tc.username, tc.password)
			require.ErrorIs(t, err, auth.ErrInvalidCredentials)

			ev := f.activity.last()
			assert.Equal(t, auth.KindFailedLogin, ev.Kind)
			assert.Equal(t, "Username: "+tc.username, ev.Detail)
			assert.Equal(t, 0, f.sessions.Len())

			assert.Equal(t, len(users), f.users.Count())
			assert.Equal(t, 0, f.users.Creates())
			frank, err := f.users.FindByUsername(context.Background(), "frank")
			require.NoError(t, err)
			assert.Equal(t, frankHash, frank.PasswordHash)
		})
	}
}

func TestLogin_StoreFailureAborts(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.users.FailFind = errors.New("connection refused")

	_, err := f.svc.Login(context.Background(), "frank", "pw")
	require.ErrorIs(t, err, auth.ErrPersistence)
	assert.NotContains(t, err.Error(), "connection refused")
	assert.Equal(t, 0, f.sessions.Len())
}

func TestLogin_UnreadableLegacyFileIsNoMatch(t *testing.T) {
	f := newFixture(t, fixtureOptions{
		loader: legacy.LoaderFunc(func(context.Context) (*legacy.Data, error) {
			return nil, errors.New("permission denied")
		}),
	})

	_, err := f.svc.Login(context.Background(), "alice", "pw")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestLogin_ConcurrentLegacyLoginsCreateOneUser(t *testing.T) {
	f := newFixture(t, fixtureOptions{
		legacy: []legacy.Record{{Username: "alice", PasswordHash: mustHash(t, "pw")}},
	})

	const n = 16
	var wg sync.WaitGroup
	ids := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			est, err := f.svc.Login(context.Background(), "alice", "pw")
			ids[i], errs[i] = est.State.UserID, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, f.users.Count())
	assert.Equal(t, 1, f.users.Creates())
}

func TestRegister_Success(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	user, err := f.svc.Register(context.Background(), auth.RegisterInput{
		Username: "  heidi ",
		Email:    "Heidi@Example.com",
		Password: "pw",
	})
	require.NoError(t, err)

	assert.Equal(t, "heidi", user.Username)
	assert.Equal(t, "heidi@example.com", user.Email)
	assert.Equal(t, auth.RoleUser, user.Role)
	assert.True(t, user.IsActive)
	assert.False(t, user.IsVerified)
	assert.True(t, user.IsDemo)
	assert.False(t, user.MustChangePassword)
	assert.NotEqual(t, "pw", user.PasswordHash)
	assert.NotEmpty(t, user.WorkspaceID)
	assert.Equal(t, 1, f.users.Workspaces())

	ev := f.activity.last()
	assert.Equal(t, auth.KindUserRegistration, ev.Kind)
	assert.Equal(t, "User: heidi", ev.Detail)

	est, err := f.svc.Login(context.Background(), "heidi", "pw")
	require.NoError(t, err)
	assert.True(t, est.State.IsDemoMode)
}

func TestRegister_Validation(t *testing.T) {
	tests := []auth.RegisterInput{
		{Username: "", Email: "a@example.com", Password: "pw"},
		{Username: "ivan", Email: "  ", Password: "pw"},
		{Username: "ivan", Email: "a@example.com", Password: ""},
	}
	for _, in := range tests {
		f := newFixture(t, fixtureOptions{})
		_, err := f.svc.Register(context.Background(), in)
		require.ErrorIs(t, err, auth.ErrValidation)

		var verr *auth.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "All fields are required.", verr.Message)
		assert.Equal(t, 0, f.users.Count())
	}
}

func TestRegister_Conflicts(t *testing.T) {
	existing := auth.User{Username: "judy", Email: "judy@example.com", Role: auth.RoleUser, IsActive: true}

	tests := []struct {
		name string
		in   auth.RegisterInput
	}{
		{"same username", auth.RegisterInput{Username: "judy", Email: "other@example.com", Password: "pw"}},
		{"same email different case", auth.RegisterInput{Username: "other", Email: "JUDY@example.com", Password: "pw"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, fixtureOptions{users: []auth.User{existing}})

			_, err := f.svc.Register(context.Background(), tc.in)
			require.ErrorIs(t, err, auth.ErrConflict)
			assert.Equal(t, 1, f.users.Count())
			assert.Equal(t, 0, f.users.Workspaces())
		})
	}
}

func TestRegister_PersistenceFailureLeavesNothing(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.users.FailCreate = auth.ErrPersistence

	_, err := f.svc.Register(context.Background(), auth.RegisterInput{Username: "kim", Email: "kim@example.com", Password: "pw"})
	require.ErrorIs(t, err, auth.ErrPersistence)
	assert.Equal(t, 0, f.users.Count())
	assert.Equal(t, 0, f.users.Workspaces())
	assert.NotContains(t, f.activity.kinds(), auth.KindUserRegistration)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t, fixtureOptions{
		legacy: []legacy.Record{{Username: "leo", PasswordHash: legacyPBKDF2Hash, MustChangePassword: boolPtr(true)}},
	})
	ctx := context.Background()

	est, err := f.svc.Login(ctx, "leo", "correct horse")
	require.NoError(t, err)
	require.True(t, est.State.ForceChangePassword)

	_, err = f.svc.ChangePassword(ctx, est.State, "wrong", "battery staple", "battery staple")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = f.svc.ChangePassword(ctx, est.State, "correct horse", "battery staple", "battery")
	require.ErrorIs(t, err, auth.ErrValidation)

	_, err = f.svc.ChangePassword(ctx, est.State, "correct horse", "correct horse", "correct horse")
	require.ErrorIs(t, err, auth.ErrValidation)

	sess, err := f.svc.ChangePassword(ctx, est.State, "correct horse", "battery staple", "battery staple")
	require.NoError(t, err)
	assert.False(t, sess.ForceChangePassword)

	stored, err := f.sessions.FindSessionByID(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.False(t, stored.ForceChangePassword)

	user, err := f.users.FindByUsername(ctx, "leo")
	require.NoError(t, err)
	assert.False(t, user.MustChangePassword)
	assert.Equal(t, auth.KindPasswordChanged, f.activity.last().Kind)

	// The new password now logs in through the database without a forced change.
	again, err := f.svc.Login(ctx, "leo", "battery staple")
	require.NoError(t, err)
	assert.Equal(t, auth.RouteDashboard, again.Redirect)
}

func TestChangePassword_AdminIsManaged(t *testing.T) {
	f := newFixture(t, fixtureOptions{
		admin: auth.StaticCredentials{Username: "root", PasswordHash: mustHash(t, "secret")},
	})
	est, err := f.svc.Login(context.Background(), "root", "secret")
	require.NoError(t, err)

	_, err = f.svc.ChangePassword(context.Background(), est.State, "secret", "new", "new")
	require.ErrorIs(t, err, auth.ErrManagedAccount)
}

func TestLogout(t *testing.T) {
	f := newFixture(t, fixtureOptions{users: []auth.User{{
		Username: "mia", PasswordHash: mustHash(t, "pw"), Role: auth.RoleUser, IsActive: true,
	}}})
	ctx := context.Background()

	est, err := f.svc.Login(ctx, "mia", "pw")
	require.NoError(t, err)
	require.Equal(t, 1, f.sessions.Len())

	require.NoError(t, f.svc.Logout(ctx, est.State))
	assert.Equal(t, 0, f.sessions.Len())

	_, err = f.sessions.FindSessionByID(ctx, est.State.SessionID)
	require.ErrorIs(t, err, auth.ErrSessionNotFound)
	assert.Equal(t, auth.KindLogout, f.activity.last().Kind)
}
