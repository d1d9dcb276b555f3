package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/EmpoweredVote/EV-Dashboard/internal/legacy"
	"github.com/EmpoweredVote/EV-Dashboard/internal/password"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// LegacyImporter authenticates against the flat-file store and materializes a
// relational row on the first successful login.
//
// Two logins racing for the same unmigrated user are collapsed in-process by a
// singleflight group; across processes the unique username index rejects the
// second insert and the loser re-reads the winner's row.
type LegacyImporter struct {
	loader legacy.Loader
	users  Repository
	group  singleflight.Group
}

func NewLegacyImporter(loader legacy.Loader, users Repository) *LegacyImporter {
	return &LegacyImporter{loader: loader, users: users}
}

// Authenticate scans records in file order. The first record with this
// username whose hash verifies wins. An unreadable file counts as a miss.
func (li *LegacyImporter) Authenticate(ctx context.Context, username, pw string) (*Principal, error) {
	data, err := li.loader.Load(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load legacy user data")
		return nil, nil
	}

	for _, rec := range data.Users {
		if !rec.Valid() || rec.Username != username {
			continue
		}
		if !password.Verify(rec.PasswordHash, pw) {
			continue
		}

		user, _, err := li.Migrate(ctx, rec)
		if err != nil {
			return nil, err
		}
		if !user.IsActive {
			return nil, nil
		}
		return &Principal{User: user, Source: SourceLegacy}, nil
	}
	return nil, nil
}

// Migrate returns the relational identity for rec, creating it when absent.
// created reports whether the row was inserted by this call or by a concurrent
// call for the same username that it joined.
func (li *LegacyImporter) Migrate(ctx context.Context, rec legacy.Record) (user *User, created bool, err error) {
	type result struct {
		user    *User
		created bool
	}

	v, err, _ := li.group.Do(rec.Username, func() (any, error) {
		// Joined callers share this result, so it must outlive the first
		// caller's request.
		u, c, err := li.findOrCreate(context.WithoutCancel(ctx), rec)
		if err != nil {
			return nil, err
		}
		return result{user: u, created: c}, nil
	})
	if err != nil {
		return nil, false, err
	}

	res := v.(result)
	copied := *res.user
	return &copied, res.created, nil
}

func (li *LegacyImporter) findOrCreate(ctx context.Context, rec legacy.Record) (*User, bool, error) {
	existing, err := li.users.FindByUsername(ctx, rec.Username)
	if err == nil {
		log.Info().Str("username", rec.Username).Msg("DB user already exists")
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	log.Info().Str("username", rec.Username).Msg("Creating DB user from legacy data")

	user := &User{
		Username:           rec.Username,
		PasswordHash:       rec.PasswordHash,
		Email:              NormalizeEmail(rec.Email),
		Role:               rec.RoleOrDefault(),
		IsActive:           true,
		IsVerified:         rec.Verified(),
		IsDemo:             rec.Demo(),
		MustChangePassword: rec.ForcePasswordChange(),
	}
	ws := WorkspaceSpec{Owner: rec.Username, Name: rec.DisplayName()}

	err = li.users.Create(ctx, user, ws)
	if errors.Is(err, ErrConflict) {
		existing, ferr := li.users.FindByUsername(ctx, rec.Username)
		switch {
		case ferr == nil:
			// Another process migrated this user between our read and insert.
			return existing, false, nil
		case !errors.Is(ferr, ErrNotFound) || user.Email == "":
			return nil, false, fmt.Errorf("re-read migrated user %q: %w", rec.Username, ferr)
		}

		// The username is free, so the email belongs to someone else. Migrate
		// without it rather than lock the user out.
		log.Warn().
			Str("username", rec.Username).
			Str("email", user.Email).
			Msg("Legacy email already in use, migrating without email")
		user.Email = ""
		err = li.users.Create(ctx, user, ws)
		if errors.Is(err, ErrConflict) {
			existing, ferr := li.users.FindByUsername(ctx, rec.Username)
			if ferr != nil {
				return nil, false, fmt.Errorf("re-read migrated user %q: %w", rec.Username, ferr)
			}
			return existing, false, nil
		}
	}
	if err != nil {
		return nil, false, err
	}

	log.Info().
		Str("username", user.Username).
		Str("workspace_id", user.WorkspaceID.String()).
		Msg("Created DB user from legacy data")
	return user, true, nil
}
