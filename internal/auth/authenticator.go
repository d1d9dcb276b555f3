package auth

import (
	"context"
	"errors"

	"github.com/EmpoweredVote/EV-Dashboard/internal/password"
)

// Source names the credential store that produced a Principal.
type Source string

const (
	SourceAdmin    Source = "admin"
	SourceDatabase Source = "database"
	SourceLegacy   Source = "legacy"
)

// Principal is an authenticated identity and where it came from.
type Principal struct {
	User   *User
	Source Source
}

// Authenticator checks one credential store. A miss is (nil, nil); an error
// means the store itself failed.
type Authenticator interface {
	Authenticate(ctx context.Context, username, pw string) (*Principal, error)
}

// AdminAuthenticator matches the configured admin pair.
type AdminAuthenticator struct {
	creds CredentialSource
}

func NewAdminAuthenticator(creds CredentialSource) *AdminAuthenticator {
	return &AdminAuthenticator{creds: creds}
}

func (a *AdminAuthenticator) Authenticate(_ context.Context, username, pw string) (*Principal, error) {
	if a.creds == nil {
		return nil, nil
	}
	creds, ok := a.creds.AdminCredentials()
	if !ok || username != creds.Username {
		return nil, nil
	}
	if !password.Verify(creds.PasswordHash, pw) {
		return nil, nil
	}

	return &Principal{
		User: &User{
			Username:   creds.Username,
			Role:       RoleAdmin,
			IsActive:   true,
			IsVerified: true,
		},
		Source: SourceAdmin,
	}, nil
}

// DatabaseAuthenticator matches rows in the relational store.
type DatabaseAuthenticator struct {
	users Repository
}

func NewDatabaseAuthenticator(users Repository) *DatabaseAuthenticator {
	return &DatabaseAuthenticator{users: users}
}

func (a *DatabaseAuthenticator) Authenticate(ctx context.Context, username, pw string) (*Principal, error) {
	user, err := a.users.FindByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive || !password.Verify(user.PasswordHash, pw) {
		return nil, nil
	}
	return &Principal{User: user, Source: SourceDatabase}, nil
}
