package auth

import (
	"github.com/EmpoweredVote/EV-Dashboard/internal/config"
	"github.com/EmpoweredVote/EV-Dashboard/internal/password"
)

// AdminCredentials is the privileged username / password-hash pair.
type AdminCredentials struct {
	Username     string
	PasswordHash string
}

// CredentialSource resolves the admin pair. ok is false when no admin is configured.
type CredentialSource interface {
	AdminCredentials() (creds AdminCredentials, ok bool)
}

type StaticCredentials AdminCredentials

func (c StaticCredentials) AdminCredentials() (AdminCredentials, bool) {
	return AdminCredentials(c), c.Username != "" && c.PasswordHash != ""
}

// CredentialsFromConfig builds the admin pair from cfg, hashing a plaintext
// ADMIN_PASSWORD once when no hash was supplied.
func CredentialsFromConfig(cfg config.Config, hasher password.Hasher) (StaticCredentials, error) {
	creds := StaticCredentials{
		Username:     cfg.AdminUsername,
		PasswordHash: cfg.AdminPasswordHash,
	}
	if creds.Username == "" || creds.PasswordHash != "" || cfg.AdminPassword == "" {
		return creds, nil
	}

	hash, err := hasher.Hash(cfg.AdminPassword)
	if err != nil {
		return StaticCredentials{}, err
	}
	creds.PasswordHash = hash
	return creds, nil
}
