// Package password hashes new passwords with bcrypt and verifies stored hashes.
//
// Besides bcrypt, Verify understands the werkzeug formats found in the legacy
// flat-file user store:
//
//	pbkdf2:sha256:600000$<salt>$<hex digest>
//	scrypt:32768:8:1$<salt>$<hex digest>
package password

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"hash"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"
)

const (
	defaultPBKDF2Iterations = 600000
	defaultScryptN          = 1 << 15
	defaultScryptR          = 8
	defaultScryptP          = 1
	scryptKeyLen            = 64
)

// Hasher produces one-way hashes for new passwords.
type Hasher interface {
	Hash(password string) (string, error)
}

// BcryptHasher hashes with bcrypt at Cost. A zero Cost means bcrypt.DefaultCost.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Hash is BcryptHasher{}.Hash.
func Hash(password string) (string, error) {
	return BcryptHasher{}.Hash(password)
}

// Verify reports whether password matches stored. Unknown or malformed
// formats never match.
func Verify(stored, password string) bool {
	switch {
	case stored == "":
		return false
	case isBcrypt(stored):
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	case strings.HasPrefix(stored, "pbkdf2:"):
		return verifyPBKDF2(stored, password)
	case strings.HasPrefix(stored, "scrypt:"):
		return verifyScrypt(stored, password)
	default:
		return false
	}
}

func isBcrypt(stored string) bool {
	return strings.HasPrefix(stored, "$2a$") ||
		strings.HasPrefix(stored, "$2b$") ||
		strings.HasPrefix(stored, "$2y$")
}

// splitWerkzeug splits "method$salt$digest" into its three parts.
func splitWerkzeug(stored string) (method []string, salt, digest string, ok bool) {
	parts := strings.SplitN(stored, "$", 3)
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return nil, "", "", false
	}
	return strings.Split(parts[0], ":"), parts[1], parts[2], true
}

func verifyPBKDF2(stored, password string) bool {
	method, salt, digest, ok := splitWerkzeug(stored)
	if !ok || len(method) < 2 {
		return false
	}

	var newHash func() hash.Hash
	switch method[1] {
	case "sha256":
		newHash = sha256.New
	case "sha512":
		newHash = sha512.New
	case "sha1":
		newHash = sha1.New
	default:
		return false
	}

	iterations := defaultPBKDF2Iterations
	if len(method) > 2 {
		n, err := strconv.Atoi(method[2])
		if err != nil || n <= 0 {
			return false
		}
		iterations = n
	}

	key := pbkdf2.Key([]byte(password), []byte(salt), iterations, newHash().Size(), newHash)
	return constantTimeHexEqual(key, digest)
}

func verifyScrypt(stored, password string) bool {
	method, salt, digest, ok := splitWerkzeug(stored)
	if !ok {
		return false
	}

	params := []int{defaultScryptN, defaultScryptR, defaultScryptP}
	for i, raw := range method[1:] {
		if i >= len(params) {
			return false
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return false
		}
		params[i] = n
	}

	key, err := scrypt.Key([]byte(password), []byte(salt), params[0], params[1], params[2], scryptKeyLen)
	if err != nil {
		return false
	}
	return constantTimeHexEqual(key, digest)
}

func constantTimeHexEqual(key []byte, digest string) bool {
	want, err := hex.DecodeString(digest)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(key, want) == 1
}
