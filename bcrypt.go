package identity

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"

	goerrors "github.com/goliatone/go-errors"
)

// HashPassword will generate a password hash
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), 14)
	return string(h), err
}

// ComparePasswordAndHash will validate the given cleartext password matches
// the hashed password. A malformed digest is a mismatch, never a panic.
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if goerrors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return ErrMismatchedHashAndPassword
	}
	return nil
}

// VerifyPassword reports whether the cleartext matches the digest. Malformed
// digests report false.
func VerifyPassword(password, hash string) bool {
	return ComparePasswordAndHash(password, hash) == nil
}

// IsHashed reports whether a candidate password already looks like a bcrypt
// digest, which carries three `$` separators. A cleartext password with that
// many `$` runes is rejected outright rather than risk storing a
// double-hashed credential.
func IsHashed(password string) bool {
	return strings.Count(password, "$") >= 3
}

// RandomToken returns n random bytes hex-encoded, for use as one-time reset,
// confirmation, and invitation secrets.
func RandomToken(n int) (string, error) {
	if n <= 0 {
		n = 32
	}

	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate random token")
	}

	return hex.EncodeToString(buf), nil
}

// MustRandomToken is RandomToken for callers that treat entropy exhaustion as
// fatal.
func MustRandomToken(n int) string {
	token, err := RandomToken(n)
	if err != nil {
		panic(err)
	}
	return token
}
