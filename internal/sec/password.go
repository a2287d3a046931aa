package sec

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordLen is the longest password bcrypt will hash.
const MaxPasswordLen = 72

// Password errors.
var (
	ErrEmptyPassword   = errors.New("password must not be empty")
	ErrPasswordTooLong = fmt.Errorf("password must not exceed %d bytes", MaxPasswordLen)
)

// HashPassword generates the bcrypt hash stored as api.password_hash.
func HashPassword[T ~string | ~[]byte](password T) ([]byte, error) {
	switch {
	case len(password) == 0:
		return nil, ErrEmptyPassword
	case len(password) > MaxPasswordLen:
		return nil, ErrPasswordTooLong
	}
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// ParsePasswordHash checks that hash is a bcrypt hash, as produced by
// [HashPassword].
func ParsePasswordHash(hash string) ([]byte, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("invalid api password hash: %w", err)
	}
	return []byte(hash), nil
}

// ComparePassword returns an error if the provided password does not resolve to
// the given hash.
func ComparePassword[T ~string | ~[]byte](password T, hash []byte) error {
	return bcrypt.CompareHashAndPassword(hash, []byte(password))
}
