package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLen    = 8
	temporaryLenBytes = 12
)

var ErrPasswordShort = errors.New("password too short")

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// BcryptHasher hashes at a fixed cost. Costs outside bcrypt's range fall
// back to the default.
type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	if len(password) < MinPasswordLen {
		return "", ErrPasswordShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func (h *BcryptHasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// IssueTemporary creates the initial credential for a profile opened on a
// patient's behalf. Only the hash is stored; the holder resets it on first
// login.
func IssueTemporary(h PasswordHasher) (plain, hash string, err error) {
	buf := make([]byte, temporaryLenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate password: %w", err)
	}
	plain = base64.RawURLEncoding.EncodeToString(buf)
	hash, err = h.Hash(plain)
	if err != nil {
		return "", "", err
	}
	return plain, hash, nil
}
