package password

import (
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a bcrypt hasher. A zero cost selects bcrypt.DefaultCost.
func NewBcryptHasher(cost int) (*BcryptHasher, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, errors.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &BcryptHasher{cost: cost}, nil
}

// Hash hashes a password using bcrypt
func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", errors.Wrap(err, "bcrypt hash")
	}
	return string(b), nil
}

// Verify checks if a password matches a hash
func (h *BcryptHasher) Verify(plaintext, credential string) bool {
	return bcrypt.CompareHashAndPassword([]byte(credential), []byte(plaintext)) == nil
}
