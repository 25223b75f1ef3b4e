// Package password provides the credential hashers used to store user
// passwords. Every hasher produces a self-describing encoded string so the
// stored credential can be verified without external parameters.
package password

import (
	"strings"

	"github.com/pkg/errors"
)

// Hasher hashes plaintext passwords and verifies plaintext against a stored
// credential.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, credential string) bool
}

const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// New returns the hasher for the named algorithm. bcryptCost is ignored for
// argon2id.
func New(algorithm string, bcryptCost int) (Hasher, error) {
	switch strings.ToLower(algorithm) {
	case AlgorithmBcrypt, "":
		return NewBcryptHasher(bcryptCost)
	case AlgorithmArgon2id:
		return NewArgon2idHasher(DefaultArgon2Params), nil
	default:
		return nil, errors.Errorf("unknown password hasher %q", algorithm)
	}
}
