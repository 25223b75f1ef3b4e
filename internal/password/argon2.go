package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
)

// Argon2Params tunes the argon2id key derivation.
type Argon2Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params follows the RFC 9106 second recommended option.
var DefaultArgon2Params = Argon2Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 4,
	SaltLength:  16,
	KeyLength:   32,
}

var errMalformedCredential = errors.New("malformed argon2id credential")

// Argon2idHasher encodes credentials in the PHC string format:
//
//	$argon2id$v=19$m=65536,t=3,p=4$<salt>$<key>
type Argon2idHasher struct {
	params Argon2Params
}

func NewArgon2idHasher(params Argon2Params) *Argon2idHasher {
	return &Argon2idHasher{params: params}
}

func (h *Argon2idHasher) Hash(plaintext string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", errors.Wrap(err, "generate salt")
	}
	key := argon2.IDKey([]byte(plaintext), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.Memory, h.params.Iterations, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify re-derives the key with the parameters recorded in the credential,
// so credentials stay verifiable after the defaults change.
func (h *Argon2idHasher) Verify(plaintext, credential string) bool {
	params, salt, key, err := decodeArgon2id(credential)
	if err != nil {
		return false
	}
	other := argon2.IDKey([]byte(plaintext), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)
	return subtle.ConstantTimeCompare(key, other) == 1
}

func decodeArgon2id(credential string) (Argon2Params, []byte, []byte, error) {
	var p Argon2Params
	parts := strings.Split(credential, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return p, nil, nil, errMalformedCredential
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, errors.Wrap(errMalformedCredential, err.Error())
	}
	if version != argon2.Version {
		return p, nil, nil, errors.Wrapf(errMalformedCredential, "unsupported version %d", version)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return p, nil, nil, errors.Wrap(errMalformedCredential, err.Error())
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, errors.Wrap(errMalformedCredential, err.Error())
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return p, nil, nil, errors.Wrap(errMalformedCredential, err.Error())
	}
	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(key))
	return p, salt, key, nil
}
