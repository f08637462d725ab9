package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	argon2idTag   = "argon2id"
	argon2Version = argon2.Version // 19
)

var b64 = base64.RawStdEncoding

// argon2Hash is the parsed form of a stored hash:
//
//	$argon2id$v=19$m=<KiB>,t=<iterations>,p=<lanes>$<salt>$<key>
type argon2Hash struct {
	params Argon2idParams
	salt   []byte
	key    []byte
}

func (h argon2Hash) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2idTag, argon2Version,
		h.params.MemoryKiB, h.params.Iterations, h.params.Parallelism,
		b64.EncodeToString(h.salt), b64.EncodeToString(h.key))
}

// Hash derives the stored form of a user's password. Register calls it once per
// account; the result goes straight into the hashed_password column.
func (c Config) Hash(password string) (string, error) {
	if err := c.Validate(password); err != nil {
		return "", err
	}

	salt := make([]byte, c.Params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	h := argon2Hash{params: c.Params, salt: salt}
	h.key = derive(password, h.params, salt, c.Params.KeyLength)
	return h.String(), nil
}

// Verify reports whether password matches a stored hash. A mismatch is
// (false, nil); a hash that cannot be parsed or is too expensive to check is
// ErrInvalidHash.
func (c Config) Verify(stored, password string) (bool, error) {
	if IsLegacy(stored) {
		return verifyBcrypt(stored, password)
	}

	h, err := parseArgon2Hash(stored)
	if err != nil {
		return false, err
	}
	if !c.affordable(h.params) {
		return false, ErrInvalidHash
	}

	key := derive(password, h.params, h.salt, h.params.KeyLength)
	return subtle.ConstantTimeCompare(key, h.key) == 1, nil
}

// IsLegacy reports whether stored is a bcrypt hash imported from an older user
// table. Such hashes verify but are never produced.
func IsLegacy(stored string) bool {
	return strings.HasPrefix(stored, "$2")
}

func derive(password string, p Argon2idParams, salt []byte, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), salt, p.Iterations, p.MemoryKiB, p.Parallelism, keyLen)
}

func verifyBcrypt(stored, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, ErrInvalidHash
	}
}

// affordable caps the cost a stored hash may demand at twice the configured
// parameters. Older, cheaper hashes still verify.
func (c Config) affordable(got Argon2idParams) bool {
	switch {
	case got.MemoryKiB > c.Params.MemoryKiB*2,
		got.Iterations > c.Params.Iterations*2,
		got.Parallelism > c.Params.Parallelism*2:
		return false
	case got.SaltLength < 8 || got.SaltLength > 64:
		return false
	case got.KeyLength < 16 || got.KeyLength > 128:
		return false
	}
	return true
}

func parseArgon2Hash(stored string) (argon2Hash, error) {
	parts := strings.Split(stored, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != argon2idTag {
		return argon2Hash{}, ErrInvalidHash
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2Version) {
		return argon2Hash{}, ErrInvalidHash
	}

	if !strings.HasPrefix(parts[3], "m=") {
		return argon2Hash{}, ErrInvalidHash
	}
	var mem, iter, lanes uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iter, &lanes); err != nil {
		return argon2Hash{}, ErrInvalidHash
	}
	if mem == 0 || iter == 0 || lanes == 0 || lanes > 255 {
		return argon2Hash{}, ErrInvalidHash
	}

	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return argon2Hash{}, ErrInvalidHash
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil {
		return argon2Hash{}, ErrInvalidHash
	}

	return argon2Hash{
		params: Argon2idParams{
			MemoryKiB:   mem,
			Iterations:  iter,
			Parallelism: uint8(lanes),      // #nosec G115 -- checked <= 255 above.
			SaltLength:  uint32(len(salt)), // #nosec G115 -- bounded by the stored string.
			KeyLength:   uint32(len(key)),  // #nosec G115 -- bounded by the stored string.
		},
		salt: salt,
		key:  key,
	}, nil
}
