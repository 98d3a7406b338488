package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/claystudio/membership-backend/pkg/config"
)

// ErrInvalidHash is returned for stored hashes that are not PHC-formatted
// argon2id strings this package can verify.
var ErrInvalidHash = errors.New("invalid argon2id hash")

var b64 = base64.RawStdEncoding

type argonCost struct {
	memory  uint32
	passes  uint32
	threads uint8
	saltLen int
	keyLen  uint32
}

func costFor(cfg config.PasswordConfig) argonCost {
	return argonCost{
		memory:  uint32(bounded(cfg.ArgonMemoryKB, 8, 512*1024)),
		passes:  uint32(bounded(cfg.ArgonTime, 1, 10)),
		threads: uint8(bounded(cfg.ArgonParallelism, 1, 255)),
		saltLen: bounded(cfg.ArgonSaltLen, 8, 64),
		keyLen:  uint32(bounded(cfg.ArgonKeyLen, 16, 64)),
	}
}

func bounded(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// HashPassword derives an argon2id key for password and encodes it together
// with its salt and cost as "$argon2id$v=19$m=..,t=..,p=..$salt$key".
func HashPassword(password string, cfg config.PasswordConfig) (string, error) {
	if password == "" {
		return "", errors.New("empty password")
	}
	cost := costFor(cfg)
	salt := make([]byte, cost.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, cost.passes, cost.memory, cost.threads, cost.keyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, cost.memory, cost.passes, cost.threads,
		b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// VerifyPassword reports whether password matches encoded. A mismatch is
// (false, nil); only an unreadable hash is an error.
func VerifyPassword(password, encoded string) (bool, error) {
	cost, salt, key, err := parseHash(encoded)
	if err != nil {
		return false, err
	}
	candidate := argon2.IDKey([]byte(password), salt, cost.passes, cost.memory, cost.threads, cost.keyLen)
	return subtle.ConstantTimeCompare(key, candidate) == 1, nil
}

func parseHash(encoded string) (argonCost, []byte, []byte, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return argonCost{}, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return argonCost{}, nil, nil, ErrInvalidHash
	}

	var cost argonCost
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &cost.memory, &cost.passes, &cost.threads); err != nil {
		return argonCost{}, nil, nil, ErrInvalidHash
	}
	if cost.memory == 0 || cost.passes == 0 || cost.threads == 0 {
		return argonCost{}, nil, nil, ErrInvalidHash
	}

	salt, err := b64.DecodeString(fields[4])
	if err != nil || len(salt) == 0 {
		return argonCost{}, nil, nil, ErrInvalidHash
	}
	key, err := b64.DecodeString(fields[5])
	if err != nil || len(key) == 0 {
		return argonCost{}, nil, nil, ErrInvalidHash
	}
	cost.saltLen = len(salt)
	cost.keyLen = uint32(len(key))
	return cost, salt, key, nil
}
