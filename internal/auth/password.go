package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/frahmantamala/hospital-auth/internal"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const argon2Prefix = "$argon2id$"

var ErrUnsupportedHash = errors.New("unsupported credential hash")

// PasswordHasher produces and checks stored credentials. Matches satisfies lockout.CredentialMatcher.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Matches(stored, supplied string) bool
}

type Argon2Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

// DefaultArgon2Params follows the x/crypto/argon2 recommendation for argon2id.
var DefaultArgon2Params = Argon2Params{
	Time:    1,
	Memory:  64 * 1024,
	Threads: 4,
	KeyLen:  32,
	SaltLen: 16,
}

// Hasher writes new hashes with its primary scheme and verifies both argon2id and bcrypt
// hashes, so stores seeded with bcrypt keep working after a switch.
type Hasher struct {
	scheme     string
	argon      Argon2Params
	bcryptCost int
}

func NewHasher(cfg internal.SecurityConfig) *Hasher {
	h := &Hasher{scheme: cfg.PasswordHasher, argon: DefaultArgon2Params, bcryptCost: cfg.BCryptCost}
	if h.scheme == "" {
		h.scheme = "argon2id"
	}
	if h.bcryptCost == 0 {
		h.bcryptCost = bcrypt.DefaultCost
	}
	return h
}

// NewArgon2Hasher is used where the default memory cost is too heavy, such as tests.
func NewArgon2Hasher(params Argon2Params) *Hasher {
	return &Hasher{scheme: "argon2id", argon: params, bcryptCost: bcrypt.DefaultCost}
}

func (h *Hasher) Hash(password string) (string, error) {
	if h.scheme == "bcrypt" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), h.bcryptCost)
		if err != nil {
			return "", err
		}
		return string(hash), nil
	}

	salt := make([]byte, h.argon.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, h.argon.Time, h.argon.Memory, h.argon.Threads, h.argon.KeyLen)
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix,
		argon2.Version,
		h.argon.Memory, h.argon.Time, h.argon.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (h *Hasher) Matches(stored, supplied string) bool {
	switch {
	case strings.HasPrefix(stored, argon2Prefix):
		ok, err := verifyArgon2(stored, supplied)
		return err == nil && ok
	case strings.HasPrefix(stored, "$2"):
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(supplied)) == nil
	default:
		return false
	}
}

func verifyArgon2(stored, supplied string) (bool, error) {
	parts := strings.Split(stored, "$")
	if len(parts) != 6 {
		return false, ErrUnsupportedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false, ErrUnsupportedHash
	}

	var p Argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return false, ErrUnsupportedHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, ErrUnsupportedHash
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, ErrUnsupportedHash
	}

	got := argon2.IDKey([]byte(supplied), salt, p.Time, p.Memory, p.Threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
