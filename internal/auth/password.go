package auth

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

// HashScheme selects the algorithm used for newly written credentials.
// Verification always accepts both, so the scheme can migrate without
// invalidating existing hashes.
type HashScheme string

const (
	SchemeBcrypt   HashScheme = "bcrypt"
	SchemeArgon2id HashScheme = "argon2id"
)

const (
	argonMemory      = 64 * 1024
	argonIterations  = 2
	argonParallelism = 1
	argonKeyLength   = 32
	argonSaltLength  = 16
)

// HashPassword hashes a plaintext password with the given scheme.
func HashPassword(password string, scheme HashScheme) (string, error) {
	if len(password) == 0 {
		return "", errors.New("auth: password is empty")
	}
	switch scheme {
	case SchemeBcrypt:
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return "", err
		}
		return string(hash), nil
	case SchemeArgon2id:
		return hashArgon2id(password)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownHashScheme, scheme)
	}
}

// VerifyPassword compares a plaintext password with a stored hash, selecting
// the algorithm from the hash's self-describing prefix. An unrecognized
// prefix fails closed with ErrUnknownHashScheme.
func VerifyPassword(storedHash, password string) (bool, error) {
	scheme, err := schemeOf(storedHash)
	if err != nil {
		return false, err
	}
	switch scheme {
	case SchemeBcrypt:
		err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password))
		if err != nil {
			if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	case SchemeArgon2id:
		return verifyArgon2id(storedHash, password)
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownHashScheme, scheme)
	}
}

func schemeOf(hash string) (HashScheme, error) {
	switch {
	case strings.HasPrefix(hash, "$argon2id$"):
		return SchemeArgon2id, nil
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		return SchemeBcrypt, nil
	default:
		return "", ErrUnknownHashScheme
	}
}

func hashArgon2id(password string) (string, error) {
	salt := make([]byte, argonSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, argonIterations, argonMemory, argonParallelism, argonKeyLength)
	return fmt.Sprintf(
		"$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		argonMemory,
		argonIterations,
		argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

func verifyArgon2id(storedHash, password string) (bool, error) {
	parts := strings.Split(storedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, ErrUnknownHashScheme
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, ErrUnknownHashScheme
	}
	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, ErrUnknownHashScheme
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, ErrUnknownHashScheme
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, ErrUnknownHashScheme
	}
	got := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
