package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Scheme        = "pbkdf2_sha256"
	plainScheme         = "plain"
	defaultPBKDF2Rounds = 260000
	pbkdf2KeyLen        = 32
	saltLen             = 16
)

// HashPassword produces a pbkdf2_sha256$<iterations>$<salt>$<digest> string,
// the only scheme new passwords are hashed with. "plain$<password>" hashes
// are accepted by VerifyPassword only for operator-seeded accounts.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}
	digest := pbkdf2.Key([]byte(password), salt, defaultPBKDF2Rounds, pbkdf2KeyLen, sha256.New)
	return fmt.Sprintf("%s$%d$%s$%s",
		pbkdf2Scheme,
		defaultPBKDF2Rounds,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	), nil
}

// VerifyPassword checks password against a hash produced by HashPassword, or
// a plain$<password> literal for accounts seeded without hashing. Comparison
// of the digest is constant-time.
func VerifyPassword(password, hash string) bool {
	parts := strings.Split(hash, "$")
	switch parts[0] {
	case plainScheme:
		if len(parts) != 2 {
			return false
		}
		return subtle.ConstantTimeCompare([]byte(password), []byte(parts[1])) == 1
	case pbkdf2Scheme:
		if len(parts) != 4 {
			return false
		}
		iterations, err := strconv.Atoi(parts[1])
		if err != nil || iterations <= 0 {
			return false
		}
		salt, err := base64.RawStdEncoding.DecodeString(parts[2])
		if err != nil {
			return false
		}
		want, err := base64.RawStdEncoding.DecodeString(parts[3])
		if err != nil {
			return false
		}
		got := pbkdf2.Key([]byte(password), salt, iterations, len(want), sha256.New)
		return subtle.ConstantTimeCompare(got, want) == 1
	default:
		return false
	}
}
