package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Password hashes use a memory-hard KDF and encode as algorithm:salt:digest
// so parameters can evolve without a schema change.
const (
	argonAlgorithm = "argon2id"
	argonTime      = 1
	argonMemory    = 64 * 1024
	argonThreads   = 4
	argonKeyLen    = 32
	saltLen        = 16
)

func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	digest := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("%s:%s:%s", argonAlgorithm,
		hex.EncodeToString(salt), hex.EncodeToString(digest)), nil
}

// VerifyPassword re-derives the digest with the stored salt and compares in
// constant time.
func VerifyPassword(password, encoded string) bool {
	parts := strings.SplitN(encoded, ":", 3)
	if len(parts) != 3 || parts[0] != argonAlgorithm {
		return false
	}
	salt, err := hex.DecodeString(parts[1])
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(parts[2])
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}
