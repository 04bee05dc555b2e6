// Package crypto implements hashing of short-lived secrets and sealing of session values.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters (tuned for server-side hashing).
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32
)

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// HashSecret returns the Argon2id hash of a secret (such as a one-time code) with the provided salt.
func HashSecret(secret, salt []byte) []byte {
	return argon2.IDKey(secret, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// VerifySecret verifies a secret against the expected Argon2id hash and salt.
func VerifySecret(secret, salt, expected []byte) bool {
	got := HashSecret(secret, salt)
	return subtle.ConstantTimeCompare(got, expected) == 1
}
