package crypto

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// ErrSealed is returned when a sealed value cannot be opened.
var ErrSealed = errors.New("sealed value rejected")

// Sealer encrypts values at rest with XChaCha20-Poly1305 under a key derived from a secret.
type Sealer struct {
	key []byte
}

// NewSealer derives the sealing key from secret via HKDF-SHA256; info separates key purposes.
func NewSealer(secret []byte, info string) (*Sealer, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty sealing secret")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, err
	}
	return &Sealer{key: key}, nil
}

// Seal encrypts plaintext with a random nonce; aad binds the result to its slot.
func (s *Sealer) Seal(plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce, err := RandBytes(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, aad), nil
}

// Open decrypts a value produced by Seal with the same aad.
func (s *Sealer) Open(sealed, aad []byte) ([]byte, error) {
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return nil, ErrSealed
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce := sealed[:chacha20poly1305.NonceSizeX]
	pt, err := aead.Open(nil, nonce, sealed[chacha20poly1305.NonceSizeX:], aad)
	if err != nil {
		return nil, ErrSealed
	}
	return pt, nil
}
