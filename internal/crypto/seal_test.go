package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestSealer_Roundtrip(t *testing.T) {
	t.Parallel()
	s, err := NewSealer([]byte("session-secret"), "roomie-session")
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	pt := []byte(`{"access_token":"abc"}`)
	sealed, err := s.Seal(pt, []byte("sid-1/session"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(sealed, pt) {
		t.Fatalf("ciphertext must not contain plaintext")
	}
	got, err := s.Open(sealed, []byte("sid-1/session"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, pt) {
		t.Fatalf("roundtrip mismatch")
	}
}

func TestSealer_RejectsMovedOrForeignValues(t *testing.T) {
	t.Parallel()
	s, _ := NewSealer([]byte("k1"), "roomie-session")
	other, _ := NewSealer([]byte("k2"), "roomie-session")
	purpose, _ := NewSealer([]byte("k1"), "other-purpose")

	sealed, _ := s.Seal([]byte("v"), []byte("sid-1/session"))

	if _, err := s.Open(sealed, []byte("sid-2/session")); !errors.Is(err, ErrSealed) {
		t.Fatalf("value moved to another slot must be rejected, got %v", err)
	}
	if _, err := other.Open(sealed, []byte("sid-1/session")); !errors.Is(err, ErrSealed) {
		t.Fatalf("foreign key must be rejected, got %v", err)
	}
	if _, err := purpose.Open(sealed, []byte("sid-1/session")); !errors.Is(err, ErrSealed) {
		t.Fatalf("key for another purpose must be rejected, got %v", err)
	}
	if _, err := s.Open([]byte("short"), nil); !errors.Is(err, ErrSealed) {
		t.Fatalf("short input must be rejected, got %v", err)
	}
}

func TestNewSealer_EmptySecret(t *testing.T) {
	t.Parallel()
	if _, err := NewSealer(nil, "x"); err == nil {
		t.Fatalf("empty secret must fail")
	}
}
