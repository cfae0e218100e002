package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestSecretBoxRoundTrip(t *testing.T) {
	box, err := NewSecretBox(bytes.Repeat([]byte{0x42}, 32))
	if err != nil {
		t.Fatalf("NewSecretBox: %v", err)
	}

	secret := "nostr+walletconnect://abc?relay=wss://r.example&secret=s3cr3t"
	sealed, err := box.Encrypt(secret)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if strings.Contains(sealed, "s3cr3t") {
		t.Fatal("ciphertext contains plaintext secret")
	}

	got, err := box.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got != secret {
		t.Fatalf("round trip mismatch: got %q", got)
	}
}

func TestSecretBoxRejectsBadKey(t *testing.T) {
	if _, err := NewSecretBox([]byte("short")); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestSecretBoxRejectsTampered(t *testing.T) {
	box, _ := NewSecretBox(bytes.Repeat([]byte{0x01}, 32))
	sealed, _ := box.Encrypt("payload")

	if _, err := box.Decrypt("not base64!!!"); err == nil {
		t.Fatal("expected error for malformed ciphertext")
	}
	if _, err := box.Decrypt(sealed[:len(sealed)-4] + "AAAA"); err == nil {
		t.Fatal("expected error for tampered ciphertext")
	}
}
