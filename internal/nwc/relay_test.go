package nwc

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

func testKeyPair(t *testing.T, seed byte) (*secp256k1.PrivateKey, string) {
	t.Helper()
	raw := bytes.Repeat([]byte{seed}, 32)
	priv := secp256k1.PrivKeyFromBytes(raw)
	pub := hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey()))
	return priv, pub
}

func TestNIP04SharedKeySymmetric(t *testing.T) {
	alicePriv, alicePub := testKeyPair(t, 0x11)
	bobPriv, bobPub := testKeyPair(t, 0x22)

	aliceShared, err := nip04SharedKey(alicePriv, bobPub)
	if err != nil {
		t.Fatalf("alice shared key: %v", err)
	}
	bobShared, err := nip04SharedKey(bobPriv, alicePub)
	if err != nil {
		t.Fatalf("bob shared key: %v", err)
	}
	if !bytes.Equal(aliceShared, bobShared) {
		t.Fatal("ECDH shared keys differ between the two sides")
	}
	if len(aliceShared) != 32 {
		t.Fatalf("shared key length = %d, want 32", len(aliceShared))
	}
}

func TestNIP04EncryptDecryptRoundTrip(t *testing.T) {
	alicePriv, _ := testKeyPair(t, 0x11)
	_, bobPub := testKeyPair(t, 0x22)

	key, err := nip04SharedKey(alicePriv, bobPub)
	if err != nil {
		t.Fatalf("shared key: %v", err)
	}

	plaintext := []byte(`{"method":"get_balance","params":{}}`)
	content, err := nip04Encrypt(key, plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if !strings.Contains(content, "?iv=") {
		t.Fatalf("content missing iv marker: %q", content)
	}
	if strings.Contains(content, "get_balance") {
		t.Fatal("ciphertext leaks plaintext")
	}

	got, err := nip04Decrypt(key, content)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q", got)
	}
}

func TestNIP04DecryptRejectsMalformed(t *testing.T) {
	key := bytes.Repeat([]byte{0x07}, 32)

	cases := []struct {
		name    string
		content string
	}{
		{"no iv marker", "c29tZWRhdGE="},
		{"bad ciphertext base64", "!!!?iv=AAAAAAAAAAAAAAAAAAAAAA=="},
		{"bad iv base64", "c29tZWRhdGE=?iv=!!!"},
		{"short iv", "c29tZWRhdGE=?iv=AAAA"},
		{"empty ciphertext", "?iv=AAAAAAAAAAAAAAAAAAAAAA=="},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := nip04Decrypt(key, tc.content); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestNIP04DecryptRejectsTamperedPadding(t *testing.T) {
	key := bytes.Repeat([]byte{0x07}, 32)
	content, err := nip04Encrypt(key, []byte("payload"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	// A wrong key must never recover the plaintext. Most of the time the
	// PKCS7 validation rejects it outright.
	wrongKey := bytes.Repeat([]byte{0x08}, 32)
	got, err := nip04Decrypt(wrongKey, content)
	if err == nil && bytes.Equal(got, []byte("payload")) {
		t.Fatal("decrypt with wrong key recovered the plaintext")
	}
}

func TestSignEventProducesVerifiableSignature(t *testing.T) {
	priv, pubHex := testKeyPair(t, 0x33)

	ev := nostrEvent{
		Pubkey:    pubHex,
		CreatedAt: 1735689600,
		Kind:      kindNWCRequest,
		Tags:      [][]string{{"p", strings.Repeat("ab", 32)}},
		Content:   "encrypted-payload",
	}
	if err := signEvent(priv, &ev); err != nil {
		t.Fatalf("sign: %v", err)
	}

	// The id must be the sha256 of the canonical serialization.
	ser, err := json.Marshal([]any{0, ev.Pubkey, ev.CreatedAt, ev.Kind, ev.Tags, ev.Content})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	digest := sha256.Sum256(ser)
	if ev.ID != hex.EncodeToString(digest[:]) {
		t.Fatalf("event id = %s, want sha256 of serialization", ev.ID)
	}

	sigBytes, err := hex.DecodeString(ev.Sig)
	if err != nil {
		t.Fatalf("sig not hex: %v", err)
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		t.Fatalf("parse signature: %v", err)
	}
	pub, err := schnorr.ParsePubKey(mustHex(t, pubHex))
	if err != nil {
		t.Fatalf("parse pubkey: %v", err)
	}
	if !sig.Verify(digest[:], pub) {
		t.Fatal("signature does not verify against the event id")
	}
}

func TestPKCS7PadUnpad(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"one byte", []byte{0x01}},
		{"exact block", bytes.Repeat([]byte{0x02}, 16)},
		{"block plus one", bytes.Repeat([]byte{0x03}, 17)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			padded := pkcs7Pad(tc.data, 16)
			if len(padded)%16 != 0 {
				t.Fatalf("padded length %d not block aligned", len(padded))
			}
			got, err := pkcs7Unpad(padded, 16)
			if err != nil {
				t.Fatalf("unpad: %v", err)
			}
			if !bytes.Equal(got, tc.data) {
				t.Fatalf("round trip mismatch: got %v want %v", got, tc.data)
			}
		})
	}
}

func TestDialRelayRejectsBadSecret(t *testing.T) {
	parts := &ConnectionParts{
		WalletPubkey: strings.Repeat("ab", 32),
		RelayURL:     "wss://relay.example.com",
		Secret:       "not-hex",
	}
	if _, err := DialRelay(context.Background(), parts); err != ErrBadSecret {
		t.Fatalf("err = %v, want ErrBadSecret", err)
	}
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}
