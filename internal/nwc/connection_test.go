package nwc

import (
	"strings"
	"testing"
)

const testPubkey = "b889ff5b1513b641e2a139f661a661364979c5beee91842f8f0ef42ab558e9d4"

func validConnString() string {
	return "nostr+walletconnect://" + testPubkey + "?relay=wss://relay.getalby.com/v1&secret=71a8c14c1407c113601079c4302dab36460f0ccd0ad506f1f2dc73b5100e4f3c"
}

func TestParseConnectionString(t *testing.T) {
	parts, err := ParseConnectionString(validConnString())
	if err != nil {
		t.Fatalf("ParseConnectionString() error = %v", err)
	}
	if parts.WalletPubkey != testPubkey {
		t.Errorf("WalletPubkey = %q", parts.WalletPubkey)
	}
	if parts.RelayURL != "wss://relay.getalby.com/v1" {
		t.Errorf("RelayURL = %q", parts.RelayURL)
	}
	if parts.Secret == "" {
		t.Error("Secret is empty")
	}
}

func TestParseConnectionStringRejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"empty", "", ErrBadScheme},
		{"http scheme", "http://" + testPubkey + "?relay=wss://r&secret=s", ErrBadScheme},
		{"plain nostr scheme", "nostr://" + testPubkey + "?relay=wss://r&secret=s", ErrBadScheme},
		{"short pubkey", "nostr+walletconnect://abc123?relay=wss://r&secret=s", ErrShortPubkey},
		{"missing relay", "nostr+walletconnect://" + testPubkey + "?secret=s", ErrMissingRelay},
		{"http relay", "nostr+walletconnect://" + testPubkey + "?relay=https://r&secret=s", ErrMissingRelay},
		{"missing secret", "nostr+walletconnect://" + testPubkey + "?relay=wss://r", ErrMissingSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConnectionString(tt.in)
			if err != tt.want {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseErrorsNeverContainSecret(t *testing.T) {
	secret := "deadbeef-super-secret-value"
	in := "nostr+walletconnect://short?relay=wss://r&secret=" + secret
	_, err := ParseConnectionString(in)
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), secret) {
		t.Error("error message leaks the secret")
	}
}

func TestParseWsRelayAllowed(t *testing.T) {
	in := "nostr+walletconnect://" + testPubkey + "?relay=ws://localhost:7777&secret=s"
	parts, err := ParseConnectionString(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parts.RelayURL != "ws://localhost:7777" {
		t.Errorf("RelayURL = %q", parts.RelayURL)
	}
}
