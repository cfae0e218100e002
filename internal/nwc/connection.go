// Package nwc handles Nostr Wallet Connect: parsing connection strings
// and caching live wallet clients per wallet pubkey.
//
// Connection strings embed the wallet secret. Nothing in this package
// logs a connection string or includes one in an error.
package nwc

import (
	"errors"
	"net/url"
	"strings"
)

const scheme = "nostr+walletconnect"

var (
	ErrBadScheme     = errors.New("nwc: connection string must use nostr+walletconnect://")
	ErrShortPubkey   = errors.New("nwc: wallet pubkey too short")
	ErrMissingRelay  = errors.New("nwc: relay parameter missing or not a websocket url")
	ErrMissingSecret = errors.New("nwc: secret parameter missing")
)

// ConnectionParts is the parsed form of an NWC connection string.
// Secret is held in memory only; it is never serialized or logged.
type ConnectionParts struct {
	WalletPubkey string
	RelayURL     string
	Secret       string
}

// ParseConnectionString validates and splits an NWC URI
// (nostr+walletconnect://<pubkey>?relay=wss://...&secret=...).
// Errors describe only the failure category.
func ParseConnectionString(s string) (*ConnectionParts, error) {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Scheme != scheme {
		return nil, ErrBadScheme
	}

	pubkey := u.Host
	if len(pubkey) < 64 {
		return nil, ErrShortPubkey
	}

	q := u.Query()
	relay := q.Get("relay")
	if relay == "" || !(strings.HasPrefix(relay, "ws://") || strings.HasPrefix(relay, "wss://")) {
		return nil, ErrMissingRelay
	}

	secret := q.Get("secret")
	if secret == "" {
		return nil, ErrMissingSecret
	}

	return &ConnectionParts{
		WalletPubkey: pubkey,
		RelayURL:     relay,
		Secret:       secret,
	}, nil
}
