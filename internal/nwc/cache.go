package nwc

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

// ErrClientCleared is returned when the wallet was disconnected while
// its handshake was still in flight.
var ErrClientCleared = errors.New("nwc: wallet cleared during handshake")

// DefaultClientTTL bounds how long a handshaken client is reused before
// it is lazily reconnected.
const DefaultClientTTL = 5 * time.Minute

type cacheEntry struct {
	mu        sync.Mutex
	client    Client
	createdAt time.Time
}

// ClientCache owns live wallet clients keyed by wallet pubkey. It is
// safe for concurrent use; at most one handshake is in flight per
// wallet at any time. Expiry is lazy: stale entries are replaced on the
// next access, there is no background sweeper.
type ClientCache struct {
	factory ClientFactory
	ttl     time.Duration
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

func NewClientCache(factory ClientFactory, ttl time.Duration) *ClientCache {
	if ttl <= 0 {
		ttl = DefaultClientTTL
	}
	return &ClientCache{
		factory: factory,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*cacheEntry),
	}
}

// GetOrCreate returns a live client for the wallet named by the
// connection string, reusing a cached one when it is fresh. A failed
// handshake is never cached: the entry is evicted and the error
// returned, retry policy is the caller's call.
func (c *ClientCache) GetOrCreate(ctx context.Context, connectionString string) (Client, error) {
	parts, err := ParseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	entry, ok := c.entries[parts.WalletPubkey]
	if !ok {
		entry = &cacheEntry{}
		c.entries[parts.WalletPubkey] = entry
	}
	c.mu.Unlock()

	// Per-wallet lock: concurrent requests for the same pubkey wait
	// here instead of racing duplicate handshakes.
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.client != nil {
		if c.now().Sub(entry.createdAt) < c.ttl {
			return entry.client, nil
		}
		closeClient(entry.client)
		entry.client = nil
	}

	client, err := c.factory(ctx, parts)
	if err == nil {
		err = client.Enable(ctx)
	}
	if err != nil {
		c.evict(parts.WalletPubkey, entry)
		return nil, err
	}

	// A Clear that raced the handshake already dropped this entry from
	// the map; keeping the client would leak its transport forever.
	c.mu.Lock()
	cur, live := c.entries[parts.WalletPubkey]
	c.mu.Unlock()
	if !live || cur != entry {
		closeClient(client)
		return nil, ErrClientCleared
	}

	entry.client = client
	entry.createdAt = c.now()
	return client, nil
}

// Clear drops the cached client for a wallet. Used on disconnect.
func (c *ClientCache) Clear(walletPubkey string) {
	c.mu.Lock()
	entry, ok := c.entries[walletPubkey]
	delete(c.entries, walletPubkey)
	c.mu.Unlock()

	if !ok {
		return
	}
	entry.mu.Lock()
	if entry.client != nil {
		closeClient(entry.client)
		entry.client = nil
	}
	entry.mu.Unlock()
}

// closeClient releases transport resources for clients that hold any.
func closeClient(cl Client) {
	if closer, ok := cl.(io.Closer); ok {
		_ = closer.Close()
	}
}

// evict removes the entry only if it is still the one we hold, so a
// concurrent re-create is not clobbered.
func (c *ClientCache) evict(pubkey string, entry *cacheEntry) {
	c.mu.Lock()
	if cur, ok := c.entries[pubkey]; ok && cur == entry {
		delete(c.entries, pubkey)
	}
	c.mu.Unlock()
	entry.client = nil
}
