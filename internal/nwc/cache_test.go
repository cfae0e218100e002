package nwc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClient struct {
	enableErr error
	enabled   int
}

func (f *fakeClient) Enable(ctx context.Context) error              { f.enabled++; return f.enableErr }
func (f *fakeClient) GetBalance(ctx context.Context) (int64, error) { return 0, nil }
func (f *fakeClient) SendPayment(ctx context.Context, pr string) (string, error) {
	return "preimage", nil
}
func (f *fakeClient) MakeInvoice(ctx context.Context, amountSats int64, memo string) (*Invoice, error) {
	return &Invoice{PaymentRequest: "lnbc1...", RHash: "rhash"}, nil
}
func (f *fakeClient) LookupInvoice(ctx context.Context, hash string) (bool, error) {
	return false, nil
}

func countingFactory(dials *int, err error) ClientFactory {
	return func(ctx context.Context, parts *ConnectionParts) (Client, error) {
		*dials++
		if err != nil {
			return nil, err
		}
		return &fakeClient{}, nil
	}
}

func TestGetOrCreateCachesWithinTTL(t *testing.T) {
	dials := 0
	cache := NewClientCache(countingFactory(&dials, nil), time.Minute)

	c1, err := cache.GetOrCreate(context.Background(), validConnString())
	if err != nil {
		t.Fatalf("first GetOrCreate: %v", err)
	}
	c2, err := cache.GetOrCreate(context.Background(), validConnString())
	if err != nil {
		t.Fatalf("second GetOrCreate: %v", err)
	}
	if c1 != c2 {
		t.Error("expected cached client to be reused")
	}
	if dials != 1 {
		t.Errorf("dials = %d, want 1", dials)
	}
}

func TestGetOrCreateRecreatesAfterTTL(t *testing.T) {
	dials := 0
	cache := NewClientCache(countingFactory(&dials, nil), time.Minute)

	current := time.Now()
	cache.now = func() time.Time { return current }

	if _, err := cache.GetOrCreate(context.Background(), validConnString()); err != nil {
		t.Fatal(err)
	}
	current = current.Add(6 * time.Minute)
	if _, err := cache.GetOrCreate(context.Background(), validConnString()); err != nil {
		t.Fatal(err)
	}
	if dials != 2 {
		t.Errorf("dials = %d, want 2 after expiry", dials)
	}
}

func TestGetOrCreateDoesNotCacheFailures(t *testing.T) {
	dials := 0
	dialErr := errors.New("relay unreachable")
	cache := NewClientCache(countingFactory(&dials, dialErr), time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := cache.GetOrCreate(context.Background(), validConnString()); !errors.Is(err, dialErr) {
			t.Fatalf("attempt %d: error = %v, want %v", i, err, dialErr)
		}
	}
	if dials != 2 {
		t.Errorf("dials = %d, want 2 (failures must not be cached)", dials)
	}
}

func TestGetOrCreateEnableFailureEvicts(t *testing.T) {
	enableErr := errors.New("handshake refused")
	first := true
	factory := func(ctx context.Context, parts *ConnectionParts) (Client, error) {
		if first {
			first = false
			return &fakeClient{enableErr: enableErr}, nil
		}
		return &fakeClient{}, nil
	}
	cache := NewClientCache(factory, time.Minute)

	if _, err := cache.GetOrCreate(context.Background(), validConnString()); !errors.Is(err, enableErr) {
		t.Fatalf("error = %v, want %v", err, enableErr)
	}
	// Next attempt gets a fresh client, not the broken one.
	c, err := cache.GetOrCreate(context.Background(), validConnString())
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if c.(*fakeClient).enableErr != nil {
		t.Error("broken client was cached")
	}
}

func TestClearEvicts(t *testing.T) {
	dials := 0
	cache := NewClientCache(countingFactory(&dials, nil), time.Minute)

	if _, err := cache.GetOrCreate(context.Background(), validConnString()); err != nil {
		t.Fatal(err)
	}
	cache.Clear(testPubkey)
	if _, err := cache.GetOrCreate(context.Background(), validConnString()); err != nil {
		t.Fatal(err)
	}
	if dials != 2 {
		t.Errorf("dials = %d, want 2 after Clear", dials)
	}
}

func TestGetOrCreateRejectsBadString(t *testing.T) {
	cache := NewClientCache(countingFactory(new(int), nil), time.Minute)
	if _, err := cache.GetOrCreate(context.Background(), "nostr+walletconnect://short?relay=wss://r&secret=s"); err == nil {
		t.Error("expected parse error")
	}
}

func TestGetOrCreateConcurrentSingleHandshake(t *testing.T) {
	dials := 0
	slowFactory := func(ctx context.Context, parts *ConnectionParts) (Client, error) {
		dials++ // guarded by the per-wallet lock
		time.Sleep(10 * time.Millisecond)
		return &fakeClient{}, nil
	}
	cache := NewClientCache(slowFactory, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = cache.GetOrCreate(context.Background(), validConnString())
		}()
	}
	wg.Wait()

	if dials != 1 {
		t.Errorf("dials = %d, want 1 (handshakes must be serialized per wallet)", dials)
	}
}

type closableClient struct {
	fakeClient
	mu     sync.Mutex
	closed int
}

func (c *closableClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func TestClearDuringHandshakeClosesClient(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	cl := &closableClient{}
	factory := func(ctx context.Context, parts *ConnectionParts) (Client, error) {
		close(started)
		<-release
		return cl, nil
	}
	cache := NewClientCache(factory, time.Minute)

	type result struct {
		client Client
		err    error
	}
	done := make(chan result, 1)
	go func() {
		c, err := cache.GetOrCreate(context.Background(), validConnString())
		done <- result{c, err}
	}()

	<-started
	go cache.Clear(testPubkey)
	// Clear drops the map entry before it blocks on the per-wallet
	// lock; wait for the drop, then let the handshake finish.
	for {
		cache.mu.Lock()
		_, live := cache.entries[testPubkey]
		cache.mu.Unlock()
		if !live {
			break
		}
		time.Sleep(time.Millisecond)
	}
	close(release)

	res := <-done
	if !errors.Is(res.err, ErrClientCleared) {
		t.Fatalf("err = %v, want ErrClientCleared", res.err)
	}
	cl.mu.Lock()
	closed := cl.closed
	cl.mu.Unlock()
	if closed != 1 {
		t.Errorf("client closed %d times, want 1 (orphaned transport must not leak)", closed)
	}
}
