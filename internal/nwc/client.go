package nwc

import "context"

// Invoice is the result of MakeInvoice on a connected wallet.
type Invoice struct {
	PaymentRequest string
	RHash          string
}

// Client is a remote wallet reachable over an NWC relay. The relay
// transport itself lives behind this interface; the package only
// manages client lifecycle.
type Client interface {
	// Enable performs the initial handshake with the wallet service.
	Enable(ctx context.Context) error
	// GetBalance returns the wallet balance in millisatoshis.
	GetBalance(ctx context.Context) (int64, error)
	// SendPayment pays a BOLT11 payment request and returns the preimage.
	SendPayment(ctx context.Context, paymentRequest string) (string, error)
	// MakeInvoice creates an invoice on the remote wallet.
	MakeInvoice(ctx context.Context, amountSats int64, memo string) (*Invoice, error)
	// LookupInvoice reports whether the invoice with the given payment
	// hash has settled.
	LookupInvoice(ctx context.Context, paymentHash string) (bool, error)
}

// ClientFactory dials a wallet over its declared relay. Injected so the
// transport can be swapped out in tests.
type ClientFactory func(ctx context.Context, parts *ConnectionParts) (Client, error)
