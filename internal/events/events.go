package events

import "context"

// Streams
const (
	StreamPayments    = "events:payments"
	StreamWithdrawals = "events:withdrawals"
)

// Event types
const (
	EventPaymentSent             = "payment_sent"
	EventInvoiceSettled          = "invoice_settled"
	EventWithdrawalStatusChanged = "withdrawal_status_changed"
	EventCapViolation            = "cap_violation"
	EventSubmissionSampled       = "submission_sampled"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
