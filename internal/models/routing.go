package models

// Wallet types for payment routing.
const (
	WalletTypeCustodial = "custodial"
	WalletTypeNWC       = "nwc"
)

// Typed payment error codes surfaced to callers. Raw rail error text is
// mapped onto these at the boundary and never leaks further in.
const (
	PayErrNoWallet            = "NO_WALLET"
	PayErrInsufficientBalance = "INSUFFICIENT_BALANCE"
	PayErrMissingConnection   = "MISSING_CONNECTION"
	PayErrTimeout             = "TIMEOUT"
	PayErrNoRoute             = "NO_ROUTE"
	PayErrPaymentFailed       = "PAYMENT_FAILED"
	PayErrInvalidInvoice      = "INVALID_INVOICE"
	PayErrInvoiceFailed       = "INVOICE_FAILED"
)

type PaymentRoutingResult struct {
	WalletType   string  `json:"wallet_type"`
	Success      bool    `json:"success"`
	PaymentHash  *string `json:"payment_hash,omitempty"`
	Preimage     *string `json:"preimage,omitempty"`
	ErrorCode    *string `json:"error_code,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

type InvoiceRoutingResult struct {
	WalletType     string  `json:"wallet_type"`
	Success        bool    `json:"success"`
	PaymentRequest *string `json:"payment_request,omitempty"`
	RHash          *string `json:"r_hash,omitempty"`
	ErrorCode      *string `json:"error_code,omitempty"`
	ErrorMessage   *string `json:"error_message,omitempty"`
}
