package dto

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"` // poster/worker, defaults to worker
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type ConnectWalletRequest struct {
	ConnectionString string  `json:"connection_string"`
	WalletName       *string `json:"wallet_name,omitempty"`
}

type PayInvoiceRequest struct {
	PaymentRequest string `json:"payment_request"`
	// AmountSats is only consulted for any-amount invoices.
	AmountSats      *int64 `json:"amount_sats,omitempty"`
	PreferredWallet string `json:"preferred_wallet,omitempty"` // custodial/nwc
}

type CreateInvoiceRequest struct {
	AmountSats int64  `json:"amount_sats"`
	Memo       string `json:"memo,omitempty"`
}

type WithdrawRequest struct {
	PaymentRequest string `json:"payment_request"`
	AmountSats     int64  `json:"amount_sats"`
}

type CreatePostRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	RewardSats  int64   `json:"reward_sats"`
}

type SubmitFixRequest struct {
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
}
