package dto

type AuthResponse struct {
	Token string `json:"token"`
	User  any    `json:"user"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type DecodedInvoiceResponse struct {
	Valid         bool    `json:"valid"`
	AmountSats    *int64  `json:"amount_sats,omitempty"`
	Description   *string `json:"description,omitempty"`
	ExpirySeconds *int64  `json:"expiry_seconds,omitempty"`
	Timestamp     *int64  `json:"timestamp,omitempty"`
	Display       string  `json:"display"`
}
