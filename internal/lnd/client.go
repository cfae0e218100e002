// Package lnd is a thin REST client for the platform's custodial LND
// node. Only the three calls the payment core needs are implemented.
package lnd

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
)

// RequestTimeout bounds every node call. A stuck payment call must not
// stall other requests in the process.
const RequestTimeout = 10 * time.Second

var ErrTimeout = errors.New("lnd: request timed out")

type Client struct {
	host       string
	macaroon   string
	httpClient *http.Client
	log        *zap.Logger
}

// NewClient reads the node's TLS certificate and macaroon from disk and
// builds the REST client.
func NewClient(host, tlsCertPath, macaroonPath string, log *zap.Logger) (*Client, error) {
	cert, err := os.ReadFile(tlsCertPath)
	if err != nil {
		return nil, fmt.Errorf("read lnd tls cert: %w", err)
	}
	mac, err := os.ReadFile(macaroonPath)
	if err != nil {
		return nil, fmt.Errorf("read lnd macaroon: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(cert) {
		return nil, fmt.Errorf("lnd tls cert is not valid PEM")
	}

	return &Client{
		host:     host,
		macaroon: hex.EncodeToString(mac),
		httpClient: &http.Client{
			Timeout: RequestTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{RootCAs: pool},
			},
		},
		log: log,
	}, nil
}

type CreatedInvoice struct {
	PaymentRequest string `json:"payment_request"`
	RHash          string `json:"r_hash"`
}

// CreateInvoice adds an invoice on the node and returns its payment
// request and hash.
func (c *Client) CreateInvoice(ctx context.Context, amountSats int64, memo string) (*CreatedInvoice, error) {
	body := struct {
		Value int64  `json:"value,string"`
		Memo  string `json:"memo,omitempty"`
	}{Value: amountSats, Memo: memo}

	var out CreatedInvoice
	if err := c.call(ctx, http.MethodPost, "/v1/invoices", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PayInvoice pays a BOLT11 payment request from the custodial node.
// amountSats is only sent for zero-amount invoices. Returns the payment
// hash on success; a node-reported payment failure comes back as an
// error carrying the node's message.
func (c *Client) PayInvoice(ctx context.Context, paymentRequest string, amountSats *int64) (string, error) {
	body := struct {
		PaymentRequest string `json:"payment_request"`
		Amt            int64  `json:"amt,string,omitempty"`
	}{PaymentRequest: paymentRequest}
	if amountSats != nil {
		body.Amt = *amountSats
	}

	var out struct {
		PaymentError string `json:"payment_error"`
		PaymentHash  string `json:"payment_hash"`
	}
	if err := c.call(ctx, http.MethodPost, "/v1/channels/transactions", body, &out); err != nil {
		return "", err
	}
	if out.PaymentError != "" {
		return "", fmt.Errorf("lnd payment failed: %s", out.PaymentError)
	}
	return out.PaymentHash, nil
}

type InvoiceStatus struct {
	Settled        bool   `json:"settled"`
	AmountPaidSats int64  `json:"amt_paid_sat,string"`
	State          string `json:"state"`
}

// CheckInvoice looks up an invoice by its payment hash (hex).
func (c *Client) CheckInvoice(ctx context.Context, rHash string) (*InvoiceStatus, error) {
	var out InvoiceStatus
	if err := c.call(ctx, http.MethodGet, "/v1/invoice/"+rHash, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, fmt.Sprintf("https://%s%s", c.host, path), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Grpc-Metadata-macaroon", c.macaroon)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return ErrTimeout
		}
		return fmt.Errorf("lnd unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		c.log.Warn("lnd returned error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("lnd %s returned %d: %s", path, resp.StatusCode, string(b))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return err
	}
	return nil
}
