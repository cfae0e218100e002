package nwc

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"nhooyr.io/websocket"
)

// NIP-47 event kinds.
const (
	kindNWCRequest  = 23194
	kindNWCResponse = 23195
)

const relaySubID = "nwc"

var (
	ErrBadSecret     = errors.New("nwc: secret is not a 32-byte hex key")
	ErrRelayClosed   = errors.New("nwc: relay connection closed")
	ErrNoResponse    = errors.New("nwc: wallet did not respond")
	errBadCiphertext = errors.New("nwc: malformed encrypted payload")
)

type nostrEvent struct {
	ID        string     `json:"id"`
	Pubkey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

type nwcRequest struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

type nwcResponse struct {
	ResultType string          `json:"result_type"`
	Error      *nwcError       `json:"error"`
	Result     json.RawMessage `json:"result"`
}

type nwcError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// relayClient speaks NIP-47 to a wallet service through a Nostr relay:
// requests go out as kind-23194 events encrypted to the wallet pubkey,
// responses come back as kind-23195 events tagged with our pubkey.
type relayClient struct {
	conn      *websocket.Conn
	priv      *secp256k1.PrivateKey
	clientPub string
	walletPub string
	sharedKey []byte

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan nwcResponse
	closed  bool

	cancelRead context.CancelFunc
}

// DialRelay is the production ClientFactory: it connects to the relay
// named in the connection string and returns a Client bound to the
// wallet service. The returned client is also an io.Closer.
func DialRelay(ctx context.Context, parts *ConnectionParts) (Client, error) {
	secretBytes, err := hex.DecodeString(parts.Secret)
	if err != nil || len(secretBytes) != 32 {
		return nil, ErrBadSecret
	}
	priv := secp256k1.PrivKeyFromBytes(secretBytes)

	shared, err := nip04SharedKey(priv, parts.WalletPubkey)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.Dial(ctx, parts.RelayURL, nil)
	if err != nil {
		return nil, fmt.Errorf("nwc: relay dial failed: %w", err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c := &relayClient{
		conn:       conn,
		priv:       priv,
		clientPub:  hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey())),
		walletPub:  parts.WalletPubkey,
		sharedKey:  shared,
		pending:    make(map[string]chan nwcResponse),
		cancelRead: cancel,
	}

	if err := c.subscribe(ctx); err != nil {
		cancel()
		conn.Close(websocket.StatusInternalError, "subscribe failed")
		return nil, err
	}
	go c.readLoop(readCtx)

	return c, nil
}

func (c *relayClient) Enable(ctx context.Context) error {
	_, err := c.rpc(ctx, "get_info", struct{}{})
	return err
}

func (c *relayClient) GetBalance(ctx context.Context) (int64, error) {
	raw, err := c.rpc(ctx, "get_balance", struct{}{})
	if err != nil {
		return 0, err
	}
	var res struct {
		Balance int64 `json:"balance"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return 0, fmt.Errorf("nwc: bad get_balance result: %w", err)
	}
	return res.Balance, nil
}

func (c *relayClient) SendPayment(ctx context.Context, paymentRequest string) (string, error) {
	raw, err := c.rpc(ctx, "pay_invoice", map[string]string{"invoice": paymentRequest})
	if err != nil {
		return "", err
	}
	var res struct {
		Preimage string `json:"preimage"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("nwc: bad pay_invoice result: %w", err)
	}
	return res.Preimage, nil
}

func (c *relayClient) MakeInvoice(ctx context.Context, amountSats int64, memo string) (*Invoice, error) {
	params := map[string]any{
		"amount":      amountSats * 1000, // msats on the wire
		"description": memo,
	}
	raw, err := c.rpc(ctx, "make_invoice", params)
	if err != nil {
		return nil, err
	}
	var res struct {
		Invoice     string `json:"invoice"`
		PaymentHash string `json:"payment_hash"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("nwc: bad make_invoice result: %w", err)
	}
	return &Invoice{PaymentRequest: res.Invoice, RHash: res.PaymentHash}, nil
}

func (c *relayClient) LookupInvoice(ctx context.Context, paymentHash string) (bool, error) {
	raw, err := c.rpc(ctx, "lookup_invoice", map[string]string{"payment_hash": paymentHash})
	if err != nil {
		return false, err
	}
	var res struct {
		SettledAt *int64 `json:"settled_at"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return false, fmt.Errorf("nwc: bad lookup_invoice result: %w", err)
	}
	return res.SettledAt != nil, nil
}

// Close tears down the relay connection. Cached clients are closed on
// eviction; in-flight calls fail with ErrRelayClosed.
func (c *relayClient) Close() error {
	c.cancelRead()
	c.failPending()
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

// rpc encrypts a request, publishes it, and waits for the matching
// response event. The correlation key is the request event id, carried
// back in the response's "e" tag.
func (c *relayClient) rpc(ctx context.Context, method string, params any) (json.RawMessage, error) {
	body, err := json.Marshal(nwcRequest{Method: method, Params: params})
	if err != nil {
		return nil, err
	}
	content, err := nip04Encrypt(c.sharedKey, body)
	if err != nil {
		return nil, err
	}

	ev := nostrEvent{
		Pubkey:    c.clientPub,
		CreatedAt: time.Now().Unix(),
		Kind:      kindNWCRequest,
		Tags:      [][]string{{"p", c.walletPub}},
		Content:   content,
	}
	if err := signEvent(c.priv, &ev); err != nil {
		return nil, err
	}

	ch := make(chan nwcResponse, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrRelayClosed
	}
	c.pending[ev.ID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, ev.ID)
		c.mu.Unlock()
	}()

	if err := c.writeJSON(ctx, []any{"EVENT", ev}); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrRelayClosed
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("nwc: wallet error %s: %s", resp.Error.Code, resp.Error.Message)
		}
		if resp.Result == nil {
			return nil, ErrNoResponse
		}
		return resp.Result, nil
	}
}

// subscribe asks the relay for response events addressed to us.
func (c *relayClient) subscribe(ctx context.Context) error {
	filter := map[string]any{
		"kinds": []int{kindNWCResponse},
		"#p":    []string{c.clientPub},
	}
	return c.writeJSON(ctx, []any{"REQ", relaySubID, filter})
}

func (c *relayClient) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *relayClient) readLoop(ctx context.Context) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			c.failPending()
			return
		}
		c.handleMessage(data)
	}
}

// handleMessage routes one relay frame. Only EVENT frames carry wallet
// responses; OK, EOSE and NOTICE are ignored.
func (c *relayClient) handleMessage(data []byte) {
	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil || len(frame) < 3 {
		return
	}
	var label string
	if err := json.Unmarshal(frame[0], &label); err != nil || label != "EVENT" {
		return
	}
	var ev nostrEvent
	if err := json.Unmarshal(frame[2], &ev); err != nil || ev.Kind != kindNWCResponse {
		return
	}

	requestID := ""
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == "e" {
			requestID = tag[1]
			break
		}
	}
	if requestID == "" {
		return
	}

	plaintext, err := nip04Decrypt(c.sharedKey, ev.Content)
	if err != nil {
		return
	}
	var resp nwcResponse
	if err := json.Unmarshal(plaintext, &resp); err != nil {
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[requestID]
	if ok {
		delete(c.pending, requestID)
	}
	c.mu.Unlock()
	if ok {
		ch <- resp
	}
}

// failPending marks the client dead and wakes every in-flight call.
// Closed channels read as "relay gone" in rpc.
func (c *relayClient) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// signEvent fills in the event id (sha256 of the canonical nostr
// serialization) and its BIP-340 signature.
func signEvent(priv *secp256k1.PrivateKey, ev *nostrEvent) error {
	ser, err := json.Marshal([]any{0, ev.Pubkey, ev.CreatedAt, ev.Kind, ev.Tags, ev.Content})
	if err != nil {
		return err
	}
	digest := sha256.Sum256(ser)
	ev.ID = hex.EncodeToString(digest[:])

	sig, err := schnorr.Sign(priv, digest[:])
	if err != nil {
		return err
	}
	ev.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}

// nip04SharedKey derives the NIP-04 conversation key: the x coordinate
// of the ECDH point between our secret and the wallet pubkey.
func nip04SharedKey(priv *secp256k1.PrivateKey, walletPubHex string) ([]byte, error) {
	pubBytes, err := hex.DecodeString(walletPubHex)
	if err != nil || len(pubBytes) != 32 {
		return nil, ErrShortPubkey
	}
	pub, err := secp256k1.ParsePubKey(append([]byte{0x02}, pubBytes...))
	if err != nil {
		return nil, ErrShortPubkey
	}

	var point secp256k1.JacobianPoint
	pub.AsJacobian(&point)
	secp256k1.ScalarMultNonConst(&priv.Key, &point, &point)
	point.ToAffine()
	x := point.X.Bytes()
	return x[:], nil
}

// nip04Encrypt is AES-256-CBC with a random IV, encoded as
// base64(ciphertext)?iv=base64(iv) per NIP-04.
func nip04Encrypt(key, plaintext []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return base64.StdEncoding.EncodeToString(ciphertext) + "?iv=" + base64.StdEncoding.EncodeToString(iv), nil
}

func nip04Decrypt(key []byte, content string) ([]byte, error) {
	i := strings.LastIndex(content, "?iv=")
	if i < 0 {
		return nil, errBadCiphertext
	}
	ciphertext, err := base64.StdEncoding.DecodeString(content[:i])
	if err != nil {
		return nil, errBadCiphertext
	}
	iv, err := base64.StdEncoding.DecodeString(content[i+4:])
	if err != nil || len(iv) != aes.BlockSize || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errBadCiphertext
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return pkcs7Unpad(plaintext, aes.BlockSize)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+n)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errBadCiphertext
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, errBadCiphertext
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errBadCiphertext
		}
	}
	return data[:len(data)-n], nil
}
