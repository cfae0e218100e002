// Package bolt11 decodes BOLT11 Lightning payment requests.
//
// It deliberately implements only the subset the platform needs: network
// prefix, amount, timestamp, description and expiry. Signature verification
// and payment-hash recovery from the signature are not performed.
package bolt11

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// charset is the bech32 alphabet; index = 5-bit value.
const charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

// signatureLen is the number of bech32 characters occupied by the
// 520-bit signature at the end of the data part.
const signatureLen = 104

// Tagged field types we recognize. Everything else, including the
// payment hash ('p'), is skipped.
const (
	tagDescription = 13 // 'd'
	tagExpiry      = 6  // 'x'
)

var networkPrefixes = []string{"lnbcrt", "lnbc", "lntb"}

var amountRE = regexp.MustCompile(`^(\d+)([munp])?$`)

// Invoice is the decoded view of a payment request. Optional fields are
// nil when absent; AmountSats == nil on a valid invoice means the payer
// chooses the amount.
type Invoice struct {
	AmountSats    *int64
	Description   *string
	PaymentHash   *string // not recovered, always nil
	ExpirySeconds *int64
	Timestamp     *int64
	Valid         bool
}

// Decode parses a BOLT11 invoice string. It never panics: any malformed
// input yields the zero Invoice with Valid=false.
func Decode(invoice string) Invoice {
	var inv Invoice

	s := strings.ToLower(strings.TrimSpace(invoice))

	var prefix string
	for _, p := range networkPrefixes {
		if strings.HasPrefix(s, p) {
			prefix = p
			break
		}
	}
	if prefix == "" {
		return inv
	}

	// The separator is the LAST '1'. The amount portion may contain
	// digits, and the bech32 data alphabet excludes '1', so only the
	// last occurrence is unambiguous.
	sep := strings.LastIndexByte(s, '1')
	if sep < len(prefix) {
		return inv
	}

	amountField := s[len(prefix):sep]
	amountSats, amountOK := parseAmount(amountField)

	values, ok := toGroups(s[sep+1:])
	if !ok {
		return inv
	}
	if len(values) < signatureLen+1 {
		return inv
	}
	values = values[:len(values)-signatureLen]
	if len(values) < 7 {
		return inv
	}

	// First 7 groups (35 bits) are the invoice timestamp.
	var ts int64
	for _, v := range values[:7] {
		ts = ts*32 + int64(v)
	}
	inv.Timestamp = &ts

	walkTaggedFields(values[7:], &inv)

	// A bad amount field poisons the result, but the rest of the body
	// is still parsed above so callers can inspect it.
	inv.Valid = amountOK
	inv.AmountSats = amountSats
	return inv
}

// ExtractAmount returns the invoice amount in satoshis, or nil for an
// any-amount invoice or an invalid one.
func ExtractAmount(invoice string) *int64 {
	return Decode(invoice).AmountSats
}

// ExtractDescription returns the invoice description, if present.
func ExtractDescription(invoice string) *string {
	return Decode(invoice).Description
}

// Validate reports whether the string decodes as a structurally valid
// invoice.
func Validate(invoice string) bool {
	return Decode(invoice).Valid
}

// TruncateForDisplay shortens a long invoice string for logs and UI,
// keeping prefixLen leading and suffixLen trailing characters.
func TruncateForDisplay(invoice string, prefixLen, suffixLen int) string {
	if prefixLen < 0 {
		prefixLen = 0
	}
	if suffixLen < 0 {
		suffixLen = 0
	}
	if len(invoice) <= prefixLen+suffixLen {
		return invoice
	}
	return invoice[:prefixLen] + "..." + invoice[len(invoice)-suffixLen:]
}

// parseAmount converts the human-readable amount field to satoshis.
// An empty field is a valid any-amount invoice. Returns ok=false when
// the field is non-empty and does not conform.
func parseAmount(field string) (*int64, bool) {
	if field == "" {
		return nil, true
	}
	m := amountRE.FindStringSubmatch(field)
	if m == nil {
		return nil, false
	}
	value, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return nil, false
	}

	// A value whose satoshi conversion overflows int64 is as
	// non-conforming as a character the amount regex rejects.
	var sats int64
	switch m[2] {
	case "":
		if value > math.MaxInt64/100_000_000 {
			return nil, false
		}
		sats = value * 100_000_000 // whole BTC
	case "m":
		if value > math.MaxInt64/100_000 {
			return nil, false
		}
		sats = value * 100_000
	case "u":
		if value > math.MaxInt64/100 {
			return nil, false
		}
		sats = value * 100
	case "n":
		sats = (value + 9) / 10 // round up sub-sat remainders
	case "p":
		sats = (value + 9999) / 10_000
	}
	return &sats, true
}

// toGroups maps bech32 characters to their 5-bit values. Any character
// outside the alphabet invalidates the whole data part.
func toGroups(data string) ([]byte, bool) {
	values := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		idx := strings.IndexByte(charset, data[i])
		if idx < 0 {
			return nil, false
		}
		values = append(values, byte(idx))
	}
	return values, true
}

// packBits repacks 5-bit groups into bytes, MSB first. Trailing bits
// that do not fill a byte are dropped.
func packBits(groups []byte) []byte {
	var (
		acc  uint32
		bits uint
		out  []byte
	)
	for _, g := range groups {
		acc = acc<<5 | uint32(g)
		bits += 5
		for bits >= 8 {
			bits -= 8
			out = append(out, byte(acc>>bits))
		}
	}
	return out
}

// walkTaggedFields reads tag/length/payload triples and fills in the
// fields we care about. A truncated field stops the walk; it does not
// invalidate what was already decoded.
func walkTaggedFields(values []byte, inv *Invoice) {
	i := 0
	for i+3 <= len(values) {
		tag := values[i]
		dataLen := int(values[i+1])*32 + int(values[i+2])
		if i+3+dataLen > len(values) {
			return
		}
		payload := values[i+3 : i+3+dataLen]

		switch tag {
		case tagDescription:
			desc := string(packBits(payload))
			inv.Description = &desc
		case tagExpiry:
			var exp int64
			for _, v := range payload {
				exp = exp*32 + int64(v)
			}
			inv.ExpirySeconds = &exp
		}

		i += 3 + dataLen
	}
}
