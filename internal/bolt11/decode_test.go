package bolt11

import (
	"strings"
	"testing"
)

// buildInvoice assembles a syntactically valid invoice from raw 5-bit
// groups: 7 timestamp groups, tagged fields, then a filler signature.
func buildInvoice(prefix, amount string, ts int64, fields ...[]byte) string {
	groups := make([]byte, 7)
	for i := 6; i >= 0; i-- {
		groups[i] = byte(ts % 32)
		ts /= 32
	}
	for _, f := range fields {
		groups = append(groups, f...)
	}

	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(amount)
	b.WriteByte('1')
	for _, g := range groups {
		b.WriteByte(charset[g])
	}
	// signature filler
	for i := 0; i < signatureLen; i++ {
		b.WriteByte(charset[i%32])
	}
	return b.String()
}

// taggedField builds a tag/length/payload triple.
func taggedField(tag byte, payload []byte) []byte {
	f := []byte{tag, byte(len(payload) / 32), byte(len(payload) % 32)}
	return append(f, payload...)
}

// descriptionField packs a UTF-8 string into 5-bit groups under tag 13.
func descriptionField(s string) []byte {
	var (
		groups []byte
		acc    uint32
		bits   uint
	)
	for _, b := range []byte(s) {
		acc = acc<<8 | uint32(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			groups = append(groups, byte(acc>>bits&0x1f))
		}
	}
	if bits > 0 {
		groups = append(groups, byte(acc<<(5-bits)&0x1f))
	}
	return taggedField(tagDescription, groups)
}

func expiryField(seconds int64) []byte {
	var groups []byte
	for seconds > 0 {
		groups = append([]byte{byte(seconds % 32)}, groups...)
		seconds /= 32
	}
	return taggedField(tagExpiry, groups)
}

func TestDecodeAmounts(t *testing.T) {
	tests := []struct {
		amount string
		want   int64
	}{
		{"100u", 10_000},
		{"1m", 100_000},
		{"1n", 1},  // ceil(1/10)
		{"1p", 1},  // ceil(1/10000)
		{"10n", 1}, // exactly 1 sat
		{"25n", 3}, // ceil(25/10)
		{"3000n", 300},
		{"20000p", 2},
		{"1", 100_000_000},
		{"2500u", 250_000},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			inv := Decode(buildInvoice("lnbc", tt.amount, 1700000000))
			if !inv.Valid {
				t.Fatalf("Decode(%q...) invalid, want valid", tt.amount)
			}
			if inv.AmountSats == nil {
				t.Fatalf("AmountSats = nil, want %d", tt.want)
			}
			if *inv.AmountSats != tt.want {
				t.Errorf("AmountSats = %d, want %d", *inv.AmountSats, tt.want)
			}
		})
	}
}

func TestDecodeAnyAmount(t *testing.T) {
	inv := Decode(buildInvoice("lnbc", "", 1700000000))
	if !inv.Valid {
		t.Fatal("any-amount invoice should be valid")
	}
	if inv.AmountSats != nil {
		t.Errorf("AmountSats = %d, want nil for any-amount", *inv.AmountSats)
	}
}

func TestDecodeNetworkPrefixes(t *testing.T) {
	for _, prefix := range []string{"lnbc", "lntb", "lnbcrt"} {
		t.Run(prefix, func(t *testing.T) {
			inv := Decode(buildInvoice(prefix, "100u", 1700000000))
			if !inv.Valid {
				t.Errorf("prefix %s should decode valid", prefix)
			}
		})
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	tests := []string{
		"",
		"hello",
		"lnltc100u1qqqqqq",                     // unknown network
		"bc1qxyz",                              // on-chain address
		"lnbc",                                 // no separator after prefix
		"lnbc100u",                             // no separator at all... ('1' in amount, at prefix boundary trick below)
		"lnbc100u1qqq",                         // data far too short
		"LNBC100U1" + strings.Repeat("b", 300), // 'b' not in charset
	}

	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			inv := Decode(in)
			if inv.Valid {
				t.Errorf("Decode(%q).Valid = true, want false", in)
			}
			if inv.AmountSats != nil || inv.Description != nil || inv.ExpirySeconds != nil {
				t.Errorf("Decode(%q) should leave optional fields nil", in)
			}
		})
	}
}

func TestDecodeBadAmountFieldStillParsesBody(t *testing.T) {
	// Structure is fine but the amount field does not conform: the
	// result is flagged invalid while body fields still decode.
	inv := Decode(buildInvoice("lnbc", "12x", 1700000000, descriptionField("hi")))
	if inv.Valid {
		t.Error("non-conforming amount must flag the invoice invalid")
	}
	if inv.Timestamp == nil || *inv.Timestamp != 1700000000 {
		t.Error("timestamp should still be decoded")
	}
	if inv.Description == nil || *inv.Description != "hi" {
		t.Error("description should still be decoded")
	}
}

func TestDecodeRejectsOverflowingAmount(t *testing.T) {
	// Each value is in range for its unit regex but overflows int64
	// once converted to satoshis.
	for _, amount := range []string{"99999999999", "999999999999999m", "999999999999999999u"} {
		t.Run(amount, func(t *testing.T) {
			inv := Decode(buildInvoice("lnbc", amount, 1700000000))
			if inv.Valid {
				t.Error("overflowing amount must flag the invoice invalid")
			}
			if inv.AmountSats != nil {
				t.Errorf("AmountSats = %d, want nil", *inv.AmountSats)
			}
		})
	}
}

func TestDecodeTimestamp(t *testing.T) {
	inv := Decode(buildInvoice("lnbc", "100u", 1695000000))
	if inv.Timestamp == nil {
		t.Fatal("Timestamp = nil")
	}
	if *inv.Timestamp != 1695000000 {
		t.Errorf("Timestamp = %d, want 1695000000", *inv.Timestamp)
	}
}

func TestDecodeDescriptionAndExpiry(t *testing.T) {
	inv := Decode(buildInvoice("lnbc", "5m", 1700000000,
		descriptionField("fix login bug"),
		expiryField(3600),
	))
	if !inv.Valid {
		t.Fatal("invoice should be valid")
	}
	if inv.Description == nil || *inv.Description != "fix login bug" {
		t.Errorf("Description = %v, want %q", inv.Description, "fix login bug")
	}
	if inv.ExpirySeconds == nil || *inv.ExpirySeconds != 3600 {
		t.Errorf("ExpirySeconds = %v, want 3600", inv.ExpirySeconds)
	}
}

func TestDecodeSkipsUnknownTags(t *testing.T) {
	// Tag 1 ('p', payment hash) is walked past, not extracted.
	hashPayload := make([]byte, 52)
	inv := Decode(buildInvoice("lnbc", "100u", 1700000000,
		taggedField(1, hashPayload),
		descriptionField("after hash"),
	))
	if !inv.Valid {
		t.Fatal("invoice should be valid")
	}
	if inv.PaymentHash != nil {
		t.Error("PaymentHash should never be populated")
	}
	if inv.Description == nil || *inv.Description != "after hash" {
		t.Error("fields after a skipped tag should still decode")
	}
}

func TestDecodeTruncatedTaggedFieldStopsWalk(t *testing.T) {
	// Declared length overruns the data: the walk stops, the invoice
	// stays valid.
	bad := []byte{tagDescription, 31, 31} // claims 1023 groups
	inv := Decode(buildInvoice("lnbc", "100u", 1700000000, bad))
	if !inv.Valid {
		t.Error("overrunning tagged field must not invalidate the invoice")
	}
	if inv.Description != nil {
		t.Error("truncated description must not be extracted")
	}
}

func TestDecodeIdempotent(t *testing.T) {
	in := buildInvoice("lnbc", "3000n", 1700000000, descriptionField("task"), expiryField(600))
	a := Decode(in)
	b := Decode(in)

	if a.Valid != b.Valid {
		t.Error("Valid differs between calls")
	}
	if (a.AmountSats == nil) != (b.AmountSats == nil) ||
		(a.AmountSats != nil && *a.AmountSats != *b.AmountSats) {
		t.Error("AmountSats differs between calls")
	}
	if (a.Description == nil) != (b.Description == nil) ||
		(a.Description != nil && *a.Description != *b.Description) {
		t.Error("Description differs between calls")
	}
}

func TestExtractAmount(t *testing.T) {
	amt := ExtractAmount(buildInvoice("lnbc", "3000n", 1700000000))
	if amt == nil || *amt != 300 {
		t.Errorf("ExtractAmount = %v, want 300", amt)
	}
	if ExtractAmount("not an invoice") != nil {
		t.Error("ExtractAmount on garbage should be nil")
	}
}

func TestValidate(t *testing.T) {
	if !Validate(buildInvoice("lntb", "100u", 1700000000)) {
		t.Error("well-formed invoice should validate")
	}
	if Validate("lnqq100u1xyz") {
		t.Error("unknown prefix should not validate")
	}
}

func TestTruncateForDisplay(t *testing.T) {
	long := buildInvoice("lnbc", "100u", 1700000000)
	got := TruncateForDisplay(long, 12, 6)
	if len(got) != 12+3+6 {
		t.Errorf("truncated length = %d, want %d", len(got), 12+3+6)
	}
	if !strings.HasPrefix(got, long[:12]) || !strings.HasSuffix(got, long[len(long)-6:]) {
		t.Errorf("TruncateForDisplay = %q, wrong edges", got)
	}

	short := "lnbc1qqq"
	if TruncateForDisplay(short, 10, 10) != short {
		t.Error("short strings should be returned unchanged")
	}
}
