package token

import (
	"strings"
	"testing"
	"time"

	"qrrelay/internal/model"
)

func TestCode_KnownVector(t *testing.T) {
	got := Code("key", 0)
	expected := "089c386a9149b5cce5972bfe0f05c8d6e92de22e902457b3a23a69a79f85fa97"
	if got != expected {
		t.Errorf("Code(key, 0) = %s, expected %s", got, expected)
	}
}

func TestCode_Deterministic(t *testing.T) {
	secret := "0f6a0c4e-2a43-4a8e-9d5f-1a2b3c4d5e6f"

	first := Code(secret, 7)
	second := Code(secret, 7)
	if first != second {
		t.Fatalf("Code is not deterministic: %s != %s", first, second)
	}
	if first != "8deab4775d62a1da525d8afffe2844c17be80d6f7f59b8c356da2d9c976cf8cd" {
		t.Errorf("Unexpected code %s", first)
	}
	if Code(secret, 8) == first {
		t.Error("Different elapsed seconds should give different codes")
	}
	if Code("other-secret", 7) == first {
		t.Error("Different secrets should give different codes")
	}
}

func TestVerify(t *testing.T) {
	code := Code("s3cret", 12)

	if !Verify("s3cret", 12, code) {
		t.Error("Expected issued code to verify")
	}
	if !Verify("s3cret", 12, strings.ToUpper(code)) {
		t.Error("Expected upper-case hex to verify")
	}
	if Verify("s3cret", 13, code) {
		t.Error("Code must not verify for another second")
	}
}

func TestElapsed_TruncatesToWholeSeconds(t *testing.T) {
	order := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		offset   time.Duration
		expected int64
	}{
		{0, 0},
		{999 * time.Millisecond, 0},
		{time.Second, 1},
		{3*time.Second + 900*time.Millisecond, 3},
		{-2 * time.Second, 0},
	}

	for _, tt := range tests {
		if got := Elapsed(order, order.Add(tt.offset)); got != tt.expected {
			t.Errorf("Elapsed(+%v) = %d, expected %d", tt.offset, got, tt.expected)
		}
	}
}

func TestCurrent_SameSecondSameCode(t *testing.T) {
	order := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	session := model.ScanSession{Token: "T123", Secret: "abc", OrderTime: order, CreatedAt: order}

	first, _ := Current(session, order.Add(5*time.Second+100*time.Millisecond))
	second, _ := Current(session, order.Add(5*time.Second+800*time.Millisecond))
	if first != second {
		t.Errorf("Calls within the same second differ: %s vs %s", first, second)
	}
}

func TestFormatPayload(t *testing.T) {
	session := model.ScanSession{Token: "T123", Secret: "abc"}

	payload := FormatPayload(session, 7)
	expected := "bankid.T123.7." + Code("abc", 7)
	if payload != expected {
		t.Errorf("FormatPayload = %s, expected %s", payload, expected)
	}

	parsed, ok := Parse(payload)
	if !ok {
		t.Fatal("Formatted payload should parse")
	}
	if parsed.Token != "T123" || parsed.Elapsed != "7" || len(parsed.Code) != 64 {
		t.Errorf("Unexpected parse result %+v", parsed)
	}
}

func TestNormalize(t *testing.T) {
	hmacHex := strings.Repeat("a", 64)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"well formed", "bankid.T123.7." + hmacHex, "T123"},
		{"two fields", "bankid.onlytwo", "bankid.onlytwo"},
		{"five fields", "bankid.a.b.c.d", "bankid.a.b.c.d"},
		{"wrong prefix", "other.T123.7." + hmacHex, "other.T123.7." + hmacHex},
		{"plain url", "https://example.com", "https://example.com"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.expected {
				t.Errorf("Normalize(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParse(t *testing.T) {
	p, ok := Parse("bankid.ABCD.3.ff")
	if !ok || p.Token != "ABCD" || p.Elapsed != "3" || p.Code != "ff" {
		t.Errorf("Parse = %+v, %v", p, ok)
	}
	if _, ok := Parse("bankid.onlytwo"); ok {
		t.Error("Malformed payload should not parse")
	}
}
