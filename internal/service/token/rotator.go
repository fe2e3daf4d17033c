package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"qrrelay/internal/model"
)

// Code derives the authentication code for elapsed seconds:
// hex(HMAC-SHA256(key=secret, message=decimal(elapsed))).
func Code(secret string, elapsed int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(elapsed, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether code is the one Code would produce.
func Verify(secret string, elapsed int64, code string) bool {
	expected := Code(secret, elapsed)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(code)))
}

// Elapsed returns whole seconds between orderTime and now, truncated.
// Clock skew never yields a negative value.
func Elapsed(orderTime, now time.Time) int64 {
	d := now.Sub(orderTime)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

// FormatPayload assembles bankid.<token>.<elapsed>.<code> for session.
func FormatPayload(session model.ScanSession, elapsed int64) string {
	return strings.Join([]string{
		Prefix,
		session.Token,
		strconv.FormatInt(elapsed, 10),
		Code(session.Secret, elapsed),
	}, ".")
}

// Current formats the payload of session as of now.
func Current(session model.ScanSession, now time.Time) (string, int64) {
	elapsed := Elapsed(session.OrderTime, now)
	return FormatPayload(session, elapsed), elapsed
}
