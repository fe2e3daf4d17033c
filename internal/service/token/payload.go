package token

import "strings"

// Prefix is the literal first field of a rotating-code payload.
const Prefix = "bankid"

const fieldCount = 4

// Parsed is a rotating-code payload split into its fields.
type Parsed struct {
	Token   string
	Elapsed string
	Code    string
}

// Parse splits payload into token, elapsed seconds and code. It only
// succeeds for exactly four dot-separated fields starting with Prefix;
// anything else is an opaque token.
func Parse(payload string) (Parsed, bool) {
	parts := strings.Split(payload, ".")
	if len(parts) != fieldCount || parts[0] != Prefix {
		return Parsed{}, false
	}
	return Parsed{Token: parts[1], Elapsed: parts[2], Code: parts[3]}, true
}

// Normalize returns the token of a rotating-code payload, or payload
// unchanged when it does not have that shape.
func Normalize(payload string) string {
	if p, ok := Parse(payload); ok {
		return p.Token
	}
	return payload
}
