package model

import "time"

// ScanSession binds a token/secret pair to the time its rotating code
// is measured from. Token and Secret never change after creation.
type ScanSession struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	Secret    string    `json:"-"`
	OrderTime time.Time `json:"order_time"`
	CreatedAt time.Time `json:"created_at"`
}

// Age returns how long the session has existed at now.
func (s ScanSession) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// Expired reports whether the session outlived ttl at now.
func (s ScanSession) Expired(now time.Time, ttl time.Duration) bool {
	return s.Age(now) > ttl
}
