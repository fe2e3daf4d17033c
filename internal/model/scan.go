package model

import "time"

// ScanRecord is one ingested payload in the scan log.
type ScanRecord struct {
	ID        int64  `json:"id"`
	Payload   string `json:"payload"`
	Token     string `json:"token,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Source    string `json:"source"`
	Method    string `json:"method,omitempty"`
	// "valid" or "invalid" for codes of a known session, empty otherwise
	Verification string    `json:"verification,omitempty"`
	ReceivedAt   time.Time `json:"received_at"`
}

// ScanFilter narrows scan log queries.
type ScanFilter struct {
	Token  string
	Source string
	Since  time.Time
	Limit  int
	Offset int
}
