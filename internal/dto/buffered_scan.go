package dto

import "time"

// BufferedScan holds a scan event before it is flushed to the database.
type BufferedScan struct {
	Payload      string
	Token        string
	SessionID    string
	Source       string
	Method       string
	Verification string
	ReceivedAt   time.Time
}
