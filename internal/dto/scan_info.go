package dto

import (
	"encoding/json"
	"time"
)

// ScanInfo is one scan log entry as shown in the admin view.
type ScanInfo struct {
	ID           int64     `json:"id"`
	Payload      string    `json:"payload"`
	Token        string    `json:"token,omitempty"`
	Source       string    `json:"source"`
	Method       string    `json:"method,omitempty"`
	Verification string    `json:"verification,omitempty"`
	ReceivedAt   time.Time `json:"receivedAt"`
}

// MarshalJSON formats ReceivedAt as date and time-of-day like the gallery views.
func (s ScanInfo) MarshalJSON() ([]byte, error) {
	type Alias ScanInfo
	return json.Marshal(&struct {
		ReceivedAt string `json:"receivedAt"`
		Date       string `json:"date"`
		TimeOfDay  string `json:"timeOfDay"`
		Alias
	}{
		ReceivedAt: s.ReceivedAt.Format(time.RFC3339),
		Date:       s.ReceivedAt.Format("02-01-2006"),
		TimeOfDay:  s.ReceivedAt.Format("15:04:05"),
		Alias:      (Alias)(s),
	})
}
