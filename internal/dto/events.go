// Event envelope and payloads exchanged over the websocket channel.
package dto

import "encoding/json"

// Event names used on the websocket channel.
const (
	EventQRCodeScanned      = "qr_code_scanned"
	EventImageUpdated       = "update_qr_code_image"
	EventRequestQRData      = "request_qr_data"
	EventRequestFreshQRData = "request_fresh_qr_data"
	EventStartRotation      = "start_qr_rotation"
	EventRefreshQRCode      = "refresh_qr_code"
	EventBankIDToken        = "bankid_token"
	EventError              = "error"
)

// Envelope wraps every websocket message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an envelope for event.
func NewEnvelope(event string, data interface{}) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// DecodedPayload is sent by the scanner after a detection.
type DecodedPayload struct {
	Data   string `json:"data"`
	Method string `json:"method,omitempty"`
}

// ImageUpdated is fanned out to viewers whenever a code is (re)rendered.
// Token is duplicated under AutostartToken for older viewers.
type ImageUpdated struct {
	Image          string `json:"image"`
	Payload        string `json:"payload"`
	Token          string `json:"token,omitempty"`
	AutostartToken string `json:"autostarttoken,omitempty"`
	SessionID      string `json:"sessionId,omitempty"`
}

// SessionRequest carries the session a rotation request refers to.
type SessionRequest struct {
	SessionID string `json:"sessionId"`
}

// RotatingToken announces a freshly extracted token.
type RotatingToken struct {
	Token string `json:"token"`
}

// ErrorMessage is sent back to a single connection on a bad request.
type ErrorMessage struct {
	Error string `json:"error"`
}
