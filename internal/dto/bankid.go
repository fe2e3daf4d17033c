package dto

// GenerateQRResponse answers POST /generate_bankid_qr.
type GenerateQRResponse struct {
	QRImage        string `json:"qr_image"`
	QRCodeData     string `json:"qr_code_data"`
	AutostartToken string `json:"autostarttoken"`
	SessionID      string `json:"session_id"`
}

// StartRequest is the body of POST /api/bankid/start.
type StartRequest struct {
	ReturnURL string `json:"returnUrl"`
	Platform  string `json:"platform"`
}

// StartResponse answers POST /api/bankid/start.
type StartResponse struct {
	SessionID      string `json:"session_id"`
	AutostartToken string `json:"autostart_token"`
	Nonce          string `json:"nonce"`
	AutostartURL   string `json:"autostart_url"`
}

// QRCodeResponse answers GET /api/bankid/qrcode/{sessionId}.
type QRCodeResponse struct {
	QRImage        string `json:"qr_image"`
	QRData         string `json:"qr_data"`
	AutostartToken string `json:"autostart_token"`
}

// StatusResponse answers GET /api/bankid/status/{sessionId}.
type StatusResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Elapsed  int64  `json:"elapsed"`
	Rotating bool   `json:"rotating"`
}

// ScansData is the payload of GET /api/scans.
type ScansData struct {
	Scans  []ScanInfo `json:"scans"`
	Length int        `json:"length"`
	Limit  int        `json:"limit"`
}
