package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"qrrelay/internal/config"
	"qrrelay/internal/dto"
	"qrrelay/internal/logger"
	"qrrelay/internal/service/token"

	"github.com/gorilla/websocket"
)

func setupTestApp(t *testing.T) *httptest.Server {
	t.Helper()

	dir := t.TempDir()
	log := logger.NewLogger(filepath.Join(dir, "logs"))
	cfg := &config.Config{
		PasswordHash:      config.HashPassword("pw"),
		DatabasePath:      filepath.Join(dir, "data", "scans.db"),
		SessionTTL:        10 * time.Minute,
		RotationInterval:  50 * time.Millisecond,
		RotationDuration:  200 * time.Millisecond,
		ScanFlushInterval: time.Hour,
		ScanBufferLimit:   100,
		QRPixelsPerModule: 4,
		ViewerReadLimit:   4096,
		ScannerReadLimit:  config.DefaultScannerReadLimit,
	}

	application := NewApp(cfg, log)
	ctx, cancel := context.WithCancel(context.Background())
	application.Start(ctx)

	server := httptest.NewServer(application.Handler())
	t.Cleanup(func() {
		server.Close()
		application.Close()
		cancel()
		log.Close()
	})
	return server
}

func dial(t *testing.T, server *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitForViewers polls /health until the hub has registered n viewers.
func waitForViewers(t *testing.T, server *httptest.Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(server.URL + "/health")
		if err == nil {
			var body struct {
				Viewers int `json:"viewers"`
			}
			json.NewDecoder(resp.Body).Decode(&body)
			resp.Body.Close()
			if body.Viewers == n {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %d viewers", n)
}

func send(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	message, err := dto.NewEnvelope(event, data)
	if err != nil {
		t.Fatalf("Failed to encode %s: %v", event, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
		t.Fatalf("Failed to send %s: %v", event, err)
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) dto.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var env dto.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		t.Fatalf("Invalid envelope %s: %v", message, err)
	}
	return env
}

func TestScannerPayloadReachesViewer(t *testing.T) {
	server := setupTestApp(t)

	viewer := dial(t, server, "/ws/view")
	waitForViewers(t, server, 1)
	scanner := dial(t, server, "/ws/scanner")

	send(t, scanner, dto.EventQRCodeScanned, dto.DecodedPayload{Data: "bankid.abc-123.7.deadbeef", Method: "zxing"})

	env := readEnvelope(t, viewer)
	if env.Event != dto.EventImageUpdated {
		t.Fatalf("First event = %s, expected %s", env.Event, dto.EventImageUpdated)
	}
	var update dto.ImageUpdated
	json.Unmarshal(env.Data, &update)
	if update.Payload != "bankid.abc-123.7.deadbeef" || update.Token != "abc-123" || update.Image == "" {
		t.Errorf("Unexpected update %+v", update)
	}

	env = readEnvelope(t, viewer)
	if env.Event != dto.EventBankIDToken {
		t.Fatalf("Second event = %s, expected %s", env.Event, dto.EventBankIDToken)
	}
	var tok dto.RotatingToken
	json.Unmarshal(env.Data, &tok)
	if tok.Token != "abc-123" {
		t.Errorf("Token = %s, expected abc-123", tok.Token)
	}
}

func TestOpaquePayloadHasNoTokenEvent(t *testing.T) {
	server := setupTestApp(t)

	viewer := dial(t, server, "/ws/view")
	waitForViewers(t, server, 1)
	scanner := dial(t, server, "/ws/scanner")

	send(t, scanner, dto.EventQRCodeScanned, dto.DecodedPayload{Data: "https://example.com"})
	send(t, scanner, dto.EventQRCodeScanned, dto.DecodedPayload{Data: "second"})

	for _, expected := range []string{"https://example.com", "second"} {
		env := readEnvelope(t, viewer)
		if env.Event != dto.EventImageUpdated {
			t.Fatalf("Event = %s, expected only image updates", env.Event)
		}
		var update dto.ImageUpdated
		json.Unmarshal(env.Data, &update)
		if update.Payload != expected || update.Token != "" {
			t.Errorf("Unexpected update %+v", update)
		}
	}
}

func TestScannerRejectsUnknownEvent(t *testing.T) {
	server := setupTestApp(t)
	scanner := dial(t, server, "/ws/scanner")

	send(t, scanner, dto.EventStartRotation, dto.SessionRequest{SessionID: "x"})

	env := readEnvelope(t, scanner)
	if env.Event != dto.EventError {
		t.Errorf("Event = %s, expected %s", env.Event, dto.EventError)
	}
}

func TestRotationSessionsAreIsolated(t *testing.T) {
	server := setupTestApp(t)

	viewerA := dial(t, server, "/ws/view")
	viewerB := dial(t, server, "/ws/view")
	waitForViewers(t, server, 2)

	send(t, viewerA, dto.EventStartRotation, dto.SessionRequest{SessionID: "session-a"})
	send(t, viewerB, dto.EventStartRotation, dto.SessionRequest{SessionID: "session-b"})

	tokens := map[string]string{}
	deadline := time.Now().Add(2 * time.Second)
	for len(tokens) < 2 && time.Now().Before(deadline) {
		env := readEnvelope(t, viewerA)
		if env.Event != dto.EventImageUpdated {
			continue
		}
		var update dto.ImageUpdated
		json.Unmarshal(env.Data, &update)
		if !strings.HasPrefix(update.Payload, "bankid."+update.Token+".") {
			t.Errorf("Payload %s does not carry token %s", update.Payload, update.Token)
		}
		if prev, ok := tokens[update.SessionID]; ok && prev != update.Token {
			t.Errorf("Session %s changed token from %s to %s", update.SessionID, prev, update.Token)
		}
		tokens[update.SessionID] = update.Token
	}

	if len(tokens) != 2 {
		t.Fatalf("Expected updates for 2 sessions, got %v", tokens)
	}
	if tokens["session-a"] == "" || tokens["session-a"] == tokens["session-b"] {
		t.Errorf("Sessions should have distinct tokens, got %v", tokens)
	}
}

func TestHTTPCodeMatchesSession(t *testing.T) {
	server := setupTestApp(t)

	resp, err := http.Post(server.URL+"/api/bankid/start", "application/json", strings.NewReader(`{"platform":"android"}`))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	var started dto.StartResponse
	json.NewDecoder(resp.Body).Decode(&started)
	resp.Body.Close()

	resp, err = http.Get(server.URL + "/api/bankid/qrcode/" + started.SessionID)
	if err != nil {
		t.Fatalf("QR code failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Status = %d, expected 200", resp.StatusCode)
	}

	var code dto.QRCodeResponse
	json.NewDecoder(resp.Body).Decode(&code)
	if code.AutostartToken != started.AutostartToken {
		t.Errorf("Token = %s, expected %s", code.AutostartToken, started.AutostartToken)
	}
	if !strings.HasPrefix(started.AutostartURL, "https://app.bankid.com/?autostarttoken=") {
		t.Errorf("autostart_url = %s", started.AutostartURL)
	}
}

func TestAdminScansAfterLogin(t *testing.T) {
	server := setupTestApp(t)

	resp, err := http.PostForm(server.URL+"/generate_bankid_qr", nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	resp.Body.Close()

	resp, err = http.PostForm(server.URL+"/auth/login", map[string][]string{"password": {"pw"}})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	resp.Body.Close()
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		t.Fatal("Login should set a cookie")
	}

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/api/scans?source=http", nil)
	req.AddCookie(cookies[0])
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Scans failed: %v", err)
	}
	defer resp.Body.Close()

	var data struct {
		Length int `json:"length"`
	}
	json.NewDecoder(resp.Body).Decode(&data)
	if data.Length != 1 {
		t.Errorf("Length = %d, expected 1 http scan", data.Length)
	}
}

func TestScannerAcceptsFullCapacityCode(t *testing.T) {
	server := setupTestApp(t)

	viewer := dial(t, server, "/ws/view")
	waitForViewers(t, server, 1)
	scanner := dial(t, server, "/ws/scanner")

	// Największy kod QR: 7089 cyfr przy korekcji L
	digits := strings.Repeat("0123456789", 709)[:7089]
	send(t, scanner, dto.EventQRCodeScanned, dto.DecodedPayload{Data: digits, Method: "opencv"})

	env := readEnvelope(t, viewer)
	if env.Event != dto.EventImageUpdated {
		t.Fatalf("Event = %s, expected %s", env.Event, dto.EventImageUpdated)
	}
	var update dto.ImageUpdated
	json.Unmarshal(env.Data, &update)
	if update.Payload != digits || update.Image == "" {
		t.Errorf("Full-capacity payload was not relayed (payload length %d)", len(update.Payload))
	}

	// Połączenie skanera musi przetrwać
	send(t, scanner, dto.EventQRCodeScanned, dto.DecodedPayload{Data: "after"})
	env = readEnvelope(t, viewer)
	json.Unmarshal(env.Data, &update)
	if update.Payload != "after" {
		t.Errorf("Payload = %q, expected the scanner connection to stay open", update.Payload)
	}
}

func TestRelayedTokenAndHTTPSessionStayApart(t *testing.T) {
	server := setupTestApp(t)

	viewer := dial(t, server, "/ws/view")
	waitForViewers(t, server, 1)
	scanner := dial(t, server, "/ws/scanner")

	payload := "bankid.ABCD.3." + token.Code("relayed-secret", 3)
	send(t, scanner, dto.EventQRCodeScanned, dto.DecodedPayload{Data: payload, Method: "opencv"})

	env := readEnvelope(t, viewer)
	var update dto.ImageUpdated
	json.Unmarshal(env.Data, &update)
	if env.Event != dto.EventImageUpdated || update.Token != "ABCD" || update.Payload != payload {
		t.Fatalf("Unexpected %s %+v", env.Event, update)
	}
	env = readEnvelope(t, viewer)
	var tok dto.RotatingToken
	json.Unmarshal(env.Data, &tok)
	if env.Event != dto.EventBankIDToken || tok.Token != "ABCD" {
		t.Fatalf("Unexpected %s %+v", env.Event, tok)
	}

	resp, err := http.Post(server.URL+"/api/bankid/start", "application/json", nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	var started dto.StartResponse
	json.NewDecoder(resp.Body).Decode(&started)
	resp.Body.Close()

	resp, err = http.Get(server.URL + "/api/bankid/qrcode/" + started.SessionID)
	if err != nil {
		t.Fatalf("QR code failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Status = %d, expected 200", resp.StatusCode)
	}

	var code dto.QRCodeResponse
	json.NewDecoder(resp.Body).Decode(&code)
	if code.AutostartToken == "" || code.AutostartToken == "ABCD" {
		t.Errorf("Fresh session token = %q, expected a new token", code.AutostartToken)
	}
	if !strings.HasPrefix(code.QRData, "bankid."+code.AutostartToken+".") {
		t.Errorf("qr_data %s does not carry the session token", code.QRData)
	}
}
