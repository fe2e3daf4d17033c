package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"qrrelay/internal/dto"
	"qrrelay/internal/logger"
	"qrrelay/internal/service"
	"qrrelay/internal/service/token"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Session status values reported by the status endpoint.
const (
	StatusPending = "pending"
	StatusExpired = "expired"
)

const (
	mobileAutostartBase  = "https://app.bankid.com/"
	desktopAutostartBase = "bankid:///"
)

// GenerateQRHandler handles POST /generate_bankid_qr. The optional form
// field session_id selects the session; it is created when absent.
func GenerateQRHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid form data")
			return
		}

		manager.Sweep()
		code, err := manager.IssueCode(r.FormValue("session_id"))
		if err != nil {
			logger.Error("Failed to generate QR code: %v", err)
			writeError(w, http.StatusInternalServerError, "Failed to generate QR code")
			return
		}

		writeJSON(w, http.StatusOK, dto.GenerateQRResponse{
			QRImage:        code.Image,
			QRCodeData:     code.Payload,
			AutostartToken: code.Session.Token,
			SessionID:      code.Session.SessionID,
		})
	}
}

// StartHandler handles POST /api/bankid/start and always opens a new session.
func StartHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dto.StartRequest
		if r.Body != nil {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
				writeError(w, http.StatusBadRequest, "Invalid JSON body")
				return
			}
		}

		manager.Sweep()
		sess := manager.GetSessionStore().Create(time.Now())
		nonce := uuid.NewString()

		logger.Info("Started session %s for platform %q", sess.SessionID, req.Platform)
		writeJSON(w, http.StatusOK, dto.StartResponse{
			SessionID:      sess.SessionID,
			AutostartToken: sess.Token,
			Nonce:          nonce,
			AutostartURL:   AutostartURL(req.Platform, sess.Token, req.ReturnURL, nonce),
		})
	}
}

// AutostartURL builds the app launch link. Mobile platforms use the
// universal link, everything else the bankid:/// scheme. The redirect is
// only added when returnURL is set and carries the nonce in its fragment.
func AutostartURL(platform, autostartToken, returnURL, nonce string) string {
	base := desktopAutostartBase
	switch strings.ToLower(platform) {
	case "ios", "android":
		base = mobileAutostartBase
	}

	link := base + "?autostarttoken=" + url.QueryEscape(autostartToken)
	if returnURL != "" {
		link += "&redirect=" + url.QueryEscape(returnURL+"#nonce="+nonce)
	}
	return link
}

// QRCodeHandler handles GET /api/bankid/qrcode/{sessionId}.
func QRCodeHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := mux.Vars(r)["sessionId"]

		store := manager.GetSessionStore()
		sess, ok := store.Get(sessionID)
		if !ok || sess.Expired(time.Now(), store.TTL()) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}

		code, err := manager.CurrentCode(sess)
		if err != nil {
			logger.Error("Failed to render code for session %s: %v", sessionID, err)
			writeError(w, http.StatusInternalServerError, "Failed to generate QR code")
			return
		}

		writeJSON(w, http.StatusOK, dto.QRCodeResponse{
			QRImage:        code.Image,
			QRData:         code.Payload,
			AutostartToken: sess.Token,
		})
	}
}

// StatusHandler handles GET /api/bankid/status/{sessionId}.
func StatusHandler(manager *service.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := mux.Vars(r)["sessionId"]

		store := manager.GetSessionStore()
		sess, ok := store.Get(sessionID)
		if !ok {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}

		now := time.Now()
		resp := dto.StatusResponse{
			Status:   StatusPending,
			Message:  "Waiting for the code to be scanned",
			Elapsed:  token.Elapsed(sess.OrderTime, now),
			Rotating: manager.Animating(sess.SessionID),
		}
		if sess.Expired(now, store.TTL()) {
			resp.Status = StatusExpired
			resp.Message = "Session expired"
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
