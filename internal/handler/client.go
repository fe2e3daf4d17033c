package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"qrrelay/internal/config"
	"qrrelay/internal/dto"
	"qrrelay/internal/logger"
	"qrrelay/internal/service"

	"github.com/gorilla/websocket"
)

// Upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all origins.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

var errUnknownEvent = errors.New("unknown event")

// ScannerWebsocketHandler accepts decoded payloads from screen scanners.
// Scanners are not registered as viewers.
func ScannerWebsocketHandler(manager *service.Manager, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}
		defer connection.Close()

		manager.Sweep()
		if cfg.ScannerReadLimit > 0 {
			connection.SetReadLimit(cfg.ScannerReadLimit)
		}
		logger.Info("Scanner connected from %s", r.RemoteAddr)

		for {
			_, message, err := connection.ReadMessage()
			if err != nil {
				logDisconnect(logger, "Scanner", err)
				break
			}

			if err := handleScannerMessage(manager, message); err != nil {
				logger.Warning("Rejected scanner message: %v", err)
				if reply, encErr := dto.NewEnvelope(dto.EventError, dto.ErrorMessage{Error: err.Error()}); encErr == nil {
					connection.WriteMessage(websocket.TextMessage, reply)
				}
			}
		}
	}
}

// ViewWebsocketHandler handles viewer connections over WebSocket and
// registers them in the HubService to receive broadcasts. Viewers may
// ask for codes; each connection remembers the last session it was given.
func ViewWebsocketHandler(manager *service.Manager, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}

		manager.Sweep()
		hub := manager.GetWebsocketService()
		hub.Register(connection)
		defer hub.Unregister(connection)

		if cfg.ViewerReadLimit > 0 {
			connection.SetReadLimit(cfg.ViewerReadLimit)
		}
		logger.Info("Viewer connected from %s", r.RemoteAddr)

		lastSession := ""
		for {
			_, message, err := connection.ReadMessage()
			if err != nil {
				logDisconnect(logger, "Viewer", err)
				break
			}

			sessionID, err := handleViewerMessage(manager, message, lastSession)
			if err != nil {
				logger.Warning("Rejected viewer message: %v", err)
				if reply, encErr := dto.NewEnvelope(dto.EventError, dto.ErrorMessage{Error: err.Error()}); encErr == nil {
					hub.SendTo(connection, reply)
				}
				continue
			}
			if sessionID != "" {
				lastSession = sessionID
			}
		}
	}
}

func logDisconnect(logger *logger.Logger, who string, err error) {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		logger.Info("%s disconnected normally", who)
	} else {
		logger.Error("%s disconnected with error: %v", who, err)
	}
}

func handleScannerMessage(manager *service.Manager, message []byte) error {
	var env dto.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}
	if env.Event != dto.EventQRCodeScanned {
		return fmt.Errorf("%w %q", errUnknownEvent, env.Event)
	}

	var payload dto.DecodedPayload
	if err := decodeData(env, &payload); err != nil {
		return err
	}
	return manager.HandleDecoded(payload)
}

// handleViewerMessage dispatches one viewer event and returns the
// session it published, if any.
func handleViewerMessage(manager *service.Manager, message []byte, lastSession string) (string, error) {
	var env dto.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		return "", fmt.Errorf("invalid message: %w", err)
	}

	switch env.Event {
	case dto.EventRequestQRData:
		sess, err := manager.RequestCurrent(lastSession)
		return sess.SessionID, err

	case dto.EventRequestFreshQRData:
		sess, err := manager.RequestFresh()
		return sess.SessionID, err

	case dto.EventStartRotation, dto.EventRefreshQRCode:
		var req dto.SessionRequest
		if err := decodeData(env, &req); err != nil {
			return "", err
		}
		if env.Event == dto.EventStartRotation {
			sess, err := manager.StartRotation(req.SessionID)
			return sess.SessionID, err
		}
		sess, err := manager.RefreshSession(req.SessionID)
		return sess.SessionID, err

	case dto.EventQRCodeScanned:
		var payload dto.DecodedPayload
		if err := decodeData(env, &payload); err != nil {
			return "", err
		}
		return "", manager.HandleDecoded(payload)

	default:
		return "", fmt.Errorf("%w %q", errUnknownEvent, env.Event)
	}
}

// decodeData unmarshals the envelope data; absent data leaves v zeroed.
func decodeData(env dto.Envelope, v interface{}) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("invalid %s data: %w", env.Event, err)
	}
	return nil
}
