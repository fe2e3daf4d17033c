package handler

import (
	"net/http"

	"qrrelay/internal/service"
)

// HealthHandler reports liveness and a few counters.
func HealthHandler(manager *service.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending := 0
		if buffer := manager.GetBufferService(); buffer != nil {
			pending = buffer.Len()
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":        "ok",
			"sessions":      manager.GetSessionStore().Len(),
			"viewers":       manager.GetWebsocketService().GetClientCount(),
			"pending_scans": pending,
		})
	}
}
