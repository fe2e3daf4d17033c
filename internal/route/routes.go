package route

import (
	"net/http"

	"qrrelay/internal/config"
	"qrrelay/internal/handler"
	"qrrelay/internal/logger"
	"qrrelay/internal/middleware"
	"qrrelay/internal/repository"
	"qrrelay/internal/service"

	"github.com/gorilla/mux"
)

// SetupRoutes registers the public BankID and websocket endpoints and the
// admin endpoints, which sit behind the authentication middleware.
func SetupRoutes(manager *service.Manager, cfg *config.Config, logger *logger.Logger,
	scanRepo repository.ScanRepository, auth *middleware.Auth) http.Handler {
	r := mux.NewRouter()

	// Websocket endpoints
	r.HandleFunc("/ws/scanner", handler.ScannerWebsocketHandler(manager, cfg, logger))
	r.HandleFunc("/ws/view", handler.ViewWebsocketHandler(manager, cfg, logger))

	// BankID endpoints
	r.HandleFunc("/generate_bankid_qr", handler.GenerateQRHandler(manager, logger)).Methods(http.MethodPost)
	r.HandleFunc("/api/bankid/start", handler.StartHandler(manager, logger)).Methods(http.MethodPost)
	r.HandleFunc("/api/bankid/qrcode/{sessionId}", handler.QRCodeHandler(manager, logger)).Methods(http.MethodGet)
	r.HandleFunc("/api/bankid/status/{sessionId}", handler.StatusHandler(manager)).Methods(http.MethodGet)

	r.HandleFunc("/health", handler.HealthHandler(manager)).Methods(http.MethodGet)

	// Auth endpoints
	r.HandleFunc("/auth/login", handler.LoginHandler(cfg, auth, logger)).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", handler.LogoutHandler(auth)).Methods(http.MethodPost)

	admin := r.NewRoute().Subrouter()
	admin.Use(auth.Middleware)

	if scanRepo != nil {
		admin.HandleFunc("/api/scans", handler.GetScansHandler(manager.GetBufferService(), scanRepo, logger)).Methods(http.MethodGet)
		admin.HandleFunc("/api/scans/{id:[0-9]+}", handler.GetScanHandler(manager.GetBufferService(), scanRepo, logger)).Methods(http.MethodGet)
		admin.HandleFunc("/api/scans/clear", handler.ClearScansHandler(scanRepo, logger)).Methods(http.MethodPost)
	}

	// Log endpoints
	admin.HandleFunc("/logs/{level:info|warning|error}", handler.ShowLogsHandler(logger)).Methods(http.MethodGet)
	admin.HandleFunc("/logs/{level:info|warning|error}/clear", handler.ClearLogsHandler(logger)).Methods(http.MethodPost)

	return r
}
