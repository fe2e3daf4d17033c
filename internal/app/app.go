package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"qrrelay/internal/config"
	"qrrelay/internal/logger"
	"qrrelay/internal/middleware"
	"qrrelay/internal/repository"
	"qrrelay/internal/repository/sqlite"
	"qrrelay/internal/route"
	"qrrelay/internal/service"
	"qrrelay/internal/service/render"
	"qrrelay/internal/service/session"
	"qrrelay/internal/service/storage"
	"qrrelay/internal/service/websocket"
)

type App struct {
	config        *config.Config
	logger        *logger.Logger
	db            *sqlite.DB
	bufferService *storage.BufferService
	hubService    *websocket.HubService
	manager       *service.Manager
	handler       http.Handler
}

// NewApp wires the relay server. Without a database the scan log is off
// and the server still runs.
func NewApp(cfg *config.Config, log *logger.Logger) *App {
	var scanRepo repository.ScanRepository
	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		log.Error("Scan log disabled, database unavailable: %v", err)
	} else {
		scanRepo = sqlite.NewScanRepository(db)
	}

	buffer := storage.NewBufferService(cfg.ScanBufferLimit, cfg.ScanFlushInterval, log, scanRepo)
	buffer.SetRetention(cfg.ScanRetention)
	hub := websocket.NewHubService(log)
	sessions := session.NewStore(cfg.SessionTTL, log)
	renderer := render.NewRenderer(cfg.QRPixelsPerModule)

	mng := service.NewManager(sessions, renderer, hub, buffer, cfg, log)
	router := route.SetupRoutes(mng, cfg, log, scanRepo, middleware.NewAuth(0))

	return &App{
		config:        cfg,
		logger:        log,
		db:            db,
		bufferService: buffer,
		hubService:    hub,
		manager:       mng,
		handler:       router,
	}
}

// Handler returns the HTTP handler, for embedding in tests.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Start runs the background services until ctx is cancelled.
func (a *App) Start(ctx context.Context) {
	go a.bufferService.Run(ctx)
	go a.hubService.Run(ctx)
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	a.Start(ctx)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           a.handler,
		ReadHeaderTimeout: a.config.ConnectionDeadline,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	a.logger.Info("QR relay server listening on http://localhost:%d", a.config.Port)
	a.logger.Info("Database: %s", a.config.DatabasePath)
	a.logger.Info("Session TTL: %v, scan retention: %v", a.config.SessionTTL, a.config.ScanRetention)

	select {
	case err := <-errCh:
		a.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := server.Shutdown(shutdownCtx)
	a.Close()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close stops animations, flushes pending scans and closes the database.
func (a *App) Close() {
	a.manager.Stop()
	a.bufferService.FlushScans()
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("Error closing database: %v", err)
		}
	}
}
