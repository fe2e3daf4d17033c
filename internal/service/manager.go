package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"qrrelay/internal/config"
	"qrrelay/internal/dto"
	"qrrelay/internal/logger"
	"qrrelay/internal/model"
	"qrrelay/internal/service/render"
	"qrrelay/internal/service/session"
	"qrrelay/internal/service/storage"
	"qrrelay/internal/service/token"
	"qrrelay/internal/service/websocket"
)

// Scan log sources.
const (
	SourceScanner  = "scanner"
	SourceRotation = "rotation"
	SourceHTTP     = "http"
)

// Verification results recorded for relayed codes of known sessions.
const (
	VerificationValid   = "valid"
	VerificationInvalid = "invalid"
)

// ErrEmptyPayload is returned for a decoded-payload event without data.
var ErrEmptyPayload = errors.New("decoded payload is empty")

// Code is a rendered rotating code of one session.
type Code struct {
	Session model.ScanSession
	Payload string
	Image   string // base64 PNG
	Elapsed int64
}

type animation struct {
	deadline time.Time
}

// Manager reacts to scanner and viewer events: it renders payloads,
// rotates session codes and fans the results out through the hub.
type Manager struct {
	sessions         *session.Store
	renderer         *render.Renderer
	websocketService *websocket.HubService
	bufferService    *storage.BufferService
	logger           *logger.Logger

	rotationInterval time.Duration // Co ile animacja publikuje nowy kod
	rotationDuration time.Duration // Jak długo animacja trwa od ostatniego start_qr_rotation
	animations       map[string]*animation
	animMu           sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

func NewManager(sessions *session.Store, renderer *render.Renderer, websocketService *websocket.HubService, bufferService *storage.BufferService, config *config.Config, logger *logger.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	interval := config.RotationInterval
	if interval <= 0 {
		interval = time.Second
	}
	duration := config.RotationDuration
	if duration <= 0 {
		duration = 30 * time.Second
	}

	manager := &Manager{
		sessions:         sessions,
		renderer:         renderer,
		websocketService: websocketService,
		bufferService:    bufferService,
		logger:           logger,
		rotationInterval: interval,
		rotationDuration: duration,
		animations:       make(map[string]*animation),
		ctx:              ctx,
		cancel:           cancel,
		now:              time.Now,
	}

	manager.logger.Info("Manager started - rotation every %v for %v", interval, duration)
	return manager
}

func (m *Manager) GetWebsocketService() *websocket.HubService {
	return m.websocketService
}

func (m *Manager) GetSessionStore() *session.Store {
	return m.sessions
}

func (m *Manager) GetBufferService() *storage.BufferService {
	return m.bufferService
}

// Sweep drops expired sessions.
func (m *Manager) Sweep() int {
	return m.sessions.SweepExpired(m.now())
}

// HandleDecoded renders a payload relayed by the scanner and broadcasts
// it. A rotating-code payload also announces its token.
func (m *Manager) HandleDecoded(data dto.DecodedPayload) error {
	if data.Data == "" {
		return ErrEmptyPayload
	}

	image, err := m.renderer.Base64(data.Data)
	if err != nil {
		return fmt.Errorf("failed to render payload: %w", err)
	}

	parsed, isRotating := token.Parse(data.Data)
	update := dto.ImageUpdated{
		Image:   image,
		Payload: data.Data,
	}
	if isRotating {
		update.Token = parsed.Token
		update.AutostartToken = parsed.Token
	}

	if err := m.broadcast(dto.EventImageUpdated, update); err != nil {
		return err
	}
	if isRotating {
		if err := m.broadcast(dto.EventBankIDToken, dto.RotatingToken{Token: parsed.Token}); err != nil {
			return err
		}
	}

	scan := dto.BufferedScan{
		Payload: data.Data,
		Token:   parsed.Token,
		Source:  SourceScanner,
		Method:  data.Method,
	}
	if isRotating {
		if sess, ok := m.sessions.GetByToken(parsed.Token); ok {
			scan.SessionID = sess.SessionID
			scan.Verification = verifyCode(sess, parsed)
			if scan.Verification == VerificationInvalid {
				m.logger.Warning("Relayed code for session %s does not match its secret", sess.SessionID)
			}
		}
	}
	m.record(scan)

	m.logger.Info("Broadcast scanned payload (method %q, rotating %v)", data.Method, isRotating)
	return nil
}

// verifyCode checks a relayed code against the session that issued it.
func verifyCode(sess model.ScanSession, parsed token.Parsed) string {
	elapsed, err := strconv.ParseInt(parsed.Elapsed, 10, 64)
	if err != nil || !token.Verify(sess.Secret, elapsed, parsed.Code) {
		return VerificationInvalid
	}
	return VerificationValid
}

// RefreshSession publishes the current code of sessionID, creating the
// session when it does not exist.
func (m *Manager) RefreshSession(sessionID string) (model.ScanSession, error) {
	sess := m.sessions.GetOrCreate(sessionID, m.now())
	return sess, m.publishRecorded(sess)
}

// StartRotation refreshes the session and keeps re-publishing its code
// every rotation interval. Calling it again extends a running animation.
func (m *Manager) StartRotation(sessionID string) (model.ScanSession, error) {
	sess, err := m.RefreshSession(sessionID)
	if err != nil {
		return sess, err
	}
	m.startAnimation(sess.SessionID)
	return sess, nil
}

// RequestCurrent publishes the code of lastSessionID when that session
// is still alive, otherwise of a new session.
func (m *Manager) RequestCurrent(lastSessionID string) (model.ScanSession, error) {
	sess, ok := model.ScanSession{}, false
	if lastSessionID != "" {
		sess, ok = m.sessions.Get(lastSessionID)
	}
	if !ok {
		sess = m.sessions.Create(m.now())
	}
	return sess, m.publishRecorded(sess)
}

// RequestFresh always mints a new session and publishes its code.
func (m *Manager) RequestFresh() (model.ScanSession, error) {
	sess := m.sessions.Create(m.now())
	return sess, m.publishRecorded(sess)
}

// IssueCode returns the current code of sessionID for an HTTP caller,
// creating the session when needed. Nothing is broadcast.
func (m *Manager) IssueCode(sessionID string) (Code, error) {
	sess := m.sessions.GetOrCreate(sessionID, m.now())

	code, err := m.CurrentCode(sess)
	if err != nil {
		return Code{}, err
	}

	m.record(dto.BufferedScan{
		Payload:   code.Payload,
		Token:     sess.Token,
		SessionID: sess.SessionID,
		Source:    SourceHTTP,
	})
	return code, nil
}

// CurrentCode renders the code of sess as of now without broadcasting.
func (m *Manager) CurrentCode(sess model.ScanSession) (Code, error) {
	payload, elapsed := token.Current(sess, m.now())

	image, err := m.renderer.Base64(payload)
	if err != nil {
		return Code{}, fmt.Errorf("failed to render session code: %w", err)
	}
	return Code{Session: sess, Payload: payload, Image: image, Elapsed: elapsed}, nil
}

// Animating reports whether a rotation animation runs for sessionID.
func (m *Manager) Animating(sessionID string) bool {
	m.animMu.Lock()
	defer m.animMu.Unlock()
	_, ok := m.animations[sessionID]
	return ok
}

// Stop ends all animations and waits for them.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
	m.logger.Info("All rotation animations stopped")
}

func (m *Manager) publishRecorded(sess model.ScanSession) error {
	code, err := m.publish(sess)
	if err != nil {
		return err
	}

	m.record(dto.BufferedScan{
		Payload:   code.Payload,
		Token:     sess.Token,
		SessionID: sess.SessionID,
		Source:    SourceRotation,
	})
	return nil
}

func (m *Manager) publish(sess model.ScanSession) (Code, error) {
	code, err := m.CurrentCode(sess)
	if err != nil {
		return Code{}, err
	}

	err = m.broadcast(dto.EventImageUpdated, dto.ImageUpdated{
		Image:          code.Image,
		Payload:        code.Payload,
		Token:          sess.Token,
		AutostartToken: sess.Token,
		SessionID:      sess.SessionID,
	})
	return code, err
}

func (m *Manager) broadcast(event string, data interface{}) error {
	message, err := dto.NewEnvelope(event, data)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event, err)
	}
	m.websocketService.Broadcast(message)
	return nil
}

func (m *Manager) record(scan dto.BufferedScan) {
	if m.bufferService == nil {
		return
	}
	scan.ReceivedAt = m.now()
	m.bufferService.AddScan(scan)
}

func (m *Manager) startAnimation(sessionID string) {
	m.animMu.Lock()
	defer m.animMu.Unlock()

	deadline := m.now().Add(m.rotationDuration)
	if a, ok := m.animations[sessionID]; ok {
		a.deadline = deadline
		return
	}

	a := &animation{deadline: deadline}
	m.animations[sessionID] = a

	m.wg.Add(1)
	go m.animate(sessionID, a)
	m.logger.Info("Rotation started for session %s", sessionID)
}

// animate re-publishes the session code until the deadline passes, the
// session disappears or the manager stops.
func (m *Manager) animate(sessionID string, a *animation) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.rotationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			m.finishAnimation(sessionID, a)
			return
		case <-ticker.C:
		}

		m.animMu.Lock()
		expired := !m.now().Before(a.deadline)
		if expired {
			delete(m.animations, sessionID)
		}
		m.animMu.Unlock()
		if expired {
			m.logger.Info("Rotation finished for session %s", sessionID)
			return
		}

		sess, ok := m.sessions.Get(sessionID)
		if !ok {
			m.finishAnimation(sessionID, a)
			m.logger.Info("Rotation stopped, session %s expired", sessionID)
			return
		}

		if _, err := m.publish(sess); err != nil {
			m.logger.Error("Rotation tick for session %s failed: %v", sessionID, err)
		}
	}
}

func (m *Manager) finishAnimation(sessionID string, a *animation) {
	m.animMu.Lock()
	defer m.animMu.Unlock()
	if m.animations[sessionID] == a {
		delete(m.animations, sessionID)
	}
}
