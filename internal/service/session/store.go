package session

import (
	"sync"
	"time"

	"qrrelay/internal/logger"
	"qrrelay/internal/model"

	"github.com/google/uuid"
)

// DefaultTTL is how long a session lives after creation.
const DefaultTTL = 10 * time.Minute

// Store owns every ScanSession. Callers only ever receive copies.
// All access, including the expiry sweep, is serialised by mu because
// handlers run on their own goroutines.
type Store struct {
	sessions map[string]*model.ScanSession
	ttl      time.Duration
	mu       sync.Mutex
	logger   *logger.Logger
}

// NewStore creates an empty store; ttl <= 0 selects DefaultTTL.
func NewStore(ttl time.Duration, logger *logger.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		sessions: make(map[string]*model.ScanSession),
		ttl:      ttl,
		logger:   logger,
	}
}

// TTL returns the configured session lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// GetOrCreate returns the session for id, creating it when absent.
// An empty id always creates a session under a fresh id.
func (s *Store) GetOrCreate(id string, now time.Time) model.ScanSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if existing, ok := s.sessions[id]; ok {
			return *existing
		}
	}
	return s.createLocked(id, now)
}

// Create always mints a brand-new session.
func (s *Store) Create(now time.Time) model.ScanSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked("", now)
}

// Get looks a session up without creating it.
func (s *Store) Get(id string) (model.ScanSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.sessions[id]
	if !ok {
		return model.ScanSession{}, false
	}
	return *existing, true
}

// GetByToken looks up the session that owns token.
func (s *Store) GetByToken(token string) (model.ScanSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token == "" {
		return model.ScanSession{}, false
	}
	for _, sess := range s.sessions {
		if sess.Token == token {
			return *sess, true
		}
	}
	return model.ScanSession{}, false
}

// SweepExpired removes every session older than the TTL at now and
// returns how many were removed.
func (s *Store) SweepExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if sess.Expired(now, s.ttl) {
			delete(s.sessions, id)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Info("Swept %d expired session(s), %d left", removed, len(s.sessions))
	}
	return removed
}

// Len returns the number of stored sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) createLocked(id string, now time.Time) model.ScanSession {
	if id == "" {
		id = uuid.NewString()
	}

	sess := &model.ScanSession{
		SessionID: id,
		Token:     uuid.NewString(),
		Secret:    uuid.NewString(),
		OrderTime: now,
		CreatedAt: now,
	}
	s.sessions[id] = sess
	s.logger.Info("Created session %s", id)

	return *sess
}
