package middleware

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CookieName holds the admin session token.
const CookieName = "authenticated"

const DefaultAuthTTL = 30 * 24 * time.Hour

// Auth tracks admin logins. Tokens live in memory only, a restart logs everyone out.
type Auth struct {
	tokens map[string]time.Time
	ttl    time.Duration
	mu     sync.Mutex
}

func NewAuth(ttl time.Duration) *Auth {
	if ttl <= 0 {
		ttl = DefaultAuthTTL
	}
	return &Auth{tokens: make(map[string]time.Time), ttl: ttl}
}

// Issue mints a new login token and returns it with its expiry.
func (a *Auth) Issue() (string, time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	for t, exp := range a.tokens {
		if now.After(exp) {
			delete(a.tokens, t)
		}
	}

	token := uuid.NewString()
	expires := now.Add(a.ttl)
	a.tokens[token] = expires
	return token, expires
}

func (a *Auth) Revoke(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.tokens, token)
}

func (a *Auth) Valid(token string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	exp, ok := a.tokens[token]
	return ok && time.Now().Before(exp)
}

// Middleware sprawdza, czy użytkownik jest zalogowany (ważne cookie 'authenticated')
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(CookieName)
		if err != nil || !a.Valid(cookie.Value) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
