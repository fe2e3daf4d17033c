package gate

import (
	"sync"
	"time"
)

// DefaultCooldown is the minimum time before an unchanged payload is re-sent.
const DefaultCooldown = 3 * time.Second

// ChangeGate suppresses repeated emissions of the same payload.
// A payload passes when it differs from the last emitted one, or when
// strictly more than the cool-down has passed since that emission.
type ChangeGate struct {
	cooldown    time.Duration
	lastPayload string
	lastAt      time.Time
	emitted     bool
	mu          sync.Mutex
}

func New(cooldown time.Duration) *ChangeGate {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &ChangeGate{cooldown: cooldown}
}

// Check reports whether payload would be emitted at now. State is not touched.
func (g *ChangeGate) Check(payload string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.checkLocked(payload, now)
}

// Commit records payload as emitted at now.
func (g *ChangeGate) Commit(payload string, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.commitLocked(payload, now)
}

// ShouldEmit is Check followed by Commit when the check passes.
func (g *ChangeGate) ShouldEmit(payload string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.checkLocked(payload, now) {
		return false
	}
	g.commitLocked(payload, now)
	return true
}

func (g *ChangeGate) checkLocked(payload string, now time.Time) bool {
	if !g.emitted || payload != g.lastPayload {
		return true
	}
	return now.Sub(g.lastAt) > g.cooldown
}

func (g *ChangeGate) commitLocked(payload string, now time.Time) {
	g.lastPayload = payload
	g.lastAt = now
	g.emitted = true
}
