package gate

import (
	"testing"
	"time"
)

func TestShouldEmit_Debounce(t *testing.T) {
	g := New(DefaultCooldown)
	t0 := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	steps := []struct {
		name    string
		payload string
		offset  time.Duration
		want    bool
	}{
		{"first emission", "A", 0, true},
		{"same payload within cooldown", "A", time.Second, false},
		{"same payload after cooldown", "A", 3100 * time.Millisecond, true},
		{"different payload right away", "B", 3200 * time.Millisecond, true},
	}

	for _, s := range steps {
		got := g.ShouldEmit(s.payload, t0.Add(s.offset))
		if got != s.want {
			t.Errorf("%s: ShouldEmit(%q, t0+%v) = %v, expected %v", s.name, s.payload, s.offset, got, s.want)
		}
	}
}

func TestShouldEmit_ExactlyCooldownIsSuppressed(t *testing.T) {
	g := New(DefaultCooldown)
	t0 := time.Unix(1000, 0)

	g.ShouldEmit("A", t0)
	if g.ShouldEmit("A", t0.Add(DefaultCooldown)) {
		t.Error("Payload at exactly the cooldown should be suppressed")
	}
}

func TestCheck_DoesNotCommit(t *testing.T) {
	g := New(DefaultCooldown)
	t0 := time.Unix(1000, 0)

	if !g.Check("A", t0) {
		t.Fatal("First Check should pass")
	}
	if g.emitted {
		t.Error("Check must not change state")
	}
	// Nieudana wysyłka: brak Commit, więc kolejna próba przechodzi
	if !g.Check("A", t0.Add(time.Second)) {
		t.Error("Uncommitted payload should still pass")
	}

	g.Commit("A", t0.Add(time.Second))
	if g.Check("A", t0.Add(2*time.Second)) {
		t.Error("Committed payload should be suppressed within cooldown")
	}

	if !g.emitted || g.lastPayload != "A" || !g.lastAt.Equal(t0.Add(time.Second)) {
		t.Errorf("State = (%q, %v, %v), expected (A, t0+1s, true)", g.lastPayload, g.lastAt, g.emitted)
	}
}

func TestNew_DefaultCooldown(t *testing.T) {
	g := New(0)
	if g.cooldown != DefaultCooldown {
		t.Errorf("cooldown = %v, expected %v", g.cooldown, DefaultCooldown)
	}
}
