package router

import (
	"testing"
	"time"
)

func newTestBreaker() (*Breaker, *time.Time) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker("jupiter", 5, time.Minute, 30*time.Second)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreaker_OpensAtThresholdWithinWindow(t *testing.T) {
	b, _ := newTestBreaker()

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	if got := b.State(); got != BreakerClosed {
		t.Fatalf("expected closed below threshold, got %v", got)
	}

	b.RecordFailure()
	if got := b.State(); got != BreakerOpen {
		t.Fatalf("expected open at threshold, got %v", got)
	}
	if b.Allow() {
		t.Error("expected calls to be blocked while open")
	}
}

func TestBreaker_WindowPrunesOldFailures(t *testing.T) {
	b, now := newTestBreaker()

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}

	// 旧失败滑出窗口后不再计入阈值。
	*now = now.Add(2 * time.Minute)
	b.RecordFailure()

	if got := b.State(); got != BreakerClosed {
		t.Fatalf("expected closed after window pruned old failures, got %v", got)
	}
}

func TestBreaker_HalfOpenProbeAndRecovery(t *testing.T) {
	b, now := newTestBreaker()

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}

	*now = now.Add(30 * time.Second)
	if !b.Allow() {
		t.Fatal("expected probe allowed after cooldown")
	}
	if got := b.State(); got != BreakerHalfOpen {
		t.Fatalf("expected half-open after cooldown, got %v", got)
	}
	if b.Allow() {
		t.Error("expected only a single probe in half-open")
	}

	b.RecordSuccess()
	if got := b.State(); got != BreakerClosed {
		t.Fatalf("expected closed after successful probe, got %v", got)
	}
	if !b.Allow() {
		t.Error("expected calls allowed after recovery")
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, now := newTestBreaker()

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}

	*now = now.Add(30 * time.Second)
	if !b.Allow() {
		t.Fatal("expected probe allowed after cooldown")
	}

	b.RecordFailure()
	if got := b.State(); got != BreakerOpen {
		t.Fatalf("expected reopen after failed probe, got %v", got)
	}

	// 冷却期从重新打开时刻起算。
	*now = now.Add(10 * time.Second)
	if b.Allow() {
		t.Error("expected blocked before new cooldown elapsed")
	}
	*now = now.Add(20 * time.Second)
	if !b.Allow() {
		t.Error("expected probe allowed after new cooldown")
	}
}

func TestBreaker_SuccessClearsFailures(t *testing.T) {
	b, _ := newTestBreaker()

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	b.RecordSuccess()
	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}

	if got := b.State(); got != BreakerClosed {
		t.Fatalf("expected closed after success reset counter, got %v", got)
	}
}
