package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"porter/contexts/messaging-core/rate-limiter/ports"
	"porter/internal/shared/units"
)

type stubClock struct {
	now time.Time
}

func (c *stubClock) Now() time.Time { return c.now }

func newClock() *stubClock {
	return &stubClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestMinuteCapDeniesSixthRequest(t *testing.T) {
	clock := newClock()
	limiter := NewLocalLimiter(ports.Limits{PerMinute: 5, PerHour: 100}, clock, nil)

	for i := 0; i < 5; i++ {
		decision := limiter.CheckAndRecord(context.Background(), "user-1", units.KindText)
		if !decision.Allowed {
			t.Fatalf("request %d should be allowed, got %+v", i+1, decision)
		}
		clock.now = clock.now.Add(2 * time.Second)
	}

	decision := limiter.CheckAndRecord(context.Background(), "user-1", units.KindText)
	if decision.Allowed {
		t.Fatal("sixth request within the minute must be denied")
	}
	if decision.Reason != ports.ReasonMinuteCap {
		t.Fatalf("expected minute cap, got %q", decision.Reason)
	}
	if decision.WaitTime <= 0 {
		t.Fatalf("denial must carry a positive wait time, got %v", decision.WaitTime)
	}
}

func TestMinuteWindowRollsOver(t *testing.T) {
	clock := newClock()
	limiter := NewLocalLimiter(ports.Limits{PerMinute: 5, PerHour: 100}, clock, nil)

	for i := 0; i < 5; i++ {
		limiter.CheckAndRecord(context.Background(), "user-1", units.KindText)
		clock.now = clock.now.Add(2 * time.Second)
	}
	if decision := limiter.CheckAndRecord(context.Background(), "user-1", units.KindText); decision.Allowed {
		t.Fatal("cap should be hit before the window rolls over")
	}

	clock.now = clock.now.Add(time.Minute)
	if decision := limiter.CheckAndRecord(context.Background(), "user-1", units.KindText); !decision.Allowed {
		t.Fatalf("window rolled over, request should be allowed: %+v", decision)
	}
}

func TestHourCapOutlastsMinuteWindow(t *testing.T) {
	clock := newClock()
	limiter := NewLocalLimiter(ports.Limits{PerMinute: 100, PerHour: 5, BurstMax: 100}, clock, nil)

	for i := 0; i < 5; i++ {
		limiter.CheckAndRecord(context.Background(), "user-1", units.KindText)
		clock.now = clock.now.Add(2 * time.Minute)
	}

	decision := limiter.CheckAndRecord(context.Background(), "user-1", units.KindText)
	if decision.Allowed || decision.Reason != ports.ReasonHourCap {
		t.Fatalf("expected hour cap denial, got %+v", decision)
	}
}

func TestSubjectsAreIsolated(t *testing.T) {
	clock := newClock()
	limiter := NewLocalLimiter(ports.Limits{PerMinute: 1, PerHour: 100}, clock, nil)

	if decision := limiter.CheckAndRecord(context.Background(), "user-1", units.KindText); !decision.Allowed {
		t.Fatalf("first request denied: %+v", decision)
	}
	if decision := limiter.CheckAndRecord(context.Background(), "user-1", units.KindText); decision.Allowed {
		t.Fatal("second request for the same subject must be denied")
	}
	if decision := limiter.CheckAndRecord(context.Background(), "user-2", units.KindText); !decision.Allowed {
		t.Fatalf("another subject must not share the window: %+v", decision)
	}
}

func TestBurstDetectorFlagsRapidFire(t *testing.T) {
	clock := newClock()
	limiter := NewLocalLimiter(
		ports.Limits{PerMinute: 100, PerHour: 1000, BurstWindow: 10 * time.Second, BurstMax: 3},
		clock, nil,
	)

	for i := 0; i < 3; i++ {
		if decision := limiter.CheckAndRecord(context.Background(), "user-1", units.KindText); !decision.Allowed {
			t.Fatalf("request %d within burst budget denied: %+v", i+1, decision)
		}
	}

	decision := limiter.CheckAndRecord(context.Background(), "user-1", units.KindText)
	if decision.Allowed || decision.Reason != ports.ReasonBurstAbuse {
		t.Fatalf("expected burst abuse flag, got %+v", decision)
	}

	stats := limiter.Stats()
	if stats.BurstFlagged != 1 || stats.Denied != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestPruneDropsIdleSubjects(t *testing.T) {
	clock := newClock()
	limiter := NewLocalLimiter(ports.Limits{PerMinute: 5, PerHour: 100}, clock, nil)

	limiter.CheckAndRecord(context.Background(), "user-1", units.KindText)
	clock.now = clock.now.Add(time.Hour)
	limiter.CheckAndRecord(context.Background(), "user-2", units.KindText)

	clock.now = clock.now.Add(90 * time.Minute)
	if removed := limiter.Prune(2 * time.Hour); removed != 1 {
		t.Fatalf("expected one idle subject pruned, got %d", removed)
	}
	if stats := limiter.Stats(); stats.TrackedSubjects != 1 {
		t.Fatalf("expected one tracked subject, got %d", stats.TrackedSubjects)
	}
}

type failingChecker struct{}

func (failingChecker) Check(context.Context, string, string) (ports.Decision, error) {
	return ports.Decision{}, errors.New("redis down")
}

type fixedChecker struct {
	decision ports.Decision
}

func (c fixedChecker) Check(context.Context, string, string) (ports.Decision, error) {
	return c.decision, nil
}

func TestFallbackUsesLocalWindowsWhenStoreIsDown(t *testing.T) {
	clock := newClock()
	local := NewLocalLimiter(ports.Limits{PerMinute: 1, PerHour: 100}, clock, nil)
	limiter := FallbackLimiter{Primary: failingChecker{}, Local: local}

	if decision := limiter.CheckAndRecord(context.Background(), "user-1", units.KindText); !decision.Allowed {
		t.Fatalf("fallback must still admit traffic: %+v", decision)
	}
	if decision := limiter.CheckAndRecord(context.Background(), "user-1", units.KindText); decision.Allowed {
		t.Fatal("local windows must still enforce caps during fallback")
	}
}

func TestFallbackPrefersDistributedDecision(t *testing.T) {
	clock := newClock()
	local := NewLocalLimiter(ports.Limits{PerMinute: 100, PerHour: 100}, clock, nil)
	limiter := FallbackLimiter{
		Primary: fixedChecker{decision: ports.Decision{Reason: ports.ReasonMinuteCap, WaitTime: 30 * time.Second}},
		Local:   local,
	}

	decision := limiter.CheckAndRecord(context.Background(), "user-1", units.KindText)
	if decision.Allowed || decision.Reason != ports.ReasonMinuteCap {
		t.Fatalf("distributed denial must win over local state: %+v", decision)
	}
}
