package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"porter/contexts/messaging-core/rate-limiter/ports"

	"golang.org/x/time/rate"
)

const defaultIdleTTL = 2 * time.Hour

type subjectWindows struct {
	minute   []time.Time
	hour     []time.Time
	burst    *rate.Limiter
	lastSeen time.Time
}

// LocalLimiter keeps per-subject sliding windows in memory. It protects the
// current process only; the Redis variant is the cross-instance view.
type LocalLimiter struct {
	limits ports.Limits
	clock  ports.Clock
	logger *slog.Logger

	mu       sync.Mutex
	subjects map[string]*subjectWindows

	denied       int64
	burstFlagged int64
}

func NewLocalLimiter(limits ports.Limits, clock ports.Clock, logger *slog.Logger) *LocalLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalLimiter{
		limits:   limits.Normalized(),
		clock:    clock,
		logger:   logger,
		subjects: make(map[string]*subjectWindows),
	}
}

// CheckAndRecord applies, in order: the burst-abuse detector, the one-minute
// window, the one-hour window. The request is recorded only when admitted,
// so denied traffic cannot keep a subject locked out forever.
func (l *LocalLimiter) CheckAndRecord(_ context.Context, subject string, kind string) ports.Decision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	windows, ok := l.subjects[subject]
	if !ok {
		windows = &subjectWindows{
			burst: rate.NewLimiter(
				rate.Limit(float64(l.limits.BurstMax)/l.limits.BurstWindow.Seconds()),
				l.limits.BurstMax,
			),
		}
		l.subjects[subject] = windows
	}
	windows.lastSeen = now
	windows.minute = prune(windows.minute, now.Add(-time.Minute))
	windows.hour = prune(windows.hour, now.Add(-time.Hour))

	if !windows.burst.AllowN(now, 1) {
		l.burstFlagged++
		l.denied++
		l.logger.Warn("burst abuse detected",
			"event", "rate_limit_burst_abuse",
			"module", "messaging-core/rate-limiter",
			"layer", "application",
			"subject", subject,
			"kind", kind,
		)
		return ports.Decision{
			Reason:   ports.ReasonBurstAbuse,
			WaitTime: l.limits.BurstWindow,
		}
	}

	if len(windows.minute) >= l.limits.PerMinute {
		l.denied++
		return ports.Decision{
			Reason:   ports.ReasonMinuteCap,
			WaitTime: waitUntil(windows.minute[0].Add(time.Minute), now),
		}
	}
	if len(windows.hour) >= l.limits.PerHour {
		l.denied++
		return ports.Decision{
			Reason:   ports.ReasonHourCap,
			WaitTime: waitUntil(windows.hour[0].Add(time.Hour), now),
		}
	}

	windows.minute = append(windows.minute, now)
	windows.hour = append(windows.hour, now)
	return ports.Decision{Allowed: true}
}

// Prune drops subjects idle past the TTL to bound memory growth. Wire it to
// a ticker in the worker process.
func (l *LocalLimiter) Prune(idleTTL time.Duration) int {
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}
	cutoff := l.now().Add(-idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for subject, windows := range l.subjects {
		if windows.lastSeen.Before(cutoff) {
			delete(l.subjects, subject)
			removed++
		}
	}
	return removed
}

func (l *LocalLimiter) Stats() ports.Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ports.Stats{
		TrackedSubjects: len(l.subjects),
		Denied:          l.denied,
		BurstFlagged:    l.burstFlagged,
	}
}

func (l *LocalLimiter) now() time.Time {
	if l.clock != nil {
		return l.clock.Now().UTC()
	}
	return time.Now().UTC()
}

func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(stamps) && !stamps[idx].After(cutoff) {
		idx++
	}
	return stamps[idx:]
}

func waitUntil(free time.Time, now time.Time) time.Duration {
	wait := free.Sub(now)
	if wait < time.Second {
		wait = time.Second
	}
	return wait
}
