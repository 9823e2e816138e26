package ports

import (
	"context"
	"time"
)

// Denial reasons surfaced in decisions and stats.
const (
	ReasonMinuteCap  = "minute_cap"
	ReasonHourCap    = "hour_cap"
	ReasonBurstAbuse = "burst_abuse"
)

// Decision is the limiter's answer for one request. WaitTime is how long the
// caller should wait before the denying window admits the subject again.
type Decision struct {
	Allowed  bool
	Reason   string
	WaitTime time.Duration
}

// Limits configures one limiter instance.
type Limits struct {
	PerMinute int
	PerHour   int
	// BurstWindow/BurstMax drive the abuse detector, independent of the
	// standard caps: BurstMax requests within BurstWindow flags the subject.
	BurstWindow time.Duration
	BurstMax    int
}

func (l Limits) Normalized() Limits {
	if l.PerMinute <= 0 {
		l.PerMinute = 20
	}
	if l.PerHour <= 0 {
		l.PerHour = 200
	}
	if l.BurstWindow <= 0 {
		l.BurstWindow = 10 * time.Second
	}
	if l.BurstMax <= 0 {
		l.BurstMax = 8
	}
	return l
}

// Limiter accepts or denies a unit of work before any processing starts.
// Implementations never fail the request path: an unreachable backing store
// degrades to a local decision, not to an error.
type Limiter interface {
	CheckAndRecord(ctx context.Context, subject string, kind string) Decision
}

// Stats is the read-only diagnostics view.
type Stats struct {
	TrackedSubjects int
	Denied          int64
	BurstFlagged    int64
}

type Clock interface {
	Now() time.Time
}
