package ports

import (
	"context"

	dedupports "porter/contexts/messaging-core/dedup-gate/ports"
	limiterports "porter/contexts/messaging-core/rate-limiter/ports"
	"porter/internal/shared/units"
)

// Outcome labels what the pipeline did with one unit of work. The channel
// adapter acks regardless; outcomes exist for logging and tests.
const (
	OutcomeProcessed   = "processed"
	OutcomeDuplicate   = "duplicate"
	OutcomeRateLimited = "rate_limited"
	OutcomeRejected    = "rejected"
	OutcomeDeadLetter  = "dead_letter"
)

// Gate is the deduplication check consulted before business logic runs.
type Gate interface {
	Check(ctx context.Context, messageID string, subject string, kind string) (dedupports.Result, error)
}

// Limiter admits or denies a unit before any other work happens.
type Limiter interface {
	CheckAndRecord(ctx context.Context, subject string, kind string) limiterports.Decision
}

// FailureSink receives units whose processing failed non-recoverably within
// the request budget. It never propagates its own failures.
type FailureSink interface {
	SaveFailed(ctx context.Context, unit units.Unit, cause error) string
}

// ChannelClient sends outbound text on the chat channel.
type ChannelClient interface {
	SendText(ctx context.Context, subject string, text string) error
}

// Handler is the single business entry point, shared by live dispatch and
// dead-letter replay.
type Handler = units.Handler
