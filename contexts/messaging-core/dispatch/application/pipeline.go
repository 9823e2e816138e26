package application

import (
	"context"
	"log/slog"
	"time"

	"porter/contexts/messaging-core/dispatch/ports"
	"porter/internal/shared/faults"
	"porter/internal/shared/units"
)

const defaultUnitBudget = 30 * time.Second

// RejectionReply is sent when a unit fails validation. Deliberately generic:
// the subject sees a retry hint, never an internal error.
const RejectionReply = "Sorry, we couldn't process that message. Please try again."

// Pipeline is the ordered gauntlet every inbound unit runs: rate limiter,
// dedup gate, then the business handler under the per-unit timeout budget.
// The pipeline absorbs every failure so the channel adapter can always ack;
// a unit is either handled, dropped deliberately, or parked as a dead letter.
type Pipeline struct {
	Limiter     ports.Limiter
	Gate        ports.Gate
	Handler     ports.Handler
	DeadLetters ports.FailureSink
	Channel     ports.ChannelClient
	// UnitBudget is the total wall-clock allowance for one unit. Nested
	// steps derive their own deadlines from what remains.
	UnitBudget time.Duration
	Logger     *slog.Logger
}

// Dispatch runs one unit through the pipeline and reports the outcome. It
// never returns an error: failure handling is the pipeline's whole job.
func (p Pipeline) Dispatch(ctx context.Context, unit units.Unit) string {
	if err := unit.Validate(); err != nil {
		p.reject(ctx, unit, err)
		return ports.OutcomeRejected
	}

	if p.Limiter != nil {
		decision := p.Limiter.CheckAndRecord(ctx, unit.Subject, unit.Kind)
		if !decision.Allowed {
			p.logger().Warn("unit denied by rate limiter",
				"event", "dispatch_rate_limited",
				"module", "messaging-core/dispatch",
				"layer", "application",
				"message_id", unit.MessageID,
				"subject", unit.Subject,
				"reason", decision.Reason,
				"wait", decision.WaitTime.String(),
			)
			return ports.OutcomeRateLimited
		}
	}

	if p.Gate != nil {
		result, err := p.Gate.Check(ctx, unit.MessageID, unit.Subject, unit.Kind)
		if err != nil {
			p.reject(ctx, unit, err)
			return ports.OutcomeRejected
		}
		if result.IsDuplicate {
			p.logger().Info("duplicate unit short-circuited",
				"event", "dispatch_duplicate",
				"module", "messaging-core/dispatch",
				"layer", "application",
				"message_id", unit.MessageID,
				"subject", unit.Subject,
				"retry_count", result.RetryCount,
			)
			return ports.OutcomeDuplicate
		}
	}

	budget := p.UnitBudget
	if budget <= 0 {
		budget = defaultUnitBudget
	}
	unitCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	if err := p.Handler.Handle(unitCtx, unit); err != nil {
		if faults.ClassOf(err) == faults.ClassValidation {
			p.reject(ctx, unit, err)
			return ports.OutcomeRejected
		}
		entryID := ""
		if p.DeadLetters != nil {
			entryID = p.DeadLetters.SaveFailed(ctx, unit, err)
		}
		p.logger().Error("unit handling failed, parked for retry",
			"event", "dispatch_dead_letter",
			"module", "messaging-core/dispatch",
			"layer", "application",
			"message_id", unit.MessageID,
			"subject", unit.Subject,
			"kind", unit.Kind,
			"entry_id", entryID,
			"fault_class", string(faults.ClassOf(err)),
			"error", err.Error(),
		)
		return ports.OutcomeDeadLetter
	}

	return ports.OutcomeProcessed
}

// reject handles the validation path: the unit is malformed or the handler
// classified the content as unprocessable. Retrying cannot help, so no dead
// letter is written; the subject gets a generic retry hint.
func (p Pipeline) reject(ctx context.Context, unit units.Unit, cause error) {
	p.logger().Warn("unit rejected as unprocessable",
		"event", "dispatch_rejected",
		"module", "messaging-core/dispatch",
		"layer", "application",
		"message_id", unit.MessageID,
		"subject", unit.Subject,
		"kind", unit.Kind,
		"error", cause.Error(),
	)
	if p.Channel == nil || unit.Subject == "" {
		return
	}
	if err := p.Channel.SendText(ctx, unit.Subject, RejectionReply); err != nil {
		p.logger().Warn("rejection reply failed",
			"event", "dispatch_reply_failed",
			"module", "messaging-core/dispatch",
			"layer", "application",
			"subject", unit.Subject,
			"error", err.Error(),
		)
	}
}

func (p Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
