package hil

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gbrigandi/soctalk/pkg/models"
)

// PollInterval is how often a chat backend checks whether the dashboard has
// already resolved the review it is waiting on.
const PollInterval = 5 * time.Second

// ChatDecision is what a concrete chat backend (Slack, CLI, Discord) reports
// when its interactive control is used.
type ChatDecision struct {
	Decision models.HumanDecision
	Reviewer string
	Feedback string
}

// Outcome is the result of Await: either the chat backend's own button
// press, or a decision derived from the dashboard winning the race.
type Outcome struct {
	Decision models.HumanDecision
	Source   string // "chat" or "dashboard"
	Reviewer string
	Feedback string
}

// Await blocks until one of three things happens: the chat backend's own
// button fires on buttonPressed, the dashboard resolves the review first
// (detected by polling Resolver.PollStatus every PollInterval), or timeout
// elapses. A zero timeout means wait indefinitely. On timeout it returns
// decision more_info with a "HIL review timed out" feedback, sourced as
// "chat" since the chat backend is what gave up.
func Await(ctx context.Context, resolver *Resolver, investigationID uuid.UUID, buttonPressed <-chan ChatDecision, timeout time.Duration) Outcome {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Outcome{Decision: models.HumanMoreInfo, Source: "chat", Feedback: "HIL review timed out"}
		case d := <-buttonPressed:
			return Outcome{Decision: d.Decision, Source: "chat", Reviewer: d.Reviewer, Feedback: d.Feedback}
		case <-ticker.C:
			status, err := resolver.PollStatus(ctx, investigationID)
			if err != nil {
				continue
			}
			if status != models.ReviewPending {
				return Outcome{Decision: decisionFromStatus(status), Source: "dashboard"}
			}
		}
	}
}

func decisionFromStatus(status models.PendingReviewStatus) models.HumanDecision {
	switch status {
	case models.ReviewApproved:
		return models.HumanApprove
	case models.ReviewRejected:
		return models.HumanReject
	default:
		return models.HumanMoreInfo
	}
}
