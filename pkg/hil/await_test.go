package hil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/gbrigandi/soctalk/pkg/models"
)

func TestAwait_ButtonPressWinsImmediately(t *testing.T) {
	buttonPressed := make(chan ChatDecision, 1)
	buttonPressed <- ChatDecision{Decision: models.HumanApprove, Reviewer: "analyst1"}

	outcome := Await(context.Background(), nil, uuid.New(), buttonPressed, time.Second)
	assert.Equal(t, models.HumanApprove, outcome.Decision)
	assert.Equal(t, "chat", outcome.Source)
	assert.Equal(t, "analyst1", outcome.Reviewer)
}

func TestAwait_TimeoutReturnsMoreInfoFallback(t *testing.T) {
	buttonPressed := make(chan ChatDecision)

	outcome := Await(context.Background(), &Resolver{}, uuid.New(), buttonPressed, 50*time.Millisecond)
	assert.Equal(t, models.HumanMoreInfo, outcome.Decision)
	assert.Equal(t, "chat", outcome.Source)
	assert.Equal(t, "HIL review timed out", outcome.Feedback)
}

func TestDecisionFromStatus(t *testing.T) {
	assert.Equal(t, models.HumanApprove, decisionFromStatus(models.ReviewApproved))
	assert.Equal(t, models.HumanReject, decisionFromStatus(models.ReviewRejected))
	assert.Equal(t, models.HumanMoreInfo, decisionFromStatus(models.ReviewInfoRequest))
}
