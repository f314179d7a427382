package slack

import (
	"context"
	"log/slog"
	"time"
)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
}

// Service handles Slack notification delivery for HIL review requests.
// Nil-safe: all methods are no-ops when service is nil.
type Service struct {
	client       *Client
	dashboardURL string
	logger       *slog.Logger
}

// NewService creates a new Slack notification service.
// Returns nil if Token or Channel is empty.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{
		client:       NewClient(cfg.Token, cfg.Channel),
		dashboardURL: cfg.DashboardURL,
		logger:       slog.Default().With("component", "slack-service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client, dashboardURL string) *Service {
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "slack-service"),
	}
}

// NotifyReviewRequested posts a HIL review request with interactive
// Approve/Reject buttons. Fail-open: errors are logged, never returned.
func (s *Service) NotifyReviewRequested(ctx context.Context, req ReviewRequest) {
	if s == nil {
		return
	}

	blocks := BuildReviewRequestMessage(req, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, "", 5*time.Second); err != nil {
		s.logger.Error("failed to post review request",
			"investigation_id", req.InvestigationID, "error", err)
	}
}

// NotifyReviewResolved posts a threaded reply to the original review
// request once it has been resolved, from either channel. Fail-open:
// errors (including a missing original message) are logged, never returned.
func (s *Service) NotifyReviewResolved(ctx context.Context, investigationID, decision, source, reviewer string) {
	if s == nil {
		return
	}

	threadTS, err := s.client.FindMessageByFingerprint(ctx, reviewFingerprint(investigationID))
	if err != nil {
		s.logger.Warn("failed to find review message for resolution reply",
			"investigation_id", investigationID, "error", err)
	}
	if threadTS == "" {
		return
	}

	blocks := BuildReviewResolvedMessage(decision, source, reviewer)
	if err := s.client.PostMessage(ctx, blocks, threadTS, 5*time.Second); err != nil {
		s.logger.Error("failed to post review resolution",
			"investigation_id", investigationID, "error", err)
	}
}
