package slack

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestService_NilReceiver(t *testing.T) {
	var s *Service

	t.Run("NotifyReviewRequested is no-op", func(t *testing.T) {
		assert.NotPanics(t, func() {
			s.NotifyReviewRequested(context.Background(), ReviewRequest{InvestigationID: "inv-1"})
		})
	})

	t.Run("NotifyReviewResolved is no-op", func(t *testing.T) {
		assert.NotPanics(t, func() {
			s.NotifyReviewResolved(context.Background(), "inv-1", "approve", "chat", "alice")
		})
	})
}

func TestNewService(t *testing.T) {
	t.Run("returns nil when token empty", func(t *testing.T) {
		svc := NewService(ServiceConfig{Token: "", Channel: "C123"})
		assert.Nil(t, svc)
	})

	t.Run("returns nil when channel empty", func(t *testing.T) {
		svc := NewService(ServiceConfig{Token: "xoxb-test", Channel: ""})
		assert.Nil(t, svc)
	})

	t.Run("returns service when configured", func(t *testing.T) {
		svc := NewService(ServiceConfig{
			Token:        "xoxb-test",
			Channel:      "C123",
			DashboardURL: "https://example.com",
		})
		assert.NotNil(t, svc)
	})
}
