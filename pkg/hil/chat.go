package hil

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gbrigandi/soctalk/pkg/models"
	"github.com/gbrigandi/soctalk/pkg/slack"
)

// ChatBackend is the Slack-backed implementation of the chat side of the
// dual-channel review. It posts a review request with interactive
// Approve/Reject buttons and routes the resulting interaction callback back
// to whichever goroutine is awaiting that investigation's decision.
type ChatBackend struct {
	service *slack.Service

	mu      sync.Mutex
	waiting map[uuid.UUID]chan ChatDecision
}

// NewChatBackend returns a ChatBackend posting through service. service may
// be nil (Slack not configured), in which case Notify posts nothing but still
// registers the waiter that Resolve delivers to.
func NewChatBackend(service *slack.Service) *ChatBackend {
	return &ChatBackend{service: service, waiting: make(map[uuid.UUID]chan ChatDecision)}
}

// Notify posts the review request and registers a channel that Resolve
// delivers a button press to. The returned cancel func must be called once
// the caller stops waiting (e.g. Await returned), to release the
// registration whether or not a decision ever arrived on it.
func (b *ChatBackend) Notify(ctx context.Context, rc ReviewContext, dashboardURL string) (<-chan ChatDecision, func()) {
	ch := make(chan ChatDecision, 1)
	b.mu.Lock()
	b.waiting[rc.InvestigationID] = ch
	b.mu.Unlock()

	if b.service != nil {
		b.service.NotifyReviewRequested(ctx, slack.ReviewRequest{
			InvestigationID:  rc.InvestigationID.String(),
			Title:            rc.Title,
			Severity:         string(rc.Severity),
			AIDecision:       string(rc.AIDecision),
			AIConfidence:     rc.AIConfidence,
			AIAssessment:     rc.AIAssessment,
			AIRecommendation: rc.AIRecommendation,
		})
	}

	return ch, func() {
		b.mu.Lock()
		delete(b.waiting, rc.InvestigationID)
		b.mu.Unlock()
	}
}

// NotifyResolved posts the threaded resolution reply once a review (from
// either channel) has been decided. No-op if Slack is not configured.
func (b *ChatBackend) NotifyResolved(ctx context.Context, investigationID uuid.UUID, decision models.HumanDecision, source, reviewer string) {
	if b.service == nil {
		return
	}
	b.service.NotifyReviewResolved(ctx, investigationID.String(), string(decision), source, reviewer)
}

// Resolve delivers decision to the goroutine awaiting investigationID, if
// one is currently registered. Returns false for a stale button press (the
// workflow already moved past human_review through the dashboard path).
func (b *ChatBackend) Resolve(investigationID uuid.UUID, decision ChatDecision) bool {
	b.mu.Lock()
	ch, ok := b.waiting[investigationID]
	b.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- decision:
		return true
	default:
		return false
	}
}

// interactionPayload is the subset of a Slack block_actions interaction
// callback this handler needs.
type interactionPayload struct {
	Type    string `json:"type"`
	Actions []struct {
		ActionID string `json:"action_id"`
		Value    string `json:"value"`
	} `json:"actions"`
	User struct {
		Username string `json:"username"`
	} `json:"user"`
}

// HandleInteraction returns an http.HandlerFunc for Slack's interactivity
// request URL. signingSecret verifies the request came from Slack (per
// Slack's signed secrets scheme); pass "" to skip verification in tests.
func (b *ChatBackend) HandleInteraction(signingSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		if signingSecret != "" && !verifySlackSignature(signingSecret, r.Header, body) {
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}

		values, err := url.ParseQuery(string(body))
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		var payload interactionPayload
		if err := json.Unmarshal([]byte(values.Get("payload")), &payload); err != nil {
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}
		if len(payload.Actions) == 0 {
			w.WriteHeader(http.StatusOK)
			return
		}

		action := payload.Actions[0]
		var decision models.HumanDecision
		switch action.ActionID {
		case "approve":
			decision = models.HumanApprove
		case "reject":
			decision = models.HumanReject
		default:
			// "view" is a plain link button; nothing to resolve.
			w.WriteHeader(http.StatusOK)
			return
		}

		investigationID, err := uuid.Parse(action.Value)
		if err != nil {
			slog.Warn("chat interaction carried an unparseable investigation id", "value", action.Value, "error", err)
			w.WriteHeader(http.StatusOK)
			return
		}

		if !b.Resolve(investigationID, ChatDecision{Decision: decision, Reviewer: payload.User.Username}) {
			slog.Info("chat interaction arrived after the review was already resolved", "investigation_id", investigationID)
		}
		w.WriteHeader(http.StatusOK)
	}
}

// verifySlackSignature implements Slack's v0 request signing scheme:
// the expected signature is HMAC-SHA256("v0:<timestamp>:<body>", signingSecret).
func verifySlackSignature(signingSecret string, header http.Header, body []byte) bool {
	ts := header.Get("X-Slack-Request-Timestamp")
	sig := header.Get("X-Slack-Signature")
	if ts == "" || sig == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(signingSecret))
	mac.Write([]byte("v0:" + ts + ":"))
	mac.Write(body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}

// reviewTimeout is how long AwaitViaChat waits for either channel to
// resolve a review before falling back to the HIL-timeout outcome.
const reviewTimeout = 24 * time.Hour

// AwaitViaChat posts the review request, races the chat button against the
// dashboard (see Await), posts the resolution reply, and returns the
// outcome. The caller is responsible for driving the workflow engine
// forward with the result; a chat-sourced outcome still needs to be
// persisted (see pkg/workflow/nodes.HumanReview's resume path), while a
// dashboard-sourced one was already persisted by Resolver.ResolveDashboard.
func (b *ChatBackend) AwaitViaChat(ctx context.Context, resolver *Resolver, investigationID uuid.UUID, dashboardURL string) (Outcome, error) {
	rc, err := resolver.GetReviewContext(ctx, investigationID)
	if err != nil {
		return Outcome{}, fmt.Errorf("hil: await via chat: %w", err)
	}

	ch, cancel := b.Notify(ctx, rc, dashboardURL)
	defer cancel()

	outcome := Await(ctx, resolver, investigationID, ch, reviewTimeout)
	b.NotifyResolved(ctx, investigationID, outcome.Decision, outcome.Source, outcome.Reviewer)
	return outcome, nil
}
