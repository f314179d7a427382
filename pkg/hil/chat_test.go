package hil

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gbrigandi/soctalk/pkg/models"
)

func TestChatBackend_NotifyRegistersWaiterAndCancelRemovesIt(t *testing.T) {
	b := NewChatBackend(nil)
	id := uuid.New()

	ch, cancel := b.Notify(context.Background(), ReviewContext{InvestigationID: id}, "https://dash.example.com")
	require.NotNil(t, ch)

	assert.True(t, b.Resolve(id, ChatDecision{Decision: models.HumanApprove}))

	cancel()
	assert.False(t, b.Resolve(id, ChatDecision{Decision: models.HumanApprove}), "resolve after cancel should be a no-op")
}

func TestChatBackend_ResolveUnknownInvestigationReturnsFalse(t *testing.T) {
	b := NewChatBackend(nil)
	assert.False(t, b.Resolve(uuid.New(), ChatDecision{Decision: models.HumanApprove}))
}

func signSlackRequest(t *testing.T, secret string, ts string, body []byte) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + ts + ":"))
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func TestChatBackend_HandleInteraction_ApproveResolvesWaiter(t *testing.T) {
	b := NewChatBackend(nil)
	id := uuid.New()
	ch, cancel := b.Notify(context.Background(), ReviewContext{InvestigationID: id}, "https://dash.example.com")
	defer cancel()

	payload := `{"type":"block_actions","actions":[{"action_id":"approve","value":"` + id.String() + `"}],"user":{"username":"alice"}}`
	body := []byte(url.Values{"payload": {payload}}.Encode())

	req := httptest.NewRequest(http.MethodPost, "/slack/interactions", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()

	b.HandleInteraction("").ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	select {
	case d := <-ch:
		assert.Equal(t, models.HumanApprove, d.Decision)
		assert.Equal(t, "alice", d.Reviewer)
	case <-time.After(time.Second):
		t.Fatal("decision was never delivered")
	}
}

func TestChatBackend_HandleInteraction_RejectsBadSignature(t *testing.T) {
	b := NewChatBackend(nil)
	payload := `{"type":"block_actions","actions":[]}`
	body := []byte(url.Values{"payload": {payload}}.Encode())

	req := httptest.NewRequest(http.MethodPost, "/slack/interactions", strings.NewReader(string(body)))
	req.Header.Set("X-Slack-Request-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	req.Header.Set("X-Slack-Signature", "v0=deadbeef")
	rec := httptest.NewRecorder()

	b.HandleInteraction("a-signing-secret").ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChatBackend_HandleInteraction_AcceptsValidSignature(t *testing.T) {
	b := NewChatBackend(nil)
	payload := `{"type":"block_actions","actions":[]}`
	body := []byte(url.Values{"payload": {payload}}.Encode())
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	secret := "a-signing-secret"

	req := httptest.NewRequest(http.MethodPost, "/slack/interactions", strings.NewReader(string(body)))
	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", signSlackRequest(t, secret, ts, body))
	rec := httptest.NewRecorder()

	b.HandleInteraction(secret).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChatBackend_HandleInteraction_IgnoresViewButton(t *testing.T) {
	b := NewChatBackend(nil)
	id := uuid.New()
	ch, cancel := b.Notify(context.Background(), ReviewContext{InvestigationID: id}, "https://dash.example.com")
	defer cancel()

	payload := `{"type":"block_actions","actions":[{"action_id":"view","value":""}]}`
	body := []byte(url.Values{"payload": {payload}}.Encode())

	req := httptest.NewRequest(http.MethodPost, "/slack/interactions", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()

	b.HandleInteraction("").ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	select {
	case <-ch:
		t.Fatal("a view-link button press should not resolve the waiter")
	case <-time.After(50 * time.Millisecond):
	}
}
