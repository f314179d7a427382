package integrations

import (
	"context"
	"fmt"
	"sync"

	"github.com/gbrigandi/soctalk/pkg/models"
)

// StubSIEMClient serves a fixed, in-memory backlog of alerts — useful for
// tests and for running the pipeline without a live Wazuh manager.
type StubSIEMClient struct {
	mu     sync.Mutex
	Alerts []RawAlert
}

// NewStubSIEMClient returns a StubSIEMClient preloaded with alerts.
func NewStubSIEMClient(alerts ...RawAlert) *StubSIEMClient {
	return &StubSIEMClient{Alerts: alerts}
}

func (s *StubSIEMClient) FetchAlerts(_ context.Context, max int) ([]RawAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if max > len(s.Alerts) {
		max = len(s.Alerts)
	}
	out := s.Alerts[:max]
	s.Alerts = s.Alerts[max:]
	return out, nil
}

// Push appends alerts for a later FetchAlerts call to return.
func (s *StubSIEMClient) Push(alerts ...RawAlert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Alerts = append(s.Alerts, alerts...)
}

// StubAnalyzerClient returns a canned raw response per analyzer name,
// falling back to a generic "clean" response.
type StubAnalyzerClient struct {
	Responses map[string]string
}

func NewStubAnalyzerClient() *StubAnalyzerClient {
	return &StubAnalyzerClient{Responses: make(map[string]string)}
}

func (s *StubAnalyzerClient) Invoke(_ context.Context, call AnalyzerCall) (string, error) {
	if resp, ok := s.Responses[call.Analyzer]; ok {
		return resp, nil
	}
	return fmt.Sprintf("%s: no abuse reports for %s", call.Analyzer, call.Observable.Value), nil
}

// StubIRClient mints sequential case IDs without contacting TheHive.
type StubIRClient struct {
	mu       sync.Mutex
	Sequence int
}

func NewStubIRClient() *StubIRClient {
	return &StubIRClient{}
}

func (s *StubIRClient) CreateCase(_ context.Context, investigationID string, _ string, _ string, _ models.Severity) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sequence++
	return fmt.Sprintf("case-%d-%s", s.Sequence, investigationID[:8]), nil
}

// StubTIClient matches only observables whose Key is in Matches; a fresh one
// matches nothing, as if the MISP instance holds no IOCs relevant to the test
// fixture.
type StubTIClient struct {
	Matches map[string][]MISPEvent
}

func NewStubTIClient() *StubTIClient {
	return &StubTIClient{Matches: make(map[string][]MISPEvent)}
}

func (s *StubTIClient) SearchIOC(_ context.Context, obs models.Observable) (bool, error) {
	_, ok := s.Matches[obs.Key()]
	return ok, nil
}

func (s *StubTIClient) FetchEventContext(_ context.Context, obs models.Observable, limit int) ([]MISPEvent, error) {
	events := s.Matches[obs.Key()]
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// StubChatModel returns a fixed response regardless of prompt, or a
// per-call sequence of responses if Responses is populated.
type StubChatModel struct {
	mu        sync.Mutex
	Responses []string
	call      int
}

func NewStubChatModel(responses ...string) *StubChatModel {
	return &StubChatModel{Responses: responses}
}

func (s *StubChatModel) Complete(_ context.Context, _ string, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Responses) == 0 {
		return `{"next_action":"VERDICT","action_reasoning":"stub","tp_confidence":0.5,"confidence_reasoning":"stub"}`, nil
	}
	resp := s.Responses[s.call%len(s.Responses)]
	s.call++
	return resp, nil
}

// StubWazuhClient returns a canned summary for every query.
type StubWazuhClient struct{}

func NewStubWazuhClient() *StubWazuhClient {
	return &StubWazuhClient{}
}

func (s *StubWazuhClient) Query(_ context.Context, q WazuhQuery) (WazuhResult, error) {
	return WazuhResult{Summary: fmt.Sprintf("no anomalies found for %s (%s)", q.AgentName, q.Kind)}, nil
}
