// Package integrations defines the minimal interfaces the workflow engine's
// nodes, the poller, and the HIL resolver consume from external systems
// (SIEM, threat-intel analyzers, the incident-response case system, and the
// chat-backed LLM). Real HTTP clients for Wazuh, Cortex, MISP, TheHive,
// Anthropic, and OpenAI are out of scope — rewriting the enrichment tool
// suite and the LLM client is explicitly excluded. Each interface ships one
// in-memory stub so the rest of the pipeline is runnable end to end without
// a live backend.
package integrations

import (
	"context"
	"time"

	"github.com/gbrigandi/soctalk/pkg/models"
)

// RawAlert is what the SIEM interface returns: an alert the poller has not
// yet interpreted into models.Alert.
type RawAlert struct {
	ID          string
	RuleID      string
	Description string
	AgentName   string
	Severity    models.Severity
	Timestamp   time.Time
	Observables []models.Observable
	Raw         map[string]any
}

// SIEMClient fetches alerts. Implementations must be safe for the poller's
// single goroutine to call repeatedly; no concurrent-call guarantee is
// required.
type SIEMClient interface {
	FetchAlerts(ctx context.Context, max int) ([]RawAlert, error)
}

// AnalyzerCall is one request to a named analyzer tool against one observable.
type AnalyzerCall struct {
	Analyzer   string
	Observable models.Observable
}

// AnalyzerResult is the parsed outcome of one AnalyzerCall.
type AnalyzerResult struct {
	Verdict    models.EnrichmentVerdict
	Confidence float64
	Details    string
}

// AnalyzerClient invokes a threat-intel analyzer tool (AbuseIPDB, VirusTotal,
// urlscan, AbuseFinder, ...) and returns its raw textual response. Parsing
// that text into an AnalyzerResult is the Cortex worker's job (pkg/workflow/
// nodes), not the client's — the client only speaks to the analyzer.
type AnalyzerClient interface {
	Invoke(ctx context.Context, call AnalyzerCall) (rawResponse string, err error)
}

// IRClient opens incident-response cases (TheHive).
type IRClient interface {
	CreateCase(ctx context.Context, investigationID string, title, description string, severity models.Severity) (caseID string, err error)
}

// MISPEvent is one threat-intel event context returned by a MISP search hit.
type MISPEvent struct {
	ThreatActors []string
	Campaigns    []string
	ToIDs        bool
	Warninglist  bool
}

// TIClient searches the MISP IOC database.
type TIClient interface {
	SearchIOC(ctx context.Context, obs models.Observable) (matched bool, err error)
	FetchEventContext(ctx context.Context, obs models.Observable, limit int) ([]MISPEvent, error)
}

// ChatModel is the opaque text-in/text-out contract the supervisor, verdict,
// and HIL-inquiry code call through. Higher-level code never inspects
// provider-specific request/response shapes — see pkg/llmparse for the
// text→typed-record boundary this interface sits behind.
type ChatModel interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// WazuhQuery is the set of forensic lookups the Wazuh worker can issue.
type WazuhQuery struct {
	AgentName string
	Kind      string // "processes", "ports", "vulnerabilities", "logs", "context"
}

// WazuhResult is the free-text summary returned for one query.
type WazuhResult struct {
	Summary string
	Finding *models.Finding
}

// WazuhClient issues forensic queries against SIEM agents, distinct from
// SIEMClient's alert-fetching role.
type WazuhClient interface {
	Query(ctx context.Context, q WazuhQuery) (WazuhResult, error)
}
