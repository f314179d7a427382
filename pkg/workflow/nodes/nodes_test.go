package nodes

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gbrigandi/soctalk/pkg/checkpoint"
	"github.com/gbrigandi/soctalk/pkg/database"
	"github.com/gbrigandi/soctalk/pkg/emitter"
	"github.com/gbrigandi/soctalk/pkg/integrations"
	"github.com/gbrigandi/soctalk/pkg/models"
	"github.com/gbrigandi/soctalk/pkg/workflow"
)

func newTestDB(t *testing.T) *database.Client {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	client, err := database.NewClient(ctx, database.Config{
		Host:            host,
		Port:            port.Int(),
		User:            "test",
		Password:        "test",
		Database:        "test",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 15 * time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client
}

// TestHappyPathAutoClose exercises the auto-close scenario: one low-severity
// alert with a benign IP observable, one enrichment round, a close verdict.
func TestHappyPathAutoClose(t *testing.T) {
	client := newTestDB(t)
	ctx := context.Background()
	emt := emitter.New(client.DB())
	cp := checkpoint.New(client.DB())

	investigationID := uuid.New()
	tx, err := client.DB().BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = emt.InvestigationCreated(ctx, tx, investigationID, "DNS query to known-good resolver", models.SeverityLow)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	alert := models.Alert{
		ID:          "a1",
		Description: "DNS query to known-good resolver",
		Severity:    models.SeverityLow,
		Timestamp:   time.Now(),
		Observables: []models.Observable{{Value: "8.8.8.8", Type: models.ObservableIP}},
	}
	st := workflow.NewState(investigationID, alert.Description, models.SeverityLow, []models.Alert{alert})

	rc := workflow.RunConfig{
		Emitter:  emt,
		Analyzer: &integrations.StubAnalyzerClient{Responses: map[string]string{"abuseipdb": "AbuseIPDB confidence score: 5"}},
		IR:       integrations.NewStubIRClient(),
		TI:       integrations.NewStubTIClient(),
		Wazuh:    integrations.NewStubWazuhClient(),
		FastModel: integrations.NewStubChatModel(
			`{"next_action":"ENRICH","action_reasoning":"pending observables","tp_confidence":0.5,"confidence_reasoning":"unknown yet"}`,
			`{"next_action":"VERDICT","action_reasoning":"enrichment complete","tp_confidence":0.2,"confidence_reasoning":"benign ip"}`,
		),
		ReasoningModel: integrations.NewStubChatModel(
			`{"decision":"close","confidence":0.9,"impact":"low","urgency":"low","evidence":["benign ip"],"recommendation":"no action","reasoning":"benign resolver IP, no further action needed"}`,
		),
	}

	eng := workflow.New(client.DB(), cp, rc, Registry())
	suspended, err := eng.Run(ctx, st)
	require.NoError(t, err)
	assert.False(t, suspended)

	var status string
	var maliciousCount int
	err = client.DB().QueryRowContext(ctx, `SELECT status, malicious_count FROM investigations WHERE id = $1`, investigationID).
		Scan(&status, &maliciousCount)
	require.NoError(t, err)
	assert.Equal(t, "auto_closed", status)
	assert.Equal(t, 0, maliciousCount)
}

// TestEscalationPath drives a malicious verdict through human review
// approval into thehive_worker and close, verifying the escalated status.
func TestEscalationPath(t *testing.T) {
	client := newTestDB(t)
	ctx := context.Background()
	emt := emitter.New(client.DB())
	cp := checkpoint.New(client.DB())

	investigationID := uuid.New()
	tx, err := client.DB().BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = emt.InvestigationCreated(ctx, tx, investigationID, "credential stuffing", models.SeverityCritical)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	alert := models.Alert{
		ID: "a1", Description: "credential stuffing", Severity: models.SeverityCritical, Timestamp: time.Now(),
		Observables: []models.Observable{{Value: "1.2.3.4", Type: models.ObservableIP}},
	}
	st := workflow.NewState(investigationID, alert.Description, models.SeverityCritical, []models.Alert{alert})

	rc := workflow.RunConfig{
		Emitter:  emt,
		Analyzer: &integrations.StubAnalyzerClient{Responses: map[string]string{"abuseipdb": "AbuseIPDB confidence score: 95"}},
		IR:       integrations.NewStubIRClient(),
		TI:       integrations.NewStubTIClient(),
		Wazuh:    integrations.NewStubWazuhClient(),
		FastModel: integrations.NewStubChatModel(
			`{"next_action":"ENRICH","action_reasoning":"check ip","tp_confidence":0.8,"confidence_reasoning":"looks bad"}`,
			`{"next_action":"VERDICT","action_reasoning":"confirmed malicious","tp_confidence":0.9,"confidence_reasoning":"malicious ip"}`,
		),
		ReasoningModel: integrations.NewStubChatModel(
			`{"decision":"escalate","confidence":0.95,"impact":"high","urgency":"high","evidence":["malicious ip"],"recommendation":"escalate to IR","reasoning":"confirmed malicious source"}`,
		),
	}

	eng := workflow.New(client.DB(), cp, rc, Registry())
	suspended, err := eng.Run(ctx, st)
	require.NoError(t, err)
	require.True(t, suspended)

	var pendingCount int
	err = client.DB().QueryRowContext(ctx, `SELECT count(*) FROM pending_reviews WHERE investigation_id = $1`, investigationID).Scan(&pendingCount)
	require.NoError(t, err)
	assert.Equal(t, 1, pendingCount)

	suspended, err = eng.Resume(ctx, investigationID, workflow.ReviewInjection{Decision: models.HumanApprove, Reviewer: "analyst1", Source: "dashboard"})
	require.NoError(t, err)
	assert.False(t, suspended)

	var status string
	err = client.DB().QueryRowContext(ctx, `SELECT status FROM investigations WHERE id = $1`, investigationID).Scan(&status)
	require.NoError(t, err)
	assert.Equal(t, "escalated", status)
}
