package correlator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gbrigandi/soctalk/pkg/integrations"
	"github.com/gbrigandi/soctalk/pkg/models"
)

func TestCorrelate_GroupsBySharedAgent(t *testing.T) {
	now := time.Now()
	alerts := []integrations.RawAlert{
		{ID: "a1", AgentName: "web-01", Description: "suspicious login", Severity: models.SeverityMedium, Timestamp: now},
		{ID: "a2", AgentName: "web-01", Description: "repeated auth failure", Severity: models.SeverityHigh, Timestamp: now.Add(time.Minute)},
	}

	groups := Correlate(alerts, DefaultConfig())
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Alerts, 2)
	assert.Equal(t, models.SeverityHigh, groups[0].MaxSeverity)
	assert.Contains(t, groups[0].Title, "+1 related alerts")
}

func TestCorrelate_WindowCutoffSplitsInvestigations(t *testing.T) {
	now := time.Now()
	alerts := []integrations.RawAlert{
		{ID: "a1", AgentName: "web-01", Description: "x", Severity: models.SeverityLow, Timestamp: now},
		{ID: "a2", AgentName: "web-01", Description: "y", Severity: models.SeverityLow, Timestamp: now.Add(-20 * time.Minute)},
	}

	groups := Correlate(alerts, Config{CorrelationWindow: 15 * time.Minute})
	// The bucketing key is still shared, but the 20-minute-old alert falls
	// outside the window relative to the bucket's latest timestamp, so only
	// one alert survives in the single resulting group.
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Alerts, 1)
	assert.Equal(t, "a1", groups[0].Alerts[0].ID)
}

func TestCorrelate_StandaloneAlertsGetOwnBucket(t *testing.T) {
	now := time.Now()
	alerts := []integrations.RawAlert{
		{ID: "a1", Description: "unremarkable event", Severity: models.SeverityLow, Timestamp: now},
		{ID: "a2", Description: "another unremarkable event", Severity: models.SeverityLow, Timestamp: now},
	}

	groups := Correlate(alerts, DefaultConfig())
	require.Len(t, groups, 2)
}

func TestCorrelate_SortedByMaxSeverityDescending(t *testing.T) {
	now := time.Now()
	alerts := []integrations.RawAlert{
		{ID: "a1", AgentName: "host-a", Description: "x", Severity: models.SeverityLow, Timestamp: now},
		{ID: "a2", AgentName: "host-b", Description: "y", Severity: models.SeverityCritical, Timestamp: now},
	}

	groups := Correlate(alerts, DefaultConfig())
	require.Len(t, groups, 2)
	assert.Equal(t, models.SeverityCritical, groups[0].MaxSeverity)
	assert.Equal(t, models.SeverityLow, groups[1].MaxSeverity)
}

func TestCorrelate_IPKeyBeatsRuleGroup(t *testing.T) {
	now := time.Now()
	alerts := []integrations.RawAlert{
		{
			ID: "a1", Description: "possible malware detected", Severity: models.SeverityMedium, Timestamp: now,
			Observables: []models.Observable{{Value: "1.2.3.4", Type: models.ObservableIP}},
		},
		{
			ID: "a2", Description: "malware signature match", Severity: models.SeverityHigh, Timestamp: now,
			Observables: []models.Observable{{Value: "1.2.3.4", Type: models.ObservableIP}},
		},
	}

	groups := Correlate(alerts, DefaultConfig())
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Alerts, 2)
}

func TestCorrelate_DuplicateAlertIDNotDoubleCounted(t *testing.T) {
	now := time.Now()
	alerts := []integrations.RawAlert{
		{ID: "a1", AgentName: "host-a", Description: "x", Severity: models.SeverityLow, Timestamp: now},
		{ID: "a1", AgentName: "host-a", Description: "x", Severity: models.SeverityLow, Timestamp: now},
	}

	groups := Correlate(alerts, DefaultConfig())
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Alerts, 1)
}
