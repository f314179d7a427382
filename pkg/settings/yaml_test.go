package settings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings_ExportYAMLRoundTrip(t *testing.T) {
	s := Settings{
		PollingInterval:     5 * time.Second,
		BatchSize:           250,
		CorrelationWindow:   15 * time.Minute,
		AutoCloseThreshold:  0.15,
		EscalationThreshold: 0.8,
		HILBackend:          "chat",
		RetentionDays:       90,
	}

	data, err := s.ExportYAML()
	require.NoError(t, err)
	assert.Contains(t, string(data), "hil_backend: chat")

	restored, err := LoadSettingsFromYAML(data)
	require.NoError(t, err)
	assert.Equal(t, s, restored)
}

func TestLoadSettingsFromYAML_MissingKeysFallBackToDefaults(t *testing.T) {
	restored, err := LoadSettingsFromYAML([]byte("hil_backend: chat\n"))
	require.NoError(t, err)

	defaults := Defaults()
	assert.Equal(t, "chat", restored.HILBackend)
	assert.Equal(t, defaults.BatchSize, restored.BatchSize)
	assert.Equal(t, defaults.PollingInterval, restored.PollingInterval)
}
