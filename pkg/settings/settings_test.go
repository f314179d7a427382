package settings

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gbrigandi/soctalk/pkg/database"
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

func TestProvider_GetFallsBackToDefaultsWhenTableEmpty(t *testing.T) {
	client := newTestDB(t)
	provider := NewProvider(client.DB(), false)

	got, err := provider.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Defaults(), got)
}

func TestProvider_SetThenGetRoundTripsOverriddenKey(t *testing.T) {
	client := newTestDB(t)
	provider := NewProvider(client.DB(), false)

	require.NoError(t, provider.Set(context.Background(), KeyAutoCloseThreshold, 0.35))
	require.NoError(t, provider.Set(context.Background(), KeyHILBackend, "slack"))

	got, err := provider.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.35, got.AutoCloseThreshold)
	assert.Equal(t, "slack", got.HILBackend)
	// Unset keys still fall back to defaults.
	assert.Equal(t, Defaults().BatchSize, got.BatchSize)
}

func TestProvider_SetRejectsUnknownKey(t *testing.T) {
	client := newTestDB(t)
	provider := NewProvider(client.DB(), false)

	err := provider.Set(context.Background(), "not_a_real_key", 1)
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestProvider_ReadOnlyRejectsSetAndReset(t *testing.T) {
	client := newTestDB(t)
	provider := NewProvider(client.DB(), true)

	assert.ErrorIs(t, provider.Set(context.Background(), KeyBatchSize, 50), ErrReadOnly)
	assert.ErrorIs(t, provider.Reset(context.Background()), ErrReadOnly)
}

func TestProvider_ResetRestoresCompiledInDefaults(t *testing.T) {
	client := newTestDB(t)
	provider := NewProvider(client.DB(), false)

	require.NoError(t, provider.Set(context.Background(), KeyEscalationThreshold, 0.99))
	require.NoError(t, provider.Reset(context.Background()))

	got, err := provider.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Defaults(), got)
}
