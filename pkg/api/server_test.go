package api

import (
	"context"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gbrigandi/soctalk/pkg/checkpoint"
	"github.com/gbrigandi/soctalk/pkg/database"
	"github.com/gbrigandi/soctalk/pkg/emitter"
	"github.com/gbrigandi/soctalk/pkg/hil"
	"github.com/gbrigandi/soctalk/pkg/settings"
	"github.com/gbrigandi/soctalk/pkg/sse"
)

func init() {
	gin.SetMode(gin.TestMode)
}

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

// newTestServer wires a Server against a fresh, migrated database with no
// authentication, mirroring AUTH_MODE=none.
func newTestServer(t *testing.T) (*Server, *database.Client) {
	client := newTestDB(t)
	emt := emitter.New(client.DB())
	cp := checkpoint.New(client.DB())
	resolver := hil.NewResolver(client.DB(), emt)
	settingsProvider := settings.NewProvider(client.DB(), false)
	bus := sse.NewBus(16)

	srv := NewServer(client, emt, cp, resolver, settingsProvider, bus, nil)
	return srv, client
}
