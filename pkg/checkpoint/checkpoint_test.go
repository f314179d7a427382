package checkpoint

import (
	"context"
	"errors"
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

func TestCheckpointer_SaveLoadOverwrite(t *testing.T) {
	client := newTestDB(t)
	ctx := context.Background()
	c := New(client.DB())

	threadID := ThreadID("11111111-1111-1111-1111-111111111111")

	_, err := c.Load(ctx, threadID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.Save(ctx, Snapshot{
		ThreadID: threadID,
		State:    map[string]any{"iteration": float64(1)},
		NextNode: "supervisor",
	}))

	snap, err := c.Load(ctx, threadID)
	require.NoError(t, err)
	assert.Equal(t, "supervisor", snap.NextNode)
	assert.Equal(t, float64(1), snap.State["iteration"])
	assert.Empty(t, snap.Interrupts)

	require.NoError(t, c.Save(ctx, Snapshot{
		ThreadID: threadID,
		State:    map[string]any{"iteration": float64(2)},
		NextNode: "human_review",
		Interrupts: []Interrupt{
			{Node: "human_review", Reason: "awaiting analyst decision", CreatedAt: time.Now().UTC()},
		},
	}))

	snap, err = c.Load(ctx, threadID)
	require.NoError(t, err)
	assert.Equal(t, "human_review", snap.NextNode)
	assert.Equal(t, float64(2), snap.State["iteration"])
	require.Len(t, snap.Interrupts, 1)
	assert.Equal(t, "human_review", snap.Interrupts[0].Node)
}

func TestCheckpointer_Interrupts_NoCheckpointYet(t *testing.T) {
	client := newTestDB(t)
	ctx := context.Background()
	c := New(client.DB())

	interrupts, err := c.Interrupts(ctx, ThreadID("nonexistent"))
	require.NoError(t, err)
	assert.Empty(t, interrupts)
}

func TestCheckpointer_LoadWrappedError(t *testing.T) {
	var target error = ErrNotFound
	assert.True(t, errors.Is(target, ErrNotFound))
}
