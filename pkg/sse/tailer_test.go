package sse

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

	"github.com/gbrigandi/soctalk/pkg/database"
	"github.com/gbrigandi/soctalk/pkg/emitter"
	"github.com/gbrigandi/soctalk/pkg/models"
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

func TestTailer_PublishesNewlyCommittedEvent(t *testing.T) {
	client := newTestDB(t)
	emt := emitter.New(client.DB())
	ctx := context.Background()

	bus := NewBus(8)
	_, events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	tailer := NewTailer(client.DB(), bus, time.Millisecond)
	require.NoError(t, tailer.Start(ctx))

	investigationID := uuid.New()
	_, err := emt.InvestigationCreated(ctx, client.DB(), investigationID, "suspicious login", models.SeverityHigh)
	require.NoError(t, err)

	require.NoError(t, tailer.poll(ctx))

	select {
	case ev := <-events:
		assert.Equal(t, models.EventInvestigationCreated, ev.EventType)
		assert.Equal(t, "suspicious login", ev.Data["title"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for tailed event")
	}
}

func TestTailer_DoesNotRepublishEventsAlreadySeen(t *testing.T) {
	client := newTestDB(t)
	emt := emitter.New(client.DB())
	ctx := context.Background()

	bus := NewBus(8)
	_, events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	tailer := NewTailer(client.DB(), bus, time.Millisecond)
	require.NoError(t, tailer.Start(ctx))

	investigationID := uuid.New()
	_, err := emt.InvestigationCreated(ctx, client.DB(), investigationID, "suspicious login", models.SeverityHigh)
	require.NoError(t, err)

	require.NoError(t, tailer.poll(ctx))
	<-events

	// The one-second backward overlap re-selects the same row; the
	// recently-seen set must keep it from being republished.
	require.NoError(t, tailer.poll(ctx))

	select {
	case ev := <-events:
		t.Fatalf("unexpected republish of already-seen event %s", ev.ID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTailer_MarkSeenTrimsOnceCapacityExceeded(t *testing.T) {
	tailer := NewTailer(nil, NewBus(1), time.Second)
	for i := 0; i < recentCapacity+1; i++ {
		tailer.markSeen(uuid.New())
	}
	assert.Len(t, tailer.seenOrder, recentTrimTo)
	assert.Len(t, tailer.seen, recentTrimTo)
}
