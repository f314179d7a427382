package store

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

func TestStore_AppendAndGetEvents(t *testing.T) {
	client := newTestDB(t)
	ctx := context.Background()
	s := New(client.DB())

	aggID := uuid.New()

	ev1, err := s.Append(ctx, aggID, models.AggregateTypeInvestigation, models.EventInvestigationCreated,
		map[string]any{"title": "suspicious login"}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, ev1.Version)

	ev2, err := s.Append(ctx, aggID, models.AggregateTypeInvestigation, models.EventAlertCorrelated,
		map[string]any{"alert_id": "a1"}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, ev2.Version)

	events, err := s.GetEvents(ctx, aggID, nil, nil)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.EventInvestigationCreated, events[0].EventType)
	assert.Equal(t, models.EventAlertCorrelated, events[1].EventType)

	latest, err := s.GetLatestVersion(ctx, aggID)
	require.NoError(t, err)
	assert.Equal(t, 2, latest)
}

func TestStore_ConcurrencyError(t *testing.T) {
	client := newTestDB(t)
	ctx := context.Background()
	s := New(client.DB())

	aggID := uuid.New()
	_, err := s.Append(ctx, aggID, models.AggregateTypeInvestigation, models.EventInvestigationCreated,
		map[string]any{}, nil, nil, nil)
	require.NoError(t, err)

	wrongExpected := 5
	_, err = s.Append(ctx, aggID, models.AggregateTypeInvestigation, models.EventInvestigationStarted,
		map[string]any{}, nil, &wrongExpected, nil)
	require.Error(t, err)

	var concErr *ConcurrencyError
	require.ErrorAs(t, err, &concErr)
	assert.Equal(t, 5, concErr.Expected)
	assert.Equal(t, 1, concErr.Actual)
}

func TestStore_IdempotentAppend(t *testing.T) {
	client := newTestDB(t)
	ctx := context.Background()
	s := New(client.DB())

	aggID := uuid.New()
	key := "inv-created-" + aggID.String()

	first, err := s.Append(ctx, aggID, models.AggregateTypeInvestigation, models.EventInvestigationCreated,
		map[string]any{"title": "x"}, nil, nil, &key)
	require.NoError(t, err)

	second, err := s.Append(ctx, aggID, models.AggregateTypeInvestigation, models.EventInvestigationCreated,
		map[string]any{"title": "x"}, nil, nil, &key)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	latest, err := s.GetLatestVersion(ctx, aggID)
	require.NoError(t, err)
	assert.Equal(t, 1, latest)
}

func TestStore_AppendBatch(t *testing.T) {
	client := newTestDB(t)
	ctx := context.Background()
	s := New(client.DB())

	aggID := uuid.New()
	batch := []models.Event{
		{EventType: models.EventInvestigationCreated, Data: map[string]any{"title": "x"}},
		{EventType: models.EventInvestigationStarted, Data: map[string]any{}},
	}

	inserted, err := s.AppendBatch(ctx, aggID, models.AggregateTypeInvestigation, batch, nil)
	require.NoError(t, err)
	require.Len(t, inserted, 2)
	assert.Equal(t, 1, inserted[0].Version)
	assert.Equal(t, 2, inserted[1].Version)
}

func TestStore_GetEventsByType(t *testing.T) {
	client := newTestDB(t)
	ctx := context.Background()
	s := New(client.DB())

	agg1, agg2 := uuid.New(), uuid.New()
	_, err := s.Append(ctx, agg1, models.AggregateTypeInvestigation, models.EventInvestigationCreated, map[string]any{}, nil, nil, nil)
	require.NoError(t, err)
	_, err = s.Append(ctx, agg2, models.AggregateTypeInvestigation, models.EventInvestigationCreated, map[string]any{}, nil, nil, nil)
	require.NoError(t, err)

	events, err := s.GetEventsByType(ctx, models.EventInvestigationCreated, nil, 10)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(events), 2)
}

func TestStore_GetAllAggregateIDs(t *testing.T) {
	client := newTestDB(t)
	ctx := context.Background()
	s := New(client.DB())

	aggID := uuid.New()
	_, err := s.Append(ctx, aggID, models.AggregateTypeInvestigation, models.EventInvestigationCreated, map[string]any{}, nil, nil, nil)
	require.NoError(t, err)

	ids, err := s.GetAllAggregateIDs(ctx, models.AggregateTypeInvestigation, 100)
	require.NoError(t, err)
	assert.Contains(t, ids, aggID)
}
