// Package store implements the append-only event log that is the source of
// truth for every aggregate (pkg/models.AggregateTypeInvestigation today).
// Projections, checkpoints, and every read model are derived from it and can
// always be rebuilt by replaying GetEvents in order.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gbrigandi/soctalk/pkg/models"
)

// Querier is satisfied by both *sql.DB and *sql.Tx. Every mutating Store
// method runs through one, so it can participate in whatever transaction the
// caller already holds — the store never opens its own.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a thin wrapper over a Querier. It holds no state of its own, so
// constructing one per call (store.New(tx)) is cheap and idiomatic.
type Store struct {
	q Querier
}

// New returns a Store bound to q. Pass a *sql.Tx to make Append/AppendBatch
// participate in that transaction, or a *sql.DB for read-only use.
func New(q Querier) *Store {
	return &Store{q: q}
}

// Append inserts one event for aggregateID at the next version.
//
// If idempotencyKey is non-nil and already stored, the existing event is
// returned unchanged and nothing is written. If expectedVersion is non-nil
// and does not match the aggregate's current latest version, a
// *ConcurrencyError is returned.
func (s *Store) Append(
	ctx context.Context,
	aggregateID uuid.UUID,
	aggregateType string,
	eventType models.EventType,
	data, metadata map[string]any,
	expectedVersion *int,
	idempotencyKey *string,
) (*models.Event, error) {
	if idempotencyKey != nil {
		existing, err := s.getByIdempotencyKey(ctx, *idempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	current, err := s.GetLatestVersion(ctx, aggregateID)
	if err != nil {
		return nil, err
	}
	if expectedVersion != nil && *expectedVersion != current {
		return nil, &ConcurrencyError{AggregateID: aggregateID.String(), Expected: *expectedVersion, Actual: current}
	}

	ev := &models.Event{
		ID:             uuid.New(),
		AggregateID:    aggregateID,
		AggregateType:  aggregateType,
		EventType:      eventType,
		Version:        current + 1,
		Timestamp:      time.Now().UTC(),
		Data:           data,
		Metadata:       metadata,
		IdempotencyKey: idempotencyKey,
	}

	if err := s.insert(ctx, ev); err != nil {
		if idempotencyKey != nil && isUniqueViolation(err, "idx_events_idempotency_key") {
			existing, getErr := s.getByIdempotencyKey(ctx, *idempotencyKey)
			if getErr == nil && existing != nil {
				return existing, nil
			}
			return nil, &IdempotencyError{IdempotencyKey: *idempotencyKey}
		}
		if isUniqueViolation(err, "") {
			actual, verErr := s.GetLatestVersion(ctx, aggregateID)
			if verErr == nil {
				return nil, &ConcurrencyError{AggregateID: aggregateID.String(), Expected: ev.Version - 1, Actual: actual}
			}
		}
		return nil, fmt.Errorf("insert event: %w", err)
	}

	return ev, nil
}

// AppendBatch atomically inserts events[] for aggregateID, assigning
// contiguous versions starting at expectedVersion+1 (or current+1 when
// expectedVersion is nil). Each element supplies its EventType/Data/Metadata/
// IdempotencyKey; ID/AggregateID/Version/Timestamp are assigned here.
func (s *Store) AppendBatch(
	ctx context.Context,
	aggregateID uuid.UUID,
	aggregateType string,
	events []models.Event,
	expectedVersion *int,
) ([]models.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}

	current, err := s.GetLatestVersion(ctx, aggregateID)
	if err != nil {
		return nil, err
	}
	if expectedVersion != nil && *expectedVersion != current {
		return nil, &ConcurrencyError{AggregateID: aggregateID.String(), Expected: *expectedVersion, Actual: current}
	}

	out := make([]models.Event, len(events))
	now := time.Now().UTC()
	for i, e := range events {
		out[i] = models.Event{
			ID:             uuid.New(),
			AggregateID:    aggregateID,
			AggregateType:  aggregateType,
			EventType:      e.EventType,
			Version:        current + i + 1,
			Timestamp:      now,
			Data:           e.Data,
			Metadata:       e.Metadata,
			IdempotencyKey: e.IdempotencyKey,
		}
		if err := s.insert(ctx, &out[i]); err != nil {
			if isUniqueViolation(err, "") {
				actual, verErr := s.GetLatestVersion(ctx, aggregateID)
				if verErr == nil {
					return nil, &ConcurrencyError{AggregateID: aggregateID.String(), Expected: current, Actual: actual}
				}
			}
			return nil, fmt.Errorf("insert event batch at index %d: %w", i, err)
		}
	}
	return out, nil
}

// GetEvents returns events for aggregateID ordered by version ascending,
// optionally bounded by fromVersion/toVersion (either may be nil).
func (s *Store) GetEvents(ctx context.Context, aggregateID uuid.UUID, fromVersion, toVersion *int) ([]models.Event, error) {
	query := `SELECT id, aggregate_id, aggregate_type, event_type, version, "timestamp", data, metadata, idempotency_key
	          FROM events WHERE aggregate_id = $1`
	args := []any{aggregateID}
	if fromVersion != nil {
		args = append(args, *fromVersion)
		query += fmt.Sprintf(" AND version >= $%d", len(args))
	}
	if toVersion != nil {
		args = append(args, *toVersion)
		query += fmt.Sprintf(" AND version <= $%d", len(args))
	}
	query += " ORDER BY version ASC"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// GetEventsByType returns up to limit events of eventType, newest first,
// optionally bounded by since (exclusive lower bound on timestamp).
func (s *Store) GetEventsByType(ctx context.Context, eventType models.EventType, since *time.Time, limit int) ([]models.Event, error) {
	query := `SELECT id, aggregate_id, aggregate_type, event_type, version, "timestamp", data, metadata, idempotency_key
	          FROM events WHERE event_type = $1`
	args := []any{eventType}
	if since != nil {
		args = append(args, *since)
		query += fmt.Sprintf(" AND \"timestamp\" > $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY \"timestamp\" DESC LIMIT $%d", len(args))

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events by type: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// GetLatestVersion returns the highest version recorded for aggregateID, or
// 0 if the aggregate has no events.
func (s *Store) GetLatestVersion(ctx context.Context, aggregateID uuid.UUID) (int, error) {
	var version int
	err := s.q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = $1`,
		aggregateID,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("get latest version: %w", err)
	}
	return version, nil
}

// GetAllAggregateIDs returns up to limit distinct aggregate ids of
// aggregateType, ordered by first-event timestamp ascending.
func (s *Store) GetAllAggregateIDs(ctx context.Context, aggregateType string, limit int) ([]uuid.UUID, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT aggregate_id FROM events WHERE aggregate_type = $1
		 GROUP BY aggregate_id ORDER BY MIN("timestamp") ASC LIMIT $2`,
		aggregateType, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get all aggregate ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan aggregate id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) insert(ctx context.Context, ev *models.Event) error {
	dataJSON, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	metaJSON, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("marshal event metadata: %w", err)
	}

	_, err = s.q.ExecContext(ctx,
		`INSERT INTO events (id, aggregate_id, aggregate_type, event_type, version, "timestamp", data, metadata, idempotency_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.ID, ev.AggregateID, ev.AggregateType, ev.EventType, ev.Version, ev.Timestamp, dataJSON, metaJSON, ev.IdempotencyKey,
	)
	return err
}

func (s *Store) getByIdempotencyKey(ctx context.Context, key string) (*models.Event, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, aggregate_id, aggregate_type, event_type, version, "timestamp", data, metadata, idempotency_key
		 FROM events WHERE idempotency_key = $1`,
		key,
	)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event by idempotency key: %w", err)
	}
	return ev, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var ev models.Event
	var dataJSON, metaJSON []byte
	if err := row.Scan(&ev.ID, &ev.AggregateID, &ev.AggregateType, &ev.EventType, &ev.Version,
		&ev.Timestamp, &dataJSON, &metaJSON, &ev.IdempotencyKey); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(dataJSON, &ev.Data); err != nil {
		return nil, fmt.Errorf("unmarshal event data: %w", err)
	}
	if err := json.Unmarshal(metaJSON, &ev.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal event metadata: %w", err)
	}
	return &ev, nil
}

func scanEvents(rows *sql.Rows) ([]models.Event, error) {
	var out []models.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

// isUniqueViolation reports whether err is a Postgres unique_violation
// (23505), optionally narrowed to a specific constraint name. An empty
// constraint matches any unique violation.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
