package sse

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gbrigandi/soctalk/pkg/models"
)

// DefaultPollInterval is how often the Tailer checks for newly committed
// events when none was supplied to NewTailer.
const DefaultPollInterval = time.Second

// recentCapacity is the bounded recently-seen id set's ceiling; once it
// hits this many entries it is trimmed back down to recentTrimTo.
const (
	recentCapacity = 1000
	recentTrimTo   = 500
)

// Tailer polls the event store for newly committed rows and republishes
// them to a Bus. It queries with a small backward overlap (timestamp >=
// last_ts - 1s) to tolerate commit-order skew between concurrent
// transactions, and relies on a bounded recently-seen id set to de-duplicate
// events the overlap re-selects.
type Tailer struct {
	db           *sql.DB
	bus          *Bus
	pollInterval time.Duration
	lastTS       time.Time
	seen         map[uuid.UUID]struct{}
	seenOrder    []uuid.UUID
}

// NewTailer returns a Tailer publishing to bus. pollInterval <= 0 uses
// DefaultPollInterval.
func NewTailer(db *sql.DB, bus *Bus, pollInterval time.Duration) *Tailer {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Tailer{
		db:           db,
		bus:          bus,
		pollInterval: pollInterval,
		seen:         make(map[uuid.UUID]struct{}),
	}
}

// Start records the latest event timestamp as the tail position. Call once
// before Run so the first poll only sees events committed after startup.
func (t *Tailer) Start(ctx context.Context) error {
	var ts sql.NullTime
	err := t.db.QueryRowContext(ctx, `SELECT max("timestamp") FROM events`).Scan(&ts)
	if err != nil {
		return fmt.Errorf("sse: tailer start: %w", err)
	}
	if ts.Valid {
		t.lastTS = ts.Time
	} else {
		t.lastTS = time.Now()
	}
	return nil
}

// Run polls every pollInterval until ctx is cancelled, publishing newly
// observed events to the bus.
func (t *Tailer) Run(ctx context.Context) {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.poll(ctx); err != nil {
				slog.Error("sse: tailer poll failed", "error", err)
			}
		}
	}
}

// poll runs a single poll iteration. Called by Run on each tick, and
// directly by tests to avoid depending on ticker timing.
func (t *Tailer) poll(ctx context.Context) error {
	since := t.lastTS.Add(-time.Second)
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, event_type, data, "timestamp" FROM events WHERE "timestamp" >= $1 ORDER BY "timestamp" ASC LIMIT 100`,
		since)
	if err != nil {
		return fmt.Errorf("query tail: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id        uuid.UUID
			eventType string
			dataJSON  []byte
			ts        time.Time
		)
		if err := rows.Scan(&id, &eventType, &dataJSON, &ts); err != nil {
			return fmt.Errorf("scan tail row: %w", err)
		}
		if t.hasSeen(id) {
			continue
		}
		t.markSeen(id)

		var data map[string]any
		if err := json.Unmarshal(dataJSON, &data); err != nil {
			slog.Warn("sse: tailer: unmarshal event data failed", "event_id", id, "error", err)
			continue
		}

		t.bus.Publish(BroadcastEvent{ID: id, EventType: models.EventType(eventType), Data: data, Timestamp: ts})
		if ts.After(t.lastTS) {
			t.lastTS = ts
		}
	}
	return rows.Err()
}

func (t *Tailer) hasSeen(id uuid.UUID) bool {
	_, ok := t.seen[id]
	return ok
}

func (t *Tailer) markSeen(id uuid.UUID) {
	t.seen[id] = struct{}{}
	t.seenOrder = append(t.seenOrder, id)
	if len(t.seenOrder) <= recentCapacity {
		return
	}
	drop := len(t.seenOrder) - recentTrimTo
	for _, old := range t.seenOrder[:drop] {
		delete(t.seen, old)
	}
	t.seenOrder = append([]uuid.UUID(nil), t.seenOrder[drop:]...)
}
