// Package checkpoint persists workflow-engine node state so an investigation
// can suspend at a human-review interrupt and resume, potentially in a
// different process, without losing progress.
package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Load when no snapshot exists for a thread.
var ErrNotFound = errors.New("no checkpoint for thread")

// Interrupt records one suspension point the engine is waiting on.
type Interrupt struct {
	Node      string    `json:"node"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is the self-contained state the engine persists between node
// executions. It must never reference process-only objects — runtime
// collaborators (emitter, HIL client) are supplied separately, per run, by
// the caller of Resume, never stored here.
type Snapshot struct {
	ThreadID   string         `json:"thread_id"`
	State      map[string]any `json:"state"`
	NextNode   string         `json:"next_node"`
	Interrupts []Interrupt    `json:"interrupts"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Checkpointer persists Snapshots keyed by thread_id ("investigation-<uuid>").
type Checkpointer struct {
	q Querier
}

// New returns a Checkpointer bound to q.
func New(q Querier) *Checkpointer {
	return &Checkpointer{q: q}
}

// ThreadID returns the stable checkpoint key for an investigation id.
func ThreadID(investigationID string) string {
	return "investigation-" + investigationID
}

// Save atomically overwrites the snapshot for threadID.
func (c *Checkpointer) Save(ctx context.Context, snap Snapshot) error {
	stateJSON, err := json.Marshal(snap.State)
	if err != nil {
		return fmt.Errorf("marshal checkpoint state: %w", err)
	}
	interruptsJSON, err := json.Marshal(snap.Interrupts)
	if err != nil {
		return fmt.Errorf("marshal checkpoint interrupts: %w", err)
	}

	_, err = c.q.ExecContext(ctx,
		`INSERT INTO workflow_checkpoints (thread_id, state, next_node, interrupts, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (thread_id) DO UPDATE SET
		   state = EXCLUDED.state, next_node = EXCLUDED.next_node,
		   interrupts = EXCLUDED.interrupts, updated_at = EXCLUDED.updated_at`,
		snap.ThreadID, stateJSON, snap.NextNode, interruptsJSON)
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", snap.ThreadID, err)
	}
	return nil
}

// Load returns the latest snapshot for threadID, or ErrNotFound if none exists.
func (c *Checkpointer) Load(ctx context.Context, threadID string) (*Snapshot, error) {
	var snap Snapshot
	var stateJSON, interruptsJSON []byte
	snap.ThreadID = threadID

	err := c.q.QueryRowContext(ctx,
		`SELECT state, next_node, interrupts, updated_at FROM workflow_checkpoints WHERE thread_id = $1`,
		threadID,
	).Scan(&stateJSON, &snap.NextNode, &interruptsJSON, &snap.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", threadID, err)
	}

	if err := json.Unmarshal(stateJSON, &snap.State); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint state: %w", err)
	}
	if err := json.Unmarshal(interruptsJSON, &snap.Interrupts); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint interrupts: %w", err)
	}
	return &snap, nil
}

// Interrupts returns the pending suspension points recorded in the latest
// snapshot for threadID. Returns an empty slice (not an error) if the
// thread has no checkpoint yet.
func (c *Checkpointer) Interrupts(ctx context.Context, threadID string) ([]Interrupt, error) {
	snap, err := c.Load(ctx, threadID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return snap.Interrupts, nil
}
