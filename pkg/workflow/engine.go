package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gbrigandi/soctalk/pkg/checkpoint"
	"github.com/gbrigandi/soctalk/pkg/emitter"
	"github.com/gbrigandi/soctalk/pkg/integrations"
	"github.com/gbrigandi/soctalk/pkg/store"
)

// ErrSuspend is returned by a node function to signal that the engine must
// stop advancing the graph and persist a checkpoint at the current node.
// Only the human_review node uses this today.
var ErrSuspend = errors.New("workflow: suspend")

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// RunConfig bundles the per-run collaborators nodes need. It is threaded
// through every node call and is never persisted — SPEC_FULL.md §4.8: "Per-
// run configuration (never persisted): event emitter, HIL service handle,
// HIL backend name."
type RunConfig struct {
	Emitter        *emitter.Emitter
	Analyzer       integrations.AnalyzerClient
	IR             integrations.IRClient
	TI             integrations.TIClient
	Wazuh          integrations.WazuhClient
	FastModel      integrations.ChatModel // supervisor's model
	ReasoningModel integrations.ChatModel // verdict node's model
	HILBackendName string
}

// NodeFunc is one graph node: a transformation over State with IO routed
// through q (the current step's transaction) and rc (runtime collaborators).
// A node requesting suspension returns ErrSuspend.
type NodeFunc func(ctx context.Context, q Querier, st *State, rc RunConfig) (*State, error)

// Engine executes the graph one node at a time, persisting a checkpoint
// after every step before control returns to the caller.
type Engine struct {
	db           *sql.DB
	checkpointer *checkpoint.Checkpointer
	nodes        map[string]NodeFunc
	rc           RunConfig
}

// New returns an Engine wired with the given node implementations.
func New(db *sql.DB, checkpointer *checkpoint.Checkpointer, rc RunConfig, nodes map[string]NodeFunc) *Engine {
	return &Engine{db: db, checkpointer: checkpointer, nodes: nodes, rc: rc}
}

// Run drives a freshly-created investigation's state through the graph
// starting at the supervisor node, until it either suspends at human_review
// or reaches close. suspended reports which of those happened. It first sets
// st.Version to the aggregate's latest stored version, so the first emitting
// node appends after the events already written for the investigation.
func (e *Engine) Run(ctx context.Context, st *State) (suspended bool, err error) {
	version, err := store.New(e.db).GetLatestVersion(ctx, st.InvestigationID)
	if err != nil {
		return false, fmt.Errorf("workflow: read aggregate version: %w", err)
	}
	st.Version = version
	return e.drive(ctx, NodeSupervisor, st)
}

// Resume reloads the checkpoint for investigationID, injects the resolved
// human decision, and continues execution from the node the workflow
// suspended at.
func (e *Engine) Resume(ctx context.Context, investigationID uuid.UUID, decision ReviewInjection) (suspended bool, err error) {
	threadID := checkpoint.ThreadID(investigationID.String())
	snap, err := e.checkpointer.Load(ctx, threadID)
	if err != nil {
		return false, fmt.Errorf("resume: load checkpoint: %w", err)
	}

	st, err := FromSnapshotState(snap.State)
	if err != nil {
		return false, fmt.Errorf("resume: rebuild state: %w", err)
	}
	st.PendingReview = &decision

	return e.drive(ctx, snap.NextNode, st)
}

func (e *Engine) drive(ctx context.Context, start string, st *State) (bool, error) {
	current := start

	for {
		if st.Cancelled && current != NodeClose {
			current = NodeClose
		}

		fn, ok := e.nodes[current]
		if !ok {
			return false, fmt.Errorf("workflow: no node registered for %q", current)
		}

		tx, err := e.db.BeginTx(ctx, nil)
		if err != nil {
			return false, fmt.Errorf("workflow: begin step transaction: %w", err)
		}

		newSt, nodeErr := fn(ctx, tx, st, e.rc)
		if nodeErr != nil && !errors.Is(nodeErr, ErrSuspend) {
			_ = tx.Rollback()
			return false, fmt.Errorf("workflow: node %q: %w", current, nodeErr)
		}

		suspending := errors.Is(nodeErr, ErrSuspend)
		next := current
		if !suspending {
			next = nextNode(current, newSt)
		}

		snapState, err := newSt.ToSnapshotState()
		if err != nil {
			_ = tx.Rollback()
			return false, err
		}

		snap := checkpoint.Snapshot{
			ThreadID: checkpoint.ThreadID(newSt.InvestigationID.String()),
			State:    snapState,
			NextNode: next,
		}
		if suspending {
			snap.Interrupts = []checkpoint.Interrupt{{Node: current, Reason: "human_review", CreatedAt: nowFunc()}}
		}
		if err := checkpoint.New(tx).Save(ctx, snap); err != nil {
			_ = tx.Rollback()
			return false, fmt.Errorf("workflow: save checkpoint: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("workflow: commit step: %w", err)
		}

		st = newSt
		if suspending {
			slog.Info("workflow suspended", "investigation_id", st.InvestigationID, "node", current)
			return true, nil
		}
		if next == nodeEnd {
			return false, nil
		}
		current = next
	}
}

// nowFunc is a seam so tests can avoid depending on wall-clock time if ever
// needed; production always uses time.Now.
var nowFunc = time.Now
