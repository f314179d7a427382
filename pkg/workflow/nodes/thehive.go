package nodes

import (
	"context"
	"fmt"

	"github.com/gbrigandi/soctalk/pkg/workflow"
)

// TheHiveWorker opens an incident-response case for an approved escalation.
func TheHiveWorker(ctx context.Context, q workflow.Querier, st *workflow.State, rc workflow.RunConfig) (*workflow.State, error) {
	caseID, err := rc.IR.CreateCase(ctx, st.InvestigationID.String(), st.Title, closeDescription(st), st.MaxSeverity)
	if err != nil {
		return st, fmt.Errorf("thehive worker: create case: %w", err)
	}

	ev, err := rc.Emitter.TheHiveCaseCreated(ctx, q, st.InvestigationID, caseID, st.Version)
	if err != nil {
		return st, fmt.Errorf("thehive worker: emit case created: %w", err)
	}
	st.Version = ev.Version
	st.TheHiveCaseID = &caseID
	return st, nil
}
