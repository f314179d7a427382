package nodes

import (
	"context"
	"fmt"

	"github.com/gbrigandi/soctalk/pkg/models"
	"github.com/gbrigandi/soctalk/pkg/workflow"
)

// mispSearchableTypes are the observable kinds the MISP worker looks up.
// Email is excluded: MISP's IOC feeds in this deployment index network and
// file indicators, not mailbox addresses.
var mispSearchableTypes = map[models.ObservableType]bool{
	models.ObservableIP:     true,
	models.ObservableDomain: true,
	models.ObservableHash:   true,
	models.ObservableURL:    true,
	models.ObservableFQDN:   true,
}

const mispEventContextLimit = 3

// MISPWorker searches the IOC database for each not-yet-checked searchable
// observable, aggregates threat-intel context across hits, and derives
// findings using the spec-pinned severity rules.
func MISPWorker(ctx context.Context, q workflow.Querier, st *workflow.State, rc workflow.RunConfig) (*workflow.State, error) {
	touched := false

	for _, obs := range st.Observables {
		if !mispSearchableTypes[obs.Type] || st.MISPChecked[obs.Key()] {
			continue
		}
		st.MISPChecked[obs.Key()] = true

		matched, err := rc.TI.SearchIOC(ctx, obs)
		if err != nil {
			return st, fmt.Errorf("misp worker: search %s: %w", obs.Key(), err)
		}
		if !matched {
			continue
		}
		touched = true

		events, err := rc.TI.FetchEventContext(ctx, obs, mispEventContextLimit)
		if err != nil {
			return st, fmt.Errorf("misp worker: fetch context %s: %w", obs.Key(), err)
		}

		for _, e := range events {
			st.MISPContext.ThreatActors = mergeUnique(st.MISPContext.ThreatActors, e.ThreatActors)
			st.MISPContext.Campaigns = mergeUnique(st.MISPContext.Campaigns, e.Campaigns)
			if e.Warninglist {
				st.MISPContext.WarninglistHit = true
				st.Findings = append(st.Findings, models.Finding{Source: "misp", Description: "observable " + obs.Value + " appears on a MISP warninglist", Severity: models.SeverityLow})
			}
			if e.ToIDs {
				st.Findings = append(st.Findings, models.Finding{Source: "misp", Description: "observable " + obs.Value + " matches an actionable (to_ids) IOC", Severity: models.SeverityHigh})
			}
			if len(e.ThreatActors) > 0 {
				st.Findings = append(st.Findings, models.Finding{Source: "misp", Description: "threat actor attribution for " + obs.Value, Severity: models.SeverityHigh})
			}
			if len(e.Campaigns) > 0 {
				st.Findings = append(st.Findings, models.Finding{Source: "misp", Description: "campaign link for " + obs.Value, Severity: models.SeverityHigh})
			}
		}
	}

	if touched {
		ev, err := rc.Emitter.MISPContextAdded(ctx, q, st.InvestigationID, st.MISPContext, st.Version)
		if err != nil {
			return st, fmt.Errorf("misp worker: emit context added: %w", err)
		}
		st.Version = ev.Version
	}
	return st, nil
}

func mergeUnique(existing, incoming []string) []string {
	seen := map[string]bool{}
	for _, v := range existing {
		seen[v] = true
	}
	out := existing
	for _, v := range incoming {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
