package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/gbrigandi/soctalk/pkg/integrations"
	"github.com/gbrigandi/soctalk/pkg/models"
	"github.com/gbrigandi/soctalk/pkg/workflow"
)

// WazuhWorker dispatches on the supervisor's specific_instructions text to
// pick which forensic query to run, defaulting to a per-agent context pull
// when no instruction matches.
func WazuhWorker(ctx context.Context, q workflow.Querier, st *workflow.State, rc workflow.RunConfig) (*workflow.State, error) {
	instructions := ""
	if st.SupervisorDecision != nil {
		instructions = strings.ToLower(st.SupervisorDecision.SpecificInstructions)
	}

	kind := wazuhKindFor(instructions)
	agents := uniqueAgents(st.Alerts)
	if len(agents) == 0 {
		agents = []string{""}
	}

	for _, agent := range agents {
		result, err := rc.Wazuh.Query(ctx, integrations.WazuhQuery{AgentName: agent, Kind: kind})
		if err != nil {
			return st, fmt.Errorf("wazuh worker: query agent %q: %w", agent, err)
		}
		if result.Finding != nil {
			st.Findings = append(st.Findings, *result.Finding)
		}

		ev, err := rc.Emitter.WazuhQueried(ctx, q, st.InvestigationID, fmt.Sprintf("%s:%s", kind, agent), st.Version)
		if err != nil {
			return st, fmt.Errorf("wazuh worker: emit queried: %w", err)
		}
		st.Version = ev.Version
	}
	return st, nil
}

func wazuhKindFor(instructions string) string {
	switch {
	case strings.Contains(instructions, "forensics"), strings.Contains(instructions, "process"):
		return "processes"
	case strings.Contains(instructions, "vulnerability"), strings.Contains(instructions, "vuln"):
		return "vulnerabilities"
	case strings.Contains(instructions, "log"):
		return "logs"
	default:
		return "context"
	}
}

func uniqueAgents(alerts []models.Alert) []string {
	seen := map[string]bool{}
	var out []string
	for _, a := range alerts {
		if a.AgentName == "" || seen[a.AgentName] {
			continue
		}
		seen[a.AgentName] = true
		out = append(out, a.AgentName)
	}
	return out
}
