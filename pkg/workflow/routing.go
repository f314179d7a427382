package workflow

import "github.com/gbrigandi/soctalk/pkg/models"

// Node names spec.md §4.8's graph.
const (
	NodeSupervisor    = "supervisor"
	NodeWazuhWorker   = "wazuh_worker"
	NodeCortexWorker  = "cortex_worker"
	NodeMISPWorker    = "misp_worker"
	NodeVerdict       = "verdict"
	NodeHumanReview   = "human_review"
	NodeTheHiveWorker = "thehive_worker"
	NodeClose         = "close"
	nodeEnd           = ""
)

// routeFromSupervisor maps the supervisor's chosen action to the next node.
// Unknown actions default to cortex_worker.
func routeFromSupervisor(st *State) string {
	if st.SupervisorDecision == nil {
		return NodeCortexWorker
	}
	switch st.SupervisorDecision.NextAction {
	case models.ActionInvestigate:
		return NodeWazuhWorker
	case models.ActionEnrich:
		return NodeCortexWorker
	case models.ActionContextualize:
		return NodeMISPWorker
	case models.ActionVerdict:
		return NodeVerdict
	case models.ActionClose:
		return NodeClose
	default:
		return NodeCortexWorker
	}
}

// routeFromVerdict applies the bounded-retry rule: once VerdictRetryCount
// reaches MaxVerdictRetries, needs_more_info is forced to human_review
// instead of looping back to the supervisor again.
func routeFromVerdict(st *State) string {
	if st.Verdict == nil {
		return NodeSupervisor
	}
	switch st.Verdict.Decision {
	case models.DecisionEscalate:
		return NodeHumanReview
	case models.DecisionClose:
		return NodeClose
	case models.DecisionNeedsMoreInfo:
		if st.VerdictRetryCount >= MaxVerdictRetries {
			return NodeHumanReview
		}
		return NodeSupervisor
	default:
		return NodeSupervisor
	}
}

// routeFromHumanReview maps a resolved human decision to the next node.
func routeFromHumanReview(st *State) string {
	if st.PendingReview == nil {
		return NodeClose
	}
	switch st.PendingReview.Decision {
	case models.HumanApprove:
		return NodeTheHiveWorker
	case models.HumanReject:
		return NodeClose
	case models.HumanMoreInfo:
		return NodeSupervisor
	default:
		return NodeClose
	}
}

// nextNode determines the successor of a just-executed node. Worker nodes
// always return to the supervisor; thehive_worker always proceeds to close;
// close terminates the graph.
func nextNode(current string, st *State) string {
	switch current {
	case NodeSupervisor:
		return routeFromSupervisor(st)
	case NodeWazuhWorker, NodeCortexWorker, NodeMISPWorker:
		return NodeSupervisor
	case NodeVerdict:
		return routeFromVerdict(st)
	case NodeHumanReview:
		return routeFromHumanReview(st)
	case NodeTheHiveWorker:
		return NodeClose
	case NodeClose:
		return nodeEnd
	default:
		return nodeEnd
	}
}
