package nodes

import "github.com/gbrigandi/soctalk/pkg/workflow"

// Registry returns the full set of node implementations, keyed by the node
// names workflow.Engine expects.
func Registry() map[string]workflow.NodeFunc {
	return map[string]workflow.NodeFunc{
		workflow.NodeSupervisor:    Supervisor,
		workflow.NodeCortexWorker:  CortexWorker,
		workflow.NodeWazuhWorker:   WazuhWorker,
		workflow.NodeMISPWorker:    MISPWorker,
		workflow.NodeVerdict:       Verdict,
		workflow.NodeHumanReview:   HumanReview,
		workflow.NodeTheHiveWorker: TheHiveWorker,
		workflow.NodeClose:         Close,
	}
}
