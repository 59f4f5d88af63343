package temporal

var TaskQueues = struct {
	Destuffing string
}{
	Destuffing: "cfs-destuffing-queue",
}

var WorkflowNames = struct {
	PlanExecution string
}{
	PlanExecution: "PlanExecutionWorkflow",
}

// Signals are the channels PlanExecutionWorkflow selects on
var Signals = struct {
	ContainerCompleted string
}{
	ContainerCompleted: "containerCompleted",
}

// PlanExecutionWorkflowID keys one workflow run per plan
func PlanExecutionWorkflowID(planID string) string {
	return "plan-execution-" + planID
}
