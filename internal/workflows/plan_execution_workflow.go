package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/wms-platform/cfs-destuffing-service/pkg/temporal"
)

// PlanExecutionTimeout bounds how long a plan waits for its containers
const PlanExecutionTimeout = 72 * time.Hour

// ProgressQuery returns the containers completed so far
const ProgressQuery = "progress"

// Plan execution statuses
const (
	PlanStatusDone     = "done"
	PlanStatusTimedOut = "timed-out"
)

// PlanExecutionInput is the input to PlanExecutionWorkflow
type PlanExecutionInput struct {
	PlanID       string   `json:"planId"`
	ContainerIDs []string `json:"containerIds"`
}

// ContainerCompletedSignal is sent when a plan container closes
type ContainerCompletedSignal struct {
	ContainerID string    `json:"containerId"`
	CompletedAt time.Time `json:"completedAt"`
}

// PlanExecutionResult is the outcome of a plan execution
type PlanExecutionResult struct {
	PlanID              string   `json:"planId"`
	CompletedContainers []string `json:"completedContainers"`
	Status              string   `json:"status"`
}

// PlanExecutionWorkflow waits for every container of a plan to complete and
// then journals the plan completion.
func PlanExecutionWorkflow(ctx workflow.Context, input PlanExecutionInput) (*PlanExecutionResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting plan execution workflow", "planId", input.PlanID, "containers", len(input.ContainerIDs))

	expected := make(map[string]bool, len(input.ContainerIDs))
	for _, id := range input.ContainerIDs {
		expected[id] = true
	}
	completed := make([]string, 0, len(expected))
	seen := make(map[string]bool, len(expected))

	err := workflow.SetQueryHandler(ctx, ProgressQuery, func() (PlanExecutionResult, error) {
		return PlanExecutionResult{
			PlanID:              input.PlanID,
			CompletedContainers: append([]string(nil), completed...),
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register progress query: %w", err)
	}

	signals := workflow.GetSignalChannel(ctx, temporal.Signals.ContainerCompleted)
	timerCtx, cancelTimer := workflow.WithCancel(ctx)
	defer cancelTimer()
	deadline := workflow.NewTimer(timerCtx, PlanExecutionTimeout)
	timedOut := false

	for len(completed) < len(expected) && !timedOut {
		selector := workflow.NewSelector(ctx)
		selector.AddReceive(signals, func(c workflow.ReceiveChannel, more bool) {
			var signal ContainerCompletedSignal
			c.Receive(ctx, &signal)

			switch {
			case !expected[signal.ContainerID]:
				logger.Warn("Ignoring completion for container outside plan", "planId", input.PlanID, "containerId", signal.ContainerID)
			case seen[signal.ContainerID]:
				logger.Info("Duplicate container completion", "planId", input.PlanID, "containerId", signal.ContainerID)
			default:
				seen[signal.ContainerID] = true
				completed = append(completed, signal.ContainerID)
				logger.Info("Container completed",
					"planId", input.PlanID,
					"containerId", signal.ContainerID,
					"completed", len(completed),
					"expected", len(expected),
				)
			}
		})
		selector.AddFuture(deadline, func(f workflow.Future) {
			timedOut = true
		})
		selector.Select(ctx)
	}

	result := &PlanExecutionResult{
		PlanID:              input.PlanID,
		CompletedContainers: completed,
	}
	if timedOut {
		logger.Warn("Plan execution timed out", "planId", input.PlanID, "completed", len(completed), "expected", len(expected))
		result.Status = PlanStatusTimedOut
		return result, nil
	}
	ctx = workflow.WithActivityOptions(ctx, temporal.DefaultActivityOptions())
	err = workflow.ExecuteActivity(ctx, "RecordPlanCompleted", RecordPlanCompletedInput{
		PlanID:       input.PlanID,
		ContainerIDs: completed,
		CompletedAt:  workflow.Now(ctx),
	}).Get(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to record plan completion: %w", err)
	}

	result.Status = PlanStatusDone
	logger.Info("Plan execution completed", "planId", input.PlanID)
	return result, nil
}
