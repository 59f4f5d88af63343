package temporal

import (
	"context"
	"fmt"
	"time"

	"github.com/wms-platform/cfs-destuffing-service/internal/domain"
	"github.com/wms-platform/cfs-destuffing-service/internal/workflows"
	"github.com/wms-platform/cfs-destuffing-service/pkg/logging"
	platformtemporal "github.com/wms-platform/cfs-destuffing-service/pkg/temporal"
)

// WorkflowSignaler delivers a signal, starting the target workflow when needed
type WorkflowSignaler interface {
	SignalWithStartWorkflow(ctx context.Context, workflowID, signalName string, signalArg interface{}, workflowName string, args ...interface{}) error
}

// PlanLookup resolves the containers of a plan
type PlanLookup interface {
	FetchPlan(ctx context.Context, planID string) (*domain.Plan, error)
}

// PlanNotifier signals PlanExecutionWorkflow when a container completes
type PlanNotifier struct {
	signaler WorkflowSignaler
	plans    PlanLookup
	logger   *logging.Logger
}

// NewPlanNotifier creates a new PlanNotifier
func NewPlanNotifier(signaler WorkflowSignaler, plans PlanLookup, logger *logging.Logger) *PlanNotifier {
	return &PlanNotifier{
		signaler: signaler,
		plans:    plans,
		logger:   logger.WithComponent("plan-notifier"),
	}
}

// NotifyContainerCompleted implements domain.PlanCompletionNotifier
func (n *PlanNotifier) NotifyContainerCompleted(ctx context.Context, planID, containerID string, completedAt time.Time) error {
	plan, err := n.plans.FetchPlan(ctx, planID)
	if err != nil {
		return fmt.Errorf("failed to resolve plan containers: %w", err)
	}
	if plan == nil {
		return domain.ErrPlanNotFound
	}

	workflowID := platformtemporal.PlanExecutionWorkflowID(planID)
	signal := workflows.ContainerCompletedSignal{
		ContainerID: containerID,
		CompletedAt: completedAt,
	}
	input := workflows.PlanExecutionInput{
		PlanID:       planID,
		ContainerIDs: plan.ContainerIDs,
	}

	err = n.signaler.SignalWithStartWorkflow(ctx, workflowID,
		platformtemporal.Signals.ContainerCompleted, signal,
		platformtemporal.WorkflowNames.PlanExecution, input)
	if err != nil {
		return fmt.Errorf("failed to signal %s: %w", workflowID, err)
	}

	n.logger.WithContext(ctx).Info("Signaled plan execution",
		"workflowId", workflowID,
		"containerId", containerID,
	)
	return nil
}
