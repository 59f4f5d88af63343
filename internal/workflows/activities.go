package workflows

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/wms-platform/cfs-destuffing-service/internal/domain"
)

// RecordPlanCompletedInput is the input to RecordPlanCompleted
type RecordPlanCompletedInput struct {
	PlanID       string    `json:"planId"`
	ContainerIDs []string  `json:"containerIds"`
	CompletedAt  time.Time `json:"completedAt"`
}

// PlanActivities contains activities of the plan execution workflow
type PlanActivities struct {
	journal domain.ExecutionJournal
}

// NewPlanActivities creates a new PlanActivities instance
func NewPlanActivities(journal domain.ExecutionJournal) *PlanActivities {
	return &PlanActivities{journal: journal}
}

// RecordPlanCompleted journals the plan-completed event
func (a *PlanActivities) RecordPlanCompleted(ctx context.Context, input RecordPlanCompletedInput) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Recording plan completion", "planId", input.PlanID, "containers", len(input.ContainerIDs))

	entry := domain.JournalEntry{
		Container: domain.PlanContainer{PlanID: input.PlanID},
		Events: []domain.DomainEvent{&domain.PlanCompletedEvent{
			PlanID:       input.PlanID,
			ContainerIDs: input.ContainerIDs,
			CompletedAt:  input.CompletedAt,
		}},
	}
	if err := a.journal.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to journal plan completion: %w", err)
	}
	return nil
}
