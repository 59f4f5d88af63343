package domain

import (
	"context"
	"time"
)

// CFSBackend is the cargo-freight-station service the workflow orchestrates.
// CompleteContainer returns an error wrapping ErrNeedsReseal when the
// backend requires a reseal before the container can close.
type CFSBackend interface {
	FetchPlan(ctx context.Context, planID string) (*Plan, error)
	FetchPlanContainer(ctx context.Context, planID, containerID string) (*ContainerRecord, error)
	FetchHblStatuses(ctx context.Context, planID, containerID string, hblIDs []string) ([]HblDestuffStatus, error)
	UnsealContainer(ctx context.Context, planID, containerID string) error
	ResealContainer(ctx context.Context, planID, containerID string, req ResealRequest) error
	CompleteContainer(ctx context.Context, planID, containerID string) error
	UpdateHblBypassFlag(ctx context.Context, hblID string, flag bool) error
	RecordDestuffResult(ctx context.Context, planID, containerID, hblID string, payload DestuffResultPayload) error
}

// DestuffResultPayload is the body of a result recording
type DestuffResultPayload struct {
	DestuffResult
	// MetadataOnly marks an annotation of an hbl that is already done
	MetadataOnly bool `json:"metadataOnly"`
}

// InspectionService resolves inspection sessions for packing lists
type InspectionService interface {
	GetOrCreateInspectionSession(ctx context.Context, packingListID string, flow FlowType) (string, error)
}

// PermissionChecker answers synchronously whether the caller may write
type PermissionChecker interface {
	CanWrite(ctx context.Context) bool
}

// JournalEntry groups a container snapshot with the events it produced.
// An entry without a container id carries plan-level events only.
type JournalEntry struct {
	Container     PlanContainer
	Hbls          []HblDestuffStatus
	ResealHistory []ResealRecord
	Events        []DomainEvent
}

// ExecutionJournal persists workflow history and its outgoing events atomically
type ExecutionJournal interface {
	Append(ctx context.Context, entry JournalEntry) error
}

// PlanCompletionNotifier tells the plan-level workflow that a container closed
type PlanCompletionNotifier interface {
	NotifyContainerCompleted(ctx context.Context, planID, containerID string, completedAt time.Time) error
}
