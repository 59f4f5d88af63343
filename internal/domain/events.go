package domain

import "time"

// Event types published by the destuffing workflow
const (
	EventContainerUnsealed  = "wms.destuffing.container-unsealed"
	EventContainerResealed  = "wms.destuffing.container-resealed"
	EventHblDestuffStarted  = "wms.destuffing.hbl-destuff-started"
	EventHblResultRecorded  = "wms.destuffing.hbl-result-recorded"
	EventContainerCompleted = "wms.destuffing.container-completed"
	EventResealRequired     = "wms.destuffing.reseal-required"
	EventPlanCompleted      = "wms.destuffing.plan-completed"
)

// DomainEvent represents a domain event interface
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// ContainerUnsealedEvent is emitted once the collaborator confirms an unseal
type ContainerUnsealedEvent struct {
	PlanID      string    `json:"planId"`
	ContainerID string    `json:"containerId"`
	SealNumber  string    `json:"sealNumber,omitempty"`
	UnsealedAt  time.Time `json:"unsealedAt"`
}

func (e *ContainerUnsealedEvent) EventType() string     { return EventContainerUnsealed }
func (e *ContainerUnsealedEvent) OccurredAt() time.Time { return e.UnsealedAt }

// ContainerResealedEvent is emitted once the collaborator accepts a reseal
type ContainerResealedEvent struct {
	PlanID        string    `json:"planId"`
	ContainerID   string    `json:"containerId"`
	NewSealNumber string    `json:"newSealNumber"`
	OnHoldFlag    bool      `json:"onHoldFlag"`
	Note          string    `json:"note,omitempty"`
	ResealedAt    time.Time `json:"resealedAt"`
}

func (e *ContainerResealedEvent) EventType() string     { return EventContainerResealed }
func (e *ContainerResealedEvent) OccurredAt() time.Time { return e.ResealedAt }

// HblDestuffStartedEvent is emitted when an operator starts destuffing an hbl
type HblDestuffStartedEvent struct {
	PlanID              string    `json:"planId"`
	ContainerID         string    `json:"containerId"`
	HblID               string    `json:"hblId"`
	PackingListID       string    `json:"packingListId"`
	InspectionSessionID string    `json:"inspectionSessionId,omitempty"`
	SessionDegraded     bool      `json:"sessionDegraded"`
	StartedAt           time.Time `json:"startedAt"`
}

func (e *HblDestuffStartedEvent) EventType() string     { return EventHblDestuffStarted }
func (e *HblDestuffStartedEvent) OccurredAt() time.Time { return e.StartedAt }

// HblResultRecordedEvent is emitted when a destuff result is accepted
type HblResultRecordedEvent struct {
	PlanID       string        `json:"planId"`
	ContainerID  string        `json:"containerId"`
	HblID        string        `json:"hblId"`
	Result       DestuffResult `json:"result"`
	MetadataOnly bool          `json:"metadataOnly"`
	RecordedAt   time.Time     `json:"recordedAt"`
}

func (e *HblResultRecordedEvent) EventType() string     { return EventHblResultRecorded }
func (e *HblResultRecordedEvent) OccurredAt() time.Time { return e.RecordedAt }

// ContainerCompletedEvent is emitted once the collaborator confirms completion
type ContainerCompletedEvent struct {
	PlanID      string    `json:"planId"`
	ContainerID string    `json:"containerId"`
	HblCount    int       `json:"hblCount"`
	CompletedAt time.Time `json:"completedAt"`
}

func (e *ContainerCompletedEvent) EventType() string     { return EventContainerCompleted }
func (e *ContainerCompletedEvent) OccurredAt() time.Time { return e.CompletedAt }

// ResealRequiredEvent is emitted when completion is rejected with a reseal requirement
type ResealRequiredEvent struct {
	PlanID      string    `json:"planId"`
	ContainerID string    `json:"containerId"`
	SealNumber  string    `json:"sealNumber,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	DetectedAt  time.Time `json:"detectedAt"`
}

func (e *ResealRequiredEvent) EventType() string     { return EventResealRequired }
func (e *ResealRequiredEvent) OccurredAt() time.Time { return e.DetectedAt }

// PlanCompletedEvent is emitted when every container of a plan has completed
type PlanCompletedEvent struct {
	PlanID       string    `json:"planId"`
	ContainerIDs []string  `json:"containerIds"`
	CompletedAt  time.Time `json:"completedAt"`
}

func (e *PlanCompletedEvent) EventType() string     { return EventPlanCompleted }
func (e *PlanCompletedEvent) OccurredAt() time.Time { return e.CompletedAt }
