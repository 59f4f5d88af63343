package application

import (
	"time"

	"github.com/wms-platform/cfs-destuffing-service/internal/domain"
)

// ResealPrompt is the per-container reseal state a client renders as a modal
type ResealPrompt struct {
	Open           bool       `json:"open"`
	Reason         string     `json:"reason,omitempty"`
	OpenedAt       *time.Time `json:"openedAt,omitempty"`
	LastSealNumber string     `json:"lastSealNumber,omitempty"`
}

// ContainerView is the read model of one plan container
type ContainerView struct {
	Container     domain.PlanContainer      `json:"container"`
	Hbls          []domain.HblDestuffStatus `json:"hbls"`
	CanDischarge  bool                      `json:"canDischarge"`
	CanStore      bool                      `json:"canStore"`
	CanComplete   bool                      `json:"canComplete"`
	Blocker       string                    `json:"completionBlocker,omitempty"`
	Version       uint64                    `json:"version"`
	Provisional   bool                      `json:"provisional"`
	FetchedAt     time.Time                 `json:"fetchedAt"`
	ResealPrompt  ResealPrompt              `json:"resealPrompt"`
	ResealHistory []domain.ResealRecord     `json:"resealHistory"`
	Processing    []string                  `json:"processing,omitempty"`
}

// Hbl returns the row for id
func (v *ContainerView) Hbl(id string) (domain.HblDestuffStatus, bool) {
	if i := domain.FindHbl(v.Hbls, id); i >= 0 {
		return v.Hbls[i], true
	}
	return domain.HblDestuffStatus{}, false
}

// PlanView is the read model of a plan and every container it owns
type PlanView struct {
	Plan       domain.Plan      `json:"plan"`
	Containers []*ContainerView `json:"containers"`
}

// StartDestuffResult is the handoff to the inspection client
type StartDestuffResult struct {
	HblID               string         `json:"hblId"`
	PackingListID       string         `json:"packingListId"`
	PackingListNo       string         `json:"packingListNo,omitempty"`
	InspectionSessionID string         `json:"inspectionSessionId,omitempty"`
	SessionDegraded     bool           `json:"sessionDegraded"`
	Warnings            []string       `json:"warnings,omitempty"`
	View                *ContainerView `json:"view"`
}

// RecordResultOutcome reports how a result was applied
type RecordResultOutcome struct {
	HblID        string         `json:"hblId"`
	MetadataOnly bool           `json:"metadataOnly"`
	View         *ContainerView `json:"view"`
}

// CompletionOutcome distinguishes a closed container from a reseal redirect
type CompletionOutcome string

const (
	OutcomeCompleted      CompletionOutcome = "completed"
	OutcomeResealRequired CompletionOutcome = "reseal_required"
)

// CompletionResult is the result of a completion attempt the backend answered
type CompletionResult struct {
	Outcome      CompletionOutcome `json:"outcome"`
	ResealPrompt *ResealPrompt     `json:"resealPrompt,omitempty"`
	View         *ContainerView    `json:"view"`
}

// NotificationKind classifies a container change
type NotificationKind string

const (
	NotifyWorkingStatus NotificationKind = "working-status"
	NotifyHblStatus     NotificationKind = "hbl-status"
	NotifyResealPrompt  NotificationKind = "reseal-prompt"
	NotifyReconciled    NotificationKind = "reconciled"
)

// Notification is delivered to container observers
type Notification struct {
	Kind        NotificationKind `json:"kind"`
	PlanID      string           `json:"planId"`
	ContainerID string           `json:"containerId"`
	HblID       string           `json:"hblId,omitempty"`
	Version     uint64           `json:"version"`
}

// Observer is a callback registered for one container
type Observer func(Notification)
