package dto

import (
	"github.com/wms-platform/cfs-destuffing-service/internal/application"
	"github.com/wms-platform/cfs-destuffing-service/internal/domain"
)

// ResealRequest is the body of a reseal
type ResealRequest struct {
	NewSealNumber string `json:"newSealNumber" binding:"required,seal_number"`
	OnHoldFlag    bool   `json:"onHoldFlag"`
	Note          string `json:"note" binding:"max=1000"`
}

// DestuffResultRequest is the body of a result recording
type DestuffResultRequest struct {
	Document string `json:"document"`
	Image    string `json:"image"`
	Note     string `json:"note" binding:"max=1000"`
	OnHold   bool   `json:"onHold"`
}

// ToDomain converts the request into the recorded result
func (r DestuffResultRequest) ToDomain() domain.DestuffResult {
	return domain.DestuffResult{
		Document: r.Document,
		Image:    r.Image,
		Note:     r.Note,
		OnHold:   r.OnHold,
	}
}

// HblResponse is one hbl row of a container view
type HblResponse struct {
	HblID               string                `json:"hblId"`
	HblCode             string                `json:"hblCode"`
	PackingListID       string                `json:"packingListId,omitempty"`
	PackingListNo       string                `json:"packingListNo,omitempty"`
	BypassStorageFlag   *bool                 `json:"bypassStorageFlag,omitempty"`
	DestuffStatus       domain.DestuffStatus  `json:"destuffStatus"`
	InspectionSessionID string                `json:"inspectionSessionId,omitempty"`
	Processing          bool                  `json:"processing"`
	DestuffResult       *domain.DestuffResult `json:"destuffResult,omitempty"`
}

// ContainerResponse is the flat container view clients render
type ContainerResponse struct {
	PlanID             string                    `json:"planId"`
	ContainerID        string                    `json:"containerId"`
	ContainerNo        string                    `json:"containerNo,omitempty"`
	SealNumber         string                    `json:"sealNumber,omitempty"`
	NewSealNumber      string                    `json:"newSealNumber,omitempty"`
	CargoLoadedStatus  domain.CargoLoadedStatus  `json:"cargoLoadedStatus"`
	WorkingStatus      domain.WorkingStatus      `json:"workingStatus"`
	PortPositionStatus domain.PortPositionStatus `json:"portPositionStatus,omitempty"`
	CanDischarge       bool                      `json:"canDischarge"`
	CanStore           bool                      `json:"canStore"`
	CanComplete        bool                      `json:"canComplete"`
	CompletionBlocker  string                    `json:"completionBlocker,omitempty"`
	Hbls               []HblResponse             `json:"hbls"`
	Version            uint64                    `json:"version"`
	Provisional        bool                      `json:"provisional"`
	ResealPrompt       application.ResealPrompt  `json:"resealPrompt"`
	ResealHistory      []domain.ResealRecord     `json:"resealHistory"`
}

// PlanResponse is a plan with every container view
type PlanResponse struct {
	PlanID     string               `json:"planId"`
	Status     domain.PlanStatus    `json:"status,omitempty"`
	Containers []*ContainerResponse `json:"containers"`
}

// CompletionResponse reports how a completion attempt ended
type CompletionResponse struct {
	Outcome      application.CompletionOutcome `json:"outcome"`
	ResealPrompt *application.ResealPrompt     `json:"resealPrompt,omitempty"`
	Container    *ContainerResponse            `json:"container,omitempty"`
}

// StartDestuffResponse is the handoff a client uses to open inspection
type StartDestuffResponse struct {
	HblID               string             `json:"hblId"`
	PackingListID       string             `json:"packingListId"`
	PackingListNo       string             `json:"packingListNo,omitempty"`
	InspectionSessionID string             `json:"inspectionSessionId,omitempty"`
	SessionDegraded     bool               `json:"sessionDegraded"`
	Warnings            []string           `json:"warnings,omitempty"`
	Container           *ContainerResponse `json:"container,omitempty"`
}

// RecordResultResponse reports how a result was applied
type RecordResultResponse struct {
	HblID        string             `json:"hblId"`
	MetadataOnly bool               `json:"metadataOnly"`
	Container    *ContainerResponse `json:"container,omitempty"`
}

// FromContainerView flattens a container view
func FromContainerView(v *application.ContainerView) *ContainerResponse {
	if v == nil {
		return nil
	}
	processing := make(map[string]bool, len(v.Processing))
	for _, id := range v.Processing {
		processing[id] = true
	}

	hbls := make([]HblResponse, 0, len(v.Hbls))
	for _, h := range v.Hbls {
		hbls = append(hbls, HblResponse{
			HblID:               h.HblID,
			HblCode:             h.HblCode,
			PackingListID:       h.PackingListID,
			PackingListNo:       h.PackingListNo,
			BypassStorageFlag:   h.BypassStorageFlag,
			DestuffStatus:       h.DestuffStatus,
			InspectionSessionID: h.InspectionSessionID,
			Processing:          processing[h.HblID],
			DestuffResult:       h.DestuffResult,
		})
	}

	history := v.ResealHistory
	if history == nil {
		history = []domain.ResealRecord{}
	}

	c := v.Container
	return &ContainerResponse{
		PlanID:             c.PlanID,
		ContainerID:        c.ContainerID,
		ContainerNo:        c.ContainerNo,
		SealNumber:         c.SealNumber,
		NewSealNumber:      c.NewSealNumber,
		CargoLoadedStatus:  c.CargoLoadedStatus,
		WorkingStatus:      c.WorkingStatus,
		PortPositionStatus: c.PortPositionStatus,
		CanDischarge:       v.CanDischarge,
		CanStore:           v.CanStore,
		CanComplete:        v.CanComplete,
		CompletionBlocker:  v.Blocker,
		Hbls:               hbls,
		Version:            v.Version,
		Provisional:        v.Provisional,
		ResealPrompt:       v.ResealPrompt,
		ResealHistory:      history,
	}
}

// FromPlanView converts a plan view
func FromPlanView(v *application.PlanView) *PlanResponse {
	containers := make([]*ContainerResponse, 0, len(v.Containers))
	for _, c := range v.Containers {
		containers = append(containers, FromContainerView(c))
	}
	return &PlanResponse{PlanID: v.Plan.ID, Status: v.Plan.Status, Containers: containers}
}

// FromCompletionResult converts a completion result
func FromCompletionResult(r *application.CompletionResult) *CompletionResponse {
	return &CompletionResponse{
		Outcome:      r.Outcome,
		ResealPrompt: r.ResealPrompt,
		Container:    FromContainerView(r.View),
	}
}

// FromStartDestuffResult converts a start destuff handoff
func FromStartDestuffResult(r *application.StartDestuffResult) *StartDestuffResponse {
	return &StartDestuffResponse{
		HblID:               r.HblID,
		PackingListID:       r.PackingListID,
		PackingListNo:       r.PackingListNo,
		InspectionSessionID: r.InspectionSessionID,
		SessionDegraded:     r.SessionDegraded,
		Warnings:            r.Warnings,
		Container:           FromContainerView(r.View),
	}
}

// FromRecordResultOutcome converts a result recording outcome
func FromRecordResultOutcome(r *application.RecordResultOutcome) *RecordResultResponse {
	return &RecordResultResponse{
		HblID:        r.HblID,
		MetadataOnly: r.MetadataOnly,
		Container:    FromContainerView(r.View),
	}
}
