package clients

import (
	"time"

	"github.com/wms-platform/cfs-destuffing-service/internal/domain"
)

// planRecord is the CFS backend plan payload
type planRecord struct {
	ID           string     `json:"id"`
	PlanID       string     `json:"planId"`
	Status       string     `json:"status"`
	PlannedStart *time.Time `json:"plannedStart,omitempty"`
	PlannedEnd   *time.Time `json:"plannedEnd,omitempty"`
	ContainerIDs []string   `json:"containerIds"`
	Containers   []struct {
		ID          string `json:"id"`
		ContainerID string `json:"containerId"`
	} `json:"containers"`
}

func (p planRecord) toDomain(planID string) *domain.Plan {
	plan := &domain.Plan{
		ID:           firstNonEmpty(p.PlanID, p.ID, planID),
		Status:       domain.PlanStatus(p.Status),
		PlannedStart: p.PlannedStart,
		PlannedEnd:   p.PlannedEnd,
	}
	seen := make(map[string]bool)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			plan.ContainerIDs = append(plan.ContainerIDs, id)
		}
	}
	for _, id := range p.ContainerIDs {
		add(id)
	}
	for _, c := range p.Containers {
		add(firstNonEmpty(c.ContainerID, c.ID))
	}
	if plan.ContainerIDs == nil {
		plan.ContainerIDs = []string{}
	}
	return plan
}

// containerRecord is the CFS backend plan-container payload
type containerRecord struct {
	ContainerID        string                `json:"containerId"`
	MasterContainerID  string                `json:"masterContainerId"`
	ContainerNo        string                `json:"containerNo"`
	SealNumber         string                `json:"sealNumber"`
	NewSealNumber      string                `json:"newSealNumber"`
	CargoLoadedStatus  string                `json:"cargoLoadedStatus"`
	WorkingStatus      string                `json:"workingStatus"`
	PortPositionStatus string                `json:"portPositionStatus"`
	CompletedAt        *time.Time            `json:"completedAt,omitempty"`
	Hbls               []domain.RawHblRecord `json:"hbls"`
}

func (r containerRecord) toDomain(planID string) *domain.ContainerRecord {
	return &domain.ContainerRecord{
		Container: domain.PlanContainer{
			PlanID:             planID,
			ContainerID:        r.ContainerID,
			MasterContainerID:  r.MasterContainerID,
			ContainerNo:        r.ContainerNo,
			SealNumber:         r.SealNumber,
			NewSealNumber:      r.NewSealNumber,
			CargoLoadedStatus:  domain.ParseCargoLoadedStatus(r.CargoLoadedStatus),
			WorkingStatus:      domain.ParseWorkingStatus(r.WorkingStatus),
			PortPositionStatus: domain.ParsePortPositionStatus(r.PortPositionStatus),
			CompletedAt:        r.CompletedAt,
		},
		Manifest: r.Hbls,
	}
}

type bypassFlagRequest struct {
	BypassStorageFlag bool `json:"bypassStorageFlag"`
}

type sessionRequest struct {
	PackingListID string          `json:"packingListId"`
	Flow          domain.FlowType `json:"flow"`
}

type sessionResponse struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
