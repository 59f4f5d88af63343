package domain

import "time"

// PlanStatus is owned by the external planning subsystem
type PlanStatus string

const (
	PlanStatusInProgress PlanStatus = "in-progress"
	PlanStatusDone       PlanStatus = "done"
)

// Plan is an execution unit containing zero or more containers
type Plan struct {
	ID           string     `json:"id"`
	Status       PlanStatus `json:"status"`
	PlannedStart *time.Time `json:"plannedStart,omitempty"`
	PlannedEnd   *time.Time `json:"plannedEnd,omitempty"`
	ContainerIDs []string   `json:"containerIds"`
}
