package domain

import "strings"

// DestuffStatus is the per-hbl destuff progress
type DestuffStatus string

const (
	DestuffStatusWaiting    DestuffStatus = "waiting"
	DestuffStatusInProgress DestuffStatus = "in-progress"
	DestuffStatusDone       DestuffStatus = "done"
	DestuffStatusOnHold     DestuffStatus = "on-hold"
)

// IsValid checks if the status is valid
func (s DestuffStatus) IsValid() bool {
	switch s {
	case DestuffStatusWaiting, DestuffStatusInProgress, DestuffStatusDone, DestuffStatusOnHold:
		return true
	default:
		return false
	}
}

// IsFinished reports whether the destuff operation has reached done or on-hold
func (s DestuffStatus) IsFinished() bool {
	return s == DestuffStatusDone || s == DestuffStatusOnHold
}

// ParseDestuffStatus accepts the spellings collaborators use (IN_PROGRESS,
// in_progress, In-Progress). Unknown values yield "".
func ParseDestuffStatus(raw string) DestuffStatus {
	s := DestuffStatus(normalizeToken(raw))
	if s.IsValid() {
		return s
	}
	return ""
}

// WorkingStatus is the container-level lifecycle state
type WorkingStatus string

const (
	WorkingStatusWaiting    WorkingStatus = "waiting"
	WorkingStatusInProgress WorkingStatus = "in-progress"
	WorkingStatusDone       WorkingStatus = "done"
	WorkingStatusOnHold     WorkingStatus = "on-hold"
)

// IsValid checks if the status is valid
func (s WorkingStatus) IsValid() bool {
	switch s {
	case WorkingStatusWaiting, WorkingStatusInProgress, WorkingStatusDone, WorkingStatusOnHold:
		return true
	default:
		return false
	}
}

// ParseWorkingStatus normalizes a collaborator value. Unknown values are waiting.
func ParseWorkingStatus(raw string) WorkingStatus {
	s := WorkingStatus(normalizeToken(raw))
	if s.IsValid() {
		return s
	}
	return WorkingStatusWaiting
}

// ContainerAction is a user action against the working status
type ContainerAction string

const (
	ActionUnseal   ContainerAction = "unseal"
	ActionComplete ContainerAction = "complete"
	ActionReseal   ContainerAction = "reseal"
)

var workingTransitions = map[WorkingStatus]map[ContainerAction]WorkingStatus{
	WorkingStatusWaiting: {
		ActionUnseal: WorkingStatusInProgress,
	},
	WorkingStatusInProgress: {
		ActionComplete: WorkingStatusDone,
		ActionReseal:   WorkingStatusInProgress,
	},
	WorkingStatusOnHold: {
		ActionReseal: WorkingStatusInProgress,
	},
}

// Next returns the status reached by applying action, or ErrInvalidTransition
func (s WorkingStatus) Next(action ContainerAction) (WorkingStatus, error) {
	if next, ok := workingTransitions[s][action]; ok {
		return next, nil
	}
	return s, ErrInvalidTransition
}

// CanApply reports whether action is permitted from s
func (s WorkingStatus) CanApply(action ContainerAction) bool {
	_, err := s.Next(action)
	return err == nil
}

// CargoLoadedStatus tracks whether the container still holds cargo
type CargoLoadedStatus string

const (
	CargoLoaded CargoLoadedStatus = "loaded"
	CargoEmpty  CargoLoadedStatus = "empty"
)

// ParseCargoLoadedStatus normalizes a collaborator value. Anything but empty counts as loaded.
func ParseCargoLoadedStatus(raw string) CargoLoadedStatus {
	if normalizeToken(raw) == string(CargoEmpty) {
		return CargoEmpty
	}
	return CargoLoaded
}

// PortPositionStatus is owned by the container-receiving collaborator
type PortPositionStatus string

const (
	PortPositionUnset  PortPositionStatus = ""
	PortPositionAtPort PortPositionStatus = "at-port"
)

// ParsePortPositionStatus normalizes a collaborator value
func ParsePortPositionStatus(raw string) PortPositionStatus {
	return PortPositionStatus(normalizeToken(raw))
}

func normalizeToken(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "_", "-")
	return strings.ReplaceAll(s, " ", "-")
}

// FlowType identifies the inspection flow an inspection session belongs to
type FlowType string

const (
	FlowInbound FlowType = "INBOUND"
)
