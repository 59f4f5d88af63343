package application

import "github.com/wms-platform/cfs-destuffing-service/internal/domain"

// ContainerRef identifies one plan container
type ContainerRef struct {
	PlanID      string `json:"planId"`
	ContainerID string `json:"containerId"`
}

// UnsealCommand represents a command to unseal a waiting container
type UnsealCommand struct {
	ContainerRef
}

// ResealCommand represents a command to reseal a container with a new seal
type ResealCommand struct {
	ContainerRef
	domain.ResealRequest
}

// CompleteCommand represents a command to mark a container complete
type CompleteCommand struct {
	ContainerRef
}

// StartDestuffCommand represents a command to start destuffing one hbl
type StartDestuffCommand struct {
	ContainerRef
	HblID string `json:"hblId"`
}

// RecordResultCommand represents a command to record a destuff result
type RecordResultCommand struct {
	ContainerRef
	HblID  string               `json:"hblId"`
	Result domain.DestuffResult `json:"result"`
}
