package domain

import (
	"strings"
	"time"
)

// ResealRequest carries the operator input for a reseal
type ResealRequest struct {
	NewSealNumber string `json:"newSealNumber"`
	OnHoldFlag    bool   `json:"onHoldFlag"`
	Note          string `json:"note,omitempty"`
}

// Validate trims the seal number and rejects an empty one
func (r *ResealRequest) Validate() error {
	r.NewSealNumber = strings.TrimSpace(r.NewSealNumber)
	r.Note = strings.TrimSpace(r.Note)
	if r.NewSealNumber == "" {
		return ErrSealNumberRequired
	}
	return nil
}

// ResealRecord is one accepted reseal
type ResealRecord struct {
	NewSealNumber string    `bson:"newSealNumber" json:"newSealNumber"`
	OnHoldFlag    bool      `bson:"onHoldFlag" json:"onHoldFlag"`
	Note          string    `bson:"note,omitempty" json:"note,omitempty"`
	ResealedAt    time.Time `bson:"resealedAt" json:"resealedAt"`
}

// PlanContainer is one physical container within a plan
type PlanContainer struct {
	PlanID             string             `bson:"planId" json:"planId"`
	ContainerID        string             `bson:"containerId" json:"containerId"`
	MasterContainerID  string             `bson:"masterContainerId,omitempty" json:"masterContainerId,omitempty"`
	ContainerNo        string             `bson:"containerNo,omitempty" json:"containerNo,omitempty"`
	SealNumber         string             `bson:"sealNumber,omitempty" json:"sealNumber,omitempty"`
	NewSealNumber      string             `bson:"newSealNumber,omitempty" json:"newSealNumber,omitempty"`
	CargoLoadedStatus  CargoLoadedStatus  `bson:"cargoLoadedStatus" json:"cargoLoadedStatus"`
	WorkingStatus      WorkingStatus      `bson:"workingStatus" json:"workingStatus"`
	PortPositionStatus PortPositionStatus `bson:"portPositionStatus,omitempty" json:"portPositionStatus,omitempty"`
	CompletedAt        *time.Time         `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
}

// CanDischarge is an advisory flag: true only while port position is unset
func (c *PlanContainer) CanDischarge() bool {
	return c.PortPositionStatus == PortPositionUnset
}

// CanStore is an advisory flag: true while port position is unset or at-port
func (c *PlanContainer) CanStore() bool {
	return c.PortPositionStatus == PortPositionUnset || c.PortPositionStatus == PortPositionAtPort
}

// SealReference returns the seal currently on the container
func (c *PlanContainer) SealReference() string {
	if c.NewSealNumber != "" {
		return c.NewSealNumber
	}
	return c.SealNumber
}

// IsEmpty reports whether the container was already emptied
func (c *PlanContainer) IsEmpty() bool {
	return c.CargoLoadedStatus == CargoEmpty
}

// CheckUnseal validates an unseal before the collaborator is called
func (c *PlanContainer) CheckUnseal() error {
	_, err := c.WorkingStatus.Next(ActionUnseal)
	return err
}

// ConfirmUnseal records a collaborator-confirmed unseal
func (c *PlanContainer) ConfirmUnseal() error {
	next, err := c.WorkingStatus.Next(ActionUnseal)
	if err != nil {
		return err
	}
	c.WorkingStatus = next
	return nil
}

// CheckReseal validates a reseal before the collaborator is called
func (c *PlanContainer) CheckReseal(req *ResealRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	_, err := c.WorkingStatus.Next(ActionReseal)
	return err
}

// ConfirmReseal records a collaborator-confirmed reseal. The container is
// never marked done by a reseal.
func (c *PlanContainer) ConfirmReseal(req ResealRequest, at time.Time) (ResealRecord, error) {
	next, err := c.WorkingStatus.Next(ActionReseal)
	if err != nil {
		return ResealRecord{}, err
	}
	c.WorkingStatus = next
	c.NewSealNumber = req.NewSealNumber
	return ResealRecord{
		NewSealNumber: req.NewSealNumber,
		OnHoldFlag:    req.OnHoldFlag,
		Note:          req.Note,
		ResealedAt:    at,
	}, nil
}

// ConfirmCompleted records a collaborator-confirmed completion
func (c *PlanContainer) ConfirmCompleted(at time.Time) error {
	next, err := c.WorkingStatus.Next(ActionComplete)
	if err != nil {
		return err
	}
	c.WorkingStatus = next
	c.CargoLoadedStatus = CargoEmpty
	c.CompletedAt = &at
	return nil
}

// ContainerRecord is the collaborator's container payload: the container
// state plus its raw hbl manifest.
type ContainerRecord struct {
	Container PlanContainer
	Manifest  []RawHblRecord
}
