package cloudevents

import (
	"encoding/json"
	"fmt"
	"time"
)

// SpecVersion is the CloudEvents version every event carries
const SpecVersion = "1.0"

// Event sources
const (
	SourceDestuffing = "/wms/cfs-destuffing-service"
	SourceInspection = "/wms/inspection-service"
)

// Inspection events consumed by the destuffing service
const (
	InspectionSessionCompleted = "wms.inspection.session-completed"
	InspectionSessionCancelled = "wms.inspection.session-cancelled"
)

// Extension attribute names
const (
	ExtCorrelationID = "wmscorrelationid"
	ExtWorkflowID    = "wmsworkflowid"
	ExtPlanID        = "wmsplanid"
	ExtContainerID   = "wmscontainerid"
)

// WMSCloudEvent represents a CloudEvents v1.0 compliant event for WMS
type WMSCloudEvent struct {
	SpecVersion     string    `json:"specversion"`
	Type            string    `json:"type"`
	Source          string    `json:"source"`
	Subject         string    `json:"subject,omitempty"`
	ID              string    `json:"id"`
	Time            time.Time `json:"time"`
	DataContentType string    `json:"datacontenttype"`
	Data            any       `json:"data"`

	// WMS extensions
	CorrelationID string `json:"wmscorrelationid,omitempty"`
	WorkflowID    string `json:"wmsworkflowid,omitempty"`
	PlanID        string `json:"wmsplanid,omitempty"`
	ContainerID   string `json:"wmscontainerid,omitempty"`
}

// Validate checks the required CloudEvents attributes
func (e *WMSCloudEvent) Validate() error {
	switch {
	case e.SpecVersion != SpecVersion:
		return fmt.Errorf("unsupported specversion %q", e.SpecVersion)
	case e.ID == "":
		return fmt.Errorf("event id is required")
	case e.Type == "":
		return fmt.Errorf("event type is required")
	case e.Source == "":
		return fmt.Errorf("event source is required")
	}
	return nil
}

// DecodeData unmarshals the event data into v. Data decoded from the wire
// arrives as a generic map and is re-encoded first.
func (e *WMSCloudEvent) DecodeData(v any) error {
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("failed to encode event data: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", e.Type, err)
	}
	return nil
}

// Headers returns the binary-mode message headers for the event
func (e *WMSCloudEvent) Headers() map[string]string {
	headers := map[string]string{
		"ce-specversion": e.SpecVersion,
		"ce-id":          e.ID,
		"ce-type":        e.Type,
		"ce-source":      e.Source,
		"ce-time":        e.Time.Format(time.RFC3339Nano),
		"content-type":   e.DataContentType,
	}
	if e.Subject != "" {
		headers["ce-subject"] = e.Subject
	}
	if e.CorrelationID != "" {
		headers["ce-"+ExtCorrelationID] = e.CorrelationID
	}
	if e.WorkflowID != "" {
		headers["ce-"+ExtWorkflowID] = e.WorkflowID
	}
	if e.PlanID != "" {
		headers["ce-"+ExtPlanID] = e.PlanID
	}
	if e.ContainerID != "" {
		headers["ce-"+ExtContainerID] = e.ContainerID
	}
	return headers
}

// SessionCompletedData is the payload of an inspection session-completed event
type SessionCompletedData struct {
	SessionID     string `json:"sessionId"`
	PackingListID string `json:"packingListId"`
	HblID         string `json:"hblId,omitempty"`
	PlanID        string `json:"planId"`
	ContainerID   string `json:"containerId"`
	Outcome       string `json:"outcome,omitempty"`
}
