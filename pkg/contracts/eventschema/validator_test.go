package eventschema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/cfs-destuffing-service/pkg/cloudevents"
)

func TestValidator_SessionCompleted(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)
	assert.Equal(t, []string{cloudevents.InspectionSessionCancelled, cloudevents.InspectionSessionCompleted}, v.EventTypes())

	tests := []struct {
		name    string
		data    any
		wantErr bool
	}{
		{
			name: "valid struct payload",
			data: cloudevents.SessionCompletedData{SessionID: "S1", PlanID: "P1", ContainerID: "C1", HblID: "H1", Outcome: "passed"},
		},
		{
			name: "valid decoded payload",
			data: map[string]any{"sessionId": "S1", "planId": "P1", "containerId": "C1", "hblId": "H1"},
		},
		{
			name:    "missing container",
			data:    map[string]any{"sessionId": "S1", "planId": "P1", "hblId": "H1"},
			wantErr: true,
		},
		{
			name:    "empty plan id",
			data:    map[string]any{"sessionId": "S1", "planId": "", "containerId": "C1", "hblId": "H1"},
			wantErr: true,
		},
		{
			name:    "unknown outcome",
			data:    map[string]any{"sessionId": "S1", "planId": "P1", "containerId": "C1", "hblId": "H1", "outcome": "maybe"},
			wantErr: true,
		},
		{
			name:    "no data",
			data:    nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := &cloudevents.WMSCloudEvent{Type: cloudevents.InspectionSessionCompleted, Data: tt.data}
			err := v.Validate(event)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidator_UnknownType(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	assert.False(t, v.HasSchema("wms.inspection.unknown"))
	err = v.Validate(&cloudevents.WMSCloudEvent{Type: "wms.inspection.unknown", Data: map[string]any{}})
	assert.Error(t, err)
}
