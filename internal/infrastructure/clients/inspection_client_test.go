package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/cfs-destuffing-service/internal/domain"
	"github.com/wms-platform/cfs-destuffing-service/pkg/logging"
)

func TestInspectionClient_GetOrCreateInspectionSession(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantID  string
		wantErr error
	}{
		{name: "session id field", status: http.StatusOK, body: `{"sessionId":"S1"}`, wantID: "S1"},
		{name: "created with id field", status: http.StatusCreated, body: `{"id":"S2"}`, wantID: "S2"},
		{name: "no id in response", status: http.StatusOK, body: `{}`, wantErr: domain.ErrCollaboratorRejected},
		{name: "rejected", status: http.StatusBadRequest, body: `{"code":"BAD_REQUEST"}`, wantErr: domain.ErrCollaboratorRejected},
		{name: "unavailable", status: http.StatusServiceUnavailable, body: `{}`, wantErr: domain.ErrCollaboratorUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/api/v1/inspection/sessions", r.URL.Path)
				var req sessionRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "PL-1", req.PackingListID)
				assert.Equal(t, domain.FlowType("discharge"), req.Flow)
				writeJSON(w, tt.status, tt.body)
			}))
			defer server.Close()

			client := NewInspectionClient(Config{BaseURL: server.URL + "/", Timeout: time.Second}, logging.NewNop().Logger, nil)
			id, err := client.GetOrCreateInspectionSession(context.Background(), "PL-1", domain.FlowType("discharge"))

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, id)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
		})
	}
}
