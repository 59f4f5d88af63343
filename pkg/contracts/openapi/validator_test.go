package openapi

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSpec = `
openapi: 3.0.3
info:
  title: test
  version: 1.0.0
paths:
  /api/v1/containers/{containerId}/reseal:
    post:
      operationId: resealContainer
      parameters:
        - name: containerId
          in: path
          required: true
          schema:
            type: string
      requestBody:
        required: true
        content:
          application/json:
            schema:
              type: object
              required: [newSealNumber]
              properties:
                newSealNumber:
                  type: string
                  minLength: 1
      responses:
        '200':
          description: ok
`

func newRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestValidator_ValidateRequest(t *testing.T) {
	v, err := NewValidatorFromBytes([]byte(testSpec))
	require.NoError(t, err)

	req := newRequest(http.MethodPost, "/api/v1/containers/C1/reseal", `{"newSealNumber":"SEAL-1"}`)
	require.NoError(t, v.ValidateRequest(req.Context(), req))
	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"newSealNumber":"SEAL-1"}`, string(body), "body must stay readable")

	req = newRequest(http.MethodPost, "/api/v1/containers/C1/reseal", `{"newSealNumber":""}`)
	assert.Error(t, v.ValidateRequest(req.Context(), req))

	req = newRequest(http.MethodPost, "/health", ``)
	assert.ErrorIs(t, v.ValidateRequest(req.Context(), req), ErrRouteNotFound)

	req = newRequest(http.MethodPost, "/api/v1/containers/C1/reseal", ``)
	id, err := v.OperationID(req)
	require.NoError(t, err)
	assert.Equal(t, "resealContainer", id)
}

func TestNewValidatorFromBytes_Invalid(t *testing.T) {
	_, err := NewValidatorFromBytes([]byte("openapi: [not"))
	assert.Error(t, err)
}

func TestRequestValidation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v, err := NewValidatorFromBytes([]byte(testSpec))
	require.NoError(t, err)

	router := gin.New()
	router.Use(RequestValidation(v, slog.New(slog.NewTextHandler(io.Discard, nil))))
	router.POST("/api/v1/containers/:containerId/reseal", func(c *gin.Context) {
		var body map[string]any
		require.NoError(t, c.ShouldBindJSON(&body))
		c.JSON(http.StatusOK, body)
	})
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, newRequest(http.MethodPost, "/api/v1/containers/C1/reseal", `{"newSealNumber":"SEAL-1"}`))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "SEAL-1")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, newRequest(http.MethodPost, "/api/v1/containers/C1/reseal", `{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
