package httputil

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRespondWithError_MapsCodes(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"slot conflict", errors.NewSlotConflict(nil), http.StatusConflict, "slot_conflict", "slot no longer available, please choose another"},
		{"not found", errors.NewNotFound("doctor", nil), http.StatusNotFound, "not_found", "doctor not found"},
		{"invalid input", errors.NewInvalidInput("title is required", nil), http.StatusBadRequest, "invalid_input", "title is required"},
		{"unauthorized", errors.NewUnauthorized("forbidden", nil), http.StatusForbidden, "unauthorized", "forbidden"},
		{"unauthenticated", errors.NewUnauthenticated("missing token", nil), http.StatusUnauthorized, "unauthenticated", "missing token"},
		{"plain error", stderrors.New("pq: connection refused"), http.StatusInternalServerError, "internal", "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			RespondWithError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var body Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "error", body.Status)
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, tt.message, body.Message)
			assert.True(t, c.IsAborted())
		})
	}
}

func TestRespondWithSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	RespondWithSuccess(c, http.StatusCreated, gin.H{"id": "abc"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"status":"success","data":{"id":"abc"}}`, w.Body.String())
}
