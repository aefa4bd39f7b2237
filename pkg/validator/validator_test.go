package validator

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-api/pkg/errors"
)

type bookingBody struct {
	Title    string `json:"title" binding:"required"`
	Duration int    `json:"duration_minutes" binding:"required,gt=0"`
	Status   string `json:"status" binding:"omitempty,oneof=scheduled cancelled"`
}

func bind(t *testing.T, body string) error {
	t.Helper()
	gin.SetMode(gin.TestMode)
	Register()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	c.Request.Header.Set("Content-Type", "application/json")

	var b bookingBody
	return c.ShouldBindJSON(&b)
}

func TestDescribe_UsesJSONFieldNames(t *testing.T) {
	err := bind(t, `{"duration_minutes": -5, "status": "done"}`)
	require.Error(t, err)

	msg := Describe(err)
	assert.Contains(t, msg, "title is required")
	assert.Contains(t, msg, "duration_minutes must be greater than 0")
	assert.Contains(t, msg, "status must be one of [scheduled cancelled]")
}

func TestDescribe_MalformedJSON(t *testing.T) {
	err := bind(t, `{"title": `)
	require.Error(t, err)

	appErr := BindError(err)
	assert.Equal(t, errors.ErrInvalidInput, appErr.Code)
}

func TestDescribe_WrongType(t *testing.T) {
	err := bind(t, `{"title": "x", "duration_minutes": "thirty"}`)
	require.Error(t, err)
	assert.Contains(t, Describe(err), "wrong type")
}
