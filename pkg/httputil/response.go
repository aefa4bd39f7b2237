package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/hospital-api/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Status  string      `json:"status"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(code errors.ErrorCode, message string) *Response {
	return &Response{
		Status:  "error",
		Code:    code.String(),
		Message: message,
	}
}

// StatusFor maps an application error code to its HTTP status.
func StatusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrInvalidInput:
		return http.StatusBadRequest
	case errors.ErrNotFound:
		return http.StatusNotFound
	case errors.ErrSlotConflict:
		return http.StatusConflict
	case errors.ErrUnauthenticated:
		return http.StatusUnauthorized
	case errors.ErrUnauthorized:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, NewSuccessResponse(data))
}

// RespondWithError sends an error response and aborts the chain. Internal
// causes are never echoed to the client.
func RespondWithError(c *gin.Context, err error) {
	_ = c.Error(err)

	appErr, ok := errors.As(err)
	if !ok || appErr.Code == errors.ErrInternal {
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			NewErrorResponse(errors.ErrInternal, "internal server error"))
		return
	}

	c.AbortWithStatusJSON(StatusFor(appErr.Code), NewErrorResponse(appErr.Code, appErr.Message))
}
