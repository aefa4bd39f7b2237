package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError carrying the same code, so
// errors.Is(err, errors.SlotConflict) matches any slot conflict.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrInvalidInput
	ErrUnauthenticated
	ErrUnauthorized
	ErrSlotConflict
	ErrInternal
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNotFound:
		return "not_found"
	case ErrInvalidInput:
		return "invalid_input"
	case ErrUnauthenticated:
		return "unauthenticated"
	case ErrUnauthorized:
		return "unauthorized"
	case ErrSlotConflict:
		return "slot_conflict"
	default:
		return "internal"
	}
}

// Sentinels for errors.Is comparisons.
var (
	NotFound        = &AppError{Code: ErrNotFound, Message: "not found"}
	InvalidInput    = &AppError{Code: ErrInvalidInput, Message: "invalid input"}
	Unauthenticated = &AppError{Code: ErrUnauthenticated, Message: "unauthenticated"}
	Unauthorized    = &AppError{Code: ErrUnauthorized, Message: "unauthorized"}
	SlotConflict    = &AppError{Code: ErrSlotConflict, Message: "slot no longer available, please choose another"}
	Internal        = &AppError{Code: ErrInternal, Message: "internal server error"}
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewInvalidInput(message string, err error) *AppError {
	return &AppError{
		Code:    ErrInvalidInput,
		Message: message,
		Err:     err,
	}
}

func NewUnauthenticated(message string, err error) *AppError {
	return &AppError{
		Code:    ErrUnauthenticated,
		Message: message,
		Err:     err,
	}
}

func NewUnauthorized(message string, err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: message,
		Err:     err,
	}
}

// NewSlotConflict reports an unavailable interval. Conflicts found before
// and at commit share this message so callers cannot tell them apart.
func NewSlotConflict(err error) *AppError {
	return &AppError{
		Code:    ErrSlotConflict,
		Message: SlotConflict.Message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or
// ErrInternal when there is none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// As finds the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	ok := stderrors.As(err, &appErr)
	return appErr, ok
}
