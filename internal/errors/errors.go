package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"imagyn/domain/core"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context. The code of a wrapped AppError is
// kept; otherwise it is derived from the domain error.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   appErr,
		}
	}
	return &AppError{
		Code:    CodeOf(err),
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// Predefined error codes
const (
	CodeConfigInvalid    = "CONFIG_INVALID"
	CodeNotFound         = "NOT_FOUND"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeExternalService  = "EXTERNAL_SERVICE_ERROR"
	CodeInvalidInput     = "INVALID_INPUT"
	CodeAdaptersDisabled = "ADAPTERS_DISABLED"
	CodeBackendOffline   = "BACKEND_UNAVAILABLE"
	CodeTimedOut         = "GENERATION_TIMED_OUT"
	CodeNoOutput         = "NO_OUTPUT"
	CodeStorageError     = "STORAGE_ERROR"
	CodeRequestCancelled = "REQUEST_CANCELLED"
	CodePipelineInvalid  = "PIPELINE_INVALID"
)

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

// CodeOf classifies an error chain into an application error code.
func CodeOf(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	switch {
	case err == nil:
		return ""
	case stderrors.Is(err, core.ErrInvalidInput):
		return CodeInvalidInput
	case core.IsNotFoundError(err):
		return CodeNotFound
	case stderrors.Is(err, core.ErrAdaptersDisabled):
		return CodeAdaptersDisabled
	case stderrors.Is(err, core.ErrConfiguration):
		return CodePipelineInvalid
	case stderrors.Is(err, core.ErrConnectivity), stderrors.Is(err, core.ErrConnectionLost):
		return CodeBackendOffline
	case stderrors.Is(err, core.ErrTimedOut), stderrors.Is(err, context.DeadlineExceeded):
		return CodeTimedOut
	case stderrors.Is(err, core.ErrNoOutputFound):
		return CodeNoOutput
	case stderrors.Is(err, core.ErrStorageIO):
		return CodeStorageError
	case stderrors.Is(err, context.Canceled):
		return CodeRequestCancelled
	}
	if _, ok := core.IsRemoteError(err); ok {
		return CodeExternalService
	}
	return CodeInternalError
}

// HTTPStatus maps an error chain to the status code returned by the API.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case "":
		return http.StatusOK
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAdaptersDisabled:
		return http.StatusConflict
	case CodeExternalService, CodeNoOutput:
		return http.StatusBadGateway
	case CodeBackendOffline:
		return http.StatusServiceUnavailable
	case CodeTimedOut:
		return http.StatusGatewayTimeout
	case CodeRequestCancelled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}
