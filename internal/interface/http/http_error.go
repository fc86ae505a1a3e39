package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/shim-server/internal/domain/shim"
	apperrors "github.com/yanqian/shim-server/pkg/errors"
)

// HTTPError captures the metadata required to serialize an error response consistently.
type HTTPError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// NewHTTPError is a helper to build an HTTPError instance.
func NewHTTPError(status int, code, message string, err error) *HTTPError {
	return &HTTPError{Status: status, Code: code, Message: message, Err: err}
}

var statusByCode = map[string]int{
	shim.CodeInvalidInput:      http.StatusBadRequest,
	shim.CodeUnknownShim:       http.StatusNotFound,
	shim.CodeUnknownDataType:   http.StatusBadRequest,
	shim.CodeAccountNotFound:   http.StatusNotFound,
	shim.CodeAccountIncomplete: http.StatusUnprocessableEntity,
	shim.CodeTransportFailure:  http.StatusBadGateway,
	shim.CodeMalformedResponse: http.StatusBadGateway,
	shim.CodeDefect:            http.StatusInternalServerError,
	shim.CodeAccountError:      http.StatusInternalServerError,
	"invalid_token":            http.StatusUnauthorized,
	"invalid_credentials":      http.StatusUnauthorized,
	"auth_error":               http.StatusInternalServerError,
}

// fromAppError translates a domain failure into its HTTP representation.
func fromAppError(err error) *HTTPError {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return NewHTTPError(http.StatusInternalServerError, "internal_error", "something went wrong", err)
	}
	status, ok := statusByCode[appErr.Code]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		return NewHTTPError(status, appErr.Code, appErr.Message, err)
	}
	return NewHTTPError(status, appErr.Code, errMessage(err), err)
}

func asHTTPError(err error) *HTTPError {
	if err == nil {
		return nil
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	return &HTTPError{
		Status:  http.StatusInternalServerError,
		Code:    "internal_error",
		Message: "something went wrong",
		Err:     err,
	}
}

func abortWithError(c *gin.Context, err *HTTPError) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
