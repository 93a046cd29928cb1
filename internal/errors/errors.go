// Package errors shapes failures of the REST surface into one JSON body:
// {"error": ..., "code": ..., "details": {...}}.
package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zynkhq/zynk/internal/logger"
)

// Response codes
const (
	CodeValidation  = "VALIDATION_ERROR"
	CodeNotFound    = "NOT_FOUND"
	CodeDatabase    = "DATABASE_ERROR"
	CodeUnavailable = "SERVICE_UNAVAILABLE"
	CodeUpstream    = "UPSTREAM_ERROR"
)

// APIError is an error that knows how to render itself over HTTP.
type APIError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Cause      error                  `json:"-"`
	HTTPStatus int                    `json:"-"`
}

func (e *APIError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *APIError) Unwrap() error { return e.Cause }

// ToGinResponse logs the failure and writes it as the response body.
// A zero HTTPStatus is sent as 500.
func (e *APIError) ToGinResponse(c *gin.Context) {
	status := e.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}

	body := gin.H{"error": e.Message, "code": e.Code}
	if len(e.Context) > 0 {
		body["details"] = e.Context
	}

	logger.Error("request failed",
		"status", status,
		"code", e.Code,
		"message", e.Message,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"error", e.Cause)
	c.JSON(status, body)
}

func newAPIError(code string, status int, message string, cause error, key, value string) *APIError {
	return &APIError{
		Code:       code,
		Message:    message,
		HTTPStatus: status,
		Context:    map[string]interface{}{key: value},
		Cause:      cause,
	}
}

// NewValidationError rejects a bad request parameter.
func NewValidationError(message, field string) *APIError {
	return newAPIError(CodeValidation, http.StatusBadRequest, message, nil, "field", field)
}

// NewNotFoundError reports a missing resource by id.
func NewNotFoundError(resource, id string) *APIError {
	err := newAPIError(CodeNotFound, http.StatusNotFound, resource+" not found", nil, "resource", resource)
	err.Context["id"] = id
	return err
}

// NewDatabaseError hides the driver message behind a generic one.
func NewDatabaseError(operation string, cause error) *APIError {
	return newAPIError(CodeDatabase, http.StatusInternalServerError, "Database operation failed", cause, "operation", operation)
}

// NewUnavailableError reports a collaborator (object storage, inference)
// that this deployment has not configured.
func NewUnavailableError(service string, cause error) *APIError {
	return newAPIError(CodeUnavailable, http.StatusServiceUnavailable, service+" is not configured", cause, "service", service)
}

// NewUpstreamError reports a configured collaborator that failed the call.
func NewUpstreamError(service string, cause error) *APIError {
	return newAPIError(CodeUpstream, http.StatusBadGateway, service+" request failed", cause, "service", service)
}

// HandleValidationError writes a 400.
func HandleValidationError(c *gin.Context, message, field string) {
	NewValidationError(message, field).ToGinResponse(c)
}

// HandleNotFound writes a 404.
func HandleNotFound(c *gin.Context, resource, id string) {
	NewNotFoundError(resource, id).ToGinResponse(c)
}

// HandleDatabaseError writes a 500 for a failed query.
func HandleDatabaseError(c *gin.Context, operation string, err error) {
	NewDatabaseError(operation, err).ToGinResponse(c)
}

// RequireParam returns a non-empty path parameter or writes a 400.
func RequireParam(c *gin.Context, name string) (string, bool) {
	v := c.Param(name)
	if v == "" {
		HandleValidationError(c, "Missing "+name, name)
		return "", false
	}
	return v, true
}
