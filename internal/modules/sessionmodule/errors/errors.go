// Package errors provides structured error handling for the session module.
// Every failure inside a live session is classified by ErrorType so the
// controller can decide between dropping the input, reporting it to the
// client, or terminating the session.
package errors

import (
	"errors"
	"fmt"
)

// Error types for classification
type ErrorType string

const (
	// ErrorTypeDecode indicates a malformed frame, audio chunk or blob payload
	ErrorTypeDecode ErrorType = "decode"
	// ErrorTypeInference indicates the feedback model failed or timed out
	ErrorTypeInference ErrorType = "inference"
	// ErrorTypeEncode indicates every applicable encoding strategy failed
	ErrorTypeEncode ErrorType = "encode"
	// ErrorTypeTool indicates an external tool invocation failed
	ErrorTypeTool ErrorType = "tool"
	// ErrorTypeStorage indicates a local filesystem failure
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeUpload indicates an object storage failure
	ErrorTypeUpload ErrorType = "upload"
	// ErrorTypePersist indicates the feedback batch could not be saved
	ErrorTypePersist ErrorType = "persist"
	// ErrorTypeProtocol indicates an unparseable or out-of-state message
	ErrorTypeProtocol ErrorType = "protocol"
	// ErrorTypeFatal indicates the session cannot continue
	ErrorTypeFatal ErrorType = "fatal"
)

// Sentinel errors for common scenarios
var (
	ErrDecode = errors.New("payload could not be decoded")

	// ErrToolMissing indicates the encoder binary is not installed
	ErrToolMissing = errors.New("encoder tool not found")

	// ErrToolFailed indicates the encoder exited non-zero
	ErrToolFailed = errors.New("encoder tool failed")

	// ErrToolTimeout indicates the encoder exceeded its deadline and was killed
	ErrToolTimeout = errors.New("encoder tool timed out")

	// ErrEncodeExhausted indicates every strategy for the available inputs failed
	ErrEncodeExhausted = errors.New("all encoding strategies failed")

	// ErrDiskFull indicates the session directory has no room left
	ErrDiskFull = errors.New("insufficient disk space")

	// ErrStorageNotConfigured indicates object storage credentials are absent
	ErrStorageNotConfigured = errors.New("object storage not configured")

	// ErrUnsupportedFileType indicates an upload of something other than MP4
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrInferenceUnavailable indicates no inference backend is configured
	ErrInferenceUnavailable = errors.New("inference not configured")

	// ErrSessionExists indicates a registry insert with a live id
	ErrSessionExists = errors.New("session already exists")
)

// SessionError provides structured error information with context
type SessionError struct {
	Type      ErrorType              // Error classification
	Op        string                 // Operation that failed (e.g., "append_frame", "finalize")
	SessionID string                 // Related session ID if applicable
	Err       error                  // Underlying error
	Details   map[string]interface{} // Additional context
}

// Error implements the error interface
func (e *SessionError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("%s error in %s for session %s: %v", e.Type, e.Op, e.SessionID, e.Err)
	}
	return fmt.Sprintf("%s error in %s: %v", e.Type, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *SessionError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for sentinel errors
func (e *SessionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// New creates a new SessionError
func New(errType ErrorType, op string, err error) *SessionError {
	return &SessionError{
		Type:    errType,
		Op:      op,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// WithSession adds session context to the error
func (e *SessionError) WithSession(sessionID string) *SessionError {
	e.SessionID = sessionID
	return e
}

// WithDetail adds a key-value detail to the error
func (e *SessionError) WithDetail(key string, value interface{}) *SessionError {
	e.Details[key] = value
	return e
}

// IsFatal reports whether the session must terminate. Tool-missing and
// disk-full conditions are fatal regardless of the type they were raised with.
func (e *SessionError) IsFatal() bool {
	if e.Type == ErrorTypeFatal {
		return true
	}
	return errors.Is(e.Err, ErrToolMissing) || errors.Is(e.Err, ErrDiskFull)
}

// Error creation helpers

// DecodeError creates a payload decoding error
func DecodeError(op string, err error) *SessionError {
	return New(ErrorTypeDecode, op, err)
}

// InferenceError creates an inference error
func InferenceError(op string, err error) *SessionError {
	return New(ErrorTypeInference, op, err)
}

// EncodeError creates an encoding error
func EncodeError(op string, err error) *SessionError {
	return New(ErrorTypeEncode, op, err)
}

// ToolError creates an external tool error
func ToolError(op string, err error) *SessionError {
	return New(ErrorTypeTool, op, err)
}

// StorageError creates a local storage error
func StorageError(op string, err error) *SessionError {
	return New(ErrorTypeStorage, op, err)
}

// UploadError creates an object storage error
func UploadError(op string, err error) *SessionError {
	return New(ErrorTypeUpload, op, err)
}

// PersistError creates a feedback persistence error
func PersistError(op string, err error) *SessionError {
	return New(ErrorTypePersist, op, err)
}

// ProtocolError creates a protocol error
func ProtocolError(op string, err error) *SessionError {
	return New(ErrorTypeProtocol, op, err)
}

// FatalError creates an error that terminates the session
func FatalError(op string, err error) *SessionError {
	return New(ErrorTypeFatal, op, err)
}

// Wrap wraps an error with operation context if it's not already a SessionError
func Wrap(err error, errType ErrorType, op string) error {
	if err == nil {
		return nil
	}

	var sErr *SessionError
	if errors.As(err, &sErr) {
		return err
	}

	return New(errType, op, err)
}

// IsFatal reports whether err terminates the session.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var sErr *SessionError
	if errors.As(err, &sErr) {
		return sErr.IsFatal()
	}
	return errors.Is(err, ErrToolMissing) || errors.Is(err, ErrDiskFull)
}

// GetType extracts the error type from an error
func GetType(err error) ErrorType {
	var sErr *SessionError
	if errors.As(err, &sErr) {
		return sErr.Type
	}
	return ErrorTypeFatal
}

// GetOperation extracts the operation from an error
func GetOperation(err error) string {
	var sErr *SessionError
	if errors.As(err, &sErr) {
		return sErr.Op
	}
	return "unknown"
}

// GetDetails extracts error details
func GetDetails(err error) map[string]interface{} {
	var sErr *SessionError
	if errors.As(err, &sErr) {
		return sErr.Details
	}
	return nil
}
