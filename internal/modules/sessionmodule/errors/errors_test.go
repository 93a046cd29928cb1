package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSessionError(t *testing.T) {
	err := New(ErrorTypeTool, "ffmpeg_execution", ErrToolFailed)
	if err.Type != ErrorTypeTool {
		t.Errorf("expected type %s, got %s", ErrorTypeTool, err.Type)
	}

	err = err.WithSession("sess-1").WithDetail("strategy", "transcode")
	if err.Details["strategy"] != "transcode" {
		t.Errorf("expected strategy detail, got %v", err.Details["strategy"])
	}

	expected := "tool error in ffmpeg_execution for session sess-1: encoder tool failed"
	if err.Error() != expected {
		t.Errorf("expected error string '%s', got '%s'", expected, err.Error())
	}
}

func TestErrorWrapping(t *testing.T) {
	err := EncodeError("finalize", ErrEncodeExhausted)
	wrapped := fmt.Errorf("session finalize: %w", err)

	if !errors.Is(wrapped, ErrEncodeExhausted) {
		t.Error("expected error to match ErrEncodeExhausted")
	}
	if GetType(wrapped) != ErrorTypeEncode {
		t.Errorf("expected type %s, got %s", ErrorTypeEncode, GetType(wrapped))
	}
	if GetOperation(wrapped) != "finalize" {
		t.Errorf("expected operation 'finalize', got %s", GetOperation(wrapped))
	}
}

func TestWrapPreservesSessionError(t *testing.T) {
	orig := UploadError("upload", ErrStorageNotConfigured)
	if Wrap(orig, ErrorTypeFatal, "other") != error(orig) {
		t.Error("expected Wrap to return the existing SessionError")
	}
	if Wrap(nil, ErrorTypeFatal, "other") != nil {
		t.Error("expected Wrap(nil) to be nil")
	}
	if GetType(Wrap(errors.New("x"), ErrorTypePersist, "flush")) != ErrorTypePersist {
		t.Error("expected plain errors to be wrapped with the given type")
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil", nil, false},
		{"tool missing", ToolError("run", ErrToolMissing), true},
		{"disk full as storage", StorageError("write_blob", ErrDiskFull), true},
		{"fatal type", FatalError("loop", errors.New("panic")), true},
		{"tool failed", ToolError("run", ErrToolFailed), false},
		{"decode", DecodeError("append_frame", ErrDecode), false},
		{"bare sentinel", ErrToolMissing, true},
		{"bare error", errors.New("x"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Errorf("IsFatal() = %v, want %v", got, tt.fatal)
			}
		})
	}
}
