package services

import (
	"context"
	"image"
	"time"

	"github.com/zynkhq/zynk/internal/database"
)

// Service names used with the registry.
const (
	InferenceServiceName = "inference"
	StorageServiceName   = "objectstore"
	SegmentServiceName   = "segmentstore"
)

// Judgment strings shared by the inference backend and the feedback log.
const (
	// NoFeedback is returned by the model when nothing needs to change.
	NoFeedback = "OK"
	// FeedbackErrorPrefix starts every judgment produced from a failed call.
	FeedbackErrorPrefix = "Error"
	// FeedbackUnavailable is the placeholder used when no backend is configured.
	FeedbackUnavailable = "AI feedback unavailable (API not configured)"
)

// Standard service interface pattern for session collaborators
//
// Collaborators take ownership of their inputs (bytes read from disk or the
// segment batch) and hand back a result. They never hold references into a
// live session.

// InferenceRequest is one feedback window handed to the model.
type InferenceRequest struct {
	// Images are the window's frames, oldest first.
	Images []image.Image
	// AudioSummary describes the latest audio chunk, empty when there was none.
	AudioSummary string
	// History holds the most recent actionable judgments, oldest first.
	History []string
}

// InferenceService produces a short coaching judgment for a window
type InferenceService interface {
	// Analyze returns the model's judgment. Failures are reported as a
	// judgment starting with FeedbackErrorPrefix alongside the error.
	Analyze(ctx context.Context, req InferenceRequest) (string, error)

	// Available reports whether a backend is configured
	Available() bool
}

// ObjectInfo describes one stored recording
type ObjectInfo struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Size      int64     `json:"size"`
}

// StorageService uploads finalized recordings to object storage
type StorageService interface {
	// Upload stores the file at storagePath and returns its public URL
	Upload(ctx context.Context, filePath, storagePath, contentType string) (string, error)

	// List returns the objects stored under an owner prefix
	List(ctx context.Context, ownerPrefix string) ([]ObjectInfo, error)

	// Configured reports whether credentials and a bucket are present
	Configured() bool
}

// SegmentService persists feedback segments and session records
type SegmentService interface {
	// PersistBatch stores one session's segments atomically and returns the count written
	PersistBatch(ctx context.Context, sessionID, ownerID string, segments []database.FeedbackSegment) (int, error)

	// ListBySession returns a session's segments ordered by sequence
	ListBySession(ctx context.Context, sessionID string) ([]database.FeedbackSegment, error)

	// RecordSession upserts the summary row for a session
	RecordSession(ctx context.Context, record *database.SessionRecord) error

	// ListSessions returns recent session records, newest first
	ListSessions(ctx context.Context, ownerID string, limit int) ([]database.SessionRecord, error)
}
