package database

import (
	"time"
)

// SessionOutcome records how a live session ended
type SessionOutcome string

const (
	SessionOutcomeCompleted SessionOutcome = "completed"
	SessionOutcomeEmpty     SessionOutcome = "empty"
	SessionOutcomeFailed    SessionOutcome = "failed"
	SessionOutcomeAborted   SessionOutcome = "aborted"
)

// SessionRecord is the summary row written when a session reaches a terminal state.
type SessionRecord struct {
	ID              string         `gorm:"primaryKey;type:varchar(128)" json:"id"`
	OwnerID         string         `gorm:"type:varchar(128);not null;index" json:"owner_id"`
	Outcome         SessionOutcome `gorm:"type:varchar(32);not null;index" json:"outcome"`
	StartedAt       time.Time      `gorm:"not null;index" json:"started_at"`
	EndedAt         time.Time      `gorm:"not null" json:"ended_at"`
	FrameCount      int            `json:"frame_count"`
	AudioChunkCount int            `json:"audio_chunk_count"`
	SegmentCount    int            `json:"segment_count"`
	EncodeStrategy  string         `gorm:"type:varchar(32)" json:"encode_strategy,omitempty"`
	ArtifactURL     string         `gorm:"type:varchar(1024)" json:"artifact_url,omitempty"`
	Error           string         `gorm:"type:text" json:"error,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// TableName returns the table name for GORM
func (SessionRecord) TableName() string {
	return "session_records"
}

// FeedbackSegment is one persisted actionable judgment, offsets in seconds
// from session start.
type FeedbackSegment struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SessionID    string    `gorm:"type:varchar(128);not null;index:idx_segment_session_seq,priority:1" json:"session_id"`
	OwnerID      string    `gorm:"type:varchar(128);not null;index" json:"owner_id"`
	Seq          int       `gorm:"not null;index:idx_segment_session_seq,priority:2" json:"seq"`
	Text         string    `gorm:"type:text;not null" json:"text"`
	StartSeconds float64   `gorm:"not null" json:"start_seconds"`
	EndSeconds   float64   `gorm:"not null" json:"end_seconds"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
}

// TableName returns the table name for GORM
func (FeedbackSegment) TableName() string {
	return "feedback_segments"
}
