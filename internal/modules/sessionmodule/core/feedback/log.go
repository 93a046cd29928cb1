// Package feedback keeps a session's actionable coaching segments until they
// are persisted as one batch at the end of the session.
package feedback

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/zynkhq/zynk/internal/database"
	sErrors "github.com/zynkhq/zynk/internal/modules/sessionmodule/errors"
	"github.com/zynkhq/zynk/internal/services"
)

var errNoPersister = errors.New("no segment store configured")

// Segment is one actionable judgment with its window offsets in seconds.
type Segment struct {
	Text         string
	StartSeconds float64
	EndSeconds   float64
	CreatedAt    time.Time
}

// Persister stores a session's segments as a single batch.
type Persister interface {
	PersistBatch(ctx context.Context, sessionID, ownerID string, segments []database.FeedbackSegment) (int, error)
}

// FlushResult reports one flush. Count is the number of segments held
// immediately before the flush.
type FlushResult struct {
	Count     int
	Persisted int
	Err       error
}

// IsActionable reports whether a judgment should become a segment.
func IsActionable(text string) bool {
	trimmed := strings.TrimSpace(text)
	switch {
	case trimmed == "":
		return false
	case strings.EqualFold(trimmed, services.NoFeedback):
		return false
	case strings.HasPrefix(trimmed, services.FeedbackErrorPrefix):
		return false
	case trimmed == services.FeedbackUnavailable:
		return false
	}
	return true
}

// Log is the append-only segment list for one session. It is owned by a
// single goroutine at a time.
type Log struct {
	segments []Segment
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{}
}

// Append adds seg when it is actionable and returns its index. Starts are
// kept non-decreasing and ends never fall below their start.
func (l *Log) Append(seg Segment) (int, bool) {
	if !IsActionable(seg.Text) {
		return -1, false
	}
	seg.Text = strings.TrimSpace(seg.Text)
	if n := len(l.segments); n > 0 && seg.StartSeconds < l.segments[n-1].StartSeconds {
		seg.StartSeconds = l.segments[n-1].StartSeconds
	}
	if seg.StartSeconds < 0 {
		seg.StartSeconds = 0
	}
	if seg.EndSeconds < seg.StartSeconds {
		seg.EndSeconds = seg.StartSeconds
	}
	if seg.CreatedAt.IsZero() {
		seg.CreatedAt = time.Now()
	}
	l.segments = append(l.segments, seg)
	return len(l.segments) - 1, true
}

// Len returns the number of held segments.
func (l *Log) Len() int { return len(l.segments) }

// At returns the segment at index i as stored, after clamping.
func (l *Log) At(i int) Segment { return l.segments[i] }

// Segments returns a copy of the held segments.
func (l *Log) Segments() []Segment {
	out := make([]Segment, len(l.segments))
	copy(out, l.segments)
	return out
}

// Flush hands every held segment to p as one batch and clears the log
// whatever the outcome. Failed batches are not retried.
func (l *Log) Flush(ctx context.Context, sessionID, ownerID string, p Persister) FlushResult {
	batch := l.segments
	l.segments = nil

	result := FlushResult{Count: len(batch)}
	if p == nil {
		result.Err = sErrors.PersistError("flush", errNoPersister).WithSession(sessionID)
		return result
	}

	rows := make([]database.FeedbackSegment, len(batch))
	for i, seg := range batch {
		rows[i] = database.FeedbackSegment{
			SessionID:    sessionID,
			OwnerID:      ownerID,
			Seq:          i,
			Text:         seg.Text,
			StartSeconds: seg.StartSeconds,
			EndSeconds:   seg.EndSeconds,
			CreatedAt:    seg.CreatedAt,
		}
	}

	n, err := p.PersistBatch(ctx, sessionID, ownerID, rows)
	if err != nil {
		result.Err = sErrors.Wrap(err, sErrors.ErrorTypePersist, "flush")
		return result
	}
	result.Persisted = n
	return result
}
