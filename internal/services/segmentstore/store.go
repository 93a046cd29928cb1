// Package segmentstore persists feedback segments and session summaries.
package segmentstore

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zynkhq/zynk/internal/database"
	"github.com/zynkhq/zynk/internal/services"
)

const (
	insertBatchSize     = 100
	defaultSessionLimit = 50
)

// Store implements services.SegmentService with GORM.
type Store struct {
	db *gorm.DB
}

var _ services.SegmentService = (*Store)(nil)

// New creates a store on db.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// PersistBatch writes one session's segments in a single transaction. The
// batch either lands completely or not at all.
func (s *Store) PersistBatch(ctx context.Context, sessionID, ownerID string, segments []database.FeedbackSegment) (int, error) {
	if len(segments) == 0 {
		return 0, nil
	}

	rows := make([]database.FeedbackSegment, len(segments))
	for i, seg := range segments {
		seg.ID = 0
		seg.SessionID = sessionID
		seg.OwnerID = ownerID
		rows[i] = seg
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(rows, insertBatchSize).Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to persist %d segments for session %s: %w", len(rows), sessionID, err)
	}
	return len(rows), nil
}

// ListBySession returns a session's segments in append order.
func (s *Store) ListBySession(ctx context.Context, sessionID string) ([]database.FeedbackSegment, error) {
	var segments []database.FeedbackSegment
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&segments).Error
	return segments, err
}

// RecordSession inserts or replaces the summary row for a session.
func (s *Store) RecordSession(ctx context.Context, record *database.SessionRecord) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(record).Error
}

// ListSessions returns recent session records, optionally for one owner.
func (s *Store) ListSessions(ctx context.Context, ownerID string, limit int) ([]database.SessionRecord, error) {
	if limit <= 0 {
		limit = defaultSessionLimit
	}

	query := s.db.WithContext(ctx)
	if ownerID != "" {
		query = query.Where("owner_id = ?", ownerID)
	}

	var records []database.SessionRecord
	err := query.Order("started_at DESC").Limit(limit).Find(&records).Error
	return records, err
}
