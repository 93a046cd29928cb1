package feedback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zynkhq/zynk/internal/database"
	sErrors "github.com/zynkhq/zynk/internal/modules/sessionmodule/errors"
	"github.com/zynkhq/zynk/internal/services"
)

type recordingPersister struct {
	calls   int
	batches [][]database.FeedbackSegment
	err     error
}

func (p *recordingPersister) PersistBatch(_ context.Context, _, _ string, segments []database.FeedbackSegment) (int, error) {
	p.calls++
	p.batches = append(p.batches, segments)
	if p.err != nil {
		return 0, p.err
	}
	return len(segments), nil
}

func TestIsActionable(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"", false},
		{"   ", false},
		{"OK", false},
		{"ok", false},
		{" Ok \n", false},
		{"Error analyzing segment: timeout", false},
		{services.FeedbackUnavailable, false},
		{"Slow down and look at the camera.", true},
		{"OK, but speak louder", true},
		{"Errors in slide 3 distract from the point", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsActionable(tt.text), "text %q", tt.text)
	}
}

func TestAppendOnlyActionable(t *testing.T) {
	log := NewLog()

	idx, ok := log.Append(Segment{Text: "OK", StartSeconds: 0, EndSeconds: 5})
	assert.False(t, ok)
	assert.Equal(t, -1, idx)
	assert.Equal(t, 0, log.Len())

	idx, ok = log.Append(Segment{Text: "Error analyzing segment: boom"})
	assert.False(t, ok)
	assert.Equal(t, 0, log.Len())

	idx, ok = log.Append(Segment{Text: "  Pause between points. ", StartSeconds: 0, EndSeconds: 5})
	require.True(t, ok)
	assert.Equal(t, 0, idx)

	idx, ok = log.Append(Segment{Text: "Smile more.", StartSeconds: 5, EndSeconds: 10})
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	segs := log.Segments()
	assert.Equal(t, "Pause between points.", segs[0].Text)
	assert.False(t, segs[0].CreatedAt.IsZero())
}

func TestAppendKeepsStartsNonDecreasing(t *testing.T) {
	log := NewLog()
	log.Append(Segment{Text: "a", StartSeconds: 10, EndSeconds: 15})
	log.Append(Segment{Text: "b", StartSeconds: 4, EndSeconds: 6})
	log.Append(Segment{Text: "c", StartSeconds: -3, EndSeconds: -4})

	segs := log.Segments()
	for i, s := range segs {
		assert.LessOrEqual(t, s.StartSeconds, s.EndSeconds, "segment %d", i)
		if i > 0 {
			assert.GreaterOrEqual(t, s.StartSeconds, segs[i-1].StartSeconds, "segment %d", i)
		}
	}
	assert.Equal(t, 10.0, segs[1].StartSeconds)
	assert.Equal(t, 10.0, segs[1].EndSeconds)
}

func TestFlushPersistsBatchInOrder(t *testing.T) {
	log := NewLog()
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	log.Append(Segment{Text: "one", StartSeconds: 0, EndSeconds: 5, CreatedAt: created})
	log.Append(Segment{Text: "two", StartSeconds: 5, EndSeconds: 10, CreatedAt: created})

	p := &recordingPersister{}
	res := log.Flush(context.Background(), "s1", "user-1", p)

	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, 2, res.Persisted)
	assert.Equal(t, 0, log.Len())
	require.Len(t, p.batches, 1)

	batch := p.batches[0]
	assert.Equal(t, "one", batch[0].Text)
	assert.Equal(t, 0, batch[0].Seq)
	assert.Equal(t, 1, batch[1].Seq)
	assert.Equal(t, "s1", batch[1].SessionID)
	assert.Equal(t, "user-1", batch[1].OwnerID)
	assert.Equal(t, created, batch[1].CreatedAt)
}

func TestFlushClearsOnFailure(t *testing.T) {
	log := NewLog()
	log.Append(Segment{Text: "one"})
	log.Append(Segment{Text: "two"})
	log.Append(Segment{Text: "three"})

	p := &recordingPersister{err: errors.New("db down")}
	res := log.Flush(context.Background(), "s1", "u", p)

	assert.Equal(t, 3, res.Count)
	assert.Equal(t, 0, res.Persisted)
	require.Error(t, res.Err)
	assert.Equal(t, sErrors.ErrorTypePersist, sErrors.GetType(res.Err))
	assert.Equal(t, 0, log.Len())

	// Not re-queued.
	res = log.Flush(context.Background(), "s1", "u", &recordingPersister{})
	assert.Equal(t, 0, res.Count)
}

func TestFlushEmptyStillCallsPersister(t *testing.T) {
	p := &recordingPersister{}
	res := NewLog().Flush(context.Background(), "s1", "u", p)
	require.NoError(t, res.Err)
	assert.Equal(t, 0, res.Count)
	assert.Equal(t, 1, p.calls)
}

func TestFlushWithoutPersister(t *testing.T) {
	log := NewLog()
	log.Append(Segment{Text: "one"})
	res := log.Flush(context.Background(), "s1", "u", nil)
	assert.Equal(t, 1, res.Count)
	assert.Error(t, res.Err)
	assert.Equal(t, 0, log.Len())
}
