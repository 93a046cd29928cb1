package session

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/zynkhq/zynk/internal/database"
	"github.com/zynkhq/zynk/internal/metrics"
	"github.com/zynkhq/zynk/internal/modules/sessionmodule/core/chunks"
	"github.com/zynkhq/zynk/internal/modules/sessionmodule/core/encoder"
	"github.com/zynkhq/zynk/internal/modules/sessionmodule/core/feedback"
	"github.com/zynkhq/zynk/internal/modules/sessionmodule/core/layout"
	sErrors "github.com/zynkhq/zynk/internal/modules/sessionmodule/errors"
	"github.com/zynkhq/zynk/internal/modules/sessionmodule/types"
	"github.com/zynkhq/zynk/internal/services/objectstore"
)

const recordTimeout = 10 * time.Second

// finalizeJob carries the components handed from the loop to the finalize
// task. The loop does not touch them afterwards.
type finalizeJob struct {
	store     *chunks.Store
	log       *feedback.Log
	workspace *layout.Workspace

	uploadSent   bool
	feedbackSent bool
}

type finalizeOutcome struct {
	outcome     database.SessionOutcome
	strategy    string
	url         string
	frames      int
	audioChunks int
	segments    int
	err         error
}

// beginFinalize moves the session to FINALIZING and starts the finalize task.
func (c *Controller) beginFinalize(ctx context.Context) {
	c.state = types.StateFinalizing
	c.logger.Info("finalizing session",
		"frames", c.store.FrameCount(),
		"audio_chunks", c.store.AudioCount(),
		"consolidated", c.store.HasConsolidated(),
		"segments", c.log.Len(),
		"inference_pending", c.inflight)

	job := &finalizeJob{store: c.store, log: c.log, workspace: c.workspace}
	c.store = nil
	c.log = nil

	// Finalize outlives the loop context; only abort or the timeout stop it.
	base := context.WithoutCancel(ctx)
	var (
		fctx   context.Context
		cancel context.CancelFunc
	)
	if c.opts.FinalizeTimeout > 0 {
		fctx, cancel = context.WithTimeout(base, c.opts.FinalizeTimeout)
	} else {
		fctx, cancel = context.WithCancel(base)
	}
	c.finalizeCancel = cancel
	c.finalizeDone = make(chan struct{})

	go func() {
		defer close(c.finalizeDone)
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("panic in finalize", "panic", r, "stack", string(debug.Stack()))
				err := fmt.Errorf("finalize panic: %v", r)
				c.acknowledge(job, err)
				job.workspace.Cleanup()
				c.finalized <- finalizeOutcome{outcome: database.SessionOutcomeFailed, err: err}
			}
		}()
		c.finalized <- c.finalize(fctx, job)
	}()
}

// finalize encodes, uploads and flushes. Every path sends exactly one
// upload-class and one feedback-class message unless the session is being
// aborted, in which case nothing is reported and only cleanup runs.
func (c *Controller) finalize(ctx context.Context, job *finalizeJob) finalizeOutcome {
	out := finalizeOutcome{
		outcome:     database.SessionOutcomeCompleted,
		frames:      job.store.FrameCount(),
		audioChunks: job.store.AudioCount(),
	}
	defer job.workspace.Cleanup()

	artifact, err := c.deps.Encoder.Finalize(ctx, c.id, job.store, job.workspace, c.opts.Encode)
	if c.aborting.Load() {
		out.outcome = database.SessionOutcomeAborted
		return out
	}

	switch {
	case err != nil:
		out.outcome = database.SessionOutcomeFailed
		out.err = err
		if sErrors.IsFatal(err) {
			c.logger.Error("finalize stopped by fatal error", "error", err, "type", sErrors.GetType(err))
		} else {
			c.logger.Error("failed to encode recording", "error", err, "details", sErrors.GetDetails(err))
		}
		c.sendUpload(job, types.Outbound{Type: types.MessageUploadError, Message: "Failed to process recording", Error: err.Error()})

	case artifact == nil:
		out.outcome = database.SessionOutcomeEmpty
		c.sendUpload(job, types.Outbound{Type: types.MessageStatus, Message: "No media to save"})

	default:
		out.strategy = artifact.Strategy
		url, err := c.upload(ctx, artifact)
		if c.aborting.Load() {
			out.outcome = database.SessionOutcomeAborted
			return out
		}
		if err != nil {
			out.outcome = database.SessionOutcomeFailed
			out.err = err
			c.logger.Error("failed to upload recording", "error", err)
			c.sendUpload(job, types.Outbound{Type: types.MessageUploadError, Message: "Failed to upload recording", Error: err.Error()})
		} else {
			out.url = url
			c.sendUpload(job, types.Outbound{
				Type:     types.MessageUploadComplete,
				Message:  "Recording uploaded",
				URL:      url,
				Strategy: artifact.Strategy,
				Muxed:    artifact.Muxed,
			})
		}
	}

	res := job.log.Flush(ctx, c.id, c.owner, c.persister())
	metrics.SegmentsFlushed(res.Count, res.Err)
	out.segments = res.Count
	if res.Err != nil {
		c.logger.Error("failed to save feedback", "error", res.Err, "segments", res.Count)
		c.sendFeedback(job, types.Outbound{Type: types.MessageFeedbackSaveError, Message: "Failed to save feedback", Error: res.Err.Error(), Count: types.Counted(res.Count)})
	} else {
		c.sendFeedback(job, types.Outbound{Type: types.MessageFeedbackSaved, Message: "Feedback saved", Count: types.Counted(res.Persisted)})
	}
	return out
}

func (c *Controller) upload(ctx context.Context, artifact *encoder.Artifact) (string, error) {
	if c.deps.Storage == nil || !c.deps.Storage.Configured() {
		return "", sErrors.UploadError("upload", sErrors.ErrStorageNotConfigured).WithSession(c.id)
	}
	key := objectstore.ObjectKey(c.owner, c.id, c.now())
	url, err := c.deps.Storage.Upload(ctx, artifact.Path, key, artifact.ContentType)
	metrics.UploadObserved(err)
	return url, err
}

func (c *Controller) persister() feedback.Persister {
	if c.deps.Segments == nil {
		return nil
	}
	return c.deps.Segments
}

func (c *Controller) sendUpload(job *finalizeJob, msg types.Outbound) {
	job.uploadSent = true
	c.send(msg)
}

func (c *Controller) sendFeedback(job *finalizeJob, msg types.Outbound) {
	job.feedbackSent = true
	c.send(msg)
}

// acknowledge sends whichever terminal messages a failed finalize has not
// sent yet.
func (c *Controller) acknowledge(job *finalizeJob, err error) {
	if c.aborting.Load() {
		return
	}
	if !job.uploadSent {
		c.sendUpload(job, types.Outbound{Type: types.MessageUploadError, Message: "Failed to process recording", Error: err.Error()})
	}
	if !job.feedbackSent {
		c.sendFeedback(job, types.Outbound{Type: types.MessageFeedbackSaveError, Message: "Failed to save feedback", Error: err.Error()})
	}
}

// complete runs on the loop once finalize has finished.
func (c *Controller) complete(out finalizeOutcome) {
	c.deps.Registry.Remove(c.id, c)
	c.state = types.StateClosed
	if c.finalizeCancel != nil {
		c.finalizeCancel()
	}

	metrics.SessionEnded(string(out.outcome))
	c.record(out)
	c.logger.Info("session closed",
		"outcome", out.outcome,
		"strategy", out.strategy,
		"segments", out.segments,
		"duration", c.now().Sub(c.startedAt))
}

// abort ends the session without upload or flush. Any finalize in flight
// is cancelled and awaited before the session directory is removed.
func (c *Controller) abort(reason string) {
	if c.state.IsTerminal() {
		return
	}
	c.aborting.Store(true)
	c.logger.Warn("session aborted", "reason", reason, "state", c.state)

	if c.finalizeCancel != nil {
		c.finalizeCancel()
		<-c.finalizeDone
	}

	activated := c.workspace != nil
	if activated {
		c.workspace.Cleanup()
		c.deps.Registry.Remove(c.id, c)
	}
	c.state = types.StateClosed

	if !activated {
		return
	}
	metrics.SessionEnded(string(database.SessionOutcomeAborted))
	out := finalizeOutcome{outcome: database.SessionOutcomeAborted, err: errors.New(reason)}
	if c.store != nil {
		out.frames = c.store.FrameCount()
		out.audioChunks = c.store.AudioCount()
	}
	c.record(out)
}

// record writes the session summary row. Failures are logged only.
func (c *Controller) record(out finalizeOutcome) {
	if c.deps.Segments == nil {
		return
	}
	rec := &database.SessionRecord{
		ID:              c.id,
		OwnerID:         c.owner,
		Outcome:         out.outcome,
		StartedAt:       c.startedAt,
		EndedAt:         c.now(),
		FrameCount:      out.frames,
		AudioChunkCount: out.audioChunks,
		SegmentCount:    out.segments,
		EncodeStrategy:  out.strategy,
		ArtifactURL:     out.url,
	}
	if out.err != nil {
		rec.Error = out.err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := c.deps.Segments.RecordSession(ctx, rec); err != nil {
		c.logger.Warn("failed to record session", "error", err)
	}
}
