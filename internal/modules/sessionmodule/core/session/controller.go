// Package session drives one live presentation session.
//
// A Controller moves through UNAUTH, ACTIVE, FINALIZING and CLOSED. A single
// loop goroutine (Run) is the only writer of session state: inbound
// messages, inference results and the finalize outcome are all serialized
// through it. Inference runs on a shared worker pool and finalize runs on
// its own goroutine; both report back over channels.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/zynkhq/zynk/internal/metrics"
	"github.com/zynkhq/zynk/internal/modules/sessionmodule/core/chunks"
	"github.com/zynkhq/zynk/internal/modules/sessionmodule/core/feedback"
	"github.com/zynkhq/zynk/internal/modules/sessionmodule/core/layout"
	"github.com/zynkhq/zynk/internal/modules/sessionmodule/core/window"
	sErrors "github.com/zynkhq/zynk/internal/modules/sessionmodule/errors"
	"github.com/zynkhq/zynk/internal/modules/sessionmodule/types"
	"github.com/zynkhq/zynk/internal/services"
)

// Controller owns one session's store, window and feedback log.
type Controller struct {
	requestedID string
	opts        Options
	deps        Deps
	notifier    Notifier
	logger      hclog.Logger
	now         func() time.Time

	// Loop-owned state.
	id          string
	owner       string
	state       types.State
	startedAt   time.Time
	workspace   *layout.Workspace
	store       *chunks.Store
	window      *window.Windower
	log         *feedback.Log
	history     []string
	inflight    bool
	videoChunks int

	results        chan inferenceResult
	finalized      chan finalizeOutcome
	finalizeDone   chan struct{}
	finalizeCancel context.CancelFunc
	aborting       atomic.Bool

	done     chan struct{}
	doneOnce sync.Once
}

type inferenceJob struct {
	images  []image.Image
	audio   []byte
	history []string
	start   float64
	end     float64
}

type inferenceResult struct {
	job  inferenceJob
	text string
	err  error
	took time.Duration
}

// New creates a controller in the UNAUTH state. requestedID is used as the
// session id unless the auth message carries one; an empty id is generated.
func New(requestedID string, opts Options, deps Deps, notifier Notifier) *Controller {
	if deps.Registry == nil {
		deps.Registry = NewRegistry()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Controller{
		requestedID: requestedID,
		opts:        opts,
		deps:        deps,
		notifier:    notifier,
		logger:      logger.Named("session"),
		now:         deps.Now,
		state:       types.StateUnauth,
		results:     make(chan inferenceResult, 1),
		finalized:   make(chan finalizeOutcome, 1),
		done:        make(chan struct{}),
	}
}

// ID returns the session id, empty until the session is activated.
func (c *Controller) ID() string { return c.id }

// Owner returns the bound owner id.
func (c *Controller) Owner() string { return c.owner }

// State returns the lifecycle state. Only the loop goroutine, or a caller
// that has observed Done, may read it.
func (c *Controller) State() types.State { return c.state }

// Done is closed when Run returns.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Run processes inbound messages until the session closes, the inbound
// channel is closed or ctx is cancelled. The last two abort the session.
func (c *Controller) Run(ctx context.Context, inbound <-chan types.Inbound) (err error) {
	defer c.doneOnce.Do(func() { close(c.done) })
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in session loop", "panic", r, "stack", string(debug.Stack()))
			c.abort(fmt.Sprintf("panic: %v", r))
			err = fmt.Errorf("session loop panic: %v", r)
		}
	}()

	for {
		select {
		case msg, ok := <-inbound:
			if !ok {
				c.abort("transport closed")
				return nil
			}
			c.Handle(ctx, msg)
		case res := <-c.results:
			c.handleResult(res)
		case out := <-c.finalized:
			c.complete(out)
		case <-ctx.Done():
			c.abort(context.Cause(ctx).Error())
			return ctx.Err()
		}

		if c.state.IsTerminal() {
			return nil
		}
	}
}

// Handle applies one inbound message. It must be called from the loop
// goroutine.
func (c *Controller) Handle(ctx context.Context, msg types.Inbound) {
	if c.state.IsTerminal() {
		return
	}
	if msg.Type == types.MessagePing {
		c.send(types.Outbound{Type: types.MessagePong})
		return
	}

	switch c.state {
	case types.StateUnauth:
		if msg.Type == types.MessageAuth {
			owner := msg.Owner()
			if owner == "" {
				owner = types.AnonymousOwner
			}
			if err := c.activate(owner, msg.SessionID); err != nil {
				c.failActivation(err)
				return
			}
			c.send(types.Outbound{Type: types.MessageAuthSuccess, UserID: c.owner, Message: "Authenticated"})
			return
		}
		if !isSessionData(msg.Type) {
			c.logger.Debug("ignoring message before auth", "type", msg.Type)
			return
		}
		c.logger.Debug("media before auth, binding anonymous owner", "type", msg.Type)
		if err := c.activate(types.AnonymousOwner, msg.SessionID); err != nil {
			c.failActivation(err)
			return
		}
	case types.StateFinalizing:
		c.logger.Debug("ignoring message while finalizing", "type", msg.Type)
		return
	}

	c.dispatch(ctx, msg)
}

func isSessionData(t types.MessageType) bool {
	switch t {
	case types.MessageFrame, types.MessageAudio, types.MessageVideoChunk,
		types.MessageVideoComplete, types.MessageStop:
		return true
	}
	return false
}

func (c *Controller) dispatch(ctx context.Context, msg types.Inbound) {
	switch msg.Type {
	case types.MessageAuth:
		c.logger.Debug("already authenticated", "requested_owner", msg.Owner())
		c.send(types.Outbound{Type: types.MessageAuthSuccess, UserID: c.owner, Message: "Authenticated"})
	case types.MessageFrame:
		c.onFrame(ctx, msg.Payload())
	case types.MessageAudio:
		c.onAudio(msg.Payload())
	case types.MessageVideoChunk:
		c.onVideoChunk()
	case types.MessageVideoComplete:
		c.onVideoComplete(msg.Payload())
	case types.MessageStop:
		c.beginFinalize(ctx)
	default:
		c.logger.Warn("unknown message type", "type", msg.Type)
	}
}

// activate binds the owner, registers the session and builds its
// components.
func (c *Controller) activate(owner, requested string) error {
	id := requested
	if id == "" {
		id = c.requestedID
	}
	if id != "" {
		if err := layout.ValidateSessionID(id); err != nil {
			c.logger.Warn("rejecting requested session id", "error", err)
			id = ""
		}
	}
	if id == "" {
		id = uuid.NewString()
	}

	if err := c.deps.Registry.Insert(id, c); err != nil {
		fresh := uuid.NewString()
		c.logger.Warn("session id already live, assigning a new one", "requested", id, "session_id", fresh)
		id = fresh
		if err := c.deps.Registry.Insert(id, c); err != nil {
			return err
		}
	}

	logger := c.logger.With("session_id", id, "owner_id", owner)
	ws, err := layout.NewWorkspace(c.opts.TempDir, id, logger)
	if err != nil {
		c.deps.Registry.Remove(id, c)
		return err
	}

	c.id = id
	c.owner = owner
	c.logger = logger
	c.startedAt = c.now()
	c.workspace = ws
	c.store = chunks.NewStore(id, ws.BlobPath(), logger)
	c.window = window.New(c.startedAt, c.opts.FeedbackInterval, c.opts.MaxWindowFrames)
	c.log = feedback.NewLog()
	c.state = types.StateActive

	logger.Info("session started", "dir", ws.Dir())
	return nil
}

// failActivation closes a session that could not start. The client still
// gets both terminal acknowledgments.
func (c *Controller) failActivation(err error) {
	c.logger.Error("failed to start session", "error", err)
	c.send(types.Outbound{Type: types.MessageUploadError, Message: "Failed to start session", Error: err.Error()})
	c.send(types.Outbound{Type: types.MessageFeedbackSaveError, Message: "Failed to start session", Error: err.Error()})
	c.state = types.StateClosed
	metrics.SessionEnded("failed")
}

func (c *Controller) onFrame(ctx context.Context, payload string) {
	frame, ok := c.store.AppendFrame(payload)
	metrics.MediaReceived("frame", ok)
	if !ok {
		return
	}

	if n := c.store.FrameCount(); c.opts.FrameStatusEvery > 0 && n%c.opts.FrameStatusEvery == 0 {
		c.send(types.Outbound{Type: types.MessageStatus, Message: "Frames processed", FramesProcessed: n})
	}

	if frame.EncodedSize >= c.opts.MinFrameBytes {
		c.window.Push(frame)
	}
	c.maybeTrigger(ctx)
}

func (c *Controller) onAudio(payload string) {
	chunk, ok := c.store.AppendAudio(payload)
	metrics.MediaReceived("audio", ok)
	if ok {
		c.window.SetAudio(chunk)
	}
}

func (c *Controller) onVideoChunk() {
	c.videoChunks++
	metrics.MediaReceived("video_chunk", true)
	if c.opts.ChunkStatusEvery > 0 && c.videoChunks%c.opts.ChunkStatusEvery == 0 {
		c.send(types.Outbound{Type: types.MessageStatus, Message: "Video chunks received", ChunksReceived: c.videoChunks})
	}
}

func (c *Controller) onVideoComplete(payload string) {
	err := c.store.SetConsolidatedBlob(payload)
	metrics.MediaReceived("recording", err == nil)
	if err != nil {
		c.logger.Warn("failed to store consolidated recording", "error", err, "frames_buffered", c.store.FrameCount())
		c.send(types.Outbound{Type: types.MessageStatus, Message: "Failed to store recording", Error: err.Error()})
		return
	}
	c.send(types.Outbound{Type: types.MessageStatus, Message: "Recording received"})
}

// maybeTrigger closes the feedback window when its interval has elapsed
// and no inference for this session is in flight.
func (c *Controller) maybeTrigger(ctx context.Context) {
	if c.inflight || c.deps.Inference == nil || c.deps.Pool == nil {
		return
	}
	now := c.now()
	if !c.window.ShouldTrigger(now) {
		return
	}

	win := c.window.Select()
	if len(win.Frames) == 0 {
		return
	}

	job := inferenceJob{
		images:  make([]image.Image, len(win.Frames)),
		audio:   win.Audio,
		history: append([]string(nil), c.history...),
	}
	for i, f := range win.Frames {
		job.images[i] = f.Image
	}
	job.start, job.end = c.window.SegmentBounds(c.startedAt, now)

	if !c.deps.Pool.Submit(func() { c.runInference(ctx, job) }) {
		c.logger.Debug("inference pool busy, retrying on next frame")
		return
	}
	c.inflight = true
	c.window.Consume(now)
}

// runInference executes on a pool worker. It reads only immutable fields
// and always reports back, so the session never stays marked in flight.
func (c *Controller) runInference(ctx context.Context, job inferenceJob) {
	start := time.Now()
	res := inferenceResult{job: job}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in inference", "panic", r, "stack", string(debug.Stack()))
			res.text = services.FeedbackErrorPrefix + ": feedback analysis failed"
			res.err = sErrors.InferenceError("analyze", fmt.Errorf("panic: %v", r)).WithSession(c.id)
		}
		res.took = time.Since(start)
		select {
		case c.results <- res:
		case <-c.done:
		}
	}()

	if !c.deps.Inference.Available() {
		res.text = services.FeedbackUnavailable
		res.err = sErrors.InferenceError("analyze", sErrors.ErrInferenceUnavailable).WithSession(c.id)
		return
	}

	var summary string
	if len(job.audio) > 0 && c.deps.Audio != nil {
		summary = c.deps.Audio.Characterize(ctx, job.audio,
			c.opts.Encode.AudioSampleRate, c.opts.Encode.AudioChannels)
	}

	res.text, res.err = c.deps.Inference.Analyze(ctx, services.InferenceRequest{
		Images:       job.images,
		AudioSummary: summary,
		History:      job.history,
	})
	if res.err != nil {
		res.err = sErrors.InferenceError("analyze", res.err).WithSession(c.id)
	}
}

func (c *Controller) handleResult(res inferenceResult) {
	c.inflight = false
	if c.state.IsTerminal() {
		return
	}

	actionable := feedback.IsActionable(res.text)
	switch {
	case errors.Is(res.err, sErrors.ErrInferenceUnavailable):
		metrics.InferenceObserved("unavailable", res.took)
	case res.err != nil:
		c.logger.Warn("inference failed", "error", res.err, "op", sErrors.GetOperation(res.err), "duration", res.took)
		metrics.InferenceObserved("error", res.took)
	case actionable:
		metrics.InferenceObserved("actionable", res.took)
	default:
		metrics.InferenceObserved("ok", res.took)
	}

	out := types.Outbound{Type: types.MessageAIFeedback, Feedback: res.text, Actionable: actionable}

	// While finalizing the log belongs to the finalize task, so late
	// judgments are reported without a segment.
	if actionable && c.state == types.StateActive {
		idx, ok := c.log.Append(feedback.Segment{
			Text:         res.text,
			StartSeconds: res.job.start,
			EndSeconds:   res.job.end,
			CreatedAt:    c.now(),
		})
		if ok {
			seg := c.log.At(idx)
			out.Segment = &types.SegmentRef{Index: idx, StartSeconds: seg.StartSeconds, EndSeconds: seg.EndSeconds}
			c.remember(seg.Text)
		}
	}
	c.send(out)
}

func (c *Controller) remember(judgment string) {
	c.history = append(c.history, judgment)
	if over := len(c.history) - c.opts.HistorySize; c.opts.HistorySize > 0 && over > 0 {
		c.history = append([]string(nil), c.history[over:]...)
	}
}

func (c *Controller) send(msg types.Outbound) {
	if c.notifier == nil {
		return
	}
	if msg.SessionID == "" {
		msg.SessionID = c.id
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = c.now()
	}
	if !c.notifier.Send(msg) {
		c.logger.Debug("outbound message dropped", "type", msg.Type)
	}
}
