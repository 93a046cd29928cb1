package session

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zynkhq/zynk/internal/database"
	"github.com/zynkhq/zynk/internal/modules/sessionmodule/core/encoder"
	"github.com/zynkhq/zynk/internal/modules/sessionmodule/types"
	"github.com/zynkhq/zynk/internal/services"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fakeNotifier struct {
	mu      sync.Mutex
	msgs    []types.Outbound
	panicOn types.MessageType
}

func (n *fakeNotifier) Send(msg types.Outbound) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.panicOn != "" && msg.Type == n.panicOn {
		panic("notifier failed on " + string(msg.Type))
	}
	n.msgs = append(n.msgs, msg)
	return true
}

func (n *fakeNotifier) ofType(t types.MessageType) []types.Outbound {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []types.Outbound
	for _, m := range n.msgs {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

func (n *fakeNotifier) count(t types.MessageType) int { return len(n.ofType(t)) }

type fakeInference struct {
	mu          sync.Mutex
	reply       string
	err         error
	panics      int
	unavailable bool
	reqs        []services.InferenceRequest
}

func (f *fakeInference) Analyze(_ context.Context, req services.InferenceRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.panics > 0 {
		f.panics--
		panic("model client crashed")
	}
	return f.reply, f.err
}

func (f *fakeInference) Available() bool { return !f.unavailable }

func (f *fakeInference) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

// goPool runs each submission on its own goroutine.
type goPool struct {
	mu     sync.Mutex
	reject bool
}

func (p *goPool) Submit(work func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reject {
		return false
	}
	go work()
	return true
}

// heldPool queues submissions until run is called.
type heldPool struct {
	mu   sync.Mutex
	work []func()
}

func (p *heldPool) Submit(work func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.work = append(p.work, work)
	return true
}

func (p *heldPool) run() {
	p.mu.Lock()
	work := p.work
	p.work = nil
	p.mu.Unlock()
	for _, w := range work {
		w()
	}
}

type fakeEncoder struct {
	mu        sync.Mutex
	calls     int
	sawFrames int
	artifact  *encoder.Artifact
	err       error
	gate      chan struct{}
	panicMsg  string
}

func (f *fakeEncoder) Finalize(ctx context.Context, _ string, src encoder.Source, _ encoder.Paths, _ encoder.Settings) (*encoder.Artifact, error) {
	f.mu.Lock()
	f.calls++
	f.sawFrames = len(src.Frames())
	f.mu.Unlock()

	if f.panicMsg != "" {
		panic(f.panicMsg)
	}

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.artifact, f.err
}

type fakeStorage struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (s *fakeStorage) Upload(_ context.Context, _, storagePath, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, storagePath)
	if s.err != nil {
		return "", s.err
	}
	return "https://cdn.example/" + storagePath, nil
}

func (s *fakeStorage) List(context.Context, string) ([]services.ObjectInfo, error) { return nil, nil }

func (s *fakeStorage) Configured() bool { return true }

type fakeSegments struct {
	mu         sync.Mutex
	batches    [][]database.FeedbackSegment
	records    []database.SessionRecord
	persistErr error
}

func (s *fakeSegments) PersistBatch(_ context.Context, _, _ string, segments []database.FeedbackSegment) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, segments)
	if s.persistErr != nil {
		return 0, s.persistErr
	}
	return len(segments), nil
}

func (s *fakeSegments) ListBySession(context.Context, string) ([]database.FeedbackSegment, error) {
	return nil, nil
}

func (s *fakeSegments) RecordSession(_ context.Context, rec *database.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *rec)
	return nil
}

func (s *fakeSegments) ListSessions(context.Context, string, int) ([]database.SessionRecord, error) {
	return nil, nil
}

func (s *fakeSegments) lastRecord(t *testing.T) database.SessionRecord {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.records)
	return s.records[len(s.records)-1]
}

func framePayload(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func testOptions(t *testing.T) Options {
	return Options{
		TempDir:          t.TempDir(),
		FeedbackInterval: 5 * time.Second,
		MaxWindowFrames:  6,
		FrameStatusEvery: 60,
		ChunkStatusEvery: 10,
		HistorySize:      3,
		FinalizeTimeout:  time.Minute,
	}
}

type harness struct {
	ctrl      *Controller
	clock     *fakeClock
	notifier  *fakeNotifier
	inference *fakeInference
	encoder   *fakeEncoder
	storage   *fakeStorage
	segments  *fakeSegments
	registry  *Registry
}

func newHarness(t *testing.T, pool TaskRunner) *harness {
	t.Helper()
	h := &harness{
		clock:     newClock(),
		notifier:  &fakeNotifier{},
		inference: &fakeInference{reply: "Lift your chin toward the back row."},
		encoder: &fakeEncoder{artifact: &encoder.Artifact{
			Path:        "/tmp/final.mp4",
			ContentType: encoder.ContentTypeMP4,
			Strategy:    encoder.StrategyFramesMux,
			Muxed:       true,
		}},
		storage:  &fakeStorage{},
		segments: &fakeSegments{},
		registry: NewRegistry(),
	}
	if pool == nil {
		pool = &goPool{}
	}
	h.ctrl = New("", testOptions(t), Deps{
		Registry:  h.registry,
		Encoder:   h.encoder,
		Inference: h.inference,
		Storage:   h.storage,
		Segments:  h.segments,
		Pool:      pool,
		Now:       h.clock.Now,
	}, h.notifier)
	return h
}

func (h *harness) awaitResult(t *testing.T) {
	t.Helper()
	select {
	case res := <-h.ctrl.results:
		h.ctrl.handleResult(res)
	case <-time.After(5 * time.Second):
		t.Fatal("inference result not delivered")
	}
}

func (h *harness) awaitFinalize(t *testing.T) {
	t.Helper()
	select {
	case out := <-h.ctrl.finalized:
		h.ctrl.complete(out)
	case <-time.After(5 * time.Second):
		t.Fatal("finalize did not complete")
	}
}

func runAsync(ctx context.Context, c *Controller, inbound <-chan types.Inbound) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx, inbound) }()
	return errCh
}
