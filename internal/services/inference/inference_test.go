package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/zynkhq/zynk/internal/config"
	"github.com/zynkhq/zynk/internal/services"
)

type fakeGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
	parts [][]*genai.Part
}

func (f *fakeGenerator) generate(_ context.Context, parts []*genai.Part) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parts = append(f.parts, parts)
	return f.reply, f.err
}

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{G: 128, A: 255})
		}
	}
	return img
}

func newTestService(gen generator) *Service {
	return &Service{
		gen:     gen,
		timeout: time.Second,
		images:  imageOptionsFrom(config.InferenceConfig{}),
		logger:  hclog.NewNullLogger(),
	}
}

func TestUnconfiguredReturnsPlaceholder(t *testing.T) {
	svc, err := NewService(context.Background(), config.InferenceConfig{}, hclog.NewNullLogger())
	require.NoError(t, err)
	assert.False(t, svc.Available())

	text, err := svc.Analyze(context.Background(), services.InferenceRequest{Images: []image.Image{testImage(4, 4)}})
	require.NoError(t, err)
	assert.Equal(t, services.FeedbackUnavailable, text)
}

func TestAnalyzeSendsPromptAndImages(t *testing.T) {
	gen := &fakeGenerator{reply: "  Open your posture toward the audience.\n"}
	svc := newTestService(gen)

	req := services.InferenceRequest{
		Images:       []image.Image{testImage(1280, 720), testImage(1280, 720)},
		AudioSummary: "Volume: quiet (consistent), Pitch: 140Hz, Pace: slow",
		History:      []string{"Stand still.", "Speak up."},
	}
	text, err := svc.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Open your posture toward the audience.", text)

	require.Len(t, gen.parts, 1)
	parts := gen.parts[0]
	require.Len(t, parts, 3)
	assert.Contains(t, parts[0].Text, "Previous feedbacks:\nStand still.\nSpeak up.")
	assert.Contains(t, parts[0].Text, "Speaker voice/tone: Volume: quiet")

	require.NotNil(t, parts[1].InlineData)
	assert.Equal(t, "image/jpeg", parts[1].InlineData.MIMEType)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(parts[1].InlineData.Data))
	require.NoError(t, err)
	assert.Equal(t, 640, cfg.Width)
	assert.Equal(t, 360, cfg.Height)
}

func TestAnalyzeCapsImages(t *testing.T) {
	gen := &fakeGenerator{reply: "OK"}
	svc := newTestService(gen)

	imgs := make([]image.Image, 6)
	for i := range imgs {
		imgs[i] = testImage(8, 8)
	}
	text, err := svc.Analyze(context.Background(), services.InferenceRequest{Images: imgs})
	require.NoError(t, err)
	assert.Equal(t, services.NoFeedback, text)
	assert.Len(t, gen.parts[0], 1+4)
}

func TestAnalyzeFailureIsErrorJudgment(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("quota exceeded")}
	svc := newTestService(gen)

	text, err := svc.Analyze(context.Background(), services.InferenceRequest{Images: []image.Image{testImage(4, 4)}})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(text, services.FeedbackErrorPrefix))
	assert.Contains(t, text, "quota exceeded")
}

func TestAnalyzeWithoutImages(t *testing.T) {
	gen := &fakeGenerator{reply: "OK"}
	svc := newTestService(gen)

	text, err := svc.Analyze(context.Background(), services.InferenceRequest{})
	assert.ErrorIs(t, err, ErrNoImages)
	assert.True(t, strings.HasPrefix(text, services.FeedbackErrorPrefix))
	assert.Empty(t, gen.parts, "model is not called without images")
}

func TestBuildPromptWithoutContext(t *testing.T) {
	prompt := BuildPrompt(nil, "")
	assert.NotContains(t, prompt, "Previous feedbacks")
	assert.True(t, strings.HasSuffix(prompt, "Speaker voice/tone: No audio data"))
}

func TestSampleImages(t *testing.T) {
	imgs := make([]image.Image, 10)
	for i := range imgs {
		imgs[i] = testImage(i+1, 1)
	}

	got := SampleImages(imgs, 4)
	require.Len(t, got, 4)
	widths := make([]int, len(got))
	for i, img := range got {
		widths[i] = img.Bounds().Dx()
	}
	assert.Equal(t, []int{1, 3, 5, 7}, widths)

	assert.Len(t, SampleImages(imgs[:3], 4), 3)
}

func TestFitDimensions(t *testing.T) {
	tests := []struct {
		w, h         int
		wantW, wantH int
	}{
		{1920, 1080, 640, 360},
		{480, 640, 360, 480},
		{320, 240, 320, 240},
		{6400, 10, 640, 1},
	}
	for _, tt := range tests {
		w, h := FitDimensions(tt.w, tt.h, 640, 480)
		assert.Equal(t, tt.wantW, w, "%dx%d", tt.w, tt.h)
		assert.Equal(t, tt.wantH, h, "%dx%d", tt.w, tt.h)
	}
}

func TestGeminiClientRoundTrip(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Slow down."}]}}]}`))
	}))
	defer srv.Close()

	svc, err := NewService(context.Background(), config.InferenceConfig{
		APIKey:   "test-key",
		Model:    "gemini-2.5-flash-lite",
		Endpoint: srv.URL,
		Timeout:  5 * time.Second,
	}, hclog.NewNullLogger())
	require.NoError(t, err)
	require.True(t, svc.Available())

	text, err := svc.Analyze(context.Background(), services.InferenceRequest{Images: []image.Image{testImage(16, 16)}})
	require.NoError(t, err)
	assert.Equal(t, "Slow down.", text)
	assert.Contains(t, gotBody, "systemInstruction")
	assert.Contains(t, gotBody, "contents")
}
