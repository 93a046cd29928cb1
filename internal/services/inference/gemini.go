// Package inference asks a Gemini model for live public speaking feedback.
package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"google.golang.org/genai"

	"github.com/zynkhq/zynk/internal/config"
	"github.com/zynkhq/zynk/internal/services"
)

// SystemPrompt frames every request.
const SystemPrompt = "You are an AI public speaking coach for live presentations. " +
	"Imagine the user is standing on a stage in front of a large auditorium filled with people. " +
	"The camera is NOT the intended audience; the real audience is in front of the speaker (behind the camera). " +
	"Analyze the speaker's visual posture, eye direction, gesture, and vocal delivery (emotion, tone, loudness, pitch, speech rate). " +
	"DO NOT ask the speaker to look at the camera, and DO NOT give feedback about camera eye contact. " +
	"Instead, focus on whether the speaker appears confident, open, engaged, and is addressing the audience in front of them. " +
	"Only give feedback when something is wrong, poor, or needs improvement for real-life public speaking (on a stage, to a crowd). " +
	"Do not provide positive comments; if everything is fine, reply only with 'OK'. " +
	"Feedback should be precise and actionable, one sentence. Use previous feedback for consistency."

const noAudioSummary = "No audio data"

// ErrNoImages is returned when a window holds no usable frames.
var ErrNoImages = errors.New("no valid image frames received for analysis")

// generator is the model call. The genai client satisfies it through
// geminiGenerator; tests substitute a fake.
type generator interface {
	generate(ctx context.Context, parts []*genai.Part) (string, error)
}

type geminiGenerator struct {
	client *genai.Client
	model  string
}

func (g *geminiGenerator) generate(ctx context.Context, parts []*genai.Part) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(SystemPrompt, genai.RoleUser),
		})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// Service implements services.InferenceService.
type Service struct {
	gen     generator
	timeout time.Duration
	images  ImageOptions
	logger  hclog.Logger
}

var _ services.InferenceService = (*Service)(nil)

// NewService creates the inference service. Without an API key the service
// answers every request with the unavailable placeholder.
func NewService(ctx context.Context, cfg config.InferenceConfig, logger hclog.Logger) (*Service, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("inference")

	svc := &Service{
		timeout: cfg.Timeout,
		images:  imageOptionsFrom(cfg),
		logger:  logger,
	}

	if cfg.APIKey == "" {
		logger.Warn("no Gemini API key configured, feedback will be a placeholder")
		return svc, nil
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Endpoint != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	svc.gen = &geminiGenerator{client: client, model: cfg.Model}
	logger.Info("Gemini inference configured", "model", cfg.Model)
	return svc, nil
}

// Available reports whether a model backend is configured.
func (s *Service) Available() bool {
	return s.gen != nil
}

// Analyze returns a one-sentence judgment for the window, or
// services.NoFeedback. A failed call yields a judgment starting with
// services.FeedbackErrorPrefix together with the error.
func (s *Service) Analyze(ctx context.Context, req services.InferenceRequest) (string, error) {
	if s.gen == nil {
		return services.FeedbackUnavailable, nil
	}

	images := SampleImages(req.Images, s.images.MaxImages)
	if len(images) == 0 {
		return services.FeedbackErrorPrefix + ": " + ErrNoImages.Error(), ErrNoImages
	}

	parts := []*genai.Part{genai.NewPartFromText(BuildPrompt(req.History, req.AudioSummary))}
	for i, img := range images {
		data, err := CompressImage(img, s.images)
		if err != nil {
			s.logger.Warn("skipping frame", "index", i, "error", err)
			continue
		}
		parts = append(parts, genai.NewPartFromBytes(data, "image/jpeg"))
	}
	if len(parts) == 1 {
		return services.FeedbackErrorPrefix + ": " + ErrNoImages.Error(), ErrNoImages
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	text, err := s.gen.generate(ctx, parts)
	if err != nil {
		s.logger.Error("Gemini request failed", "error", err, "images", len(parts)-1)
		return fmt.Sprintf("%s analyzing segment: %v", services.FeedbackErrorPrefix, err), err
	}
	return strings.TrimSpace(text), nil
}

// BuildPrompt renders the per-window instruction: prior judgments for
// consistency, then the voice summary.
func BuildPrompt(history []string, audioSummary string) string {
	var b strings.Builder
	b.WriteString("Give feedback on this moment of the presentation.")
	if len(history) > 0 {
		b.WriteString("\n\nPrevious feedbacks:\n")
		b.WriteString(strings.Join(history, "\n"))
	}
	if audioSummary == "" {
		audioSummary = noAudioSummary
	}
	b.WriteString("\n\nSpeaker voice/tone: ")
	b.WriteString(audioSummary)
	return b.String()
}
