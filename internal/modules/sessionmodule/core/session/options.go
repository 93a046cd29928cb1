package session

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/zynkhq/zynk/internal/config"
	"github.com/zynkhq/zynk/internal/modules/sessionmodule/core/encoder"
	"github.com/zynkhq/zynk/internal/modules/sessionmodule/core/ffmpeg"
	"github.com/zynkhq/zynk/internal/modules/sessionmodule/types"
	"github.com/zynkhq/zynk/internal/services"
)

// Finalizer produces the session artifact from buffered media.
type Finalizer interface {
	Finalize(ctx context.Context, sessionID string, src encoder.Source, paths encoder.Paths, s encoder.Settings) (*encoder.Artifact, error)
}

// AudioCharacterizer summarizes an audio chunk for the model prompt.
type AudioCharacterizer interface {
	Characterize(ctx context.Context, data []byte, sampleRate, channels int) string
}

// TaskRunner runs background work without blocking the caller.
type TaskRunner interface {
	Submit(work func()) bool
}

// Notifier delivers outbound messages to the client. Send must be safe for
// concurrent use and must not block once the transport is gone.
type Notifier interface {
	Send(msg types.Outbound) bool
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Registry  *Registry
	Encoder   Finalizer
	Inference services.InferenceService
	Audio     AudioCharacterizer
	Storage   services.StorageService
	Segments  services.SegmentService
	Pool      TaskRunner
	Logger    hclog.Logger
	Now       func() time.Time
}

// Options are the per-session settings taken from a config snapshot.
type Options struct {
	TempDir          string
	FeedbackInterval time.Duration
	MaxWindowFrames  int
	FrameStatusEvery int
	ChunkStatusEvery int
	MinFrameBytes    int
	HistorySize      int
	FinalizeTimeout  time.Duration
	Encode           encoder.Settings
}

// OptionsFromConfig builds session options from a config snapshot. Live
// sessions keep the snapshot they started with.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		TempDir:          cfg.Session.TempDir,
		FeedbackInterval: cfg.Session.FeedbackInterval,
		MaxWindowFrames:  cfg.Session.MaxWindowFrames,
		FrameStatusEvery: cfg.Session.FrameStatusEvery,
		ChunkStatusEvery: cfg.Session.ChunkStatusEvery,
		MinFrameBytes:    cfg.Inference.MinFrameBytes,
		HistorySize:      cfg.Inference.HistorySize,
		FinalizeTimeout:  cfg.Session.FinalizeTimeout,
		Encode: encoder.Settings{
			EncodeSettings: ffmpeg.EncodeSettings{
				FrameRate:       cfg.Session.FrameRate,
				AudioSampleRate: cfg.Session.AudioSampleRate,
				AudioChannels:   cfg.Session.AudioChannels,
				Preset:          cfg.Encoder.Preset,
				CRF:             cfg.Encoder.CRF,
				AudioBitrate:    cfg.Encoder.AudioBitrate,
			},
			MinFreeBytes: cfg.Encoder.MinFreeDiskMB << 20,
		},
	}
}
