// Package encoder turns a session's buffered media into the final MP4.
//
// Finalize picks exactly one source. A consolidated client recording is
// authoritative when present and is transcoded with a primary and a
// simplified parameter set. Otherwise buffered frames are encoded to video
// and muxed with any audio chunks; a failed mux degrades to video only.
package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/image/draw"

	"github.com/zynkhq/zynk/internal/modules/sessionmodule/core/audio"
	"github.com/zynkhq/zynk/internal/modules/sessionmodule/core/chunks"
	"github.com/zynkhq/zynk/internal/modules/sessionmodule/core/ffmpeg"
	sErrors "github.com/zynkhq/zynk/internal/modules/sessionmodule/errors"
	"github.com/zynkhq/zynk/internal/utils"
)

// ContentTypeMP4 is the content type of every artifact.
const ContentTypeMP4 = "video/mp4"

// Strategy names reported on artifacts and in metrics.
const (
	StrategyTranscode       = "transcode"
	StrategyTranscodeSimple = "transcode-simple"
	StrategyFrames          = "frames"
	StrategyFramesMux       = "frames+mux"
	labelMux                = "mux"
)

// Source is the read side of a session's media buffers.
type Source interface {
	HasConsolidated() bool
	ConsolidatedPath() string
	Frames() []chunks.Frame
	AudioChunks() [][]byte
}

// Paths names the files Finalize may write.
type Paths interface {
	Dir() string
	VideoPath() string
	AudioPath(ext string) string
	FinalPath() string
}

// Settings are the output parameters for one finalize call.
type Settings struct {
	ffmpeg.EncodeSettings
	// MinFreeBytes is the free space required before encoding starts.
	MinFreeBytes uint64
}

// Artifact is the finalized recording.
type Artifact struct {
	Path        string
	ContentType string
	Strategy    string
	Muxed       bool
	Size        int64
}

type strategy struct {
	name string
	args func(input, output string, s ffmpeg.EncodeSettings) []string
}

// blobStrategies are tried in order against a consolidated recording.
var blobStrategies = []strategy{
	{name: StrategyTranscode, args: ffmpeg.TranscodeArgs},
	{name: StrategyTranscodeSimple, args: ffmpeg.SimpleTranscodeArgs},
}

// Encoder runs the finalize decision chain.
type Encoder struct {
	runner    ffmpeg.Runner
	logger    hclog.Logger
	checkDisk func(path string, minBytes uint64) error
}

// New creates an encoder that invokes ffmpeg through runner.
func New(runner ffmpeg.Runner, logger hclog.Logger) *Encoder {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Encoder{
		runner:    runner,
		logger:    logger.Named("encoder"),
		checkDisk: utils.EnsureFreeSpace,
	}
}

// Finalize produces the session artifact. It returns (nil, nil) when there
// is nothing to save. src is only read.
func (e *Encoder) Finalize(ctx context.Context, sessionID string, src Source, paths Paths, s Settings) (*Artifact, error) {
	logger := e.logger.With("session_id", sessionID)

	if !src.HasConsolidated() && len(src.Frames()) == 0 {
		logger.Info("nothing to save", "audio_chunks", len(src.AudioChunks()))
		return nil, nil
	}

	if err := e.checkDisk(paths.Dir(), s.MinFreeBytes); err != nil {
		if utils.IsNoSpace(err) {
			return nil, sErrors.FatalError("finalize", errors.Join(sErrors.ErrDiskFull, err)).WithSession(sessionID)
		}
		logger.Warn("disk space check failed, continuing", "error", err)
	}

	start := time.Now()
	var (
		artifact *Artifact
		err      error
	)
	if src.HasConsolidated() {
		artifact, err = e.encodeBlob(ctx, logger, sessionID, src.ConsolidatedPath(), paths.FinalPath(), s)
	} else {
		artifact, err = e.encodeFrames(ctx, logger, sessionID, src, paths, s)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("artifact finalized",
		"path", artifact.Path,
		"strategy", artifact.Strategy,
		"muxed", artifact.Muxed,
		"bytes", artifact.Size,
		"duration", time.Since(start))
	return artifact, nil
}

func (e *Encoder) encodeBlob(ctx context.Context, logger hclog.Logger, sessionID, input, final string, s Settings) (*Artifact, error) {
	var lastErr error
	for _, st := range blobStrategies {
		err := e.runner.Run(ctx, ffmpeg.Invocation{
			Label: st.name,
			Args:  st.args(input, final, s.EncodeSettings),
		})
		if err == nil {
			artifact, verr := readArtifact(final, st.name, true)
			if verr == nil {
				return artifact, nil
			}
			err = verr
		}
		lastErr = err

		// The blob is authoritative: a missing tool ends finalize here.
		if errors.Is(err, sErrors.ErrToolMissing) || ctx.Err() != nil {
			os.Remove(final)
			return nil, sErrors.Wrap(err, sErrors.ErrorTypeTool, "finalize")
		}
		logger.Warn("encoding strategy failed", "strategy", st.name, "error", err)
	}

	os.Remove(final)
	return nil, sErrors.EncodeError("finalize", sErrors.ErrEncodeExhausted).
		WithSession(sessionID).
		WithDetail("last_error", lastErr.Error())
}

func (e *Encoder) encodeFrames(ctx context.Context, logger hclog.Logger, sessionID string, src Source, paths Paths, s Settings) (*Artifact, error) {
	video := paths.VideoPath()
	final := paths.FinalPath()
	frames := src.Frames()

	if err := e.writeVideo(ctx, frames, video, s.EncodeSettings); err != nil {
		os.Remove(video)
		if sErrors.IsFatal(err) || ctx.Err() != nil {
			return nil, sErrors.Wrap(err, sErrors.ErrorTypeTool, "finalize")
		}
		return nil, sErrors.EncodeError("finalize", errors.Join(sErrors.ErrEncodeExhausted, err)).
			WithSession(sessionID).
			WithDetail("frames", len(frames))
	}

	audioChunks := src.AudioChunks()
	if len(audioChunks) == 0 {
		return promoteVideo(video, final)
	}

	sidecar, format, err := writeSidecar(paths, audioChunks)
	if err != nil {
		logger.Warn("failed to write audio sidecar, keeping video only", "error", err)
		return promoteVideo(video, final)
	}

	err = e.runner.Run(ctx, ffmpeg.Invocation{
		Label: labelMux,
		Args: ffmpeg.MuxArgs(video,
			format.InputArgs(sidecar, s.AudioSampleRate, s.AudioChannels),
			final, s.EncodeSettings),
	})
	if err == nil {
		artifact, verr := readArtifact(final, StrategyFramesMux, true)
		if verr == nil {
			os.Remove(video)
			return artifact, nil
		}
		err = verr
	}

	logger.Warn("audio mux failed, keeping video only", "error", err, "audio_format", format.Name)
	os.Remove(final)
	return promoteVideo(video, final)
}

// writeVideo streams frames to ffmpeg as raw RGBA at the first frame's size.
func (e *Encoder) writeVideo(ctx context.Context, frames []chunks.Frame, output string, s ffmpeg.EncodeSettings) error {
	bounds := frames[0].Image.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return fmt.Errorf("first frame has no pixels")
	}

	pr, pw := io.Pipe()
	writeErr := make(chan error, 1)
	go func() {
		err := writeRGBA(pw, frames, width, height)
		pw.CloseWithError(err)
		writeErr <- err
	}()

	runErr := e.runner.Run(ctx, ffmpeg.Invocation{
		Label: StrategyFrames,
		Args:  ffmpeg.RawFramesArgs(width, height, output, s),
		Stdin: pr,
	})
	// Unblock the writer if ffmpeg stopped reading early.
	pr.CloseWithError(io.ErrClosedPipe)
	werr := <-writeErr

	if runErr != nil {
		return runErr
	}
	if werr != nil {
		return fmt.Errorf("failed to stream frames: %w", werr)
	}
	_, err := readArtifact(output, StrategyFrames, false)
	return err
}

func writeRGBA(w io.Writer, frames []chunks.Frame, width, height int) error {
	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	for _, f := range frames {
		src := f.Image
		b := src.Bounds()
		if b.Dx() == width && b.Dy() == height {
			draw.Draw(canvas, canvas.Bounds(), src, b.Min, draw.Src)
		} else {
			draw.ApproxBiLinear.Scale(canvas, canvas.Bounds(), src, b, draw.Src, nil)
		}
		if _, err := w.Write(canvas.Pix); err != nil {
			return err
		}
	}
	return nil
}

// writeSidecar concatenates the audio chunks into one file whose extension
// matches the first chunk's container.
func writeSidecar(paths Paths, audioChunks [][]byte) (string, audio.Format, error) {
	format := audio.Sniff(audioChunks[0])
	path := paths.AudioPath(format.Ext)
	if err := os.WriteFile(path, bytes.Join(audioChunks, nil), 0644); err != nil {
		os.Remove(path)
		return "", format, err
	}
	return path, format, nil
}

func promoteVideo(video, final string) (*Artifact, error) {
	if err := os.Rename(video, final); err != nil {
		return nil, sErrors.StorageError("promote_video", err)
	}
	return readArtifact(final, StrategyFrames, false)
}

func readArtifact(path, strategyName string, muxed bool) (*Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("output not written: %w", err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("output is empty: %s", path)
	}
	return &Artifact{
		Path:        path,
		ContentType: ContentTypeMP4,
		Strategy:    strategyName,
		Muxed:       muxed,
		Size:        info.Size(),
	}, nil
}
