package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sErrors "github.com/zynkhq/zynk/internal/modules/sessionmodule/errors"
)

var testSettings = EncodeSettings{
	FrameRate:       60,
	AudioSampleRate: 48000,
	AudioChannels:   1,
	Preset:          "veryfast",
	CRF:             23,
	AudioBitrate:    "160k",
}

func argValue(args []string, flag string) (string, bool) {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1], true
		}
	}
	return "", false
}

func TestTranscodeArgs(t *testing.T) {
	args := TranscodeArgs("in.webm", "out.mp4", testSettings)

	assert.Equal(t, "out.mp4", args[len(args)-1])
	for flag, want := range map[string]string{
		"-i":        "in.webm",
		"-r":        "60",
		"-pix_fmt":  "yuv420p",
		"-c:v":      "libx264",
		"-c:a":      "aac",
		"-b:a":      "160k",
		"-ar":       "48000",
		"-ac":       "1",
		"-af":       "aresample=async=1:first_pts=0",
		"-movflags": "+faststart",
		"-crf":      "23",
	} {
		got, ok := argValue(args, flag)
		assert.True(t, ok, flag)
		assert.Equal(t, want, got, flag)
	}
	assert.Contains(t, args, "-shortest")
}

func TestSimpleTranscodeArgsDropsEnforcement(t *testing.T) {
	args := SimpleTranscodeArgs("in.webm", "out.mp4", testSettings)

	for _, flag := range []string{"-r", "-pix_fmt", "-vsync", "-shortest", "-ar", "-ac", "-af"} {
		assert.NotContains(t, args, flag)
	}
	assert.Equal(t, "out.mp4", args[len(args)-1])
}

func TestRawFramesArgs(t *testing.T) {
	args := RawFramesArgs(640, 480, "video.mp4", testSettings)

	size, _ := argValue(args, "-s")
	assert.Equal(t, "640x480", size)
	in, _ := argValue(args, "-i")
	assert.Equal(t, "pipe:0", in)
	qp, _ := argValue(args, "-qp")
	assert.Equal(t, "0", qp)
	assert.Contains(t, args, "-an")
}

func TestMuxArgs(t *testing.T) {
	args := MuxArgs("video.mp4", []string{"-f", "s16le", "-i", "audio.pcm"}, "final.mp4", testSettings)

	assert.Equal(t, []string{"-i", "video.mp4", "-f", "s16le", "-i", "audio.pcm"}, args[2:8])
	cv, _ := argValue(args, "-c:v")
	assert.Equal(t, "copy", cv)
}

func TestDecodePCMArgs(t *testing.T) {
	args := DecodePCMArgs(nil, 16000, 5)
	assert.Equal(t, "pipe:1", args[len(args)-1])
	dur, _ := argValue(args, "-t")
	assert.Equal(t, "5", dur)
}

func fakeFFmpeg(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0755))
	return path
}

func TestExecRunnerSuccessPipesStdio(t *testing.T) {
	r := NewExecRunner(fakeFFmpeg(t, "cat"), time.Second, 100*time.Millisecond, hclog.NewNullLogger())

	var out bytes.Buffer
	err := r.Run(context.Background(), Invocation{
		Label:  "test",
		Stdin:  strings.NewReader("pcm"),
		Stdout: &out,
	})
	require.NoError(t, err)
	assert.Equal(t, "pcm", out.String())
}

func TestExecRunnerClassifiesFailures(t *testing.T) {
	t.Run("missing binary", func(t *testing.T) {
		r := NewExecRunner(filepath.Join(t.TempDir(), "no-ffmpeg"), time.Second, 0, nil)
		err := r.Run(context.Background(), Invocation{Label: "transcode"})
		assert.ErrorIs(t, err, sErrors.ErrToolMissing)
		assert.True(t, sErrors.IsFatal(err))
	})

	t.Run("non-zero exit", func(t *testing.T) {
		r := NewExecRunner(fakeFFmpeg(t, "echo 'Invalid data found' >&2; exit 3"), time.Second, 0, nil)
		err := r.Run(context.Background(), Invocation{Label: "transcode"})
		assert.ErrorIs(t, err, sErrors.ErrToolFailed)
		assert.False(t, sErrors.IsFatal(err))
		assert.Contains(t, sErrors.GetDetails(err)["ffmpeg_output"], "Invalid data found")
	})

	t.Run("timeout", func(t *testing.T) {
		r := NewExecRunner(fakeFFmpeg(t, "sleep 5"), 100*time.Millisecond, 100*time.Millisecond, nil)
		start := time.Now()
		err := r.Run(context.Background(), Invocation{Label: "transcode"})
		assert.ErrorIs(t, err, sErrors.ErrToolTimeout)
		assert.Less(t, time.Since(start), 3*time.Second)
	})

	t.Run("caller cancelled", func(t *testing.T) {
		r := NewExecRunner(fakeFFmpeg(t, "sleep 5"), 0, 100*time.Millisecond, nil)
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		err := r.Run(ctx, Invocation{Label: "transcode"})
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
		assert.NotErrorIs(t, err, sErrors.ErrToolTimeout)
	})
}

func TestTailBufferKeepsTail(t *testing.T) {
	tb := &tailBuffer{limit: 4}
	tb.Write([]byte("abc"))
	tb.Write([]byte("defg"))
	assert.Equal(t, "defg", tb.String())
}
