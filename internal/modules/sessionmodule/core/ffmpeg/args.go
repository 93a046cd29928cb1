package ffmpeg

import (
	"fmt"
	"strconv"
)

// Common FFmpeg argument constants
var (
	GlobalArgs = struct {
		Overwrite  []string
		HideBanner []string
		Quiet      []string
		GenPTS     []string
	}{
		Overwrite:  []string{"-y"},
		HideBanner: []string{"-hide_banner"},
		Quiet:      []string{"-loglevel", "error"},
		GenPTS:     []string{"-fflags", "+genpts"},
	}

	VideoEncodingArgs = struct {
		Codec        []string
		Preset       []string
		CRF          []string
		QP           []string
		PixFmt       []string
		FrameRate    []string
		VSync        []string
		EvenScale    []string
		CopyVideo    []string
		NoVideo      []string
		NoAudio      []string
		FastStart    []string
		ShortestFlag []string
	}{
		Codec:        []string{"-c:v", "libx264"},
		Preset:       []string{"-preset"},
		CRF:          []string{"-crf"},
		QP:           []string{"-qp"},
		PixFmt:       []string{"-pix_fmt", "yuv420p"},
		FrameRate:    []string{"-r"},
		VSync:        []string{"-vsync", "2"},
		EvenScale:    []string{"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2"},
		CopyVideo:    []string{"-c:v", "copy"},
		NoVideo:      []string{"-vn"},
		NoAudio:      []string{"-an"},
		FastStart:    []string{"-movflags", "+faststart"},
		ShortestFlag: []string{"-shortest"},
	}

	AudioEncodingArgs = struct {
		Codec      []string
		Bitrate    []string
		SampleRate []string
		Channels   []string
		Resync     []string
	}{
		Codec:      []string{"-c:a", "aac"},
		Bitrate:    []string{"-b:a"},
		SampleRate: []string{"-ar"},
		Channels:   []string{"-ac"},
		Resync:     []string{"-af", "aresample=async=1:first_pts=0"},
	}
)

// EncodeSettings carries the output parameters shared by every strategy.
type EncodeSettings struct {
	FrameRate       int
	AudioSampleRate int
	AudioChannels   int
	Preset          string
	CRF             int
	AudioBitrate    string
}

func with(args []string, values ...string) []string {
	out := make([]string, 0, len(args)+len(values))
	out = append(out, args...)
	return append(out, values...)
}

func join(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// TranscodeArgs converts a consolidated client recording into the final MP4,
// enforcing frame rate, pixel format, audio layout and drift correction.
func TranscodeArgs(input, output string, s EncodeSettings) []string {
	return join(
		GlobalArgs.Overwrite,
		GlobalArgs.HideBanner,
		GlobalArgs.GenPTS,
		[]string{"-i", input},
		VideoEncodingArgs.VSync,
		VideoEncodingArgs.Codec,
		with(VideoEncodingArgs.Preset, s.Preset),
		with(VideoEncodingArgs.CRF, strconv.Itoa(s.CRF)),
		with(VideoEncodingArgs.FrameRate, strconv.Itoa(s.FrameRate)),
		VideoEncodingArgs.PixFmt,
		AudioEncodingArgs.Codec,
		with(AudioEncodingArgs.Bitrate, s.AudioBitrate),
		with(AudioEncodingArgs.SampleRate, strconv.Itoa(s.AudioSampleRate)),
		with(AudioEncodingArgs.Channels, strconv.Itoa(s.AudioChannels)),
		AudioEncodingArgs.Resync,
		VideoEncodingArgs.FastStart,
		VideoEncodingArgs.ShortestFlag,
		[]string{output},
	)
}

// SimpleTranscodeArgs is the retry parameter set: codecs and fast start
// only, letting ffmpeg keep the source timing and stream lengths.
func SimpleTranscodeArgs(input, output string, s EncodeSettings) []string {
	return join(
		GlobalArgs.Overwrite,
		GlobalArgs.HideBanner,
		[]string{"-i", input},
		VideoEncodingArgs.Codec,
		with(VideoEncodingArgs.Preset, s.Preset),
		with(VideoEncodingArgs.CRF, strconv.Itoa(s.CRF)),
		AudioEncodingArgs.Codec,
		with(AudioEncodingArgs.Bitrate, s.AudioBitrate),
		VideoEncodingArgs.FastStart,
		[]string{output},
	)
}

// RawFramesArgs encodes RGBA frames read from stdin into a video-only file.
// qp 0 keeps this intermediate stage lossless.
func RawFramesArgs(width, height int, output string, s EncodeSettings) []string {
	return join(
		GlobalArgs.Overwrite,
		GlobalArgs.HideBanner,
		[]string{
			"-f", "rawvideo",
			"-pix_fmt", "rgba",
			"-s", fmt.Sprintf("%dx%d", width, height),
		},
		with(VideoEncodingArgs.FrameRate, strconv.Itoa(s.FrameRate)),
		[]string{"-i", "pipe:0"},
		VideoEncodingArgs.NoAudio,
		VideoEncodingArgs.EvenScale,
		VideoEncodingArgs.Codec,
		with(VideoEncodingArgs.Preset, "ultrafast"),
		with(VideoEncodingArgs.QP, "0"),
		VideoEncodingArgs.PixFmt,
		[]string{output},
	)
}

// MuxArgs combines a video-only file with an audio sidecar, copying video.
// audioInput carries any demuxer flags needed before the audio -i.
func MuxArgs(video string, audioInput []string, output string, s EncodeSettings) []string {
	return join(
		GlobalArgs.Overwrite,
		GlobalArgs.HideBanner,
		[]string{"-i", video},
		audioInput,
		VideoEncodingArgs.CopyVideo,
		AudioEncodingArgs.Codec,
		with(AudioEncodingArgs.Bitrate, s.AudioBitrate),
		with(AudioEncodingArgs.SampleRate, strconv.Itoa(s.AudioSampleRate)),
		with(AudioEncodingArgs.Channels, strconv.Itoa(s.AudioChannels)),
		VideoEncodingArgs.FastStart,
		[]string{output},
	)
}

// DecodePCMArgs decodes audio on stdin to mono signed 16-bit PCM on stdout,
// limited to maxSeconds.
func DecodePCMArgs(inputFormat []string, sampleRate int, maxSeconds float64) []string {
	return join(
		GlobalArgs.HideBanner,
		GlobalArgs.Quiet,
		inputFormat,
		[]string{"-i", "pipe:0"},
		[]string{"-t", strconv.FormatFloat(maxSeconds, 'f', -1, 64)},
		VideoEncodingArgs.NoVideo,
		with(AudioEncodingArgs.Channels, "1"),
		with(AudioEncodingArgs.SampleRate, strconv.Itoa(sampleRate)),
		[]string{"-f", "s16le", "pipe:1"},
	)
}
