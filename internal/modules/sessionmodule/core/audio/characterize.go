package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hashicorp/go-hclog"

	"github.com/zynkhq/zynk/internal/modules/sessionmodule/core/ffmpeg"
)

const (
	analysisRate     = 16000
	analysisSeconds  = 5.0
	frameLength      = 2048
	hopLength        = 512
	minPitchHz       = 75
	maxPitchHz       = 400
	voicedRMS        = 0.01
	voicingThreshold = 0.3
)

// Features are the measurements behind a voice summary.
type Features struct {
	RMS         float64
	RMSVariance float64
	PitchHz     float64
	ZCR         float64
}

// Characterizer turns an audio chunk into a short text summary of volume,
// dynamics, pitch and pace.
type Characterizer struct {
	runner ffmpeg.Runner
	logger hclog.Logger
}

// NewCharacterizer creates a characterizer that decodes containers with runner.
// A nil runner limits analysis to raw PCM.
func NewCharacterizer(runner ffmpeg.Runner, logger hclog.Logger) *Characterizer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Characterizer{runner: runner, logger: logger.Named("audio")}
}

// Characterize never fails; problems are reported in the returned text.
func (c *Characterizer) Characterize(ctx context.Context, data []byte, sampleRate, channels int) string {
	if len(data) == 0 {
		return "No audio detected"
	}

	samples, err := c.decode(ctx, data, sampleRate, channels)
	if err != nil {
		c.logger.Debug("audio decode failed", "error", err, "bytes", len(data))
		return "Audio analysis unavailable (could not decode audio)"
	}
	if len(samples) == 0 {
		return "No audio detected"
	}

	return Describe(Analyze(samples, analysisRate))
}

// decode returns mono float samples at analysisRate, at most analysisSeconds long.
func (c *Characterizer) decode(ctx context.Context, data []byte, sampleRate, channels int) ([]float64, error) {
	format := Sniff(data)

	if format.Raw && sampleRate == analysisRate && channels == 1 {
		samples := PCM16ToFloat(data)
		if limit := int(analysisRate * analysisSeconds); len(samples) > limit {
			samples = samples[:limit]
		}
		return samples, nil
	}

	if c.runner == nil {
		if format.Raw {
			return downmixResample(PCM16ToFloat(data), sampleRate, channels), nil
		}
		return nil, fmt.Errorf("no decoder for %s audio", format.Name)
	}

	var inputFormat []string
	if format.Raw {
		inputFormat = []string{"-f", "s16le", "-ar", fmt.Sprint(sampleRate), "-ac", fmt.Sprint(channels)}
	}

	var out bytes.Buffer
	err := c.runner.Run(ctx, ffmpeg.Invocation{
		Label:  "audio-decode",
		Args:   ffmpeg.DecodePCMArgs(inputFormat, analysisRate, analysisSeconds),
		Stdin:  bytes.NewReader(data),
		Stdout: &out,
	})
	if err != nil {
		return nil, err
	}
	return PCM16ToFloat(out.Bytes()), nil
}

// downmixResample is the in-process path for raw PCM when ffmpeg is not
// available: average channels and pick nearest samples.
func downmixResample(interleaved []float64, sampleRate, channels int) []float64 {
	if channels < 1 {
		channels = 1
	}
	if sampleRate <= 0 {
		sampleRate = analysisRate
	}
	frames := len(interleaved) / channels
	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += interleaved[i*channels+ch]
		}
		mono[i] = sum / float64(channels)
	}

	n := int(float64(frames) * analysisRate / float64(sampleRate))
	if limit := int(analysisRate * analysisSeconds); n > limit {
		n = limit
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = mono[int(float64(i)*float64(sampleRate)/analysisRate)]
	}
	return out
}

// PCM16ToFloat converts little-endian int16 samples to [-1, 1).
func PCM16ToFloat(data []byte) []float64 {
	samples := make([]float64, len(data)/2)
	for i := range samples {
		samples[i] = float64(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768.0
	}
	return samples
}

// Analyze measures framed RMS energy, its spread, zero-crossing rate and an
// autocorrelation pitch estimate over voiced frames.
func Analyze(samples []float64, sampleRate int) Features {
	var (
		rmsValues []float64
		zcrSum    float64
		frames    int
		pitches   []float64
	)

	for start := 0; start < len(samples); start += hopLength {
		end := start + frameLength
		if end > len(samples) {
			end = len(samples)
		}
		frame := samples[start:end]
		if len(frame) < 2 {
			break
		}

		var energy float64
		crossings := 0
		for i, v := range frame {
			energy += v * v
			if i > 0 && (v >= 0) != (frame[i-1] >= 0) {
				crossings++
			}
		}
		rms := math.Sqrt(energy / float64(len(frame)))
		rmsValues = append(rmsValues, rms)
		zcrSum += float64(crossings) / float64(len(frame))
		frames++

		if rms >= voicedRMS && len(frame) == frameLength {
			if hz := pitchOf(frame, sampleRate); hz > 0 {
				pitches = append(pitches, hz)
			}
		}
		if end == len(samples) {
			break
		}
	}

	if frames == 0 {
		return Features{}
	}

	mean, std := meanStd(rmsValues)
	f := Features{RMS: mean, RMSVariance: std, ZCR: zcrSum / float64(frames)}
	if len(pitches) > 0 {
		f.PitchHz, _ = meanStd(pitches)
	}
	return f
}

func pitchOf(frame []float64, sampleRate int) float64 {
	minLag := sampleRate / maxPitchHz
	maxLag := sampleRate / minPitchHz
	if maxLag >= len(frame) {
		maxLag = len(frame) - 1
	}

	var zero float64
	for _, v := range frame {
		zero += v * v
	}
	if zero == 0 {
		return 0
	}

	bestLag, best := 0, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		var sum float64
		for i := 0; i+lag < len(frame); i++ {
			sum += frame[i] * frame[i+lag]
		}
		if r := sum / zero; r > best {
			best, bestLag = r, lag
		}
	}
	if bestLag == 0 || best < voicingThreshold {
		return 0
	}
	return float64(sampleRate) / float64(bestLag)
}

func meanStd(values []float64) (float64, float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

// Describe renders features in the form the feedback prompt expects.
func Describe(f Features) string {
	volume := "quiet"
	switch {
	case f.RMS > 0.05:
		volume = "loud"
	case f.RMS > 0.02:
		volume = "moderate"
	}

	energy := "consistent"
	if f.RMSVariance > 0.02 {
		energy = "varied"
	}

	pitch := "unclear"
	if f.PitchHz > 0 {
		pitch = fmt.Sprintf("%.0fHz", f.PitchHz)
	}

	pace := "slow"
	switch {
	case f.ZCR > 0.08:
		pace = "fast"
	case f.ZCR > 0.04:
		pace = "moderate"
	}

	return fmt.Sprintf("Volume: %s (%s), Pitch: %s, Pace: %s", volume, energy, pitch, pace)
}
