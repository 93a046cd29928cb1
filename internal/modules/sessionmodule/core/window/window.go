// Package window decides when a session's feedback window closes.
//
// Triggering is wall-clock based: a window closes once the configured
// interval has elapsed since the previous trigger, however many frames
// arrived in between. Every method takes the current time as an argument.
package window

import (
	"time"

	"github.com/zynkhq/zynk/internal/modules/sessionmodule/core/chunks"
)

// Window is the bounded input for one inference call.
type Window struct {
	Frames []chunks.Frame
	Audio  []byte
}

// Windower tracks the trigger clock and the rolling view of recent media.
// It is owned by a single session loop and is not safe for concurrent use.
type Windower struct {
	interval    time.Duration
	maxFrames   int
	lastTrigger time.Time

	frames      []chunks.Frame
	latestAudio []byte
}

// New creates a windower whose first window opens at start.
func New(start time.Time, interval time.Duration, maxFrames int) *Windower {
	if maxFrames <= 0 {
		maxFrames = 1
	}
	return &Windower{
		interval:    interval,
		maxFrames:   maxFrames,
		lastTrigger: start,
	}
}

// ShouldTrigger reports whether at least one interval has elapsed since the
// last trigger. The boundary itself triggers.
func (w *Windower) ShouldTrigger(now time.Time) bool {
	return now.Sub(w.lastTrigger) >= w.interval
}

// Push adds a frame to the view, keeping only the most recent maxFrames.
func (w *Windower) Push(f chunks.Frame) {
	w.frames = append(w.frames, f)
	if over := len(w.frames) - w.maxFrames; over > 0 {
		w.frames = append(w.frames[:0:0], w.frames[over:]...)
	}
}

// SetAudio replaces the latest audio chunk.
func (w *Windower) SetAudio(chunk []byte) {
	w.latestAudio = chunk
}

// Select returns the current window without consuming it.
func (w *Windower) Select() Window {
	return SelectWindow(w.frames, w.latestAudio, w.maxFrames)
}

// SelectWindow returns the most recent limit frames of history, oldest
// first, and the latest audio chunk. The result does not alias history.
func SelectWindow(history []chunks.Frame, latestAudio []byte, limit int) Window {
	if limit < 0 {
		limit = 0
	}
	start := len(history) - limit
	if start < 0 {
		start = 0
	}
	frames := make([]chunks.Frame, len(history)-start)
	copy(frames, history[start:])
	return Window{Frames: frames, Audio: latestAudio}
}

// Consume marks a trigger at now and clears the view. The session's
// MediaChunkStore is not touched.
func (w *Windower) Consume(now time.Time) {
	w.lastTrigger = now
	w.frames = nil
	w.latestAudio = nil
}

// SegmentBounds returns the window's offsets in seconds from sessionStart,
// using the trigger time recorded before this call. end is never below start.
func (w *Windower) SegmentBounds(sessionStart, now time.Time) (start, end float64) {
	start = w.lastTrigger.Sub(sessionStart).Seconds()
	if start < 0 {
		start = 0
	}
	end = now.Sub(sessionStart).Seconds()
	if end < start {
		end = start
	}
	return start, end
}

