// Package chunks buffers the decoded media of one live session.
//
// A Store is not safe for concurrent use. The session loop owns it while the
// session is active and hands it to the finalize task on stop.
package chunks

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"os"
	"strings"

	// Registered image decoders for incoming frames.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "github.com/chai2010/webp"
	"github.com/hashicorp/go-hclog"

	sErrors "github.com/zynkhq/zynk/internal/modules/sessionmodule/errors"
	"github.com/zynkhq/zynk/internal/utils"
)

const dataURLMarker = "base64,"

// Frame is one decoded video frame.
type Frame struct {
	Image image.Image
	// EncodedSize is the byte length of the compressed image as received.
	EncodedSize int
}

// Store holds the frames, audio chunks and consolidated blob of a session.
type Store struct {
	sessionID string
	blobPath  string
	logger    hclog.Logger

	frames      []Frame
	audio       [][]byte
	hasBlob     bool
	droppedUnit int
}

// NewStore creates an empty store that writes its blob to blobPath.
func NewStore(sessionID, blobPath string, logger hclog.Logger) *Store {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Store{
		sessionID: sessionID,
		blobPath:  blobPath,
		logger:    logger,
	}
}

// DecodePayload strips an optional data URL header and decodes base64.
func DecodePayload(encoded string) ([]byte, error) {
	s := strings.TrimSpace(encoded)
	if idx := strings.Index(s, dataURLMarker); idx >= 0 {
		s = s[idx+len(dataURLMarker):]
	}
	if s == "" {
		return nil, fmt.Errorf("%w: empty payload", sErrors.ErrDecode)
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// Some clients strip padding.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", sErrors.ErrDecode, err)
		}
	}
	return data, nil
}

// AppendFrame decodes and stores a frame. Undecodable frames are logged and
// dropped; the returned bool reports whether the frame was kept.
func (s *Store) AppendFrame(encoded string) (Frame, bool) {
	data, err := DecodePayload(encoded)
	if err != nil {
		s.drop("frame", err)
		return Frame{}, false
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		s.drop("frame", fmt.Errorf("%w: %v", sErrors.ErrDecode, err))
		return Frame{}, false
	}

	frame := Frame{Image: img, EncodedSize: len(data)}
	s.frames = append(s.frames, frame)
	if len(s.frames) == 1 {
		b := img.Bounds()
		s.logger.Debug("first frame received", "format", format, "width", b.Dx(), "height", b.Dy())
	}
	return frame, true
}

// AppendAudio decodes and stores an audio chunk, with the same drop policy
// as AppendFrame.
func (s *Store) AppendAudio(encoded string) ([]byte, bool) {
	data, err := DecodePayload(encoded)
	if err != nil {
		s.drop("audio", err)
		return nil, false
	}
	s.audio = append(s.audio, data)
	return data, true
}

// SetConsolidatedBlob decodes a full client recording and writes it to the
// blob path. Any failure clears the flag so finalize falls back to frames.
func (s *Store) SetConsolidatedBlob(encoded string) error {
	s.hasBlob = false

	data, err := DecodePayload(encoded)
	if err != nil {
		return sErrors.DecodeError("set_consolidated_blob", err).WithSession(s.sessionID)
	}

	if err := os.WriteFile(s.blobPath, data, 0644); err != nil {
		os.Remove(s.blobPath)
		if utils.IsNoSpace(err) {
			return sErrors.StorageError("set_consolidated_blob", errors.Join(sErrors.ErrDiskFull, err)).
				WithSession(s.sessionID)
		}
		return sErrors.StorageError("set_consolidated_blob", err).WithSession(s.sessionID)
	}

	s.hasBlob = true
	s.logger.Info("consolidated recording stored", "path", s.blobPath, "bytes", len(data))
	return nil
}

func (s *Store) drop(kind string, err error) {
	s.droppedUnit++
	s.logger.Warn("dropping undecodable "+kind, "error", err, "dropped_total", s.droppedUnit)
}

// Frames returns the stored frames in arrival order.
func (s *Store) Frames() []Frame { return s.frames }

// AudioChunks returns the stored audio chunks in arrival order.
func (s *Store) AudioChunks() [][]byte { return s.audio }

// FrameCount returns the number of stored frames.
func (s *Store) FrameCount() int { return len(s.frames) }

// AudioCount returns the number of stored audio chunks.
func (s *Store) AudioCount() int { return len(s.audio) }

// Dropped returns how many payloads failed to decode.
func (s *Store) Dropped() int { return s.droppedUnit }

// HasConsolidated reports whether a blob was stored successfully.
func (s *Store) HasConsolidated() bool { return s.hasBlob }

// ConsolidatedPath returns the blob path, whether or not it exists.
func (s *Store) ConsolidatedPath() string { return s.blobPath }
