// Package layout owns the on-disk working directory of a live session.
//
// Each session writes into <base>/<session id>/ and nothing else, so the
// whole tree can be removed with one call once the session ends. A marker
// file tags the directory so the orphan sweep never touches anything else
// that happens to live under the same base.
package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// markerName is created in every session directory on creation.
const markerName = ".zynk-session"

// Workspace is the per-session working directory.
type Workspace struct {
	sessionID string
	dir       string
	logger    hclog.Logger

	cleanupOnce sync.Once
	cleanupErr  error
}

// ValidateSessionID rejects ids that cannot name a single directory.
func ValidateSessionID(sessionID string) error {
	if sessionID == "" || strings.ContainsAny(sessionID, `/\`) || sessionID == "." || sessionID == ".." {
		return fmt.Errorf("invalid session id %q", sessionID)
	}
	return nil
}

// NewWorkspace creates <baseDir>/<sessionID>.
func NewWorkspace(baseDir, sessionID string, logger hclog.Logger) (*Workspace, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	dir := filepath.Join(baseDir, sessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, markerName), []byte(sessionID), 0644); err != nil {
		return nil, fmt.Errorf("failed to mark session directory: %w", err)
	}

	return &Workspace{
		sessionID: sessionID,
		dir:       dir,
		logger:    logger,
	}, nil
}

// Dir returns the session directory.
func (w *Workspace) Dir() string { return w.dir }

// BlobPath is where the consolidated client recording is written.
func (w *Workspace) BlobPath() string {
	return filepath.Join(w.dir, w.sessionID+"_combined.webm")
}

// VideoPath is the intermediate video-only encode of raw frames.
func (w *Workspace) VideoPath() string {
	return filepath.Join(w.dir, w.sessionID+"_video.mp4")
}

// AudioPath is the sidecar file holding concatenated audio chunks.
func (w *Workspace) AudioPath(ext string) string {
	if ext == "" {
		ext = ".webm"
	}
	return filepath.Join(w.dir, w.sessionID+"_audio"+ext)
}

// FinalPath is the artifact handed to upload.
func (w *Workspace) FinalPath() string {
	return filepath.Join(w.dir, w.sessionID+"_final.mp4")
}

// Cleanup removes the session directory. Only the first call does any work;
// later calls return the first result.
func (w *Workspace) Cleanup() error {
	w.cleanupOnce.Do(func() {
		w.cleanupErr = os.RemoveAll(w.dir)
		if w.cleanupErr != nil {
			w.logger.Warn("failed to remove session directory", "dir", w.dir, "error", w.cleanupErr)
			return
		}
		w.logger.Debug("removed session directory", "dir", w.dir)
	})
	return w.cleanupErr
}

// SweepOrphans removes session directories under baseDir that are older than
// maxAge and not reported live by isActive. It runs at startup to reclaim
// space left behind by a crash. Directories without the session marker are
// skipped.
func SweepOrphans(baseDir string, maxAge time.Duration, isActive func(sessionID string) bool, logger hclog.Logger) (int, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read session base directory: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if isActive != nil && isActive(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(baseDir, entry.Name())
		if _, err := os.Stat(filepath.Join(path, markerName)); err != nil {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			logger.Warn("failed to remove orphaned session directory", "dir", path, "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		logger.Info("removed orphaned session directories", "count", removed, "base_dir", baseDir)
	}
	return removed, nil
}
