package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, validateConfig(cfg))

	assert.Equal(t, 5*time.Second, cfg.Session.FeedbackInterval)
	assert.Equal(t, 6, cfg.Session.MaxWindowFrames)
	assert.Equal(t, 48000, cfg.Session.AudioSampleRate)
	assert.Equal(t, 1, cfg.Session.AudioChannels)
	assert.Equal(t, "gemini-2.5-flash-lite", cfg.Inference.Model)
	assert.Equal(t, "videos", cfg.Storage.Bucket)
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zynk.yaml")
	writeFile(t, path, `
server:
  port: 9001
session:
  frame_rate: 30
  feedback_interval: 10s
storage:
  bucket: recordings
`)

	t.Setenv("ZYNK_FRAME_RATE", "24")
	t.Setenv("ZYNK_ALLOWED_ORIGINS", "http://a.example, http://b.example")

	cm := NewConfigManager()
	require.NoError(t, cm.LoadConfig(path))
	cfg := cm.GetConfig()

	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, 24, cfg.Session.FrameRate, "env overrides file")
	assert.Equal(t, 10*time.Second, cfg.Session.FeedbackInterval, "file value survives when env is unset")
	assert.Equal(t, "recordings", cfg.Storage.Bucket)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.Security.AllowedOrigins)
}

func TestLoadConfigDerivedValues(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "fallback-key")

	cm := NewConfigManager()
	require.NoError(t, cm.LoadConfig(""))
	cfg := cm.GetConfig()

	assert.Equal(t, "fallback-key", cfg.Inference.APIKey)
	assert.Equal(t, filepath.Join(cfg.Database.DataDir, "zynk.db"), cfg.Database.DatabasePath)
	assert.GreaterOrEqual(t, cfg.Inference.Workers, 2)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad port", map[string]string{"ZYNK_PORT": "70000"}},
		{"bad database", map[string]string{"DATABASE_TYPE": "mysql"}},
		{"bad interval", map[string]string{"ZYNK_FEEDBACK_INTERVAL": "0s"}},
		{"bad channels", map[string]string{"ZYNK_AUDIO_CHANNELS": "6"}},
		{"unparseable", map[string]string{"ZYNK_FRAME_RATE": "sixty"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cm := NewConfigManager()
			assert.Error(t, cm.LoadConfig(""))
		})
	}
}

func TestLoadConfigUnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zynk.toml")
	writeFile(t, path, "port = 1")

	cm := NewConfigManager()
	assert.Error(t, cm.LoadConfig(path))
}

func TestWatcherNotifiedOnLoad(t *testing.T) {
	cm := NewConfigManager()
	changed := make(chan *Config, 1)
	cm.AddWatcher(func(_, newConfig *Config) { changed <- newConfig })

	t.Setenv("ZYNK_LOG_LEVEL", "debug")
	require.NoError(t, cm.LoadConfig(""))

	select {
	case cfg := <-changed:
		assert.Equal(t, "debug", cfg.Logging.Level)
	case <-time.After(time.Second):
		t.Fatal("watcher was not notified")
	}
}

func TestFileWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zynk.yaml")
	writeFile(t, path, "session:\n  max_window_frames: 6\n")

	cm := NewConfigManager()
	require.NoError(t, cm.LoadConfig(path))

	fw, err := NewFileWatcher(cm, hclog.NewNullLogger())
	require.NoError(t, err)
	fw.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))
	defer fw.Stop()

	writeFile(t, path, "session:\n  max_window_frames: 3\n")

	assert.Eventually(t, func() bool {
		return cm.GetConfig().Session.MaxWindowFrames == 3
	}, 2*time.Second, 20*time.Millisecond)
}

func TestNewFileWatcherRequiresPath(t *testing.T) {
	_, err := NewFileWatcher(NewConfigManager(), nil)
	assert.Error(t, err)
}
