package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zynkhq/zynk/internal/logger"
)

// Config holds the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Database  DatabaseConfig  `yaml:"database" json:"database"`
	Session   SessionConfig   `yaml:"session" json:"session"`
	Encoder   EncoderConfig   `yaml:"encoder" json:"encoder"`
	Inference InferenceConfig `yaml:"inference" json:"inference"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Security  SecurityConfig  `yaml:"security" json:"security"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host            string        `yaml:"host" json:"host" env:"ZYNK_HOST"`
	Port            int           `yaml:"port" json:"port" env:"ZYNK_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout" env:"ZYNK_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout" env:"ZYNK_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" env:"ZYNK_SHUTDOWN_TIMEOUT"`
}

// DatabaseConfig holds the segment and session record store settings
type DatabaseConfig struct {
	Type         string `yaml:"type" json:"type" env:"DATABASE_TYPE"`
	URL          string `yaml:"url" json:"-" env:"DATABASE_URL"`
	Host         string `yaml:"host" json:"host" env:"POSTGRES_HOST"`
	Port         int    `yaml:"port" json:"port" env:"POSTGRES_PORT"`
	Username     string `yaml:"username" json:"username" env:"POSTGRES_USER"`
	Password     string `yaml:"password" json:"-" env:"POSTGRES_PASSWORD"`
	Database     string `yaml:"database" json:"database" env:"POSTGRES_DB"`
	DataDir      string `yaml:"data_dir" json:"data_dir" env:"ZYNK_DATA_DIR"`
	DatabasePath string `yaml:"database_path" json:"database_path" env:"ZYNK_DATABASE_PATH"`
	MaxOpenConns int    `yaml:"max_open_conns" json:"max_open_conns" env:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns int    `yaml:"max_idle_conns" json:"max_idle_conns" env:"DB_MAX_IDLE_CONNS"`
	LogQueries   bool   `yaml:"log_queries" json:"log_queries" env:"DB_LOG_QUERIES"`
}

// SessionConfig holds live session pipeline settings
type SessionConfig struct {
	TempDir          string        `yaml:"temp_dir" json:"temp_dir" env:"ZYNK_TEMP_DIR"`
	FrameRate        int           `yaml:"frame_rate" json:"frame_rate" env:"ZYNK_FRAME_RATE"`
	AudioSampleRate  int           `yaml:"audio_sample_rate" json:"audio_sample_rate" env:"ZYNK_AUDIO_SAMPLE_RATE"`
	AudioChannels    int           `yaml:"audio_channels" json:"audio_channels" env:"ZYNK_AUDIO_CHANNELS"`
	FeedbackInterval time.Duration `yaml:"feedback_interval" json:"feedback_interval" env:"ZYNK_FEEDBACK_INTERVAL"`
	MaxWindowFrames  int           `yaml:"max_window_frames" json:"max_window_frames" env:"ZYNK_MAX_WINDOW_FRAMES"`
	FrameStatusEvery int           `yaml:"frame_status_every" json:"frame_status_every" env:"ZYNK_FRAME_STATUS_EVERY"`
	ChunkStatusEvery int           `yaml:"chunk_status_every" json:"chunk_status_every" env:"ZYNK_CHUNK_STATUS_EVERY"`
	InboundQueue     int           `yaml:"inbound_queue" json:"inbound_queue" env:"ZYNK_INBOUND_QUEUE"`
	OutboundQueue    int           `yaml:"outbound_queue" json:"outbound_queue" env:"ZYNK_OUTBOUND_QUEUE"`
	MaxMessageBytes  int64         `yaml:"max_message_bytes" json:"max_message_bytes" env:"ZYNK_MAX_MESSAGE_BYTES"`
	FinalizeTimeout  time.Duration `yaml:"finalize_timeout" json:"finalize_timeout" env:"ZYNK_FINALIZE_TIMEOUT"`
}

// EncoderConfig holds ffmpeg settings
type EncoderConfig struct {
	FFmpegPath     string        `yaml:"ffmpeg_path" json:"ffmpeg_path" env:"FFMPEG_PATH"`
	ProcessTimeout time.Duration `yaml:"process_timeout" json:"process_timeout" env:"ZYNK_FFMPEG_TIMEOUT"`
	KillGrace      time.Duration `yaml:"kill_grace" json:"kill_grace" env:"ZYNK_FFMPEG_KILL_GRACE"`
	Preset         string        `yaml:"preset" json:"preset" env:"ZYNK_FFMPEG_PRESET"`
	CRF            int           `yaml:"crf" json:"crf" env:"ZYNK_FFMPEG_CRF"`
	AudioBitrate   string        `yaml:"audio_bitrate" json:"audio_bitrate" env:"ZYNK_AUDIO_BITRATE"`
	MinFreeDiskMB  uint64        `yaml:"min_free_disk_mb" json:"min_free_disk_mb" env:"ZYNK_MIN_FREE_DISK_MB"`
}

// InferenceConfig holds the feedback model settings
type InferenceConfig struct {
	APIKey        string        `yaml:"api_key" json:"-" env:"GEMINI_API_KEY"`
	Model         string        `yaml:"model" json:"model" env:"GEMINI_MODEL"`
	Endpoint      string        `yaml:"endpoint" json:"endpoint" env:"GEMINI_BASE_URL"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout" env:"ZYNK_INFERENCE_TIMEOUT"`
	MaxImages     int           `yaml:"max_images" json:"max_images" env:"ZYNK_INFERENCE_MAX_IMAGES"`
	ImageWidth    int           `yaml:"image_width" json:"image_width" env:"ZYNK_INFERENCE_IMAGE_WIDTH"`
	ImageHeight   int           `yaml:"image_height" json:"image_height" env:"ZYNK_INFERENCE_IMAGE_HEIGHT"`
	JPEGQuality   int           `yaml:"jpeg_quality" json:"jpeg_quality" env:"ZYNK_INFERENCE_JPEG_QUALITY"`
	MinFrameBytes int           `yaml:"min_frame_bytes" json:"min_frame_bytes" env:"ZYNK_INFERENCE_MIN_FRAME_BYTES"`
	HistorySize   int           `yaml:"history_size" json:"history_size" env:"ZYNK_INFERENCE_HISTORY_SIZE"`
	Workers       int           `yaml:"workers" json:"workers" env:"ZYNK_INFERENCE_WORKERS"`
}

// StorageConfig holds the S3-compatible object storage settings
type StorageConfig struct {
	Endpoint        string        `yaml:"endpoint" json:"endpoint" env:"SUPABASE_S3_ENDPOINT"`
	Region          string        `yaml:"region" json:"region" env:"SUPABASE_S3_REGION"`
	Bucket          string        `yaml:"bucket" json:"bucket" env:"SUPABASE_BUCKET_NAME"`
	AccessKeyID     string        `yaml:"access_key_id" json:"-" env:"SUPABASE_S3_ACCESS_KEY_ID"`
	SecretAccessKey string        `yaml:"secret_access_key" json:"-" env:"SUPABASE_S3_SECRET_ACCESS_KEY"`
	PublicBaseURL   string        `yaml:"public_base_url" json:"public_base_url" env:"SUPABASE_PUBLIC_URL"`
	UsePathStyle    bool          `yaml:"use_path_style" json:"use_path_style" env:"SUPABASE_S3_PATH_STYLE"`
	UploadTimeout   time.Duration `yaml:"upload_timeout" json:"upload_timeout" env:"ZYNK_UPLOAD_TIMEOUT"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" env:"ZYNK_LOG_LEVEL"`
	Format string `yaml:"format" json:"format" env:"ZYNK_LOG_FORMAT"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins" env:"ZYNK_ALLOWED_ORIGINS"`
}

// Configured reports whether the object store has enough to connect.
func (s StorageConfig) Configured() bool {
	return s.Endpoint != "" && s.Bucket != "" && s.AccessKeyID != "" && s.SecretAccessKey != ""
}

// ConfigManager manages application configuration with hot-reload support
type ConfigManager struct {
	config     *Config
	configPath string
	watchers   []ConfigWatcher
	mu         sync.RWMutex
}

// ConfigWatcher is called when configuration changes
type ConfigWatcher func(oldConfig, newConfig *Config)

var (
	globalConfigManager *ConfigManager
	configOnce          sync.Once
)

// GetConfigManager returns the global configuration manager instance
func GetConfigManager() *ConfigManager {
	configOnce.Do(func() {
		globalConfigManager = NewConfigManager()
	})
	return globalConfigManager
}

// NewConfigManager creates a new configuration manager
func NewConfigManager() *ConfigManager {
	return &ConfigManager{
		config:   DefaultConfig(),
		watchers: make([]ConfigWatcher, 0),
	}
}

// DefaultConfig returns the default application configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Type:         "sqlite",
			Host:         "localhost",
			Port:         5432,
			Username:     "zynk",
			Database:     "zynk",
			DataDir:      "./zynk-data",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Session: SessionConfig{
			TempDir:          "temp_videos",
			FrameRate:        60,
			AudioSampleRate:  48000,
			AudioChannels:    1,
			FeedbackInterval: 5 * time.Second,
			MaxWindowFrames:  6,
			FrameStatusEvery: 60,
			ChunkStatusEvery: 10,
			InboundQueue:     64,
			OutboundQueue:    64,
			MaxMessageBytes:  64 << 20, // 64MB, a consolidated blob arrives in one message
			FinalizeTimeout:  10 * time.Minute,
		},
		Encoder: EncoderConfig{
			FFmpegPath:     "ffmpeg",
			ProcessTimeout: 5 * time.Minute,
			KillGrace:      5 * time.Second,
			Preset:         "veryfast",
			CRF:            23,
			AudioBitrate:   "160k",
			MinFreeDiskMB:  256,
		},
		Inference: InferenceConfig{
			Model:         "gemini-2.5-flash-lite",
			Timeout:       30 * time.Second,
			MaxImages:     4,
			ImageWidth:    640,
			ImageHeight:   480,
			JPEGQuality:   80,
			MinFrameBytes: 100,
			HistorySize:   3,
			Workers:       0, // Auto-detect
		},
		Storage: StorageConfig{
			Region:        "us-east-1",
			Bucket:        "videos",
			UsePathStyle:  true,
			UploadTimeout: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func (cm *ConfigManager) LoadConfig(configPath string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	oldConfig := *cm.config
	cm.configPath = configPath

	newConfig := DefaultConfig()

	if configPath != "" && fileExists(configPath) {
		if err := loadFromFile(configPath, newConfig); err != nil {
			return fmt.Errorf("failed to load config from file: %w", err)
		}
		logger.Info("configuration loaded from file", "path", configPath)
	}

	// Environment wins over the file.
	if err := loadStructFromEnv(reflect.ValueOf(newConfig).Elem()); err != nil {
		return fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := validateConfig(newConfig); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	applyDerivedConfig(newConfig)

	cm.config = newConfig

	for _, watcher := range cm.watchers {
		go watcher(&oldConfig, newConfig)
	}

	return nil
}

// GetConfig returns the current configuration (thread-safe)
func (cm *ConfigManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	// Return a copy to prevent external modifications
	configCopy := *cm.config
	return &configCopy
}

// ConfigPath returns the path the configuration was last loaded from.
func (cm *ConfigManager) ConfigPath() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.configPath
}

// AddWatcher adds a configuration change watcher
func (cm *ConfigManager) AddWatcher(watcher ConfigWatcher) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.watchers = append(cm.watchers, watcher)
}

func loadFromFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	case ".json":
		return json.Unmarshal(data, config)
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}
}

func loadStructFromEnv(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set field %s from %s: %w", fieldType.Name, envTag, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			duration, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(duration))
		} else {
			intVal, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(intVal)
		}
	case reflect.Uint, reflect.Uint32, reflect.Uint64:
		uintVal, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(uintVal)
	case reflect.Bool:
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolVal)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %v", field.Type())
		}
		values := strings.Split(value, ",")
		for i, v := range values {
			values[i] = strings.TrimSpace(v)
		}
		field.Set(reflect.ValueOf(values))
	default:
		return fmt.Errorf("unsupported field type: %v", field.Kind())
	}

	return nil
}

func validateConfig(config *Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Database.Type != "sqlite" && config.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database type: %s", config.Database.Type)
	}

	if config.Session.FrameRate <= 0 {
		return fmt.Errorf("invalid frame rate: %d", config.Session.FrameRate)
	}

	if config.Session.FeedbackInterval <= 0 {
		return fmt.Errorf("invalid feedback interval: %s", config.Session.FeedbackInterval)
	}

	if config.Session.MaxWindowFrames <= 0 {
		return fmt.Errorf("invalid max window frames: %d", config.Session.MaxWindowFrames)
	}

	if config.Session.AudioChannels < 1 || config.Session.AudioChannels > 2 {
		return fmt.Errorf("invalid audio channel count: %d", config.Session.AudioChannels)
	}

	if config.Encoder.ProcessTimeout <= 0 {
		return fmt.Errorf("invalid ffmpeg process timeout: %s", config.Encoder.ProcessTimeout)
	}

	if config.Inference.Workers < 0 {
		return fmt.Errorf("invalid inference worker count: %d", config.Inference.Workers)
	}

	return nil
}

func applyDerivedConfig(config *Config) {
	if config.Database.DatabasePath == "" && config.Database.Type == "sqlite" {
		config.Database.DatabasePath = filepath.Join(config.Database.DataDir, "zynk.db")
	}

	// GOOGLE_API_KEY is accepted as a fallback name.
	if config.Inference.APIKey == "" {
		config.Inference.APIKey = os.Getenv("GOOGLE_API_KEY")
	}

	if config.Inference.Workers == 0 {
		config.Inference.Workers = min(max(2, runtime.NumCPU()), 16)
	}

	if config.Session.ChunkStatusEvery <= 0 {
		config.Session.ChunkStatusEvery = 10
	}
	if config.Session.FrameStatusEvery <= 0 {
		config.Session.FrameStatusEvery = 60
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Global convenience functions

// Get returns the current global configuration
func Get() *Config {
	return GetConfigManager().GetConfig()
}

// Load loads configuration from the specified path
func Load(configPath string) error {
	return GetConfigManager().LoadConfig(configPath)
}

// AddWatcher adds a global configuration watcher
func AddWatcher(watcher ConfigWatcher) {
	GetConfigManager().AddWatcher(watcher)
}
