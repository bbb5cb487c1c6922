package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	// Service information
	Service struct {
		Name        string `yaml:"name"`
		Version     string `yaml:"version"`
		Environment string `yaml:"environment"`
	} `yaml:"service"`

	HTTP      HTTPConfig      `yaml:"http"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Recording RecordingConfig `yaml:"recording"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
}

// HTTPConfig represents HTTP server configuration
type HTTPConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
}

// WebSocketConfig represents signaling socket configuration
type WebSocketConfig struct {
	Path           string        `yaml:"path"`
	BufferSize     int           `yaml:"buffer_size"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	WriteWait      time.Duration `yaml:"write_wait"`
	PongWait       time.Duration `yaml:"pong_wait"`
	PingPeriod     time.Duration `yaml:"ping_period"`
}

// RecordingConfig represents the chunk store and stitcher configuration
type RecordingConfig struct {
	// ChunksDir holds raw uploaded fragments, one subdirectory per
	// (room, participant) pair
	ChunksDir string `yaml:"chunks_dir"`

	// ArtifactsDir holds finished stitched recordings
	ArtifactsDir string `yaml:"artifacts_dir"`

	// FFmpegPath is the concat binary; looked up on PATH when empty
	FFmpegPath string `yaml:"ffmpeg_path"`

	// CleanupChunks removes a pair's fragment directory after a
	// successful stitch
	CleanupChunks bool `yaml:"cleanup_chunks"`

	// StitchTimeout bounds one ffmpeg invocation
	StitchTimeout time.Duration `yaml:"stitch_timeout"`

	// AbandonedAfter is the inactivity window after which un-completed
	// fragment directories are garbage collected. Zero disables the
	// janitor.
	AbandonedAfter time.Duration `yaml:"abandoned_after"`

	// JanitorInterval is how often the janitor scans the chunks dir
	JanitorInterval time.Duration `yaml:"janitor_interval"`
}

// RateLimitConfig represents upload rate limiting configuration
type RateLimitConfig struct {
	Enabled        bool          `yaml:"enabled"`
	RequestsPerMin int           `yaml:"requests_per_min"`
	BurstSize      int           `yaml:"burst_size"`
	ExpirationTime time.Duration `yaml:"expiration_time"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration
func Default() *Config {
	config := &Config{
		HTTP: HTTPConfig{
			Address:         ":3001",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxUploadBytes:  32 << 20,
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			BufferSize:     1024,
			MaxMessageSize: 512 << 10,
			WriteWait:      10 * time.Second,
			PongWait:       60 * time.Second,
			PingPeriod:     30 * time.Second,
		},
		Recording: RecordingConfig{
			ChunksDir:       "recordings",
			ArtifactsDir:    "final",
			CleanupChunks:   false,
			StitchTimeout:   5 * time.Minute,
			AbandonedAfter:  24 * time.Hour,
			JanitorInterval: time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled:        false,
			RequestsPerMin: 600,
			BurstSize:      60,
			ExpirationTime: 10 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
	config.Service.Name = "roomcast"
	return config
}

// Load loads the configuration from a file. A missing path loads
// defaults plus environment overrides.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvironmentOverrides(config)

	return config, nil
}

// applyEnvironmentOverrides applies environment overrides
func applyEnvironmentOverrides(config *Config) {
	// HTTP address
	if addr := os.Getenv("HTTP_ADDRESS"); addr != "" {
		config.HTTP.Address = addr
	}

	// Chunk storage directory
	if dir := os.Getenv("RECORDINGS_DIR"); dir != "" {
		config.Recording.ChunksDir = dir
	}

	// Artifact directory
	if dir := os.Getenv("FINAL_DIR"); dir != "" {
		config.Recording.ArtifactsDir = dir
	}

	// ffmpeg binary
	if p := os.Getenv("FFMPEG_PATH"); p != "" {
		config.Recording.FFmpegPath = p
	}

	// Cleanup toggle
	if v := os.Getenv("ENABLE_CLEANUP"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			config.Recording.CleanupChunks = enabled
		}
	}

	// Environment
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		config.Service.Environment = env
	}
}
