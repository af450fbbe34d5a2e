package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every setting of a timeline build. Precedence is
// flags > environment > YAML file > defaults; flags are applied by the caller.
type Config struct {
	OutputName      string        `yaml:"output_name"`
	FFmpegPath      string        `yaml:"ffmpeg_path"`
	FFprobePath     string        `yaml:"ffprobe_path"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	HTTPAddr        string        `yaml:"http_addr"`
	ManifestPath    string        `yaml:"manifest_path"`
	MetricsTextfile string        `yaml:"metrics_textfile"`
	Origin          string        `yaml:"origin"`
	FilenamePattern string        `yaml:"filename_pattern"`
	Rebase          bool          `yaml:"rebase"`
	SinkMaxBuffers  int           `yaml:"sink_max_buffers"`
	StopGrace       time.Duration `yaml:"stop_grace"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		OutputName:      "main",
		FFmpegPath:      "ffmpeg",
		FFprobePath:     "ffprobe",
		LogLevel:        "info",
		LogFormat:       "json",
		Origin:          "zero",
		FilenamePattern: "%Y%m%d-%H%M%S",
		SinkMaxBuffers:  5,
		StopGrace:       2 * time.Second,
	}
}

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// LoadFile returns the defaults overlaid with the YAML file at path. Unknown
// keys are an error. An empty path returns the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with the TIMELINE_* environment variables that are set.
func ApplyEnv(cfg *Config) {
	cfg.OutputName = GetEnv("TIMELINE_OUTPUT_NAME", cfg.OutputName)
	cfg.FFmpegPath = GetEnv("TIMELINE_FFMPEG_PATH", cfg.FFmpegPath)
	cfg.FFprobePath = GetEnv("TIMELINE_FFPROBE_PATH", cfg.FFprobePath)
	cfg.LogLevel = GetEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = GetEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.HTTPAddr = GetEnv("TIMELINE_HTTP_ADDR", cfg.HTTPAddr)
	cfg.ManifestPath = GetEnv("TIMELINE_MANIFEST_PATH", cfg.ManifestPath)
	cfg.MetricsTextfile = GetEnv("TIMELINE_METRICS_TEXTFILE", cfg.MetricsTextfile)
	cfg.Origin = GetEnv("TIMELINE_ORIGIN", cfg.Origin)
	cfg.FilenamePattern = GetEnv("TIMELINE_FILENAME_PATTERN", cfg.FilenamePattern)
	cfg.Rebase = GetEnvBool("TIMELINE_REBASE", cfg.Rebase)
	cfg.SinkMaxBuffers = GetEnvInt("TIMELINE_SINK_MAX_BUFFERS", cfg.SinkMaxBuffers)
	cfg.StopGrace = GetEnvDuration("TIMELINE_STOP_GRACE", cfg.StopGrace)
}

// Validate reports settings that can never work.
func (c Config) Validate() error {
	switch {
	case c.OutputName == "":
		return errors.New("config: output_name is empty")
	case c.SinkMaxBuffers < 1:
		return fmt.Errorf("config: sink_max_buffers must be positive, got %d", c.SinkMaxBuffers)
	case c.StopGrace < 0:
		return fmt.Errorf("config: stop_grace must not be negative, got %s", c.StopGrace)
	}
	switch c.Origin {
	case "", "zero", "filename", "matroska":
	default:
		return fmt.Errorf("config: unknown origin %q", c.Origin)
	}
	return nil
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvBool is GetEnvInt for strconv.ParseBool values.
func GetEnvBool(key string, fallback bool) bool {
	if s := os.Getenv(key); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return fallback
}

// GetEnvDuration is GetEnvInt for time.ParseDuration values.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return fallback
}
