// Package config loads the artisand settings file with environment
// overrides.
//
// Settings live in a single TOML file; any value can be overridden with
// an ARTISAN_-prefixed environment variable. Missing file means
// defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/webbwr/AsciiDoctorArtisan-sub007/internal/preview"
)

// EnvPrefix is the environment variable prefix.
const EnvPrefix = "ARTISAN_"

// Settings is the full artisand configuration.
type Settings struct {
	Preview  PreviewSettings  `toml:"preview"`
	Server   ServerSettings   `toml:"server"`
	Document DocumentSettings `toml:"document"`
	Logging  LoggingSettings  `toml:"logging"`
}

// PreviewSettings tunes the render pipeline.
type PreviewSettings struct {
	DebounceBaseMS     int `toml:"debounce_base_ms"`
	DebounceMaxMS      int `toml:"debounce_max_ms"`
	CacheCapacity      int `toml:"cache_capacity"`
	WorkerCount        int `toml:"worker_count"`
	ConverterTimeoutMS int `toml:"converter_timeout_ms"`
}

// ServerSettings configures the preview HTTP server.
type ServerSettings struct {
	Listen string `toml:"listen"`
}

// DocumentSettings names the document to watch.
type DocumentSettings struct {
	Path string `toml:"path"`
}

// LoggingSettings configures the logger.
type LoggingSettings struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the default settings.
func Default() Settings {
	return Settings{
		Preview: PreviewSettings{
			DebounceBaseMS:     300,
			DebounceMaxMS:      800,
			CacheCapacity:      200,
			WorkerCount:        0, // derive from hardware concurrency
			ConverterTimeoutMS: 5000,
		},
		Server: ServerSettings{
			Listen: "127.0.0.1:8787",
		},
		Logging: LoggingSettings{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the settings file at path, applies environment overrides,
// and validates the result. An empty path or missing file yields the
// defaults (still subject to env overrides).
func Load(path string) (Settings, error) {
	s := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// defaults
		case err != nil:
			return s, fmt.Errorf("read settings: %w", err)
		default:
			if err := toml.Unmarshal(data, &s); err != nil {
				return s, fmt.Errorf("parse settings: %w", err)
			}
		}
	}

	s.applyEnv()

	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// applyEnv overrides settings from ARTISAN_ environment variables.
func (s *Settings) applyEnv() {
	envStr(EnvPrefix+"LISTEN", &s.Server.Listen)
	envStr(EnvPrefix+"DOCUMENT", &s.Document.Path)
	envStr(EnvPrefix+"LOG_LEVEL", &s.Logging.Level)
	envStr(EnvPrefix+"LOG_FORMAT", &s.Logging.Format)
	envInt(EnvPrefix+"DEBOUNCE_BASE_MS", &s.Preview.DebounceBaseMS)
	envInt(EnvPrefix+"DEBOUNCE_MAX_MS", &s.Preview.DebounceMaxMS)
	envInt(EnvPrefix+"CACHE_CAPACITY", &s.Preview.CacheCapacity)
	envInt(EnvPrefix+"WORKER_COUNT", &s.Preview.WorkerCount)
	envInt(EnvPrefix+"CONVERTER_TIMEOUT_MS", &s.Preview.ConverterTimeoutMS)
}

func envStr(name string, dst *string) {
	if val, ok := os.LookupEnv(name); ok && val != "" {
		*dst = val
	}
}

func envInt(name string, dst *int) {
	if val, ok := os.LookupEnv(name); ok {
		if n, err := strconv.Atoi(val); err == nil {
			*dst = n
		}
	}
}

// Validate checks settings for out-of-range values.
func (s *Settings) Validate() error {
	if s.Preview.DebounceBaseMS < 0 {
		return fmt.Errorf("preview.debounce_base_ms must be >= 0, got %d", s.Preview.DebounceBaseMS)
	}
	if s.Preview.DebounceMaxMS > 0 && s.Preview.DebounceMaxMS < s.Preview.DebounceBaseMS {
		return fmt.Errorf("preview.debounce_max_ms (%d) below debounce_base_ms (%d)",
			s.Preview.DebounceMaxMS, s.Preview.DebounceBaseMS)
	}
	if s.Preview.CacheCapacity < 0 {
		return fmt.Errorf("preview.cache_capacity must be >= 0, got %d", s.Preview.CacheCapacity)
	}
	if s.Preview.WorkerCount < 0 {
		return fmt.Errorf("preview.worker_count must be >= 0, got %d", s.Preview.WorkerCount)
	}
	if s.Preview.ConverterTimeoutMS < 0 {
		return fmt.Errorf("preview.converter_timeout_ms must be >= 0, got %d", s.Preview.ConverterTimeoutMS)
	}
	switch s.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", s.Logging.Format)
	}
	return nil
}

// PipelineConfig converts the settings into a pipeline configuration.
func (s *Settings) PipelineConfig() preview.Config {
	cfg := preview.DefaultConfig()
	if s.Preview.DebounceBaseMS > 0 {
		cfg.DebounceBase = time.Duration(s.Preview.DebounceBaseMS) * time.Millisecond
	}
	if s.Preview.DebounceMaxMS > 0 {
		cfg.DebounceMax = time.Duration(s.Preview.DebounceMaxMS) * time.Millisecond
	}
	if s.Preview.CacheCapacity > 0 {
		cfg.CacheCapacity = s.Preview.CacheCapacity
	}
	if s.Preview.WorkerCount > 0 {
		cfg.WorkerCount = s.Preview.WorkerCount
	}
	if s.Preview.ConverterTimeoutMS > 0 {
		cfg.ConverterTimeout = time.Duration(s.Preview.ConverterTimeoutMS) * time.Millisecond
	}
	return cfg
}

// LogLevel maps the configured level name to a slog level. Unknown
// names fall back to info.
func (s *Settings) LogLevel() slog.Level {
	switch s.Logging.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
