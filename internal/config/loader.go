package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/unalkalkan/TaleWeaver/pkg/types"
	"gopkg.in/yaml.v3"
)

// Load reads and parses the configuration file on top of GetDefault.
// It also supports environment variable overrides with TW_ prefix
func Load(configPath string) (*types.Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := GetDefault()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads configPath when set, otherwise starts from GetDefault.
// Environment overrides and validation apply either way.
func LoadOrDefault(configPath string) (*types.Config, error) {
	if configPath != "" {
		return Load(configPath)
	}

	cfg := GetDefault()
	applyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid and fills zero values with defaults
func Validate(cfg *types.Config) error {
	if cfg.Backend.BaseURL != "" && !strings.HasPrefix(cfg.Backend.BaseURL, "http://") && !strings.HasPrefix(cfg.Backend.BaseURL, "https://") {
		return fmt.Errorf("invalid backend base_url: %s (must be http or https)", cfg.Backend.BaseURL)
	}
	if cfg.Backend.TimeoutSeconds <= 0 {
		cfg.Backend.TimeoutSeconds = 120
	}

	if err := validateStorage("cache", &cfg.Cache); err != nil {
		return err
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if err := validateStorage("server.storage", &cfg.Server.Storage); err != nil {
		return err
	}

	p := &cfg.Pipeline
	if p.PageSize <= 0 {
		p.PageSize = 50
	}
	if p.ImageIntervalMs < 0 {
		return fmt.Errorf("invalid pipeline image_interval_ms: %d", p.ImageIntervalMs)
	}
	if p.MaxConcurrentImages <= 0 {
		p.MaxConcurrentImages = 2
	}
	if p.ImageRetries < 0 {
		p.ImageRetries = 0
	}
	if p.AudioConcurrency < 0 {
		p.AudioConcurrency = 0
	}
	if p.ReadyTimeoutSeconds <= 0 {
		p.ReadyTimeoutSeconds = 15
	}
	if p.PlaceholderImage == "" {
		p.PlaceholderImage = "static/img/default-tale.jpg"
	}
	if p.AudioCacheTTLMinutes <= 0 {
		p.AudioCacheTTLMinutes = 30
	}
	if p.PrefetchPages < 0 {
		p.PrefetchPages = 0
	}

	if cfg.Playback.PollIntervalMs <= 0 {
		cfg.Playback.PollIntervalMs = 100
	}
	if cfg.Playback.DefaultSpeed <= 0 {
		cfg.Playback.DefaultSpeed = 1.0
	}
	if cfg.Playback.BytesPerSecond <= 0 {
		cfg.Playback.BytesPerSecond = 16000
	}

	if cfg.Library.MaxEntries <= 0 {
		cfg.Library.MaxEntries = 5
	}

	switch cfg.Log.Format {
	case "":
		cfg.Log.Format = "text"
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s (must be 'text' or 'json')", cfg.Log.Format)
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	return nil
}

func validateStorage(section string, s *types.StorageConfig) error {
	switch s.Adapter {
	case "local":
		if s.Local.BasePath == "" {
			return fmt.Errorf("%s local base_path is required", section)
		}
		if !filepath.IsAbs(s.Local.BasePath) {
			return fmt.Errorf("%s local base_path must be absolute: %s", section, s.Local.BasePath)
		}
	case "s3":
		if s.S3.Bucket == "" {
			return fmt.Errorf("%s s3 bucket is required", section)
		}
		if s.S3.Region == "" {
			return fmt.Errorf("%s s3 region is required", section)
		}
	case "sqlite":
		if s.SQLite.Path == "" {
			return fmt.Errorf("%s sqlite path is required", section)
		}
	default:
		return fmt.Errorf("invalid %s adapter: %s (must be 'local', 's3' or 'sqlite')", section, s.Adapter)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides
// Environment variables should be prefixed with TW_ (TaleWeaver)
func applyEnvOverrides(cfg *types.Config) {
	if val := os.Getenv("TW_BACKEND_BASE_URL"); val != "" {
		cfg.Backend.BaseURL = val
	}
	if val := os.Getenv("TW_BACKEND_TIMEOUT_SECONDS"); val != "" {
		fmt.Sscanf(val, "%d", &cfg.Backend.TimeoutSeconds)
	}
	if val := os.Getenv("TW_BACKEND_IMAGE_API"); val != "" {
		cfg.Backend.ImageAPI = val
	}
	if val := os.Getenv("TW_BACKEND_TEXT_API"); val != "" {
		cfg.Backend.TextAPI = val
	}

	if val := os.Getenv("TW_SERVER_HOST"); val != "" {
		cfg.Server.Host = val
	}
	if val := os.Getenv("TW_SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &cfg.Server.Port)
	}

	applyStorageEnvOverrides("TW_CACHE_", &cfg.Cache)
	applyStorageEnvOverrides("TW_SERVER_STORAGE_", &cfg.Server.Storage)

	if val := os.Getenv("TW_LOG_LEVEL"); val != "" {
		cfg.Log.Level = val
	}
	if val := os.Getenv("TW_LOG_FORMAT"); val != "" {
		cfg.Log.Format = val
	}
}

// applyStorageEnvOverrides applies adapter env vars under the given prefix
func applyStorageEnvOverrides(prefix string, s *types.StorageConfig) {
	if val := os.Getenv(prefix + "ADAPTER"); val != "" {
		s.Adapter = val
	}
	if val := os.Getenv(prefix + "LOCAL_BASE_PATH"); val != "" {
		s.Local.BasePath = val
	}
	if val := os.Getenv(prefix + "S3_BUCKET"); val != "" {
		s.S3.Bucket = val
	}
	if val := os.Getenv(prefix + "S3_REGION"); val != "" {
		s.S3.Region = val
	}
	if val := os.Getenv(prefix + "S3_ENDPOINT"); val != "" {
		s.S3.Endpoint = val
	}
	if val := os.Getenv(prefix + "S3_ACCESS_KEY_ID"); val != "" {
		s.S3.AccessKeyID = val
	}
	if val := os.Getenv(prefix + "S3_SECRET_ACCESS_KEY"); val != "" {
		s.S3.SecretAccessKey = val
	}
	if val := os.Getenv(prefix + "SQLITE_PATH"); val != "" {
		s.SQLite.Path = val
	}
}

// GetDefault returns a default configuration
func GetDefault() *types.Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return &types.Config{
		Backend: types.BackendConfig{
			BaseURL:        "http://localhost:5000",
			TimeoutSeconds: 120,
			ImageAPI:       "dalle",
			TextAPI:        "gemini",
		},
		Cache: types.StorageConfig{
			Adapter: "local",
			Local: types.LocalStorageOpts{
				BasePath: filepath.Join(home, ".taleweaver"),
			},
		},
		Server: types.ServerConfig{
			Host:         "0.0.0.0",
			Port:         5000,
			ReadTimeout:  15,
			WriteTimeout: 15,
			Storage: types.StorageConfig{
				Adapter: "local",
				Local: types.LocalStorageOpts{
					BasePath: "/var/lib/taleweaver/tales",
				},
			},
		},
		Pipeline: types.PipelineConfig{
			PageSize:             50,
			ImageIntervalMs:      2000,
			MaxConcurrentImages:  2,
			ImageRetries:         1,
			ImageRetryBackoffMs:  2000,
			ReadyTimeoutSeconds:  15,
			PlaceholderImage:     "static/img/default-tale.jpg",
			AudioCacheTTLMinutes: 30,
			PrefetchPages:        3,
		},
		Playback: types.PlaybackConfig{
			PollIntervalMs: 100,
			DefaultSpeed:   1.0,
			BytesPerSecond: 16000,
		},
		Library: types.LibraryConfig{
			MaxEntries: 5,
		},
		Log: types.LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
