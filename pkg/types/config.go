package types

// Config represents the overall application configuration
type Config struct {
	Backend  BackendConfig  `yaml:"backend" json:"backend"`
	Cache    StorageConfig  `yaml:"cache" json:"cache"` // local snapshot of history/favorites
	Server   ServerConfig   `yaml:"server" json:"server"`
	Pipeline PipelineConfig `yaml:"pipeline" json:"pipeline"`
	Playback PlaybackConfig `yaml:"playback" json:"playback"`
	Library  LibraryConfig  `yaml:"library" json:"library"`
	Log      LogConfig      `yaml:"log" json:"log"`
}

// BackendConfig points the client at the generation and tale-store backend
type BackendConfig struct {
	BaseURL        string `yaml:"base_url" json:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"` // per request
	ImageAPI       string `yaml:"image_api" json:"image_api"`             // "dalle" or "gemini"
	TextAPI        string `yaml:"text_api" json:"text_api"`
}

// ServerConfig holds settings for the reference tale-store server
type ServerConfig struct {
	Host         string        `yaml:"host" json:"host"`
	Port         int           `yaml:"port" json:"port"`
	ReadTimeout  int           `yaml:"read_timeout" json:"read_timeout"`   // seconds
	WriteTimeout int           `yaml:"write_timeout" json:"write_timeout"` // seconds
	Metrics      bool          `yaml:"metrics" json:"metrics"`
	Storage      StorageConfig `yaml:"storage" json:"storage"`
}

// StorageConfig defines storage adapter settings
type StorageConfig struct {
	Adapter string            `yaml:"adapter" json:"adapter"` // "local", "s3" or "sqlite"
	Local   LocalStorageOpts  `yaml:"local" json:"local"`
	S3      S3StorageOpts     `yaml:"s3" json:"s3"`
	SQLite  SQLiteStorageOpts `yaml:"sqlite" json:"sqlite"`
}

// LocalStorageOpts configures the local filesystem adapter
type LocalStorageOpts struct {
	BasePath string `yaml:"base_path" json:"base_path"`
}

// S3StorageOpts configures the S3-compatible adapter
type S3StorageOpts struct {
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	Region          string `yaml:"region" json:"region"`
	Bucket          string `yaml:"bucket" json:"bucket"`
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key"`
}

// SQLiteStorageOpts configures the SQLite blob adapter
type SQLiteStorageOpts struct {
	Path string `yaml:"path" json:"path"` // database file, or ":memory:"
}

// PipelineConfig holds asset pipeline settings
type PipelineConfig struct {
	PageSize             int    `yaml:"page_size" json:"page_size"` // words per page
	ImageIntervalMs      int    `yaml:"image_interval_ms" json:"image_interval_ms"`
	MaxConcurrentImages  int    `yaml:"max_concurrent_images" json:"max_concurrent_images"`
	ImageRetries         int    `yaml:"image_retries" json:"image_retries"`
	ImageRetryBackoffMs  int    `yaml:"image_retry_backoff_ms" json:"image_retry_backoff_ms"`
	AudioConcurrency     int    `yaml:"audio_concurrency" json:"audio_concurrency"` // 0 = all at once
	ReadyTimeoutSeconds  int    `yaml:"ready_timeout_seconds" json:"ready_timeout_seconds"`
	PlaceholderImage     string `yaml:"placeholder_image" json:"placeholder_image"`
	AudioCacheTTLMinutes int    `yaml:"audio_cache_ttl_minutes" json:"audio_cache_ttl_minutes"`
	PrefetchPages        int    `yaml:"prefetch_pages" json:"prefetch_pages"`
}

// PlaybackConfig holds audio session settings
type PlaybackConfig struct {
	PollIntervalMs int     `yaml:"poll_interval_ms" json:"poll_interval_ms"`
	DefaultSpeed   float64 `yaml:"default_speed" json:"default_speed"`
	BytesPerSecond int     `yaml:"bytes_per_second" json:"bytes_per_second"` // clip size to duration
}

// LibraryConfig holds history/favorites settings
type LibraryConfig struct {
	MaxEntries int `yaml:"max_entries" json:"max_entries"`
}

// LogConfig selects the slog handler
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // text or json
}
