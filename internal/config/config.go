// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	OCR       OCRConfig       `mapstructure:"ocr"`
	Geocode   GeocodeConfig   `mapstructure:"geocode"`
	Store     StoreConfig     `mapstructure:"store"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlConfig governs the feed fetcher and cutoff.
type CrawlConfig struct {
	GroupURL       string `mapstructure:"group_url"`
	CutoffDays     int    `mapstructure:"cutoff_days"`
	Tolerance      int    `mapstructure:"tolerance"`
	MaxScrolls     int    `mapstructure:"max_scrolls"`
	ScrollPauseMs  int    `mapstructure:"scroll_pause_ms"`
	ScrollJitterMs int    `mapstructure:"scroll_jitter_ms"`
	UserAgent      string `mapstructure:"user_agent"`
	NavTimeoutSec  int    `mapstructure:"nav_timeout_seconds"`
	ImagesDir      string `mapstructure:"images_dir"`
	ImageTimeoutS  int    `mapstructure:"image_timeout_seconds"`
}

// PipelineConfig governs the extraction worker pool.
type PipelineConfig struct {
	Workers         int      `mapstructure:"workers"`
	QueueDepth      int      `mapstructure:"queue_depth"`
	ExpectedRegions []string `mapstructure:"expected_regions"`
}

// OCRConfig selects and configures the OCR engine.
type OCRConfig struct {
	Engine         string `mapstructure:"engine"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	Binary         string `mapstructure:"binary"`
	Languages      string `mapstructure:"languages"`
}

// GeocodeConfig configures provider fallback and rate limiting.
type GeocodeConfig struct {
	GoogleAPIKey   string  `mapstructure:"google_api_key"`
	GoogleBaseURL  string  `mapstructure:"google_base_url"`
	NominatimURL   string  `mapstructure:"nominatim_url"`
	NominatimEmail string  `mapstructure:"nominatim_email"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RetryBackoffMs int     `mapstructure:"retry_backoff_ms"`
	RPS            float64 `mapstructure:"rps"`
	Burst          int     `mapstructure:"burst"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend    string `mapstructure:"backend"`
	SQLitePath string `mapstructure:"sqlite_path"`
	DSN        string `mapstructure:"dsn"`
	MaxConns   int32  `mapstructure:"max_conns"`
}

// ArtifactsConfig selects the artifact store for emitted datasets.
type ArtifactsConfig struct {
	Backend string `mapstructure:"backend"`
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for run-completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CAFEMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawl.cutoff_days", 365*3)
	v.SetDefault("crawl.tolerance", 3)
	v.SetDefault("crawl.max_scrolls", 40)
	v.SetDefault("crawl.scroll_pause_ms", 2500)
	v.SetDefault("crawl.scroll_jitter_ms", 1500)
	v.SetDefault("crawl.user_agent", "cafemap-bot/0.1")
	v.SetDefault("crawl.nav_timeout_seconds", 45)
	v.SetDefault("crawl.images_dir", "output/images")
	v.SetDefault("crawl.image_timeout_seconds", 20)
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.queue_depth", 16)
	v.SetDefault("ocr.engine", "none")
	v.SetDefault("ocr.timeout_seconds", 30)
	v.SetDefault("ocr.languages", "chi_tra+eng")
	v.SetDefault("geocode.nominatim_url", "https://nominatim.openstreetmap.org/search")
	v.SetDefault("geocode.timeout_seconds", 10)
	v.SetDefault("geocode.retry_backoff_ms", 500)
	v.SetDefault("geocode.rps", 1)
	v.SetDefault("geocode.burst", 1)
	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.sqlite_path", "output/cafemap.db")
	v.SetDefault("artifacts.backend", "local")
	v.SetDefault("artifacts.base_dir", "output")
	v.SetDefault("artifacts.prefix", "runs")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be > 0")
	}
	if c.Crawl.CutoffDays <= 0 {
		return fmt.Errorf("crawl.cutoff_days must be > 0")
	}
	switch c.Store.Backend {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("store.backend must be one of memory, sqlite, postgres")
	}
	if c.Store.Backend == "sqlite" && c.Store.SQLitePath == "" {
		return fmt.Errorf("store.sqlite_path must be set for the sqlite backend")
	}
	if c.Store.Backend == "postgres" && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn must be set for the postgres backend")
	}
	switch c.OCR.Engine {
	case "none", "tesseract", "vision":
	default:
		return fmt.Errorf("ocr.engine must be one of none, tesseract, vision")
	}
	switch c.Artifacts.Backend {
	case "local", "gcs":
	default:
		return fmt.Errorf("artifacts.backend must be one of local, gcs")
	}
	if c.Artifacts.Backend == "gcs" && c.Artifacts.Bucket == "" {
		return fmt.Errorf("artifacts.bucket must be set for the gcs backend")
	}
	return nil
}

// MaxAge converts the cutoff day count into a duration.
func (c CrawlConfig) MaxAge() time.Duration {
	return time.Duration(c.CutoffDays) * 24 * time.Hour
}
