package junksite

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/eringen/junksite/notify"
)

// SiteConfig holds all configuration for the site backend. It is built once
// at startup and never mutated afterwards.
type SiteConfig struct {
	Name string // Business name used in the feed (default "Junk Removal")
	URL  string // Public base URL used to build absolute links (default "http://localhost:3000")

	Addr         string // Listen address (default ":3000")
	DatabasePath string // SQLite path (default "data/site.db")
	ScratchDir   string // Parent of per-import scratch directories (default os temp dir)

	AdminToken     string   // Required: bearer credential for admin routes
	AllowedOrigins []string // CORS origins of the frontend (default "*")

	MaxImportSize int64         // Upload cap for post archives (default 5 MB)
	MaxImageSize  int64         // Upload cap for post images (default 10 MB)
	PostCacheTTL  time.Duration // Post cache TTL (default 5min)

	NatsURL  string // Optional NATS server for site events
	LogFile  string // Optional JSON log file
	LogLevel string // debug, info, warn, error (default info)
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "Junk Removal"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	c.URL = strings.TrimSuffix(c.URL, "/")
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/site.db"
	}
	if c.ScratchDir == "" {
		c.ScratchDir = filepath.Join(os.TempDir(), "junksite-imports")
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.MaxImportSize <= 0 {
		c.MaxImportSize = 5 << 20
	}
	if c.MaxImageSize <= 0 {
		c.MaxImageSize = 10 << 20
	}
	if c.PostCacheTTL == 0 {
		c.PostCacheTTL = 5 * time.Minute
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate reports missing required settings.
func (c SiteConfig) Validate() error {
	if strings.TrimSpace(c.AdminToken) == "" {
		return errors.New("junksite: admin_token is required")
	}
	return nil
}

// LoadConfig reads configuration from an optional YAML file at path and from
// JUNKSITE_* environment variables, which take precedence.
func LoadConfig(path string) (SiteConfig, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("JUNKSITE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return SiteConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := SiteConfig{
		Name:           v.GetString("name"),
		URL:            v.GetString("url"),
		Addr:           v.GetString("addr"),
		DatabasePath:   v.GetString("database_path"),
		ScratchDir:     v.GetString("scratch_dir"),
		AdminToken:     v.GetString("admin_token"),
		AllowedOrigins: splitList(v.GetStringSlice("allowed_origins")),
		MaxImportSize:  v.GetInt64("max_import_size"),
		MaxImageSize:   v.GetInt64("max_image_size"),
		PostCacheTTL:   v.GetDuration("post_cache_ttl"),
		NatsURL:        v.GetString("nats_url"),
		LogFile:        v.GetString("log_file"),
		LogLevel:       v.GetString("log_level"),
	}
	cfg.setDefaults()
	return cfg, nil
}

// splitList flattens list settings given either as YAML sequences or as a
// comma-separated environment variable.
func splitList(vals []string) []string {
	var out []string
	for _, v := range vals {
		out = append(out, FilterEmpty(strings.Split(v, ","))...)
	}
	return out
}

// Option configures additional App behavior.
type Option func(*App)

// WithLogger sets the structured logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		a.Logger = l
	}
}

// WithPublisher sets where site events are sent (default: nowhere).
func WithPublisher(p notify.Publisher) Option {
	return func(a *App) {
		a.publisher = p
	}
}

// WithStore uses an already opened store instead of opening DatabasePath.
func WithStore(s *Store) Option {
	return func(a *App) {
		a.Store = s
	}
}

// WithMetrics replaces the Prometheus metrics. /metrics is only served for
// the built-in registry.
func WithMetrics(m Metrics) Option {
	return func(a *App) {
		a.Metrics = m
	}
}
