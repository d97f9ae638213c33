package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName        string   `mapstructure:"app_name"`
	Env            string   `mapstructure:"app_env"`
	LogLevel       string   `mapstructure:"log_level"`
	HTTPAddr       string   `mapstructure:"http_addr"`
	CorsOrigins    []string `mapstructure:"cors_origins"`
	ProvidersFile  string   `mapstructure:"providers_file"`
	PublishersFile string   `mapstructure:"publishers_file"`

	RapidAPIKey  string   `mapstructure:"rapidapi_key"`
	RapidAPIHost string   `mapstructure:"rapidapi_host"`
	Categories   []string `mapstructure:"news_categories"`
	Countries    []string `mapstructure:"news_countries"`
	Language     string   `mapstructure:"news_language"`
	ResultCap    int      `mapstructure:"news_result_cap"`

	PartitionTimeoutSeconds  int64         `mapstructure:"partition_timeout_seconds"`
	PartitionTimeout         time.Duration `mapstructure:"-"`
	EnrichMetadata           bool          `mapstructure:"enrich_metadata"`
	StalenessWindowSeconds   int64         `mapstructure:"staleness_window_seconds"`
	StalenessWindow          time.Duration `mapstructure:"-"`
	RefreshCooldownSeconds   int64         `mapstructure:"refresh_cooldown_seconds"`
	RefreshCooldown          time.Duration `mapstructure:"-"`
	BackgroundTimeoutSeconds int64         `mapstructure:"background_refresh_timeout_seconds"`
	BackgroundTimeout        time.Duration `mapstructure:"-"`

	RefreshCron         string        `mapstructure:"refresh_cron"`
	SchedulerRunSeconds int64         `mapstructure:"scheduler_run_timeout_seconds"`
	SchedulerRunTimeout time.Duration `mapstructure:"-"`

	StorageType             string        `mapstructure:"storage_type"`
	BBoltPath               string        `mapstructure:"bbolt_path"`
	MongoURI                string        `mapstructure:"mongodb_uri"`
	MongoDatabase           string        `mapstructure:"mongodb_database"`
	StorageRetentionSeconds int64         `mapstructure:"storage_retention_seconds"`
	StorageCleanupSeconds   int64         `mapstructure:"storage_cleanup_interval_seconds"`
	StorageRetention        time.Duration `mapstructure:"-"`
	StorageCleanupInterval  time.Duration `mapstructure:"-"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "samvad-news-feed")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("cors_origins", []string{})
	v.SetDefault("providers_file", "./configs/providers.yaml")
	v.SetDefault("publishers_file", "./configs/publishers.yaml")

	v.SetDefault("rapidapi_key", "")
	v.SetDefault("rapidapi_host", "imdb8.p.rapidapi.com")
	v.SetDefault("news_categories", []string{"MOVIE", "TV"})
	v.SetDefault("news_countries", []string{"US", "GB"})
	v.SetDefault("news_language", "en-US")
	v.SetDefault("news_result_cap", 1000)

	v.SetDefault("partition_timeout_seconds", 20)
	v.SetDefault("enrich_metadata", false)
	v.SetDefault("staleness_window_seconds", int64((12*time.Hour)/time.Second))
	v.SetDefault("refresh_cooldown_seconds", int64((5*time.Minute)/time.Second))
	v.SetDefault("background_refresh_timeout_seconds", int64((5*time.Minute)/time.Second))

	v.SetDefault("refresh_cron", "0 0,12 * * *")
	v.SetDefault("scheduler_run_timeout_seconds", int64((10*time.Minute)/time.Second))

	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/news.db")
	v.SetDefault("mongodb_uri", "")
	v.SetDefault("mongodb_database", "plotwist")
	v.SetDefault("storage_retention_seconds", int64((30*24*time.Hour)/time.Second))
	v.SetDefault("storage_cleanup_interval_seconds", int64((12*time.Hour)/time.Second))
}

// finalize validates raw values and derives durations.
func (c *Config) finalize() error {
	c.Categories = normalizeList(c.Categories)
	c.Countries = normalizeList(c.Countries)
	if len(c.Categories) == 0 {
		return fmt.Errorf("news_categories must not be empty")
	}
	if len(c.Countries) == 0 {
		return fmt.Errorf("news_countries must not be empty")
	}
	if c.ResultCap <= 0 {
		return fmt.Errorf("invalid news_result_cap (must be positive)")
	}
	c.Language = strings.TrimSpace(c.Language)
	c.CorsOrigins = splitList(c.CorsOrigins)
	c.RapidAPIKey = strings.TrimSpace(c.RapidAPIKey)

	durations := []struct {
		key     string
		seconds int64
		dst     *time.Duration
	}{
		{"partition_timeout_seconds", c.PartitionTimeoutSeconds, &c.PartitionTimeout},
		{"staleness_window_seconds", c.StalenessWindowSeconds, &c.StalenessWindow},
		{"refresh_cooldown_seconds", c.RefreshCooldownSeconds, &c.RefreshCooldown},
		{"background_refresh_timeout_seconds", c.BackgroundTimeoutSeconds, &c.BackgroundTimeout},
		{"scheduler_run_timeout_seconds", c.SchedulerRunSeconds, &c.SchedulerRunTimeout},
		{"storage_cleanup_interval_seconds", c.StorageCleanupSeconds, &c.StorageCleanupInterval},
	}
	for _, d := range durations {
		if d.seconds <= 0 {
			return fmt.Errorf("invalid %s (must be positive seconds)", d.key)
		}
		*d.dst = time.Duration(d.seconds) * time.Second
	}

	// zero retention disables pruning
	if c.StorageRetentionSeconds < 0 {
		return fmt.Errorf("invalid storage_retention_seconds (must not be negative)")
	}
	c.StorageRetention = time.Duration(c.StorageRetentionSeconds) * time.Second

	return nil
}

func normalizeList(in []string) []string {
	out := splitList(in)
	for i := range out {
		out[i] = strings.ToUpper(out[i])
	}
	return dedupe(out)
}

// splitList trims entries and drops empties. Env values arrive as a single comma separated
// string on some viper paths.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, raw := range in {
		for _, part := range strings.Split(raw, ",") {
			if val := strings.TrimSpace(part); val != "" {
				out = append(out, val)
			}
		}
	}
	return out
}

func dedupe(in []string) []string {
	out := in[:0]
	seen := make(map[string]struct{}, len(in))
	for _, val := range in {
		if _, dup := seen[val]; dup {
			continue
		}
		seen[val] = struct{}{}
		out = append(out, val)
	}
	return out
}

// HasRapidAPIKey reports whether provider credentials are configured.
func (c *Config) HasRapidAPIKey() bool {
	return c != nil && c.RapidAPIKey != ""
}

// Redacted returns a copy with credentials masked, safe to log.
func (c *Config) Redacted() Config {
	out := *c
	if out.RapidAPIKey != "" {
		out.RapidAPIKey = "***"
	}
	if out.MongoURI != "" {
		out.MongoURI = "***"
	}
	return out
}
