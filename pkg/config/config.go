// Package config loads the ingest configuration from defaults, an optional
// YAML file, .env, environment variables and command-line flags, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/steam-review-ingest/pkg/client"
	"github.com/Sternrassler/steam-review-ingest/pkg/logging"
	"github.com/Sternrassler/steam-review-ingest/pkg/pagination"
	"github.com/Sternrassler/steam-review-ingest/pkg/review"
)

// ConfigPathEnv names the YAML file when --config is not given.
const ConfigPathEnv = "REVIEW_INGEST_CONFIG"

// Config holds every setting of an ingest run.
type Config struct {
	AppID int    `yaml:"app_id"`
	RunID string `yaml:"run_id"`

	Feed        FeedConfig        `yaml:"feed"`
	Output      OutputConfig      `yaml:"output"`
	Redis       RedisConfig       `yaml:"redis"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Log         LogConfig         `yaml:"log"`
}

// FeedConfig describes how pages are requested.
type FeedConfig struct {
	BaseURL           string        `yaml:"base_url"`
	PageSize          int           `yaml:"page_size"`
	DateSource        string        `yaml:"date_source"`
	MinDate           string        `yaml:"min_date"`
	MaxDate           string        `yaml:"max_date"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	RetryAttempts     int           `yaml:"retry_attempts"`
	Timeout           time.Duration `yaml:"timeout"`
	UserAgent         string        `yaml:"user_agent"`
}

// OutputConfig describes batching and file output.
type OutputConfig struct {
	Dir          string `yaml:"dir"`
	PerBatch     int    `yaml:"per_batch"`
	MaxFiles     int    `yaml:"max_files"`
	Overlap      bool   `yaml:"overlap"`
	ChannelDepth int    `yaml:"channel_depth"`
}

// RedisConfig enables the page cache and shared cool-off state.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// PostgresConfig enables the Postgres sink.
type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// KafkaConfig enables the Kafka sink.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// ObjectStoreConfig enables the object store sink.
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// MetricsConfig enables the /metrics endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Feed: FeedConfig{
			BaseURL:           client.DefaultBaseURL,
			PageSize:          client.MaxPageSize,
			DateSource:        review.DateCreated.String(),
			RequestsPerSecond: 1,
			Burst:             1,
			RetryAttempts:     3,
			Timeout:           30 * time.Second,
			UserAgent:         "steam-review-ingest/0.1.0",
		},
		Output: OutputConfig{
			Dir:          ".",
			PerBatch:     5000,
			Overlap:      true,
			ChannelDepth: 4,
		},
		Postgres: PostgresConfig{Table: "steam_reviews"},
		Log:      LogConfig{Level: string(logging.LevelInfo)},
	}
}

// Load builds the configuration from defaults, the YAML file at path (or
// $REVIEW_INGEST_CONFIG when path is empty), .env and the environment.
func Load(path string) (Config, error) {
	// A missing .env is not an error.
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}

	num("STEAM_APP_ID", &c.AppID)
	num("PER_BATCH", &c.Output.PerBatch)
	num("PAGE_SIZE", &c.Feed.PageSize)
	str("DATE_SOURCE", &c.Feed.DateSource)
	str("MIN_DATE", &c.Feed.MinDate)
	str("MAX_DATE", &c.Feed.MaxDate)
	str("OUTPUT_DIR", &c.Output.Dir)
	num("MAX_FILES", &c.Output.MaxFiles)
	str("REDIS_URL", &c.Redis.URL)
	str("PG_DSN", &c.Postgres.DSN)
	str("KAFKA_TOPIC", &c.Kafka.Topic)
	str("S3_ENDPOINT", &c.ObjectStore.Endpoint)
	str("S3_BUCKET", &c.ObjectStore.Bucket)
	str("S3_ACCESS_KEY", &c.ObjectStore.AccessKey)
	str("S3_SECRET_KEY", &c.ObjectStore.SecretKey)
	str("METRICS_ADDR", &c.Metrics.Addr)
	str("LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		c.Kafka.Brokers = splitList(v)
	}

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseDate parses a YYYY-MM-DD date; the empty string yields the zero time.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(review.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a YYYY-MM-DD date", pagination.ErrInvalidDateWindow, s)
	}
	return t, nil
}

// ResolvedRunID returns RunID, defaulting to the app id.
func (c Config) ResolvedRunID() string {
	if c.RunID != "" {
		return c.RunID
	}
	return strconv.Itoa(c.AppID)
}

// Pagination converts the feed settings for the fetcher. Dates must have
// passed Validate.
func (c Config) Pagination(now time.Time) (pagination.Config, error) {
	source, err := review.ParseDateSource(c.Feed.DateSource)
	if err != nil {
		return pagination.Config{}, err
	}
	minDate, err := ParseDate(c.Feed.MinDate)
	if err != nil {
		return pagination.Config{}, err
	}
	maxDate, err := ParseDate(c.Feed.MaxDate)
	if err != nil {
		return pagination.Config{}, err
	}
	return pagination.Config{
		PageSize:   c.Feed.PageSize,
		DateSource: source,
		MinDate:    minDate,
		MaxDate:    maxDate,
		Now:        now,
		FetchAhead: c.Output.Overlap,
	}, nil
}

// Client converts the feed settings for the HTTP client.
func (c Config) Client() client.Config {
	cc := client.DefaultConfig(c.AppID)
	if c.Feed.BaseURL != "" {
		cc.BaseURL = c.Feed.BaseURL
	}
	if c.Feed.UserAgent != "" {
		cc.UserAgent = c.Feed.UserAgent
	}
	cc.Timeout = c.Feed.Timeout
	cc.RequestsPerSecond = c.Feed.RequestsPerSecond
	cc.Burst = c.Feed.Burst
	cc.Retry.MaxAttempts = c.Feed.RetryAttempts
	return cc
}

// Validate checks everything that can be checked before any network
// activity, including the date window relative to now.
func (c Config) Validate(now time.Time) error {
	if c.AppID <= 0 {
		return fmt.Errorf("app id must be positive (got %d)", c.AppID)
	}
	if c.Output.PerBatch < 1 {
		return fmt.Errorf("per_batch must be at least 1 (got %d)", c.Output.PerBatch)
	}
	if c.Output.MaxFiles < 0 {
		return fmt.Errorf("max_files must not be negative (got %d)", c.Output.MaxFiles)
	}
	if c.Feed.RetryAttempts < 1 {
		return fmt.Errorf("retry_attempts must be at least 1 (got %d)", c.Feed.RetryAttempts)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Feed.MaxDate != "" && c.Feed.MinDate == "" {
		return fmt.Errorf("%w: max date set without min date", pagination.ErrInvalidDateWindow)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka brokers configured without a topic")
	}
	if c.ObjectStore.Endpoint != "" && c.ObjectStore.Bucket == "" {
		return fmt.Errorf("object store endpoint configured without a bucket")
	}

	pc, err := c.Pagination(now)
	if err != nil {
		return err
	}
	return pc.Validate()
}
