package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override
const EnvPrefix = "IGHARVEST_"

// Config holds all configuration options for the harvester
type Config struct {
	Instagram     InstagramConfig    `yaml:"instagram" json:"instagram"`
	Database      DatabaseConfig     `yaml:"database" json:"database"`
	Session       SessionConfig      `yaml:"session" json:"session"`
	RateLimit     RateLimitConfig    `yaml:"rate_limit" json:"rate_limit"`
	Pacing        PacingConfig       `yaml:"pacing" json:"pacing"`
	Pagination    PaginationConfig   `yaml:"pagination" json:"pagination"`
	Worker        WorkerConfig       `yaml:"worker" json:"worker"`
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`
	Enrichment    EnrichmentConfig   `yaml:"enrichment" json:"enrichment"`
	Checkpoint    CheckpointConfig   `yaml:"checkpoint" json:"checkpoint"`
	Logging       LoggingConfig      `yaml:"logging" json:"logging"`
}

// InstagramConfig holds upstream endpoint settings
type InstagramConfig struct {
	BaseURL        string        `yaml:"base_url" json:"base_url"`
	AppID          string        `yaml:"app_id" json:"app_id"`
	GraphQLHash    string        `yaml:"graphql_query_hash" json:"graphql_query_hash"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// DatabaseConfig selects the store dialect
type DatabaseConfig struct {
	Driver       string `yaml:"driver" json:"driver"`
	DSN          string `yaml:"dsn" json:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns" json:"max_open_conns"`
}

// SessionConfig holds the upstream session cookies. Cookies left empty here
// are looked up through the credential chain at startup.
type SessionConfig struct {
	SessionID        string `yaml:"session_id" json:"session_id"`
	CSRFToken        string `yaml:"csrf_token" json:"csrf_token"`
	DSUserID         string `yaml:"ds_user_id" json:"ds_user_id"`
	CSRFRefreshPages int    `yaml:"csrf_refresh_pages" json:"csrf_refresh_pages"`
}

// RateLimitConfig holds request-rate and retry settings
type RateLimitConfig struct {
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int           `yaml:"burst_size" json:"burst_size"`
	Cooldown          time.Duration `yaml:"cooldown" json:"cooldown"`
	MaxSingleWaits    int           `yaml:"max_single_waits" json:"max_single_waits"`
	TransientRetries  int           `yaml:"transient_retries" json:"transient_retries"`
	TransientBackoff  time.Duration `yaml:"transient_backoff" json:"transient_backoff"`
}

// PacingConfig holds the randomized delay ranges
type PacingConfig struct {
	PageDelayMin time.Duration `yaml:"page_delay_min" json:"page_delay_min"`
	PageDelayMax time.Duration `yaml:"page_delay_max" json:"page_delay_max"`
	JobDelayMin  time.Duration `yaml:"job_delay_min" json:"job_delay_min"`
	JobDelayMax  time.Duration `yaml:"job_delay_max" json:"job_delay_max"`
	IdleDelay    time.Duration `yaml:"idle_delay" json:"idle_delay"`
}

// PaginationConfig controls the feed walk
type PaginationConfig struct {
	PageSize int    `yaml:"page_size" json:"page_size"`
	MaxPages int    `yaml:"max_pages" json:"max_pages"`
	Mode     string `yaml:"mode" json:"mode"`
}

// WorkerConfig controls the dispatcher loop
type WorkerConfig struct {
	ID       string   `yaml:"id" json:"id"`
	JobTypes []string `yaml:"job_types" json:"job_types"`
	RunOnce  bool     `yaml:"run_once" json:"run_once"`
}

// NotificationConfig holds alert delivery settings
type NotificationConfig struct {
	Enabled      bool     `yaml:"enabled" json:"enabled"`
	Channels     []string `yaml:"channels" json:"channels"`
	SMTPHost     string   `yaml:"smtp_host" json:"smtp_host"`
	SMTPPort     int      `yaml:"smtp_port" json:"smtp_port"`
	SMTPUsername string   `yaml:"smtp_username" json:"smtp_username"`
	SMTPPassword string   `yaml:"smtp_password" json:"smtp_password"`
	From         string   `yaml:"from" json:"from"`
	To           []string `yaml:"to" json:"to"`
}

// EnrichmentConfig controls best-effort bio link expansion
type EnrichmentConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
	MaxLinks int           `yaml:"max_links" json:"max_links"`
}

// CheckpointConfig controls the on-disk feed cursor
type CheckpointConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Directory string `yaml:"directory" json:"directory"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	File   string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Instagram: InstagramConfig{
			BaseURL:        "https://www.instagram.com",
			AppID:          "936619743392459",
			GraphQLHash:    "69cba403172132360e0a52400795328d",
			RequestTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			DSN:          "igharvest.db",
			MaxOpenConns: 4,
		},
		Session: SessionConfig{
			CSRFRefreshPages: 5,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 20,
			BurstSize:         2,
			Cooldown:          3 * time.Minute,
			MaxSingleWaits:    3,
			TransientRetries:  2,
			TransientBackoff:  10 * time.Second,
		},
		Pacing: PacingConfig{
			PageDelayMin: 8 * time.Second,
			PageDelayMax: 16 * time.Second,
			JobDelayMin:  30 * time.Second,
			JobDelayMax:  90 * time.Second,
			IdleDelay:    5 * time.Second,
		},
		Pagination: PaginationConfig{
			PageSize: 12,
			MaxPages: 0,
			Mode:     "full",
		},
		Worker: WorkerConfig{
			JobTypes: []string{"PROFILE", "POST"},
		},
		Notifications: NotificationConfig{
			Enabled:  true,
			Channels: []string{"log"},
			SMTPPort: 587,
		},
		Enrichment: EnrichmentConfig{
			Enabled:  true,
			Timeout:  10 * time.Second,
			MaxLinks: 50,
		},
		Checkpoint: CheckpointConfig{
			Enabled:   true,
			Directory: ".igharvest/checkpoints",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFromEnv loads configuration from IGHARVEST_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString(&c.Instagram.BaseURL, "INSTAGRAM_BASE_URL")
	setString(&c.Database.Driver, "DB_DRIVER")
	setString(&c.Database.DSN, "DB_DSN")
	setString(&c.Session.SessionID, "SESSION_ID")
	setString(&c.Session.CSRFToken, "CSRF_TOKEN")
	setString(&c.Session.DSUserID, "DS_USER_ID")
	setString(&c.Pagination.Mode, "SEED_MODE")
	setString(&c.Worker.ID, "WORKER_ID")
	setString(&c.Notifications.SMTPHost, "SMTP_HOST")
	setString(&c.Notifications.SMTPUsername, "SMTP_USERNAME")
	setString(&c.Notifications.SMTPPassword, "SMTP_PASSWORD")
	setString(&c.Notifications.From, "NOTIFY_FROM")
	setString(&c.Checkpoint.Directory, "CHECKPOINT_DIR")
	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.Format, "LOG_FORMAT")
	setString(&c.Logging.File, "LOG_FILE")

	if v := os.Getenv(EnvPrefix + "NOTIFY_TO"); v != "" {
		c.Notifications.To = splitList(v)
	}
	if v := os.Getenv(EnvPrefix + "NOTIFY_CHANNELS"); v != "" {
		c.Notifications.Channels = splitList(v)
	}
	if v := os.Getenv(EnvPrefix + "JOB_TYPES"); v != "" {
		c.Worker.JobTypes = splitList(v)
	}

	errs = append(errs,
		setInt(&c.RateLimit.RequestsPerMinute, "REQUESTS_PER_MINUTE"),
		setInt(&c.Pagination.MaxPages, "MAX_PAGES"),
		setInt(&c.Notifications.SMTPPort, "SMTP_PORT"),
		setDuration(&c.RateLimit.Cooldown, "RATE_LIMIT_COOLDOWN"),
		setDuration(&c.Pacing.PageDelayMin, "PAGE_DELAY_MIN"),
		setDuration(&c.Pacing.PageDelayMax, "PAGE_DELAY_MAX"),
		setDuration(&c.Pacing.JobDelayMin, "JOB_DELAY_MIN"),
		setDuration(&c.Pacing.JobDelayMax, "JOB_DELAY_MAX"),
		setBool(&c.Notifications.Enabled, "NOTIFICATIONS_ENABLED"),
		setBool(&c.Enrichment.Enabled, "ENRICHMENT_ENABLED"),
		setBool(&c.Checkpoint.Enabled, "CHECKPOINT_ENABLED"),
	)

	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	*dst = d
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	*dst = b
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// DefaultPath is where `config init` writes when no path is given
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "igharvest", "config.yaml")
}

func findConfigFile() string {
	locations := []string{
		".igharvest.yaml",
		".igharvest.yml",
		DefaultPath(),
		filepath.Join(os.Getenv("HOME"), ".config", "igharvest", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Instagram.BaseURL == "" {
		errs = append(errs, errors.New("instagram base URL is required"))
	}
	if c.Instagram.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database DSN is required"))
	}

	if c.Session.CSRFRefreshPages <= 0 {
		errs = append(errs, errors.New("csrf refresh interval must be positive"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}
	if c.RateLimit.Cooldown <= 0 {
		errs = append(errs, errors.New("rate limit cooldown must be positive"))
	}
	if c.RateLimit.MaxSingleWaits < 0 {
		errs = append(errs, errors.New("max single waits cannot be negative"))
	}
	if c.RateLimit.TransientRetries < 0 {
		errs = append(errs, errors.New("transient retries cannot be negative"))
	}

	if c.Pacing.PageDelayMin < 0 || c.Pacing.PageDelayMax < c.Pacing.PageDelayMin {
		errs = append(errs, errors.New("page delay range is invalid"))
	}
	if c.Pacing.JobDelayMin < 0 || c.Pacing.JobDelayMax < c.Pacing.JobDelayMin {
		errs = append(errs, errors.New("job delay range is invalid"))
	}
	if c.Pacing.JobDelayMax < c.Pacing.PageDelayMax {
		errs = append(errs, errors.New("job delay range must be wider than page delay range"))
	}

	if c.Pagination.PageSize <= 0 {
		errs = append(errs, errors.New("page size must be positive"))
	}
	if c.Pagination.MaxPages < 0 {
		errs = append(errs, errors.New("max pages cannot be negative"))
	}
	switch c.Pagination.Mode {
	case "full", "incremental":
	default:
		errs = append(errs, fmt.Errorf("invalid seed mode %q", c.Pagination.Mode))
	}

	if len(c.Worker.JobTypes) == 0 {
		errs = append(errs, errors.New("at least one job type is required"))
	}
	for _, jt := range c.Worker.JobTypes {
		if jt != "PROFILE" && jt != "POST" {
			errs = append(errs, fmt.Errorf("invalid job type %q", jt))
		}
	}

	validChannels := map[string]bool{"log": true, "desktop": true, "email": true}
	for _, ch := range c.Notifications.Channels {
		if !validChannels[ch] {
			errs = append(errs, fmt.Errorf("invalid notification channel %q", ch))
		}
		if ch == "email" && (c.Notifications.SMTPHost == "" || len(c.Notifications.To) == 0) {
			errs = append(errs, errors.New("email notifications need smtp_host and at least one recipient"))
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		errs = append(errs, errors.New("log format must be console or json"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["db-driver"].(string); ok && v != "" {
		c.Database.Driver = v
	}
	if v, ok := flags["db-dsn"].(string); ok && v != "" {
		c.Database.DSN = v
	}
	if v, ok := flags["mode"].(string); ok && v != "" {
		c.Pagination.Mode = v
	}
	if v, ok := flags["max-pages"].(int); ok && v > 0 {
		c.Pagination.MaxPages = v
	}
	if v, ok := flags["worker-id"].(string); ok && v != "" {
		c.Worker.ID = v
	}
	if v, ok := flags["job-types"].([]string); ok && len(v) > 0 {
		c.Worker.JobTypes = v
	}
	if v, ok := flags["once"].(bool); ok && v {
		c.Worker.RunOnce = true
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".igharvest.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
