package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`
	LogFormat  string `mapstructure:"LOG_FORMAT"`

	StoreDriver string `mapstructure:"STORE_DRIVER"`
	PostgresURL string `mapstructure:"POSTGRES_URL"`
	SQLitePath  string `mapstructure:"SQLITE_PATH"`

	RedisAddr       string `mapstructure:"REDIS_ADDR"`
	RedisPassword   string `mapstructure:"REDIS_PASSWORD"`
	RedisDB         int    `mapstructure:"REDIS_DB"`
	ProgressChannel string `mapstructure:"PROGRESS_CHANNEL"`

	Workers             int   `mapstructure:"WORKERS"`
	FetchTimeoutSeconds int   `mapstructure:"FETCH_TIMEOUT_SECONDS"`
	MaxBodyBytes        int64 `mapstructure:"MAX_BODY_BYTES"`

	RetryMaxAttempts     int `mapstructure:"RETRY_MAX_ATTEMPTS"`
	RetryBaseDelayMS     int `mapstructure:"RETRY_BASE_DELAY_MS"`
	RetryMaxDelaySeconds int `mapstructure:"RETRY_MAX_DELAY_SECONDS"`
	RetryAfterCapSeconds int `mapstructure:"RETRY_AFTER_CAP_SECONDS"`

	RateLimitScope          string  `mapstructure:"RATE_LIMIT_SCOPE"`
	DefaultRateLimitSeconds float64 `mapstructure:"DEFAULT_RATE_LIMIT_SECONDS"`
	DefaultMaxPages         int     `mapstructure:"DEFAULT_MAX_PAGES"`
	MaxPagesCap             int     `mapstructure:"MAX_PAGES_CAP"`

	JobTimeoutMinutes               int `mapstructure:"JOB_TIMEOUT_MINUTES"`
	JobTimeoutWebScraperMinutes     int `mapstructure:"JOB_TIMEOUT_WEB_SCRAPER_MINUTES"`
	JobTimeoutFileProcessorMinutes  int `mapstructure:"JOB_TIMEOUT_FILE_PROCESSOR_MINUTES"`
	JobTimeoutAPIConnectorMinutes   int `mapstructure:"JOB_TIMEOUT_API_CONNECTOR_MINUTES"`
	JobTimeoutBatchProcessorMinutes int `mapstructure:"JOB_TIMEOUT_BATCH_PROCESSOR_MINUTES"`

	EmptyResultPolicy string `mapstructure:"EMPTY_RESULT_POLICY"`
	FileRoot          string `mapstructure:"FILE_ROOT"`
	RenderEnabled     bool   `mapstructure:"RENDER_ENABLED"`
	UserAgents        string `mapstructure:"USER_AGENTS"`
	Proxies           string `mapstructure:"PROXIES"`
	JobsFile          string `mapstructure:"JOBS_FILE"`
}

var defaults = map[string]any{
	"SERVER_PORT":                         "8080",
	"LOG_LEVEL":                           "info",
	"LOG_FORMAT":                          "json",
	"STORE_DRIVER":                        "memory",
	"POSTGRES_URL":                        "",
	"SQLITE_PATH":                         "data-scraper.db",
	"REDIS_ADDR":                          "",
	"REDIS_PASSWORD":                      "",
	"REDIS_DB":                            0,
	"PROGRESS_CHANNEL":                    "data-scraper:progress",
	"WORKERS":                             4,
	"FETCH_TIMEOUT_SECONDS":               30,
	"MAX_BODY_BYTES":                      10 << 20,
	"RETRY_MAX_ATTEMPTS":                  3,
	"RETRY_BASE_DELAY_MS":                 1000,
	"RETRY_MAX_DELAY_SECONDS":             30,
	"RETRY_AFTER_CAP_SECONDS":             120,
	"RATE_LIMIT_SCOPE":                    "job",
	"DEFAULT_RATE_LIMIT_SECONDS":          1.0,
	"DEFAULT_MAX_PAGES":                   10,
	"MAX_PAGES_CAP":                       500,
	"JOB_TIMEOUT_MINUTES":                 60,
	"JOB_TIMEOUT_WEB_SCRAPER_MINUTES":     0,
	"JOB_TIMEOUT_FILE_PROCESSOR_MINUTES":  0,
	"JOB_TIMEOUT_API_CONNECTOR_MINUTES":   0,
	"JOB_TIMEOUT_BATCH_PROCESSOR_MINUTES": 0,
	"EMPTY_RESULT_POLICY":                 "accept",
	"FILE_ROOT":                           ".",
	"RENDER_ENABLED":                      false,
	"USER_AGENTS":                         "",
	"PROXIES":                             "",
	"JOBS_FILE":                           "",
}

// Load reads configuration from an optional .env file and the environment.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
	}
	v.AutomaticEnv()

	// The .env file is optional; production is configured through the environment.
	if envFile != "" {
		_ = v.ReadInConfig()
	}

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	var problems []string
	switch c.StoreDriver {
	case "memory", "sqlite":
	case "postgres":
		if c.PostgresURL == "" {
			problems = append(problems, "POSTGRES_URL is required when STORE_DRIVER=postgres")
		}
	default:
		problems = append(problems, fmt.Sprintf("STORE_DRIVER %q must be memory, postgres or sqlite", c.StoreDriver))
	}
	switch c.RateLimitScope {
	case "job", "host":
	case "redis":
		if c.RedisAddr == "" {
			problems = append(problems, "REDIS_ADDR is required when RATE_LIMIT_SCOPE=redis")
		}
	default:
		problems = append(problems, fmt.Sprintf("RATE_LIMIT_SCOPE %q must be job, host or redis", c.RateLimitScope))
	}
	switch c.EmptyResultPolicy {
	case "accept", "warn", "fail":
	default:
		problems = append(problems, fmt.Sprintf("EMPTY_RESULT_POLICY %q must be accept, warn or fail", c.EmptyResultPolicy))
	}
	if c.Workers <= 0 {
		problems = append(problems, "WORKERS must be > 0")
	}
	if c.RetryMaxAttempts <= 0 {
		problems = append(problems, "RETRY_MAX_ATTEMPTS must be > 0")
	}
	if c.DefaultMaxPages <= 0 || c.MaxPagesCap < c.DefaultMaxPages {
		problems = append(problems, "DEFAULT_MAX_PAGES must be > 0 and <= MAX_PAGES_CAP")
	}
	if c.DefaultRateLimitSeconds < 0 {
		problems = append(problems, "DEFAULT_RATE_LIMIT_SECONDS must be >= 0")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMS) * time.Millisecond
}

func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelaySeconds) * time.Second
}

func (c *Config) RetryAfterCap() time.Duration {
	return time.Duration(c.RetryAfterCapSeconds) * time.Second
}

func (c *Config) DefaultRateLimit() time.Duration {
	return time.Duration(c.DefaultRateLimitSeconds * float64(time.Second))
}

// JobTimeouts returns the wall-clock limit per job type, falling back to
// JOB_TIMEOUT_MINUTES for types without an override.
func (c *Config) JobTimeouts() (map[string]time.Duration, time.Duration) {
	minutes := func(m int) time.Duration { return time.Duration(m) * time.Minute }
	overrides := map[string]time.Duration{}
	for jobType, m := range map[string]int{
		"web_scraper":     c.JobTimeoutWebScraperMinutes,
		"file_processor":  c.JobTimeoutFileProcessorMinutes,
		"api_connector":   c.JobTimeoutAPIConnectorMinutes,
		"batch_processor": c.JobTimeoutBatchProcessorMinutes,
	} {
		if m > 0 {
			overrides[jobType] = minutes(m)
		}
	}
	return overrides, minutes(c.JobTimeoutMinutes)
}

// SplitList splits a comma separated setting, dropping blanks.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
