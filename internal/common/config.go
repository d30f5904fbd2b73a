package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/ternarybob/rangealert/internal/models"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Source      SourceConfig    `toml:"source"`
	OCR         OCRConfig       `toml:"ocr"`
	Broker      BrokerConfig    `toml:"broker"`
	Mail        MailConfig      `toml:"mail"`
	Schedule    ScheduleConfig  `toml:"schedule"`
	Runtime     RuntimeConfig   `toml:"runtime"`
	Categories  CategoryConfig  `toml:"categories"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
}

// SourceConfig holds IMAP mailbox settings for the newsletter source.
type SourceConfig struct {
	Host     string `toml:"host" validate:"required"`
	Port     int    `toml:"port" validate:"gt=0"`
	Username string `toml:"username" validate:"required"`
	Password string `toml:"password" validate:"required"`
	Mailbox  string `toml:"mailbox"`
	// Subject search phrases per newsletter.
	DailySubject  string `toml:"daily_subject"`
	CryptoSubject string `toml:"crypto_subject"`
	ETFSubject    string `toml:"etf_subject"`
	IdeasSubject  string `toml:"ideas_subject"`
	// Lookback window for the latest-message search.
	Lookback time.Duration `toml:"lookback"`
	Timeout  time.Duration `toml:"timeout"` // per IMAP request
}

// OCRConfig holds the vision API settings for table transcription.
type OCRConfig struct {
	APIKey  string        `toml:"api_key"`
	Model   string        `toml:"model"`
	Timeout time.Duration `toml:"timeout"`
	// Inline image positions of the crypto newsletter's two risk-range
	// tables (coin table and derivative-exposure table).
	CryptoImageIndices []int `toml:"crypto_image_indices"`
}

// BrokerConfig holds the market-data gateway connection settings.
type BrokerConfig struct {
	Host      string        `toml:"host" validate:"required"`
	Port      int           `toml:"port" validate:"gt=0"`
	ClientID  int           `toml:"client_id"`
	SpacingMS int           `toml:"spacing_ms"` // minimum ms between quote requests
	Timeout   time.Duration `toml:"timeout"`    // per-ticker quote deadline
}

// MailConfig holds SMTP settings for the alert digest.
type MailConfig struct {
	Host     string        `toml:"host" validate:"required"`
	Port     int           `toml:"port" validate:"gt=0"`
	Username string        `toml:"username"`
	Password string        `toml:"password"`
	From     string        `toml:"from" validate:"required,email"`
	To       []string      `toml:"to" validate:"min=1,dive,email"`
	Timeout  time.Duration `toml:"timeout"`
}

// ScheduleConfig holds the workflow firing times in market time.
type ScheduleConfig struct {
	ExtractionTime string `toml:"extraction_time"` // HH:MM
	AMTime         string `toml:"am_time"`
	PMTime         string `toml:"pm_time"`
	Timezone       string `toml:"timezone"`
}

// RuntimeConfig holds concurrency and deadline tuning.
type RuntimeConfig struct {
	Parallelism int           `toml:"parallelism" validate:"gt=0"` // bounded fan-out width
	JobTimeout  time.Duration `toml:"job_timeout"`                 // whole-workflow deadline
	Mode        string        `toml:"mode" validate:"oneof=commit validate test"`
}

// CategoryConfig partitions newsletter categories by cadence.
type CategoryConfig struct {
	Daily  []string `toml:"daily"`
	Weekly []string `toml:"weekly"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability;
// only user-facing settings belong in rangealert.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Source: SourceConfig{
			Port:          993,
			Mailbox:       "INBOX",
			DailySubject:  "RISK RANGE",
			CryptoSubject: "CRYPTO QUANT",
			ETFSubject:    "ETF Pro Plus - Levels",
			IdeasSubject:  "Investing Ideas Newsletter",
			Lookback:      72 * time.Hour,
			Timeout:       15 * time.Second,
		},
		OCR: OCRConfig{
			Model:              "gemini-3-flash-preview",
			Timeout:            30 * time.Second,
			CryptoImageIndices: []int{6, 14},
		},
		Broker: BrokerConfig{
			Host:      "127.0.0.1",
			Port:      4001,
			ClientID:  17,
			SpacingMS: 500,
			Timeout:   5 * time.Second,
		},
		Mail: MailConfig{
			Port:    587,
			Timeout: 20 * time.Second,
		},
		Schedule: ScheduleConfig{
			ExtractionTime: "09:00",
			AMTime:         "10:45",
			PMTime:         "14:30",
			Timezone:       "America/New_York",
		},
		Runtime: RuntimeConfig{
			Parallelism: 8,
			JobTimeout:  20 * time.Minute,
			Mode:        "commit",
		},
		Categories: CategoryConfig{
			Daily:  []string{string(models.CategoryDaily), string(models.CategoryDigitalAssets)},
			Weekly: []string{string(models.CategoryETFs), string(models.CategoryIdeas)},
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files. Later files
// override earlier files; env vars override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read config file %s: %v", models.ErrConfig, path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("%w: failed to parse config file %s (file %d of %d): %v", models.ErrConfig, path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("RANGEALERT_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Source configuration
	if host := os.Getenv("RANGEALERT_SOURCE_HOST"); host != "" {
		config.Source.Host = host
	}
	if port := os.Getenv("RANGEALERT_SOURCE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Source.Port = p
		}
	}
	if user := os.Getenv("RANGEALERT_SOURCE_USERNAME"); user != "" {
		config.Source.Username = user
	}
	if pass := os.Getenv("RANGEALERT_SOURCE_PASSWORD"); pass != "" {
		config.Source.Password = pass
	}
	if mailbox := os.Getenv("RANGEALERT_SOURCE_MAILBOX"); mailbox != "" {
		config.Source.Mailbox = mailbox
	}
	if lookback := os.Getenv("RANGEALERT_SOURCE_LOOKBACK"); lookback != "" {
		if d, err := time.ParseDuration(lookback); err == nil {
			config.Source.Lookback = d
		}
	}

	// OCR configuration
	if apiKey := os.Getenv("RANGEALERT_OCR_API_KEY"); apiKey != "" {
		config.OCR.APIKey = apiKey
	} else if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.OCR.APIKey = apiKey
	}
	if model := os.Getenv("RANGEALERT_OCR_MODEL"); model != "" {
		config.OCR.Model = model
	}

	// Broker configuration
	if host := os.Getenv("RANGEALERT_BROKER_HOST"); host != "" {
		config.Broker.Host = host
	}
	if port := os.Getenv("RANGEALERT_BROKER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Broker.Port = p
		}
	}
	if clientID := os.Getenv("RANGEALERT_BROKER_CLIENT_ID"); clientID != "" {
		if id, err := strconv.Atoi(clientID); err == nil {
			config.Broker.ClientID = id
		}
	}
	if spacing := os.Getenv("RANGEALERT_BROKER_SPACING_MS"); spacing != "" {
		if ms, err := strconv.Atoi(spacing); err == nil {
			config.Broker.SpacingMS = ms
		}
	}

	// Mail configuration
	if host := os.Getenv("RANGEALERT_MAIL_HOST"); host != "" {
		config.Mail.Host = host
	}
	if port := os.Getenv("RANGEALERT_MAIL_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Mail.Port = p
		}
	}
	if user := os.Getenv("RANGEALERT_MAIL_USERNAME"); user != "" {
		config.Mail.Username = user
	}
	if pass := os.Getenv("RANGEALERT_MAIL_PASSWORD"); pass != "" {
		config.Mail.Password = pass
	}
	if from := os.Getenv("RANGEALERT_MAIL_FROM"); from != "" {
		config.Mail.From = from
	}
	if to := os.Getenv("RANGEALERT_MAIL_TO"); to != "" {
		recipients := []string{}
		for _, r := range strings.Split(to, ",") {
			if trimmed := strings.TrimSpace(r); trimmed != "" {
				recipients = append(recipients, trimmed)
			}
		}
		if len(recipients) > 0 {
			config.Mail.To = recipients
		}
	}

	// Schedule configuration
	if tz := os.Getenv("RANGEALERT_SCHEDULE_TIMEZONE"); tz != "" {
		config.Schedule.Timezone = tz
	}
	if t := os.Getenv("RANGEALERT_SCHEDULE_EXTRACTION_TIME"); t != "" {
		config.Schedule.ExtractionTime = t
	}
	if t := os.Getenv("RANGEALERT_SCHEDULE_AM_TIME"); t != "" {
		config.Schedule.AMTime = t
	}
	if t := os.Getenv("RANGEALERT_SCHEDULE_PM_TIME"); t != "" {
		config.Schedule.PMTime = t
	}

	// Runtime configuration
	if parallelism := os.Getenv("RANGEALERT_RUNTIME_PARALLELISM"); parallelism != "" {
		if p, err := strconv.Atoi(parallelism); err == nil {
			config.Runtime.Parallelism = p
		}
	}
	if mode := os.Getenv("RANGEALERT_RUNTIME_MODE"); mode != "" {
		config.Runtime.Mode = mode
	}

	// Storage configuration
	if badgerPath := os.Getenv("RANGEALERT_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("RANGEALERT_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("RANGEALERT_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("RANGEALERT_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, mode string, brokerHost string, brokerPort int) {
	// Command-line flags have highest priority
	if mode != "" {
		config.Runtime.Mode = mode
	}
	if brokerHost != "" {
		config.Broker.Host = brokerHost
	}
	if brokerPort > 0 {
		config.Broker.Port = brokerPort
	}
}

// Validate checks the loaded configuration. Invalid configuration is
// fatal at startup.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", models.ErrConfig, err)
	}

	for _, t := range []string{c.Schedule.ExtractionTime, c.Schedule.AMTime, c.Schedule.PMTime} {
		if _, err := time.Parse("15:04", t); err != nil {
			return fmt.Errorf("%w: invalid schedule time %q", models.ErrConfig, t)
		}
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("%w: invalid timezone %q", models.ErrConfig, c.Schedule.Timezone)
	}

	seen := map[string]bool{}
	for _, cat := range append(append([]string{}, c.Categories.Daily...), c.Categories.Weekly...) {
		if seen[cat] {
			return fmt.Errorf("%w: category %q appears in both daily and weekly", models.ErrConfig, cat)
		}
		seen[cat] = true
	}

	return nil
}

// Location returns the configured market timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// BrokerSpacing returns the minimum interval between quote requests.
func (c *Config) BrokerSpacing() time.Duration {
	if c.Broker.SpacingMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.Broker.SpacingMS) * time.Millisecond
}

// DailyCategories returns the categories refreshed every market day.
func (c *Config) DailyCategories() []models.Category {
	return toCategories(c.Categories.Daily)
}

// WeeklyCategories returns the categories refreshed once per week.
func (c *Config) WeeklyCategories() []models.Category {
	return toCategories(c.Categories.Weekly)
}

func toCategories(names []string) []models.Category {
	cats := make([]models.Category, 0, len(names))
	for _, n := range names {
		cats = append(cats, models.Category(strings.ToLower(strings.TrimSpace(n))))
	}
	return cats
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
