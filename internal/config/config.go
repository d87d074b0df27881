package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/crimson-sun/auditor/internal/connector"
)

// Version is the auditor release version.
const Version = "0.3.0"

// Sink names accepted in AUDIT_OUTPUTS.
const (
	SinkCSV      = "csv"
	SinkStdout   = "stdout"
	SinkWebhook  = "webhook"
	SinkPostgres = "postgres"
	SinkRedis    = "redis"
	SinkKafka    = "kafka"
)

// Config holds all auditor configuration.
type Config struct {
	Source  SourceConfig
	Engine  EngineConfig
	Output  OutputConfig
	Metrics MetricsConfig
	Log     LogConfig

	// parseErrs holds variables Load could not parse; Validate reports them.
	parseErrs []error
}

// SourceConfig selects and configures the event source.
type SourceConfig struct {
	Provider string        `env:"AUDIT_SOURCE" validate:"oneof=cfapi cfcli file"`
	Endpoint string        `env:"AUDIT_API_ENDPOINT" validate:"omitempty,url"`
	APIKey   string        `env:"AUDIT_API_TOKEN"`
	Username string        `env:"CF_USERNAME"`
	Password string        `env:"CF_PASSWORD"`
	Path     string        `env:"AUDIT_SOURCE_PATH"`
	PerPage  int           `env:"AUDIT_PER_PAGE" validate:"gte=0,lte=5000"`
	Timeout  time.Duration `env:"AUDIT_HTTP_TIMEOUT" validate:"gt=0"`
}

// EngineConfig holds classification settings.
type EngineConfig struct {
	RulesFile    string `env:"AUDIT_RULES_FILE"`
	LookbackDays int    `env:"AUDIT_LOOKBACK_DAYS" validate:"gte=1,lte=366"`
}

// OutputConfig holds report destination settings.
type OutputConfig struct {
	Sinks          []string      `env:"AUDIT_OUTPUTS" validate:"min=1,dive,oneof=csv stdout webhook postgres redis kafka"`
	ExportDir      string        `env:"AUDIT_EXPORT_DIR"`
	ExcelHint      bool          `env:"AUDIT_EXCEL_HINT"`
	Pretty         bool          `env:"AUDIT_OUTPUT_PRETTY"`
	WebhookURL     string        `env:"AUDIT_WEBHOOK_URL" validate:"omitempty,url"`
	WebhookTimeout time.Duration `env:"AUDIT_WEBHOOK_TIMEOUT" validate:"gte=0"` // 0 keeps the sink default
	DatabaseURL    string        `env:"AUDIT_DATABASE_URL"`
	RedisURL       string        `env:"AUDIT_REDIS_URL"`
	RedisTTL       time.Duration `env:"AUDIT_REDIS_TTL" validate:"gte=0"`
	KafkaBrokers   []string      `env:"AUDIT_KAFKA_BROKERS"`
	KafkaTopic     string        `env:"AUDIT_KAFKA_TOPIC"`
}

// MetricsConfig holds run metrics settings.
type MetricsConfig struct {
	File string `env:"AUDIT_METRICS_FILE"` // Prometheus textfile; empty disables
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `env:"AUDIT_LOG_LEVEL" validate:"oneof=debug info warn warning error"`
	Format string `env:"AUDIT_LOG_FORMAT" validate:"oneof=text json"`
}

// Load reads configuration from environment variables with sensible
// defaults. A .env file in the working directory is loaded first when
// present; variables already set in the environment win. Values that do not
// parse keep their default and are reported by Validate.
func Load() Config {
	_ = godotenv.Load()

	var errs []error
	cfg := Config{
		Source: SourceConfig{
			Provider: getenv("AUDIT_SOURCE", "cfapi"),
			Endpoint: getenv("AUDIT_API_ENDPOINT", "https://api.fr.cloud.gov"),
			APIKey:   os.Getenv("AUDIT_API_TOKEN"),
			Username: os.Getenv("CF_USERNAME"),
			Password: os.Getenv("CF_PASSWORD"),
			Path:     os.Getenv("AUDIT_SOURCE_PATH"),
			PerPage:  getenvInt("AUDIT_PER_PAGE", 0, &errs),
			Timeout:  getenvDuration("AUDIT_HTTP_TIMEOUT", 30*time.Second, &errs),
		},
		Engine: EngineConfig{
			RulesFile:    os.Getenv("AUDIT_RULES_FILE"),
			LookbackDays: getenvInt("AUDIT_LOOKBACK_DAYS", 8, &errs),
		},
		Output: OutputConfig{
			Sinks:          getenvList("AUDIT_OUTPUTS", []string{SinkCSV}),
			ExportDir:      getenv("AUDIT_EXPORT_DIR", "exports"),
			ExcelHint:      getenvBool("AUDIT_EXCEL_HINT", false, &errs),
			Pretty:         getenvBool("AUDIT_OUTPUT_PRETTY", false, &errs),
			WebhookURL:     os.Getenv("AUDIT_WEBHOOK_URL"),
			WebhookTimeout: getenvDuration("AUDIT_WEBHOOK_TIMEOUT", 10*time.Second, &errs),
			DatabaseURL:    os.Getenv("AUDIT_DATABASE_URL"),
			RedisURL:       os.Getenv("AUDIT_REDIS_URL"),
			RedisTTL:       getenvDuration("AUDIT_REDIS_TTL", 0, &errs),
			KafkaBrokers:   getenvList("AUDIT_KAFKA_BROKERS", nil),
			KafkaTopic:     getenv("AUDIT_KAFKA_TOPIC", "audit-summaries"),
		},
		Metrics: MetricsConfig{
			File: os.Getenv("AUDIT_METRICS_FILE"),
		},
		Log: LogConfig{
			Level:  getenv("AUDIT_LOG_LEVEL", "info"),
			Format: getenv("AUDIT_LOG_FORMAT", "text"),
		},
	}
	cfg.parseErrs = errs
	return cfg
}

// Lookback returns the fetch window as a duration.
func (c Config) Lookback() time.Duration {
	return time.Duration(c.Engine.LookbackDays) * 24 * time.Hour
}

// HasSink reports whether name is one of the configured sinks.
func (c Config) HasSink(name string) bool {
	for _, s := range c.Output.Sinks {
		if s == name {
			return true
		}
	}
	return false
}

// ConnectorConfig converts the source settings into what connectors consume.
func (s SourceConfig) ConnectorConfig() connector.ConnectorConfig {
	cfg := connector.ConnectorConfig{
		Provider: s.Provider,
		APIKey:   s.APIKey,
		Endpoint: s.Endpoint,
		Timeout:  s.Timeout,
	}
	extra := map[string]string{
		"username": s.Username,
		"password": s.Password,
		"path":     s.Path,
	}
	if s.PerPage > 0 {
		extra["per_page"] = strconv.Itoa(s.PerPage)
	}
	for k, v := range extra {
		if v == "" {
			continue
		}
		if cfg.Extra == nil {
			cfg.Extra = make(map[string]string)
		}
		cfg.Extra[k] = v
	}
	return cfg
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by the env var that sets them.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// Validate checks the configuration for errors. All problems are reported,
// joined into one error.
func (c Config) Validate() error {
	errs := append([]error(nil), c.parseErrs...)

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, fieldError(fe))
		}
	}

	switch c.Source.Provider {
	case "cfapi":
		if c.Source.APIKey == "" {
			errs = append(errs, errors.New("AUDIT_API_TOKEN is required for source cfapi"))
		}
	case "cfcli":
		if c.Source.Username == "" || c.Source.Password == "" {
			errs = append(errs, errors.New("CF_USERNAME and CF_PASSWORD are required for source cfcli"))
		}
	case "file":
		if c.Source.Path == "" {
			errs = append(errs, errors.New("AUDIT_SOURCE_PATH is required for source file"))
		}
	}

	if c.Engine.RulesFile != "" {
		if _, err := os.Stat(c.Engine.RulesFile); err != nil {
			errs = append(errs, fmt.Errorf("AUDIT_RULES_FILE: %w", err))
		}
	}

	if c.HasSink(SinkCSV) && c.Output.ExportDir == "" {
		errs = append(errs, errors.New("AUDIT_EXPORT_DIR is required for output csv"))
	}
	if c.HasSink(SinkWebhook) && c.Output.WebhookURL == "" {
		errs = append(errs, errors.New("AUDIT_WEBHOOK_URL is required for output webhook"))
	}
	if c.HasSink(SinkPostgres) && c.Output.DatabaseURL == "" {
		errs = append(errs, errors.New("AUDIT_DATABASE_URL is required for output postgres"))
	}
	if c.HasSink(SinkRedis) && c.Output.RedisURL == "" {
		errs = append(errs, errors.New("AUDIT_REDIS_URL is required for output redis"))
	}
	if c.HasSink(SinkKafka) && (len(c.Output.KafkaBrokers) == 0 || c.Output.KafkaTopic == "") {
		errs = append(errs, errors.New("AUDIT_KAFKA_BROKERS and AUDIT_KAFKA_TOPIC are required for output kafka"))
	}

	return errors.Join(errs...)
}

func fieldError(fe validator.FieldError) error {
	switch fe.Tag() {
	case "oneof":
		return fmt.Errorf("%s: %q must be one of: %s", fe.Field(), fe.Value(), fe.Param())
	case "url":
		return fmt.Errorf("%s: %q is not a valid URL", fe.Field(), fe.Value())
	case "min":
		return fmt.Errorf("%s: at least %s value(s) required", fe.Field(), fe.Param())
	case "gt", "gte", "lte":
		return fmt.Errorf("%s: %v is out of range (%s %s)", fe.Field(), fe.Value(), fe.Tag(), fe.Param())
	default:
		return fmt.Errorf("%s: failed %q validation", fe.Field(), fe.Tag())
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getenvInt, getenvBool and getenvDuration return fallback when key is unset.
// A value that does not parse also yields fallback and appends an error
// naming the variable to errs.
func getenvInt(key string, fallback int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool, errs *[]error) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return fallback
	}
	return b
}

func getenvDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not a duration", key, v))
		return fallback
	}
	return d
}

// getenvList splits a comma-separated variable, dropping blank items.
func getenvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
