// Package config defines the process configuration for the engine.
// Configuration is loaded once at startup and immutable thereafter; values
// come from the OS environment with a .env file as fallback for local
// development. A missing required value fails the process immediately.
package config

import (
	"time"

	"agencydesk/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used for credentials in configuration.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Components receive only the
// subsets they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"agencydesk"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Email         EmailConfig
	ReportService ReportServiceConfig
	Worker        WorkerConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server settings for the admin API.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
}

// DatabaseConfig holds connection and pool tuning parameters.
type DatabaseConfig struct {
	URL      SecretString `envconfig:"DATABASE_URL" validate:"required,url"`
	MaxConns int          `envconfig:"DB_MAX_CONNS" default:"10"`
}

// AWSConfig holds regional configuration shared by the SES and CloudWatch
// clients.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`
	// EndpointURL points at LocalStack in development. Empty in prod.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// EmailConfig holds notification email sender settings.
type EmailConfig struct {
	FromAddress   string `envconfig:"EMAIL_FROM_ADDRESS" default:"notifications@agencydesk.io"`
	FromName      string `envconfig:"EMAIL_FROM_NAME" default:"AgencyDesk"`
	ConfigSetName string `envconfig:"SES_CONFIG_SET"`
}

// ReportServiceConfig holds the report-generation service endpoint.
type ReportServiceConfig struct {
	BaseURL string       `envconfig:"REPORT_SERVICE_URL" validate:"required,url"`
	APIKey  SecretString `envconfig:"REPORT_SERVICE_API_KEY" validate:"required"`
}

// WorkerConfig tunes the scheduled sweeps.
type WorkerConfig struct {
	BatchSize         int           `envconfig:"SWEEP_BATCH_SIZE" default:"200"`
	LockTTL           time.Duration `envconfig:"SWEEP_LOCK_TTL" default:"10m"`
	FanoutConcurrency int           `envconfig:"NOTIFY_FANOUT_CONCURRENCY" default:"4"`
	SweepTimeout      time.Duration `envconfig:"SWEEP_TIMEOUT" default:"5m"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"AgencyDesk"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}
