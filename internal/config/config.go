package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database *dbConfig
	Service  *svcConfig
	Pipeline *pipelineConfig
	Kafka    *kafkaConfig
	S3       *s3Config
	Auth     *AuthConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"sqlite"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"analysis.db"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address         string   `envconfig:"ANALYSIS_ADDRESS" default:":3443"`
	MetricsAddress  string   `envconfig:"ANALYSIS_METRICS_ADDRESS" default:":8080"`
	LogLevel        string   `envconfig:"ANALYSIS_LOG_LEVEL" default:"info"`
	LogFormat       string   `envconfig:"ANALYSIS_LOG_FORMAT" default:"console"`
	CorsOrigins     []string `envconfig:"ANALYSIS_CORS_ORIGINS" default:"*"`
	MigrationFolder string   `envconfig:"ANALYSIS_MIGRATIONS_FOLDER" default:""`
}

type pipelineConfig struct {
	// Workers is the processing capacity: the number of jobs run at the same time.
	Workers           int           `envconfig:"ANALYSIS_WORKERS" default:"4"`
	MaxRetries        int           `envconfig:"ANALYSIS_MAX_RETRIES" default:"3"`
	BackoffBase       time.Duration `envconfig:"ANALYSIS_BACKOFF_BASE" default:"30s"`
	BackoffCap        time.Duration `envconfig:"ANALYSIS_BACKOFF_CAP" default:"10m"`
	TimeoutMultiplier int           `envconfig:"ANALYSIS_TIMEOUT_MULTIPLIER" default:"3"`
	HistoryLimit      int           `envconfig:"ANALYSIS_HISTORY_LIMIT" default:"20"`
	ReaperInterval    time.Duration `envconfig:"ANALYSIS_REAPER_INTERVAL" default:"1m"`
	FetchTimeout      time.Duration `envconfig:"ANALYSIS_FETCH_TIMEOUT" default:"20s"`
	UserAgent         string        `envconfig:"ANALYSIS_USER_AGENT" default:"ContentLabAnalyzer/1.0 (+https://contentlab.tech/bot)"`
}

type kafkaConfig struct {
	Brokers  []string `envconfig:"ANALYSIS_KAFKA_BROKERS" default:""`
	Topic    string   `envconfig:"ANALYSIS_KAFKA_TOPIC" default:"analysis-jobs"`
	ClientID string   `envconfig:"ANALYSIS_KAFKA_CLIENT_ID" default:"analysis-pipeline"`
	Version  string   `envconfig:"ANALYSIS_KAFKA_VERSION" default:""`
}

type s3Config struct {
	Endpoint  string `envconfig:"ANALYSIS_S3_ENDPOINT" default:""`
	Bucket    string `envconfig:"ANALYSIS_S3_BUCKET" default:"analysis-results"`
	AccessKey string `envconfig:"ANALYSIS_S3_ACCESS_KEY" default:""`
	SecretKey string `envconfig:"ANALYSIS_S3_SECRET_KEY" default:""`
	UseSSL    bool   `envconfig:"ANALYSIS_S3_USE_SSL" default:"true"`
}

// AuthConfig selects how API callers are authenticated: "none" or "jwt".
type AuthConfig struct {
	Type       string `envconfig:"ANALYSIS_AUTH_TYPE" default:"none"`
	JwkCertURL string `envconfig:"ANALYSIS_AUTH_JWK_URL" default:""`
}

// KafkaEnabled is true when brokers are configured. Events go to stdout otherwise.
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

// ArchiveEnabled is true when an object storage endpoint is configured.
func (c *Config) ArchiveEnabled() bool {
	return c.S3.Endpoint != ""
}

func New() (*Config, error) {
	if singleConfig == nil {
		cfg := new(Config)
		if err := envconfig.Process("", cfg); err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		singleConfig = cfg
	}
	return singleConfig, nil
}

// Validate rejects pipeline settings the queue and the dispatcher cannot run with.
func (c *Config) Validate() error {
	p := c.Pipeline
	switch {
	case p.Workers <= 0:
		return fmt.Errorf("ANALYSIS_WORKERS must be positive, got %d", p.Workers)
	case p.MaxRetries < 0:
		return fmt.Errorf("ANALYSIS_MAX_RETRIES must not be negative, got %d", p.MaxRetries)
	case p.BackoffBase <= 0:
		return fmt.Errorf("ANALYSIS_BACKOFF_BASE must be positive, got %s", p.BackoffBase)
	case p.BackoffCap < p.BackoffBase:
		return fmt.Errorf("ANALYSIS_BACKOFF_CAP (%s) must not be below ANALYSIS_BACKOFF_BASE (%s)", p.BackoffCap, p.BackoffBase)
	case p.TimeoutMultiplier <= 0:
		return fmt.Errorf("ANALYSIS_TIMEOUT_MULTIPLIER must be positive, got %d", p.TimeoutMultiplier)
	case p.ReaperInterval <= 0:
		return fmt.Errorf("ANALYSIS_REAPER_INTERVAL must be positive, got %s", p.ReaperInterval)
	case p.FetchTimeout <= 0:
		return fmt.Errorf("ANALYSIS_FETCH_TIMEOUT must be positive, got %s", p.FetchTimeout)
	}
	return nil
}

// NewDefault returns the defaults without reading the environment. The database is an
// in-memory sqlite.
func NewDefault() *Config {
	return &Config{
		Database: &dbConfig{
			Type: "sqlite",
			Name: "file::memory:?cache=shared",
		},
		Service: &svcConfig{
			Address:        ":3443",
			MetricsAddress: ":8080",
			LogLevel:       "info",
			LogFormat:      "console",
			CorsOrigins:    []string{"*"},
		},
		Pipeline: &pipelineConfig{
			Workers:           4,
			MaxRetries:        3,
			BackoffBase:       30 * time.Second,
			BackoffCap:        10 * time.Minute,
			TimeoutMultiplier: 3,
			HistoryLimit:      20,
			ReaperInterval:    time.Minute,
			FetchTimeout:      20 * time.Second,
			UserAgent:         "ContentLabAnalyzer/1.0 (+https://contentlab.tech/bot)",
		},
		Kafka: &kafkaConfig{Topic: "analysis-jobs", ClientID: "analysis-pipeline"},
		S3:    &s3Config{Bucket: "analysis-results", UseSSL: true},
		Auth:  &AuthConfig{Type: "none"},
	}
}
