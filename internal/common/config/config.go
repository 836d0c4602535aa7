// internal/common/config/config.go
package config

import "fmt"

// Config is the root configuration for the worker manager.
type Config struct {
	App      AppConfig               `mapstructure:"app"`
	Camunda  CamundaConfig           `mapstructure:"camunda"`
	Database DatabaseConfig          `mapstructure:"database"`
	Workers  map[string]WorkerConfig `mapstructure:"workers"`
	Auth     AuthConfig              `mapstructure:"auth"`
	AWS      AWSConfig               `mapstructure:"aws"`
	Scoring  ScoringConfig           `mapstructure:"scoring"`
	Lending  LendingConfig           `mapstructure:"lending"`
	Logging  LoggingConfig           `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`
	RequestTimeout int    `mapstructure:"request_timeout"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	Database       string `mapstructure:"database"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

// GetDSN builds the postgres connection string.
func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ElasticsearchConfig struct {
	Addresses    []string `mapstructure:"addresses"`
	URL          string   `mapstructure:"url"`
	Username     string   `mapstructure:"username"`
	Password     string   `mapstructure:"password"`
	PaymentIndex string   `mapstructure:"payment_index"`
}

// WorkerConfig is the per-task-type tuning block.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`
	MaxRetries    int  `mapstructure:"max_retries"`
}

type AuthConfig struct {
	Keycloak KeycloakConfig `mapstructure:"keycloak"`
}

type KeycloakConfig struct {
	URL          string `mapstructure:"url"`
	Realm        string `mapstructure:"realm"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

type AWSConfig struct {
	Region string    `mapstructure:"region"`
	SES    SESConfig `mapstructure:"ses"`
	SNS    SNSConfig `mapstructure:"sns"`
}

type SESConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	SenderEmail string `mapstructure:"sender_email"`
}

type SNSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	SenderID string `mapstructure:"sender_id"`
}

// ScoringConfig points at the external credit scoring service. The score is
// advisory input to reviewers; the workers never compute one.
type ScoringConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"`
}

type LendingConfig struct {
	LoanNumberPrefix string `mapstructure:"loan_number_prefix"`
	MaxTermMonths    int    `mapstructure:"max_term_months"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
