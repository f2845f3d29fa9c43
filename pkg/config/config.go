// Package config loads and validates process configuration for the delivery
// engine. Configuration comes from a YAML file; cloud project identifiers can
// be overridden through the usual environment variables so the same file works
// across environments.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure.
type Config struct {
	Provider string         `yaml:"provider"` // batch-compute provider: cloudrun, awsbatch
	GCP      GCPConfig      `yaml:"gcp"`
	AWS      AWSConfig      `yaml:"aws"`
	Store    StoreConfig    `yaml:"store"`
	Job      JobConfig      `yaml:"job"`
	Identity IdentityConfig `yaml:"identity"`
	Sizing   SizingConfig   `yaml:"sizing"`
	Notify   NotifyConfig   `yaml:"notify"`
	Logging  LoggingConfig  `yaml:"logging"`
	Trigger  TriggerConfig  `yaml:"trigger"`
}

// GCPConfig identifies the Google Cloud project the engine runs against.
type GCPConfig struct {
	ProjectID string `yaml:"project_id"`
	Region    string `yaml:"region"`
}

// AWSConfig carries the AWS Batch settings used by the awsbatch dispatcher.
type AWSConfig struct {
	Region   string `yaml:"region"`
	JobQueue string `yaml:"job_queue"`
}

// StoreConfig selects the document-store backend.
type StoreConfig struct {
	Backend  string `yaml:"backend"` // firestore or mongo
	MongoURI string `yaml:"mongo_uri"`
	MongoDB  string `yaml:"mongo_db"`
}

// JobConfig describes the container image and resource limits for dispatched
// delivery jobs.
type JobConfig struct {
	Image          string `yaml:"image"`
	CPU            string `yaml:"cpu"`    // e.g. "1000m"
	Memory         string `yaml:"memory"` // e.g. "512Mi"
	TimeoutMinutes int    `yaml:"timeout_minutes"`
}

// IdentityConfig holds process-wide identity parameters merged into every
// dispatched job's environment.
type IdentityConfig struct {
	AuthIssuer    string `yaml:"auth_issuer"`
	TestAccountID string `yaml:"test_account_id"`
}

// SizingConfig configures the audience count-estimation client.
type SizingConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// NotifyConfig configures the notification bus.
type NotifyConfig struct {
	Topic string `yaml:"topic"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// TriggerConfig configures the event-driven trigger control loop.
type TriggerConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// Load reads configuration from path, applies environment overrides and
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		c.GCP.ProjectID = v
	}
	if v := os.Getenv("GOOGLE_CLOUD_REGION"); v != "" {
		c.GCP.Region = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		c.AWS.Region = v
	}
	if v := os.Getenv("MONGO_URI"); v != "" {
		c.Store.MongoURI = v
	}
}

func (c *Config) applyDefaults() {
	if c.Provider == "" {
		c.Provider = "cloudrun"
	}
	if c.GCP.Region == "" {
		c.GCP.Region = "us-central1"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "firestore"
	}
	if c.Store.MongoDB == "" {
		c.Store.MongoDB = "marketing_ops"
	}
	if c.Job.CPU == "" {
		c.Job.CPU = "1000m"
	}
	if c.Job.Memory == "" {
		c.Job.Memory = "512Mi"
	}
	if c.Job.TimeoutMinutes <= 0 {
		c.Job.TimeoutMinutes = 60
	}
	if c.Sizing.TimeoutSeconds <= 0 {
		c.Sizing.TimeoutSeconds = 10
	}
	if c.Notify.Topic == "" {
		c.Notify.Topic = "delivery-notifications"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Trigger.IntervalSeconds <= 0 {
		c.Trigger.IntervalSeconds = 60
	}
}

// Validate rejects configurations that cannot produce a working engine.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "firestore":
		if c.GCP.ProjectID == "" {
			return fmt.Errorf("store backend firestore requires gcp.project_id")
		}
	case "mongo":
		if c.Store.MongoURI == "" {
			return fmt.Errorf("store backend mongo requires store.mongo_uri")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Provider == "awsbatch" && c.AWS.JobQueue == "" {
		return fmt.Errorf("provider awsbatch requires aws.job_queue")
	}
	if c.Job.Image == "" {
		return fmt.Errorf("job.image is required")
	}
	return nil
}

// SizingTimeout returns the per-request timeout for size estimation.
func (c *Config) SizingTimeout() time.Duration {
	return time.Duration(c.Sizing.TimeoutSeconds) * time.Second
}

// TriggerInterval returns the control-loop tick interval.
func (c *Config) TriggerInterval() time.Duration {
	return time.Duration(c.Trigger.IntervalSeconds) * time.Second
}
