package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type APIConfig struct {
	Port string `yaml:"port"`
}

type DatabaseConfig struct {
	DSN     string `yaml:"dsn"`
	Migrate bool   `yaml:"migrate"`
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type SchedulerConfig struct {
	MaxConcurrentJobs    int `yaml:"maxConcurrentJobs"`
	JobTimeoutSeconds    int `yaml:"jobTimeoutSeconds"`
	HistoryRetentionDays int `yaml:"historyRetentionDays"`
	MaxHistory           int `yaml:"maxHistory"`
}

type AlertingConfig struct {
	EscalationIntervalSeconds int `yaml:"escalationIntervalSeconds"`
	CleanupIntervalMinutes    int `yaml:"cleanupIntervalMinutes"`
	HistoryRetentionDays      int `yaml:"historyRetentionDays"`
}

type HubConfig struct {
	MaxConnections           int `yaml:"maxConnections"`
	HeartbeatIntervalSeconds int `yaml:"heartbeatIntervalSeconds"`
	ClientTimeoutSeconds     int `yaml:"clientTimeoutSeconds"`
	SendBuffer               int `yaml:"sendBuffer"`
}

type AnalysisConfig struct {
	MaxConcurrent     int `yaml:"maxConcurrent"`
	MemoryLimitMB     int `yaml:"memoryLimitMB"`
	DefaultPeriodDays int `yaml:"defaultPeriodDays"`
}

type SourceConfig struct {
	Type string `yaml:"type"` // memory or postgres
}

type Config struct {
	API       APIConfig       `yaml:"api"`
	Database  DatabaseConfig  `yaml:"database"`
	NATS      NATSConfig      `yaml:"nats"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Alerting  AlertingConfig  `yaml:"alerting"`
	Hub       HubConfig       `yaml:"hub"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Source    SourceConfig    `yaml:"source"`
}

// Default returns the configuration used when no file is provided.
func Default() Config {
	return Config{
		API:      APIConfig{Port: "8080"},
		Database: DatabaseConfig{Migrate: true},
		NATS:     NATSConfig{URL: "nats://localhost:4222"},
		Scheduler: SchedulerConfig{
			MaxConcurrentJobs:    4,
			JobTimeoutSeconds:    30,
			HistoryRetentionDays: 7,
			MaxHistory:           1000,
		},
		Alerting: AlertingConfig{
			EscalationIntervalSeconds: 30,
			CleanupIntervalMinutes:    10,
			HistoryRetentionDays:      7,
		},
		Hub: HubConfig{
			MaxConnections:           256,
			HeartbeatIntervalSeconds: 30,
			ClientTimeoutSeconds:     90,
			SendBuffer:               32,
		},
		Analysis: AnalysisConfig{
			MaxConcurrent:     8,
			MemoryLimitMB:     512,
			DefaultPeriodDays: 7,
		},
		Source: SourceConfig{Type: "memory"},
	}
}

// Load reads a YAML file over the defaults. An empty path returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.API.Port == "" {
		return fmt.Errorf("api port required")
	}
	if c.Scheduler.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("scheduler maxConcurrentJobs must be positive")
	}
	if c.Scheduler.JobTimeoutSeconds <= 0 {
		return fmt.Errorf("scheduler jobTimeoutSeconds must be positive")
	}
	if c.Hub.MaxConnections <= 0 {
		return fmt.Errorf("hub maxConnections must be positive")
	}
	switch c.Source.Type {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unsupported source type %q", c.Source.Type)
	}
	return nil
}

func (c SchedulerConfig) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutSeconds) * time.Second
}

func (c SchedulerConfig) HistoryRetention() time.Duration {
	return time.Duration(c.HistoryRetentionDays) * 24 * time.Hour
}

func (c AlertingConfig) EscalationInterval() time.Duration {
	return time.Duration(c.EscalationIntervalSeconds) * time.Second
}

func (c AlertingConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMinutes) * time.Minute
}

func (c AlertingConfig) HistoryRetention() time.Duration {
	return time.Duration(c.HistoryRetentionDays) * 24 * time.Hour
}

func (c HubConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSeconds) * time.Second
}

func (c HubConfig) ClientTimeout() time.Duration {
	return time.Duration(c.ClientTimeoutSeconds) * time.Second
}
