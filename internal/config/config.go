package config

import (
	"fmt"
	"strings"

	"github.com/devcode-git/stream-reactor/pkg/models"
	"github.com/spf13/viper"
)

// Config holds all configuration for the sink process
type Config struct {
	Log           LogConfig
	Server        ServerConfig
	Elasticsearch ElasticsearchConfig
	Kafka         KafkaConfig
	Sink          SinkConfig
	Mappings      []*models.Mapping
}

type LogConfig struct {
	Level  string
	Format string
}

// ServerConfig configures the admin HTTP server (health and metrics).
type ServerConfig struct {
	Enabled bool
	Host    string
	Port    int
}

type ElasticsearchConfig struct {
	Addresses []string
	Username  string
	Password  string
	APIKey    string
}

type KafkaConfig struct {
	Brokers  []string
	GroupID  string
	ClientID string
}

type SinkConfig struct {
	WriteTimeoutSeconds int    // Upper bound for one write call, all chunks included
	Separator           string // Joins primary-key values into a document id
	UseRecordKey        bool   // Fall back to the record key when no primary key resolves
	ErrorPolicy         string // noop, throw or retry
	MaxRetries          int    // Retry budget for the retry policy
	RetryIntervalMS     int    // Pause before each requested retry
	MaxConcurrent       int    // In-flight bulk request bound
	TimestampField      string // Default clock field for mappings that set none
	TimestampFormat     string // Go time layout for the clock field
}

// Load loads configuration from environment and config file
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("ELASTICSINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("elasticsink")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/elasticsink/")
	v.AddConfigPath("$HOME/.elasticsink/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	cfg := &Config{
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Server: ServerConfig{
			Enabled: v.GetBool("server.enabled"),
			Host:    v.GetString("server.host"),
			Port:    v.GetInt("server.port"),
		},
		Elasticsearch: ElasticsearchConfig{
			Addresses: v.GetStringSlice("elasticsearch.addresses"),
			Username:  v.GetString("elasticsearch.username"),
			Password:  v.GetString("elasticsearch.password"),
			APIKey:    v.GetString("elasticsearch.api_key"),
		},
		Kafka: KafkaConfig{
			Brokers:  v.GetStringSlice("kafka.brokers"),
			GroupID:  v.GetString("kafka.group_id"),
			ClientID: v.GetString("kafka.client_id"),
		},
		Sink: SinkConfig{
			WriteTimeoutSeconds: v.GetInt("sink.write_timeout_seconds"),
			Separator:           v.GetString("sink.separator"),
			UseRecordKey:        v.GetBool("sink.use_record_key"),
			ErrorPolicy:         v.GetString("sink.error_policy"),
			MaxRetries:          v.GetInt("sink.max_retries"),
			RetryIntervalMS:     v.GetInt("sink.retry_interval_ms"),
			MaxConcurrent:       v.GetInt("sink.max_concurrent"),
			TimestampField:      v.GetString("sink.timestamp_field"),
			TimestampFormat:     v.GetString("sink.timestamp_format"),
		},
	}

	if err := v.UnmarshalKey("mappings", &cfg.Mappings); err != nil {
		return nil, fmt.Errorf("invalid mappings: %w", err)
	}

	// A global timestamp field acts as the default for mappings that set none.
	for _, m := range cfg.Mappings {
		if m.TimestampField == "" {
			m.TimestampField = cfg.Sink.TimestampField
		}
		if m.TimestampFormat == "" {
			m.TimestampFormat = cfg.Sink.TimestampFormat
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks settings the process cannot run without.
func (c *Config) Validate() error {
	if len(c.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("elasticsearch.addresses is required")
	}
	if c.Sink.WriteTimeoutSeconds <= 0 {
		return fmt.Errorf("sink.write_timeout_seconds must be positive")
	}
	switch strings.ToLower(c.Sink.ErrorPolicy) {
	case "noop", "throw", "retry":
	default:
		return fmt.Errorf("sink.error_policy must be one of noop, throw, retry (got %q)", c.Sink.ErrorPolicy)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Logging
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Admin server
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8083)

	// Elasticsearch
	v.SetDefault("elasticsearch.addresses", []string{"http://localhost:9200"})

	// Kafka
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.group_id", "elasticsink")
	v.SetDefault("kafka.client_id", "elasticsink")

	// Sink
	v.SetDefault("sink.write_timeout_seconds", 60)
	v.SetDefault("sink.separator", "-")
	v.SetDefault("sink.use_record_key", false)
	v.SetDefault("sink.error_policy", "throw")
	v.SetDefault("sink.max_retries", 5)
	v.SetDefault("sink.retry_interval_ms", 1000)
	v.SetDefault("sink.max_concurrent", 4)
}
