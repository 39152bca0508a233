// Package config loads the scanner settings from a properties file and
// ORDERSPLIT_ environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"ordersplit/internal/logger"
)

const (
	EnvPrefix         = "ORDERSPLIT"
	DefaultConfigName = "scan"
	DefaultKafkaTopic = "ordersplit.dispatch"

	DefaultJournalTimeout = 5 * time.Second
)

var ErrInvalid = errors.New("invalid config")

// Config is loaded once at start-up and never mutated afterwards.
type Config struct {
	OutputDirectory string
	InputDirectory  string
	InputFilePrefix string
	FileExtension   string

	Workers         int
	MetricsAddress  string
	LedgerDirectory string
	JournalPath     string
	JournalTimeout  time.Duration
	Kafka           KafkaConfig
	Log             logger.Config
}

type KafkaConfig struct {
	Bootstrap string
	Topic     string
	TxID      string
}

// Load reads configuration.
// Priority (highest to lowest):
// 1. Environment variables with ORDERSPLIT_ prefix (e.g. ORDERSPLIT_INPUT_DIRECTORY)
// 2. the properties file at path, or scan.properties in the working directory
// 3. Built-in defaults
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("properties")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("properties")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		OutputDirectory: v.GetString("output_directory"),
		InputDirectory:  v.GetString("input_directory"),
		InputFilePrefix: v.GetString("input_file_name_prefix"),
		FileExtension:   v.GetString("file_extension"),
		Workers:         v.GetInt("workers"),
		MetricsAddress:  v.GetString("metrics_address"),
		LedgerDirectory: v.GetString("ledger_directory"),
		JournalPath:     v.GetString("journal_path"),
		JournalTimeout:  v.GetDuration("journal_timeout"),
		Kafka: KafkaConfig{
			Bootstrap: v.GetString("kafka_bootstrap"),
			Topic:     v.GetString("kafka_topic"),
			TxID:      v.GetString("kafka_tx_id"),
		},
		Log: logger.Config{
			Level:  v.GetString("log_level"),
			Format: v.GetString("log_format"),
			Output: v.GetString("log_output"),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := logger.DefaultConfig()
	v.SetDefault("workers", 1)
	v.SetDefault("kafka_topic", DefaultKafkaTopic)
	v.SetDefault("journal_timeout", DefaultJournalTimeout)
	v.SetDefault("log_level", def.Level)
	v.SetDefault("log_format", def.Format)
	v.SetDefault("log_output", def.Output)
	for _, k := range []string{"output_directory", "input_directory", "input_file_name_prefix", "file_extension",
		"metrics_address", "ledger_directory", "journal_path", "kafka_bootstrap", "kafka_tx_id"} {
		v.SetDefault(k, "")
	}
}

func (c *Config) validate() error {
	required := []struct{ key, val string }{
		{"output_directory", c.OutputDirectory},
		{"input_directory", c.InputDirectory},
		{"input_file_name_prefix", c.InputFilePrefix},
		{"file_extension", c.FileExtension},
	}
	for _, r := range required {
		if strings.TrimSpace(r.val) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalid, r.key)
		}
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive", ErrInvalid)
	}
	if c.JournalTimeout <= 0 {
		return fmt.Errorf("%w: journal_timeout must be positive", ErrInvalid)
	}
	if c.Kafka.TxID != "" && c.Kafka.Bootstrap == "" {
		return fmt.Errorf("%w: kafka_tx_id requires kafka_bootstrap", ErrInvalid)
	}
	return nil
}
