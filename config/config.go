// Package config loads and validates the docstore configuration from a
// YAML file and DOCSTORE_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for the docstore service. Presence of
// the mongodb URI and of dynamodb credentials decides which backend
// candidates the selector attempts; with neither configured the local
// file backend is the only candidate and always wins.
type Config struct {
	MongoDB struct {
		URI         string `mapstructure:"uri"`
		Database    string `mapstructure:"database" validate:"required_with=URI"`
		MaxPoolSize uint64 `mapstructure:"max_pool_size"`
	} `mapstructure:"mongodb"`

	DynamoDB struct {
		Region          string `mapstructure:"region"`
		Endpoint        string `mapstructure:"endpoint"`
		TablePrefix     string `mapstructure:"table_prefix"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key" validate:"required_with=AccessKeyID"`
	} `mapstructure:"dynamodb"`

	LocalFile struct {
		DataDir string `mapstructure:"data_dir" validate:"required"`
	} `mapstructure:"localfile"`

	Selector struct {
		ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"gt=0"`
		StartupCeiling time.Duration `mapstructure:"startup_ceiling" validate:"gt=0"`
	} `mapstructure:"selector"`

	DualWrite struct {
		Enabled bool `mapstructure:"enabled"`
		// Secondary names the mirror target: "secondary" (DynamoDB) or
		// "local".
		Secondary string `mapstructure:"secondary" validate:"omitempty,oneof=secondary local"`
	} `mapstructure:"dualwrite"`

	// CollectionsManifest points at the YAML file declaring collections,
	// id prefixes and index specs.
	CollectionsManifest string `mapstructure:"collections_manifest"`
}

// MongoConfigured reports whether the primary cloud backend should be
// attempted.
func (c *Config) MongoConfigured() bool {
	return strings.TrimSpace(c.MongoDB.URI) != ""
}

// DynamoConfigured reports whether the secondary cloud backend should be
// attempted. An explicit endpoint (dynamodb-local) counts as configured
// even without static credentials, which may come from the environment.
func (c *Config) DynamoConfigured() bool {
	return strings.TrimSpace(c.DynamoDB.AccessKeyID) != "" || strings.TrimSpace(c.DynamoDB.Endpoint) != ""
}

func setDefaults() {
	viper.SetDefault("mongodb.uri", "")
	viper.SetDefault("mongodb.database", "docstore")
	viper.SetDefault("mongodb.max_pool_size", 10)

	viper.SetDefault("dynamodb.region", "us-east-1")
	viper.SetDefault("dynamodb.endpoint", "")
	viper.SetDefault("dynamodb.table_prefix", "docstore_")
	viper.SetDefault("dynamodb.access_key_id", "")
	viper.SetDefault("dynamodb.secret_access_key", "")

	viper.SetDefault("localfile.data_dir", "./data")

	viper.SetDefault("selector.connect_timeout", 10*time.Second)
	viper.SetDefault("selector.startup_ceiling", 30*time.Second)

	viper.SetDefault("dualwrite.enabled", false)
	viper.SetDefault("dualwrite.secondary", "local")

	viper.SetDefault("collections_manifest", "collections.yaml")
}

// LoadConfig reads configuration from config.yaml (working directory or
// /etc/docstore) and the environment, then validates it. Validation
// failures are fatal and happen before any connection attempt.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/docstore")

	viper.SetEnvPrefix("DOCSTORE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; defaults and env vars apply.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks structural constraints plus the cross-field rules the
// struct tags cannot express.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.MongoConfigured() {
		uri := strings.TrimSpace(c.MongoDB.URI)
		if !strings.HasPrefix(uri, "mongodb://") && !strings.HasPrefix(uri, "mongodb+srv://") {
			return fmt.Errorf("invalid configuration: mongodb.uri %q must start with mongodb:// or mongodb+srv://", uri)
		}
	}
	if c.DynamoConfigured() && strings.TrimSpace(c.DynamoDB.Region) == "" {
		return fmt.Errorf("invalid configuration: dynamodb.region is required when dynamodb is configured")
	}
	if c.DualWrite.Enabled {
		if c.DualWrite.Secondary == "secondary" && !c.DynamoConfigured() {
			return fmt.Errorf("invalid configuration: dualwrite.secondary=secondary requires dynamodb credentials or endpoint")
		}
	}
	return nil
}
