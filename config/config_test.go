package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir switches the working directory for the duration of the test; it is
// the pre-Go-1.24 equivalent of t.Chdir.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Errorf("restore working directory: %v", err)
		}
	})
}

// validConfig returns a Config that passes validation; tests mutate the
// field under test.
func validConfig() *Config {
	cfg := &Config{}
	cfg.MongoDB.Database = "docstore"
	cfg.MongoDB.MaxPoolSize = 10
	cfg.DynamoDB.Region = "us-east-1"
	cfg.DynamoDB.TablePrefix = "docstore_"
	cfg.LocalFile.DataDir = "./data"
	cfg.Selector.ConnectTimeout = 10 * time.Second
	cfg.Selector.StartupCeiling = 30 * time.Second
	cfg.DualWrite.Secondary = "local"
	cfg.CollectionsManifest = "collections.yaml"
	return cfg
}

func TestLoadConfigDefaults(t *testing.T) {
	viper.Reset()
	chdir(t, t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "", cfg.MongoDB.URI)
	assert.Equal(t, "docstore", cfg.MongoDB.Database)
	assert.Equal(t, uint64(10), cfg.MongoDB.MaxPoolSize)
	assert.Equal(t, "us-east-1", cfg.DynamoDB.Region)
	assert.Equal(t, "docstore_", cfg.DynamoDB.TablePrefix)
	assert.Equal(t, "./data", cfg.LocalFile.DataDir)
	assert.Equal(t, 10*time.Second, cfg.Selector.ConnectTimeout)
	assert.Equal(t, 30*time.Second, cfg.Selector.StartupCeiling)
	assert.False(t, cfg.DualWrite.Enabled)
	assert.Equal(t, "local", cfg.DualWrite.Secondary)
	assert.Equal(t, "collections.yaml", cfg.CollectionsManifest)

	assert.False(t, cfg.MongoConfigured())
	assert.False(t, cfg.DynamoConfigured())
}

func TestLoadConfigFromFile(t *testing.T) {
	viper.Reset()
	dir := t.TempDir()
	chdir(t, dir)

	content := `
mongodb:
  uri: mongodb://db.internal:27017
  database: orders
dynamodb:
  endpoint: http://localhost:8000
selector:
  connect_timeout: 5s
dualwrite:
  enabled: true
  secondary: secondary
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "mongodb://db.internal:27017", cfg.MongoDB.URI)
	assert.Equal(t, "orders", cfg.MongoDB.Database)
	assert.Equal(t, 5*time.Second, cfg.Selector.ConnectTimeout)
	assert.True(t, cfg.DualWrite.Enabled)

	assert.True(t, cfg.MongoConfigured())
	assert.True(t, cfg.DynamoConfigured())
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	viper.Reset()
	chdir(t, t.TempDir())
	t.Setenv("DOCSTORE_MONGODB_URI", "mongodb+srv://cluster.example.net")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "mongodb+srv://cluster.example.net", cfg.MongoDB.URI)
	assert.True(t, cfg.MongoConfigured())
}

func TestValidateRejectsBadMongoURI(t *testing.T) {
	cfg := validConfig()
	cfg.MongoDB.URI = "http://not-a-mongo-uri"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mongodb.uri")
}

func TestValidateRejectsZeroTimeouts(t *testing.T) {
	cfg := validConfig()
	cfg.Selector.ConnectTimeout = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Selector.StartupCeiling = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownDualWriteTarget(t *testing.T) {
	cfg := validConfig()
	cfg.DualWrite.Secondary = "tertiary"
	assert.Error(t, cfg.Validate())
}

func TestValidateDualWriteSecondaryNeedsDynamo(t *testing.T) {
	cfg := validConfig()
	cfg.DualWrite.Enabled = true
	cfg.DualWrite.Secondary = "secondary"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dualwrite.secondary")

	// With dynamodb reachable the same config is valid.
	cfg.DynamoDB.Endpoint = "http://localhost:8000"
	assert.NoError(t, cfg.Validate())
}

func TestValidateDynamoRequiresRegion(t *testing.T) {
	cfg := validConfig()
	cfg.DynamoDB.Endpoint = "http://localhost:8000"
	cfg.DynamoDB.Region = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dynamodb.region")
}

func TestDynamoConfigured(t *testing.T) {
	cfg := validConfig()
	assert.False(t, cfg.DynamoConfigured())

	cfg.DynamoDB.AccessKeyID = "AKIAEXAMPLE"
	assert.True(t, cfg.DynamoConfigured())

	cfg = validConfig()
	cfg.DynamoDB.Endpoint = "http://localhost:8000"
	assert.True(t, cfg.DynamoConfigured())
}
