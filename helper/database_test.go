package helper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setConfigEnvs(t *testing.T) {
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_DATABASE", "aiscope")
	t.Setenv("DB_USERNAME", "user")
	t.Setenv("DB_PASSWORD", "password")
	t.Setenv("DB_SCHEMA", "")
	t.Setenv("DB_SSLMODE", "")
}

func TestNewDatabaseConfiguration(t *testing.T) {
	t.Run("Valid configuration from environment", func(t *testing.T) {
		setConfigEnvs(t)

		config, err := NewDatabaseConfiguration()
		assert.NoError(t, err, "Expected NewDatabaseConfiguration to not return an error")
		require.NotNil(t, config)
		assert.Equal(t, "localhost", config.Host, "Expected host to match")
		assert.Equal(t, "5432", config.Port, "Expected port to match")
		assert.Equal(t, "public", config.Schema, "Expected schema to default to public")
		assert.Equal(t, "disable", config.SSLMode, "Expected sslmode to default to disable")
	})

	t.Run("Missing required variable fails", func(t *testing.T) {
		setConfigEnvs(t)
		t.Setenv("DB_PASSWORD", "")

		_, err := NewDatabaseConfiguration()
		assert.Error(t, err, "Expected error for missing password")
		assert.Contains(t, err.Error(), "missing required database configuration", "Expected specific error message")
	})
}

func TestConnectionString(t *testing.T) {
	config := &DatabaseConfiguration{
		Host:     "localhost",
		Port:     "5432",
		Database: "aiscope",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	assert.Equal(t,
		"host=localhost port=5432 dbname=aiscope user=user password=password search_path=public sslmode=disable",
		config.ConnectionString(),
		"Expected lib/pq connection string format",
	)
}
