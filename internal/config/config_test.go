package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestFromLookup(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := FromLookup(lookupFrom(nil))
		require.NoError(t, err)

		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, 10, cfg.Postgres.MaxOpenConns)
		assert.Equal(t, 30*time.Second, cfg.Postgres.ConnMaxIdleTime)
		assert.Equal(t, "bookstore-social", cfg.Mongo.Database)
		assert.Empty(t, cfg.KafkaBrokers)
	})

	t.Run("overrides", func(t *testing.T) {
		cfg, err := FromLookup(lookupFrom(map[string]string{
			"PORT":                  "9000",
			"POSTGRES_URL":          "postgres://bookstore@localhost/bookstore",
			"MONGO_URI":             "mongodb://localhost:27017",
			"MONGO_DATABASE":        "social",
			"KAFKA_BROKERS":         "kafka-1:9092,kafka-2:9092",
			"JWT_SECRET":            "s3cret",
			"DB_MAX_OPEN_CONNS":     "4",
			"DB_MAX_IDLE_CONNS":     "8",
			"DB_CONN_MAX_IDLE_TIME": "1m",
		}))
		require.NoError(t, err)

		assert.Equal(t, "9000", cfg.Port)
		assert.Equal(t, "social", cfg.Mongo.Database)
		assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
		assert.Equal(t, 4, cfg.Postgres.MaxOpenConns)
		assert.Equal(t, 4, cfg.Postgres.MaxIdleConns, "idle connections are capped by open connections")
		assert.Equal(t, time.Minute, cfg.Postgres.ConnMaxIdleTime)
		assert.NoError(t, cfg.Require("POSTGRES_URL", "MONGO_URI", "JWT_SECRET", "KAFKA_BROKERS"))
	})

	t.Run("invalid pool settings", func(t *testing.T) {
		_, err := FromLookup(lookupFrom(map[string]string{
			"DB_MAX_OPEN_CONNS":     "zero",
			"DB_CONN_MAX_IDLE_TIME": "soon",
		}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DB_MAX_OPEN_CONNS")
		assert.Contains(t, err.Error(), "DB_CONN_MAX_IDLE_TIME")
	})
}

func TestRequire(t *testing.T) {
	cfg := Default()
	err := cfg.Require("POSTGRES_URL", "JWT_SECRET")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_URL environment variable is required")
	assert.Contains(t, err.Error(), "JWT_SECRET environment variable is required")
}
