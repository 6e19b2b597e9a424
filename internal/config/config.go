package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
}

type MongoConfig struct {
	URI      string
	Database string
}

type Config struct {
	Port         string
	Postgres     PostgresConfig
	Mongo        MongoConfig
	KafkaBrokers []string
	JWTSecret    string
	ServiceName  string
	Version      string
}

// Default mirrors the pool limits the API has always run with: 10 connections, 30s idle.
func Default() Config {
	return Config{
		Port: "8080",
		Postgres: PostgresConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxIdleTime: 30 * time.Second,
		},
		Mongo: MongoConfig{
			Database: "bookstore-social",
		},
		ServiceName: "bookstore-api",
		Version:     "0.1.0",
	}
}

// Load reads the process environment.
func Load() (Config, error) {
	return FromLookup(os.LookupEnv)
}

func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	if v := get("PORT"); v != "" {
		cfg.Port = v
	}
	cfg.Postgres.URL = get("POSTGRES_URL")
	cfg.Mongo.URI = get("MONGO_URI")
	if v := get("MONGO_DATABASE"); v != "" {
		cfg.Mongo.Database = v
	}
	if v := get("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = strings.Split(v, ",")
	}
	cfg.JWTSecret = get("JWT_SECRET")

	var errs []error
	if v := get("DB_MAX_OPEN_CONNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			errs = append(errs, fmt.Errorf("DB_MAX_OPEN_CONNS must be a positive integer, got %q", v))
		} else {
			cfg.Postgres.MaxOpenConns = n
		}
	}
	if v := get("DB_MAX_IDLE_CONNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Errorf("DB_MAX_IDLE_CONNS must be a non-negative integer, got %q", v))
		} else {
			cfg.Postgres.MaxIdleConns = n
		}
	}
	if v := get("DB_CONN_MAX_IDLE_TIME"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("DB_CONN_MAX_IDLE_TIME: %w", err))
		} else {
			cfg.Postgres.ConnMaxIdleTime = d
		}
	}
	if cfg.Postgres.MaxIdleConns > cfg.Postgres.MaxOpenConns {
		cfg.Postgres.MaxIdleConns = cfg.Postgres.MaxOpenConns
	}

	return cfg, errors.Join(errs...)
}

// Require reports every listed setting that is empty.
func (c Config) Require(keys ...string) error {
	values := map[string]string{
		"POSTGRES_URL":  c.Postgres.URL,
		"MONGO_URI":     c.Mongo.URI,
		"JWT_SECRET":    c.JWTSecret,
		"KAFKA_BROKERS": strings.Join(c.KafkaBrokers, ","),
	}

	var errs []error
	for _, key := range keys {
		if values[key] == "" {
			errs = append(errs, fmt.Errorf("%s environment variable is required", key))
		}
	}
	return errors.Join(errs...)
}
