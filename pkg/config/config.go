// Package config loads process settings from the environment and resolves
// per-run research settings.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the settings of the server process. Research settings are
// resolved per run with Resolve.
type Config struct {
	GoogleApiKey   string
	DatabaseURL    string
	Port           string
	ChunkSize      int
	ChunkOverlap   int
	EmbeddingModel string
	CollectionName string
	ArchiveTopK    int

	// Connection pool sizing for DatabaseURL.
	DBMaxConns        int
	DBMinConns        int
	DBMaxConnIdleTime time.Duration
}

// LoadDotEnv reads a .env file from the working directory when one exists.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env file", "error", err)
	}
}

// Load reads the process settings from the environment.
func Load() *Config {
	LoadDotEnv()
	return LoadFrom(os.Getenv)
}

// LoadFrom reads the process settings through env.
func LoadFrom(env Lookup) *Config {
	return &Config{
		GoogleApiKey:   getEnv(env, "GOOGLE_API_KEY", ""),
		DatabaseURL:    getEnv(env, "DATABASE_URL", ""),
		Port:           getEnv(env, "PORT", "3000"),
		ChunkSize:      getEnvAsInt(env, "CHUNK_SIZE", 1000),
		ChunkOverlap:   getEnvAsInt(env, "CHUNK_OVERLAP", 200),
		EmbeddingModel: getEnv(env, "EMBEDDING_MODEL", "gemini-embedding-001"),
		CollectionName: getEnv(env, "COLLECTION_NAME", "research_reports"),
		ArchiveTopK:    getEnvAsInt(env, "ARCHIVE_TOP_K", 5),

		DBMaxConns:        getEnvAsInt(env, "DB_MAX_CONNS", 10),
		DBMinConns:        getEnvAsInt(env, "DB_MIN_CONNS", 2),
		DBMaxConnIdleTime: getEnvAsDuration(env, "DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
	}
}

// Lookup returns the value of an environment key, or "" when unset.
type Lookup func(key string) string

func getEnv(env Lookup, key, defaultValue string) string {
	if value := env(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(env Lookup, key string, defaultValue int) int {
	valueStr := env(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(env Lookup, key string, defaultValue time.Duration) time.Duration {
	valueStr := env(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value < 0 {
		return defaultValue
	}
	return value
}
