package config

import (
	"log/slog"
	"os"
	"runtime"
	"strconv"
)

// EngineConfig holds the engine executable path and its UCI options.
type EngineConfig struct {
	EnginePath string
	Options    map[string]string
}

// LoadEngineConfig loads the engine configuration from environment
// variables. Hash and thread count default to values derived from the host.
func LoadEngineConfig() *EngineConfig {
	return &EngineConfig{
		EnginePath: getEnvMust("GAMBIT_ENGINE_PATH"),
		Options:    engineOptions(),
	}
}

// engineOptions picks engine defaults: all but one CPU thread, and a hash
// size overridable via environment.
func engineOptions() map[string]string {
	threads := runtime.NumCPU() - 1
	if threads < 1 {
		threads = 1
	}

	hashMB := 256
	if value := os.Getenv("GAMBIT_ENGINE_HASH_MB"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 1 {
			slog.Error("Invalid GAMBIT_ENGINE_HASH_MB", "value", value)
			os.Exit(1)
		}
		hashMB = parsed
	}

	return map[string]string{
		"Hash":    strconv.Itoa(hashMB),
		"Threads": strconv.Itoa(threads),
	}
}

// BookServerConfig holds all configuration for the analysis book server.
type BookServerConfig struct {
	ServerHost        string
	ServerPort        string
	PostgresURL       string
	RedisURL          string
	Token             string
	BasicAuthUsername string
	BasicAuthPassword string
}

// LoadBookServerConfig loads the book server configuration from environment
// variables.
func LoadBookServerConfig() *BookServerConfig {
	return &BookServerConfig{
		ServerHost:        getEnvMust("GAMBIT_BOOK_SERVER_HOST"),
		ServerPort:        getEnvMust("GAMBIT_BOOK_SERVER_PORT"),
		PostgresURL:       getEnvMust("GAMBIT_POSTGRES_URL"),
		RedisURL:          getEnvMust("GAMBIT_REDIS_URL"),
		Token:             getEnvMust("GAMBIT_BOOK_SERVER_TOKEN"),
		BasicAuthUsername: getEnvMust("GAMBIT_BOOK_SERVER_BASIC_AUTH_USER"),
		BasicAuthPassword: getEnvMust("GAMBIT_BOOK_SERVER_BASIC_AUTH_PASS"),
	}
}

// BookClientConfig holds connection details for the analysis book server.
type BookClientConfig struct {
	ServerURL string
	Token     string
}

// LoadBookClientConfig loads the book client configuration. The book is
// optional: it returns nil when no server URL is configured.
func LoadBookClientConfig() *BookClientConfig {
	serverURL := os.Getenv("GAMBIT_BOOK_SERVER_URL")
	if serverURL == "" {
		return nil
	}

	return &BookClientConfig{
		ServerURL: serverURL,
		Token:     getEnvMust("GAMBIT_BOOK_SERVER_TOKEN"),
	}
}

// getEnvMust either returns the environment variable or logs a fatal error
// if it is not set.
func getEnvMust(key string) string {
	value := os.Getenv(key)
	if value == "" {
		slog.Error("Environment variable is not set", "key", key)
		os.Exit(1)
	}
	return value
}
