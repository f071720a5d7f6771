package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config stores the control-plane configuration. Values come from the
// environment, optionally seeded from a .env file.
type Config struct {
	// HTTP
	ListenAddr string
	APIKey     string // shared secret required on mutating endpoints

	// Discord gateway
	DiscordToken string

	// Lavalink node
	LavalinkName     string
	LavalinkAddress  string
	LavalinkPassword string
	LavalinkSecure   bool

	// Redis (player state store). Leave RedisHost empty to fall back to
	// the in-process store.
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MySQL (persisted player settings). Leave DBName empty to disable.
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Logging
	LogLevel string
	LogPath  string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() does not override variables already present in the
	// environment.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}

	return &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),
		APIKey:     os.Getenv("API_KEY"),

		DiscordToken: os.Getenv("DISCORD_TOKEN"),

		LavalinkName:     getEnv("LAVALINK_NAME", "main"),
		LavalinkAddress:  getEnv("LAVALINK_ADDRESS", "127.0.0.1:2333"),
		LavalinkPassword: getEnv("LAVALINK_PASSWORD", "youshallnotpass"),
		LavalinkSecure:   getEnvBool("LAVALINK_SECURE", false),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogPath:  getEnv("LOG_PATH", ""),
	}
}
