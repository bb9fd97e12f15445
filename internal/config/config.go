package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by IONMIX_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("IONMIX_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// APIKey is the deployment-level key guarding /v1. Empty disables auth
// (local development only).
func APIKey() string {
	return os.Getenv("API_KEY")
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

// RateLimitRPS returns requests per second limit.
// Defaults to 10 if not set; solves are much heavier than CRUD calls.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 10
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// WarmStartEnabled controls seeding initial guesses from prior converged
// states. Defaults to true.
func WarmStartEnabled() bool {
	v := os.Getenv("WARM_START_ENABLED")
	if v == "" {
		return true
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return enabled
}

// RetentionMaxAge is how long solve runs are kept before pruning.
// Defaults to 90 days.
func RetentionMaxAge() time.Duration {
	days, err := strconv.Atoi(os.Getenv("RETENTION_DAYS"))
	if err != nil || days <= 0 {
		days = 90
	}
	return time.Duration(days) * 24 * time.Hour
}

// RetentionInterval is how often the retention pruner runs.
// Defaults to 1 hour.
func RetentionInterval() time.Duration {
	d, err := time.ParseDuration(os.Getenv("RETENTION_INTERVAL"))
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}
