package config

import (
	"os"
	"strconv"

	"github.com/falstudio/falstudio/internal/mediacache"
	"github.com/falstudio/falstudio/internal/medium"
)

// Config is the full service configuration, read from the environment.
type Config struct {
	ListenAddr string

	// MediumDriver selects the persistence medium: memory, file, or s3.
	MediumDriver string
	DataDir      string
	// MediumCapacity caps the medium in bytes; 0 means unlimited.
	MediumCapacity int64

	CacheBudget int64

	UpstreamBaseURL string
	UpstreamAPIKey  string

	S3 medium.S3Config
}

// Load reads the configuration from the environment with defaults.
func Load() *Config {
	return &Config{
		ListenAddr:      getEnv("LISTEN_ADDR", ":8080"),
		MediumDriver:    getEnv("MEDIUM_DRIVER", "file"),
		DataDir:         getEnv("DATA_DIR", "./data"),
		MediumCapacity:  getEnvInt64("MEDIUM_CAPACITY_BYTES", 0),
		CacheBudget:     getEnvInt64("CACHE_BUDGET_BYTES", mediacache.DefaultBudget),
		UpstreamBaseURL: getEnv("FAL_QUEUE_URL", "https://queue.fal.run"),
		UpstreamAPIKey:  getEnv("FAL_API_KEY", ""),
		S3: medium.S3Config{
			Endpoint:        getEnv("S3_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getEnv("S3_ACCESS_KEY", "minioadmin"),
			SecretAccessKey: getEnv("S3_SECRET_KEY", "minioadmin"),
			Bucket:          getEnv("S3_BUCKET", "falstudio"),
			UseSSL:          getEnv("S3_USE_SSL", "false") == "true",
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return n
}
