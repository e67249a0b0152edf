package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL     string
	PollInterval    int // seconds
	ShutdownTimeout int // seconds
	SourceAPIURL    string
	SourceAPIToken  string
	TargetAPIURL    string
	TargetAPIToken  string
	PushRatePerSec  float64 // storefront push throttle
	PushBurst       int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	sourceURL := os.Getenv("SOURCE_API_URL")
	sourceToken := os.Getenv("SOURCE_API_TOKEN")
	if sourceURL == "" || sourceToken == "" {
		fmt.Println("Warning: SOURCE_API_URL or SOURCE_API_TOKEN not set, source API calls will not work")
	}

	targetURL := os.Getenv("TARGET_API_URL")
	targetToken := os.Getenv("TARGET_API_TOKEN")
	if targetURL == "" || targetToken == "" {
		fmt.Println("Warning: TARGET_API_URL or TARGET_API_TOKEN not set, value pushes will not work")
	}

	pushRate := 2.0
	if raw := os.Getenv("PUSH_RATE_PER_SEC"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("PUSH_RATE_PER_SEC must be a positive number")
		}
		pushRate = parsed
	}

	return &Config{
		DatabaseURL:     dbURL,
		PollInterval:    60, // run reconciliation every 60 seconds
		ShutdownTimeout: 30,
		SourceAPIURL:    sourceURL,
		SourceAPIToken:  sourceToken,
		TargetAPIURL:    targetURL,
		TargetAPIToken:  targetToken,
		PushRatePerSec:  pushRate,
		PushBurst:       5,
	}, nil
}
