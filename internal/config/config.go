package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/EcoCode-hq/ecocode/internal/analysis"
)

// Config holds all application configuration
type Config struct {
	// Server
	Port int
	Env  string

	// Analysis heuristics
	Analysis AnalysisConfig

	// Database (empty disables report history)
	DatabaseURL string

	// NATS (empty disables report events)
	NATSURL string

	// Rate limiting for POST /analyze
	RateLimitRPS   float64
	RateLimitBurst int

	// Result cache
	CacheSize int
	CacheTTL  time.Duration

	// GitHub
	GitHubToken string
	WorkDir     string

	// Scan workers per worker process
	WorkerConcurrency int
}

// AnalysisConfig holds the heuristic constants and input limits
type AnalysisConfig struct {
	ElectricityRatePerKWh float64
	JoulesPerScorePoint   float64
	ExpensiveCalls        []string
	MaxSourceBytes        int
	MaxTreeDepth          int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	defaults := analysis.DefaultOptions()

	cfg := &Config{
		Port:        getEnvInt("PORT", 8000),
		Env:         getEnv("ENV", "development"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		NATSURL:     getEnv("NATS_URL", ""),
		GitHubToken: getEnv("GITHUB_TOKEN", ""),
		WorkDir:     getEnv("WORK_DIR", os.TempDir()),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 2),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 40),
		CacheSize:      getEnvInt("CACHE_SIZE", 512),
		CacheTTL:       time.Duration(getEnvInt("CACHE_TTL_SECONDS", 600)) * time.Second,

		Analysis: AnalysisConfig{
			ElectricityRatePerKWh: getEnvFloat("ELECTRICITY_RATE_PER_KWH", defaults.ElectricityRatePerKWh),
			JoulesPerScorePoint:   getEnvFloat("JOULES_PER_SCORE_POINT", defaults.JoulesPerScorePoint),
			ExpensiveCalls:        getEnvList("EXPENSIVE_CALLS", defaults.ExpensiveCalls),
			MaxSourceBytes:        getEnvInt("MAX_SOURCE_BYTES", defaults.MaxSourceBytes),
			MaxTreeDepth:          getEnvInt("MAX_TREE_DEPTH", defaults.MaxDepth),
		},
	}

	return cfg, nil
}

// Validate checks that configured values are usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.Analysis.ElectricityRatePerKWh < 0 {
		return fmt.Errorf("ELECTRICITY_RATE_PER_KWH must not be negative")
	}
	if c.Analysis.JoulesPerScorePoint < 0 {
		return fmt.Errorf("JOULES_PER_SCORE_POINT must not be negative")
	}
	if c.Analysis.MaxSourceBytes <= 0 {
		return fmt.Errorf("MAX_SOURCE_BYTES must be positive")
	}
	if c.Analysis.MaxTreeDepth <= 0 {
		return fmt.Errorf("MAX_TREE_DEPTH must be positive")
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must not be negative")
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive")
	}

	return nil
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AnalysisOptions converts the analysis section into engine options
func (c *Config) AnalysisOptions() analysis.Options {
	return analysis.Options{
		ElectricityRatePerKWh: c.Analysis.ElectricityRatePerKWh,
		JoulesPerScorePoint:   c.Analysis.JoulesPerScorePoint,
		ExpensiveCalls:        append([]string(nil), c.Analysis.ExpensiveCalls...),
		MaxSourceBytes:        c.Analysis.MaxSourceBytes,
		MaxDepth:              c.Analysis.MaxTreeDepth,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping blanks
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string(nil), defaultValue...)
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaultValue...)
	}
	return out
}
