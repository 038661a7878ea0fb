package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/courtside/schedule-engine/scheduling"
)

// Config holds every runtime parameter of the scheduling service. Policy
// knobs seed the server-wide defaults; requests can still override them
// per call.
type Config struct {
	DatabaseURL   string
	ServerPort    int
	RunSigningKey string

	SpareSlotsPerDay int
	MinRestMins      int
	MaxTeamImbalance int

	MinUtilization    float64
	MaxDailyImbalance int

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string
}

// Load reads configuration from environment variables, optionally seeded
// from a .env file. A missing .env is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	signingKey := os.Getenv("RUN_SIGNING_KEY")
	if signingKey == "" {
		return nil, fmt.Errorf("RUN_SIGNING_KEY environment variable is not set")
	}

	port, err := intFromEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	policy := scheduling.DefaultPolicyConfig()
	quality := scheduling.DefaultQualityThresholds()

	spare, err := intFromEnv("SPARE_SLOTS_PER_DAY", policy.SpareSlotsPerDay)
	if err != nil {
		return nil, err
	}
	rest, err := intFromEnv("MIN_REST_MINS", policy.Rules.MinRestMins)
	if err != nil {
		return nil, err
	}
	imbalance, err := intFromEnv("MAX_TEAM_IMBALANCE", policy.MaxTeamImbalance)
	if err != nil {
		return nil, err
	}
	if spare < 0 || rest < 0 || imbalance < 0 {
		return nil, fmt.Errorf("policy knobs must not be negative")
	}

	minUtil, err := floatFromEnv("MIN_UTILIZATION", quality.MinUtilization)
	if err != nil {
		return nil, err
	}
	if minUtil < 0 || minUtil > 100 {
		return nil, fmt.Errorf("MIN_UTILIZATION must be a percentage, got %g", minUtil)
	}
	dailyImbalance, err := intFromEnv("MAX_DAILY_IMBALANCE", quality.MaxDailyImbalance)
	if err != nil {
		return nil, err
	}
	if dailyImbalance < 0 {
		return nil, fmt.Errorf("MAX_DAILY_IMBALANCE must not be negative")
	}

	cfg := &Config{
		DatabaseURL:   dbURL,
		ServerPort:    port,
		RunSigningKey: signingKey,

		SpareSlotsPerDay: spare,
		MinRestMins:      rest,
		MaxTeamImbalance: imbalance,

		MinUtilization:    minUtil,
		MaxDailyImbalance: dailyImbalance,

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
	}

	return cfg, nil
}

// PolicyDefaults is the configuration applied to policy runs whose request
// does not carry one.
func (c *Config) PolicyDefaults() *scheduling.PolicyConfig {
	cfg := scheduling.DefaultPolicyConfig()
	cfg.SpareSlotsPerDay = c.SpareSlotsPerDay
	cfg.MaxTeamImbalance = c.MaxTeamImbalance
	cfg.Rules.MinRestMins = c.MinRestMins
	return &cfg
}

// PlacementDefaults is the rule set applied to auto-assign requests whose
// body does not carry one.
func (c *Config) PlacementDefaults() *scheduling.PlacementRules {
	rules := scheduling.DefaultPlacementRules()
	rules.MinRestMins = c.MinRestMins
	return &rules
}

// QualityDefaults is the threshold set for quality reports requested
// without overrides.
func (c *Config) QualityDefaults() *scheduling.QualityThresholds {
	t := scheduling.DefaultQualityThresholds()
	t.MinUtilization = c.MinUtilization
	t.MaxDailyImbalance = c.MaxDailyImbalance
	return &t
}

// R2Configured reports whether the snapshot archive credentials are
// complete. The service runs without them; runs then skip the upload.
func (c *Config) R2Configured() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" &&
		c.R2SecretAccessKey != "" && c.R2BucketName != ""
}

func intFromEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}
