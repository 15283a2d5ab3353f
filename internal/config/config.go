package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	// Server
	Port        string
	Env         string
	CORSOrigins []string

	// Database
	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBPath     string

	// JWT
	JWTSecret        string
	JWTExpirationDur time.Duration

	// Budget engine
	Timezone              string
	DefaultAlertThreshold decimal.Decimal
	RolloverLead          time.Duration

	// N8N chat bot webhook; empty disables push notifications.
	N8NWebhookURL     string
	N8NWebhookTimeout time.Duration
}

// EngineOverlay is the optional YAML file operators use to tune budget jobs
// without touching the process environment.
type EngineOverlay struct {
	Timezone              string `yaml:"timezone"`
	DefaultAlertThreshold string `yaml:"default_alert_threshold"`
	RolloverLead          string `yaml:"rollover_lead"`
	N8NWebhookURL         string `yaml:"n8n_webhook_url"`
}

var appConfig *Config

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if not already loaded
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	config := &Config{
		// Server
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),

		// Database
		DBDriver:   getEnv("DB_DRIVER", "postgres"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "zapgastos"),
		DBPassword: getEnv("DB_PASSWORD", "zapgastos"),
		DBName:     getEnv("DB_NAME", "zapgastos"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		DBPath:     getEnv("DB_PATH", "zapgastos.db"),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "fallback-secret-key-for-dev-only"),

		Timezone:      getEnv("APP_TIMEZONE", "UTC"),
		N8NWebhookURL: getEnv("N8N_WEBHOOK_URL", ""),
	}

	config.JWTExpirationDur = getDuration("JWT_EXPIRES_IN", 24*time.Hour)
	config.RolloverLead = getDuration("BUDGET_ROLLOVER_LEAD", 72*time.Hour)
	config.N8NWebhookTimeout = getDuration("N8N_WEBHOOK_TIMEOUT", 5*time.Second)

	threshold, err := parseThreshold(getEnv("BUDGET_DEFAULT_ALERT_THRESHOLD", "80"))
	if err != nil {
		return nil, fmt.Errorf("invalid BUDGET_DEFAULT_ALERT_THRESHOLD: %w", err)
	}
	config.DefaultAlertThreshold = threshold

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := config.ApplyOverlayFile(path); err != nil {
			return nil, err
		}
	}

	if _, err := config.Location(); err != nil {
		return nil, err
	}

	appConfig = config
	return config, nil
}

// Get returns the application configuration
func Get() *Config {
	if appConfig == nil {
		var err error
		appConfig, err = Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	return appConfig
}

// Location resolves the configured timezone used for period boundaries.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid APP_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ApplyOverlayFile reads a YAML overlay and applies the non-empty fields.
func (c *Config) ApplyOverlayFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var overlay EngineOverlay
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return c.ApplyOverlay(overlay)
}

// ApplyOverlay merges an overlay into the config. Empty fields are ignored.
func (c *Config) ApplyOverlay(o EngineOverlay) error {
	if o.Timezone != "" {
		c.Timezone = o.Timezone
	}
	if o.DefaultAlertThreshold != "" {
		threshold, err := parseThreshold(o.DefaultAlertThreshold)
		if err != nil {
			return fmt.Errorf("invalid default_alert_threshold: %w", err)
		}
		c.DefaultAlertThreshold = threshold
	}
	if o.RolloverLead != "" {
		lead, err := time.ParseDuration(o.RolloverLead)
		if err != nil {
			return fmt.Errorf("invalid rollover_lead: %w", err)
		}
		c.RolloverLead = lead
	}
	if o.N8NWebhookURL != "" {
		c.N8NWebhookURL = o.N8NWebhookURL
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	// Plain integers are read as hours, matching the old cron scripts.
	if hours, err := strconv.Atoi(raw); err == nil {
		return time.Duration(hours) * time.Hour
	}
	log.Printf("Warning: invalid %s value '%s', falling back to %s\n", key, raw, fallback)
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseThreshold accepts a percentage in (0, 100].
func parseThreshold(raw string) (decimal.Decimal, error) {
	threshold, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if !threshold.IsPositive() || threshold.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("%s is outside (0, 100]", raw)
	}
	return threshold, nil
}
