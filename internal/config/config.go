package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // TIMEZONE must resolve on hosts without zoneinfo

	"budgetflow/internal/log"
	"budgetflow/internal/period"
)

type Config struct {
	// HTTP Server
	Port           string
	RateLimitRPS   float64
	RateLimitBurst int

	// Database
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Calendar
	Timezone  string
	WeekStart string

	// Alert rules
	SpendSource           string
	WarningPercent        float64
	ExceededPercent       float64
	AnomalyFactor         float64
	AnomalyMinSamples     int
	AnomalyLookbackMonths int
	BurstThreshold        int
	BurstWindow           time.Duration
	EvalConcurrency       int
	CheckInterval         time.Duration // zero disables scheduled checks

	// Notifier
	NotifyBreakerFailures int
	NotifyBreakerTimeout  time.Duration

	// Google Sheets alert log
	GoogleSpreadsheetID   string
	GoogleAlertsSheetName string

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8081"),
		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 20),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/budgetflow.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "budgetflow"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "alert_notifications"),

		Timezone:  getEnv("TIMEZONE", "UTC"),
		WeekStart: getEnv("WEEK_START", "monday"),

		SpendSource:           getEnv("SPEND_SOURCE", "ledger"),
		WarningPercent:        getEnvFloat("WARNING_PERCENT", 70),
		ExceededPercent:       getEnvFloat("EXCEEDED_PERCENT", 100),
		AnomalyFactor:         getEnvFloat("ANOMALY_FACTOR", 1.5),
		AnomalyMinSamples:     getEnvInt("ANOMALY_MIN_SAMPLES", 3),
		AnomalyLookbackMonths: getEnvInt("ANOMALY_LOOKBACK_MONTHS", 3),
		BurstThreshold:        getEnvInt("BURST_THRESHOLD", 10),
		BurstWindow:           getEnvDuration("BURST_WINDOW", 24*time.Hour),
		EvalConcurrency:       getEnvInt("EVAL_CONCURRENCY", 4),
		CheckInterval:         getEnvDuration("CHECK_INTERVAL", 0),

		NotifyBreakerFailures: getEnvInt("NOTIFY_BREAKER_FAILURES", 5),
		NotifyBreakerTimeout:  getEnvDuration("NOTIFY_BREAKER_TIMEOUT", 30*time.Second),

		GoogleSpreadsheetID:   getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleAlertsSheetName: getEnv("GOOGLE_ALERTS_SHEET_NAME", "Alerts"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}
	if c.RateLimitRPS <= 0 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %v: must be positive", c.RateLimitRPS))
	}
	if c.RateLimitBurst < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit burst %d: must be at least 1", c.RateLimitBurst))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}
	if _, err := period.ParseWeekStart(c.WeekStart); err != nil {
		errors = append(errors, fmt.Sprintf("invalid week start '%s': must be 'monday' or 'sunday'", c.WeekStart))
	}

	if c.SpendSource != "ledger" && c.SpendSource != "live" {
		errors = append(errors, fmt.Sprintf("invalid spend source '%s': must be 'ledger' or 'live'", c.SpendSource))
	}
	if c.ExceededPercent <= 0 {
		errors = append(errors, fmt.Sprintf("invalid exceeded percent %v: must be positive", c.ExceededPercent))
	}
	if c.WarningPercent <= 0 || c.WarningPercent >= c.ExceededPercent {
		errors = append(errors, fmt.Sprintf("invalid warning percent %v: must be positive and below the exceeded percent", c.WarningPercent))
	}
	if c.AnomalyFactor <= 1 {
		errors = append(errors, fmt.Sprintf("invalid anomaly factor %v: must be greater than 1", c.AnomalyFactor))
	}
	if c.AnomalyMinSamples < 1 {
		errors = append(errors, fmt.Sprintf("invalid anomaly min samples %d: must be at least 1", c.AnomalyMinSamples))
	}
	if c.AnomalyLookbackMonths < 1 || c.AnomalyLookbackMonths > 24 {
		errors = append(errors, fmt.Sprintf("invalid anomaly lookback %d: must be between 1 and 24 months", c.AnomalyLookbackMonths))
	}
	if c.BurstThreshold < 1 {
		errors = append(errors, fmt.Sprintf("invalid burst threshold %d: must be at least 1", c.BurstThreshold))
	}
	if c.BurstWindow < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid burst window %v: must be at least 1 minute", c.BurstWindow))
	}
	if c.EvalConcurrency < 1 || c.EvalConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid evaluation concurrency %d: must be between 1 and 64", c.EvalConcurrency))
	}
	if c.CheckInterval != 0 && c.CheckInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid check interval %v: must be 0 or at least 1 minute", c.CheckInterval))
	}

	if c.NotifyBreakerFailures < 1 {
		errors = append(errors, fmt.Sprintf("invalid notifier breaker failures %d: must be at least 1", c.NotifyBreakerFailures))
	}
	if c.NotifyBreakerTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid notifier breaker timeout %v: must be at least 1 second", c.NotifyBreakerTimeout))
	}

	if c.GoogleSpreadsheetID != "" && strings.TrimSpace(c.GoogleAlertsSheetName) == "" {
		errors = append(errors, "Google alerts sheet name is required when a spreadsheet ID is set")
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, fmt.Sprintf("invalid log level '%s'", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// Calendar builds the bucketing calendar. Call after Validate.
func (c *Config) Calendar() period.Calendar {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		loc = time.UTC
	}
	weekStart, _ := period.ParseWeekStart(c.WeekStart)
	return period.NewCalendar(loc, weekStart)
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
