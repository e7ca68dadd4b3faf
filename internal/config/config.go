package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Database
	DBConnStr string

	// HTTP
	ListenAddr string
	APIToken   string
	JobSecret  string

	// Locking
	LockTimeout time.Duration

	// Scheduler (cron expressions)
	SettlementSchedule string
	YieldSchedule      string

	// Rate limiting
	RateLimitCeiling int
	RateLimitWindow  time.Duration
}

func Load() *Config {
	return &Config{
		DBConnStr:  dbConnStr(),
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),
		APIToken:   getEnv("API_TOKEN", "dev-token"),
		JobSecret:  getEnv("JOB_SECRET", "dev-job-secret"),

		LockTimeout: getEnvDuration("LOCK_TIMEOUT", 2*time.Second),

		// Settlement hourly, yield daily just after midnight
		SettlementSchedule: getEnv("SETTLEMENT_SCHEDULE", "0 * * * *"),
		YieldSchedule:      getEnv("YIELD_SCHEDULE", "5 0 * * *"),

		RateLimitCeiling: getEnvInt("RATE_LIMIT_CEILING", 10),
		RateLimitWindow:  getEnvDuration("RATE_LIMIT_WINDOW", time.Hour),
	}
}

// dbConnStr returns DB_CONN_STR if set, otherwise builds the connection
// string from individual vars (Docker friendly).
func dbConnStr() string {
	if conn := os.Getenv("DB_CONN_STR"); conn != "" {
		return conn
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_USER", "postgres"),
		getEnv("DB_PASSWORD", "postgres"),
		getEnv("DB_NAME", "lendflow"),
	)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
