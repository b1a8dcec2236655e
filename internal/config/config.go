package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds application configuration values.
type Config struct {
	Env  string `validate:"required,oneof=dev prod"`
	HTTP struct {
		Addr string `validate:"required"`
	}
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
	DB struct {
		// DataDir is the application-data root against which relative
		// connection-string targets are resolved.
		DataDir string `validate:"required"`
		// BusyTimeout bounds how long the engine waits on a locked database.
		BusyTimeout time.Duration `validate:"min=0"`
		// TxWarnAfter is the age at which the janitor reports a still-active
		// transaction as potentially abandoned.
		TxWarnAfter time.Duration `validate:"min=0"`
		// Preload lists connection strings opened during startup.
		Preload []string
	}
}

var validate = validator.New()

// Load reads configuration from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	c.Env = getenv("ENV", "prod")
	c.HTTP.Addr = getenv("HTTP_ADDR", ":8080")
	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(getenv("LOG_FILE_LEVEL", "debug"))
	c.Log.File = getenv("LOG_FILE", "")
	c.DB.DataDir = getenv("DB_DATA_DIR", "data")
	c.DB.BusyTimeout = getdur("DB_BUSY_TIMEOUT", 5*time.Second)
	c.DB.TxWarnAfter = getdur("DB_TX_WARN_AFTER", 5*time.Minute)
	c.DB.Preload = getlist("DB_PRELOAD")

	if err := validate.Struct(c); err != nil {
		return Config{}, err
	}
	return c, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// getdur reads a duration value ("5s", "2m") with a plain-seconds fallback.
func getdur(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// getlist reads a comma-separated list, dropping empty entries.
func getlist(k string) []string {
	v := os.Getenv(k)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
