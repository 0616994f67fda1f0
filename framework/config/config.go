package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the kernel settings read from the environment.
type Config struct {
	// Name is shown in logs and the banner.
	Name string
	// Env is local, production or testing.
	Env   string
	Debug bool
	Port  string

	// LogLevel is a zap level name. LogFormat is json or console.
	LogLevel  string
	LogFormat string

	// Components is the path of the YAML component declarations, if any.
	Components string
	// Properties is the path of the properties file loaded on start, if any.
	Properties string
}

// Load reads .env (if present) and populates a Config from environment variables.
// Call once at bootstrap: cfg := config.Load()
func Load(envFiles ...string) *Config {
	files := envFiles
	if len(files) == 0 {
		files = []string{".env"}
	}
	// Non-fatal: .env may not exist in production
	_ = godotenv.Load(files...)

	return &Config{
		Name:       env("KERNEL_NAME", "go-kernel"),
		Env:        env("KERNEL_ENV", "local"),
		Debug:      envBool("KERNEL_DEBUG", false),
		Port:       env("KERNEL_PORT", "8000"),
		LogLevel:   env("KERNEL_LOG_LEVEL", "info"),
		LogFormat:  env("KERNEL_LOG_FORMAT", "console"),
		Components: env("KERNEL_COMPONENTS", ""),
		Properties: env("KERNEL_PROPERTIES", ""),
	}
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string { return ":" + c.Port }

// Production reports whether the kernel runs in the production environment.
func (c *Config) Production() bool { return c.Env == "production" }

// Get returns a raw env value, falling back to defaultVal.
func Get(key, defaultVal string) string {
	return env(key, defaultVal)
}

// ── helpers ─────────────────────────────────────────────────────────────────

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
