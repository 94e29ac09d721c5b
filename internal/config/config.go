package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application-level settings.
type Config struct {
	// Server
	ServerAddr string
	BaseURL    string // public base URL, used in verification-mail links

	// ComfyUI engine
	ComfyAddr       string        // host:port of the generation engine
	ComfyOutputDir  string        // shared output directory written by the engine
	GenerateTimeout time.Duration // max time a request blocks waiting for completion

	// Local directories
	OutputDir   string // stable output directory owned by this server
	UploadDir   string // inbound user uploads
	TemplateDir string // workflow template JSON documents

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Uploads
	PendingUploadTTL time.Duration // lifetime of a garment-swap upload token

	// Billing
	DailyFreeLimit int // free generations per user (or IP) per day

	// Rate limiting
	RateLimit       int
	RateLimitWindow time.Duration

	// PostgreSQL
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Auth
	JWTSecret  string // signs email verification tokens
	AdminToken string // Bearer token for admin API access

	// SMTP (verification mail)
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is honoured if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerAddr:       envOr("SERVER_ADDR", ":8080"),
		BaseURL:          envOr("BASE_URL", "http://localhost:8080"),
		ComfyAddr:        envOr("COMFY_ADDR", "127.0.0.1:8188"),
		ComfyOutputDir:   envOr("COMFY_OUTPUT", "/var/lib/comfyui/output"),
		GenerateTimeout:  envDurationOr("GENERATE_TIMEOUT", 3*time.Minute),
		OutputDir:        envOr("OUTPUT_DIR", "./data/output"),
		UploadDir:        envOr("UPLOAD_DIR", "./data/uploads"),
		TemplateDir:      envOr("TEMPLATE_DIR", "./templates"),
		RedisAddr:        envOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    envOr("REDIS_PASSWORD", ""),
		RedisDB:          envIntOr("REDIS_DB", 0),
		PendingUploadTTL: envDurationOr("PENDING_UPLOAD_TTL", 15*time.Minute),
		DailyFreeLimit:   envIntOr("DAILY_FREE_LIMIT", 10),
		RateLimit:        envIntOr("RATE_LIMIT", 30),
		RateLimitWindow:  envDurationOr("RATE_LIMIT_WINDOW", time.Minute),
		DBHost:           envOr("DB_HOST", "localhost"),
		DBPort:           envOr("DB_PORT", "5432"),
		DBUser:           envOr("DB_USER", "postgres"),
		DBPassword:       envOr("DB_PASSWORD", "postgres"),
		DBName:           envOr("DB_NAME", "genstudio"),
		DBSSLMode:        envOr("DB_SSLMODE", "disable"),
		JWTSecret:        envOr("JWT_SECRET", "dev-secret-change-me"),
		AdminToken:       envOr("ADMIN_TOKEN", ""),
		SMTPHost:         envOr("SMTP_HOST", ""),
		SMTPPort:         envIntOr("SMTP_PORT", 587),
		SMTPUsername:     envOr("SMTP_USERNAME", ""),
		SMTPPassword:     envOr("SMTP_PASSWORD", ""),
		SMTPFrom:         envOr("SMTP_FROM", "no-reply@genstudio.local"),
	}
}

// ─── helpers ───

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
