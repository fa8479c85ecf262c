package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

var AppEnv Config

type Config struct {
	Port           string
	MongoURI       string
	DBName         string
	StoreDriver    string
	JWTSecret      string
	RequestTimeout time.Duration

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	IdempotencyTTL time.Duration

	SMTPHost      string
	SMTPPort      int
	SMTPUser      string
	SMTPPass      string
	MailFrom      string
	NotifyTimeout time.Duration

	LogLevel    string
	LogEncoding string
}

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not loaded:", err)
	}
	AppEnv = FromEnv()
}

// FromEnv reads the configuration from the process environment without touching .env.
func FromEnv() Config {
	return Config{
		Port:           getEnvOrDefault("PORT", "8080"),
		MongoURI:       getEnvOrDefault("MONGO_URI", ""),
		DBName:         getEnvOrDefault("DB_NAME", "storefront"),
		StoreDriver:    strings.ToLower(getEnvOrDefault("STORE_DRIVER", DriverMongo)),
		JWTSecret:      getEnvOrDefault("JWT_SECRET", ""),
		RequestTimeout: getDurationEnv("REQUEST_TIMEOUT", 15, time.Second),

		RedisAddr:      getEnvOrDefault("REDIS_ADDR", ""),
		RedisPassword:  getEnvOrDefault("REDIS_PASSWORD", ""),
		RedisDB:        getIntEnv("REDIS_DB", 0),
		IdempotencyTTL: getDurationEnv("IDEMPOTENCY_TTL", 24, time.Hour),

		SMTPHost:      getEnvOrDefault("SMTP_HOST", ""),
		SMTPPort:      getIntEnv("SMTP_PORT", 587),
		SMTPUser:      getEnvOrDefault("SMTP_USER", ""),
		SMTPPass:      getEnvOrDefault("SMTP_PASS", ""),
		MailFrom:      getEnvOrDefault("MAIL_FROM", "orders@storefront.local"),
		NotifyTimeout: getDurationEnv("NOTIFY_TIMEOUT", 10, time.Second),

		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
		LogEncoding: getEnvOrDefault("LOG_ENCODING", "json"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue int, unit time.Duration) time.Duration {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return time.Duration(parsed) * unit
		}
	}
	return time.Duration(defaultValue) * unit
}
