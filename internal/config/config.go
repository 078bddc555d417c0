package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/skorenev/marketplace/internal/models"
)

type Config struct {
	ListenAddr string
	LogLevel   string

	DB_HOST     string
	DB_PORT     string
	DB_USER     string
	DB_PASSWORD string
	DB_NAME     string

	ACCESS_SECRET  string
	REFRESH_SECRET string
	STATE_SECRET   string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration

	CookieDomain string
	CookieSecure bool

	GOOGLE_CLIENT_ID     string
	GOOGLE_CLIENT_SECRET string
	GOOGLE_REDIRECT_URL  string

	KAFKA_ADDRESS string
	AuditTopic    string

	ES_URL      string
	ES_USER     string
	ES_PASSWORD string
	AuditIndex  string

	REDIS_ADDR      string
	RateLimitWindow time.Duration
	RateLimitMax    int
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	config := &Config{
		ListenAddr: envStr("LISTEN_ADDR", ":8080"),
		LogLevel:   envStr("LOG_LEVEL", "info"),

		DB_HOST:     os.Getenv("DB_HOST"),
		DB_PORT:     os.Getenv("DB_PORT"),
		DB_USER:     os.Getenv("DB_USER"),
		DB_PASSWORD: os.Getenv("DB_PASSWORD"),
		DB_NAME:     os.Getenv("DB_NAME"),

		ACCESS_SECRET:  os.Getenv("ACCESS_SECRET"),
		REFRESH_SECRET: os.Getenv("REFRESH_SECRET"),
		STATE_SECRET:   os.Getenv("STATE_SECRET"),
		AccessTTL:      time.Duration(envInt("ACCESS_TTL_MINUTES", 15)) * time.Minute,
		RefreshTTL:     time.Duration(envInt("REFRESH_TTL_DAYS", 30)) * 24 * time.Hour,

		CookieDomain: os.Getenv("COOKIE_DOMAIN"),
		CookieSecure: envBool("COOKIE_SECURE", false),

		GOOGLE_CLIENT_ID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GOOGLE_CLIENT_SECRET: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GOOGLE_REDIRECT_URL:  os.Getenv("GOOGLE_REDIRECT_URL"),

		KAFKA_ADDRESS: os.Getenv("KAFKA_ADDRESS"),
		AuditTopic:    envStr("AUDIT_TOPIC", "auth_events"),

		ES_URL:      os.Getenv("ES_URL"),
		ES_USER:     os.Getenv("ES_USER"),
		ES_PASSWORD: os.Getenv("ES_PASSWORD"),
		AuditIndex:  envStr("AUDIT_INDEX", "auth-audit"),

		REDIS_ADDR:      os.Getenv("REDIS_ADDR"),
		RateLimitWindow: time.Duration(envInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
		RateLimitMax:    envInt("RATE_LIMIT_MAX", 30),
	}

	if config.ACCESS_SECRET == "" || config.REFRESH_SECRET == "" {
		return nil, fmt.Errorf("ACCESS_SECRET and REFRESH_SECRET must be set")
	}

	return config, nil
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.DB_USER, cfg.DB_PASSWORD, cfg.DB_HOST, cfg.DB_PORT, cfg.DB_NAME,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("cannot connect to database: %w", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.RefreshToken{}, &models.ProviderAccount{}); err != nil {
		return nil, fmt.Errorf("cannot migrate schema: %w", err)
	}
	return db, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return def
}

func envBool(key string, def bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "TRUE", "yes":
		return true
	case "0", "false", "FALSE", "no":
		return false
	}
	return def
}
