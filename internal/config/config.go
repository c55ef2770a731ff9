package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DB     DBConfig
	MinIO  MinIOConfig
	JWT    JWTConfig
	Server ServerConfig
	SMS    SMSConfig
	Mail   MailConfig
	Jobs   JobsConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type MinIOConfig struct {
	Endpoint       string
	PublicEndpoint string
	AccessKey      string
	SecretKey      string
	Bucket         string
	UseSSL         bool
}

type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

type ServerConfig struct {
	Port string
}

// SMSConfig carries the gateway credentials. CountryCode replaces a
// leading trunk "0" when normalizing destination numbers.
type SMSConfig struct {
	GatewayURL  string
	APIID       string
	APIPassword string
	SenderID    string
	CountryCode string
	Timeout     time.Duration
}

type MailConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

type JobsConfig struct {
	AuditExportSpec         string
	NotificationCleanupSpec string
	NotificationMaxAge      time.Duration
}

func Load() *Config {
	return &Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "ekklesia"),
			Password: getEnv("DB_PASSWORD", "ekklesia_secret"),
			Name:     getEnv("DB_NAME", "ekklesia"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		MinIO: MinIOConfig{
			Endpoint:       getEnv("MINIO_ENDPOINT", "localhost:9000"),
			PublicEndpoint: getEnv("MINIO_PUBLIC_ENDPOINT", getEnv("MINIO_ENDPOINT", "localhost:9000")),
			AccessKey:      getEnv("MINIO_ACCESS_KEY", "ekklesia"),
			SecretKey:      getEnv("MINIO_SECRET_KEY", "ekklesia_secret"),
			Bucket:         getEnv("MINIO_BUCKET", "ekklesia"),
			UseSSL:         getEnvAsBool("MINIO_USE_SSL", false),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", "change-me-in-production"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		SMS: SMSConfig{
			GatewayURL:  getEnv("SMS_GATEWAY_URL", ""),
			APIID:       getEnv("SMS_API_ID", ""),
			APIPassword: getEnv("SMS_API_PASSWORD", ""),
			SenderID:    getEnv("SMS_SENDER_ID", "EKKLESIA"),
			CountryCode: getEnv("SMS_COUNTRY_CODE", "243"),
			Timeout:     getEnvAsDuration("SMS_TIMEOUT", 15*time.Second),
		},
		Mail: MailConfig{
			Host:     getEnv("MAIL_HOST", ""),
			Port:     getEnv("MAIL_PORT", "587"),
			Username: getEnv("MAIL_USERNAME", ""),
			Password: getEnv("MAIL_PASSWORD", ""),
			From:     getEnv("MAIL_FROM", "no-reply@ekklesia.local"),
		},
		Jobs: JobsConfig{
			AuditExportSpec:         getEnv("AUDIT_EXPORT_CRON", "0 * * * *"),
			NotificationCleanupSpec: getEnv("NOTIFICATION_CLEANUP_CRON", "30 3 * * *"),
			NotificationMaxAge:      getEnvAsDuration("NOTIFICATION_MAX_AGE", 90*24*time.Hour),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
