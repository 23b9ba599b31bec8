package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort       string
	AppMode       string
	DBHost        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBPort        string
	JWTSecret     string
	RedisHost     string
	RedisPort     string
	RedisPassword string

	// CRM bridge
	CRMSocketURL      string
	CRMDoctorAPIBase  string
	CRMStaffAPIBase   string
	CRMAPIToken       string
	CRMThreadPrefix   string
	CRMActiveWindow   time.Duration
	CRMRescanInterval time.Duration
	CRMReconnectDelay time.Duration

	// Push notifications
	PushChannel string

	// Attachment storage
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppPort:       getEnv("APP_PORT", "8080"),
		AppMode:       getEnv("APP_MODE", "debug"),
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBUser:        getEnv("DB_USER", "postgres"),
		DBPassword:    getEnv("DB_PASSWORD", "postgres"),
		DBName:        getEnv("DB_NAME", "medilink_chat"),
		DBPort:        getEnv("DB_PORT", "5432"),
		JWTSecret:     getEnv("JWT_SECRET", "change-me"),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		CRMSocketURL:      getEnv("CRM_SOCKET_URL", "ws://localhost:9090/socket"),
		CRMDoctorAPIBase:  getEnv("CRM_DOCTOR_API_BASE", "http://localhost:9090/api/doctor"),
		CRMStaffAPIBase:   getEnv("CRM_STAFF_API_BASE", "http://localhost:9090/api/staff"),
		CRMAPIToken:       getEnv("CRM_API_TOKEN", ""),
		CRMThreadPrefix:   getEnv("CRM_THREAD_PREFIX", "CRM-TH-"),
		CRMActiveWindow:   getEnvAsDuration("CRM_ACTIVE_WINDOW", 72*time.Hour),
		CRMRescanInterval: getEnvAsDuration("CRM_RESCAN_INTERVAL", 30*time.Second),
		CRMReconnectDelay: getEnvAsDuration("CRM_RECONNECT_DELAY", 5*time.Second),

		PushChannel: getEnv("PUSH_CHANNEL", "push:wake"),

		S3Region:    getEnv("S3_REGION", "ap-southeast-1"),
		S3Bucket:    getEnv("S3_BUCKET", "medilink-attachments"),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}
