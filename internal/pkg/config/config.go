package config

import (
	"strconv"

	"github.com/ManuelReschke/CatalogFox/internal/pkg/env"
)

// Config carries every runtime setting the service needs. It is built once in
// main and handed to constructors; no component reads the environment on its
// own.
type Config struct {
	App            AppConfig
	Database       DatabaseConfig
	Cache          CacheConfig
	Upload         UploadConfig
	Queue          QueueConfig
	Import         ImportConfig
	AllowedOrigins string
}

// AppConfig holds the HTTP server settings
type AppConfig struct {
	Env  string
	Host string
	Port string
}

// DatabaseConfig holds the MySQL/MariaDB connection settings
type DatabaseConfig struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
}

// CacheConfig holds the Redis connection settings shared by the job queue,
// the progress publisher and the rate limiter storage
type CacheConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns the host:port address of the Redis server
func (c CacheConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// UploadConfig selects and configures the upload blob store
type UploadConfig struct {
	Driver string // "local" or "s3"
	Dir    string // base directory for the local driver
	S3     S3Config
}

// S3Config holds the settings for the S3-compatible upload store driver
type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // custom endpoint for MinIO/Ceph style services
}

// QueueConfig holds the background worker settings
type QueueConfig struct {
	Workers int
}

// ImportConfig holds the CSV import tuning knobs
type ImportConfig struct {
	BatchSize int
}

// Load builds the configuration from the environment. Server processes call
// env.SetupEnvFile first so .env values are visible; tests rely on plain
// process environment variables.
func Load() *Config {
	return &Config{
		App: AppConfig{
			Env:  env.GetEnv("APP_ENV", "prod"),
			Host: env.GetEnv("APP_HOST", "0.0.0.0"),
			Port: env.GetEnv("APP_PORT", "8080"),
		},
		Database: DatabaseConfig{
			User:     env.GetEnv("DB_USER", "root"),
			Password: env.GetEnv("DB_PASSWORD", ""),
			Host:     env.GetEnv("DB_HOST", "localhost"),
			Port:     env.GetEnv("DB_PORT", "3306"),
			Name:     env.GetEnv("DB_NAME", "catalogfox"),
		},
		Cache: CacheConfig{
			Host:     env.GetEnv("CACHE_HOST", "localhost"),
			Port:     env.GetEnv("CACHE_PORT", "6379"),
			Password: env.GetEnv("CACHE_PASSWORD", ""),
			DB:       envInt("CACHE_DB", 0),
		},
		Upload: UploadConfig{
			Driver: env.GetEnv("STORAGE_DRIVER", "local"),
			Dir:    env.GetEnv("UPLOAD_DIR", "./storage/uploads"),
			S3: S3Config{
				Region:          env.GetEnv("S3_REGION", "us-east-1"),
				Bucket:          env.GetEnv("S3_BUCKET", ""),
				AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
				SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
				Endpoint:        env.GetEnv("S3_ENDPOINT", ""),
			},
		},
		Queue: QueueConfig{
			Workers: envInt("QUEUE_WORKERS", 3),
		},
		Import: ImportConfig{
			BatchSize: envInt("IMPORT_BATCH_SIZE", 1000),
		},
		AllowedOrigins: env.GetEnv("ALLOWED_ORIGINS", "*"),
	}
}

// IsDev reports whether the app runs in development mode
func (c *Config) IsDev() bool {
	return c.App.Env == "dev"
}

func envInt(key string, def int) int {
	raw := env.GetEnv(key, "")
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}
