package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	Port           string
	UploadDir      string // Upload storage, served 1:1 under /uploads/
	MaxUploadBytes int64

	FFmpegPath         string
	FFmpegTimeout      time.Duration
	FFmpegMaxOutput    int64
	SweepInterval      time.Duration
	RetentionWindow    time.Duration
	SeparationTimeout  time.Duration
	SeparationPollWait time.Duration

	// 数据库配置
	DBDriver   string // mysql or sqlite
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	SQLitePath string

	// Replicate
	ReplicateAPIToken     string
	ReplicateBaseURL      string
	ReplicateModelVersion string

	// Redis配置
	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	TrackCacheTTL time.Duration

	// MinIO配置
	MinioEnabled   bool
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioRegion    string

	LogLevel string
	LogFile  string
}

// DefaultModelVersion is the lucataco/isolate-vocals model version.
const DefaultModelVersion = "7337965761899986348ef11352e82110757d9036a445582f6e9e436214f447f5"

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("90s", "10m").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment without touching .env files.
func FromEnv() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_MB", 50)) << 20,

		FFmpegPath:         getEnv("FFMPEG_PATH", "ffmpeg"),
		FFmpegTimeout:      getEnvDuration("FFMPEG_TIMEOUT", 120*time.Second),
		FFmpegMaxOutput:    int64(getEnvInt("FFMPEG_MAX_OUTPUT_MB", 50)) << 20,
		SweepInterval:      getEnvDuration("SWEEP_INTERVAL", time.Minute),
		RetentionWindow:    getEnvDuration("RETENTION_WINDOW", 10*time.Minute),
		SeparationTimeout:  getEnvDuration("SEPARATION_TIMEOUT", 10*time.Minute),
		SeparationPollWait: getEnvDuration("SEPARATION_POLL_INTERVAL", 2*time.Second),

		DBDriver:   strings.ToLower(getEnv("DB_DRIVER", "mysql")),
		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // For password, better not to have a hardcoded default
		DBName:     getEnv("DB_NAME", "safi"),
		SQLitePath: getEnv("SQLITE_PATH", "safi.db"),

		ReplicateAPIToken:     os.Getenv("REPLICATE_API_TOKEN"),
		ReplicateBaseURL:      strings.TrimRight(getEnv("REPLICATE_BASE_URL", "https://api.replicate.com"), "/"),
		ReplicateModelVersion: getEnv("REPLICATE_MODEL_VERSION", DefaultModelVersion),

		RedisEnabled:  getEnvBool("REDIS_ENABLED", false),
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		TrackCacheTTL: getEnvDuration("TRACK_CACHE_TTL", 30*time.Second),

		MinioEnabled:   getEnvBool("MINIO_ENABLED", false),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "safi"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
	}
}

// ListenAddr returns the address for http.Server.
func (c *Config) ListenAddr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}
