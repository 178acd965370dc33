package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// Values come from the environment (optionally via a .env file) with
// sensible defaults for local development.
type Config struct {
	ServerAddr string // HTTP listen address, e.g. ":8080"

	// 播放引擎配置
	ClockTick      time.Duration // 墙钟/模拟媒体元素的 tick 周期
	SessionTTL     time.Duration // 会话快照在 Redis 中的保留时间
	ProbeWorkers   int           // 时长探测并发数
	ManifestDir    string        // 演示文稿清单目录（yaml）
	WatchManifests bool          // 是否用 fsnotify 热加载清单

	// 数据库配置
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MinIO配置
	MinioEndpoint      string
	MinioAccessKey     string
	MinioSecretKey     string
	MinioBucket        string
	MinioRegion        string
	MinioUseSSL        bool
	PresignExpiry      time.Duration // 预签名播放地址有效期
	JWTSecret          string
	SessionTokenExpiry time.Duration

	// 日志配置
	LogLevel  string
	LogPath   string
	LogMaxAge int
}

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

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// Attempt to load .env file. godotenv.Load() will not override existing env vars.
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		// 引擎默认 100ms tick，对应无媒体时钟段的墙钟轮询节奏
		ClockTick:      time.Duration(getEnvInt("CLOCK_TICK_MS", 100)) * time.Millisecond,
		SessionTTL:     time.Duration(getEnvInt("SESSION_TTL_HOURS", 24)) * time.Hour,
		ProbeWorkers:   getEnvInt("PROBE_WORKERS", 4),
		ManifestDir:    getEnv("MANIFEST_DIR", "manifests"),
		WatchManifests: getEnvBool("WATCH_MANIFESTS", true),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // For password, better not to have a hardcoded default
		DBName:     getEnv("DB_NAME", "scenecast"),

		// Redis配置，使用默认值
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:       getEnvInt("REDIS_DB", 0),     // 默认使用0号数据库

		MinioEndpoint:      getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey:     getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:     getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:        getEnv("MINIO_BUCKET", "scenecast"),
		MinioRegion:        getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:        getEnvBool("MINIO_USE_SSL", false),
		PresignExpiry:      time.Duration(getEnvInt("PRESIGN_EXPIRY_MINUTES", 120)) * time.Minute,
		JWTSecret:          getEnv("JWT_SECRET", "scenecast-dev-secret"),
		SessionTokenExpiry: time.Duration(getEnvInt("SESSION_TOKEN_HOURS", 12)) * time.Hour,

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPath:   getEnv("LOG_PATH", ""),
		LogMaxAge: getEnvInt("LOG_MAX_AGE", 7),
	}
}
