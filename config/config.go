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
	ServerAddr string

	// MinIO 配置
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	// LibraryBaseURL 曲目定位符的公共前缀，例如 http://127.0.0.1:9000/music
	// 定位符 = LibraryBaseURL + "/" + 对象键
	LibraryBaseURL  string
	LocalLibraryDir string // 本地曲库目录（可选），用于 file 模式标签读取和缓存失效监听

	// 标签读取模式: auto, object, http, file, none
	TagReaderMode string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	TagCacheTTL   time.Duration // 标签二级缓存过期时间，0 表示不启用 Redis 缓存

	// 日志配置
	LogLevel      string
	LogPath       string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int

	// 播放配置
	AudioEnabled     bool
	MprisEnabled     bool
	PreloadThreshold time.Duration // 距离曲目结束多久开始预加载下一首
	SeekOffset       time.Duration // 快进/快退默认步长
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

// getEnvBool 解析布尔环境变量，无法解析时返回默认值
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration 解析时长环境变量，支持 "20s" 这种写法，也支持纯数字（秒）
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
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

// FromEnv 只读取当前环境变量构建配置，不加载 .env
func FromEnv() *Config {
	endpoint := getEnv("MINIO_ENDPOINT", "127.0.0.1:9000")
	bucket := getEnv("MINIO_BUCKET", "music")
	useSSL := getEnvBool("MINIO_USE_SSL", false)

	scheme := "http"
	if useSSL {
		scheme = "https"
	}
	defaultBaseURL := scheme + "://" + endpoint + "/" + bucket

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		MinioEndpoint:  endpoint,
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    bucket,
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    useSSL,

		LibraryBaseURL:  strings.TrimRight(getEnv("LIBRARY_BASE_URL", defaultBaseURL), "/"),
		LocalLibraryDir: getEnv("LOCAL_LIBRARY_DIR", ""),
		TagReaderMode:   strings.ToLower(getEnv("TAG_READER_MODE", "auto")),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:       getEnvInt("REDIS_DB", 0),     // 默认使用0号数据库
		TagCacheTTL:   getEnvDuration("TAG_CACHE_TTL", 24*time.Hour),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogPath:       getEnv("LOG_PATH", ""),
		LogMaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		LogMaxAge:     getEnvInt("LOG_MAX_AGE", 28),

		AudioEnabled:     getEnvBool("AUDIO_ENABLED", true),
		MprisEnabled:     getEnvBool("MPRIS_ENABLED", true),
		PreloadThreshold: getEnvDuration("PRELOAD_THRESHOLD", 20*time.Second),
		SeekOffset:       getEnvDuration("SEEK_OFFSET", 10*time.Second),
	}
}

// RedisAddr 返回 host:port 形式的 Redis 地址
func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}
