package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"text-sync/internal/domain"
	"text-sync/internal/worker"
)

// Config 结构体用于存储从环境变量或文件加载的配置
type Config struct {
	DBDriver        string // mysql 或 sqlite
	DBUser          string
	DBPassword      string
	DBHost          string
	DBPort          string
	DBName          string // sqlite 时为文件路径
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	JWTSecret       string
	ServerPort      string
	LogLevel        string
	AppEnv          string
	KeyPrefix       string
	RateLimitMax    int
	RateLimitWindow time.Duration
	RoomTTL         time.Duration
	SweepSchedule   string
	DefaultLocale   string
	AdminToken      string
	AllowedOrigin   string
}

// DefaultTitle 按配置的语言返回新消息的占位标题
func (c *Config) DefaultTitle() string { return domain.DefaultTitle(c.DefaultLocale) }

// LoadConfig 从环境变量加载配置，.env 文件存在时先加载它
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // 忽略错误，允许只使用环境变量
	return configFromEnv(os.Getenv)
}

func configFromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		DBDriver:      strings.ToLower(getenv("DB_DRIVER")),
		DBUser:        getenv("DB_USER"),
		DBPassword:    getenv("DB_PASSWORD"),
		DBHost:        getenv("DB_HOST"),
		DBPort:        getenv("DB_PORT"),
		DBName:        getenv("DB_NAME"),
		RedisAddr:     getenv("REDIS_ADDR"),
		RedisPassword: getenv("REDIS_PASSWORD"),
		JWTSecret:     getenv("JWT_SECRET"),
		ServerPort:    getenv("SERVER_PORT"),
		LogLevel:      getenv("LOG_LEVEL"),
		AppEnv:        getenv("APP_ENV"),
		KeyPrefix:     getenv("REDIS_KEY_PREFIX"),
		SweepSchedule: getenv("SWEEP_SCHEDULE"),
		DefaultLocale: getenv("DEFAULT_LOCALE"),
		AdminToken:    getenv("ADMIN_TOKEN"),
		AllowedOrigin: getenv("CORS_ALLOWED_ORIGIN"),
	}

	cfg.RedisDB, _ = strconv.Atoi(getenv("REDIS_DB")) // 忽略错误，默认为 0

	var err error
	if cfg.RateLimitMax, err = intOr(getenv("RATE_LIMIT_MAX"), 100); err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_MAX: %w", err)
	}
	if cfg.RateLimitWindow, err = durationOr(getenv("RATE_LIMIT_WINDOW"), time.Second); err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_WINDOW: %w", err)
	}
	if cfg.RoomTTL, err = durationOr(getenv("ROOM_TTL"), domain.DefaultRoomTTL); err != nil {
		return nil, fmt.Errorf("invalid ROOM_TTL: %w", err)
	}

	if cfg.DBDriver == "" {
		cfg.DBDriver = "mysql"
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "ts:"
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = worker.DefaultSweepSchedule
	}
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = domain.DefaultLocale
	}
	if cfg.AllowedOrigin == "" {
		cfg.AllowedOrigin = "http://localhost:3000" // 开发默认
	}

	if cfg.DBDriver != "mysql" && cfg.DBDriver != "sqlite" {
		return nil, fmt.Errorf("DB_DRIVER must be mysql or sqlite, got %q", cfg.DBDriver)
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("environment variable REDIS_ADDR must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("environment variable JWT_SECRET must be set")
	}
	if cfg.RoomTTL <= 0 || cfg.RateLimitWindow <= 0 || cfg.RateLimitMax <= 0 {
		return nil, fmt.Errorf("ROOM_TTL and RATE_LIMIT_* must be positive")
	}

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

func intOr(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

func durationOr(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}

// NewLogger 按配置创建 logger，生产环境输出 JSON
func NewLogger(cfg *Config) *logrus.Logger {
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetOutput(os.Stdout)
	// 各包直接使用 logrus 标准 logger，保持同样的格式和级别
	logrus.SetFormatter(log.Formatter)
	logrus.SetLevel(level)
	return log
}
