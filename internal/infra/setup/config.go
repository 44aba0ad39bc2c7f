package setup

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB 根据连接参数初始化 MySQL 连接池
func InitDB(user, password, host, port, name string) (*gorm.DB, error) {
	if user == "" {
		return nil, fmt.Errorf("DB_USER must be set")
	}
	if host == "" {
		host = "127.0.0.1" // 本地开发默认值
	}
	if port == "" {
		port = "3306"
	}
	if name == "" {
		name = "text_sync"
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		user, password, host, port, name)

	db, err := OpenDB(mysql.Open(dsn), logrus.GetLevel() >= logrus.DebugLevel)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB() // 获取底层的 *sql.DB 对象
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping MySQL at %s:%s: %w", host, port, err)
	}
	logrus.WithFields(logrus.Fields{"host": host, "port": port, "db": name}).Info("MySQL connected")
	return db, nil
}

// InitSQLite 打开本地 SQLite 文件，用于单机开发，外键约束默认打开
func InitSQLite(path string) (*gorm.DB, error) {
	if path == "" {
		path = "text_sync.db"
	}
	db, err := OpenDB(sqlite.Open(fmt.Sprintf("file:%s?_foreign_keys=on", path)), logrus.GetLevel() >= logrus.DebugLevel)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	// SQLite 只允许单写者
	sqlDB.SetMaxOpenConns(1)
	logrus.WithField("path", path).Info("SQLite opened")
	return db, nil
}

// OpenDB 用给定的方言打开 gorm 连接。
// TranslateError 打开后唯一约束冲突会被翻译成 gorm.ErrDuplicatedKey，仓库层据此映射错误。
func OpenDB(dialector gorm.Dialector, verbose bool) (*gorm.DB, error) {
	logLevel := logger.Warn
	if verbose {
		logLevel = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logLevel),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// InitRedis 初始化 Redis 连接并 Ping 一次
func InitRedis(addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     20,
		MinIdleConns: 5,
		MaxConnAge:   30 * time.Minute, // 连接最大存活时间
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	logrus.WithField("addr", addr).Info("Redis connected")
	return client, nil
}
