// Package gormtest 为测试提供打开了外键约束的内存 SQLite 数据库。
package gormtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"text-sync/internal/infra/setup"
)

// NewDB 打开一个独立的内存数据库并执行迁移，测试结束时自动关闭。
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	// 每个测试使用独立命名的内存库；_foreign_keys=on 让 ON DELETE CASCADE 生效
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	db, err := setup.OpenDB(sqlite.Open(dsn), false)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, setup.MigrateDB(db))
	return db
}
