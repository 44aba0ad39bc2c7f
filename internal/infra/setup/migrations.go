package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"text-sync/internal/domain"
)

// MigrateDB 迁移 rooms / messages 两张表。
// messages.room_id 带 ON DELETE CASCADE 外键，删除房间时数据库负责删除其消息。
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	// 顺序不能换：messages 的外键引用 rooms
	if err := migrateRoomsTable(db); err != nil {
		return fmt.Errorf("failed to migrate rooms table: %w", err)
	}
	if err := migrateMessagesTable(db); err != nil {
		return fmt.Errorf("failed to migrate messages table: %w", err)
	}

	logrus.Info("Database migration completed successfully")
	return nil
}

func migrateRoomsTable(db *gorm.DB) error {
	if err := db.AutoMigrate(&domain.Room{}); err != nil {
		logrus.Errorf("Failed to auto-migrate rooms table: %v", err)
		return err
	}
	logrus.Debug("Rooms table schema checked/updated successfully")
	return nil
}

func migrateMessagesTable(db *gorm.DB) error {
	if err := db.AutoMigrate(&domain.Message{}); err != nil {
		logrus.Errorf("Failed to auto-migrate messages table: %v", err)
		return err
	}

	// 旧库可能是在没有外键的情况下建的表，这里补上级联约束
	migrator := db.Migrator()
	if !migrator.HasConstraint(&domain.Message{}, "Room") {
		if err := migrator.CreateConstraint(&domain.Message{}, "Room"); err != nil {
			// 不中断启动，但级联删除将失效，必须人工处理
			logrus.WithError(err).Warn("messages.room_id cascade constraint missing and could not be created")
		} else {
			logrus.Info("Created messages.room_id cascade constraint")
		}
	}
	logrus.Debug("Messages table schema checked/updated successfully")
	return nil
}
