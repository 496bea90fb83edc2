package db

import (
	"xiaozhengshu/pkg/core/logger"
	"xiaozhengshu/system/renewal"
	"xiaozhengshu/system/user"

	"gorm.io/gorm"
)

// AutoMigrate 自动执行所有数据库迁移
func AutoMigrate(db *gorm.DB) error {
	log := logger.GetLogger().WithEntryName("DatabaseMigration")

	log.Info("开始执行数据库迁移...")

	// 用户组件表迁移（管理员）
	if err := user.AutoMigrate(db, log); err != nil {
		return err
	}

	// 证书续期组件表迁移
	if err := renewal.AutoMigrate(db, log); err != nil {
		return err
	}

	log.Info("数据库迁移完成")
	return nil
}
