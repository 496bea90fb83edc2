package renewal

import (
	"xiaozhengshu/pkg/core/logger"
	"xiaozhengshu/system/renewal/internal/model"

	"gorm.io/gorm"
)

// AutoMigrate 执行证书续期组件的数据库迁移
func AutoMigrate(db *gorm.DB, log *logger.Log) error {
	log.Info("开始执行证书续期组件数据库迁移...")

	// 自动迁移所有模型
	if err := db.AutoMigrate(
		&model.DnsCredential{},
		&model.Connection{},
		&model.RenewalHistory{},
	); err != nil {
		log.WithErr(err).Error("证书续期组件数据库迁移失败")
		return err
	}

	log.Info("证书续期组件数据库迁移完成")
	return nil
}
