package dao

import (
	"context"
	errorc "xiaozhengshu/pkg/core/err"
	"xiaozhengshu/pkg/core/logger"
	"xiaozhengshu/pkg/core/mvc"
	"xiaozhengshu/system/renewal/internal/model"

	"gorm.io/gorm"
)

// RenewalHistoryDao 续期历史数据访问层
type RenewalHistoryDao struct {
	mvc.IBaseDao[model.RenewalHistory]
	db  *gorm.DB
	log *logger.Log
	err *errorc.ErrorBuilder
}

// NewRenewalHistoryDao 创建续期历史 DAO 实例
func NewRenewalHistoryDao(db *gorm.DB, log *logger.Log) *RenewalHistoryDao {
	return &RenewalHistoryDao{
		IBaseDao: mvc.NewGormDao[model.RenewalHistory](db),
		db:       db,
		log:      log.WithEntryName("RenewalHistoryDao"),
		err:      errorc.NewErrorBuilder("RenewalHistoryDao"),
	}
}

// FindByConnectionID 按连接查询历史记录（按时间倒序分页）
func (d *RenewalHistoryDao) FindByConnectionID(ctx context.Context, connectionID int64, page *mvc.Page) ([]model.RenewalHistory, int64, error) {
	var histories []model.RenewalHistory
	var total int64

	db := d.db.WithContext(ctx).Model(&model.RenewalHistory{}).
		Where("connection_id = ?", connectionID)

	if err := db.Count(&total).Error; err != nil {
		d.log.WithErr(err).WithField("connectionId", connectionID).Error("统计续期历史失败")
		return nil, 0, d.err.New("统计续期历史失败", err)
	}

	err := db.Scopes(mvc.Paginate(page)).Order("id DESC").Find(&histories).Error
	if err != nil {
		d.log.WithErr(err).WithField("connectionId", connectionID).Error("查询续期历史失败")
		return nil, 0, d.err.New("查询续期历史失败", err)
	}

	return histories, total, nil
}
