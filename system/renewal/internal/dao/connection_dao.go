package dao

import (
	"context"
	"time"
	errorc "xiaozhengshu/pkg/core/err"
	"xiaozhengshu/pkg/core/logger"
	"xiaozhengshu/pkg/core/mvc"
	"xiaozhengshu/system/renewal/internal/model"

	"gorm.io/gorm"
)

// ConnectionDao 连接配置数据访问层
type ConnectionDao struct {
	mvc.IBaseDao[model.Connection]
	db  *gorm.DB
	log *logger.Log
	err *errorc.ErrorBuilder
}

// NewConnectionDao 创建连接 DAO 实例
func NewConnectionDao(db *gorm.DB, log *logger.Log) *ConnectionDao {
	return &ConnectionDao{
		IBaseDao: mvc.NewGormDao[model.Connection](db),
		db:       db,
		log:      log.WithEntryName("ConnectionDao"),
		err:      errorc.NewErrorBuilder("ConnectionDao"),
	}
}

// FindConnectionsToRenew 查询需要自动续期的连接
// 查询条件：
// 1. 已启用且开启自动续期
// 2. DNS 服务商支持自动验证（排除 custom）
// 3. 过期时间 - 当前时间 <= 续期提前天数
// 提前天数逐行不同，时间窗口在内存里过滤以保持 SQL 方言无关
func (d *ConnectionDao) FindConnectionsToRenew(ctx context.Context) ([]model.Connection, error) {
	var candidates []model.Connection

	err := d.db.WithContext(ctx).
		Where("is_enabled = ?", 1).
		Where("auto_renew = ?", 1).
		Where("dns_provider <> ?", model.DnsProviderCustom).
		Where("expires_at IS NOT NULL").
		Find(&candidates).Error

	if err != nil {
		d.log.WithErr(err).Error("查询需要续期的连接失败")
		return nil, d.err.New("查询需要续期的连接失败", err)
	}

	now := time.Now()
	connections := make([]model.Connection, 0, len(candidates))
	for _, conn := range candidates {
		if inRenewWindow(&conn, now) {
			connections = append(connections, conn)
		}
	}
	return connections, nil
}

// CountConnectionsToRenew 统计当前满足续期条件的连接数量
func (d *ConnectionDao) CountConnectionsToRenew(ctx context.Context) (int64, error) {
	connections, err := d.FindConnectionsToRenew(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(connections)), nil
}

// inRenewWindow 连接是否进入续期窗口（已过期的也算）
func inRenewWindow(conn *model.Connection, now time.Time) bool {
	if conn.ExpiresAt == nil {
		return false
	}
	days := conn.RenewBeforeDays
	if days <= 0 {
		days = 30
	}
	return !conn.ExpiresAt.After(now.Add(time.Duration(days) * 24 * time.Hour))
}

// UpdateRenewalResult 回写续期结果字段
func (d *ConnectionDao) UpdateRenewalResult(ctx context.Context, id int64, updates map[string]interface{}) error {
	err := d.db.WithContext(ctx).Model(&model.Connection{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		d.log.WithErr(err).WithField("id", id).Error("更新连接续期结果失败")
		return d.err.New("更新连接续期结果失败", err)
	}
	return nil
}
