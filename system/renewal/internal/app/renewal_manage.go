package app

import (
	"context"
	"sync/atomic"
	"time"
	"xiaozhengshu/system/renewal/internal/model"
	"xiaozhengshu/system/renewal/internal/service"

	"github.com/robfig/cron/v3"
)

// StartRenewal 为连接发起一次续期
// 同一连接已有进行中的操作时直接拒绝；续期在独立协程内执行，
// 调用方通过操作 ID 查询进度或订阅推送
func (a *App) StartRenewal(ctx context.Context, connectionID int64, createdBy model.CreatedBy) (*model.RenewalOperation, error) {
	conn, err := a.ConnectionDao.FindById(ctx, connectionID)
	if err != nil {
		return nil, a.err.New("获取连接配置失败", err)
	}
	if conn.IsEnabled != 1 {
		return nil, a.err.New("连接已禁用，无法发起续期", nil).ValidWithCtx()
	}

	cred, err := a.decryptCredential(ctx, conn)
	if err != nil {
		return nil, err
	}

	op, err := a.Registry.Begin(connectionID, createdBy)
	if err != nil {
		return nil, err
	}

	trigger := model.TriggerTypeManual
	if createdBy == model.CreatedBySystem {
		trigger = model.TriggerTypeAutoRenew
	}

	go a.Orchestrator.Run(context.Background(), conn, cred, op.ID, trigger)

	a.log.WithFields(map[string]interface{}{
		"operationId":  op.ID,
		"connectionId": connectionID,
	}).Info("续期操作已启动")
	return op, nil
}

// decryptCredential 加载并解密连接引用的 DNS 凭证
// custom 服务商不需要凭证，返回 nil
func (a *App) decryptCredential(ctx context.Context, conn *model.Connection) (*service.DnsProviderCredential, error) {
	if !conn.DnsProvider.IsAutomated() {
		return nil, nil
	}
	if conn.DnsCredentialID == 0 {
		return nil, a.err.New("连接未配置 DNS 凭证", nil).ValidWithCtx()
	}

	credential, err := a.DnsCredentialDao.FindById(ctx, conn.DnsCredentialID)
	if err != nil {
		return nil, a.err.New("获取 DNS 凭证失败", err)
	}
	if credential.Status != 1 {
		return nil, a.err.New("DNS 凭证已禁用", nil).ValidWithCtx()
	}

	accessKey, err := a.CryptoService.Decrypt(credential.AccessKey)
	if err != nil {
		return nil, a.err.New("解密 DNS 凭证失败", err)
	}
	secretKey, err := a.CryptoService.Decrypt(credential.SecretKey)
	if err != nil {
		return nil, a.err.New("解密 DNS 凭证失败", err)
	}

	cred := &service.DnsProviderCredential{
		AccessKey: accessKey,
		SecretKey: secretKey,
	}
	if credential.ExtraConfig != nil {
		cred.Extra = map[string]interface{}(*credential.ExtraConfig)
	}
	return cred, nil
}

// GetOperation 查询操作当前状态快照
func (a *App) GetOperation(operationID string) (*model.RenewalOperation, error) {
	return a.Registry.Get(operationID)
}

// GetConnectionOperation 查询连接当前进行中的操作，无则返回 nil
func (a *App) GetConnectionOperation(connectionID int64) *model.RenewalOperation {
	return a.Registry.GetByConnection(connectionID)
}

// CancelOperation 请求取消操作
// 发起方与管理端共用此入口，取消在一个轮询间隔内生效
func (a *App) CancelOperation(operationID string) error {
	return a.Registry.Cancel(operationID)
}

// ListOperations 列出全部已登记的续期操作（管理端视角）
func (a *App) ListOperations() []*model.RenewalOperation {
	return a.Registry.List()
}

// SchedulerStatus 自动续期调度状态
type SchedulerStatus struct {
	CronExpr        string     `json:"cronExpr"`
	NextRunTime     *time.Time `json:"nextRunTime"`
	DueCount        int64      `json:"dueCount"`
	SweepInProgress bool       `json:"sweepInProgress"`
	ActiveCount     int        `json:"activeCount"`
}

// GetSchedulerStatus 返回调度器状态：表达式、下次执行时间与待续期数量
func (a *App) GetSchedulerStatus(ctx context.Context) (*SchedulerStatus, error) {
	status := &SchedulerStatus{
		CronExpr:        a.cronExpr,
		SweepInProgress: atomic.LoadInt32(&a.sweeping) == 1,
		ActiveCount:     a.Registry.ActiveCount(),
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if schedule, err := parser.Parse(a.cronExpr); err == nil {
		next := schedule.Next(time.Now())
		status.NextRunTime = &next
	}

	dueCount, err := a.ConnectionDao.CountConnectionsToRenew(ctx)
	if err != nil {
		return nil, err
	}
	status.DueCount = dueCount
	return status, nil
}

// RenewDueConnections 扫描即将过期的连接并逐个发起续期
// 被 scheduler 定时任务调用；上一轮扫描未结束时跳过本轮。
// 每个续期在独立协程内执行，扫描只负责登记与启动，
// 不等待任何一个续期收敛到终态
func (a *App) RenewDueConnections(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&a.sweeping, 0, 1) {
		a.log.Warn("上一轮自动续期扫描尚未结束，跳过本轮")
		return nil
	}
	defer atomic.StoreInt32(&a.sweeping, 0)

	a.log.Info("开始扫描需要续期的连接")

	connections, err := a.ConnectionDao.FindConnectionsToRenew(ctx)
	if err != nil {
		return a.err.New("查询需要续期的连接失败", err)
	}

	a.log.WithField("count", len(connections)).Info("找到需要续期的连接")

	startCount := 0
	skipCount := 0
	failCount := 0

	for i := range connections {
		conn := &connections[i]

		// 进行中的连接跳过，不排队
		if a.Registry.GetByConnection(conn.ID) != nil {
			a.log.WithField("connectionId", conn.ID).Info("连接已有进行中的续期操作，跳过")
			skipCount++
			continue
		}

		cred, credErr := a.decryptCredential(ctx, conn)
		if credErr != nil {
			a.log.WithErr(credErr).WithField("connectionId", conn.ID).Error("加载 DNS 凭证失败，跳过该连接")
			failCount++
			continue
		}

		op, beginErr := a.Registry.Begin(conn.ID, model.CreatedBySystem)
		if beginErr != nil {
			a.log.WithErr(beginErr).WithField("connectionId", conn.ID).Warn("登记续期操作失败，跳过该连接")
			skipCount++
			continue
		}

		// 与手动发起同构：Run 在独立协程内收敛到终态并记录历史，
		// 单个连接的手动模式等待不会拖住整轮扫描
		go a.Orchestrator.Run(context.Background(), conn, cred, op.ID, model.TriggerTypeAutoRenew)
		startCount++
	}

	a.log.WithFields(map[string]interface{}{
		"total": len(connections),
		"start": startCount,
		"skip":  skipCount,
		"fail":  failCount,
	}).Info("自动续期扫描完成")

	return nil
}

// GetBundleInfo 查询连接某环境下的证书材料概览
func (a *App) GetBundleInfo(connectionID int64, env model.AcmeEnvironment) (*model.BundleInfo, error) {
	return a.BundleStore.Inspect(connectionID, env)
}

// GetBundleFilePath 返回证书材料文件的本地路径（供下载）
func (a *App) GetBundleFilePath(connectionID int64, env model.AcmeEnvironment, name string) (string, error) {
	return a.BundleStore.FilePath(connectionID, env, name)
}
