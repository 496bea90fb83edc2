package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"xiaozhengshu/pkg/core/logger"
	"xiaozhengshu/pkg/core/util"
	"xiaozhengshu/system/renewal/internal/dao"
	"xiaozhengshu/system/renewal/internal/model"

	"github.com/go-acme/lego/v4/challenge/dns01"
)

// RenewalConfig 续期引擎运行参数
type RenewalConfig struct {
	// PropagationInterval 自动模式 DNS 传播轮询间隔
	PropagationInterval time.Duration
	// PropagationAttempts 自动模式轮询次数上限
	PropagationAttempts int
	// ManualPollInterval 手动模式轮询间隔（无次数上限）
	ManualPollInterval time.Duration
	// DNSRetries DNS 服务商操作的重试次数上限
	DNSRetries int
	// DNSRetryBackoff DNS 服务商重试的初始退避时长，按次翻倍
	DNSRetryBackoff time.Duration
	// Retention 终态操作的保留时长
	Retention time.Duration
}

// DefaultRenewalConfig 默认运行参数
func DefaultRenewalConfig() RenewalConfig {
	return RenewalConfig{
		PropagationInterval: 10 * time.Second,
		PropagationAttempts: 30,
		ManualPollInterval:  30 * time.Second,
		DNSRetries:          3,
		DNSRetryBackoff:     5 * time.Second,
		Retention:           30 * time.Minute,
	}
}

// RenewalOrchestrator 证书续期编排器
// 驱动单次续期的完整状态机：CSR 获取、账户注册、证书申请、
// DNS 验证、证书落盘、目标部署与可选服务重启
type RenewalOrchestrator struct {
	log           *logger.Log
	registry      *OperationRegistry
	broadcaster   *ProgressBroadcaster
	acme          *AcmeService
	dnsFactory    *DNSProviderFactory
	deploy        *DeployService
	bundles       *BundleStore
	crypto        *CryptoService
	connectionDao *dao.ConnectionDao
	historyDao    *dao.RenewalHistoryDao
	config        RenewalConfig
}

// NewRenewalOrchestrator 创建续期编排器
func NewRenewalOrchestrator(
	log *logger.Log,
	registry *OperationRegistry,
	broadcaster *ProgressBroadcaster,
	acme *AcmeService,
	dnsFactory *DNSProviderFactory,
	deploy *DeployService,
	bundles *BundleStore,
	crypto *CryptoService,
	connectionDao *dao.ConnectionDao,
	historyDao *dao.RenewalHistoryDao,
	config RenewalConfig,
) *RenewalOrchestrator {
	if config.PropagationInterval <= 0 {
		config.PropagationInterval = 10 * time.Second
	}
	if config.PropagationAttempts <= 0 {
		config.PropagationAttempts = 30
	}
	if config.ManualPollInterval <= 0 {
		config.ManualPollInterval = 30 * time.Second
	}
	if config.DNSRetries <= 0 {
		config.DNSRetries = 3
	}
	if config.DNSRetryBackoff <= 0 {
		config.DNSRetryBackoff = 5 * time.Second
	}
	if config.Retention <= 0 {
		config.Retention = 30 * time.Minute
	}
	return &RenewalOrchestrator{
		log:           log.WithEntryName("RenewalOrchestrator"),
		registry:      registry,
		broadcaster:   broadcaster,
		acme:          acme,
		dnsFactory:    dnsFactory,
		deploy:        deploy,
		bundles:       bundles,
		crypto:        crypto,
		connectionDao: connectionDao,
		historyDao:    historyDao,
		config:        config,
	}
}

// Config 返回当前运行参数
func (o *RenewalOrchestrator) Config() RenewalConfig {
	return o.config
}

// Run 执行一次完整续期，设计为独立协程运行
// 任何错误都收敛为终态并记录历史，不向调用方传播
func (o *RenewalOrchestrator) Run(ctx context.Context, conn *model.Connection, cred *DnsProviderCredential, operationID string, trigger model.TriggerType) {
	log := o.log.WithFields(map[string]interface{}{
		"operationId":  operationID,
		"connectionId": conn.ID,
	})

	if ctx == nil {
		ctx = context.Background()
	}
	driver := &challengeDriver{
		orchestrator: o,
		conn:         conn,
		operationID:  operationID,
		ctx:          ctx,
		log:          log,
	}

	err := o.run(ctx, conn, cred, operationID, driver, log)

	// 验证结束后无论成败都尝试清理验证记录
	driver.ensureCleanup()

	if err != nil {
		o.finishFailure(conn, operationID, trigger, err, log)
		return
	}
	o.finishSuccess(conn, operationID, trigger, log)
}

func (o *RenewalOrchestrator) run(ctx context.Context, conn *model.Connection, cred *DnsProviderCredential, operationID string, driver *challengeDriver, log *logger.Log) error {
	// 1. 选择 DNS 服务商策略
	provider, err := o.dnsFactory.Create(conn.DnsProvider, cred)
	if err != nil {
		return err
	}
	driver.provider = provider

	// 2. 准备密钥材料或由目标设备生成 CSR
	if err := o.transition(operationID, model.StatusGeneratingCSR, "正在准备证书密钥材料"); err != nil {
		return err
	}

	adapter, err := o.deploy.Adapter(conn.TargetType)
	if err != nil {
		return err
	}

	var csrPem string
	if generator, ok := adapter.(CSRGenerator); ok {
		csrPem, err = generator.FetchCSR(ctx, conn)
		if err != nil {
			return err
		}
		o.appendLog(operationID, "已从目标设备获取 CSR")
	}

	// 3. 创建或复用 ACME 账户
	if err := o.transition(operationID, model.StatusCreatingAccount, "正在注册 ACME 账户"); err != nil {
		return err
	}

	accountKeyPem, err := o.crypto.Decrypt(conn.AcmeAccountKey)
	if err != nil {
		return NewValidationError("解密 ACME 账户私钥失败")
	}
	isNewAccount := accountKeyPem == ""

	user, err := o.acme.CreateOrLoadAccount(conn.AcmeEmail, accountKeyPem)
	if err != nil {
		return err
	}

	client, err := o.acme.NewClient(user, conn.AcmeEnv, driver)
	if err != nil {
		return err
	}
	if err := o.acme.EnsureRegistration(client, user); err != nil {
		return err
	}

	if isNewAccount {
		if keyPem, encodeErr := o.acme.EncodeAccountKey(user); encodeErr == nil {
			if encrypted, encryptErr := o.crypto.Encrypt(keyPem); encryptErr == nil {
				_ = o.connectionDao.UpdateRenewalResult(ctx, conn.ID, map[string]interface{}{
					"acme_account_key": encrypted,
				})
			}
		}
	}

	// 4. 发起证书申请
	// 申请过程中 lego 会回调驱动器完成 DNS 验证与传播等待
	if err := o.transition(operationID, model.StatusRequestingCertificate, "正在向签发方申请证书"); err != nil {
		return err
	}

	domains := collectDomains(conn.Domain, conn.AltNames)
	if len(domains) == 0 {
		return NewValidationError("连接未配置任何域名")
	}

	var bundle *model.CertificateBundle
	if csrPem != "" {
		csr, parseErr := o.acme.ParseCSR(csrPem)
		if parseErr != nil {
			return parseErr
		}
		res, obtainErr := o.acme.ObtainForCSR(client, csr)
		if obtainErr != nil {
			// 驱动器内部失败优先于签发方错误分类
			if driverErr := driver.takeFailure(); driverErr != nil {
				return driverErr
			}
			return obtainErr
		}
		bundle, err = o.acme.BuildBundle(res)
	} else {
		certKey, keyErr := o.acme.GenerateCertificateKey()
		if keyErr != nil {
			return keyErr
		}
		res, obtainErr := o.acme.ObtainCertificate(client, domains, certKey)
		if obtainErr != nil {
			if driverErr := driver.takeFailure(); driverErr != nil {
				return driverErr
			}
			return obtainErr
		}
		bundle, err = o.acme.BuildBundle(res)
	}
	if err != nil {
		return err
	}

	// 5. 证书落盘
	if err := o.transition(operationID, model.StatusDownloadingCertificate, "正在保存证书材料"); err != nil {
		return err
	}
	if err := o.bundles.Save(conn.ID, conn.AcmeEnv, bundle); err != nil {
		return err
	}

	// 6. 部署到目标设备
	if err := o.transition(operationID, model.StatusUploadingCertificate, "正在部署证书到目标设备"); err != nil {
		return err
	}
	result, err := adapter.Deploy(ctx, conn, bundle)
	if err != nil {
		return err
	}
	if !result.Success {
		return NewDeploymentError(fmt.Sprintf("部署失败: %v", result.Details["error"]), nil)
	}
	o.appendLog(operationID, "证书已部署到目标设备")

	// 7. 可选的服务重启
	if adapter.SupportsRestart(conn) {
		if err := o.transition(operationID, model.StatusRestartingService, "正在重启依赖服务"); err != nil {
			return err
		}
		restartResult, restartErr := adapter.RestartService(ctx, conn)
		if restartErr != nil {
			return restartErr
		}
		if !restartResult.Success {
			return NewDeploymentError(fmt.Sprintf("服务重启失败: %v", restartResult.Details["error"]), nil)
		}
	}

	// 成功路径更新连接的到期时间
	_ = o.connectionDao.UpdateRenewalResult(ctx, conn.ID, map[string]interface{}{
		"expires_at": bundle.ExpiresAt,
	})
	return nil
}

// transition 推进状态机并广播进度
// 取消请求在每个状态边界生效；进度只增不减
func (o *RenewalOrchestrator) transition(operationID string, status model.OperationStatus, message string) error {
	if !status.IsTerminal() && o.registry.IsCancelled(operationID) {
		return NewCancelledError("续期操作已取消")
	}

	snapshot, err := o.registry.Update(operationID, func(op *model.RenewalOperation) {
		op.Status = status
		if p := status.Progress(); p > op.Progress {
			op.Progress = p
		}
		op.Message = message
		op.Logs = append(op.Logs, model.OperationLogLine{Time: time.Now(), Message: message})
		if status != model.StatusWaitingManualDNS {
			op.ManualDNSEntry = nil
		}
	})
	if err != nil {
		return err
	}

	o.publish(snapshot)
	return nil
}

// appendLog 追加日志行并广播，不改变状态
func (o *RenewalOrchestrator) appendLog(operationID, message string) {
	snapshot, err := o.registry.Update(operationID, func(op *model.RenewalOperation) {
		op.Message = message
		op.Logs = append(op.Logs, model.OperationLogLine{Time: time.Now(), Message: message})
	})
	if err != nil {
		return
	}
	o.publish(snapshot)
}

func (o *RenewalOrchestrator) publish(op *model.RenewalOperation) {
	o.broadcaster.Publish(&model.ProgressEvent{
		OperationID:  op.ID,
		ConnectionID: op.ConnectionID,
		Status:       op.Status,
		Progress:     op.Progress,
		Message:      op.Message,
	})
}

// finishSuccess 收敛到 completed 终态并记录结果
func (o *RenewalOrchestrator) finishSuccess(conn *model.Connection, operationID string, trigger model.TriggerType, log *logger.Log) {
	now := time.Now()
	snapshot, err := o.registry.Update(operationID, func(op *model.RenewalOperation) {
		op.Status = model.StatusCompleted
		op.Progress = model.StatusCompleted.Progress()
		op.Message = "证书续期完成"
		op.EndTime = &now
		op.ManualDNSEntry = nil
		op.Logs = append(op.Logs, model.OperationLogLine{Time: now, Message: op.Message})
	})
	if err != nil {
		log.WithErr(err).Error("更新续期操作终态失败")
		return
	}
	o.publish(snapshot)
	o.recordOutcome(conn, snapshot, trigger)
	time.AfterFunc(o.config.Retention, func() { o.broadcaster.Forget(operationID) })
	log.Info("证书续期完成")
}

// finishFailure 收敛到 failed/cancelled 终态并记录结果
func (o *RenewalOrchestrator) finishFailure(conn *model.Connection, operationID string, trigger model.TriggerType, cause error, log *logger.Log) {
	status := model.StatusFailed
	message := "证书续期失败"
	if IsCancelled(cause) {
		status = model.StatusCancelled
		message = "证书续期已取消"
	}
	kind := KindOf(cause)

	now := time.Now()
	snapshot, err := o.registry.Update(operationID, func(op *model.RenewalOperation) {
		op.Status = status
		op.Message = message
		op.EndTime = &now
		op.Error = cause.Error()
		op.ErrorKind = string(kind)
		op.ManualDNSEntry = nil
		op.Logs = append(op.Logs, model.OperationLogLine{Time: now, Message: fmt.Sprintf("%s: %s", message, cause.Error())})
	})
	if err != nil {
		log.WithErr(err).Error("更新续期操作终态失败")
		return
	}
	o.publish(snapshot)
	o.recordOutcome(conn, snapshot, trigger)
	time.AfterFunc(o.config.Retention, func() { o.broadcaster.Forget(operationID) })
	log.WithErr(cause).WithField("errorKind", kind).Warn(message)

	if status == model.StatusFailed {
		_ = util.SendOpsMessage(context.Background(), fmt.Sprintf("连接 %s(%d) 证书续期失败：%s", conn.Name, conn.ID, cause.Error()))
	}
}

// recordOutcome 写入续期历史并回写连接的最近结果
func (o *RenewalOrchestrator) recordOutcome(conn *model.Connection, op *model.RenewalOperation, trigger model.TriggerType) {
	history := &model.RenewalHistory{
		ConnectionID: conn.ID,
		OperationID:  op.ID,
		TriggerType:  trigger,
		Status:       op.Status,
		StartTime:    op.StartTime,
		EndTime:      op.EndTime,
		ErrorMessage: op.Error,
		ErrorKind:    op.ErrorKind,
	}
	ctx := context.Background()
	if err := o.historyDao.Create(ctx, history); err != nil {
		o.log.WithErr(err).Error("写入续期历史失败")
	}

	updates := map[string]interface{}{
		"last_renewal_status": string(op.Status),
		"last_renewal_at":     time.Now(),
		"last_error":          op.Error,
	}
	if err := o.connectionDao.UpdateRenewalResult(ctx, conn.ID, updates); err != nil {
		o.log.WithErr(err).Error("回写连接续期结果失败")
	}
}

// challengeDriver DNS-01 验证驱动器
// 作为 challenge.Provider 注入 lego，在 Present 内完成记录创建、
// 传播等待或手动模式等待，Present 返回后 lego 才会触发签发方验证
type challengeDriver struct {
	orchestrator *RenewalOrchestrator
	conn         *model.Connection
	operationID  string
	provider     DNSChallengeProvider
	// ctx 本次续期的运行上下文，等待循环在其结束时退出
	ctx context.Context
	log *logger.Log

	mu      sync.Mutex
	failure error
	created bool
	cleaned bool
	// CleanUp 需要的原始参数
	lastDomain  string
	lastToken   string
	lastKeyAuth string
}

// Present lego 回调：创建验证记录并等待其可被公共 DNS 观测
func (d *challengeDriver) Present(domain, token, keyAuth string) error {
	o := d.orchestrator
	info := dns01.GetChallengeInfo(domain, keyAuth)

	d.mu.Lock()
	d.lastDomain, d.lastToken, d.lastKeyAuth = domain, token, keyAuth
	d.mu.Unlock()

	if err := o.transition(d.operationID, model.StatusCreatingDNSChallenge, fmt.Sprintf("正在准备域名 %s 的验证记录", domain)); err != nil {
		return d.fail(err)
	}

	if d.provider.Automated() {
		if err := d.presentWithRetry(domain, token, keyAuth); err != nil {
			return d.fail(err)
		}
		d.mu.Lock()
		d.created = true
		d.mu.Unlock()

		if err := d.waitPropagation(info.EffectiveFQDN, info.Value, domain); err != nil {
			return d.fail(err)
		}
	} else {
		if err := d.waitManual(info.EffectiveFQDN, info.Value, domain); err != nil {
			return d.fail(err)
		}
	}

	if err := o.transition(d.operationID, model.StatusCompletingValidation, fmt.Sprintf("域名 %s 的验证记录已生效，等待签发方验证", domain)); err != nil {
		return d.fail(err)
	}
	return nil
}

// CleanUp lego 回调：删除验证记录
func (d *challengeDriver) CleanUp(domain, token, keyAuth string) error {
	d.cleanup(domain, token, keyAuth)
	return nil
}

// presentWithRetry 创建记录，服务商瞬时故障按指数退避有界重试
func (d *challengeDriver) presentWithRetry(domain, token, keyAuth string) error {
	o := d.orchestrator
	backoff := o.config.DNSRetryBackoff

	var lastErr error
	for attempt := 1; attempt <= o.config.DNSRetries; attempt++ {
		if o.registry.IsCancelled(d.operationID) {
			return NewCancelledError("续期操作已取消")
		}

		if err := d.provider.Present(domain, token, keyAuth); err != nil {
			lastErr = err
			d.log.WithErr(err).WithField("attempt", attempt).Warn("创建验证记录失败")
			if attempt < o.config.DNSRetries {
				select {
				case <-o.registry.CancelChan(d.operationID):
					return NewCancelledError("续期操作已取消")
				case <-d.ctx.Done():
					return NewCancelledError("续期操作已中止")
				case <-time.After(backoff):
				}
				backoff *= 2
			}
			continue
		}
		return nil
	}
	return NewDNSProviderError(fmt.Sprintf("创建域名 %s 的验证记录失败", domain), lastErr)
}

// waitPropagation 自动模式传播等待：有界轮询，超时可按配置降级到手动模式
func (d *challengeDriver) waitPropagation(fqdn, value, domain string) error {
	o := d.orchestrator

	if err := o.transition(d.operationID, model.StatusWaitingDNSPropagation, fmt.Sprintf("正在等待域名 %s 的验证记录传播", domain)); err != nil {
		return err
	}

	for attempt := 1; attempt <= o.config.PropagationAttempts; attempt++ {
		select {
		case <-o.registry.CancelChan(d.operationID):
			return NewCancelledError("续期操作已取消")
		case <-d.ctx.Done():
			return NewCancelledError("续期操作已中止")
		case <-time.After(o.config.PropagationInterval):
		}

		observed, err := d.provider.CheckPropagated(d.ctx, fqdn, value)
		if err != nil {
			d.log.WithErr(err).WithField("attempt", attempt).Debug("传播检查失败")
			continue
		}
		if observed {
			return nil
		}
	}

	if d.conn.DemoteToManual == 1 {
		d.log.Warn("传播等待超时，降级为手动模式继续等待")
		return d.waitManual(fqdn, value, domain)
	}
	return NewPropagationTimeoutError(fmt.Sprintf("域名 %s 的验证记录在限定时间内未传播", domain))
}

// waitManual 手动模式等待：展示记录详情，无限轮询直至观测到记录或被取消
func (d *challengeDriver) waitManual(fqdn, value, domain string) error {
	o := d.orchestrator
	recordName := strings.TrimSuffix(fqdn, ".")

	manual := &ManualDNSProvider{}
	entry := &model.ManualDNSEntry{
		RecordName:   recordName,
		RecordValue:  value,
		Instructions: manual.Instructions(fqdn, value),
	}

	snapshot, err := o.registry.Update(d.operationID, func(op *model.RenewalOperation) {
		op.Status = model.StatusWaitingManualDNS
		if p := model.StatusWaitingManualDNS.Progress(); p > op.Progress {
			op.Progress = p
		}
		op.Message = fmt.Sprintf("请手动添加域名 %s 的验证记录", domain)
		op.ManualDNSEntry = entry
		op.Logs = append(op.Logs, model.OperationLogLine{Time: time.Now(), Message: op.Message})
	})
	if err != nil {
		return err
	}
	o.publish(snapshot)

	for {
		select {
		case <-o.registry.CancelChan(d.operationID):
			return NewCancelledError("续期操作已取消")
		case <-d.ctx.Done():
			return NewCancelledError("续期操作已中止")
		case <-time.After(o.config.ManualPollInterval):
		}

		observed, err := d.provider.CheckPropagated(d.ctx, fqdn, value)
		if err != nil {
			d.log.WithErr(err).Debug("手动模式传播检查失败")
			continue
		}
		if observed {
			return nil
		}
	}
}

// fail 记录驱动器内部失败，供编排器在 lego 返回后优先采信
func (d *challengeDriver) fail(err error) error {
	d.mu.Lock()
	if d.failure == nil {
		d.failure = err
	}
	d.mu.Unlock()
	return err
}

// takeFailure 取出驱动器内部失败（如有）
func (d *challengeDriver) takeFailure() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failure
}

// ensureCleanup 兜底清理：lego 未触发 CleanUp 时（提前失败、取消）补一次
func (d *challengeDriver) ensureCleanup() {
	d.mu.Lock()
	domain, token, keyAuth := d.lastDomain, d.lastToken, d.lastKeyAuth
	d.mu.Unlock()
	if domain == "" {
		return
	}
	d.cleanup(domain, token, keyAuth)
}

// cleanup 删除验证记录，失败只记日志不影响终态
func (d *challengeDriver) cleanup(domain, token, keyAuth string) {
	d.mu.Lock()
	if d.cleaned || !d.created || d.provider == nil || !d.provider.Automated() {
		d.mu.Unlock()
		return
	}
	d.cleaned = true
	d.mu.Unlock()

	if err := d.provider.CleanUp(domain, token, keyAuth); err != nil {
		d.log.WithErr(err).Warn("删除验证记录失败，可能需要手动清理")
		return
	}
	d.orchestrator.appendLog(d.operationID, "验证记录已清理")
}
