package app

import (
	"context"
	"encoding/json"
	"time"
	"xiaozhengshu/pkg/core/mvc"
	"xiaozhengshu/system/renewal/internal/model"
	"xiaozhengshu/system/renewal/internal/service"
	"xiaozhengshu/utils"
)

// CreateConnection 创建连接配置
// 部署配置中的口令/私钥在落库前加密
func (a *App) CreateConnection(ctx context.Context, conn *model.Connection) error {
	if err := a.validateConnection(ctx, conn); err != nil {
		return err
	}

	deployConfig, err := a.prepareDeployConfig(conn.TargetType, conn.DeployConfig)
	if err != nil {
		return err
	}
	conn.DeployConfig = deployConfig

	if conn.RenewBeforeDays <= 0 {
		conn.RenewBeforeDays = 30
	}
	if conn.AcmeEnv == "" {
		conn.AcmeEnv = model.AcmeEnvProduction
	}

	if err := a.ConnectionDao.Create(ctx, conn); err != nil {
		return a.err.New("保存连接配置失败", err)
	}

	a.log.WithField("connectionId", conn.ID).Info("连接配置已创建")
	return nil
}

// UpdateConnection 更新连接配置
func (a *App) UpdateConnection(ctx context.Context, id int64, conn *model.Connection) error {
	existing, err := a.ConnectionDao.FindById(ctx, id)
	if err != nil {
		return a.err.New("获取连接配置失败", err)
	}

	// 进行中的连接不允许修改
	if a.Registry.GetByConnection(id) != nil {
		return a.err.New("连接有进行中的续期操作，暂不能修改", nil).ValidWithCtx()
	}

	if err := a.validateConnection(ctx, conn); err != nil {
		return err
	}

	deployConfig, err := a.prepareDeployConfig(conn.TargetType, conn.DeployConfig)
	if err != nil {
		return err
	}
	conn.DeployConfig = deployConfig
	conn.ID = existing.ID
	conn.AcmeAccountKey = existing.AcmeAccountKey

	if _, err := a.ConnectionDao.UpdateById(ctx, id, conn); err != nil {
		return a.err.New("更新连接配置失败", err)
	}
	return nil
}

// DeleteConnection 删除连接配置
func (a *App) DeleteConnection(ctx context.Context, id int64) error {
	if a.Registry.GetByConnection(id) != nil {
		return a.err.New("连接有进行中的续期操作，暂不能删除", nil).ValidWithCtx()
	}
	if err := a.ConnectionDao.DeleteById(ctx, id); err != nil {
		return a.err.New("删除连接配置失败", err)
	}
	return nil
}

// GetConnection 获取连接详情
func (a *App) GetConnection(ctx context.Context, id int64) (*model.Connection, error) {
	return a.ConnectionDao.FindById(ctx, id)
}

// ListConnections 分页查询连接列表
func (a *App) ListConnections(ctx context.Context, page, pageSize int) ([]*model.Connection, int64, error) {
	pageInfo := &mvc.Page{
		PageNum: page,
		Size:    pageSize,
	}
	return a.ConnectionDao.FindPage(ctx, pageInfo, nil)
}

// ListRenewalHistory 分页查询连接的续期历史
func (a *App) ListRenewalHistory(ctx context.Context, connectionID int64, page, pageSize int) ([]model.RenewalHistory, int64, error) {
	pageInfo := &mvc.Page{
		PageNum: page,
		Size:    pageSize,
	}
	return a.HistoryDao.FindByConnectionID(ctx, connectionID, pageInfo)
}

// validateConnection 校验连接配置的完备性
func (a *App) validateConnection(ctx context.Context, conn *model.Connection) error {
	if conn.Name == "" || conn.Hostname == "" || conn.Domain == "" || conn.AcmeEmail == "" {
		return a.err.New("连接配置缺少 name、hostname、domain 或 acmeEmail", nil).ValidWithCtx()
	}
	if conn.DnsProvider.IsAutomated() {
		if conn.DnsCredentialID == 0 {
			return a.err.New("自动 DNS 服务商需要配置凭证", nil).ValidWithCtx()
		}
		credential, err := a.DnsCredentialDao.FindById(ctx, conn.DnsCredentialID)
		if err != nil {
			return a.err.New("DNS 凭证不存在", err)
		}
		if credential.Provider != conn.DnsProvider {
			return a.err.New("DNS 凭证的服务商与连接配置不一致", nil).ValidWithCtx()
		}
	}
	return nil
}

// prepareDeployConfig 按目标类型校验部署配置并加密其中的敏感字段
func (a *App) prepareDeployConfig(targetType model.TargetType, raw string) (string, error) {
	if raw == "" {
		return "", a.err.New("缺少部署配置", nil).ValidWithCtx()
	}

	switch targetType {
	case model.TargetTypeVoiceInfra:
		var config model.VoiceDeployConfig
		if err := json.Unmarshal([]byte(raw), &config); err != nil {
			return "", a.err.New("解析部署配置失败", err).ValidWithCtx()
		}
		if _, err := utils.Validate(config); err != nil {
			return "", a.err.New("部署配置验证失败", err).ValidWithCtx()
		}
		if err := a.encryptField(&config.Password); err != nil {
			return "", err
		}
		data, _ := json.Marshal(config)
		return string(data), nil

	case model.TargetTypeIdentityEngine:
		var config model.IdentityDeployConfig
		if err := json.Unmarshal([]byte(raw), &config); err != nil {
			return "", a.err.New("解析部署配置失败", err).ValidWithCtx()
		}
		if _, err := utils.Validate(config); err != nil {
			return "", a.err.New("部署配置验证失败", err).ValidWithCtx()
		}
		if len(service.ParseIdentityRoles(config.UsedFor)) == 0 {
			return "", a.err.New("身份引擎部署配置缺少有效的证书用途角色", nil).ValidWithCtx()
		}
		if err := a.encryptField(&config.Password); err != nil {
			return "", err
		}
		data, _ := json.Marshal(config)
		return string(data), nil

	case model.TargetTypeSSH:
		var config model.SSHDeployConfig
		if err := json.Unmarshal([]byte(raw), &config); err != nil {
			return "", a.err.New("解析部署配置失败", err).ValidWithCtx()
		}
		if _, err := utils.Validate(config); err != nil {
			return "", a.err.New("部署配置验证失败", err).ValidWithCtx()
		}
		if err := a.encryptField(&config.Password); err != nil {
			return "", err
		}
		if err := a.encryptField(&config.PrivateKey); err != nil {
			return "", err
		}
		data, _ := json.Marshal(config)
		return string(data), nil

	default:
		return "", a.err.New("不支持的部署目标类型", nil).ValidWithCtx()
	}
}

// encryptField 就地加密字段，已加密的保持不变
func (a *App) encryptField(field *string) error {
	if *field == "" || a.CryptoService.IsEncrypted(*field) {
		return nil
	}
	encrypted, err := a.CryptoService.Encrypt(*field)
	if err != nil {
		return a.err.New("加密敏感字段失败", err)
	}
	*field = encrypted
	return nil
}

// ===== DNS 凭证管理 =====

// CreateDnsCredential 创建 DNS 凭证，密钥落库前加密
func (a *App) CreateDnsCredential(ctx context.Context, credential *model.DnsCredential) error {
	if err := a.validateCredentialFields(credential); err != nil {
		return err
	}
	if err := a.encryptField(&credential.AccessKey); err != nil {
		return err
	}
	if err := a.encryptField(&credential.SecretKey); err != nil {
		return err
	}
	if err := a.DnsCredentialDao.Create(ctx, credential); err != nil {
		return a.err.New("保存 DNS 凭证失败", err)
	}
	return nil
}

// UpdateDnsCredential 更新 DNS 凭证
func (a *App) UpdateDnsCredential(ctx context.Context, id int64, credential *model.DnsCredential) error {
	existing, err := a.DnsCredentialDao.FindById(ctx, id)
	if err != nil {
		return a.err.New("获取 DNS 凭证失败", err)
	}

	if err := a.validateCredentialFields(credential); err != nil {
		return err
	}

	// 密钥留空表示不修改
	if credential.AccessKey == "" {
		credential.AccessKey = existing.AccessKey
	} else if err := a.encryptField(&credential.AccessKey); err != nil {
		return err
	}
	if credential.SecretKey == "" {
		credential.SecretKey = existing.SecretKey
	} else if err := a.encryptField(&credential.SecretKey); err != nil {
		return err
	}

	credential.ID = existing.ID
	if _, err := a.DnsCredentialDao.UpdateById(ctx, id, credential); err != nil {
		return a.err.New("更新 DNS 凭证失败", err)
	}
	return nil
}

// DeleteDnsCredential 删除 DNS 凭证
func (a *App) DeleteDnsCredential(ctx context.Context, id int64) error {
	count, err := a.ConnectionDao.CountByMap(ctx, map[string]interface{}{"dns_credential_id": id})
	if err != nil {
		return a.err.New("检查凭证引用失败", err)
	}
	if count > 0 {
		return a.err.New("凭证仍被连接引用，无法删除", nil).ValidWithCtx()
	}
	if err := a.DnsCredentialDao.DeleteById(ctx, id); err != nil {
		return a.err.New("删除 DNS 凭证失败", err)
	}
	return nil
}

// ListDnsCredentials 分页查询 DNS 凭证列表
func (a *App) ListDnsCredentials(ctx context.Context, page, pageSize int) ([]*model.DnsCredential, int64, error) {
	pageInfo := &mvc.Page{
		PageNum: page,
		Size:    pageSize,
	}
	return a.DnsCredentialDao.FindPage(ctx, pageInfo, nil)
}

// TestDnsCredential 校验凭证字段能否构造出对应服务商的客户端
func (a *App) TestDnsCredential(ctx context.Context, id int64) error {
	credential, err := a.DnsCredentialDao.FindById(ctx, id)
	if err != nil {
		return a.err.New("获取 DNS 凭证失败", err)
	}

	accessKey, err := a.CryptoService.Decrypt(credential.AccessKey)
	if err != nil {
		return a.err.New("解密 DNS 凭证失败", err)
	}
	secretKey, err := a.CryptoService.Decrypt(credential.SecretKey)
	if err != nil {
		return a.err.New("解密 DNS 凭证失败", err)
	}

	cred := &service.DnsProviderCredential{
		AccessKey: accessKey,
		SecretKey: secretKey,
	}
	if credential.ExtraConfig != nil {
		cred.Extra = map[string]interface{}(*credential.ExtraConfig)
	}

	if _, err := a.DnsFactory.Create(credential.Provider, cred); err != nil {
		return err
	}
	return nil
}

// validateCredentialFields 基础字段校验
func (a *App) validateCredentialFields(credential *model.DnsCredential) error {
	if credential.Name == "" || credential.Provider == "" {
		return a.err.New("DNS 凭证缺少 name 或 provider", nil).ValidWithCtx()
	}
	if !credential.Provider.IsAutomated() {
		return a.err.New("custom 服务商无需配置凭证", nil).ValidWithCtx()
	}
	return nil
}

// ===== 连通性测试 =====

// ConnectivityResult 连通性测试结果
type ConnectivityResult struct {
	Reachable    bool       `json:"reachable"`
	TLSExpiresAt *time.Time `json:"tlsExpiresAt,omitempty"`
	HostCovered  *bool      `json:"hostCovered,omitempty"`
	CertSubject  string     `json:"certSubject,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// TestTCPConnectivity 测试目标端口可达性
func (a *App) TestTCPConnectivity(host string, port int) *ConnectivityResult {
	if err := service.ProbeTCP(host, port, 10*time.Second); err != nil {
		return &ConnectivityResult{Reachable: false, Error: err.Error()}
	}
	return &ConnectivityResult{Reachable: true}
}

// TestTLSConnectivity 测试 TLS 握手，返回对端证书过期时间
// 以及证书是否覆盖被探测的主机名
func (a *App) TestTLSConnectivity(host string, port int) *ConnectivityResult {
	probe, err := service.ProbeTLS(host, port, 10*time.Second)
	if err != nil {
		return &ConnectivityResult{Reachable: false, Error: err.Error()}
	}
	return &ConnectivityResult{
		Reachable:    true,
		TLSExpiresAt: &probe.ExpiresAt,
		HostCovered:  &probe.HostCovered,
		CertSubject:  probe.Subject,
	}
}

// TestSSHConnectivity 测试 SSH 目标的凭证可用性
func (a *App) TestSSHConnectivity(ctx context.Context, connectionID int64) error {
	conn, err := a.ConnectionDao.FindById(ctx, connectionID)
	if err != nil {
		return a.err.New("获取连接配置失败", err)
	}
	if conn.TargetType != model.TargetTypeSSH {
		return a.err.New("连接不是 SSH 目标类型", nil).ValidWithCtx()
	}

	adapter, err := a.DeployService.Adapter(model.TargetTypeSSH)
	if err != nil {
		return err
	}
	sshAdapter, ok := adapter.(*service.SSHDeployAdapter)
	if !ok {
		return a.err.New("SSH 适配器不可用", nil)
	}
	return sshAdapter.TestConnection(conn)
}
