package service

import (
	"context"
	"encoding/json"
	"fmt"
	errorc "xiaozhengshu/pkg/core/err"
	"xiaozhengshu/pkg/core/logger"
	"xiaozhengshu/system/renewal/internal/model"

	"github.com/tidwall/gjson"
)

// VoiceDeployAdapter 语音平台部署适配器
// 通过设备自带的管理 REST API 上传证书，
// CSR 由设备生成（私钥不出设备），部署后可选重启依赖服务
type VoiceDeployAdapter struct {
	log    *logger.Log
	err    *errorc.ErrorBuilder
	crypto *CryptoService
	api    APICaller
}

// NewVoiceDeployAdapter 创建语音平台部署适配器
func NewVoiceDeployAdapter(log *logger.Log, crypto *CryptoService, api APICaller) *VoiceDeployAdapter {
	return &VoiceDeployAdapter{
		log:    log.WithEntryName("VoiceDeployAdapter"),
		err:    errorc.NewErrorBuilder("VoiceDeployAdapter"),
		crypto: crypto,
		api:    api,
	}
}

func (a *VoiceDeployAdapter) TargetType() model.TargetType {
	return model.TargetTypeVoiceInfra
}

// parseConfig 解析并解密部署配置
func (a *VoiceDeployAdapter) parseConfig(conn *model.Connection) (*model.VoiceDeployConfig, error) {
	var config model.VoiceDeployConfig
	if err := json.Unmarshal([]byte(conn.DeployConfig), &config); err != nil {
		return nil, NewValidationError(fmt.Sprintf("解析语音平台部署配置失败: %v", err))
	}
	if config.Host == "" || config.Username == "" {
		return nil, NewValidationError("语音平台部署配置缺少 host 或 username")
	}

	password, err := a.crypto.Decrypt(config.Password)
	if err != nil {
		return nil, NewValidationError("解密语音平台管理口令失败")
	}
	config.Password = password

	if config.Port == 0 {
		config.Port = 443
	}
	return &config, nil
}

func (a *VoiceDeployAdapter) baseURL(config *model.VoiceDeployConfig) string {
	return fmt.Sprintf("https://%s:%d", config.Host, config.Port)
}

// FetchCSR 请求设备生成并返回 CSR
func (a *VoiceDeployAdapter) FetchCSR(ctx context.Context, conn *model.Connection) (string, error) {
	config, err := a.parseConfig(conn)
	if err != nil {
		return "", err
	}

	body, _ := json.Marshal(map[string]interface{}{
		"commonName": conn.Hostname,
		"sanNames":   splitAltNames(conn.AltNames),
		"service":    "tomcat",
	})

	resp, err := a.api.Do(ctx, &apiRequest{
		Method:   "POST",
		URL:      a.baseURL(config) + "/platform/api/v1/certmgr/csr",
		Username: config.Username,
		Password: config.Password,
		Body:     body,
	})
	if err != nil {
		return "", NewDeploymentError("请求语音平台生成 CSR 失败", err)
	}
	if resp.StatusCode >= 400 {
		return "", NewDeploymentError(fmt.Sprintf("语音平台生成 CSR 返回 %d: %s", resp.StatusCode, gjson.GetBytes(resp.Body, "messages.0").String()), nil)
	}

	csr := gjson.GetBytes(resp.Body, "csr").String()
	if csr == "" {
		return "", NewDeploymentError("语音平台返回的 CSR 为空", nil)
	}

	a.log.WithField("hostname", conn.Hostname).Info("已从语音平台获取 CSR")
	return csr, nil
}

// Deploy 通过管理 API 上传签发的证书与 CA 链
func (a *VoiceDeployAdapter) Deploy(ctx context.Context, conn *model.Connection, bundle *model.CertificateBundle) (*DeployResult, error) {
	config, err := a.parseConfig(conn)
	if err != nil {
		return nil, err
	}

	body, _ := json.Marshal(map[string]interface{}{
		"service":     "tomcat",
		"certificate": bundle.CertificatePem,
		"caChain":     bundle.ChainPem,
	})

	resp, err := a.api.Do(ctx, &apiRequest{
		Method:   "POST",
		URL:      a.baseURL(config) + "/platform/api/v1/certmgr/identity",
		Username: config.Username,
		Password: config.Password,
		Body:     body,
	})
	if err != nil {
		return nil, NewDeploymentError("上传证书到语音平台失败", err)
	}

	if resp.StatusCode == 401 || resp.StatusCode == 403 {
		return &DeployResult{
			Success: false,
			Details: map[string]interface{}{
				"host":  config.Host,
				"error": "管理 API 认证失败",
			},
		}, nil
	}
	if resp.StatusCode >= 400 {
		return &DeployResult{
			Success: false,
			Details: map[string]interface{}{
				"host":   config.Host,
				"status": resp.StatusCode,
				"error":  gjson.GetBytes(resp.Body, "messages.0").String(),
			},
		}, nil
	}

	a.log.WithField("host", config.Host).Info("证书已上传到语音平台")
	return &DeployResult{
		Success: true,
		Details: map[string]interface{}{
			"host":   config.Host,
			"serial": bundle.Serial,
		},
	}, nil
}

func (a *VoiceDeployAdapter) SupportsRestart(conn *model.Connection) bool {
	var config model.VoiceDeployConfig
	if err := json.Unmarshal([]byte(conn.DeployConfig), &config); err != nil {
		return false
	}
	return config.RestartService == 1 && config.ServiceName != ""
}

// RestartService 重启证书依赖的服务（如管理 Web 服务）
func (a *VoiceDeployAdapter) RestartService(ctx context.Context, conn *model.Connection) (*DeployResult, error) {
	config, err := a.parseConfig(conn)
	if err != nil {
		return nil, err
	}

	body, _ := json.Marshal(map[string]interface{}{
		"service": config.ServiceName,
		"action":  "restart",
	})

	resp, err := a.api.Do(ctx, &apiRequest{
		Method:   "POST",
		URL:      a.baseURL(config) + "/platform/api/v1/services/control",
		Username: config.Username,
		Password: config.Password,
		Body:     body,
	})
	if err != nil {
		return nil, NewDeploymentError("请求语音平台重启服务失败", err)
	}
	if resp.StatusCode >= 400 {
		return &DeployResult{
			Success: false,
			Details: map[string]interface{}{
				"service": config.ServiceName,
				"status":  resp.StatusCode,
				"error":   gjson.GetBytes(resp.Body, "messages.0").String(),
			},
		}, nil
	}

	a.log.WithField("service", config.ServiceName).Info("语音平台服务重启已触发")
	return &DeployResult{
		Success: true,
		Details: map[string]interface{}{
			"service": config.ServiceName,
		},
	}, nil
}
