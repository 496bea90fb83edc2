package service

import (
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"strings"
	errorc "xiaozhengshu/pkg/core/err"
	"xiaozhengshu/pkg/core/logger"
	"xiaozhengshu/system/renewal/internal/model"

	"github.com/tidwall/gjson"
)

// 身份引擎支持的证书用途角色
var identityValidRoles = map[string]bool{
	"admin":  true,
	"eap":    true,
	"portal": true,
	"pxgrid": true,
	"dtls":   true,
}

// IdentityDeployAdapter 身份策略引擎部署适配器
// 先幂等地把根证书和中间证书预载入信任库（已存在则跳过），
// 再按证书用途角色导入叶子证书
type IdentityDeployAdapter struct {
	log    *logger.Log
	err    *errorc.ErrorBuilder
	crypto *CryptoService
	api    APICaller
}

// NewIdentityDeployAdapter 创建身份引擎部署适配器
func NewIdentityDeployAdapter(log *logger.Log, crypto *CryptoService, api APICaller) *IdentityDeployAdapter {
	return &IdentityDeployAdapter{
		log:    log.WithEntryName("IdentityDeployAdapter"),
		err:    errorc.NewErrorBuilder("IdentityDeployAdapter"),
		crypto: crypto,
		api:    api,
	}
}

func (a *IdentityDeployAdapter) TargetType() model.TargetType {
	return model.TargetTypeIdentityEngine
}

func (a *IdentityDeployAdapter) parseConfig(conn *model.Connection) (*model.IdentityDeployConfig, error) {
	var config model.IdentityDeployConfig
	if err := json.Unmarshal([]byte(conn.DeployConfig), &config); err != nil {
		return nil, NewValidationError(fmt.Sprintf("解析身份引擎部署配置失败: %v", err))
	}
	if config.Host == "" || config.Username == "" {
		return nil, NewValidationError("身份引擎部署配置缺少 host 或 username")
	}

	password, err := a.crypto.Decrypt(config.Password)
	if err != nil {
		return nil, NewValidationError("解密身份引擎管理口令失败")
	}
	config.Password = password

	if config.Port == 0 {
		config.Port = 443
	}
	return &config, nil
}

func (a *IdentityDeployAdapter) baseURL(config *model.IdentityDeployConfig) string {
	return fmt.Sprintf("https://%s:%d", config.Host, config.Port)
}

// Deploy 信任库预载入 + 角色化导入叶子证书
func (a *IdentityDeployAdapter) Deploy(ctx context.Context, conn *model.Connection, bundle *model.CertificateBundle) (*DeployResult, error) {
	config, err := a.parseConfig(conn)
	if err != nil {
		return nil, err
	}

	roles := ParseIdentityRoles(config.UsedFor)
	if len(roles) == 0 {
		return nil, NewValidationError("身份引擎部署配置缺少有效的证书用途角色")
	}

	// 1. 读取当前信任库指纹列表
	existing, err := a.listTrustFingerprints(ctx, config)
	if err != nil {
		return nil, err
	}

	// 2. 幂等预载入根证书和中间证书
	preloaded := []string{}
	skipped := []string{}
	for _, item := range []struct {
		name string
		pem  string
	}{
		{"root", bundle.RootPem},
		{"intermediate", bundle.IntermediatePem},
	} {
		if item.pem == "" {
			continue
		}
		fingerprint, fpErr := PemFingerprint(item.pem)
		if fpErr != nil {
			return nil, NewDeploymentError(fmt.Sprintf("计算 %s 证书指纹失败", item.name), fpErr)
		}
		if existing[fingerprint] {
			skipped = append(skipped, item.name)
			continue
		}
		if err := a.importTrustCert(ctx, config, item.name, item.pem); err != nil {
			return nil, err
		}
		preloaded = append(preloaded, item.name)
	}

	// 3. 按角色导入叶子证书
	body, _ := json.Marshal(map[string]interface{}{
		"certificate": bundle.CertificatePem,
		"privateKey":  bundle.PrivateKeyPem,
		"roles":       roles,
		"name":        conn.Hostname,
	})

	resp, err := a.api.Do(ctx, &apiRequest{
		Method:   "POST",
		URL:      a.baseURL(config) + "/api/v1/certs/system-certificate/import",
		Username: config.Username,
		Password: config.Password,
		Body:     body,
	})
	if err != nil {
		return nil, NewDeploymentError("导入叶子证书到身份引擎失败", err)
	}
	if resp.StatusCode == 401 || resp.StatusCode == 403 {
		return &DeployResult{
			Success: false,
			Details: map[string]interface{}{
				"host":  config.Host,
				"error": "身份引擎认证失败",
			},
		}, nil
	}
	if resp.StatusCode >= 400 {
		return &DeployResult{
			Success: false,
			Details: map[string]interface{}{
				"host":   config.Host,
				"status": resp.StatusCode,
				"error":  gjson.GetBytes(resp.Body, "response.message").String(),
			},
		}, nil
	}

	a.log.WithFields(map[string]interface{}{
		"host":  config.Host,
		"roles": roles,
	}).Info("证书已导入身份引擎")

	return &DeployResult{
		Success: true,
		Details: map[string]interface{}{
			"host":           config.Host,
			"roles":          roles,
			"trustPreloaded": preloaded,
			"trustSkipped":   skipped,
		},
	}, nil
}

// listTrustFingerprints 列出信任库中已存在的证书指纹
func (a *IdentityDeployAdapter) listTrustFingerprints(ctx context.Context, config *model.IdentityDeployConfig) (map[string]bool, error) {
	resp, err := a.api.Do(ctx, &apiRequest{
		Method:   "GET",
		URL:      a.baseURL(config) + "/api/v1/certs/trusted-certificate",
		Username: config.Username,
		Password: config.Password,
	})
	if err != nil {
		return nil, NewDeploymentError("查询身份引擎信任库失败", err)
	}
	if resp.StatusCode >= 400 {
		return nil, NewDeploymentError(fmt.Sprintf("查询身份引擎信任库返回 %d", resp.StatusCode), nil)
	}

	fingerprints := make(map[string]bool)
	for _, item := range gjson.GetBytes(resp.Body, "response.#.sha256Fingerprint").Array() {
		fingerprints[normalizeFingerprint(item.String())] = true
	}
	return fingerprints, nil
}

// importTrustCert 向信任库导入一张 CA 证书
func (a *IdentityDeployAdapter) importTrustCert(ctx context.Context, config *model.IdentityDeployConfig, name, pemData string) error {
	body, _ := json.Marshal(map[string]interface{}{
		"name":        fmt.Sprintf("%s-ca-%s", config.Host, name),
		"certificate": pemData,
		"trustForIseAuth":    true,
		"trustForClientAuth": false,
	})

	resp, err := a.api.Do(ctx, &apiRequest{
		Method:   "POST",
		URL:      a.baseURL(config) + "/api/v1/certs/trusted-certificate/import",
		Username: config.Username,
		Password: config.Password,
		Body:     body,
	})
	if err != nil {
		return NewDeploymentError(fmt.Sprintf("导入 %s 证书到信任库失败", name), err)
	}
	if resp.StatusCode >= 400 {
		return NewDeploymentError(fmt.Sprintf("导入 %s 证书到信任库返回 %d: %s", name, resp.StatusCode, gjson.GetBytes(resp.Body, "response.message").String()), nil)
	}

	a.log.WithField("cert", name).Info("CA 证书已载入身份引擎信任库")
	return nil
}

// 身份引擎没有独立的重启动作，导入后由引擎自行生效
func (a *IdentityDeployAdapter) SupportsRestart(conn *model.Connection) bool {
	return false
}

func (a *IdentityDeployAdapter) RestartService(ctx context.Context, conn *model.Connection) (*DeployResult, error) {
	return nil, NewDeploymentError("身份引擎不支持服务重启", nil)
}

// ParseIdentityRoles 解析证书用途角色列表，过滤非法值并去重
func ParseIdentityRoles(usedFor string) []string {
	seen := make(map[string]bool)
	var roles []string
	for _, part := range strings.Split(usedFor, ",") {
		role := strings.ToLower(strings.TrimSpace(part))
		if role == "" || !identityValidRoles[role] || seen[role] {
			continue
		}
		seen[role] = true
		roles = append(roles, role)
	}
	return roles
}

// PemFingerprint 计算 PEM 证书的 SHA-256 指纹（小写十六进制）
func PemFingerprint(pemData string) (string, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return "", fmt.Errorf("无法解析 PEM 证书")
	}
	if _, err := x509.ParseCertificate(block.Bytes); err != nil {
		return "", fmt.Errorf("解析 X509 证书失败: %w", err)
	}
	sum := sha256.Sum256(block.Bytes)
	return hex.EncodeToString(sum[:]), nil
}

func normalizeFingerprint(fp string) string {
	fp = strings.ToLower(fp)
	fp = strings.ReplaceAll(fp, ":", "")
	return strings.TrimSpace(fp)
}
