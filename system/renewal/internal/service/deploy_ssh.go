package service

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"time"
	errorc "xiaozhengshu/pkg/core/err"
	"xiaozhengshu/pkg/core/logger"
	"xiaozhengshu/system/renewal/internal/model"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SSHDeployAdapter 通用 SSH/SFTP 部署适配器
// 通过 SFTP 上传证书、私钥和可选的证书链到配置的远程路径，
// 随后可执行操作员配置的重载命令
type SSHDeployAdapter struct {
	log    *logger.Log
	err    *errorc.ErrorBuilder
	crypto *CryptoService
}

// NewSSHDeployAdapter 创建 SSH 部署适配器
func NewSSHDeployAdapter(log *logger.Log, crypto *CryptoService) *SSHDeployAdapter {
	return &SSHDeployAdapter{
		log:    log.WithEntryName("SSHDeployAdapter"),
		err:    errorc.NewErrorBuilder("SSHDeployAdapter"),
		crypto: crypto,
	}
}

func (a *SSHDeployAdapter) TargetType() model.TargetType {
	return model.TargetTypeSSH
}

func (a *SSHDeployAdapter) parseConfig(conn *model.Connection) (*model.SSHDeployConfig, error) {
	var config model.SSHDeployConfig
	if err := json.Unmarshal([]byte(conn.DeployConfig), &config); err != nil {
		return nil, NewValidationError(fmt.Sprintf("解析 SSH 部署配置失败: %v", err))
	}
	if config.Host == "" || config.Username == "" || config.RemotePath == "" {
		return nil, NewValidationError("SSH 部署配置缺少 host、username 或 remotePath")
	}

	password, err := a.crypto.Decrypt(config.Password)
	if err != nil {
		return nil, NewValidationError("解密 SSH 口令失败")
	}
	config.Password = password

	privateKey, err := a.crypto.Decrypt(config.PrivateKey)
	if err != nil {
		return nil, NewValidationError("解密 SSH 私钥失败")
	}
	config.PrivateKey = privateKey

	if config.Port == 0 {
		config.Port = 22
	}
	if config.CertName == "" {
		config.CertName = "fullchain.pem"
	}
	if config.KeyName == "" {
		config.KeyName = "privkey.pem"
	}
	return &config, nil
}

// Deploy 上传证书文件并执行可选的重载命令
func (a *SSHDeployAdapter) Deploy(ctx context.Context, conn *model.Connection, bundle *model.CertificateBundle) (*DeployResult, error) {
	config, err := a.parseConfig(conn)
	if err != nil {
		return nil, err
	}

	// 1. 建立 SSH 连接
	sshClient, err := a.createSSHClient(config)
	if err != nil {
		// 认证失败和主机不可达属于预期内失败
		return &DeployResult{
			Success: false,
			Details: map[string]interface{}{
				"host":  config.Host,
				"error": err.Error(),
			},
		}, nil
	}
	defer sshClient.Close()

	// 2. 创建 SFTP 客户端
	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return nil, NewDeploymentError("创建 SFTP 客户端失败", err)
	}
	defer sftpClient.Close()

	// 3. 创建远程目录
	if err := sftpClient.MkdirAll(config.RemotePath); err != nil {
		return nil, NewDeploymentError("创建远程目录失败", err)
	}

	// 4. 上传证书文件（私钥恒为 0600）
	uploaded := []string{}
	certPath := path.Join(config.RemotePath, config.CertName)
	if err := a.uploadFile(sftpClient, certPath, []byte(bundle.FullchainPem), config.FileMode); err != nil {
		return nil, NewDeploymentError("上传证书文件失败", err)
	}
	uploaded = append(uploaded, certPath)

	keyPath := path.Join(config.RemotePath, config.KeyName)
	if err := a.uploadFile(sftpClient, keyPath, []byte(bundle.PrivateKeyPem), "0600"); err != nil {
		return nil, NewDeploymentError("上传私钥文件失败", err)
	}
	uploaded = append(uploaded, keyPath)

	if config.ChainName != "" && bundle.ChainPem != "" {
		chainPath := path.Join(config.RemotePath, config.ChainName)
		if err := a.uploadFile(sftpClient, chainPath, []byte(bundle.ChainPem), config.FileMode); err != nil {
			return nil, NewDeploymentError("上传证书链文件失败", err)
		}
		uploaded = append(uploaded, chainPath)
	}

	a.log.WithFields(map[string]interface{}{
		"host":  config.Host,
		"files": uploaded,
	}).Info("证书文件上传成功")

	return &DeployResult{
		Success: true,
		Details: map[string]interface{}{
			"host":  config.Host,
			"files": uploaded,
		},
	}, nil
}

func (a *SSHDeployAdapter) SupportsRestart(conn *model.Connection) bool {
	var config model.SSHDeployConfig
	if err := json.Unmarshal([]byte(conn.DeployConfig), &config); err != nil {
		return false
	}
	return config.RestartCommand != ""
}

// RestartService 执行操作员配置的远程重载命令
func (a *SSHDeployAdapter) RestartService(ctx context.Context, conn *model.Connection) (*DeployResult, error) {
	config, err := a.parseConfig(conn)
	if err != nil {
		return nil, err
	}
	if config.RestartCommand == "" {
		return nil, NewDeploymentError("未配置重载命令", nil)
	}

	sshClient, err := a.createSSHClient(config)
	if err != nil {
		return &DeployResult{
			Success: false,
			Details: map[string]interface{}{
				"host":  config.Host,
				"error": err.Error(),
			},
		}, nil
	}
	defer sshClient.Close()

	output, err := a.executeSSHCommand(sshClient, config.RestartCommand)
	if err != nil {
		return &DeployResult{
			Success: false,
			Details: map[string]interface{}{
				"host":    config.Host,
				"command": config.RestartCommand,
				"output":  output,
				"error":   err.Error(),
			},
		}, nil
	}

	a.log.WithField("command", config.RestartCommand).Info("远程重载命令执行成功")
	return &DeployResult{
		Success: true,
		Details: map[string]interface{}{
			"host":    config.Host,
			"command": config.RestartCommand,
			"output":  output,
		},
	}, nil
}

// TestConnection 验证 SSH 凭证可用性（保存连接前探测）
func (a *SSHDeployAdapter) TestConnection(conn *model.Connection) error {
	config, err := a.parseConfig(conn)
	if err != nil {
		return err
	}

	sshClient, err := a.createSSHClient(config)
	if err != nil {
		return a.err.New("SSH 连接测试失败", err).Third()
	}
	defer sshClient.Close()

	if _, err := a.executeSSHCommand(sshClient, "echo ok"); err != nil {
		return a.err.New("SSH 命令执行测试失败", err).Third()
	}
	return nil
}

// createSSHClient 创建 SSH 客户端
// 支持口令、私钥和 keyboard-interactive 三种认证方式，
// 部分虚拟化管理 shell 只接受 keyboard-interactive
func (a *SSHDeployAdapter) createSSHClient(config *model.SSHDeployConfig) (*ssh.Client, error) {
	var authMethods []ssh.AuthMethod

	switch config.AuthMethod {
	case "privatekey":
		if config.PrivateKey == "" {
			return nil, fmt.Errorf("私钥认证缺少私钥内容")
		}
		signer, err := ssh.ParsePrivateKey([]byte(config.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("解析 SSH 私钥失败: %w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))

	case "keyboard_interactive":
		if config.Password == "" {
			return nil, fmt.Errorf("keyboard-interactive 认证缺少口令")
		}
		password := config.Password
		authMethods = append(authMethods, ssh.KeyboardInteractive(
			func(name, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = password
				}
				return answers, nil
			},
		))
		// 同时附带口令认证，服务端按顺序尝试
		authMethods = append(authMethods, ssh.Password(password))

	case "password":
		if config.Password == "" {
			return nil, fmt.Errorf("口令认证缺少口令")
		}
		authMethods = append(authMethods, ssh.Password(config.Password))

	default:
		return nil, fmt.Errorf("无效的 SSH 认证方式: %s", config.AuthMethod)
	}

	sshConfig := &ssh.ClientConfig{
		User:            config.Username,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // 生产环境应验证 host key
		Timeout:         30 * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	client, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return nil, fmt.Errorf("连接 SSH 服务器失败: %w", err)
	}

	return client, nil
}

// uploadFile 上传文件到 SFTP
func (a *SSHDeployAdapter) uploadFile(sftpClient *sftp.Client, remotePath string, content []byte, fileModeStr string) error {
	file, err := sftpClient.Create(remotePath)
	if err != nil {
		return fmt.Errorf("创建远程文件失败: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(content); err != nil {
		return fmt.Errorf("写入远程文件失败: %w", err)
	}

	if fileModeStr == "" {
		fileModeStr = "0644"
	}
	if mode, err := strconv.ParseUint(fileModeStr, 8, 32); err == nil {
		if err := sftpClient.Chmod(remotePath, os.FileMode(mode)); err != nil {
			a.log.WithErr(err).Warn("设置远程文件权限失败")
		}
	}

	return nil
}

// executeSSHCommand 执行 SSH 远程命令
func (a *SSHDeployAdapter) executeSSHCommand(client *ssh.Client, command string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("创建 SSH 会话失败: %w", err)
	}
	defer session.Close()

	output, err := session.CombinedOutput(command)
	if err != nil {
		return string(output), fmt.Errorf("命令执行失败: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// ProbeTCP 测试目标端口可达性
func ProbeTCP(host string, port int, timeout time.Duration) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return fmt.Errorf("TCP 连接 %s 失败: %w", addr, err)
	}
	conn.Close()
	return nil
}

// TLSProbeResult TLS 探测结果
type TLSProbeResult struct {
	// ExpiresAt 对端证书的过期时间
	ExpiresAt time.Time
	// HostCovered 对端证书是否覆盖被探测的主机名（含通配符）
	HostCovered bool
	// Subject 对端证书的主题通用名
	Subject string
}

// ProbeTLS 测试目标端口的 TLS 握手并检查对端证书
func ProbeTLS(host string, port int, timeout time.Duration) (*TLSProbeResult, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		return nil, fmt.Errorf("TLS 握手 %s 失败: %w", addr, err)
	}
	defer conn.Close()

	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return nil, fmt.Errorf("目标 %s 未返回证书", addr)
	}
	leaf := certs[0]
	return &TLSProbeResult{
		ExpiresAt:   leaf.NotAfter,
		HostCovered: domainMatchesCert(host, leaf),
		Subject:     leaf.Subject.CommonName,
	}, nil
}
