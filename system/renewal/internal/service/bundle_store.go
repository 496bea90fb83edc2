package service

import (
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	errorc "xiaozhengshu/pkg/core/err"
	"xiaozhengshu/pkg/core/logger"
	"xiaozhengshu/system/renewal/internal/model"
)

// 捆绑包内固定的文件名
const (
	BundleFileCertificate  = "certificate.pem"
	BundleFilePrivateKey   = "privkey.pem"
	BundleFileFullchain    = "fullchain.pem"
	BundleFileChain        = "chain.pem"
	BundleFileIntermediate = "intermediate.pem"
	BundleFileRoot         = "root.pem"
)

var bundleFileNames = []string{
	BundleFileCertificate,
	BundleFilePrivateKey,
	BundleFileFullchain,
	BundleFileChain,
	BundleFileIntermediate,
	BundleFileRoot,
}

// BundleStore 证书捆绑包存储
// 目录布局：{baseDir}/{connectionID}/{environment}/<固定文件名>
// 按连接隔离目录，单个连接的重签发或失败不影响其他连接的文件
type BundleStore struct {
	log     *logger.Log
	err     *errorc.ErrorBuilder
	baseDir string
}

// NewBundleStore 创建捆绑包存储实例
func NewBundleStore(log *logger.Log, baseDir string) *BundleStore {
	if baseDir == "" {
		baseDir = "./data/certificates"
	}
	return &BundleStore{
		log:     log.WithEntryName("BundleStore"),
		err:     errorc.NewErrorBuilder("BundleStore"),
		baseDir: baseDir,
	}
}

// Dir 返回连接在指定环境下的捆绑包目录
func (s *BundleStore) Dir(connectionID int64, env model.AcmeEnvironment) string {
	return filepath.Join(s.baseDir, strconv.FormatInt(connectionID, 10), string(env))
}

// Save 写入捆绑包文件
// 私钥权限 0600，其余 0644；空内容的文件（如无根证书）跳过写入
func (s *BundleStore) Save(connectionID int64, env model.AcmeEnvironment, bundle *model.CertificateBundle) error {
	dir := s.Dir(connectionID, env)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return s.err.New("创建证书目录失败", err)
	}

	files := map[string]struct {
		content string
		mode    os.FileMode
	}{
		BundleFileCertificate:  {bundle.CertificatePem, 0644},
		BundleFilePrivateKey:   {bundle.PrivateKeyPem, 0600},
		BundleFileFullchain:    {bundle.FullchainPem, 0644},
		BundleFileChain:        {bundle.ChainPem, 0644},
		BundleFileIntermediate: {bundle.IntermediatePem, 0644},
		BundleFileRoot:         {bundle.RootPem, 0644},
	}

	for name, file := range files {
		if file.content == "" {
			continue
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(file.content), file.mode); err != nil {
			return s.err.New(fmt.Sprintf("写入证书文件 %s 失败", name), err)
		}
	}

	s.log.WithField("connectionId", connectionID).WithField("env", env).Info("证书捆绑包已写入")
	return nil
}

// Load 读取捆绑包
func (s *BundleStore) Load(connectionID int64, env model.AcmeEnvironment) (*model.CertificateBundle, error) {
	dir := s.Dir(connectionID, env)

	read := func(name string) string {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return ""
		}
		return string(data)
	}

	bundle := &model.CertificateBundle{
		CertificatePem:  read(BundleFileCertificate),
		PrivateKeyPem:   read(BundleFilePrivateKey),
		FullchainPem:    read(BundleFileFullchain),
		ChainPem:        read(BundleFileChain),
		IntermediatePem: read(BundleFileIntermediate),
		RootPem:         read(BundleFileRoot),
	}

	if bundle.CertificatePem == "" {
		return nil, s.err.New("连接尚无已签发的证书", nil).NotFound()
	}

	block, _ := pem.Decode([]byte(bundle.CertificatePem))
	if block != nil {
		if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
			bundle.Serial = hex.EncodeToString(cert.SerialNumber.Bytes())
			bundle.IssuedAt = cert.NotBefore
			bundle.ExpiresAt = cert.NotAfter
		}
	}

	return bundle, nil
}

// Inspect 返回捆绑包文件列表及叶子证书解析结果
func (s *BundleStore) Inspect(connectionID int64, env model.AcmeEnvironment) (*model.BundleInfo, error) {
	dir := s.Dir(connectionID, env)

	info := &model.BundleInfo{
		ConnectionID: connectionID,
		Environment:  env,
	}

	for _, name := range bundleFileNames {
		stat, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		info.Files = append(info.Files, model.BundleFile{
			Name:    name,
			Size:    stat.Size(),
			ModTime: stat.ModTime(),
		})
	}

	if len(info.Files) == 0 {
		return nil, s.err.New("连接尚无已签发的证书", nil).NotFound()
	}

	certData, err := os.ReadFile(filepath.Join(dir, BundleFileCertificate))
	if err == nil {
		if block, _ := pem.Decode(certData); block != nil {
			if cert, parseErr := x509.ParseCertificate(block.Bytes); parseErr == nil {
				info.Subject = cert.Subject.CommonName
				info.Issuer = cert.Issuer.CommonName
				info.Serial = hex.EncodeToString(cert.SerialNumber.Bytes())
				info.SANs = cert.DNSNames
				info.NotBefore = cert.NotBefore
				info.NotAfter = cert.NotAfter
			}
		}
	}

	return info, nil
}

// FilePath 返回捆绑包内指定文件的路径
// 文件名必须是固定集合之一，防止路径穿越
func (s *BundleStore) FilePath(connectionID int64, env model.AcmeEnvironment, name string) (string, error) {
	valid := false
	for _, candidate := range bundleFileNames {
		if candidate == name {
			valid = true
			break
		}
	}
	if !valid {
		return "", s.err.New(fmt.Sprintf("非法的捆绑包文件名: %s", name), nil).ValidWithCtx()
	}

	path := filepath.Join(s.Dir(connectionID, env), name)
	if _, err := os.Stat(path); err != nil {
		return "", s.err.New("捆绑包文件不存在", err).NotFound()
	}
	return path, nil
}
