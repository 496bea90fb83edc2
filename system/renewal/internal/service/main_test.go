package service

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"testing"
	"time"
	"xiaozhengshu/base"
	"xiaozhengshu/pkg/core/config"
	"xiaozhengshu/pkg/core/logger"
	"xiaozhengshu/pkg/core/start"
)

func TestMain(m *testing.M) {
	// 测试环境只需要加密盐值，不依赖数据库和 Redis
	base.Configures = &start.Configures{
		Config: start.Config{
			ConfigCenter: config.ConfigCenterConfig{
				EncryptionSalt: "unit-test-salt",
			},
		},
	}
	os.Exit(m.Run())
}

func testLog() *logger.Log {
	return logger.GetLogger()
}

// testCert 测试用证书及其签发私钥
type testCert struct {
	cert *x509.Certificate
	key  *ecdsa.PrivateKey
	pem  string
}

// issueTestCert 签发测试证书
// parent 为 nil 时自签名，isCA 控制能否继续签发下级证书
func issueTestCert(t *testing.T, commonName string, dnsNames []string, isCA bool, parent *testCert) *testCert {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("生成测试私钥失败: %v", err)
	}

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		t.Fatalf("生成测试序列号失败: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName},
		DNSNames:              dnsNames,
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(90 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	if isCA {
		template.IsCA = true
		template.KeyUsage |= x509.KeyUsageCertSign
	}

	signerCert := template
	signerKey := key
	if parent != nil {
		signerCert = parent.cert
		signerKey = parent.key
	}

	der, err := x509.CreateCertificate(rand.Reader, template, signerCert, &key.PublicKey, signerKey)
	if err != nil {
		t.Fatalf("签发测试证书失败: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("解析测试证书失败: %v", err)
	}

	return &testCert{
		cert: cert,
		key:  key,
		pem:  string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})),
	}
}
