package service

import (
	"os"
	"path/filepath"
	"testing"
	"xiaozhengshu/system/renewal/internal/model"
)

func TestBundleStoreSaveAndLoad(t *testing.T) {
	store := NewBundleStore(testLog(), t.TempDir())
	leaf := issueTestCert(t, "example.com", []string{"example.com", "www.example.com"}, false, nil)

	bundle := &model.CertificateBundle{
		CertificatePem: leaf.pem,
		PrivateKeyPem:  "fake-private-key",
		FullchainPem:   leaf.pem,
		// 无根证书时对应文件不落盘
		RootPem: "",
	}

	if err := store.Save(1, model.AcmeEnvStaging, bundle); err != nil {
		t.Fatalf("写入捆绑包失败: %v", err)
	}

	dir := store.Dir(1, model.AcmeEnvStaging)

	// 私钥权限必须是 0600
	stat, err := os.Stat(filepath.Join(dir, BundleFilePrivateKey))
	if err != nil {
		t.Fatalf("私钥文件不存在: %v", err)
	}
	if mode := stat.Mode().Perm(); mode != 0600 {
		t.Errorf("私钥文件权限 = %o, 期望 0600", mode)
	}

	// 空内容的文件不写入
	if _, err := os.Stat(filepath.Join(dir, BundleFileRoot)); !os.IsNotExist(err) {
		t.Error("空的根证书不应落盘")
	}

	loaded, err := store.Load(1, model.AcmeEnvStaging)
	if err != nil {
		t.Fatalf("读取捆绑包失败: %v", err)
	}
	if loaded.CertificatePem != leaf.pem {
		t.Error("读取的叶子证书与写入不一致")
	}
	if loaded.Serial == "" {
		t.Error("读取时应解析出证书序列号")
	}
	if !loaded.ExpiresAt.After(loaded.IssuedAt) {
		t.Error("证书有效期解析异常")
	}
}

func TestBundleStoreLoadMissing(t *testing.T) {
	store := NewBundleStore(testLog(), t.TempDir())

	if _, err := store.Load(99, model.AcmeEnvProduction); err == nil {
		t.Error("无证书的连接读取应报错")
	}
	if _, err := store.Inspect(99, model.AcmeEnvProduction); err == nil {
		t.Error("无证书的连接查询应报错")
	}
}

func TestBundleStoreInspect(t *testing.T) {
	store := NewBundleStore(testLog(), t.TempDir())
	leaf := issueTestCert(t, "example.com", []string{"example.com", "api.example.com"}, false, nil)

	bundle := &model.CertificateBundle{
		CertificatePem: leaf.pem,
		PrivateKeyPem:  "fake-private-key",
	}
	if err := store.Save(7, model.AcmeEnvProduction, bundle); err != nil {
		t.Fatalf("写入捆绑包失败: %v", err)
	}

	info, err := store.Inspect(7, model.AcmeEnvProduction)
	if err != nil {
		t.Fatalf("查询捆绑包失败: %v", err)
	}
	if len(info.Files) != 2 {
		t.Errorf("文件数 = %d, 期望 2", len(info.Files))
	}
	if info.Subject != "example.com" {
		t.Errorf("Subject = %q, 期望 example.com", info.Subject)
	}
	if len(info.SANs) != 2 {
		t.Errorf("SAN 数 = %d, 期望 2", len(info.SANs))
	}
}

func TestBundleStoreFilePath(t *testing.T) {
	store := NewBundleStore(testLog(), t.TempDir())
	leaf := issueTestCert(t, "example.com", nil, false, nil)

	if err := store.Save(3, model.AcmeEnvStaging, &model.CertificateBundle{CertificatePem: leaf.pem}); err != nil {
		t.Fatalf("写入捆绑包失败: %v", err)
	}

	tests := []struct {
		name     string
		fileName string
		wantErr  bool
	}{
		{
			name:     "固定集合内的存在文件",
			fileName: BundleFileCertificate,
			wantErr:  false,
		},
		{
			name:     "固定集合内但未写入的文件",
			fileName: BundleFileRoot,
			wantErr:  true,
		},
		{
			name:     "路径穿越被拒绝",
			fileName: "../../../etc/passwd",
			wantErr:  true,
		},
		{
			name:     "任意文件名被拒绝",
			fileName: "notes.txt",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := store.FilePath(3, model.AcmeEnvStaging, tt.fileName)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FilePath(%q) err = %v, wantErr = %v", tt.fileName, err, tt.wantErr)
			}
			if !tt.wantErr && filepath.Base(path) != tt.fileName {
				t.Errorf("返回路径 %q 与文件名不符", path)
			}
		})
	}
}
