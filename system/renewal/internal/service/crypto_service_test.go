package service

import (
	"strings"
	"testing"
)

func TestCryptoServiceRoundTrip(t *testing.T) {
	crypto := NewCryptoService(testLog())

	encrypted, err := crypto.Encrypt("dns-secret-key")
	if err != nil {
		t.Fatalf("加密失败: %v", err)
	}
	if !strings.HasPrefix(encrypted, "ENC:") {
		t.Errorf("密文应带前缀: %q", encrypted)
	}
	if !crypto.IsEncrypted(encrypted) {
		t.Error("IsEncrypted 应识别密文")
	}

	decrypted, err := crypto.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("解密失败: %v", err)
	}
	if decrypted != "dns-secret-key" {
		t.Errorf("解密结果 = %q", decrypted)
	}
}

func TestCryptoServicePlaintextPassthrough(t *testing.T) {
	crypto := NewCryptoService(testLog())

	// 历史数据可能是明文，无前缀时原样返回
	plain, err := crypto.Decrypt("legacy-plaintext")
	if err != nil {
		t.Fatalf("明文透传失败: %v", err)
	}
	if plain != "legacy-plaintext" {
		t.Errorf("明文透传结果 = %q", plain)
	}
	if crypto.IsEncrypted("legacy-plaintext") {
		t.Error("明文不应被识别为密文")
	}

	// 空字符串两个方向都保持为空
	if encrypted, _ := crypto.Encrypt(""); encrypted != "" {
		t.Error("空明文应返回空")
	}
	if decrypted, _ := crypto.Decrypt(""); decrypted != "" {
		t.Error("空密文应返回空")
	}
}
