package service

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"xiaozhengshu/system/renewal/internal/model"
)

// fakeAPICaller 内存版管理 API，按 "方法 路径后缀" 匹配预置响应
type fakeAPICaller struct {
	mu        sync.Mutex
	requests  []*apiRequest
	responses map[string]*apiResponse
	errs      map[string]error
}

func newFakeAPICaller() *fakeAPICaller {
	return &fakeAPICaller{
		responses: make(map[string]*apiResponse),
		errs:      make(map[string]error),
	}
}

func (f *fakeAPICaller) on(method, suffix string, resp *apiResponse) {
	f.responses[method+" "+suffix] = resp
}

func (f *fakeAPICaller) Do(ctx context.Context, req *apiRequest) (*apiResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)

	for key, err := range f.errs {
		if f.match(key, req) {
			return nil, err
		}
	}
	for key, resp := range f.responses {
		if f.match(key, req) {
			return resp, nil
		}
	}
	return &apiResponse{StatusCode: 200, Body: []byte(`{}`)}, nil
}

func (f *fakeAPICaller) match(key string, req *apiRequest) bool {
	parts := strings.SplitN(key, " ", 2)
	return req.Method == parts[0] && strings.HasSuffix(req.URL, parts[1])
}

func (f *fakeAPICaller) count(method, suffix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, req := range f.requests {
		if f.match(method+" "+suffix, req) {
			n++
		}
	}
	return n
}

func TestParseIdentityRoles(t *testing.T) {
	tests := []struct {
		name     string
		usedFor  string
		expected []string
	}{
		{
			name:     "大小写与空格归一",
			usedFor:  " Admin , EAP ",
			expected: []string{"admin", "eap"},
		},
		{
			name:     "过滤非法角色",
			usedFor:  "admin,webserver,portal",
			expected: []string{"admin", "portal"},
		},
		{
			name:     "重复角色去重",
			usedFor:  "eap,eap,EAP",
			expected: []string{"eap"},
		},
		{
			name:     "全部非法",
			usedFor:  "foo,bar",
			expected: nil,
		},
		{
			name:     "空字符串",
			usedFor:  "",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseIdentityRoles(tt.usedFor)
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("ParseIdentityRoles(%q) = %v, 期望 %v", tt.usedFor, result, tt.expected)
			}
		})
	}
}

func TestPemFingerprint(t *testing.T) {
	cert := issueTestCert(t, "ca.example.com", nil, true, nil)

	fingerprint, err := PemFingerprint(cert.pem)
	if err != nil {
		t.Fatalf("计算指纹失败: %v", err)
	}
	if len(fingerprint) != 64 {
		t.Errorf("指纹长度 = %d, 期望 64", len(fingerprint))
	}
	if fingerprint != strings.ToLower(fingerprint) {
		t.Error("指纹应为小写十六进制")
	}

	other := issueTestCert(t, "other.example.com", nil, true, nil)
	otherFingerprint, _ := PemFingerprint(other.pem)
	if fingerprint == otherFingerprint {
		t.Error("不同证书指纹不应相同")
	}

	if _, err := PemFingerprint("not a pem"); err == nil {
		t.Error("非 PEM 数据应报错")
	}
}

// colonize 模拟引擎返回的大写冒号分隔指纹格式
func colonize(fingerprint string) string {
	upper := strings.ToUpper(fingerprint)
	var parts []string
	for i := 0; i < len(upper); i += 2 {
		parts = append(parts, upper[i:i+2])
	}
	return strings.Join(parts, ":")
}

func newIdentityTestConn() *model.Connection {
	conn := &model.Connection{
		TargetType:   model.TargetTypeIdentityEngine,
		Hostname:     "ise.example.com",
		DeployConfig: `{"host":"ise.example.com","username":"admin","password":"secret","usedFor":"admin,eap"}`,
	}
	conn.ID = 1
	return conn
}

func TestIdentityDeployTrustPreload(t *testing.T) {
	root := issueTestCert(t, "Root CA", nil, true, nil)
	intermediate := issueTestCert(t, "Intermediate CA", nil, true, root)
	leaf := issueTestCert(t, "ise.example.com", []string{"ise.example.com"}, false, intermediate)

	rootFingerprint, err := PemFingerprint(root.pem)
	if err != nil {
		t.Fatalf("计算根证书指纹失败: %v", err)
	}

	api := newFakeAPICaller()
	// 信任库里已有根证书，格式为大写冒号分隔
	api.on("GET", "/api/v1/certs/trusted-certificate", &apiResponse{
		StatusCode: 200,
		Body:       []byte(fmt.Sprintf(`{"response":[{"sha256Fingerprint":"%s"}]}`, colonize(rootFingerprint))),
	})
	api.on("POST", "/api/v1/certs/trusted-certificate/import", &apiResponse{StatusCode: 200, Body: []byte(`{}`)})
	api.on("POST", "/api/v1/certs/system-certificate/import", &apiResponse{StatusCode: 200, Body: []byte(`{}`)})

	adapter := NewIdentityDeployAdapter(testLog(), NewCryptoService(testLog()), api)

	bundle := &model.CertificateBundle{
		CertificatePem:  leaf.pem,
		PrivateKeyPem:   "fake-private-key",
		RootPem:         root.pem,
		IntermediatePem: intermediate.pem,
	}

	result, err := adapter.Deploy(context.Background(), newIdentityTestConn(), bundle)
	if err != nil {
		t.Fatalf("部署失败: %v", err)
	}
	if !result.Success {
		t.Fatalf("部署结果失败: %v", result.Details)
	}

	// 根证书已在信任库中应跳过，中间证书需要导入
	if got := result.Details["trustSkipped"]; !reflect.DeepEqual(got, []string{"root"}) {
		t.Errorf("trustSkipped = %v, 期望 [root]", got)
	}
	if got := result.Details["trustPreloaded"]; !reflect.DeepEqual(got, []string{"intermediate"}) {
		t.Errorf("trustPreloaded = %v, 期望 [intermediate]", got)
	}
	if count := api.count("POST", "/api/v1/certs/trusted-certificate/import"); count != 1 {
		t.Errorf("信任库导入调用次数 = %d, 期望 1", count)
	}
	if count := api.count("POST", "/api/v1/certs/system-certificate/import"); count != 1 {
		t.Errorf("叶子证书导入调用次数 = %d, 期望 1", count)
	}
}

func TestIdentityDeployAuthFailure(t *testing.T) {
	leaf := issueTestCert(t, "ise.example.com", nil, false, nil)

	api := newFakeAPICaller()
	api.on("GET", "/api/v1/certs/trusted-certificate", &apiResponse{StatusCode: 200, Body: []byte(`{"response":[]}`)})
	api.on("POST", "/api/v1/certs/system-certificate/import", &apiResponse{StatusCode: 401, Body: []byte(`{}`)})

	adapter := NewIdentityDeployAdapter(testLog(), NewCryptoService(testLog()), api)

	result, err := adapter.Deploy(context.Background(), newIdentityTestConn(), &model.CertificateBundle{
		CertificatePem: leaf.pem,
		PrivateKeyPem:  "fake-private-key",
	})
	if err != nil {
		t.Fatalf("认证失败应返回结果而非错误: %v", err)
	}
	if result.Success {
		t.Error("认证失败时部署结果应为失败")
	}
	if result.Details["error"] != "身份引擎认证失败" {
		t.Errorf("错误详情 = %v", result.Details["error"])
	}
}

func TestIdentityDeployConfigValidation(t *testing.T) {
	adapter := NewIdentityDeployAdapter(testLog(), NewCryptoService(testLog()), newFakeAPICaller())
	bundle := &model.CertificateBundle{CertificatePem: "x", PrivateKeyPem: "y"}

	tests := []struct {
		name         string
		deployConfig string
	}{
		{
			name:         "非法 JSON",
			deployConfig: "{not json",
		},
		{
			name:         "缺少 host",
			deployConfig: `{"username":"admin","password":"p","usedFor":"admin"}`,
		},
		{
			name:         "没有有效角色",
			deployConfig: `{"host":"ise.example.com","username":"admin","password":"p","usedFor":"bogus"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := newIdentityTestConn()
			conn.DeployConfig = tt.deployConfig
			_, err := adapter.Deploy(context.Background(), conn, bundle)
			if err == nil {
				t.Fatal("期望配置校验失败")
			}
			if kind := KindOf(err); kind != ErrKindValidation {
				t.Errorf("错误类别 = %q, 期望 validation", kind)
			}
		})
	}
}

func TestIdentityDeploySupportsRestart(t *testing.T) {
	adapter := NewIdentityDeployAdapter(testLog(), NewCryptoService(testLog()), newFakeAPICaller())
	if adapter.SupportsRestart(newIdentityTestConn()) {
		t.Error("身份引擎不支持服务重启")
	}
}
