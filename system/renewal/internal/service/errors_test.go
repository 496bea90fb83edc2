package service

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorKind
	}{
		{
			name:     "配置校验错误",
			err:      NewValidationError("缺少域名"),
			expected: ErrKindValidation,
		},
		{
			name:     "DNS 服务商错误",
			err:      NewDNSProviderError("创建记录失败", errors.New("api error")),
			expected: ErrKindDNSProvider,
		},
		{
			name:     "包装后仍能识别类别",
			err:      fmt.Errorf("外层: %w", NewIssuerError("签发失败", nil)),
			expected: ErrKindIssuer,
		},
		{
			name:     "普通错误无类别",
			err:      errors.New("plain"),
			expected: "",
		},
		{
			name:     "nil 错误无类别",
			err:      nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if kind := KindOf(tt.err); kind != tt.expected {
				t.Errorf("KindOf() = %q, 期望 %q", kind, tt.expected)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "DNS 服务商错误允许重试",
			err:      NewDNSProviderError("创建记录失败", nil),
			expected: true,
		},
		{
			name:     "签发方错误不重试",
			err:      NewIssuerError("签发方限流", nil),
			expected: false,
		},
		{
			name:     "配置校验错误不重试",
			err:      NewValidationError("配置缺失"),
			expected: false,
		},
		{
			name:     "传播超时不重试",
			err:      NewPropagationTimeoutError("传播超时"),
			expected: false,
		},
		{
			name:     "取消不重试",
			err:      NewCancelledError("已取消"),
			expected: false,
		},
		{
			name:     "普通错误不重试",
			err:      errors.New("plain"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := IsRetryable(tt.err); result != tt.expected {
				t.Errorf("IsRetryable() = %v, 期望 %v", result, tt.expected)
			}
		})
	}
}

func TestIsCancelled(t *testing.T) {
	if !IsCancelled(NewCancelledError("已取消")) {
		t.Error("取消错误应被识别")
	}
	if IsCancelled(NewDeploymentError("部署失败", nil)) {
		t.Error("部署错误不应被识别为取消")
	}
	if IsCancelled(nil) {
		t.Error("nil 不应被识别为取消")
	}
}

func TestOperationErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewDNSProviderError("创建记录失败", cause)

	if !errors.Is(err, cause) {
		t.Error("应能通过 errors.Is 追溯底层错误")
	}
	if msg := err.Error(); msg != "创建记录失败: root cause" {
		t.Errorf("Error() = %q", msg)
	}

	noCause := NewValidationError("配置缺失")
	if msg := noCause.Error(); msg != "配置缺失" {
		t.Errorf("无底层错误时 Error() = %q", msg)
	}
}
