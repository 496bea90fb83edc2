package service

import (
	"errors"
	"fmt"
)

// ErrorKind 续期操作错误类别
type ErrorKind string

const (
	// ErrKindValidation 连接配置不合法，立即失败不重试
	ErrKindValidation ErrorKind = "validation"
	// ErrKindDNSProvider DNS 服务商 API 错误，有限次重试
	ErrKindDNSProvider ErrorKind = "dns_provider"
	// ErrKindPropagationTimeout 验证记录在轮询预算内未观测到
	ErrKindPropagationTimeout ErrorKind = "propagation_timeout"
	// ErrKindIssuer ACME 签发方错误（含限流），不自动重试
	ErrKindIssuer ErrorKind = "issuer"
	// ErrKindDeployment 部署目标错误，保留各适配器细节
	ErrKindDeployment ErrorKind = "deployment"
	// ErrKindCancelled 操作被取消，区别于失败
	ErrKindCancelled ErrorKind = "cancelled"
)

// OperationError 携带错误类别的续期操作错误
type OperationError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *OperationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// NewValidationError 配置校验错误
func NewValidationError(message string) *OperationError {
	return &OperationError{Kind: ErrKindValidation, Message: message}
}

// NewDNSProviderError DNS 服务商错误
func NewDNSProviderError(message string, cause error) *OperationError {
	return &OperationError{Kind: ErrKindDNSProvider, Message: message, Cause: cause}
}

// NewPropagationTimeoutError DNS 传播超时错误
func NewPropagationTimeoutError(message string) *OperationError {
	return &OperationError{Kind: ErrKindPropagationTimeout, Message: message}
}

// NewIssuerError 签发方错误
func NewIssuerError(message string, cause error) *OperationError {
	return &OperationError{Kind: ErrKindIssuer, Message: message, Cause: cause}
}

// NewDeploymentError 部署错误
func NewDeploymentError(message string, cause error) *OperationError {
	return &OperationError{Kind: ErrKindDeployment, Message: message, Cause: cause}
}

// NewCancelledError 取消错误
func NewCancelledError(message string) *OperationError {
	return &OperationError{Kind: ErrKindCancelled, Message: message}
}

// KindOf 提取错误类别，非 OperationError 返回空
func KindOf(err error) ErrorKind {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	return ""
}

// IsCancelled 是否为取消错误
func IsCancelled(err error) bool {
	return KindOf(err) == ErrKindCancelled
}

// IsRetryable 是否允许自动重试
// 只有 DNS 服务商错误允许有限次重试，签发方错误（含限流）一律不重试
func IsRetryable(err error) bool {
	return KindOf(err) == ErrKindDNSProvider
}
