package chat

import (
	"errors"
	"fmt"

	"z-chat-ai-api/internal/application/credit"
)

// 运行上下文的取消原因
var (
	ErrGenerationTimeout = errors.New("generation timed out")
	ErrUserCancelled     = errors.New("generation stopped by user")
)

// ConfigurationError 未知提供商/模型或缺少凭据，发生在调用提供商之前
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return "configuration error: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// CreditExhaustedError 与 SpendingLimitError 由额度闸门产生
type (
	CreditExhaustedError = credit.CreditExhaustedError
	SpendingLimitError   = credit.SpendingLimitError
)

// ProviderConstructionError 模型客户端构建失败
type ProviderConstructionError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ProviderConstructionError) Error() string {
	return fmt.Sprintf("provider %s could not build model %s: %v", e.Provider, e.Model, e.Err)
}

func (e *ProviderConstructionError) Unwrap() error { return e.Err }

// InBandStreamError 提供商在流中途上报的错误
type InBandStreamError struct {
	Err error
}

func (e *InBandStreamError) Error() string { return "stream error: " + e.Err.Error() }

func (e *InBandStreamError) Unwrap() error { return e.Err }

// ResultResolutionError 流结束后无法得到最终结果，可回退到累积值
type ResultResolutionError struct {
	Err error
}

func (e *ResultResolutionError) Error() string { return "failed to resolve final result: " + e.Err.Error() }

func (e *ResultResolutionError) Unwrap() error { return e.Err }

// PersistenceError 消息落库失败
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("failed to %s: %v", e.Op, e.Err) }

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsPreflightError 配置与额度错误直接返回调用方，不创建任何消息
func IsPreflightError(err error) bool {
	var (
		ce *ConfigurationError
		ee *CreditExhaustedError
		se *SpendingLimitError
	)
	return errors.As(err, &ce) || errors.As(err, &ee) || errors.As(err, &se)
}
