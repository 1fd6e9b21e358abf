package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownProvider 提供商未注册
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrUnknownModel 模型不属于该提供商
	ErrUnknownModel = errors.New("unknown model")
)

// ModelConstructionError 模型句柄构建失败
type ModelConstructionError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ModelConstructionError) Error() string {
	return fmt.Sprintf("failed to construct model %s/%s: %v", e.Provider, e.Model, e.Err)
}

func (e *ModelConstructionError) Unwrap() error {
	return e.Err
}
