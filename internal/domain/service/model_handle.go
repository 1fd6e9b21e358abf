package service

import (
	"github.com/cloudwego/eino/components/model"

	"z-chat-ai-api/internal/domain/entity"
)

// ModelSpec 构建模型句柄所需的参数
type ModelSpec struct {
	Provider       string
	Model          string
	APIKey         string
	BaseURL        string
	Temperature    float64
	ThinkingBudget entity.ThinkingBudget
	// SupportsThinking 来自模型元数据，决定未指定预算时是否启用默认推理配置
	SupportsThinking bool
}

// ModelHandle 可直接调用的模型句柄
type ModelHandle struct {
	Provider string
	Model    string
	Chat     model.ToolCallingChatModel
	// ProviderOptions 提供商专属请求字段（推理/思考配置），随每次调用下发
	ProviderOptions map[string]any
	// CallOptions 由 ProviderOptions 与通用参数组合成的 eino 调用选项
	CallOptions []model.Option
	// HasNativeThinking 为 false 时 Chat 已被推理抽取中间件包裹
	HasNativeThinking bool
}
