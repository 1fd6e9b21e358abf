package service

// Pricing 每千 token 美元价格
type Pricing struct {
	InputPerK  float64 `json:"inputPerK" mapstructure:"input_per_k"`
	OutputPerK float64 `json:"outputPerK" mapstructure:"output_per_k"`
}

// ModelInfo 模型静态元数据
type ModelInfo struct {
	ID               string  `json:"id" mapstructure:"id"`
	Provider         string  `json:"provider" mapstructure:"provider"`
	SupportsTools    bool    `json:"supportsTools" mapstructure:"supports_tools"`
	IsMultimodal     bool    `json:"isMultimodal" mapstructure:"is_multimodal"`
	SupportsThinking bool    `json:"supportsThinking" mapstructure:"supports_thinking"`
	Pricing          Pricing `json:"pricing" mapstructure:"pricing"`
}

// ModelCatalog 模型元数据查询表
type ModelCatalog interface {
	// GetModelInfo 未知模型返回 false
	GetModelInfo(model string) (ModelInfo, bool)
	// Models 列出某提供商的模型，provider 为空时列出全部
	Models(provider string) []ModelInfo
}
