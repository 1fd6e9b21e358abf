package handler

import (
	"github.com/gin-gonic/gin"

	"z-chat-ai-api/internal/domain/service"
	"z-chat-ai-api/internal/interfaces/http/dto"
	apperrors "z-chat-ai-api/pkg/errors"
)

// ProviderDirectory 提供商与默认模型查询
type ProviderDirectory interface {
	Providers() []string
	DisplayName(provider string) string
	GetDefaultModel(provider string) string
	RequiresKey(provider string) bool
}

// ModelHandler 模型目录接口
type ModelHandler struct {
	providers ProviderDirectory
	catalog   service.ModelCatalog
}

// NewModelHandler 创建模型目录处理器
func NewModelHandler(providers ProviderDirectory, catalog service.ModelCatalog) *ModelHandler {
	return &ModelHandler{providers: providers, catalog: catalog}
}

// ListProviders 已注册的提供商
// @Summary 提供商列表
// @Tags Models
// @Produce json
// @Success 200 {object} dto.Response[[]dto.ProviderResponse]
// @Router /v1/providers [get]
func (h *ModelHandler) ListProviders(c *gin.Context) {
	ids := h.providers.Providers()
	out := make([]dto.ProviderResponse, 0, len(ids))
	for _, id := range ids {
		out = append(out, dto.ProviderResponse{
			ID:           id,
			DisplayName:  h.providers.DisplayName(id),
			DefaultModel: h.providers.GetDefaultModel(id),
			RequiresKey:  h.providers.RequiresKey(id),
		})
	}
	dto.Success(c, out)
}

// DefaultModel 提供商的默认模型
// @Summary 默认模型
// @Tags Models
// @Produce json
// @Param provider path string true "提供商"
// @Success 200 {object} dto.Response[dto.DefaultModelResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/providers/{provider}/default-model [get]
func (h *ModelHandler) DefaultModel(c *gin.Context) {
	provider := dto.BindProvider(c)
	if !h.known(provider) {
		dto.NotFound(c, apperrors.New(apperrors.CodeModelNotFound, "unknown provider").WithDetail(provider))
		return
	}
	dto.Success(c, dto.DefaultModelResponse{
		Provider:    provider,
		DisplayName: h.providers.DisplayName(provider),
		Model:       h.providers.GetDefaultModel(provider),
	})
}

// ListModels 提供商的模型目录
// @Summary 模型列表
// @Tags Models
// @Produce json
// @Param provider path string true "提供商"
// @Success 200 {object} dto.Response[[]service.ModelInfo]
// @Router /v1/providers/{provider}/models [get]
func (h *ModelHandler) ListModels(c *gin.Context) {
	provider := dto.BindProvider(c)
	if !h.known(provider) {
		dto.NotFound(c, apperrors.New(apperrors.CodeModelNotFound, "unknown provider").WithDetail(provider))
		return
	}
	models := h.catalog.Models(provider)
	if models == nil {
		models = []service.ModelInfo{}
	}
	dto.Success(c, models)
}

func (h *ModelHandler) known(provider string) bool {
	for _, p := range h.providers.Providers() {
		if p == provider {
			return true
		}
	}
	return false
}
