package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"z-chat-ai-api/internal/domain/entity"
	"z-chat-ai-api/internal/domain/repository"
	"z-chat-ai-api/internal/interfaces/http/dto"
	"z-chat-ai-api/internal/interfaces/http/middleware"
	apperrors "z-chat-ai-api/pkg/errors"
	"z-chat-ai-api/pkg/logger"
)

// UsageReader 额度查询
type UsageReader interface {
	Usage(ctx context.Context, userID string) (*entity.UsageRecord, error)
}

// ProviderChecker 校验提供商是否存在
type ProviderChecker interface {
	Providers() []string
}

// AccountHandler 用户额度、偏好与自带密钥
type AccountHandler struct {
	usage       UsageReader
	preferences repository.PreferencesRepository
	credentials repository.CredentialRepository
	providers   ProviderChecker
}

// NewAccountHandler 创建账户处理器
func NewAccountHandler(usage UsageReader, preferences repository.PreferencesRepository, credentials repository.CredentialRepository, providers ProviderChecker) *AccountHandler {
	return &AccountHandler{
		usage:       usage,
		preferences: preferences,
		credentials: credentials,
		providers:   providers,
	}
}

// GetUsage 当前周期的额度使用情况
// @Summary 额度使用情况
// @Tags Account
// @Produce json
// @Success 200 {object} dto.Response[dto.UsageResponse]
// @Router /v1/usage [get]
func (h *AccountHandler) GetUsage(c *gin.Context) {
	ctx := c.Request.Context()
	record, err := h.usage.Usage(ctx, middleware.GetUserIDFromGin(c))
	if err != nil {
		logger.Error(ctx, "failed to load usage", err)
		dto.Fail(c, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load usage"))
		return
	}
	dto.Success(c, dto.NewUsageResponse(record))
}

// GetPreferences 生成偏好
// @Summary 生成偏好
// @Tags Account
// @Produce json
// @Success 200 {object} dto.Response[entity.UserPreferences]
// @Router /v1/preferences [get]
func (h *AccountHandler) GetPreferences(c *gin.Context) {
	ctx := c.Request.Context()
	prefs, err := h.preferences.GetUserPreferences(ctx, middleware.GetUserIDFromGin(c))
	if err != nil {
		logger.Error(ctx, "failed to load preferences", err)
		dto.Fail(c, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load preferences"))
		return
	}
	dto.Success(c, prefs)
}

// UpdatePreferences 覆盖生成偏好
// @Summary 更新生成偏好
// @Tags Account
// @Accept json
// @Produce json
// @Param body body dto.PreferencesRequest true "偏好"
// @Success 200 {object} dto.Response[entity.UserPreferences]
// @Router /v1/preferences [put]
func (h *AccountHandler) UpdatePreferences(c *gin.Context) {
	var req dto.PreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	prefs := &entity.UserPreferences{
		UserID:                middleware.GetUserIDFromGin(c),
		CustomSystemPrompt:    req.CustomSystemPrompt,
		UseCustomSystemPrompt: req.UseCustomSystemPrompt,
		CustomInstructions:    req.CustomInstructions,
		SaveToolMessages:      req.SaveToolMessages,
	}
	if err := h.preferences.SaveUserPreferences(ctx, prefs); err != nil {
		logger.Error(ctx, "failed to save preferences", err)
		dto.Fail(c, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to save preferences"))
		return
	}
	dto.Success(c, prefs)
}

// PutCredential 保存或删除某提供商的自带密钥
// @Summary 保存自带密钥
// @Tags Account
// @Accept json
// @Param provider path string true "提供商"
// @Param body body dto.CredentialRequest true "密钥"
// @Success 204
// @Router /v1/credentials/{provider} [put]
func (h *AccountHandler) PutCredential(c *gin.Context) {
	provider := dto.BindProvider(c)
	if !h.knownProvider(provider) {
		dto.NotFound(c, apperrors.New(apperrors.CodeNotFound, "unknown provider").WithDetail(provider))
		return
	}
	var req dto.CredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	cred := &entity.ProviderCredential{
		UserID:   middleware.GetUserIDFromGin(c),
		Provider: provider,
		APIKey:   strings.TrimSpace(req.APIKey),
	}
	if err := h.credentials.SaveCredential(ctx, cred); err != nil {
		logger.Error(ctx, "failed to save credential", err, "provider", provider)
		dto.Fail(c, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to save credential"))
		return
	}
	logger.Info(ctx, "provider credential updated", "provider", provider, "removed", cred.APIKey == "")
	dto.NoContent(c)
}

func (h *AccountHandler) knownProvider(id string) bool {
	for _, p := range h.providers.Providers() {
		if p == id {
			return true
		}
	}
	return false
}
