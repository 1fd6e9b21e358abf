package handler

import (
	"errors"
	"fmt"

	"z-chat-ai-api/internal/application/chat"
	apperrors "z-chat-ai-api/pkg/errors"
)

// generationError 将编排器错误映射为 AppError，detail 为面向用户的提示
func generationError(err error, res *chat.GenerateResult) *apperrors.AppError {
	var (
		configErr   *chat.ConfigurationError
		creditErr   *chat.CreditExhaustedError
		spendErr    *chat.SpendingLimitError
		providerErr *chat.ProviderConstructionError
		persistErr  *chat.PersistenceError
	)

	switch {
	case errors.As(err, &configErr):
		return apperrors.Wrap(err, apperrors.CodeConfiguration, "invalid generation configuration").
			WithDetail(configErr.Reason)
	case errors.As(err, &creditErr):
		return apperrors.Wrap(err, apperrors.CodeCreditExhausted, "insufficient credits").
			WithDetail(fmt.Sprintf("this request needs %d credits but only %d remain", creditErr.Required, creditErr.Available))
	case errors.As(err, &spendErr):
		return apperrors.Wrap(err, apperrors.CodeSpendingLimit, "spending limit reached").
			WithDetail(fmt.Sprintf("spent $%.2f of $%.2f this period", spendErr.Spent, spendErr.Max))
	}

	detail := ""
	if res != nil {
		detail = res.Error
	}
	switch {
	case errors.As(err, &providerErr):
		return apperrors.Wrap(err, apperrors.CodeLLMProviderError, "failed to initialize provider").WithDetail(detail)
	case errors.As(err, &persistErr):
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to persist generation").WithDetail(detail)
	default:
		return apperrors.Wrap(err, apperrors.CodeGenerationFailed, "generation failed").WithDetail(detail)
	}
}
