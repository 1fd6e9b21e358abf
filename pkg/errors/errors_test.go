package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{CodeInvalidParam, http.StatusBadRequest},
		{CodeConfiguration, http.StatusBadRequest},
		{CodeCreditExhausted, http.StatusPaymentRequired},
		{CodeSpendingLimit, http.StatusPaymentRequired},
		{CodeLLMProviderError, http.StatusBadGateway},
		{CodeTooManyRequests, http.StatusTooManyRequests},
		{CodeDatabaseError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, New(tt.code, "x").HTTPStatus, string(tt.code))
	}
}

func TestAsAppErrorUnwrapsChains(t *testing.T) {
	base := New(CodeCreditExhausted, "insufficient credits")
	wrapped := fmt.Errorf("generate: %w", base)

	assert.True(t, IsAppError(wrapped))
	assert.Same(t, base, AsAppError(wrapped))

	unknown := AsAppError(fmt.Errorf("plain"))
	assert.Equal(t, CodeUnknown, unknown.Code)
}

func TestWithDetailDoesNotMutatePredefined(t *testing.T) {
	detailed := ErrInvalidParam.WithDetail("conversation id required")

	assert.Equal(t, "conversation id required", detailed.Detail)
	assert.Empty(t, ErrInvalidParam.Detail)
}
