package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	openai := Target{Provider: "openai", DisplayName: "OpenAI", Model: "gpt-4o"}
	google := Target{Provider: "google", DisplayName: "Google", Model: "gemini-2.5-pro"}

	tests := []struct {
		name         string
		err          error
		target       Target
		usingUserKey bool
		wantKind     string
		contains     string
	}{
		{"timeout sentinel", fmt.Errorf("wrap: %w", ErrGenerationTimeout), openai, false, KindTimeout, "timed out"},
		{"deadline", context.DeadlineExceeded, openai, false, KindTimeout, "timed out"},
		{"user cancel", ErrUserCancelled, openai, false, KindCancelled, "cancelled"},
		{"bad own key", errors.New("status code: 401, Incorrect API key provided"), openai, true, KindAuth, "Your OpenAI API key was rejected"},
		{"forbidden", errors.New("403 Forbidden"), openai, false, KindForbidden, "denied"},
		{"rate limit shared key", errors.New("error, status code: 429, message: Rate limit reached"), openai, false, KindRateLimit, "add your own API key"},
		{"rate limit own key", errors.New("429 too many requests"), openai, true, KindRateLimit, "for your API key"},
		{"quota exceeded 429 is rate limit", errors.New("429 You exceeded your current quota"), openai, false, KindRateLimit, "too many requests"},
		{"billing", errors.New("insufficient_quota"), openai, true, KindQuota, "run out of quota"},
		{"network", errors.New("dial tcp 10.0.0.1:443: connection refused"), openai, false, KindNetwork, "Could not reach OpenAI"},
		{"model not found", errors.New("The model `gpt-5x` does not exist"), openai, false, KindModelNotFound, "not available"},
		{"openai policy", errors.New("request flagged by content_policy"), openai, false, KindContentSafety, "OpenAI's content policy"},
		{"google safety", errors.New("finish reason: SAFETY"), google, false, KindContentSafety, "Gemini"},
		{"generic shared key", errors.New("something odd."), openai, false, KindGeneric, "OpenAI (gpt-4o) returned an error: something odd. If this keeps happening"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantKind, ClassifyKind(tt.err, tt.target))
			assert.Contains(t, Classify(tt.err, tt.target, tt.usingUserKey), tt.contains)
		})
	}
}

func TestClassifyGenericWithUserKeyOmitsHint(t *testing.T) {
	msg := Classify(errors.New("weird"), Target{Provider: "openai", Model: "gpt-4o"}, true)
	assert.Equal(t, "openai (gpt-4o) returned an error: weird.", msg)
}

func TestIsPreflightError(t *testing.T) {
	assert.True(t, IsPreflightError(&ConfigurationError{Reason: "x"}))
	assert.True(t, IsPreflightError(fmt.Errorf("wrap: %w", &CreditExhaustedError{UserID: "u"})))
	assert.True(t, IsPreflightError(&SpendingLimitError{UserID: "u"}))
	assert.False(t, IsPreflightError(&ProviderConstructionError{Err: errors.New("x")}))
	assert.False(t, IsPreflightError(errors.New("x")))
}
