package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"nonsense", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestFromContextAddsKnownKeys(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "debug", "json")

	ctx := WithContext(context.Background(), ConversationIDKey, "conv-1")
	ctx = WithContext(ctx, UserIDKey, "user-9")
	Error(ctx, "failed to persist", errors.New("boom"), "message_id", "m1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "failed to persist", line["msg"])
	assert.Equal(t, "conv-1", line["conversation_id"])
	assert.Equal(t, "user-9", line["user_id"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "m1", line["message_id"])
}

func TestTextFormatUsesTint(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "info", "text")

	Info(context.Background(), "hello", "k", "v")
	Debug(context.Background(), "hidden")

	out := buf.String()
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "k=v")
	assert.NotContains(t, out, "hidden")
}
