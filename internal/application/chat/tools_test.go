package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestResolveTools(t *testing.T) {
	tools, err := ResolveTools([]string{ToolThinking, " thinking", ToolCurrentTime, ""}, nil)
	require.NoError(t, err)
	assert.Len(t, tools, 2)

	_, err = ResolveTools([]string{"web_search"}, nil)
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)

	assert.Equal(t, []string{ToolCurrentTime, ToolThinking}, AvailableTools())
}

func TestRepairArguments(t *testing.T) {
	assert.Equal(t, "{}", repairArguments("  "))
	assert.Equal(t, `{"a":1}`, repairArguments(`{"a":1}`))
	assert.JSONEq(t, `{"a":"b"}`, repairArguments(`{a: 'b'`))
}

func TestToolRunner(t *testing.T) {
	now := func() time.Time { return time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC) }
	tools, err := ResolveTools([]string{ToolThinking, ToolCurrentTime}, now)
	require.NoError(t, err)
	r, err := newToolRunner(context.Background(), tools)
	require.NoError(t, err)
	require.Len(t, r.infos, 2)

	out, ok := r.run(context.Background(), ToolCurrentTime, `{"timezone":"Asia/Tokyo"}`)
	require.True(t, ok)
	assert.Equal(t, "2026-01-03T00:04:05+09:00", gjson.Get(out, "time").String())
	assert.Equal(t, "Saturday", gjson.Get(out, "weekday").String())

	out, ok = r.run(context.Background(), ToolCurrentTime, `{"timezone":"Mars/Olympus"}`)
	assert.False(t, ok)
	assert.Contains(t, gjson.Get(out, "error").String(), "unknown timezone")

	out, ok = r.run(context.Background(), ToolThinking, `{"thought":"step one"}`)
	require.True(t, ok)
	assert.Equal(t, "step one", ThoughtFromResult(out))

	_, ok = r.run(context.Background(), "missing", `{}`)
	assert.False(t, ok)

	var nilRunner *toolRunner
	assert.True(t, nilRunner.empty())
}

func TestThoughtFromResult(t *testing.T) {
	assert.Equal(t, "idea", ThoughtFromResult(`{"thought":"idea"}`))
	assert.Equal(t, "raw text", ThoughtFromResult("raw text"))
}
