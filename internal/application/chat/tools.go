package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/kaptinlin/jsonrepair"
	"github.com/tidwall/gjson"
)

// 内置工具
const (
	ToolThinking    = "thinking"
	ToolCurrentTime = "current_time"
)

type toolFactory func(now func() time.Time) tool.InvokableTool

var builtinTools = map[string]toolFactory{
	ToolThinking:    func(func() time.Time) tool.InvokableTool { return thinkingTool{} },
	ToolCurrentTime: func(now func() time.Time) tool.InvokableTool { return currentTimeTool{now: now} },
}

// AvailableTools 返回可启用的工具 ID
func AvailableTools() []string {
	ids := make([]string, 0, len(builtinTools))
	for id := range builtinTools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ResolveTools 根据启用的工具 ID 构建工具集，重复 ID 只保留一次
func ResolveTools(ids []string, now func() time.Time) ([]tool.InvokableTool, error) {
	seen := make(map[string]bool, len(ids))
	tools := make([]tool.InvokableTool, 0, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" || seen[id] {
			continue
		}
		factory, ok := builtinTools[id]
		if !ok {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("unknown tool %q", id)}
		}
		seen[id] = true
		tools = append(tools, factory(now))
	}
	return tools, nil
}

// ThoughtFromResult 取出 thinking 工具结果中的思考内容
func ThoughtFromResult(result string) string {
	if r := gjson.Get(result, "thought"); r.Exists() {
		return r.String()
	}
	return result
}

// repairArguments 修复模型输出的非法参数 JSON
func repairArguments(args string) string {
	args = strings.TrimSpace(args)
	if args == "" {
		return "{}"
	}
	if json.Valid([]byte(args)) {
		return args
	}
	fixed, err := jsonrepair.JSONRepair(args)
	if err != nil {
		return args
	}
	return fixed
}

// toolRunner 按名称执行工具
type toolRunner struct {
	tools map[string]tool.InvokableTool
	infos []*schema.ToolInfo
}

func newToolRunner(ctx context.Context, tools []tool.InvokableTool) (*toolRunner, error) {
	r := &toolRunner{tools: make(map[string]tool.InvokableTool, len(tools))}
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe tool: %w", err)
		}
		r.tools[info.Name] = t
		r.infos = append(r.infos, info)
	}
	return r, nil
}

func (r *toolRunner) empty() bool {
	return r == nil || len(r.tools) == 0
}

// run 执行工具，失败以 {"error": ...} 作为结果回传给模型
func (r *toolRunner) run(ctx context.Context, name, args string) (string, bool) {
	t, ok := r.tools[name]
	if !ok {
		return errorResult(fmt.Sprintf("unknown tool %q", name)), false
	}
	args = repairArguments(args)
	ctx = callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{Name: name, Type: "ChatTool", Component: components.ComponentOfTool})
	ctx = callbacks.OnStart(ctx, &tool.CallbackInput{ArgumentsInJSON: args})
	out, err := t.InvokableRun(ctx, args)
	if err != nil {
		callbacks.OnError(ctx, err)
		return errorResult(err.Error()), false
	}
	callbacks.OnEnd(ctx, &tool.CallbackOutput{Response: out})
	return out, true
}

func errorResult(msg string) string {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return string(b)
}

type thinkingTool struct{}

func (thinkingTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: ToolThinking,
		Desc: "Record a private step of reasoning before answering. The thought is shown to the user as reasoning, not as the answer.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"thought": {Type: schema.String, Desc: "The reasoning step", Required: true},
		}),
	}, nil
}

func (thinkingTool) InvokableRun(_ context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	thought := gjson.Get(argumentsInJSON, "thought")
	if !thought.Exists() || strings.TrimSpace(thought.String()) == "" {
		return "", fmt.Errorf("missing thought")
	}
	b, _ := json.Marshal(map[string]string{"thought": thought.String()})
	return string(b), nil
}

type currentTimeTool struct {
	now func() time.Time
}

func (currentTimeTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: ToolCurrentTime,
		Desc: "Get the current date and time, optionally in an IANA time zone such as Europe/Berlin.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"timezone": {Type: schema.String, Desc: "IANA time zone name, defaults to UTC"},
		}),
	}, nil
}

func (t currentTimeTool) InvokableRun(_ context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	zone := strings.TrimSpace(gjson.Get(argumentsInJSON, "timezone").String())
	if zone == "" {
		zone = "UTC"
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return "", fmt.Errorf("unknown timezone %q", zone)
	}
	now := time.Now
	if t.now != nil {
		now = t.now
	}
	ts := now().In(loc)
	b, _ := json.Marshal(map[string]string{
		"timezone": zone,
		"time":     ts.Format(time.RFC3339),
		"weekday":  ts.Weekday().String(),
	})
	return string(b), nil
}
