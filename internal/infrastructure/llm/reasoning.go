package llm

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// reasoningExtractor 将文本流中 <tag>...</tag> 区段转为 ReasoningContent
type reasoningExtractor struct {
	inner model.ToolCallingChatModel
	tag   string
}

// WithReasoningExtraction 包裹没有原生推理输出的模型
func WithReasoningExtraction(inner model.ToolCallingChatModel, tag string) model.ToolCallingChatModel {
	return &reasoningExtractor{inner: inner, tag: tag}
}

func (r *reasoningExtractor) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	out, err := r.inner.Generate(ctx, input, opts...)
	if err != nil || out == nil {
		return out, err
	}

	p := newTagParser(r.tag)
	visible, reasoning := p.feed(out.Content)
	v, rs := p.flush()

	cp := *out
	cp.Content = visible + v
	cp.ReasoningContent = out.ReasoningContent + reasoning + rs
	return &cp, nil
}

func (r *reasoningExtractor) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	sr, err := r.inner.Stream(ctx, input, opts...)
	if err != nil {
		return nil, err
	}

	reader, writer := schema.Pipe[*schema.Message](16)
	go func() {
		defer sr.Close()
		defer writer.Close()

		p := newTagParser(r.tag)
		for {
			chunk, err := sr.Recv()
			if errors.Is(err, io.EOF) {
				visible, reasoning := p.flush()
				if visible != "" || reasoning != "" {
					writer.Send(&schema.Message{
						Role:             schema.Assistant,
						Content:          visible,
						ReasoningContent: reasoning,
					}, nil)
				}
				return
			}
			if err != nil {
				writer.Send(nil, err)
				return
			}

			visible, reasoning := p.feed(chunk.Content)
			if visible == "" && reasoning == "" && chunk.ReasoningContent == "" &&
				len(chunk.ToolCalls) == 0 && chunk.ResponseMeta == nil {
				continue
			}

			out := *chunk
			out.Content = visible
			out.ReasoningContent = chunk.ReasoningContent + reasoning
			if closed := writer.Send(&out, nil); closed {
				return
			}
		}
	}()

	return reader, nil
}

func (r *reasoningExtractor) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	inner, err := r.inner.WithTools(tools)
	if err != nil {
		return nil, err
	}
	return &reasoningExtractor{inner: inner, tag: r.tag}, nil
}

// tagParser 增量解析，标签可能被拆分在多个分片中
type tagParser struct {
	open    string
	close   string
	inTag   bool
	pending string
}

func newTagParser(tag string) *tagParser {
	return &tagParser{open: "<" + tag + ">", close: "</" + tag + ">"}
}

// feed 返回本次可以确定归属的可见文本与推理文本
func (p *tagParser) feed(s string) (visible, reasoning string) {
	text := p.pending + s
	p.pending = ""

	var vis, rsn strings.Builder
	for text != "" {
		marker := p.open
		if p.inTag {
			marker = p.close
		}

		if i := strings.Index(text, marker); i >= 0 {
			p.write(&vis, &rsn, text[:i])
			text = text[i+len(marker):]
			p.inTag = !p.inTag
			continue
		}

		hold := partialSuffix(text, marker)
		p.write(&vis, &rsn, text[:len(text)-hold])
		p.pending = text[len(text)-hold:]
		break
	}
	return vis.String(), rsn.String()
}

// flush 流结束时释放暂存内容，未闭合的标签内容计入推理
func (p *tagParser) flush() (visible, reasoning string) {
	rest := p.pending
	p.pending = ""
	if p.inTag {
		return "", rest
	}
	return rest, ""
}

func (p *tagParser) write(vis, rsn *strings.Builder, s string) {
	if p.inTag {
		rsn.WriteString(s)
	} else {
		vis.WriteString(s)
	}
}

// partialSuffix 返回 text 末尾与 marker 前缀重合的最长长度
func partialSuffix(text, marker string) int {
	n := len(marker) - 1
	if n > len(text) {
		n = len(text)
	}
	for k := n; k > 0; k-- {
		if strings.HasSuffix(text, marker[:k]) {
			return k
		}
	}
	return 0
}
