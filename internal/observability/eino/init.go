// Package eino 为对话生成中的聊天模型与工具调用挂载进程级观测回调
package eino

import (
	"sync"

	einocallbacks "github.com/cloudwego/eino/callbacks"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
)

var registerOnce sync.Once

// Handler 组装聊天模型与工具两类回调
func Handler() einocallbacks.Handler {
	return cbtemplate.NewHandlerHelper().
		ChatModel(newChatModelCallbackHandler()).
		Tool(newToolCallbackHandler()).
		Handler()
}

// Init 只在首次调用时把 Handler 追加到全局回调链，重复调用无副作用
func Init() {
	registerOnce.Do(func() {
		einocallbacks.AppendGlobalHandlers(Handler())
	})
}
