// Package catalog 提供基于 YAML 文件的模型元数据表
package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"z-chat-ai-api/internal/domain/service"
	"z-chat-ai-api/pkg/logger"
)

type fileFormat struct {
	Models []service.ModelInfo `mapstructure:"models"`
}

// FileCatalog 从文件加载模型元数据，文件变更时自动重载
type FileCatalog struct {
	v      *viper.Viper
	path   string
	mu     sync.RWMutex
	models map[string]service.ModelInfo
}

// Load 读取模型元数据文件
func Load(path string) (*FileCatalog, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	c := &FileCatalog{v: v, path: path}
	if err := c.reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// New 使用内存数据构建，主要用于测试与 CLI
func New(models ...service.ModelInfo) *FileCatalog {
	c := &FileCatalog{models: make(map[string]service.ModelInfo, len(models))}
	for _, m := range models {
		c.models[m.ID] = m
	}
	return c
}

// Watch 监听文件变更，重载失败时保留旧数据
func (c *FileCatalog) Watch(ctx context.Context) {
	if c.v == nil {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if err := c.reload(); err != nil {
			logger.Error(ctx, "failed to reload model catalog", err, "path", e.Name)
			return
		}
		logger.Info(ctx, "model catalog reloaded", "path", e.Name, "models", c.Len())
	})
	c.v.WatchConfig()
}

func (c *FileCatalog) reload() error {
	if err := c.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read model catalog %s: %w", c.path, err)
	}

	var f fileFormat
	if err := c.v.Unmarshal(&f); err != nil {
		return fmt.Errorf("failed to parse model catalog %s: %w", c.path, err)
	}

	models := make(map[string]service.ModelInfo, len(f.Models))
	for _, m := range f.Models {
		if m.ID == "" || m.Provider == "" {
			return fmt.Errorf("model catalog %s: entry missing id or provider", c.path)
		}
		if _, dup := models[m.ID]; dup {
			return fmt.Errorf("model catalog %s: duplicate model %s", c.path, m.ID)
		}
		models[m.ID] = m
	}

	c.mu.Lock()
	c.models = models
	c.mu.Unlock()
	return nil
}

// GetModelInfo 实现 service.ModelCatalog
func (c *FileCatalog) GetModelInfo(model string) (service.ModelInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.models[model]
	return m, ok
}

// Models 实现 service.ModelCatalog，按模型 ID 排序
func (c *FileCatalog) Models(provider string) []service.ModelInfo {
	c.mu.RLock()
	out := make([]service.ModelInfo, 0, len(c.models))
	for _, m := range c.models {
		if provider == "" || m.Provider == provider {
			out = append(out, m)
		}
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len 模型数量
func (c *FileCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.models)
}
