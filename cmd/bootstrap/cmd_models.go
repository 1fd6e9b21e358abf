package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"z-chat-ai-api/internal/infrastructure/llm"
	"z-chat-ai-api/internal/wire"
)

// ModelsCmd 模型查询
type ModelsCmd struct {
	List    ModelsListCmd    `cmd:"" help:"List catalog models"`
	Default ModelsDefaultCmd `cmd:"" help:"Print the default model of a provider"`
}

// ModelsListCmd 列出模型
type ModelsListCmd struct {
	Provider string `help:"Only list models of this provider"`
}

// Run 以表格输出模型能力与价格
func (c *ModelsListCmd) Run(cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	cat, err := wire.ProvideCatalog(context.Background(), cfg)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tMODEL\tTOOLS\tMULTIMODAL\tTHINKING\tIN/1K\tOUT/1K")
	for _, m := range cat.Models(c.Provider) {
		fmt.Fprintf(w, "%s\t%s\t%t\t%t\t%t\t%.4f\t%.4f\n",
			m.Provider, m.ID, m.SupportsTools, m.IsMultimodal, m.SupportsThinking,
			m.Pricing.InputPerK, m.Pricing.OutputPerK)
	}
	return w.Flush()
}

// ModelsDefaultCmd 查询默认模型
type ModelsDefaultCmd struct {
	Provider string `required:"" help:"Provider ID"`
}

// Run 输出提供商默认模型
func (c *ModelsDefaultCmd) Run(cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	cat, err := wire.ProvideCatalog(context.Background(), cfg)
	if err != nil {
		return err
	}
	registry := llm.NewRegistry(cfg, cat)
	if _, ok := registry.Provider(c.Provider); !ok {
		return fmt.Errorf("unknown provider: %s", c.Provider)
	}
	fmt.Println(registry.GetDefaultModel(c.Provider))
	return nil
}
