package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"z-chat-ai-api/internal/wire"
)

// UsageCmd 额度维护
type UsageCmd struct {
	Show  UsageShowCmd  `cmd:"" help:"Show the current usage record of a user"`
	Reset UsageResetCmd `cmd:"" help:"Reset a user's credits and spending"`
}

// UsageShowCmd 查看额度
type UsageShowCmd struct {
	User string `required:"" help:"User ID"`
}

// Run 输出用户当前额度，已到重置时间的按重置后展示
func (c *UsageShowCmd) Run(cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	admin, cleanup, err := wire.InitializeAdmin(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer cleanup()

	record, err := admin.Gate.Usage(ctx, c.User)
	if err != nil {
		return fmt.Errorf("failed to read usage: %w", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(record)
}

// UsageResetCmd 重置额度
type UsageResetCmd struct {
	User string `required:"" help:"User ID"`
}

// Run 立即重置用户额度
func (c *UsageResetCmd) Run(cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	admin, cleanup, err := wire.InitializeAdmin(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer cleanup()

	if err := admin.Gate.Reset(ctx, c.User); err != nil {
		return fmt.Errorf("failed to reset usage: %w", err)
	}
	fmt.Printf("usage reset for %s\n", c.User)
	return nil
}
