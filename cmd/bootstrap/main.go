// Package main 运维命令：数据库迁移、额度维护、模型查询与签发测试令牌
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"z-chat-ai-api/internal/config"
	"z-chat-ai-api/pkg/logger"
)

// CLI 命令行入口
type CLI struct {
	ConfigDir string `help:"Directory containing config.yaml" default:"configs" type:"path"`
	LogLevel  string `help:"Log level" default:"info" enum:"debug,info,warn,error"`

	Migrate MigrateCmd `cmd:"" help:"Create or update database tables"`
	Usage   UsageCmd   `cmd:"" help:"Inspect or reset user credits"`
	Models  ModelsCmd  `cmd:"" help:"Inspect providers and the model catalog"`
	Token   TokenCmd   `cmd:"" help:"Issue access tokens for local testing"`
}

func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFrom(c.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func main() {
	_ = godotenv.Load()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("bootstrap"),
		kong.Description("Maintenance commands for z-chat-ai-api"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	logger.Init(cli.LogLevel, "text")

	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
