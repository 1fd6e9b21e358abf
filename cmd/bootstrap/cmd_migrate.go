package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"z-chat-ai-api/internal/infrastructure/persistence/postgres"
	"z-chat-ai-api/internal/wire"
	"z-chat-ai-api/pkg/logger"
)

// MigrateCmd 建表
type MigrateCmd struct {
	Wait time.Duration `help:"How long to wait for the database to accept connections" default:"30s"`
}

// Run 等待数据库可用后执行迁移
func (c *MigrateCmd) Run(cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := waitForPostgres(ctx, postgres.DSN(&cfg.Database.Postgres), c.Wait); err != nil {
		return err
	}

	admin, cleanup, err := wire.InitializeAdmin(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer cleanup()

	if err := admin.PgClient.AutoMigrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	logger.Info(ctx, "database migrated", "database", cfg.Database.Postgres.Database)
	return nil
}

// waitForPostgres 轮询直到数据库可连通或超时
func waitForPostgres(ctx context.Context, dsn string, wait time.Duration) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		err := db.PingContext(ctx)
		if err == nil {
			return nil
		}
		logger.Warn(ctx, "database not ready", "error", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("database not reachable after %s: %w", wait, err)
		case <-ticker.C:
		}
	}
}
