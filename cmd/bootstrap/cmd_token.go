package main

import (
	"fmt"
	"time"

	"z-chat-ai-api/pkg/utils"
)

// TokenCmd 令牌签发
type TokenCmd struct {
	Issue TokenIssueCmd `cmd:"" help:"Issue an access token for a user"`
}

// TokenIssueCmd 签发访问令牌
type TokenIssueCmd struct {
	User string        `required:"" help:"User ID"`
	Plan string        `help:"Plan tier carried in the token"`
	TTL  time.Duration `help:"Token lifetime, defaults to security.jwt.expiration"`
}

// Run 输出签名后的令牌
func (c *TokenIssueCmd) Run(cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	jwtCfg := cfg.Security.JWT
	if jwtCfg.Secret == "" {
		return fmt.Errorf("security.jwt.secret is not configured")
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = jwtCfg.Expiration
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	token, err := utils.NewJWTManager(jwtCfg.Secret, jwtCfg.Issuer).GenerateToken(c.User, c.Plan, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
