package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"z-chat-ai-api/internal/infrastructure/persistence/redis"
	"z-chat-ai-api/pkg/errors"
	"z-chat-ai-api/pkg/logger"
)

// RateLimitRemainingHeader 当前窗口剩余次数
const RateLimitRemainingHeader = "X-RateLimit-Remaining"

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled bool
	// Limit 每个窗口内每个用户可发起的请求数
	Limit  int
	Window time.Duration
	// Endpoint 限流键中的端点名，同一端点名共享配额
	Endpoint string
}

// RateLimiter 限流器接口
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error)
}

// RateLimit 按用户的滑动窗口限流，须位于 Auth 之后
func RateLimit(cfg RateLimitConfig, limiter RateLimiter) gin.HandlerFunc {
	if !cfg.Enabled || limiter == nil || cfg.Limit <= 0 {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "default"
	}

	return func(c *gin.Context) {
		userID := GetUserIDFromGin(c)
		if userID == "" {
			userID = "anonymous"
		}
		key := redis.BuildUserRateLimitKey(userID, cfg.Endpoint)
		ctx := c.Request.Context()

		allowed, err := limiter.Allow(ctx, key, cfg.Limit, cfg.Window)
		if err != nil {
			// 限流器故障时放行
			logger.Warn(ctx, "rate limiter unavailable, allowing request", "key", key, "error", err)
			c.Next()
			return
		}

		if remaining, err := limiter.Remaining(ctx, key, cfg.Limit, cfg.Window); err == nil {
			c.Header(RateLimitRemainingHeader, strconv.Itoa(remaining))
		}

		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(cfg.Window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":     errors.CodeTooManyRequests,
				"message":  "rate limit exceeded",
				"trace_id": c.GetString("trace_id"),
			})
			return
		}

		c.Next()
	}
}
