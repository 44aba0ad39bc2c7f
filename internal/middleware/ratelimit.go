package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"text-sync/internal/dto"
)

// Limiter 由 redis.RedisRateLimiter 实现
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimit 返回一个 Gin 中间件，用于基于客户端 IP 地址进行速率限制。
// Redis 不可用时放行请求，只记录错误。
func RateLimit(limiter Limiter, maxRequests int, window time.Duration) gin.HandlerFunc {
	if limiter == nil {
		panic("Limiter cannot be nil for RateLimit middleware")
	}
	if maxRequests <= 0 {
		panic("maxRequests must be positive for RateLimit middleware")
	}
	if window <= 0 {
		panic("window duration must be positive for RateLimit middleware")
	}

	return func(c *gin.Context) {
		// 反向代理后需要配置 gin 的 TrustedProxies 才能拿到真实 IP
		key := c.ClientIP()

		allowed, err := limiter.Allow(c.Request.Context(), key, maxRequests, window)
		if err != nil {
			logrus.WithError(err).WithField("client_ip", key).Error("RateLimit: limiter failed, allowing request")
			c.Next()
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.ErrorResponse{Error: "Too many requests"})
			return
		}
		c.Next()
	}
}
