package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/orderpipeline/pkg/logger"
	"github.com/wyfcoding/orderpipeline/pkg/ratelimit"
)

// RateLimitConfig 查询接口限流参数，Routes 以路由模板为 key 覆盖默认额度
type RateLimitConfig struct {
	Enabled bool
	QPS     int
	Burst   int
	Routes  map[string]RouteLimit
}

// RouteLimit 单个路由的额度
type RouteLimit struct {
	QPS   int
	Burst int
}

// RateLimitMiddleware 按 路由模板 + 客户端 IP 限流，限流器故障时放行
func RateLimitMiddleware(limiter ratelimit.RateLimiter, cfg RateLimitConfig) gin.HandlerFunc {
	routes := make(map[string]ratelimit.Limit, len(cfg.Routes))
	for route, rl := range cfg.Routes {
		routes[route] = ratelimit.PerSecond(rl.QPS, rl.Burst)
	}
	policy := ratelimit.NewPolicy(ratelimit.PerSecond(cfg.QPS, cfg.Burst), routes)

	return func(c *gin.Context) {
		if !cfg.Enabled || limiter == nil {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		limit := policy.For(route)
		res, err := limiter.Allow(c.Request.Context(), ratelimit.Key(route, c.ClientIP()), limit)
		if err != nil {
			logger.Warn(c.Request.Context(), "rate limiter unavailable, allowing request", "route", route, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit.EffectiveBurst()))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(res.ResetAfter/time.Second), 10))

		if !res.Allowed {
			c.Header("Retry-After", strconv.FormatInt(int64(res.RetryAfter/time.Second)+1, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests",
				"retry_after": res.RetryAfter.String(),
			})
			return
		}
		c.Next()
	}
}
