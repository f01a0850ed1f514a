// Package ratelimit 查询接口的分布式限流。
// 每个路由模板独立计数，计数存放在 Redis（GCRA），多个 consumer 实例共享同一额度。
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// ErrInvalidLimit Rate 或 Period 非正
var ErrInvalidLimit = errors.New("rate limit needs positive rate and period")

const keyPrefix = "ratelimit:"

// Limit 每 Period 允许 Rate 次，Burst 为空时等于 Rate
type Limit struct {
	Rate   int
	Period time.Duration
	Burst  int
}

// PerSecond 每秒 rate 次
func PerSecond(rate, burst int) Limit {
	return Limit{Rate: rate, Period: time.Second, Burst: burst}
}

func (l Limit) Validate() error {
	if l.Rate <= 0 || l.Period <= 0 {
		return fmt.Errorf("%w: rate=%d period=%s", ErrInvalidLimit, l.Rate, l.Period)
	}
	return nil
}

// EffectiveBurst 实际生效的突发上限
func (l Limit) EffectiveBurst() int {
	if l.Burst <= 0 {
		return l.Rate
	}
	return l.Burst
}

// Policy 默认额度加按路由模板覆盖，例如 /api/v1/orders/:id。
// 路由匹配不区分大小写，配置文件经 viper 读入后 key 会被转成小写。
type Policy struct {
	def    Limit
	routes map[string]Limit
}

func NewPolicy(def Limit, routes map[string]Limit) *Policy {
	p := &Policy{def: def, routes: make(map[string]Limit, len(routes))}
	for route, l := range routes {
		p.routes[strings.ToLower(route)] = l
	}
	return p
}

// For 返回路由对应的额度，没有覆盖时用默认额度
func (p *Policy) For(route string) Limit {
	if l, ok := p.routes[strings.ToLower(route)]; ok {
		return l
	}
	return p.def
}

// Key 计数键 ratelimit:<route>:<client>，不同路由互不占用额度
func Key(route, client string) string {
	return keyPrefix + strings.ToLower(route) + ":" + client
}

// Result 单次检查结果
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAfter time.Duration
	RetryAfter time.Duration
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit Limit) (*Result, error)
}

// RedisRateLimiter redis_rate 实现
type RedisRateLimiter struct {
	limiter *redis_rate.Limiter
}

func NewRedisRateLimiter(rdb *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{limiter: redis_rate.NewLimiter(rdb)}
}

// Allow 为 key 消耗一个令牌
func (r *RedisRateLimiter) Allow(ctx context.Context, key string, limit Limit) (*Result, error) {
	if err := limit.Validate(); err != nil {
		return nil, err
	}
	res, err := r.limiter.Allow(ctx, key, redis_rate.Limit{
		Rate:   limit.Rate,
		Period: limit.Period,
		Burst:  limit.EffectiveBurst(),
	})
	if err != nil {
		return nil, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return &Result{
		Allowed:    res.Allowed > 0,
		Remaining:  res.Remaining,
		ResetAfter: res.ResetAfter,
		RetryAfter: res.RetryAfter,
	}, nil
}
