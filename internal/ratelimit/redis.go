package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowScript はスライディングウィンドウの加重カウントを
// 単一の原子的操作で計算する。現在と直前のウィンドウのカウンタを持ち、
// 直前分をウィンドウ内の経過割合で按分して合算する。
// インクリメントと期限設定を別コマンドに分けると並行ヒット時に
// 期限未設定のカウンタが残り得るため、必ずスクリプト内で行う。
//
// ARGV[1]: ウィンドウ長（ミリ秒）、ARGV[2]: 現在時刻（ミリ秒）。
// 戻り値は{加重カウント×1000（切り上げ）, 現在ウィンドウの残りミリ秒}。
var slidingWindowScript = redis.NewScript(`
local window = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local bucket = math.floor(now / window)
local currKey = KEYS[1] .. ":" .. bucket
local prevKey = KEYS[1] .. ":" .. (bucket - 1)

local current = redis.call("INCR", currKey)
if current == 1 then
  redis.call("PEXPIRE", currKey, window * 2)
end

local prev = tonumber(redis.call("GET", prevKey)) or 0
local elapsed = now % window
local weighted = prev * (window - elapsed) / window + current

return {math.ceil(weighted * 1000), window - elapsed}
`)

// RedisLimiter は共有Redisカウンタによるレート制限。
// 全レプリカが同一のカウンタを参照するため、水平スケール下でも制限が正しく効く。
// Redisに到達できない場合はローカルの縮退モードにフォールバックする。
type RedisLimiter struct {
	client   *redis.Client
	prefix   string
	fallback *LocalLimiter
}

// NewRedis はRedisLimiterを生成する。
func NewRedis(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{
		client:   client,
		prefix:   "rl:",
		fallback: NewLocal(),
	}
}

// Stop はフォールバックリミッターのバックグラウンド処理を停止する。
func (l *RedisLimiter) Stop() {
	l.fallback.Stop()
}

// Allow はキーに対する1リクエストの可否を判定する。
// 加重カウントの計算とカウンタ更新はLuaスクリプトで原子的に行う。
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) Decision {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}

	now := time.Now()
	res, err := slidingWindowScript.Run(ctx, l.client,
		[]string{l.prefix + key},
		window.Milliseconds(), now.UnixMilli(),
	).Result()
	if err != nil {
		slog.Warn("rate limit store unavailable, falling back to local limiter",
			slog.String("error", err.Error()),
		)
		return l.fallback.Allow(ctx, key, limit, window)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		return l.fallback.Allow(ctx, key, limit, window)
	}

	weightedMilli, _ := vals[0].(int64)
	resetMs, _ := vals[1].(int64)
	count := int(weightedMilli / 1000)

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   now.Add(time.Duration(resetMs) * time.Millisecond),
	}
}
