package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/adminbjkai/img2/utils"
)

// QuotaCounter counts accepted uploads per key. Incr returns the value after
// the increment, so check and reservation are one step.
type QuotaCounter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Decr(ctx context.Context, key string) error
}

// RedisQuotaCounter keeps counters in Redis with an expiry.
type RedisQuotaCounter struct {
	cli redis.Cmdable
}

// NewRedisQuotaCounter wraps cli.
func NewRedisQuotaCounter(cli redis.Cmdable) *RedisQuotaCounter {
	return &RedisQuotaCounter{cli: cli}
}

// Incr bumps key and refreshes its expiry in one MULTI/EXEC.
func (r *RedisQuotaCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := r.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (r *RedisQuotaCounter) Decr(ctx context.Context, key string) error {
	return r.cli.Decr(ctx, key).Err()
}

const quotaTimeout = 500 * time.Millisecond

func quotaKey(ip string, day time.Time) string {
	return "upload:day:" + ip + ":" + day.Format("20060102")
}

// untilEndOfDay returns the time left until the next UTC midnight.
func untilEndOfDay(now time.Time) time.Duration {
	return now.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour).Sub(now)
}

// UploadQuota caps accepted uploads per client IP per UTC day. A slot is
// reserved before the handler runs and released again when the upload is
// rejected, so only successful uploads stay counted. Counter errors let the
// request through. A nil counter or non-positive limit disables the check.
func UploadQuota(counter QuotaCounter, limit int, logger *zap.Logger) gin.HandlerFunc {
	if counter == nil || limit <= 0 {
		return func(ctx *gin.Context) { ctx.Next() }
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	release := func(key string) {
		rctx, cancel := context.WithTimeout(context.Background(), quotaTimeout)
		defer cancel()
		if err := counter.Decr(rctx, key); err != nil {
			logger.Warn("upload quota release failed", zap.Error(err))
		}
	}

	return func(ctx *gin.Context) {
		now := time.Now().UTC()
		key := quotaKey(ctx.ClientIP(), now)

		rctx, cancel := context.WithTimeout(ctx.Request.Context(), quotaTimeout)
		n, err := counter.Incr(rctx, key, untilEndOfDay(now))
		cancel()
		if err != nil {
			logger.Warn("upload quota reservation failed, allowing request", zap.Error(err))
			ctx.Next()
			return
		}
		if n > int64(limit) {
			release(key)
			utils.Error(ctx, http.StatusTooManyRequests, utils.CodeQuotaExceeded, "daily upload quota exceeded")
			ctx.Abort()
			return
		}

		ctx.Next()

		if ctx.Writer.Status() >= http.StatusMultipleChoices {
			release(key)
		}
	}
}
