package middleware

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Redis keys for request stats, read back by the health service.
const (
	KeyReqTotal     = "health:global:req_total"
	KeyReqErrors    = "health:global:req_errors"
	KeyReqRejected  = "health:global:req_rejected"
	KeyResTime      = "health:global:res_time_total"
	KeyResCount     = "health:global:res_count"
	KeyStartTime    = "health:global:start_time"
	KeyLastReq      = "health:global:last_request"
	KeyInstructions = "health:global:instructions"
	KeyErrorLog     = "health:global:error_log"
)

// ErrorLogSize is how many 5xx entries the error log keeps.
const ErrorLogSize = 50

// HealthMarker records request stats in Redis (skip /, /health*, favicon). A nil client
// disables it. 4xx responses under /api/v1/instructions are counted as rejected instructions.
func HealthMarker(rdb redis.UniversalClient) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		if rdb == nil || path == "/" || strings.HasPrefix(path, "/health") || strings.HasPrefix(path, "/favicon") {
			return c.Next()
		}

		start := time.Now()
		lastReq := map[string]interface{}{
			"time":   start,
			"ip":     c.IP(),
			"path":   c.OriginalURL(),
			"method": c.Method(),
		}
		b, _ := json.Marshal(lastReq)
		ctx := context.Background()
		_, _ = rdb.Set(ctx, KeyLastReq, b, 0).Result()
		_, _ = rdb.Incr(ctx, KeyReqTotal).Result()

		err := c.Next()

		ms := time.Since(start).Milliseconds()
		status := c.Response().StatusCode()
		_, _ = rdb.Incr(ctx, KeyResCount).Result()
		_, _ = rdb.IncrByFloat(ctx, KeyResTime, float64(ms)).Result()
		if status >= 500 {
			_, _ = rdb.Incr(ctx, KeyReqErrors).Result()
		}
		if strings.HasPrefix(path, "/api/v1/instructions/") {
			_, _ = rdb.HIncrBy(ctx, KeyInstructions, strings.TrimPrefix(path, "/api/v1/instructions/"), 1).Result()
			if status >= 400 && status < 500 {
				_, _ = rdb.Incr(ctx, KeyReqRejected).Result()
			}
		}
		return err
	}
}
