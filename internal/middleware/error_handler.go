package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"carbon-registry/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// NewErrorHandler returns the global error handler. Returns the standard error format and,
// when rdb is set, appends 5xx errors to the health error log.
func NewErrorHandler(rdb redis.UniversalClient) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal Server Error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		}
		if code >= fiber.StatusInternalServerError {
			log.Error().Str("trace_id", GetTraceID(c)).Err(err).Msg("unhandled error")
			if rdb != nil {
				entry, _ := json.Marshal(map[string]interface{}{
					"time":     time.Now(),
					"method":   c.Method(),
					"path":     c.OriginalURL(),
					"message":  err.Error(),
					"trace_id": GetTraceID(c),
				})
				ctx := context.Background()
				_, _ = rdb.LPush(ctx, KeyErrorLog, entry).Result()
				_, _ = rdb.LTrim(ctx, KeyErrorLog, 0, ErrorLogSize-1).Result()
			}
		}
		return response.Error(c, message, code, nil)
	}
}
