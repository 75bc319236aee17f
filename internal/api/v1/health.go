package apiv1

import (
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/asafgershon/esim-go-sub012/internal/pkg/syncqueue"
)

// HealthHandler reports service health: Redis, database and queue
// reachability. Any failing check degrades the response to 503.
func HealthHandler(db *gorm.DB, redisClient *redis.Client, queue *syncqueue.Queue) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		checks := fiber.Map{
			"redis":    "ok",
			"database": "ok",
			"queue":    "ok",
		}
		healthy := true

		if err := redisClient.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			checks["queue"] = "unavailable"
			healthy = false
		}

		sqlDB, err := db.DB()
		if err != nil {
			checks["database"] = err.Error()
			healthy = false
		} else if err := sqlDB.PingContext(ctx); err != nil {
			checks["database"] = err.Error()
			healthy = false
		}

		var queueStats *syncqueue.Stats
		if healthy {
			queueStats, err = queue.GetStats(ctx)
			if err != nil {
				checks["queue"] = err.Error()
				healthy = false
			}
		}

		status := fiber.StatusOK
		state := "healthy"
		if !healthy {
			status = fiber.StatusServiceUnavailable
			state = "degraded"
		}
		return c.Status(status).JSON(fiber.Map{
			"status": state,
			"checks": checks,
			"queue":  queueStats,
		})
	}
}
