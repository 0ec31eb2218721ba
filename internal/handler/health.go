package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports whether MySQL and Redis answer.
type HealthHandler struct {
	DB    Pinger
	Redis redis.UniversalClient
}

func NewHealthHandler(db Pinger, rdb redis.UniversalClient) *HealthHandler {
	return &HealthHandler{DB: db, Redis: rdb}
}

// Health returns 200 when every dependency answers within a second and
// 503 with the failing checks otherwise.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second)
	defer cancel()

	checks := map[string]string{"mysql": "ok", "redis": "ok"}
	status := http.StatusOK
	if err := h.DB.PingContext(ctx); err != nil {
		checks["mysql"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := h.Redis.Ping(ctx).Err(); err != nil {
		checks["redis"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, echo.Map{"checks": checks})
}
