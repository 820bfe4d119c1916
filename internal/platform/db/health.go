package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const pingTimeout = 3 * time.Second

// PoolStats is the pool summary served by the health endpoint.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

func statsOf(s *pgxpool.Stat, pingErr error) PoolStats {
	return PoolStats{
		TotalConns:      s.TotalConns(),
		IdleConns:       s.IdleConns(),
		AcquiredConns:   s.AcquiredConns(),
		MaxConns:        s.MaxConns(),
		AcquireCount:    s.AcquireCount(),
		AcquireDuration: s.AcquireDuration().String(),
		Healthy:         pingErr == nil,
	}
}

// HealthHandler pings the database and answers 503 when it is unreachable.
// The error text is not returned to the caller.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), pingTimeout)
		defer cancel()

		err := pool.Ping(ctx)
		stats := statsOf(pool.Stat(), err)
		if err != nil {
			zerolog.Ctx(c.Request().Context()).Error().Err(err).Msg("database health check failed")
			return c.JSON(http.StatusServiceUnavailable, map[string]any{"status": "unhealthy", "pool": stats})
		}
		return c.JSON(http.StatusOK, map[string]any{"status": "healthy", "pool": stats})
	}
}
