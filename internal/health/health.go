package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Status struct {
	OK       bool   `json:"ok"`
	Message  string `json:"message,omitempty"`
	Database bool   `json:"database,omitempty"`
}

func check(ctx context.Context, pool *pgxpool.Pool) (Status, int) {
	st := Status{OK: true, Message: "ok", Database: true}

	if pool != nil {
		ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			st.OK = false
			st.Message = "db ping failed"
			st.Database = false
			return st, http.StatusServiceUnavailable
		}
	}
	return st, http.StatusOK
}

// HTTPHandler reports service health over plain net/http, used by the worker.
func HTTPHandler(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, code := check(r.Context(), pool)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(st)
	}
}

// FiberHandler is the same check mounted on the API's fiber app.
func FiberHandler(pool *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		st, code := check(c.Context(), pool)
		return c.Status(code).JSON(st)
	}
}
