package handler // declare the package name; contains HTTP handlers

import (
    "context"  // context bounds the readiness ping
    "net/http" // net/http provides status codes and response helpers
    "time"     // time sets the ping timeout

    "github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
    PingContext(ctx context.Context) error
}

// Health returns a health‑check endpoint used by load balancers and
// monitoring systems to verify that the service is running.  When a
// database is configured it is pinged; an unreachable database yields 503
// so the instance is taken out of rotation.
func Health(db Pinger) echo.HandlerFunc {
    return func(c echo.Context) error {
        if db == nil { // memory store: nothing to check
            return c.String(http.StatusOK, "ok")
        }
        ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
        defer cancel()
        if err := db.PingContext(ctx); err != nil {
            return c.String(http.StatusServiceUnavailable, "database unavailable")
        }
        return c.String(http.StatusOK, "ok") // write "ok" with a 200 OK status
    }
}
