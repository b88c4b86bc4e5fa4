package handler // declare the package name; contains HTTP handlers

import (
    "context"  // context bounds the dependency probe
    "net/http" // net/http provides status codes and response helpers
    "time"     // probe timeout

    "github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// Pinger is implemented by stores that can probe their backend.
type Pinger interface {
    Ping(ctx context.Context) error
}

// Health is a simple health‑check endpoint used by load balancers and
// monitoring systems to verify that the service is running.  It returns
// a plain text "ok" message with an HTTP 200 status code.
func Health(c echo.Context) error {
    return c.String(http.StatusOK, "ok")
}

// Ready returns a handler that also probes the store.  A nil pinger (the
// in-memory store) is always ready.
func Ready(p Pinger) echo.HandlerFunc {
    return func(c echo.Context) error {
        if p == nil {
            return c.String(http.StatusOK, "ok")
        }
        ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
        defer cancel()
        if err := p.Ping(ctx); err != nil {
            return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "store unavailable"})
        }
        return c.String(http.StatusOK, "ok")
    }
}
