package middleware // middleware provides shared request processing for handlers

import (
    "net/http" // http package defines standard HTTP status codes
    "strings"  // role names compare upper-cased

    "github.com/labstack/echo/v4" // echo provides middleware chaining and context
)

// RequireRole admits callers whose role claim is one of roles (CUSTOMER,
// ADMIN) and answers everyone else with 403.  It must run after JWTAuth,
// which stores the role upper-cased.
func RequireRole(roles ...string) echo.MiddlewareFunc {
    allowed := make(map[string]struct{}, len(roles))
    for _, r := range roles {
        allowed[strings.ToUpper(r)] = struct{}{}
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            role := Role(c)
            if _, ok := allowed[role]; !ok || role == "" {
                return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "role": role})
            }
            return next(c)
        }
    }
}
