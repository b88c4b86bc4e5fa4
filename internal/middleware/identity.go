package middleware

// identity.go holds the accessors handlers and other middleware use to
// read the caller identity that JWTAuth stored in the Echo context.

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

// Context keys written by JWTAuth.
const (
    ctxUserID = "user_id"
    ctxRole   = "role"
)

// UserID returns the authenticated user's id.  ok is false for anonymous
// requests.
func UserID(c echo.Context) (uint64, bool) {
    id, ok := c.Get(ctxUserID).(uint64)
    return id, ok && id > 0
}

// Role returns the authenticated user's role or "" when absent.
func Role(c echo.Context) string {
    r, _ := c.Get(ctxRole).(string)
    return r
}

// subjectID converts a "sub" claim into a user id.  Tokens minted by the
// identity service carry it as a JSON number; some issuers use a string.
func subjectID(v interface{}) (uint64, bool) {
    switch t := v.(type) {
    case float64:
        if t <= 0 || t != float64(uint64(t)) {
            return 0, false
        }
        return uint64(t), true
    case string:
        n, err := strconv.ParseUint(t, 10, 64)
        return n, err == nil && n > 0
    }
    return 0, false
}

// rateKeyUser identifies the caller in rate limit keys.
func rateKeyUser(c echo.Context) string {
    if id, ok := UserID(c); ok {
        return strconv.FormatUint(id, 10)
    }
    return "anon"
}
