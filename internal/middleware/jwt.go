package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "net/http" // HTTP status codes for responses
    "strings"  // bearer prefix handling and role normalisation

    "github.com/golang-jwt/jwt/v5" // JWT library for parsing and validating tokens
    "github.com/labstack/echo/v4"  // Echo framework used for defining middleware and handlers
)

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// stores the caller's numeric user id and upper-cased role in the request
// context, where handlers read them through UserID(c) and Role(c).  Tokens
// are issued by the identity service with the shared HS256 secret; they
// must carry an exp claim.
func JWTAuth(secret string) echo.MiddlewareFunc {
    parser := jwt.NewParser(
        jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
        jwt.WithExpirationRequired(),
    )
    key := []byte(secret)

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            raw, found := strings.CutPrefix(auth, "Bearer ")
            if !found || strings.TrimSpace(raw) == "" {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }

            claims := jwt.MapClaims{}
            tok, err := parser.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (interface{}, error) {
                return key, nil
            })
            if err != nil || !tok.Valid {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }

            // The subject must be a positive numeric user id; orders are
            // keyed by it.
            uid, ok := subjectID(claims["sub"])
            if !ok {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid subject"})
            }
            role, _ := claims["role"].(string)

            c.Set(ctxUserID, uid)
            c.Set(ctxRole, strings.ToUpper(strings.TrimSpace(role)))
            return next(c)
        }
    }
}
