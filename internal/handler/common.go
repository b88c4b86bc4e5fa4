package handler // handler defines the HTTP surface of the ticketing engine

import (
    "errors"   // errors unwraps service errors
    "net/http" // HTTP status codes
    "strconv"  // strconv converts path parameters

    "github.com/go-playground/validator/v10" // struct tag validation of request bodies
    "github.com/labstack/echo/v4"            // echo defines request context types

    "github.com/iliyamo/event-ticketing/internal/apperr" // service error taxonomy
    "github.com/iliyamo/event-ticketing/internal/model"  // role names
)

// validate is shared by every handler; validator caches struct metadata.
var validate = validator.New(validator.WithRequiredStructEnabled())

// errBadRequest marks malformed input that never reached a service.
var errBadRequest = errors.New("bad request")

// getUserID extracts the user_id stored by the JWT middleware.
func getUserID(c echo.Context) (uint64, error) {
    switch t := c.Get("user_id").(type) {
    case uint64:
        if t > 0 {
            return t, nil
        }
    case float64:
        if t > 0 {
            return uint64(t), nil
        }
    case string:
        if n, err := strconv.ParseUint(t, 10, 64); err == nil && n > 0 {
            return n, nil
        }
    }
    return 0, errors.New("invalid user_id in context")
}

// isAdmin reports whether the caller carries the ADMIN role.
func isAdmin(c echo.Context) bool {
    r, _ := c.Get("role").(string)
    return r == model.RoleAdmin
}

// parseID reads a positive integer path parameter.
func parseID(c echo.Context, name string) (uint64, error) {
    id, err := strconv.ParseUint(c.Param(name), 10, 64)
    if err != nil || id == 0 {
        return 0, errBadRequest
    }
    return id, nil
}

// bind decodes the JSON body into dst and runs its validate tags.
func bind(c echo.Context, dst interface{}) error {
    if err := c.Bind(dst); err != nil {
        return errBadRequest
    }
    if err := validate.Struct(dst); err != nil {
        return err
    }
    return nil
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(kind apperr.Kind) int {
    switch kind {
    case apperr.KindNotFound:
        return http.StatusNotFound
    case apperr.KindInsufficientStock, apperr.KindConflict:
        return http.StatusConflict
    case apperr.KindInvalid:
        return http.StatusUnprocessableEntity
    case apperr.KindUnavailable:
        return http.StatusServiceUnavailable
    }
    return http.StatusInternalServerError
}

// writeError renders err as {"error": message, "code": code}.  Unknown
// errors are logged by echo and reported as a generic 500.
func writeError(c echo.Context, err error) error {
    var ve validator.ValidationErrors
    if errors.As(err, &ve) {
        fields := make(map[string]string, len(ve))
        for _, fe := range ve {
            fields[fe.Field()] = fe.Tag()
        }
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": fields})
    }
    if errors.Is(err, errBadRequest) {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
    }
    var ae *apperr.Error
    if errors.As(err, &ae) {
        status := statusFor(ae.Kind)
        if status == http.StatusServiceUnavailable {
            c.Response().Header().Set("Retry-After", "1")
        }
        return c.JSON(status, echo.Map{"error": ae.Message, "code": ae.Code})
    }
    c.Logger().Error(err)
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
