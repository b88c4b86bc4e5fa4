// Package apperr defines the error taxonomy surfaced by the booking and
// lifecycle services.  Every error carries a Kind, which callers use to
// decide between retrying and aborting, and a stable Code that clients
// branch on (for example offering a smaller quantity on
// INSUFFICIENT_STOCK versus alternate tiers on TIER_UNAVAILABLE).
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind string

const (
	KindNotFound          Kind = "NOT_FOUND"
	KindInsufficientStock Kind = "INSUFFICIENT_STOCK"
	KindInvalid           Kind = "INVALID"
	KindConflict          Kind = "CONFLICT"
	KindUnavailable       Kind = "UNAVAILABLE"
)

// Sentinels for errors.Is comparisons against a Kind.
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock}
	ErrInvalid           = &Error{Kind: KindInvalid}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrUnavailable       = &Error{Kind: KindUnavailable}
)

// Stable error codes.
const (
	CodeUserNotFound         = "USER_NOT_FOUND"
	CodeTierNotFound         = "TIER_NOT_FOUND"
	CodeOrderNotFound        = "ORDER_NOT_FOUND"
	CodePaymentNotFound      = "PAYMENT_NOT_FOUND"
	CodeInvalidQuantity      = "INVALID_QUANTITY"
	CodeTierUnavailable      = "TIER_UNAVAILABLE"
	CodeInsufficientStock    = "INSUFFICIENT_STOCK"
	CodeMaxPerOrderExceeded  = "MAX_PER_ORDER_EXCEEDED"
	CodeOrderNotPending      = "ORDER_NOT_PENDING"
	CodeOrderNotPaid         = "ORDER_NOT_PAID"
	CodeOrderNotEligible     = "ORDER_NOT_ELIGIBLE"
	CodeAlreadyUsed          = "ALREADY_USED"
	CodePaymentNotPending    = "PAYMENT_NOT_PENDING"
	CodeUnknownStatus        = "UNKNOWN_STATUS"
	CodeInvalidPage          = "INVALID_PAGE"
	CodeUnknownGatewayStatus = "UNKNOWN_GATEWAY_STATUS"
	CodeMalformedCallback    = "MALFORMED_CALLBACK"
	CodeDuplicate            = "DUPLICATE"
	CodeLockTimeout          = "LOCK_TIMEOUT"
	CodeGatewayUnavailable   = "GATEWAY_UNAVAILABLE"
)

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind, and additionally the same Code
// when the target has one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// New builds an *Error.
func New(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error around cause.
func Wrap(kind Kind, code string, cause error, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Err: cause}
}

func NotFound(code, format string, args ...any) *Error {
	return New(KindNotFound, code, format, args...)
}

func Invalid(code, format string, args ...any) *Error {
	return New(KindInvalid, code, format, args...)
}

// KindOf returns the Kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the stable code of err, or "" when err is not classified.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Retryable reports whether repeating the same call may succeed.  Only
// transient conditions such as lock wait timeouts qualify; running out of
// stock is final for the same parameters.
func Retryable(err error) bool {
	return KindOf(err) == KindUnavailable
}
