// Package gateway adapts external payment providers.  The engine only
// needs two things from a provider: a hosted charge the buyer can be
// redirected to, and asynchronous status callbacks that reference the
// order through an external reference string.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnavailable is returned when the provider could not be reached or
// answered with a server error.
var ErrUnavailable = errors.New("payment gateway unavailable")

// ChargeRequest describes the amount to collect for one order.
type ChargeRequest struct {
	OrderID     uint64
	ExternalRef string
	UserID      uint64
	ItemName    string
	Quantity    int
	UnitPrice   decimal.Decimal
	Amount      decimal.Decimal
	ExpiresAt   time.Time
}

// Charge is the provider's handle for a created charge.
type Charge struct {
	Reference   string
	RedirectURL string
}

// Gateway creates charges at a payment provider.
type Gateway interface {
	Name() string
	CreateCharge(ctx context.Context, req ChargeRequest) (Charge, error)
}

const refPrefix = "ORDER-"

// ExternalRef renders the reference sent to the provider for orderID.
// The suffix keeps references unique when a charge is recreated.
func ExternalRef(orderID uint64, now time.Time) string {
	return fmt.Sprintf("%s%d-%d", refPrefix, orderID, now.UnixMilli())
}

// ParseExternalRef extracts the order id from a reference of the form
// ORDER-{orderID}-{suffix}.
func ParseExternalRef(ref string) (uint64, error) {
	rest, ok := strings.CutPrefix(ref, refPrefix)
	if !ok {
		return 0, fmt.Errorf("external ref %q: missing %s prefix", ref, refPrefix)
	}
	idPart, suffix, ok := strings.Cut(rest, "-")
	if !ok || suffix == "" {
		return 0, fmt.Errorf("external ref %q: missing suffix", ref)
	}
	id, err := strconv.ParseUint(idPart, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("external ref %q: bad order id", ref)
	}
	return id, nil
}
