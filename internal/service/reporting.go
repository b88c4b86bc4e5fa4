package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-ticketing/internal/apperr"
	"github.com/iliyamo/event-ticketing/internal/model"
)

// Paging bounds for the staff order listing.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// OrderPage is one page of the staff order listing.
type OrderPage struct {
	Orders []model.Order `json:"orders"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
	// Total counts every order matching the filter, not just this page.
	Total int64 `json:"total"`
}

// Stats summarises orders and payments for the staff dashboard.
type Stats struct {
	Orders           int64                         `json:"orders"`
	OrdersByStatus   map[model.OrderStatus]int64   `json:"orders_by_status"`
	Revenue          decimal.Decimal               `json:"revenue"`
	Payments         int64                         `json:"payments"`
	PaymentsByStatus map[model.PaymentStatus]int64 `json:"payments_by_status"`
	// PaymentSuccessRate is the percentage of payments that reached
	// SUCCESS, rounded to two places.  It is 0 when there are none.
	PaymentSuccessRate decimal.Decimal `json:"payment_success_rate"`
}

// ListOrders pages through every order, newest first.  status is optional;
// limit 0 means DefaultPageSize.
func (s *OrderService) ListOrders(ctx context.Context, status string, limit, offset int) (*OrderPage, error) {
	var st model.OrderStatus
	if status = strings.TrimSpace(status); status != "" {
		var ok bool
		if st, ok = model.ParseOrderStatus(strings.ToUpper(status)); !ok {
			return nil, apperr.Invalid(apperr.CodeUnknownStatus, "unknown order status %q", status)
		}
	}
	if limit == 0 {
		limit = DefaultPageSize
	}
	if limit < 0 || limit > MaxPageSize || offset < 0 {
		return nil, apperr.Invalid(apperr.CodeInvalidPage, "limit must be 1..%d and offset non-negative", MaxPageSize)
	}
	orders, err := s.Store.ListOrders(ctx, st, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	totals, err := s.Store.OrderTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}
	page := &OrderPage{Orders: orders, Limit: limit, Offset: offset}
	if st == "" {
		page.Total = sum(totals.ByStatus)
	} else {
		page.Total = totals.ByStatus[st]
	}
	return page, nil
}

// Stats reads the order and payment summary.  The figures come from
// separate reads and may be a moment apart.
func (s *OrderService) Stats(ctx context.Context) (*Stats, error) {
	totals, err := s.Store.OrderTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("order totals: %w", err)
	}
	payments, err := s.Store.CountPaymentsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("payment totals: %w", err)
	}
	st := &Stats{
		Orders:             sum(totals.ByStatus),
		OrdersByStatus:     totals.ByStatus,
		Revenue:            totals.Revenue,
		Payments:           sum(payments),
		PaymentsByStatus:   payments,
		PaymentSuccessRate: decimal.Zero,
	}
	if st.Payments > 0 {
		st.PaymentSuccessRate = decimal.NewFromInt(payments[model.PaymentSuccess] * 100).
			Div(decimal.NewFromInt(st.Payments)).
			Round(2)
	}
	return st, nil
}

func sum[K comparable](m map[K]int64) int64 {
	var n int64
	for _, v := range m {
		n += v
	}
	return n
}
