package model

import "github.com/shopspring/decimal"

// TierStatus is the sellability flag of a ticket tier.
type TierStatus string

const (
    TierAvailable TierStatus = "AVAILABLE"
    TierSoldOut   TierStatus = "SOLD_OUT"
    TierClosed    TierStatus = "CLOSED"
)

// TicketTier is a priced category of tickets for an event with its own
// stock pool.  RemainingStock is only changed while the row is locked by
// a booking or release transaction.
//
// Fields:
//  ID             – primary key identifier.
//  EventID        – event the tier belongs to.
//  Name           – display name (e.g. VIP, Regular).
//  Price          – unit price.
//  RemainingStock – units still sellable.
//  InitialStock   – units the tier was created with.
//  MaxPerOrder    – optional cap on quantity per order (nil = no cap).
//  Status         – AVAILABLE, SOLD_OUT or CLOSED.
//  EventName, EventDate, VenueName, EventImageURL – denormalised event
//                   metadata copied into order snapshots.
type TicketTier struct {
    ID             uint64          `json:"id"`                            // ticket_tiers.id
    EventID        uint64          `json:"event_id"`                      // ticket_tiers.event_id
    Name           string          `json:"name"`                          // ticket_tiers.name
    Price          decimal.Decimal `json:"price"`                         // ticket_tiers.price
    RemainingStock int             `json:"remaining_stock"`               // ticket_tiers.remaining_stock
    InitialStock   int             `json:"initial_stock"`                 // ticket_tiers.initial_stock
    MaxPerOrder    *int            `json:"max_per_order,omitempty"`       // ticket_tiers.max_per_order (nullable)
    Status         TierStatus      `json:"status"`                        // ticket_tiers.status
    EventName      string          `json:"event_name,omitempty"`          // ticket_tiers.event_name
    EventDate      string          `json:"event_date,omitempty"`          // ticket_tiers.event_date
    VenueName      string          `json:"venue_name,omitempty"`          // ticket_tiers.venue_name
    EventImageURL  string          `json:"event_image_url,omitempty"`     // ticket_tiers.event_image_url
}

// Take debits qty units and flips the tier to SOLD_OUT when the pool is
// empty.  Callers validate availability first.
func (t *TicketTier) Take(qty int) {
    t.RemainingStock -= qty
    if t.RemainingStock <= 0 {
        t.RemainingStock = 0
        t.Status = TierSoldOut
    }
}

// Restore credits qty units back and reopens the tier.  Stock never
// exceeds InitialStock.
func (t *TicketTier) Restore(qty int) {
    t.RemainingStock += qty
    if t.InitialStock > 0 && t.RemainingStock > t.InitialStock {
        t.RemainingStock = t.InitialStock
    }
    t.Status = TierAvailable
}
