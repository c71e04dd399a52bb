package model

import "time"

// OrderStatus enumerates the states of a payment attempt.
type OrderStatus string

const (
    OrderPending OrderStatus = "PENDING"
    OrderPaid    OrderStatus = "PAID"
    OrderExpired OrderStatus = "EXPIRED"
)

// Order is one payment attempt against a booking session.  A session
// may accumulate several orders when earlier attempts expired before
// payment, but at most one of them may ever reach PAID.
//
// BookingID is the idempotency gate for payment reconciliation: a
// non-nil value is durable proof that the paid session was already
// materialized into a booking.
type Order struct {
    ID          uint64      // orders.id
    Ref         string      // orders.order_ref (UUID shown to the gateway)
    SessionID   string      // orders.session_id
    AmountCents int64       // orders.amount_cents (frozen checkout total)
    Status      OrderStatus // orders.status
    CheckoutURL string      // orders.checkout_url
    ProviderRef string      // orders.provider_ref (gateway side reference)
    BookingID   *uint64     // orders.booking_id (nullable)
    ExpiresAt   time.Time   // orders.expires_at (payment window)
    CreatedAt   time.Time   // orders.created_at
    UpdatedAt   time.Time   // orders.updated_at
}

// Live reports whether the order can still be paid at the given
// instant: it is PENDING and its payment window has not lapsed.
func (o *Order) Live(now time.Time) bool {
    return o.Status == OrderPending && now.Before(o.ExpiresAt)
}
