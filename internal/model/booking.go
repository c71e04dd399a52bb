package model

import "time"

// Booking is the durable record produced exactly once for a paid
// session.  TotalAmountCents carries the amount actually charged,
// frozen from the pricing snapshot at checkout time.
type Booking struct {
    ID               uint64    // bookings.id
    SessionID        string    // bookings.session_id
    OrderID          uint64    // bookings.order_id
    UserID           *uint64   // bookings.user_id (nullable for anonymous)
    ShowtimeID       uint64    // bookings.showtime_id
    TotalAmountCents int64     // bookings.total_amount_cents
    Status           string    // bookings.status (always COMPLETED)
    CreatedAt        time.Time // bookings.created_at
}

// Ticket is one sold seat under a booking.  PriceCents is priced from
// the catalog data current at reconciliation time and is informational;
// the booking total is what the customer was charged.
type Ticket struct {
    ID         uint64    // tickets.id
    BookingID  uint64    // tickets.booking_id
    ShowtimeID uint64    // tickets.showtime_id
    SeatID     uint64    // tickets.seat_id
    PriceCents int64     // tickets.price_cents
    Status     string    // tickets.status (VALID)
    CreatedAt  time.Time // tickets.created_at
}

// ServiceOrder aggregates one distinct combo product sold under a
// booking with its quantity and the unit price applied.
type ServiceOrder struct {
    ID             uint64    // service_orders.id
    BookingID      uint64    // service_orders.booking_id
    ComboID        uint64    // service_orders.combo_id
    Quantity       uint32    // service_orders.quantity
    UnitPriceCents int64     // service_orders.unit_price_cents
    CreatedAt      time.Time // service_orders.created_at
}

// Payment records the settlement of an order: the amount, the
// provider's transaction id, whether the confirmation signature
// verified, and the raw confirmation payload kept for audit.
type Payment struct {
    ID             uint64    // payments.id
    OrderID        uint64    // payments.order_id
    AmountCents    int64     // payments.amount_cents
    ProviderTxnID  string    // payments.provider_txn_id
    SignatureValid bool      // payments.signature_valid
    RawPayload     []byte    // payments.raw_payload (JSON, audit only)
    CreatedAt      time.Time // payments.created_at
}
