package model

import "time"

// SessionState enumerates the lifecycle states of a booking session.
// A session starts in DRAFT, moves to PENDING_PAYMENT at checkout and
// ends in exactly one of the terminal states.
type SessionState string

const (
    SessionDraft          SessionState = "DRAFT"
    SessionPendingPayment SessionState = "PENDING_PAYMENT"
    SessionCompleted      SessionState = "COMPLETED"
    SessionCanceled       SessionState = "CANCELED"
    SessionExpired        SessionState = "EXPIRED"
)

// MaxComboUnits caps the total number of combo units a single session
// may carry across all combo lines.
const MaxComboUnits = 8

// ComboLine is one combo product and its quantity inside a session.
type ComboLine struct {
    ComboID  uint64 `json:"combo_id"`
    Quantity uint32 `json:"quantity"`
}

// SessionItems is the typed content of a booking session: the seats
// being reserved and the combo lines added to the order.  It is stored
// as a JSON column; (de)serialization happens only at the repository
// boundary and the in-process representation is always this struct.
type SessionItems struct {
    Seats  []uint64    `json:"seats"`
    Combos []ComboLine `json:"combos"`
}

// ComboUnits returns the total number of combo units across all lines.
func (it SessionItems) ComboUnits() uint32 {
    var n uint32
    for _, l := range it.Combos {
        n += l.Quantity
    }
    return n
}

// HasSeat reports whether the seat is part of the session items.
func (it SessionItems) HasSeat(seatID uint64) bool {
    for _, id := range it.Seats {
        if id == seatID {
            return true
        }
    }
    return false
}

// Pricing is the price breakdown computed for a session's current
// items and coupon.  All amounts are in cents.
type Pricing struct {
    SubtotalCents int64 `json:"subtotal_cents"`
    DiscountCents int64 `json:"discount_cents"`
    TotalCents    int64 `json:"total_cents"`
}

// BookingSession is a time-boxed cart of seats and combos for one
// showtime.  Sessions are identified by an opaque random token and may
// belong to an authenticated user or be anonymous (OwnerID nil).
//
// Invariant: once a session leaves DRAFT its items and coupon never
// change; only the state and payment-linked fields may still move.
type BookingSession struct {
    ID         string       // booking_sessions.id (opaque token)
    ShowtimeID uint64       // booking_sessions.showtime_id
    OwnerID    *uint64      // booking_sessions.owner_id (nullable)
    State      SessionState // booking_sessions.state
    Items      SessionItems // booking_sessions.items (JSON)
    Pricing    Pricing      // booking_sessions.pricing (JSON)
    CouponCode *string      // booking_sessions.coupon_code (nullable)
    CreatedAt  time.Time    // booking_sessions.created_at
    UpdatedAt  time.Time    // booking_sessions.updated_at
    ExpiresAt  time.Time    // booking_sessions.expires_at
}

// Terminal reports whether the session reached a final state.
func (s *BookingSession) Terminal() bool {
    switch s.State {
    case SessionCompleted, SessionCanceled, SessionExpired:
        return true
    }
    return false
}

// LapsedAt reports whether a DRAFT session has outlived its TTL at the
// given instant.  Sessions parked in PENDING_PAYMENT are governed by
// their order's payment window instead and never lapse here.
func (s *BookingSession) LapsedAt(now time.Time) bool {
    return s.State == SessionDraft && !now.Before(s.ExpiresAt)
}
