// Package queue defines message payloads exchanged over the message broker.
package queue

// BookingConfirmedEvent is published when a paid order has been
// materialized into a booking.  It carries enough information for the
// ticket-email worker to compose the notification without querying the
// primary database.
type BookingConfirmedEvent struct {
    BookingID        uint64   `json:"booking_id"`
    OrderRef         string   `json:"order_ref"`
    SessionID        string   `json:"session_id"`
    UserID           *uint64  `json:"user_id,omitempty"`
    ShowtimeID       uint64   `json:"showtime_id"`
    MovieTitle       string   `json:"movie_title"`
    HallName         string   `json:"hall_name"`
    StartsAt         string   `json:"starts_at"`
    SeatLabels       []string `json:"seats"`
    TotalAmountCents int64    `json:"total_amount_cents"`
    ConfirmedAt      string   `json:"confirmed_at"`
}
