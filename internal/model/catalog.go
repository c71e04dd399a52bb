package model

import "time"

// Showtime is one screening of a movie in a hall.  BasePriceCents is
// the seat price before the seat-type surcharge.
type Showtime struct {
    ID             uint64    // showtimes.id
    MovieTitle     string    // showtimes.movie_title
    HallName       string    // showtimes.hall_name
    StartsAt       time.Time // showtimes.starts_at
    BasePriceCents int64     // showtimes.base_price_cents
}

// Seat is a seat of the hall a showtime plays in, joined with its
// seat-type surcharge.  The pricing engine and ticket creation read
// seats through this view.
type Seat struct {
    ID             uint64 // seats.id
    RowLabel       string // seats.row_label
    SeatNumber     uint32 // seats.seat_number
    SeatType       string // seat_types.name
    SurchargeCents int64  // seat_types.surcharge_cents
}

// Combo is a concession product (popcorn, drink bundles) sold
// alongside tickets.
type Combo struct {
    ID             uint64 // combos.id
    Name           string // combos.name
    UnitPriceCents int64  // combos.unit_price_cents
    Active         bool   // combos.active
}

// Voucher is a discount code with a validity window and a usage
// budget.  PercentOff applies to the subtotal, capped by
// MaxDiscountCents when non-zero.
type Voucher struct {
    Code             string    // vouchers.code
    PercentOff       uint32    // vouchers.percent_off (0..100)
    MaxDiscountCents int64     // vouchers.max_discount_cents (0 = uncapped)
    MinTotalCents    int64     // vouchers.min_total_cents
    ValidFrom        time.Time // vouchers.valid_from
    ValidUntil       time.Time // vouchers.valid_until
    UsageLimit       uint32    // vouchers.usage_limit (0 = unlimited)
    UsedCount        uint32    // vouchers.used_count
    Active           bool      // vouchers.active
}

// SeatAvailability is the publicly visible state of one seat in a
// showtime's seat map, derived from locks and sold tickets.
type SeatAvailability struct {
    SeatID     uint64 `json:"seat_id"`
    RowLabel   string `json:"row_label"`
    SeatNumber uint32 `json:"seat_number"`
    SeatType   string `json:"seat_type"`
    Status     string `json:"status"` // FREE, LOCKED or SOLD
}
