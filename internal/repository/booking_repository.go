package repository

import (
    "context"
    "database/sql"
    "strconv"
    "strings"

    "github.com/hoangvu/cinema-booking/internal/model"
)

// BookingRepo provides data access to the bookings, tickets,
// service_orders and payments tables.  The whole group is only ever
// created inside the reconciliation transaction, one booking per paid
// order.
type BookingRepo struct {
    db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the provided database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// InsertTx persists a booking and populates its generated ID.
func (r *BookingRepo) InsertTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
    res, err := tx.ExecContext(ctx,
        `INSERT INTO bookings (session_id, order_id, user_id, showtime_id, total_amount_cents, status)
         VALUES (?, ?, ?, ?, ?, ?)`,
        b.SessionID, b.OrderID, b.UserID, b.ShowtimeID, b.TotalAmountCents, b.Status,
    )
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    b.ID = uint64(id)
    return nil
}

// InsertTicketsBulkTx inserts all tickets of a booking in a single
// statement.  Passing an empty slice has no effect and returns nil.
// The tickets table carries a UNIQUE(showtime_id, seat_id) key, so a
// seat that was already sold makes the insert fail with ErrConflict
// and the surrounding transaction must roll back.
func (r *BookingRepo) InsertTicketsBulkTx(ctx context.Context, tx *sql.Tx, tickets []model.Ticket) error {
    if len(tickets) == 0 {
        return nil
    }
    query := `INSERT INTO tickets (booking_id, showtime_id, seat_id, price_cents, status) VALUES `
    args := make([]interface{}, 0, len(tickets)*5)
    for i, t := range tickets {
        if i > 0 {
            query += ","
        }
        query += "(?, ?, ?, ?, ?)"
        args = append(args, t.BookingID, t.ShowtimeID, t.SeatID, t.PriceCents, t.Status)
    }
    if _, err := tx.ExecContext(ctx, query, args...); err != nil {
        if strings.Contains(strings.ToLower(err.Error()), "1062") {
            return ErrConflict
        }
        return err
    }
    return nil
}

// InsertServiceOrdersBulkTx inserts the aggregated combo lines of a
// booking in a single statement.
func (r *BookingRepo) InsertServiceOrdersBulkTx(ctx context.Context, tx *sql.Tx, orders []model.ServiceOrder) error {
    if len(orders) == 0 {
        return nil
    }
    query := `INSERT INTO service_orders (booking_id, combo_id, quantity, unit_price_cents) VALUES `
    args := make([]interface{}, 0, len(orders)*4)
    for i, so := range orders {
        if i > 0 {
            query += ","
        }
        query += "(?, ?, ?, ?)"
        args = append(args, so.BookingID, so.ComboID, so.Quantity, so.UnitPriceCents)
    }
    _, err := tx.ExecContext(ctx, query, args...)
    return err
}

// InsertPaymentTx records the settlement of an order.
func (r *BookingRepo) InsertPaymentTx(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
    res, err := tx.ExecContext(ctx,
        `INSERT INTO payments (order_id, amount_cents, provider_txn_id, signature_valid, raw_payload)
         VALUES (?, ?, ?, ?, ?)`,
        p.OrderID, p.AmountCents, p.ProviderTxnID, p.SignatureValid, nullableBytes(p.RawPayload),
    )
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    p.ID = uint64(id)
    return nil
}

// GetByID returns a booking and its tickets, or ErrNotFound.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, []model.Ticket, error) {
    var b model.Booking
    var userID sql.NullInt64
    err := r.db.QueryRowContext(ctx,
        `SELECT id, session_id, order_id, user_id, showtime_id, total_amount_cents, status, created_at
         FROM bookings WHERE id = ?`, id).
        Scan(&b.ID, &b.SessionID, &b.OrderID, &userID, &b.ShowtimeID, &b.TotalAmountCents, &b.Status, &b.CreatedAt)
    if err == sql.ErrNoRows {
        return nil, nil, ErrNotFound
    }
    if err != nil {
        return nil, nil, err
    }
    if userID.Valid {
        uid := uint64(userID.Int64)
        b.UserID = &uid
    }
    tickets, err := r.ticketsByBooking(ctx, b.ID)
    if err != nil {
        return nil, nil, err
    }
    return &b, tickets, nil
}

// BookingDetail is the customer-facing view of a booking with its
// showtime and seat information.
type BookingDetail struct {
    ID               uint64   `json:"id"`
    OrderRef         string   `json:"order_ref"`
    ShowtimeID       uint64   `json:"showtime_id"`
    MovieTitle       string   `json:"movie_title"`
    HallName         string   `json:"hall_name"`
    StartsAt         string   `json:"starts_at"`
    Status           string   `json:"status"`
    TotalAmountCents int64    `json:"total_amount_cents"`
    Seats            []string `json:"seats"`
}

// ListByUser returns all bookings of a user, newest first, with
// showtime details and seat labels.  When no bookings exist an empty
// slice is returned.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64) ([]BookingDetail, error) {
    const q = `SELECT b.id, o.order_ref, b.showtime_id, st.movie_title, st.hall_name, st.starts_at,
                      b.status, b.total_amount_cents
               FROM bookings b
               JOIN orders o ON o.id = b.order_id
               JOIN showtimes st ON st.id = b.showtime_id
               WHERE b.user_id = ?
               ORDER BY b.created_at DESC`
    rows, err := r.db.QueryContext(ctx, q, userID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    details := make([]BookingDetail, 0)
    index := make(map[uint64]int)
    ids := make([]uint64, 0)
    for rows.Next() {
        var d BookingDetail
        var startsAt sql.NullTime
        if err := rows.Scan(&d.ID, &d.OrderRef, &d.ShowtimeID, &d.MovieTitle, &d.HallName, &startsAt,
            &d.Status, &d.TotalAmountCents); err != nil {
            return nil, err
        }
        if startsAt.Valid {
            d.StartsAt = startsAt.Time.UTC().Format("2006-01-02T15:04:05Z07:00")
        }
        d.Seats = []string{}
        index[d.ID] = len(details)
        details = append(details, d)
        ids = append(ids, d.ID)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    if len(details) == 0 {
        return details, nil
    }
    // Populate seat labels for all bookings in a single query.
    placeholders, args := placeholderList(ids)
    seatQ := `SELECT t.booking_id, se.row_label, se.seat_number
              FROM tickets t
              JOIN seats se ON se.id = t.seat_id
              WHERE t.booking_id IN (` + placeholders + `)
              ORDER BY t.booking_id, se.row_label, se.seat_number`
    srows, err := r.db.QueryContext(ctx, seatQ, args...)
    if err != nil {
        return nil, err
    }
    defer srows.Close()
    for srows.Next() {
        var bid uint64
        var rowLabel string
        var seatNumber uint32
        if err := srows.Scan(&bid, &rowLabel, &seatNumber); err != nil {
            return nil, err
        }
        if idx, ok := index[bid]; ok {
            details[idx].Seats = append(details[idx].Seats, labelOf(rowLabel, seatNumber))
        }
    }
    if err := srows.Err(); err != nil {
        return nil, err
    }
    return details, nil
}

func (r *BookingRepo) ticketsByBooking(ctx context.Context, bookingID uint64) ([]model.Ticket, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT id, booking_id, showtime_id, seat_id, price_cents, status, created_at
         FROM tickets WHERE booking_id = ? ORDER BY seat_id`, bookingID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var tickets []model.Ticket
    for rows.Next() {
        var t model.Ticket
        if err := rows.Scan(&t.ID, &t.BookingID, &t.ShowtimeID, &t.SeatID, &t.PriceCents, &t.Status, &t.CreatedAt); err != nil {
            return nil, err
        }
        tickets = append(tickets, t)
    }
    return tickets, rows.Err()
}

func labelOf(rowLabel string, seatNumber uint32) string {
    return rowLabel + strconv.FormatUint(uint64(seatNumber), 10)
}

func nullableBytes(b []byte) interface{} {
    if len(b) == 0 {
        return nil
    }
    return b
}
