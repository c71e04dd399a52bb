package repository

import (
    "context"
    "database/sql"

    "github.com/hoangvu/cinema-booking/internal/model"
)

// CatalogRepo provides read access to the showtime, seat, combo and
// voucher tables.  Everything here is lookup data for the booking
// core; writes happen through admin tooling outside this service.
type CatalogRepo struct {
    db *sql.DB
}

// NewCatalogRepo returns a new CatalogRepo bound to the provided database.
func NewCatalogRepo(db *sql.DB) *CatalogRepo { return &CatalogRepo{db: db} }

// Showtime fetches one screening by id, or ErrNotFound.
func (r *CatalogRepo) Showtime(ctx context.Context, id uint64) (*model.Showtime, error) {
    var st model.Showtime
    err := r.db.QueryRowContext(ctx,
        `SELECT id, movie_title, hall_name, starts_at, base_price_cents FROM showtimes WHERE id = ?`, id).
        Scan(&st.ID, &st.MovieTitle, &st.HallName, &st.StartsAt, &st.BasePriceCents)
    if err == sql.ErrNoRows {
        return nil, ErrNotFound
    }
    if err != nil {
        return nil, err
    }
    return &st, nil
}

// Seats returns the seats of the showtime's hall restricted to the
// given ids, joined with their seat-type surcharge.  Ids that do not
// belong to the hall are simply absent from the result; the caller
// decides whether that is an error.
func (r *CatalogRepo) Seats(ctx context.Context, showtimeID uint64, seatIDs []uint64) ([]model.Seat, error) {
    if len(seatIDs) == 0 {
        return []model.Seat{}, nil
    }
    placeholders, idArgs := placeholderList(seatIDs)
    args := append([]interface{}{showtimeID}, idArgs...)
    rows, err := r.db.QueryContext(ctx,
        `SELECT se.id, se.row_label, se.seat_number, ty.name, ty.surcharge_cents
         FROM seats se
         JOIN seat_types ty ON ty.id = se.seat_type_id
         JOIN showtimes st ON st.hall_id = se.hall_id
         WHERE st.id = ? AND se.id IN (`+placeholders+`)`,
        args...,
    )
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    seats := make([]model.Seat, 0, len(seatIDs))
    for rows.Next() {
        var s model.Seat
        if err := rows.Scan(&s.ID, &s.RowLabel, &s.SeatNumber, &s.SeatType, &s.SurchargeCents); err != nil {
            return nil, err
        }
        seats = append(seats, s)
    }
    return seats, rows.Err()
}

// Combos returns the active combos with the given ids keyed by id.
// Inactive or unknown ids are absent from the map.
func (r *CatalogRepo) Combos(ctx context.Context, ids []uint64) (map[uint64]model.Combo, error) {
    out := make(map[uint64]model.Combo, len(ids))
    if len(ids) == 0 {
        return out, nil
    }
    placeholders, args := placeholderList(ids)
    rows, err := r.db.QueryContext(ctx,
        `SELECT id, name, unit_price_cents, active FROM combos WHERE id IN (`+placeholders+`) AND active = 1`,
        args...,
    )
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    for rows.Next() {
        var c model.Combo
        if err := rows.Scan(&c.ID, &c.Name, &c.UnitPriceCents, &c.Active); err != nil {
            return nil, err
        }
        out[c.ID] = c
    }
    return out, rows.Err()
}

// Voucher fetches a voucher by its code, or ErrNotFound.  Validity and
// usage checks belong to the pricing engine; this is a plain lookup.
func (r *CatalogRepo) Voucher(ctx context.Context, code string) (*model.Voucher, error) {
    var v model.Voucher
    err := r.db.QueryRowContext(ctx,
        `SELECT code, percent_off, max_discount_cents, min_total_cents, valid_from, valid_until, usage_limit, used_count, active
         FROM vouchers WHERE code = ?`, code).
        Scan(&v.Code, &v.PercentOff, &v.MaxDiscountCents, &v.MinTotalCents,
            &v.ValidFrom, &v.ValidUntil, &v.UsageLimit, &v.UsedCount, &v.Active)
    if err == sql.ErrNoRows {
        return nil, ErrNotFound
    }
    if err != nil {
        return nil, err
    }
    return &v, nil
}

// SeatMap returns every seat of the showtime's hall with its derived
// availability: SOLD when a ticket exists, LOCKED when an unexpired
// lock exists, FREE otherwise.  Expired locks count as free even
// before the sweep removes them.
func (r *CatalogRepo) SeatMap(ctx context.Context, showtimeID uint64) ([]model.SeatAvailability, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT se.id, se.row_label, se.seat_number, ty.name,
                CASE
                    WHEN t.id IS NOT NULL THEN 'SOLD'
                    WHEN sl.seat_id IS NOT NULL AND sl.expires_at > UTC_TIMESTAMP() THEN 'LOCKED'
                    ELSE 'FREE'
                END AS status
         FROM showtimes st
         JOIN seats se ON se.hall_id = st.hall_id
         JOIN seat_types ty ON ty.id = se.seat_type_id
         LEFT JOIN tickets t ON t.showtime_id = st.id AND t.seat_id = se.id
         LEFT JOIN seat_locks sl ON sl.showtime_id = st.id AND sl.seat_id = se.id
         WHERE st.id = ?
         ORDER BY se.row_label, se.seat_number`,
        showtimeID,
    )
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    seats := make([]model.SeatAvailability, 0)
    for rows.Next() {
        var sa model.SeatAvailability
        if err := rows.Scan(&sa.SeatID, &sa.RowLabel, &sa.SeatNumber, &sa.SeatType, &sa.Status); err != nil {
            return nil, err
        }
        seats = append(seats, sa)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    if len(seats) == 0 {
        // Distinguish an unknown showtime from an empty hall.
        var exists int
        err := r.db.QueryRowContext(ctx, `SELECT 1 FROM showtimes WHERE id = ?`, showtimeID).Scan(&exists)
        if err == sql.ErrNoRows {
            return nil, ErrNotFound
        }
        if err != nil {
            return nil, err
        }
    }
    return seats, nil
}
