package repository

import (
    "context"
    "database/sql"

    "github.com/hoangvu/cinema-booking/internal/model"
)

// OrderRepo provides data access to the orders table: one row per
// payment attempt against a session.  The booking_id column is the
// idempotency gate for reconciliation and is only ever written once.
type OrderRepo struct {
    db *sql.DB
}

// NewOrderRepo returns a new OrderRepo bound to the provided database.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

const orderColumns = `id, order_ref, session_id, amount_cents, status, checkout_url, provider_ref, booking_id, expires_at, created_at, updated_at`

// InsertTx persists a new order and populates its generated ID.
func (r *OrderRepo) InsertTx(ctx context.Context, tx *sql.Tx, o *model.Order) error {
    res, err := tx.ExecContext(ctx,
        `INSERT INTO orders (order_ref, session_id, amount_cents, status, checkout_url, provider_ref, expires_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
        o.Ref, o.SessionID, o.AmountCents, string(o.Status), o.CheckoutURL, o.ProviderRef, dbTime(o.ExpiresAt),
    )
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    o.ID = uint64(id)
    return nil
}

// DeleteTx removes an order; used by the checkout compensation when
// the gateway call failed after the order row was created.
func (r *OrderRepo) DeleteTx(ctx context.Context, tx *sql.Tx, orderID uint64) error {
    _, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, orderID)
    return err
}

// GetByRef fetches an order by its public reference without locking.
func (r *OrderRepo) GetByRef(ctx context.Context, ref string) (*model.Order, error) {
    row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_ref = ?`, ref)
    return scanOrder(row)
}

// GetByRefForUpdateTx fetches an order by reference under an exclusive
// row lock; concurrent reconciliation attempts for the same order
// serialize here.
func (r *OrderRepo) GetByRefForUpdateTx(ctx context.Context, tx *sql.Tx, ref string) (*model.Order, error) {
    row := tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_ref = ? FOR UPDATE`, ref)
    return scanOrder(row)
}

// LiveBySession returns the newest PENDING, unexpired order for the
// session, or ErrNotFound.
func (r *OrderRepo) LiveBySession(ctx context.Context, sessionID string) (*model.Order, error) {
    row := r.db.QueryRowContext(ctx,
        `SELECT `+orderColumns+` FROM orders
         WHERE session_id = ? AND status = 'PENDING' AND expires_at > UTC_TIMESTAMP()
         ORDER BY id DESC LIMIT 1`,
        sessionID,
    )
    return scanOrder(row)
}

// AttachProvider records the gateway's reference and hosted checkout
// URL on a freshly created order.
func (r *OrderRepo) AttachProvider(ctx context.Context, orderID uint64, providerRef, checkoutURL string) error {
    _, err := r.db.ExecContext(ctx,
        `UPDATE orders SET provider_ref = ?, checkout_url = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`,
        providerRef, checkoutURL, orderID,
    )
    return err
}

// UpdateStatusTx moves the order status.  The WHERE clause repeats the
// previous status so a lost race surfaces as ErrConflict instead of a
// silent double transition.
func (r *OrderRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, orderID uint64, from, to model.OrderStatus) error {
    res, err := tx.ExecContext(ctx,
        `UPDATE orders SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ? AND status = ?`,
        string(to), orderID, string(from),
    )
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrConflict
    }
    return nil
}

// LinkBookingTx stamps the order with its booking, closing the
// idempotency gate.  Linking an already linked order is ErrConflict.
func (r *OrderRepo) LinkBookingTx(ctx context.Context, tx *sql.Tx, orderID, bookingID uint64) error {
    res, err := tx.ExecContext(ctx,
        `UPDATE orders SET booking_id = ?, updated_at = UTC_TIMESTAMP() WHERE id = ? AND booking_id IS NULL`,
        bookingID, orderID,
    )
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrConflict
    }
    return nil
}

func scanOrder(row *sql.Row) (*model.Order, error) {
    var o model.Order
    var status string
    var checkoutURL, providerRef sql.NullString
    var bookingID sql.NullInt64
    err := row.Scan(&o.ID, &o.Ref, &o.SessionID, &o.AmountCents, &status,
        &checkoutURL, &providerRef, &bookingID, &o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt)
    if err == sql.ErrNoRows {
        return nil, ErrNotFound
    }
    if err != nil {
        return nil, err
    }
    o.Status = model.OrderStatus(status)
    o.CheckoutURL = checkoutURL.String
    o.ProviderRef = providerRef.String
    if bookingID.Valid {
        bid := uint64(bookingID.Int64)
        o.BookingID = &bid
    }
    return &o, nil
}
