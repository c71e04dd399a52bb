package repository

import (
    "context"
    "database/sql"
    "encoding/json"
    "fmt"
    "time"

    "github.com/hoangvu/cinema-booking/internal/model"
)

// SessionRepo provides data access to the booking_sessions table.  The
// items and pricing columns are JSON; marshaling happens only here so
// the rest of the process works with the typed model structs.
type SessionRepo struct {
    db *sql.DB
}

// NewSessionRepo returns a new SessionRepo bound to the provided database.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

const sessionColumns = `id, showtime_id, owner_id, state, items, pricing, coupon_code, created_at, updated_at, expires_at`

// InsertTx persists a new session within the supplied transaction.
func (r *SessionRepo) InsertTx(ctx context.Context, tx *sql.Tx, s *model.BookingSession) error {
    items, pricing, err := marshalSession(s)
    if err != nil {
        return err
    }
    _, err = tx.ExecContext(ctx,
        `INSERT INTO booking_sessions (id, showtime_id, owner_id, state, items, pricing, coupon_code, created_at, updated_at, expires_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
        s.ID, s.ShowtimeID, s.OwnerID, string(s.State), items, pricing, s.CouponCode,
        dbTime(s.CreatedAt), dbTime(s.UpdatedAt), dbTime(s.ExpiresAt),
    )
    return err
}

// Get fetches a session by id without locking.  Returns ErrNotFound
// when no such session exists.
func (r *SessionRepo) Get(ctx context.Context, id string) (*model.BookingSession, error) {
    row := r.db.QueryRowContext(ctx,
        `SELECT `+sessionColumns+` FROM booking_sessions WHERE id = ?`, id)
    return scanSession(row)
}

// GetForUpdateTx fetches a session by id under an exclusive row lock,
// serializing concurrent mutations of the same session.  Returns
// ErrNotFound when no such session exists.
func (r *SessionRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (*model.BookingSession, error) {
    row := tx.QueryRowContext(ctx,
        `SELECT `+sessionColumns+` FROM booking_sessions WHERE id = ? FOR UPDATE`, id)
    return scanSession(row)
}

// UpdateTx writes back the mutable fields of a session: state, items,
// pricing, coupon and timestamps.
func (r *SessionRepo) UpdateTx(ctx context.Context, tx *sql.Tx, s *model.BookingSession) error {
    items, pricing, err := marshalSession(s)
    if err != nil {
        return err
    }
    _, err = tx.ExecContext(ctx,
        `UPDATE booking_sessions
         SET state = ?, items = ?, pricing = ?, coupon_code = ?, updated_at = ?, expires_at = ?
         WHERE id = ?`,
        string(s.State), items, pricing, s.CouponCode, dbTime(s.UpdatedAt), dbTime(s.ExpiresAt), s.ID,
    )
    return err
}

// UpdateStateTx moves only the state and expiry, used by the
// reconciliation transaction which must not touch items or coupon.
func (r *SessionRepo) UpdateStateTx(ctx context.Context, tx *sql.Tx, id string, state model.SessionState, expiresAt time.Time) error {
    _, err := tx.ExecContext(ctx,
        `UPDATE booking_sessions SET state = ?, updated_at = UTC_TIMESTAMP(), expires_at = ? WHERE id = ?`,
        string(state), dbTime(expiresAt), id,
    )
    return err
}

func marshalSession(s *model.BookingSession) (string, string, error) {
    items, err := json.Marshal(s.Items)
    if err != nil {
        return "", "", fmt.Errorf("marshal session items: %w", err)
    }
    pricing, err := json.Marshal(s.Pricing)
    if err != nil {
        return "", "", fmt.Errorf("marshal session pricing: %w", err)
    }
    return string(items), string(pricing), nil
}

func scanSession(row *sql.Row) (*model.BookingSession, error) {
    var s model.BookingSession
    var state string
    var itemsRaw, pricingRaw []byte
    var ownerID sql.NullInt64
    var coupon sql.NullString
    err := row.Scan(&s.ID, &s.ShowtimeID, &ownerID, &state, &itemsRaw, &pricingRaw, &coupon,
        &s.CreatedAt, &s.UpdatedAt, &s.ExpiresAt)
    if err == sql.ErrNoRows {
        return nil, ErrNotFound
    }
    if err != nil {
        return nil, err
    }
    s.State = model.SessionState(state)
    if ownerID.Valid {
        uid := uint64(ownerID.Int64)
        s.OwnerID = &uid
    }
    if coupon.Valid {
        c := coupon.String
        s.CouponCode = &c
    }
    if err := json.Unmarshal(itemsRaw, &s.Items); err != nil {
        return nil, fmt.Errorf("unmarshal session items: %w", err)
    }
    if err := json.Unmarshal(pricingRaw, &s.Pricing); err != nil {
        return nil, fmt.Errorf("unmarshal session pricing: %w", err)
    }
    if s.Items.Seats == nil {
        s.Items.Seats = []uint64{}
    }
    if s.Items.Combos == nil {
        s.Items.Combos = []model.ComboLine{}
    }
    return &s, nil
}

// dbTime formats a timestamp the way the schema stores it.
func dbTime(t time.Time) string {
    return t.UTC().Format("2006-01-02 15:04:05")
}
