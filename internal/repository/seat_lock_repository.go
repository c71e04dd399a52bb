package repository

import (
    "context"
    "database/sql"
    "strings"
    "time"
)

// SeatLockRepo provides data access to the seat_locks table: the
// durable record of which session holds which seat of a showtime and
// until when.  The table carries a UNIQUE(showtime_id, seat_id) key,
// so the database itself enforces that at most one lock row exists per
// seat.  All timestamps are UTC; an expired row is logically free and
// may be stolen by the next acquirer even before the sweep deletes it.
type SeatLockRepo struct {
    db *sql.DB
}

// NewSeatLockRepo returns a new SeatLockRepo bound to the provided database.
func NewSeatLockRepo(db *sql.DB) *SeatLockRepo { return &SeatLockRepo{db: db} }

// AcquireTx locks the given seats for a session inside the supplied
// transaction.  The acquisition is all-or-nothing: seats that already
// carry a VALID ticket are reported as conflicts up front (a sold seat
// has no lock row, its ticket is what keeps it off the market), then
// expired lock rows for the requested seats are deleted (stealing
// them), rows are upserted so that only locks already owned by this
// session refresh, and finally the requested seats owned by someone
// else are read back.  A non-empty return names the contested seats
// and the caller must roll back the transaction, which also undoes the
// partial inserts.
func (r *SeatLockRepo) AcquireTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, seatIDs []uint64, sessionID string, ttl time.Duration) ([]uint64, error) {
    if len(seatIDs) == 0 {
        return nil, nil
    }
    placeholders, idArgs := placeholderList(seatIDs)

    sold, err := soldSeatsTx(ctx, tx, showtimeID, placeholders, idArgs)
    if err != nil {
        return nil, err
    }
    if len(sold) > 0 {
        return sold, nil
    }

    // Steal expired locks on the requested seats.
    delArgs := append([]interface{}{showtimeID}, idArgs...)
    if _, err := tx.ExecContext(ctx,
        `DELETE FROM seat_locks WHERE showtime_id = ? AND seat_id IN (`+placeholders+`) AND expires_at <= UTC_TIMESTAMP()`,
        delArgs...,
    ); err != nil {
        return nil, err
    }

    // Upsert our lock rows.  The ON DUPLICATE KEY branch refreshes the
    // row only when this session already owns it; a row held by a
    // different session is left untouched and detected below.
    expiresAt := time.Now().UTC().Add(ttl).Format("2006-01-02 15:04:05")
    query := `INSERT INTO seat_locks (showtime_id, seat_id, session_id, expires_at) VALUES `
    args := make([]interface{}, 0, len(seatIDs)*4)
    for i, sid := range seatIDs {
        if i > 0 {
            query += ","
        }
        query += "(?, ?, ?, ?)"
        args = append(args, showtimeID, sid, sessionID, expiresAt)
    }
    query += ` ON DUPLICATE KEY UPDATE
        expires_at = IF(seat_locks.session_id = VALUES(session_id), VALUES(expires_at), seat_locks.expires_at),
        session_id = seat_locks.session_id`
    if _, err := tx.ExecContext(ctx, query, args...); err != nil {
        return nil, err
    }

    // Any requested seat now owned by another session is a conflict.
    selArgs := append([]interface{}{showtimeID}, idArgs...)
    selArgs = append(selArgs, sessionID)
    rows, err := tx.QueryContext(ctx,
        `SELECT seat_id FROM seat_locks
         WHERE showtime_id = ? AND seat_id IN (`+placeholders+`) AND session_id <> ?`,
        selArgs...,
    )
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var conflicts []uint64
    for rows.Next() {
        var sid uint64
        if err := rows.Scan(&sid); err != nil {
            return nil, err
        }
        conflicts = append(conflicts, sid)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return conflicts, nil
}

// soldSeatsTx returns the subset of the requested seats that carry a
// VALID ticket for the showtime.
func soldSeatsTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, placeholders string, idArgs []interface{}) ([]uint64, error) {
    args := append([]interface{}{showtimeID}, idArgs...)
    rows, err := tx.QueryContext(ctx,
        `SELECT seat_id FROM tickets
         WHERE showtime_id = ? AND seat_id IN (`+placeholders+`) AND status = 'VALID'`,
        args...,
    )
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var sold []uint64
    for rows.Next() {
        var sid uint64
        if err := rows.Scan(&sid); err != nil {
            return nil, err
        }
        sold = append(sold, sid)
    }
    return sold, rows.Err()
}

// ExtendBySessionTx pushes the expiry of every lock held by the
// session to now+ttl.  Extending a session with no locks is a no-op.
func (r *SeatLockRepo) ExtendBySessionTx(ctx context.Context, tx *sql.Tx, sessionID string, ttl time.Duration) error {
    expiresAt := time.Now().UTC().Add(ttl).Format("2006-01-02 15:04:05")
    _, err := tx.ExecContext(ctx,
        `UPDATE seat_locks SET expires_at = ? WHERE session_id = ?`,
        expiresAt, sessionID,
    )
    return err
}

// ReleaseSeatsTx drops the session's locks on the given seats only.
func (r *SeatLockRepo) ReleaseSeatsTx(ctx context.Context, tx *sql.Tx, sessionID string, seatIDs []uint64) error {
    if len(seatIDs) == 0 {
        return nil
    }
    placeholders, idArgs := placeholderList(seatIDs)
    args := append([]interface{}{sessionID}, idArgs...)
    _, err := tx.ExecContext(ctx,
        `DELETE FROM seat_locks WHERE session_id = ? AND seat_id IN (`+placeholders+`)`,
        args...,
    )
    return err
}

// ReleaseBySessionTx removes all locks held by the session and returns
// the seat IDs that were freed so callers can broadcast the change.
// Releasing a session with no locks returns an empty slice, not an
// error.
func (r *SeatLockRepo) ReleaseBySessionTx(ctx context.Context, tx *sql.Tx, sessionID string) ([]uint64, error) {
    rows, err := tx.QueryContext(ctx, `SELECT seat_id FROM seat_locks WHERE session_id = ?`, sessionID)
    if err != nil {
        return nil, err
    }
    var seatIDs []uint64
    for rows.Next() {
        var sid uint64
        if scanErr := rows.Scan(&sid); scanErr != nil {
            rows.Close()
            return nil, scanErr
        }
        seatIDs = append(seatIDs, sid)
    }
    if err = rows.Close(); err != nil {
        return nil, err
    }
    if len(seatIDs) == 0 {
        return []uint64{}, nil
    }
    if _, err := tx.ExecContext(ctx, `DELETE FROM seat_locks WHERE session_id = ?`, sessionID); err != nil {
        return nil, err
    }
    return seatIDs, nil
}

// SweepExpired deletes every expired lock row and returns how many
// were removed.  This is housekeeping: acquisition already treats
// expired rows as free.
func (r *SeatLockRepo) SweepExpired(ctx context.Context) (int64, error) {
    res, err := r.db.ExecContext(ctx, `DELETE FROM seat_locks WHERE expires_at <= UTC_TIMESTAMP()`)
    if err != nil {
        return 0, err
    }
    return res.RowsAffected()
}

// placeholderList builds "?, ?, ?" plus the matching argument slice
// for an IN clause over seat ids.
func placeholderList(ids []uint64) (string, []interface{}) {
    marks := make([]string, len(ids))
    args := make([]interface{}, len(ids))
    for i, id := range ids {
        marks[i] = "?"
        args[i] = id
    }
    return strings.Join(marks, ","), args
}
