package repository

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/hoangvu/cinema-booking/internal/model"
    "github.com/hoangvu/cinema-booking/internal/service"
)

// Store glues the fine-grained repositories into the transactional
// contracts the service layer works against.  Each Mutate/Reconcile
// call opens one transaction, takes a SELECT ... FOR UPDATE row lock
// on the session (and order) and commits or rolls back as a unit, so
// concurrent callers for the same session serialize at the database.
type Store struct {
    db       *sql.DB
    sessions *SessionRepo
    locks    *SeatLockRepo
    orders   *OrderRepo
    bookings *BookingRepo
    catalog  *CatalogRepo
    users    *UserRepo
}

// NewStore wires a Store over one database handle.
func NewStore(db *sql.DB) *Store {
    return &Store{
        db:       db,
        sessions: NewSessionRepo(db),
        locks:    NewSeatLockRepo(db),
        orders:   NewOrderRepo(db),
        bookings: NewBookingRepo(db),
        catalog:  NewCatalogRepo(db),
        users:    NewUserRepo(db),
    }
}

// Create inserts the session and acquires locks for all its seats in
// one transaction.  Contested seats abort the whole insert and are
// returned to the caller; nothing is persisted in that case.
func (st *Store) Create(ctx context.Context, s *model.BookingSession, lockTTL time.Duration) ([]uint64, error) {
    tx, err := st.db.BeginTx(ctx, nil)
    if err != nil {
        return nil, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    if err := st.sessions.InsertTx(ctx, tx, s); err != nil {
        return nil, err
    }
    conflicts, err := st.locks.AcquireTx(ctx, tx, s.ShowtimeID, s.Items.Seats, s.ID, lockTTL)
    if err != nil {
        return nil, err
    }
    if len(conflicts) > 0 {
        return conflicts, nil
    }
    if err := tx.Commit(); err != nil {
        return nil, err
    }
    committed = true
    return nil, nil
}

// Get returns the session or service.ErrNotFound.
func (st *Store) Get(ctx context.Context, id string) (*model.BookingSession, error) {
    s, err := st.sessions.Get(ctx, id)
    if errors.Is(err, ErrNotFound) {
        return nil, service.ErrNotFound
    }
    return s, err
}

// Mutate runs fn against the row-locked session and persists the
// session plus every write issued through the SessionTx atomically.
func (st *Store) Mutate(ctx context.Context, id string, fn func(tx service.SessionTx, s *model.BookingSession) error) (*model.BookingSession, error) {
    tx, err := st.db.BeginTx(ctx, nil)
    if err != nil {
        return nil, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    s, err := st.sessions.GetForUpdateTx(ctx, tx, id)
    if err != nil {
        if errors.Is(err, ErrNotFound) {
            return nil, service.ErrNotFound
        }
        return nil, err
    }
    stx := &sessionTx{ctx: ctx, tx: tx, store: st, session: s}
    if err := fn(stx, s); err != nil {
        return nil, err
    }
    if err := st.sessions.UpdateTx(ctx, tx, s); err != nil {
        return nil, err
    }
    if err := tx.Commit(); err != nil {
        return nil, err
    }
    committed = true
    return s, nil
}

// sessionTx exposes the writes allowed inside a session mutation, all
// joining the surrounding transaction.
type sessionTx struct {
    ctx     context.Context
    tx      *sql.Tx
    store   *Store
    session *model.BookingSession
}

func (t *sessionTx) AcquireSeats(seatIDs []uint64, ttl time.Duration) ([]uint64, error) {
    return t.store.locks.AcquireTx(t.ctx, t.tx, t.session.ShowtimeID, seatIDs, t.session.ID, ttl)
}

func (t *sessionTx) ReleaseSeats(seatIDs []uint64) error {
    return t.store.locks.ReleaseSeatsTx(t.ctx, t.tx, t.session.ID, seatIDs)
}

func (t *sessionTx) ExtendLocks(ttl time.Duration) error {
    return t.store.locks.ExtendBySessionTx(t.ctx, t.tx, t.session.ID, ttl)
}

func (t *sessionTx) ReleaseAllLocks() ([]uint64, error) {
    return t.store.locks.ReleaseBySessionTx(t.ctx, t.tx, t.session.ID)
}

func (t *sessionTx) InsertOrder(o *model.Order) error {
    return t.store.orders.InsertTx(t.ctx, t.tx, o)
}

func (t *sessionTx) DeleteOrder(orderID uint64) error {
    return t.store.orders.DeleteTx(t.ctx, t.tx, orderID)
}

// GetByRef returns the order with the given public reference.
func (st *Store) GetByRef(ctx context.Context, ref string) (*model.Order, error) {
    o, err := st.orders.GetByRef(ctx, ref)
    if errors.Is(err, ErrNotFound) {
        return nil, service.ErrNotFound
    }
    return o, err
}

// LiveBySession returns the newest payable order of the session.
func (st *Store) LiveBySession(ctx context.Context, sessionID string) (*model.Order, error) {
    o, err := st.orders.LiveBySession(ctx, sessionID)
    if errors.Is(err, ErrNotFound) {
        return nil, service.ErrNotFound
    }
    return o, err
}

// AttachProvider records the gateway reference and checkout URL.
func (st *Store) AttachProvider(ctx context.Context, orderID uint64, providerRef, checkoutURL string) error {
    return st.orders.AttachProvider(ctx, orderID, providerRef, checkoutURL)
}

// Reconcile runs fn against the row-locked order and its session.
// Racing reconciliation triggers for the same order queue up on the
// FOR UPDATE lock and observe each other's committed writes.
func (st *Store) Reconcile(ctx context.Context, orderRef string, fn func(tx service.ReconcileTx, o *model.Order, s *model.BookingSession) error) error {
    tx, err := st.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    o, err := st.orders.GetByRefForUpdateTx(ctx, tx, orderRef)
    if err != nil {
        if errors.Is(err, ErrNotFound) {
            return service.ErrNotFound
        }
        return err
    }
    s, err := st.sessions.GetForUpdateTx(ctx, tx, o.SessionID)
    if err != nil {
        if errors.Is(err, ErrNotFound) {
            return service.ErrNotFound
        }
        return err
    }
    rtx := &reconcileTx{ctx: ctx, tx: tx, store: st, order: o, session: s}
    if err := fn(rtx, o, s); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

// reconcileTx exposes the writes allowed while settling an order.
type reconcileTx struct {
    ctx     context.Context
    tx      *sql.Tx
    store   *Store
    order   *model.Order
    session *model.BookingSession
}

func (t *reconcileTx) MarkOrderPaid(providerTxnID string) error {
    if err := t.store.orders.UpdateStatusTx(t.ctx, t.tx, t.order.ID, model.OrderPending, model.OrderPaid); err != nil {
        return err
    }
    // A webhook can settle an order whose provider reference was never
    // attached; keep the transaction id as the trace in that case.
    if providerTxnID != "" && t.order.ProviderRef == "" {
        if _, err := t.tx.ExecContext(t.ctx,
            `UPDATE orders SET provider_ref = ? WHERE id = ?`, providerTxnID, t.order.ID); err != nil {
            return err
        }
    }
    return nil
}

func (t *reconcileTx) MarkOrderExpired() error {
    return t.store.orders.UpdateStatusTx(t.ctx, t.tx, t.order.ID, model.OrderPending, model.OrderExpired)
}

func (t *reconcileTx) SetSessionState(state model.SessionState, expiresAt time.Time) error {
    return t.store.sessions.UpdateStateTx(t.ctx, t.tx, t.session.ID, state, expiresAt)
}

func (t *reconcileTx) ReleaseAllLocks() ([]uint64, error) {
    return t.store.locks.ReleaseBySessionTx(t.ctx, t.tx, t.session.ID)
}

func (t *reconcileTx) InsertBooking(b *model.Booking) error {
    return t.store.bookings.InsertTx(t.ctx, t.tx, b)
}

func (t *reconcileTx) InsertTickets(ts []model.Ticket) error {
    err := t.store.bookings.InsertTicketsBulkTx(t.ctx, t.tx, ts)
    if errors.Is(err, ErrConflict) {
        // A seat in this order was sold through another order while the
        // payment settled; the unique ticket key refused the duplicate.
        return &service.ConflictError{Reason: "seats already sold"}
    }
    return err
}

func (t *reconcileTx) InsertServiceOrders(so []model.ServiceOrder) error {
    return t.store.bookings.InsertServiceOrdersBulkTx(t.ctx, t.tx, so)
}

func (t *reconcileTx) InsertPayment(p *model.Payment) error {
    return t.store.bookings.InsertPaymentTx(t.ctx, t.tx, p)
}

func (t *reconcileTx) LinkBooking(bookingID uint64) error {
    return t.store.orders.LinkBookingTx(t.ctx, t.tx, t.order.ID, bookingID)
}

// SweepExpiredLocks deletes expired lock rows; wired to the periodic
// sweeper goroutine.
func (st *Store) SweepExpiredLocks(ctx context.Context) (int64, error) {
    return st.locks.SweepExpired(ctx)
}

// Catalog, user and booking lookups delegate to their repositories
// with the not-found sentinel translated for the service layer.

func (st *Store) Showtime(ctx context.Context, id uint64) (*model.Showtime, error) {
    s, err := st.catalog.Showtime(ctx, id)
    if errors.Is(err, ErrNotFound) {
        return nil, service.ErrNotFound
    }
    return s, err
}

func (st *Store) Seats(ctx context.Context, showtimeID uint64, seatIDs []uint64) ([]model.Seat, error) {
    return st.catalog.Seats(ctx, showtimeID, seatIDs)
}

func (st *Store) Combos(ctx context.Context, ids []uint64) (map[uint64]model.Combo, error) {
    return st.catalog.Combos(ctx, ids)
}

func (st *Store) Voucher(ctx context.Context, code string) (*model.Voucher, error) {
    v, err := st.catalog.Voucher(ctx, code)
    if errors.Is(err, ErrNotFound) {
        return nil, service.ErrNotFound
    }
    return v, err
}

func (st *Store) Exists(ctx context.Context, id uint64) (bool, error) {
    return st.users.Exists(ctx, id)
}

func (st *Store) GetByID(ctx context.Context, id uint64) (*model.Booking, []model.Ticket, error) {
    b, ts, err := st.bookings.GetByID(ctx, id)
    if errors.Is(err, ErrNotFound) {
        return nil, nil, service.ErrNotFound
    }
    return b, ts, err
}
