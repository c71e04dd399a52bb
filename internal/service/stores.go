package service

import (
    "context"
    "errors"
    "time"

    "github.com/hoangvu/cinema-booking/internal/model"
    "github.com/hoangvu/cinema-booking/internal/queue"
)

// ErrNotFound is returned by stores when the requested row does not
// exist.  The service layer translates it into a *NotFoundError.
var ErrNotFound = errors.New("not found")

// SessionStore persists booking sessions together with their seat
// locks.  Implementations must guarantee that Create is all-or-nothing
// across the requested seats and that Mutate serializes concurrent
// mutations of the same session (the MySQL implementation locks the
// session row with SELECT ... FOR UPDATE).
type SessionStore interface {
    // Create inserts the session and acquires locks for all its seats
    // atomically.  When any seat is held by another unexpired lock or
    // already carries a VALID ticket, nothing is persisted and the
    // contested seat ids are returned.
    Create(ctx context.Context, s *model.BookingSession, lockTTL time.Duration) (conflicts []uint64, err error)

    // Get returns the session or ErrNotFound.  Plain read, no locking.
    Get(ctx context.Context, id string) (*model.BookingSession, error)

    // Mutate loads the session under an exclusive lock, invokes fn and,
    // when fn returns nil, persists the (possibly modified) session and
    // every write issued through the SessionTx in one transaction.  A
    // non-nil error from fn rolls everything back and is returned
    // unchanged.  Returns ErrNotFound for unknown sessions.
    Mutate(ctx context.Context, id string, fn func(tx SessionTx, s *model.BookingSession) error) (*model.BookingSession, error)
}

// SessionTx is the set of writes available inside a session mutation.
// All writes join the surrounding transaction.
type SessionTx interface {
    // AcquireSeats locks the given seats for this session, stealing
    // expired locks and refreshing its own.  Seats held by another
    // live lock or already sold are returned as conflicts and the
    // caller is expected to abort the mutation.
    AcquireSeats(seatIDs []uint64, ttl time.Duration) (conflicts []uint64, err error)

    // ReleaseSeats drops this session's locks on the given seats.
    ReleaseSeats(seatIDs []uint64) error

    // ExtendLocks pushes the expiry of all of this session's locks to
    // now+ttl.
    ExtendLocks(ttl time.Duration) error

    // ReleaseAllLocks drops every lock held by this session and
    // returns the freed seat ids.  Idempotent: no locks is a no-op.
    ReleaseAllLocks() ([]uint64, error)

    // InsertOrder persists a new payment attempt and fills in its id.
    InsertOrder(o *model.Order) error

    // DeleteOrder removes an order created earlier in the checkout
    // flow, used by the gateway-failure compensation.
    DeleteOrder(orderID uint64) error
}

// OrderStore persists orders and runs the reconciliation transaction.
type OrderStore interface {
    // GetByRef returns the order with the given public reference, or
    // ErrNotFound.
    GetByRef(ctx context.Context, ref string) (*model.Order, error)

    // LiveBySession returns the newest PENDING, unexpired order of the
    // session, or ErrNotFound.
    LiveBySession(ctx context.Context, sessionID string) (*model.Order, error)

    // AttachProvider records the gateway's reference and checkout URL
    // on a freshly created order.
    AttachProvider(ctx context.Context, orderID uint64, providerRef, checkoutURL string) error

    // Reconcile loads the order and its session under an exclusive
    // lock and invokes fn.  When fn returns nil every write issued
    // through the ReconcileTx commits atomically; otherwise everything
    // rolls back.  Concurrent calls for the same order serialize on
    // the row lock.  Returns ErrNotFound for unknown references.
    Reconcile(ctx context.Context, orderRef string, fn func(tx ReconcileTx, o *model.Order, s *model.BookingSession) error) error
}

// ReconcileTx is the set of writes available while materializing (or
// expiring) a payment attempt.
type ReconcileTx interface {
    MarkOrderPaid(providerTxnID string) error
    MarkOrderExpired() error
    SetSessionState(state model.SessionState, expiresAt time.Time) error
    ReleaseAllLocks() ([]uint64, error)
    InsertBooking(b *model.Booking) error
    InsertTickets(ts []model.Ticket) error
    InsertServiceOrders(so []model.ServiceOrder) error
    InsertPayment(p *model.Payment) error
    // LinkBooking stamps orders.booking_id, closing the idempotency gate.
    LinkBooking(bookingID uint64) error
}

// BookingStore reads materialized bookings for customers and for the
// reconciliation no-op path.
type BookingStore interface {
    GetByID(ctx context.Context, id uint64) (*model.Booking, []model.Ticket, error)
}

// Catalog supplies the read-only lookups the core needs: showtime and
// seat data with surcharges, combo prices and voucher rules.
type Catalog interface {
    Showtime(ctx context.Context, id uint64) (*model.Showtime, error)
    // Seats returns the seats of the showtime's hall restricted to the
    // given ids; unknown ids are simply absent from the result.
    Seats(ctx context.Context, showtimeID uint64, seatIDs []uint64) ([]model.Seat, error)
    Combos(ctx context.Context, ids []uint64) (map[uint64]model.Combo, error)
    // Voucher returns ErrNotFound for unknown codes.
    Voucher(ctx context.Context, code string) (*model.Voucher, error)
}

// Users resolves customer profiles during reconciliation.
type Users interface {
    // Exists reports whether a user row with the id is present.
    Exists(ctx context.Context, id uint64) (bool, error)
}

// Broadcaster is the fire-and-forget seat-state sink.  Implementations
// must never fail the calling operation; delivery errors are logged
// and dropped.
type Broadcaster interface {
    SeatsLocked(ctx context.Context, showtimeID uint64, seatIDs []uint64)
    SeatsReleased(ctx context.Context, showtimeID uint64, seatIDs []uint64)
    SeatsSold(ctx context.Context, showtimeID uint64, seatIDs []uint64)
}

// Notifier delivers the post-booking ticket notification.  A failure
// is logged by the caller and never rolls back the booking.
type Notifier interface {
    BookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error
}
