package service

import (
    "context"
    "errors"
    "sync"
    "time"

    "github.com/hoangvu/cinema-booking/internal/gateway"
    "github.com/hoangvu/cinema-booking/internal/model"
    "github.com/hoangvu/cinema-booking/internal/queue"
)

// The fakes below give the service tests the same transactional
// semantics the MySQL store provides: mutations run under one mutex,
// and a callback error restores the pre-call snapshot so nothing
// partial ever leaks out.

type memLock struct {
    sessionID string
    expiresAt time.Time
}

type memStore struct {
    mu            sync.Mutex
    now           func() time.Time
    sessions      map[string]*model.BookingSession
    locks         map[uint64]map[uint64]memLock // showtime -> seat -> lock
    ordersByRef   map[string]*model.Order
    bookings      map[uint64]*model.Booking
    tickets       map[uint64][]model.Ticket
    serviceOrders map[uint64][]model.ServiceOrder
    payments      []model.Payment
    nextID        uint64
}

func newMemStore(now func() time.Time) *memStore {
    return &memStore{
        now:           now,
        sessions:      make(map[string]*model.BookingSession),
        locks:         make(map[uint64]map[uint64]memLock),
        ordersByRef:   make(map[string]*model.Order),
        bookings:      make(map[uint64]*model.Booking),
        tickets:       make(map[uint64][]model.Ticket),
        serviceOrders: make(map[uint64][]model.ServiceOrder),
    }
}

func (m *memStore) nextIDLocked() uint64 {
    m.nextID++
    return m.nextID
}

func copySession(s *model.BookingSession) *model.BookingSession {
    c := *s
    c.Items.Seats = append([]uint64(nil), s.Items.Seats...)
    c.Items.Combos = append([]model.ComboLine(nil), s.Items.Combos...)
    return &c
}

func copyOrder(o *model.Order) *model.Order {
    c := *o
    if o.BookingID != nil {
        b := *o.BookingID
        c.BookingID = &b
    }
    return &c
}

// acquireLocked implements the all-or-nothing lock grab: sold seats
// and foreign live rows are conflicts, expired rows are stolen, own
// rows refresh.
func (m *memStore) acquireLocked(showtimeID uint64, seatIDs []uint64, sessionID string, ttl time.Duration) []uint64 {
    byShow := m.locks[showtimeID]
    if byShow == nil {
        byShow = make(map[uint64]memLock)
        m.locks[showtimeID] = byShow
    }
    now := m.now()
    var conflicts []uint64
    for _, seat := range seatIDs {
        if m.soldLocked(showtimeID, seat) {
            conflicts = append(conflicts, seat)
            continue
        }
        l, held := byShow[seat]
        if held && l.sessionID != sessionID && l.expiresAt.After(now) {
            conflicts = append(conflicts, seat)
        }
    }
    if len(conflicts) > 0 {
        return conflicts
    }
    for _, seat := range seatIDs {
        byShow[seat] = memLock{sessionID: sessionID, expiresAt: now.Add(ttl)}
    }
    return nil
}

// soldLocked reports whether the seat already carries a VALID ticket
// for the showtime, mirroring the tickets unique key.
func (m *memStore) soldLocked(showtimeID, seatID uint64) bool {
    for _, ts := range m.tickets {
        for _, tk := range ts {
            if tk.ShowtimeID == showtimeID && tk.SeatID == seatID && tk.Status == "VALID" {
                return true
            }
        }
    }
    return false
}

func (m *memStore) Create(ctx context.Context, s *model.BookingSession, lockTTL time.Duration) ([]uint64, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    conflicts := m.acquireLocked(s.ShowtimeID, s.Items.Seats, s.ID, lockTTL)
    if len(conflicts) > 0 {
        return conflicts, nil
    }
    m.sessions[s.ID] = copySession(s)
    return nil, nil
}

func (m *memStore) Get(ctx context.Context, id string) (*model.BookingSession, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    s, ok := m.sessions[id]
    if !ok {
        return nil, ErrNotFound
    }
    return copySession(s), nil
}

func (m *memStore) snapshotLocked() (map[string]*model.BookingSession, map[uint64]map[uint64]memLock, map[string]*model.Order) {
    sess := make(map[string]*model.BookingSession, len(m.sessions))
    for k, v := range m.sessions {
        sess[k] = copySession(v)
    }
    locks := make(map[uint64]map[uint64]memLock, len(m.locks))
    for show, seats := range m.locks {
        inner := make(map[uint64]memLock, len(seats))
        for seat, l := range seats {
            inner[seat] = l
        }
        locks[show] = inner
    }
    orders := make(map[string]*model.Order, len(m.ordersByRef))
    for k, v := range m.ordersByRef {
        orders[k] = copyOrder(v)
    }
    return sess, locks, orders
}

func (m *memStore) Mutate(ctx context.Context, id string, fn func(tx SessionTx, s *model.BookingSession) error) (*model.BookingSession, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    stored, ok := m.sessions[id]
    if !ok {
        return nil, ErrNotFound
    }
    sessSnap, lockSnap, orderSnap := m.snapshotLocked()
    work := copySession(stored)
    tx := &memSessionTx{store: m, session: work}
    if err := fn(tx, work); err != nil {
        m.sessions, m.locks, m.ordersByRef = sessSnap, lockSnap, orderSnap
        return nil, err
    }
    m.sessions[id] = copySession(work)
    return work, nil
}

type memSessionTx struct {
    store   *memStore
    session *model.BookingSession
}

func (t *memSessionTx) AcquireSeats(seatIDs []uint64, ttl time.Duration) ([]uint64, error) {
    return t.store.acquireLocked(t.session.ShowtimeID, seatIDs, t.session.ID, ttl), nil
}

func (t *memSessionTx) ReleaseSeats(seatIDs []uint64) error {
    byShow := t.store.locks[t.session.ShowtimeID]
    for _, seat := range seatIDs {
        if l, ok := byShow[seat]; ok && l.sessionID == t.session.ID {
            delete(byShow, seat)
        }
    }
    return nil
}

func (t *memSessionTx) ExtendLocks(ttl time.Duration) error {
    exp := t.store.now().Add(ttl)
    for _, seats := range t.store.locks {
        for seat, l := range seats {
            if l.sessionID == t.session.ID {
                seats[seat] = memLock{sessionID: l.sessionID, expiresAt: exp}
            }
        }
    }
    return nil
}

func (t *memSessionTx) ReleaseAllLocks() ([]uint64, error) {
    return t.store.releaseAllLocked(t.session.ID), nil
}

func (m *memStore) releaseAllLocked(sessionID string) []uint64 {
    freed := []uint64{}
    for _, seats := range m.locks {
        for seat, l := range seats {
            if l.sessionID == sessionID {
                freed = append(freed, seat)
                delete(seats, seat)
            }
        }
    }
    return freed
}

func (t *memSessionTx) InsertOrder(o *model.Order) error {
    o.ID = t.store.nextIDLocked()
    t.store.ordersByRef[o.Ref] = copyOrder(o)
    return nil
}

func (t *memSessionTx) DeleteOrder(orderID uint64) error {
    for ref, o := range t.store.ordersByRef {
        if o.ID == orderID {
            delete(t.store.ordersByRef, ref)
        }
    }
    return nil
}

func (m *memStore) GetByRef(ctx context.Context, ref string) (*model.Order, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    o, ok := m.ordersByRef[ref]
    if !ok {
        return nil, ErrNotFound
    }
    return copyOrder(o), nil
}

func (m *memStore) LiveBySession(ctx context.Context, sessionID string) (*model.Order, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    var best *model.Order
    for _, o := range m.ordersByRef {
        if o.SessionID == sessionID && o.Live(m.now()) {
            if best == nil || o.ID > best.ID {
                best = o
            }
        }
    }
    if best == nil {
        return nil, ErrNotFound
    }
    return copyOrder(best), nil
}

func (m *memStore) AttachProvider(ctx context.Context, orderID uint64, providerRef, checkoutURL string) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    for _, o := range m.ordersByRef {
        if o.ID == orderID {
            o.ProviderRef = providerRef
            o.CheckoutURL = checkoutURL
            return nil
        }
    }
    return ErrNotFound
}

func (m *memStore) Reconcile(ctx context.Context, orderRef string, fn func(tx ReconcileTx, o *model.Order, s *model.BookingSession) error) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    stored, ok := m.ordersByRef[orderRef]
    if !ok {
        return ErrNotFound
    }
    session, ok := m.sessions[stored.SessionID]
    if !ok {
        return ErrNotFound
    }
    sessSnap, lockSnap, orderSnap := m.snapshotLocked()
    bookSnap := make(map[uint64]*model.Booking, len(m.bookings))
    for k, v := range m.bookings {
        b := *v
        bookSnap[k] = &b
    }
    ticketSnap := make(map[uint64][]model.Ticket, len(m.tickets))
    for k, v := range m.tickets {
        ticketSnap[k] = append([]model.Ticket(nil), v...)
    }
    soSnap := make(map[uint64][]model.ServiceOrder, len(m.serviceOrders))
    for k, v := range m.serviceOrders {
        soSnap[k] = append([]model.ServiceOrder(nil), v...)
    }
    paySnap := append([]model.Payment(nil), m.payments...)
    tx := &memReconcileTx{store: m, order: stored, session: session}
    if err := fn(tx, copyOrder(stored), copySession(session)); err != nil {
        m.sessions, m.locks, m.ordersByRef = sessSnap, lockSnap, orderSnap
        m.bookings, m.tickets, m.serviceOrders, m.payments = bookSnap, ticketSnap, soSnap, paySnap
        return err
    }
    return nil
}

type memReconcileTx struct {
    store   *memStore
    order   *model.Order
    session *model.BookingSession
}

func (t *memReconcileTx) MarkOrderPaid(providerTxnID string) error {
    if t.order.Status != model.OrderPending {
        return errors.New("order not pending")
    }
    t.order.Status = model.OrderPaid
    if providerTxnID != "" && t.order.ProviderRef == "" {
        t.order.ProviderRef = providerTxnID
    }
    return nil
}

func (t *memReconcileTx) MarkOrderExpired() error {
    if t.order.Status != model.OrderPending {
        return errors.New("order not pending")
    }
    t.order.Status = model.OrderExpired
    return nil
}

func (t *memReconcileTx) SetSessionState(state model.SessionState, expiresAt time.Time) error {
    t.session.State = state
    t.session.ExpiresAt = expiresAt
    return nil
}

func (t *memReconcileTx) ReleaseAllLocks() ([]uint64, error) {
    return t.store.releaseAllLocked(t.session.ID), nil
}

func (t *memReconcileTx) InsertBooking(b *model.Booking) error {
    b.ID = t.store.nextIDLocked()
    c := *b
    t.store.bookings[b.ID] = &c
    return nil
}

func (t *memReconcileTx) InsertTickets(ts []model.Ticket) error {
    for _, tk := range ts {
        if t.store.soldLocked(tk.ShowtimeID, tk.SeatID) {
            return &ConflictError{Reason: "seats already sold"}
        }
    }
    for _, tk := range ts {
        t.store.tickets[tk.BookingID] = append(t.store.tickets[tk.BookingID], tk)
    }
    return nil
}

func (t *memReconcileTx) InsertServiceOrders(so []model.ServiceOrder) error {
    for _, s := range so {
        t.store.serviceOrders[s.BookingID] = append(t.store.serviceOrders[s.BookingID], s)
    }
    return nil
}

func (t *memReconcileTx) InsertPayment(p *model.Payment) error {
    t.store.payments = append(t.store.payments, *p)
    return nil
}

func (t *memReconcileTx) LinkBooking(bookingID uint64) error {
    if t.order.BookingID != nil {
        return errors.New("order already linked")
    }
    t.order.BookingID = &bookingID
    return nil
}

// GetByID satisfies BookingStore for the duplicate-trigger path.
func (m *memStore) GetByID(ctx context.Context, id uint64) (*model.Booking, []model.Ticket, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    b, ok := m.bookings[id]
    if !ok {
        return nil, nil, ErrNotFound
    }
    c := *b
    return &c, append([]model.Ticket(nil), m.tickets[id]...), nil
}

// SweepExpiredLocks satisfies LockSweeper.
func (m *memStore) SweepExpiredLocks(ctx context.Context) (int64, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    now := m.now()
    var n int64
    for _, seats := range m.locks {
        for seat, l := range seats {
            if !l.expiresAt.After(now) {
                delete(seats, seat)
                n++
            }
        }
    }
    return n, nil
}

// lockHolder reports which session holds a live lock on the seat, for
// assertions.
func (m *memStore) lockHolder(showtimeID, seatID uint64) string {
    m.mu.Lock()
    defer m.mu.Unlock()
    l, ok := m.locks[showtimeID][seatID]
    if !ok || !l.expiresAt.After(m.now()) {
        return ""
    }
    return l.sessionID
}

// --- catalog fake ---

type memCatalog struct {
    showtimes map[uint64]model.Showtime
    seats     map[uint64]map[uint64]model.Seat // showtime -> seat id -> seat
    combos    map[uint64]model.Combo
    vouchers  map[string]model.Voucher
}

func (c *memCatalog) Showtime(ctx context.Context, id uint64) (*model.Showtime, error) {
    st, ok := c.showtimes[id]
    if !ok {
        return nil, ErrNotFound
    }
    return &st, nil
}

func (c *memCatalog) Seats(ctx context.Context, showtimeID uint64, seatIDs []uint64) ([]model.Seat, error) {
    out := make([]model.Seat, 0, len(seatIDs))
    for _, id := range seatIDs {
        if s, ok := c.seats[showtimeID][id]; ok {
            out = append(out, s)
        }
    }
    return out, nil
}

func (c *memCatalog) Combos(ctx context.Context, ids []uint64) (map[uint64]model.Combo, error) {
    out := make(map[uint64]model.Combo, len(ids))
    for _, id := range ids {
        if cb, ok := c.combos[id]; ok && cb.Active {
            out[id] = cb
        }
    }
    return out, nil
}

func (c *memCatalog) Voucher(ctx context.Context, code string) (*model.Voucher, error) {
    v, ok := c.vouchers[code]
    if !ok {
        return nil, ErrNotFound
    }
    return &v, nil
}

// --- users fake ---

type memUsers struct {
    ids map[uint64]bool
}

func (u *memUsers) Exists(ctx context.Context, id uint64) (bool, error) {
    return u.ids[id], nil
}

// --- broadcaster fake ---

type castEvent struct {
    kind       string
    showtimeID uint64
    seatIDs    []uint64
}

type memBroadcaster struct {
    mu     sync.Mutex
    events []castEvent
}

func (b *memBroadcaster) record(kind string, showtimeID uint64, seatIDs []uint64) {
    b.mu.Lock()
    defer b.mu.Unlock()
    b.events = append(b.events, castEvent{kind: kind, showtimeID: showtimeID, seatIDs: append([]uint64(nil), seatIDs...)})
}

func (b *memBroadcaster) SeatsLocked(ctx context.Context, showtimeID uint64, seatIDs []uint64) {
    b.record("locked", showtimeID, seatIDs)
}

func (b *memBroadcaster) SeatsReleased(ctx context.Context, showtimeID uint64, seatIDs []uint64) {
    b.record("released", showtimeID, seatIDs)
}

func (b *memBroadcaster) SeatsSold(ctx context.Context, showtimeID uint64, seatIDs []uint64) {
    b.record("sold", showtimeID, seatIDs)
}

func (b *memBroadcaster) kinds() []string {
    b.mu.Lock()
    defer b.mu.Unlock()
    out := make([]string, 0, len(b.events))
    for _, e := range b.events {
        out = append(out, e.kind)
    }
    return out
}

// --- notifier fake ---

type memNotifier struct {
    mu     sync.Mutex
    events []queue.BookingConfirmedEvent
    err    error
}

func (n *memNotifier) BookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error {
    n.mu.Lock()
    defer n.mu.Unlock()
    if n.err != nil {
        return n.err
    }
    n.events = append(n.events, ev)
    return nil
}

// --- payment gateway fake ---

type memGateway struct {
    mu        sync.Mutex
    createErr error
    status    gateway.Status
    statusErr error
    created   int
}

func (g *memGateway) CreateCheckout(ctx context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutResult, error) {
    g.mu.Lock()
    defer g.mu.Unlock()
    if g.createErr != nil {
        return nil, g.createErr
    }
    g.created++
    return &gateway.CheckoutResult{
        ProviderRef: "prov-" + req.OrderRef,
        CheckoutURL: "https://pay.example/c/" + req.OrderRef,
    }, nil
}

func (g *memGateway) GetStatus(ctx context.Context, providerRef string) (gateway.Status, error) {
    g.mu.Lock()
    defer g.mu.Unlock()
    if g.statusErr != nil {
        return "", g.statusErr
    }
    return g.status, nil
}

// --- fixture wiring ---

const showtimeID = uint64(10)

type fixture struct {
    store     *memStore
    catalog   *memCatalog
    users     *memUsers
    cast      *memBroadcaster
    notifier  *memNotifier
    gw        *memGateway
    clock     *time.Time
    sessions  *Sessions
    checkout  *Checkout
    reconcile *Reconciler
}

// newFixture builds the service stack over the fakes with a movable
// clock.  Showtime 10 has seats 1..5 (seat 5 VIP), combos 100/101 and
// voucher SAVE10 (10 percent, capped at 300 cents).
func newFixture() *fixture {
    start := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
    clock := &start
    now := func() time.Time { return *clock }

    seats := map[uint64]model.Seat{
        1: {ID: 1, RowLabel: "A", SeatNumber: 1, SeatType: "STANDARD"},
        2: {ID: 2, RowLabel: "A", SeatNumber: 2, SeatType: "STANDARD"},
        3: {ID: 3, RowLabel: "A", SeatNumber: 3, SeatType: "STANDARD"},
        4: {ID: 4, RowLabel: "B", SeatNumber: 1, SeatType: "STANDARD"},
        5: {ID: 5, RowLabel: "B", SeatNumber: 2, SeatType: "VIP", SurchargeCents: 500},
    }
    catalog := &memCatalog{
        showtimes: map[uint64]model.Showtime{
            showtimeID: {ID: showtimeID, MovieTitle: "Arrival", HallName: "Hall 1", StartsAt: start.Add(6 * time.Hour), BasePriceCents: 1000},
        },
        seats:  map[uint64]map[uint64]model.Seat{showtimeID: seats},
        combos: map[uint64]model.Combo{
            100: {ID: 100, Name: "Popcorn", UnitPriceCents: 450, Active: true},
            101: {ID: 101, Name: "Soda", UnitPriceCents: 250, Active: true},
        },
        vouchers: map[string]model.Voucher{
            "SAVE10": {
                Code: "SAVE10", PercentOff: 10, MaxDiscountCents: 300,
                ValidFrom: start.Add(-time.Hour), ValidUntil: start.Add(24 * time.Hour),
                Active: true,
            },
        },
    }

    store := newMemStore(now)
    users := &memUsers{ids: map[uint64]bool{7: true}}
    cast := &memBroadcaster{}
    notifier := &memNotifier{}
    gw := &memGateway{status: gateway.StatusPending}

    sessions := NewSessions(store, catalog, cast, 10*time.Minute, 3*time.Minute)
    sessions.now = now
    checkout := NewCheckout(store, store, gw, 15*time.Minute, 10*time.Minute)
    checkout.now = now
    reconcile := NewReconciler(store, store, catalog, users, cast, notifier, 10*time.Minute)
    reconcile.now = now

    return &fixture{
        store: store, catalog: catalog, users: users, cast: cast,
        notifier: notifier, gw: gw, clock: clock,
        sessions: sessions, checkout: checkout, reconcile: reconcile,
    }
}

func (f *fixture) advance(d time.Duration) {
    *f.clock = f.clock.Add(d)
}
