package service

import (
    "context"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/hoangvu/cinema-booking/internal/gateway"
    "github.com/hoangvu/cinema-booking/internal/model"
)

// checkoutSession drives a session through checkout and returns it with
// its order reference.
func checkoutSession(t *testing.T, f *fixture, owner *uint64) (string, string) {
    t.Helper()
    ctx := context.Background()
    s, err := f.sessions.Create(ctx, CreateSessionInput{
        ShowtimeID: showtimeID,
        SeatIDs:    []uint64{1, 5},
        Combos:     []model.ComboLine{{ComboID: 100, Quantity: 2}},
        OwnerID:    owner,
    })
    require.NoError(t, err)
    res, err := f.checkout.Checkout(ctx, s.ID)
    require.NoError(t, err)
    return s.ID, res.Order.Ref
}

func TestReconcilePaidMaterializesBooking(t *testing.T) {
    f := newFixture()
    ctx := context.Background()
    owner := uint64(7)
    sessionID, orderRef := checkoutSession(t, f, &owner)

    out, err := f.reconcile.Reconcile(ctx, orderRef, gateway.StatusPaid, Confirmation{
        ProviderTxnID:  "txn-1",
        SignatureValid: true,
        RawPayload:     []byte(`{"status":"PAID"}`),
    })
    require.NoError(t, err)
    assert.True(t, out.Materialized)
    require.NotNil(t, out.Booking)

    b := out.Booking
    assert.Equal(t, sessionID, b.SessionID)
    require.NotNil(t, b.UserID)
    assert.Equal(t, owner, *b.UserID)
    assert.Equal(t, int64(1000+1500+900), b.TotalAmountCents)

    // One VALID ticket per seat, priced from the catalog.
    _, tickets, err := f.store.GetByID(ctx, b.ID)
    require.NoError(t, err)
    require.Len(t, tickets, 2)
    assert.Equal(t, int64(1000), tickets[0].PriceCents)
    assert.Equal(t, int64(1500), tickets[1].PriceCents)

    // Combos became service orders, the payment row was written.
    require.Len(t, f.store.serviceOrders[b.ID], 1)
    assert.Equal(t, uint32(2), f.store.serviceOrders[b.ID][0].Quantity)
    require.Len(t, f.store.payments, 1)
    assert.Equal(t, "txn-1", f.store.payments[0].ProviderTxnID)
    assert.True(t, f.store.payments[0].SignatureValid)

    // Session COMPLETED, order PAID and linked, locks gone.
    s, err := f.store.Get(ctx, sessionID)
    require.NoError(t, err)
    assert.Equal(t, model.SessionCompleted, s.State)
    o, err := f.store.GetByRef(ctx, orderRef)
    require.NoError(t, err)
    assert.Equal(t, model.OrderPaid, o.Status)
    require.NotNil(t, o.BookingID)
    assert.Equal(t, b.ID, *o.BookingID)
    assert.Equal(t, "", f.store.lockHolder(showtimeID, 1))

    // Post-commit side effects fired once.
    assert.Contains(t, f.cast.kinds(), "sold")
    require.Len(t, f.notifier.events, 1)
    assert.Equal(t, b.ID, f.notifier.events[0].BookingID)
    assert.Equal(t, []string{"A1", "B2"}, f.notifier.events[0].SeatLabels)
}

func TestReconcileDuplicateTriggersCollapse(t *testing.T) {
    f := newFixture()
    ctx := context.Background()
    _, orderRef := checkoutSession(t, f, nil)

    first, err := f.reconcile.Reconcile(ctx, orderRef, gateway.StatusPaid, Confirmation{ProviderTxnID: "txn-1"})
    require.NoError(t, err)
    require.True(t, first.Materialized)

    // Webhook, redirect and poll replays all hit the booking_id gate.
    for i := 0; i < 3; i++ {
        again, err := f.reconcile.Reconcile(ctx, orderRef, gateway.StatusPaid, Confirmation{ProviderTxnID: "txn-1"})
        require.NoError(t, err)
        assert.False(t, again.Materialized)
        require.NotNil(t, again.Booking)
        assert.Equal(t, first.Booking.ID, again.Booking.ID)
    }
    assert.Len(t, f.store.bookings, 1)
    assert.Len(t, f.store.payments, 1)
    assert.Len(t, f.notifier.events, 1)
}

func TestReconcileConcurrentPaidTriggers(t *testing.T) {
    f := newFixture()
    _, orderRef := checkoutSession(t, f, nil)

    var wg sync.WaitGroup
    materialized := make(chan bool, 8)
    for i := 0; i < 8; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            out, err := f.reconcile.Reconcile(context.Background(), orderRef, gateway.StatusPaid, Confirmation{})
            if err == nil {
                materialized <- out.Materialized
            }
        }()
    }
    wg.Wait()
    close(materialized)

    wins := 0
    for m := range materialized {
        if m {
            wins++
        }
    }
    assert.Equal(t, 1, wins)
    assert.Len(t, f.store.bookings, 1)
}

func TestReconcileTerminalFailureReturnsSessionToDraft(t *testing.T) {
    f := newFixture()
    ctx := context.Background()
    sessionID, orderRef := checkoutSession(t, f, nil)

    out, err := f.reconcile.Reconcile(ctx, orderRef, gateway.StatusExpired, Confirmation{})
    require.NoError(t, err)
    assert.False(t, out.Materialized)
    assert.Nil(t, out.Booking)

    o, err := f.store.GetByRef(ctx, orderRef)
    require.NoError(t, err)
    assert.Equal(t, model.OrderExpired, o.Status)

    // The customer can amend the selection and try again.
    s, err := f.sessions.Get(ctx, sessionID)
    require.NoError(t, err)
    assert.Equal(t, model.SessionDraft, s.State)
    res, err := f.checkout.Checkout(ctx, sessionID)
    require.NoError(t, err)
    assert.NotEqual(t, orderRef, res.Order.Ref)
}

func TestReconcilePendingIsNoop(t *testing.T) {
    f := newFixture()
    ctx := context.Background()
    sessionID, orderRef := checkoutSession(t, f, nil)

    out, err := f.reconcile.Reconcile(ctx, orderRef, gateway.StatusPending, Confirmation{})
    require.NoError(t, err)
    assert.False(t, out.Materialized)

    s, err := f.store.Get(ctx, sessionID)
    require.NoError(t, err)
    assert.Equal(t, model.SessionPendingPayment, s.State)
    o, err := f.store.GetByRef(ctx, orderRef)
    require.NoError(t, err)
    assert.Equal(t, model.OrderPending, o.Status)
}

func TestReconcileVanishedOwnerBooksAnonymously(t *testing.T) {
    f := newFixture()
    ctx := context.Background()
    gone := uint64(42) // not present in the users fake
    _, orderRef := checkoutSession(t, f, &gone)

    out, err := f.reconcile.Reconcile(ctx, orderRef, gateway.StatusPaid, Confirmation{})
    require.NoError(t, err)
    require.True(t, out.Materialized)
    assert.Nil(t, out.Booking.UserID)
}

func TestSoldSeatCannotBeRelocked(t *testing.T) {
    f := newFixture()
    ctx := context.Background()
    _, orderRef := checkoutSession(t, f, nil)
    _, err := f.reconcile.Reconcile(ctx, orderRef, gateway.StatusPaid, Confirmation{})
    require.NoError(t, err)

    // The paid seats have no lock rows left; their tickets are what
    // keep them off the market, for a fresh session and for a seat
    // change alike.
    _, err = f.sessions.Create(ctx, CreateSessionInput{ShowtimeID: showtimeID, SeatIDs: []uint64{1, 3}})
    var conflict *ConflictError
    require.ErrorAs(t, err, &conflict)
    assert.Equal(t, []uint64{1}, conflict.SeatIDs)

    draft, err := f.sessions.Create(ctx, CreateSessionInput{ShowtimeID: showtimeID, SeatIDs: []uint64{3}})
    require.NoError(t, err)
    _, err = f.sessions.SetSeats(ctx, draft.ID, []uint64{3, 5})
    require.ErrorAs(t, err, &conflict)
    assert.Equal(t, []uint64{5}, conflict.SeatIDs)
}

func TestReconcileLatePaymentAfterSeatResold(t *testing.T) {
    f := newFixture()
    ctx := context.Background()
    a, err := f.sessions.Create(ctx, CreateSessionInput{ShowtimeID: showtimeID, SeatIDs: []uint64{2}})
    require.NoError(t, err)
    resA, err := f.checkout.Checkout(ctx, a.ID)
    require.NoError(t, err)

    // The payment window lapses, the lock with it, and the seat is
    // resold to another customer who settles first.
    f.advance(16 * time.Minute)
    b, err := f.sessions.Create(ctx, CreateSessionInput{ShowtimeID: showtimeID, SeatIDs: []uint64{2}})
    require.NoError(t, err)
    resB, err := f.checkout.Checkout(ctx, b.ID)
    require.NoError(t, err)
    _, err = f.reconcile.Reconcile(ctx, resB.Order.Ref, gateway.StatusPaid, Confirmation{})
    require.NoError(t, err)

    // A very late PAID for the first order hits the unique ticket key
    // and must not produce a second booking for the seat.
    _, err = f.reconcile.Reconcile(ctx, resA.Order.Ref, gateway.StatusPaid, Confirmation{})
    var conflict *ConflictError
    require.ErrorAs(t, err, &conflict)
    assert.Len(t, f.store.bookings, 1)
    o, err := f.store.GetByRef(ctx, resA.Order.Ref)
    require.NoError(t, err)
    assert.Nil(t, o.BookingID)
    assert.Equal(t, model.OrderPending, o.Status)
}

func TestReconcileUnknownOrder(t *testing.T) {
    f := newFixture()
    _, err := f.reconcile.Reconcile(context.Background(), "no-such-ref", gateway.StatusPaid, Confirmation{})
    var nf *NotFoundError
    require.ErrorAs(t, err, &nf)
}

func TestReconcileNotifierFailureDoesNotUndoBooking(t *testing.T) {
    f := newFixture()
    ctx := context.Background()
    f.notifier.err = assert.AnError
    _, orderRef := checkoutSession(t, f, nil)

    out, err := f.reconcile.Reconcile(ctx, orderRef, gateway.StatusPaid, Confirmation{})
    require.NoError(t, err)
    assert.True(t, out.Materialized)
    assert.Len(t, f.store.bookings, 1)
}

func TestLockSweeperRemovesExpiredLocks(t *testing.T) {
    f := newFixture()
    ctx := context.Background()
    _, err := f.sessions.Create(ctx, CreateSessionInput{ShowtimeID: showtimeID, SeatIDs: []uint64{1}})
    require.NoError(t, err)
    f.advance(5 * time.Minute)

    n, err := f.store.SweepExpiredLocks(ctx)
    require.NoError(t, err)
    assert.Equal(t, int64(1), n)
    assert.Equal(t, "", f.store.lockHolder(showtimeID, 1))
}
