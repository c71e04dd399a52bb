package service

import (
    "context"
    "errors"
    "fmt"
    "log"
    "time"

    "github.com/hoangvu/cinema-booking/internal/gateway"
    "github.com/hoangvu/cinema-booking/internal/model"
    "github.com/hoangvu/cinema-booking/internal/queue"
)

// Reconciler converts a confirmed payment into the durable
// Booking/Ticket/ServiceOrder/Payment group, exactly once.  Three
// independent triggers funnel into Reconcile: the return redirect, the
// client status poll and the asynchronous webhook.  They race and
// duplicate freely; the orders.booking_id link is the idempotency gate
// that collapses them to one effect.
type Reconciler struct {
    orders    OrderStore
    bookings  BookingStore
    catalog   Catalog
    users     Users
    broadcast Broadcaster
    notifier  Notifier
    draftTTL  time.Duration
    now       func() time.Time
}

// NewReconciler wires a payment reconciler.
func NewReconciler(orders OrderStore, bookings BookingStore, catalog Catalog, users Users, broadcast Broadcaster, notifier Notifier, draftTTL time.Duration) *Reconciler {
    return &Reconciler{
        orders:    orders,
        bookings:  bookings,
        catalog:   catalog,
        users:     users,
        broadcast: broadcast,
        notifier:  notifier,
        draftTTL:  draftTTL,
        now:       func() time.Time { return time.Now().UTC() },
    }
}

// Confirmation carries the provider-supplied details of a payment
// confirmation.  Triggers without a payload (status poll) leave it
// zero-valued.
type Confirmation struct {
    ProviderTxnID  string
    SignatureValid bool
    RawPayload     []byte
}

// Outcome reports what a reconciliation call did.  Materialized is
// true only for the single call that created the booking; duplicate
// and wrong-state triggers return Materialized=false with the existing
// booking (when one exists) and are never errors.
type Outcome struct {
    Order        *model.Order
    Booking      *model.Booking
    Materialized bool
}

// Reconcile applies one provider-reported status to an order.
//
//   - PAID on a PENDING order of a PENDING_PAYMENT session materializes
//     the booking atomically and releases the seat locks.
//   - a terminal failure (EXPIRED/CANCELED/FAILED) on a PENDING order
//     expires the order and returns the session to DRAFT so the
//     customer can retry checkout; seats stay held until their
//     payment-window TTL lapses.
//   - everything else is a no-op.
func (r *Reconciler) Reconcile(ctx context.Context, orderRef string, reported gateway.Status, conf Confirmation) (*Outcome, error) {
    out := &Outcome{}
    var notice *queue.BookingConfirmedEvent
    var soldSeats []uint64
    var showtimeID uint64

    err := r.orders.Reconcile(ctx, orderRef, func(tx ReconcileTx, o *model.Order, s *model.BookingSession) error {
        out.Order = o

        // Idempotency gate: a linked booking proves materialization
        // already happened; do no further writes.
        if o.BookingID != nil {
            return nil
        }

        switch {
        case reported == gateway.StatusPaid:
            if o.Status != model.OrderPending || s.State != model.SessionPendingPayment {
                return nil // duplicate or late trigger, not an error
            }
            booking, ev, seats, err := r.materialize(ctx, tx, o, s, conf)
            if err != nil {
                return err
            }
            out.Booking = booking
            out.Materialized = true
            notice = ev
            soldSeats = seats
            showtimeID = s.ShowtimeID
            return nil

        case reported.TerminalFailure():
            if o.Status != model.OrderPending {
                return nil
            }
            if err := tx.MarkOrderExpired(); err != nil {
                return err
            }
            if s.State == model.SessionPendingPayment {
                // Back to DRAFT with a fresh TTL; locks keep their
                // payment-window expiry so a retry finds the seats.
                return tx.SetSessionState(model.SessionDraft, r.now().Add(r.draftTTL))
            }
            return nil

        default: // still pending at the provider
            return nil
        }
    })
    if err != nil {
        if errors.Is(err, ErrNotFound) {
            return nil, &NotFoundError{Resource: "order"}
        }
        return nil, err
    }

    // Duplicate trigger: surface the booking created by the first one.
    if !out.Materialized && out.Order.BookingID != nil && out.Booking == nil {
        b, _, err := r.bookings.GetByID(ctx, *out.Order.BookingID)
        if err != nil {
            return nil, err
        }
        out.Booking = b
    }

    // Post-commit, best-effort side effects.  Failures here are logged
    // and never undo the booking.
    if out.Materialized {
        if len(soldSeats) > 0 {
            r.broadcast.SeatsSold(ctx, showtimeID, soldSeats)
        }
        if notice != nil {
            if err := r.notifier.BookingConfirmed(ctx, *notice); err != nil {
                log.Printf("reconcile: ticket notification for order %s failed: %v", orderRef, err)
            }
        }
    }
    return out, nil
}

// materialize performs the first-confirmation writes: order PAID, the
// booking group, lock release, session COMPLETED and the idempotency
// link.  Tickets are priced from the catalog data current at this
// moment; the charged total stays frozen from the checkout snapshot.
func (r *Reconciler) materialize(ctx context.Context, tx ReconcileTx, o *model.Order, s *model.BookingSession, conf Confirmation) (*model.Booking, *queue.BookingConfirmedEvent, []uint64, error) {
    now := r.now()
    showtime, err := r.catalog.Showtime(ctx, s.ShowtimeID)
    if err != nil {
        return nil, nil, nil, fmt.Errorf("load showtime: %w", err)
    }
    seats, err := r.catalog.Seats(ctx, s.ShowtimeID, s.Items.Seats)
    if err != nil {
        return nil, nil, nil, fmt.Errorf("load seats: %w", err)
    }
    if len(seats) != len(s.Items.Seats) {
        return nil, nil, nil, fmt.Errorf("session %s references unknown seats", s.ID)
    }

    if err := tx.MarkOrderPaid(conf.ProviderTxnID); err != nil {
        return nil, nil, nil, err
    }

    // Resolve the customer profile; an owner row that vanished leaves
    // the booking anonymous rather than failing the settlement.
    userID := s.OwnerID
    if userID != nil {
        ok, err := r.users.Exists(ctx, *userID)
        if err != nil {
            return nil, nil, nil, err
        }
        if !ok {
            userID = nil
        }
    }

    booking := &model.Booking{
        SessionID:        s.ID,
        OrderID:          o.ID,
        UserID:           userID,
        ShowtimeID:       s.ShowtimeID,
        TotalAmountCents: o.AmountCents,
        Status:           "COMPLETED",
        CreatedAt:        now,
    }
    if err := tx.InsertBooking(booking); err != nil {
        return nil, nil, nil, err
    }

    tickets := make([]model.Ticket, 0, len(seats))
    labels := make([]string, 0, len(seats))
    for _, seat := range seats {
        tickets = append(tickets, model.Ticket{
            BookingID:  booking.ID,
            ShowtimeID: s.ShowtimeID,
            SeatID:     seat.ID,
            PriceCents: showtime.BasePriceCents + seat.SurchargeCents,
            Status:     "VALID",
            CreatedAt:  now,
        })
        labels = append(labels, fmt.Sprintf("%s%d", seat.RowLabel, seat.SeatNumber))
    }
    if err := tx.InsertTickets(tickets); err != nil {
        return nil, nil, nil, err
    }

    if len(s.Items.Combos) > 0 {
        ids := make([]uint64, 0, len(s.Items.Combos))
        for _, l := range s.Items.Combos {
            ids = append(ids, l.ComboID)
        }
        combos, err := r.catalog.Combos(ctx, ids)
        if err != nil {
            return nil, nil, nil, fmt.Errorf("load combos: %w", err)
        }
        serviceOrders := make([]model.ServiceOrder, 0, len(s.Items.Combos))
        for _, l := range s.Items.Combos {
            combo, ok := combos[l.ComboID]
            if !ok {
                return nil, nil, nil, fmt.Errorf("session %s references unknown combo %d", s.ID, l.ComboID)
            }
            serviceOrders = append(serviceOrders, model.ServiceOrder{
                BookingID:      booking.ID,
                ComboID:        l.ComboID,
                Quantity:       l.Quantity,
                UnitPriceCents: combo.UnitPriceCents,
                CreatedAt:      now,
            })
        }
        if err := tx.InsertServiceOrders(serviceOrders); err != nil {
            return nil, nil, nil, err
        }
    }

    if err := tx.InsertPayment(&model.Payment{
        OrderID:        o.ID,
        AmountCents:    o.AmountCents,
        ProviderTxnID:  conf.ProviderTxnID,
        SignatureValid: conf.SignatureValid,
        RawPayload:     conf.RawPayload,
        CreatedAt:      now,
    }); err != nil {
        return nil, nil, nil, err
    }

    // Seats become SOLD through their ticket rows, not through locks.
    if _, err := tx.ReleaseAllLocks(); err != nil {
        return nil, nil, nil, err
    }
    if err := tx.SetSessionState(model.SessionCompleted, now); err != nil {
        return nil, nil, nil, err
    }
    if err := tx.LinkBooking(booking.ID); err != nil {
        return nil, nil, nil, err
    }

    ev := &queue.BookingConfirmedEvent{
        BookingID:        booking.ID,
        OrderRef:         o.Ref,
        SessionID:        s.ID,
        UserID:           userID,
        ShowtimeID:       s.ShowtimeID,
        MovieTitle:       showtime.MovieTitle,
        HallName:         showtime.HallName,
        StartsAt:         showtime.StartsAt.UTC().Format(time.RFC3339),
        SeatLabels:       labels,
        TotalAmountCents: booking.TotalAmountCents,
        ConfirmedAt:      now.Format(time.RFC3339),
    }
    return booking, ev, s.Items.Seats, nil
}
