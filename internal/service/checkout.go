package service

import (
    "context"
    "errors"
    "log"
    "time"

    "github.com/google/uuid"

    "github.com/hoangvu/cinema-booking/internal/gateway"
    "github.com/hoangvu/cinema-booking/internal/model"
)

// PaymentGateway is the slice of the payment provider the core needs.
type PaymentGateway interface {
    CreateCheckout(ctx context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutResult, error)
    GetStatus(ctx context.Context, providerRef string) (gateway.Status, error)
}

// Checkout parks a DRAFT session for payment: it transitions the
// session to PENDING_PAYMENT, re-acquires its seat locks for the
// payment window (a seat lost to lock expiry aborts the checkout),
// creates an Order and requests a hosted checkout link from the
// gateway.  A gateway failure is compensated by discarding the Order
// and returning the session to DRAFT.
type Checkout struct {
    sessions      SessionStore
    orders        OrderStore
    gateway       PaymentGateway
    paymentWindow time.Duration // how long the gateway may take to settle
    draftTTL      time.Duration // session TTL restored on compensation
    now           func() time.Time
}

// NewCheckout wires a checkout orchestrator.
func NewCheckout(sessions SessionStore, orders OrderStore, gw PaymentGateway, paymentWindow, draftTTL time.Duration) *Checkout {
    return &Checkout{
        sessions:      sessions,
        orders:        orders,
        gateway:       gw,
        paymentWindow: paymentWindow,
        draftTTL:      draftTTL,
        now:           func() time.Time { return time.Now().UTC() },
    }
}

// CheckoutResult is what the client needs to pay: the order, the
// hosted checkout link and its QR rendering.
type CheckoutResult struct {
    Order       *model.Order
    CheckoutURL string
    QRPNGBase64 string
}

// errAlreadyPending signals that the session was parked by a
// concurrent checkout; the caller falls back to returning the live
// order.
var errAlreadyPending = errors.New("session already pending payment")

// Checkout runs the orchestration for one session.  Re-invoking it on
// a PENDING_PAYMENT session returns the existing unexpired order
// instead of creating a duplicate.
func (c *Checkout) Checkout(ctx context.Context, sessionID string) (*CheckoutResult, error) {
    // Idempotency fast path: a session already parked for payment
    // returns its live order.
    s, err := c.sessions.Get(ctx, sessionID)
    if err != nil {
        if errors.Is(err, ErrNotFound) {
            return nil, &NotFoundError{Resource: "session"}
        }
        return nil, err
    }
    if s.State == model.SessionPendingPayment {
        return c.existingOrder(ctx, sessionID)
    }

    now := c.now()
    order := &model.Order{
        Ref:       uuid.NewString(),
        SessionID: sessionID,
        Status:    model.OrderPending,
        ExpiresAt: now.Add(c.paymentWindow),
        CreatedAt: now,
        UpdatedAt: now,
    }
    _, err = c.sessions.Mutate(ctx, sessionID, func(tx SessionTx, s *model.BookingSession) error {
        if s.LapsedAt(c.now()) {
            return &NotFoundError{Resource: "session"}
        }
        switch s.State {
        case model.SessionDraft:
        case model.SessionPendingPayment:
            return errAlreadyPending
        default:
            return &ConflictError{Reason: "session is " + string(s.State)}
        }
        if len(s.Items.Seats) == 0 {
            return &ValidationError{Reason: "session has no seats"}
        }
        order.AmountCents = s.Pricing.TotalCents
        if err := tx.InsertOrder(order); err != nil {
            return err
        }
        // Re-acquire the full seat set instead of blindly extending:
        // locks this session still holds refresh to the payment window,
        // and a seat lost to lock expiry surfaces as a conflict here
        // rather than being sold twice.
        lost, err := tx.AcquireSeats(s.Items.Seats, c.paymentWindow)
        if err != nil {
            return err
        }
        if len(lost) > 0 {
            return &ConflictError{Reason: "seats no longer held", SeatIDs: lost}
        }
        s.State = model.SessionPendingPayment
        s.ExpiresAt = order.ExpiresAt
        s.UpdatedAt = now
        return nil
    })
    if err != nil {
        if errors.Is(err, errAlreadyPending) {
            return c.existingOrder(ctx, sessionID)
        }
        if errors.Is(err, ErrNotFound) {
            return nil, &NotFoundError{Resource: "session"}
        }
        return nil, err
    }

    res, gwErr := c.gateway.CreateCheckout(ctx, gateway.CheckoutRequest{
        OrderRef:    order.Ref,
        AmountCents: order.AmountCents,
    })
    if gwErr != nil {
        c.compensate(ctx, sessionID, order.ID)
        return nil, &GatewayError{Op: "create checkout", Err: gwErr}
    }

    if err := c.orders.AttachProvider(ctx, order.ID, res.ProviderRef, res.CheckoutURL); err != nil {
        return nil, err
    }
    order.ProviderRef = res.ProviderRef
    order.CheckoutURL = res.CheckoutURL
    return buildResult(order)
}

// existingOrder serves the idempotent re-checkout: the session's live
// order is returned as-is; with no live order left the client must
// wait for reconciliation to move the session back to DRAFT.
func (c *Checkout) existingOrder(ctx context.Context, sessionID string) (*CheckoutResult, error) {
    o, err := c.orders.LiveBySession(ctx, sessionID)
    if err != nil {
        if errors.Is(err, ErrNotFound) {
            return nil, &ConflictError{Reason: "payment attempt expired, retry later"}
        }
        return nil, err
    }
    return buildResult(o)
}

// compensate rolls the checkout back after a gateway failure: the
// order is discarded and the session returns to DRAFT with its locks
// unchanged, so no session is ever parked without an order.
func (c *Checkout) compensate(ctx context.Context, sessionID string, orderID uint64) {
    _, err := c.sessions.Mutate(ctx, sessionID, func(tx SessionTx, s *model.BookingSession) error {
        if err := tx.DeleteOrder(orderID); err != nil {
            return err
        }
        if s.State == model.SessionPendingPayment {
            s.State = model.SessionDraft
            now := c.now()
            s.UpdatedAt = now
            s.ExpiresAt = now.Add(c.draftTTL)
        }
        return nil
    })
    if err != nil {
        log.Printf("checkout: compensation for session %s failed: %v", sessionID, err)
    }
}

func buildResult(o *model.Order) (*CheckoutResult, error) {
    qr := ""
    if o.CheckoutURL != "" {
        var err error
        qr, err = gateway.QRPNGBase64(o.CheckoutURL)
        if err != nil {
            // The link still works without its QR rendering.
            log.Printf("checkout: qr encode failed for order %s: %v", o.Ref, err)
        }
    }
    return &CheckoutResult{Order: o, CheckoutURL: o.CheckoutURL, QRPNGBase64: qr}, nil
}
