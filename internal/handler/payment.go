package handler

import (
    "encoding/json"
    "errors"
    "io"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/hoangvu/cinema-booking/internal/gateway"
    "github.com/hoangvu/cinema-booking/internal/service"
)

// PaymentHandler funnels the three payment-confirmation triggers into
// the reconciler: the customer's return redirect, the client status
// poll and the provider's webhook.  The triggers race and repeat
// freely; reconciliation makes them collapse to one booking.
type PaymentHandler struct {
    Reconciler *service.Reconciler
    Orders     service.OrderStore
    Gateway    service.PaymentGateway
    Secret     string // shared HMAC secret for confirmation signatures
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(rec *service.Reconciler, orders service.OrderStore, gw service.PaymentGateway, secret string) *PaymentHandler {
    if rec == nil || orders == nil || gw == nil {
        panic("nil dependency passed to NewPaymentHandler")
    }
    return &PaymentHandler{Reconciler: rec, Orders: orders, Gateway: gw, Secret: secret}
}

// Return handles GET /v1/payments/return, the redirect the provider
// sends the customer back through.  Query parameters carry the order
// reference, reported status, transaction id and signature.  The
// redirect is untrusted input: a bad signature downgrades the reported
// status to a fresh provider query instead of being believed.
func (h *PaymentHandler) Return(c echo.Context) error {
    orderRef := c.QueryParam("order_ref")
    if orderRef == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "order_ref is required"})
    }
    reported := gateway.Status(c.QueryParam("status"))
    txnID := c.QueryParam("txn_id")
    sig := c.QueryParam("signature")

    o, err := h.Orders.GetByRef(c.Request().Context(), orderRef)
    if err != nil {
        if errors.Is(err, service.ErrNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
    }

    sigValid := sig != "" && gateway.VerifyConfirmation(h.Secret, orderRef, o.AmountCents, txnID, reported, sig)
    if !sigValid {
        // Unsigned or tampered redirect: ask the provider directly.
        fresh, err := h.Gateway.GetStatus(c.Request().Context(), o.ProviderRef)
        if err != nil {
            return writeServiceError(c, &service.GatewayError{Op: "status query", Err: err})
        }
        reported = fresh
        txnID = ""
    }

    out, err := h.Reconciler.Reconcile(c.Request().Context(), orderRef, reported, service.Confirmation{
        ProviderTxnID:  txnID,
        SignatureValid: sigValid,
    })
    if err != nil {
        return writeServiceError(c, err)
    }
    return c.JSON(http.StatusOK, outcomeResponse(out))
}

// Status handles GET /v1/orders/:ref/status, the client poll.  It
// queries the provider for the live status, reconciles it, and returns
// where the order stands now.
func (h *PaymentHandler) Status(c echo.Context) error {
    orderRef := c.Param("ref")
    o, err := h.Orders.GetByRef(c.Request().Context(), orderRef)
    if err != nil {
        if errors.Is(err, service.ErrNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
    }

    // A settled order answers from our own state; no provider call.
    if o.BookingID != nil {
        out, err := h.Reconciler.Reconcile(c.Request().Context(), orderRef, gateway.StatusPaid, service.Confirmation{})
        if err != nil {
            return writeServiceError(c, err)
        }
        return c.JSON(http.StatusOK, outcomeResponse(out))
    }

    reported, err := h.Gateway.GetStatus(c.Request().Context(), o.ProviderRef)
    if err != nil {
        return writeServiceError(c, &service.GatewayError{Op: "status query", Err: err})
    }
    out, err := h.Reconciler.Reconcile(c.Request().Context(), orderRef, reported, service.Confirmation{})
    if err != nil {
        return writeServiceError(c, err)
    }
    return c.JSON(http.StatusOK, outcomeResponse(out))
}

// webhookPayload is the provider's asynchronous confirmation.
type webhookPayload struct {
    OrderRef    string `json:"order_ref"`
    Status      string `json:"status"`
    AmountCents int64  `json:"amount_cents"`
    TxnID       string `json:"txn_id"`
    Signature   string `json:"signature"`
}

// Webhook handles POST /v1/payments/webhook.  The signature is
// mandatory here: webhooks arrive with no user in the loop, so an
// unverifiable payload is rejected outright.  The provider retries on
// non-2xx, and replays are harmless to us.
func (h *PaymentHandler) Webhook(c echo.Context) error {
    raw, err := io.ReadAll(io.LimitReader(c.Request().Body, 64<<10))
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
    }
    var p webhookPayload
    if err := json.Unmarshal(raw, &p); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
    }
    if p.OrderRef == "" || p.Status == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "order_ref and status are required"})
    }
    reported := gateway.Status(p.Status)
    if !gateway.VerifyConfirmation(h.Secret, p.OrderRef, p.AmountCents, p.TxnID, reported, p.Signature) {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid signature"})
    }

    out, err := h.Reconciler.Reconcile(c.Request().Context(), p.OrderRef, reported, service.Confirmation{
        ProviderTxnID:  p.TxnID,
        SignatureValid: true,
        RawPayload:     raw,
    })
    if err != nil {
        return writeServiceError(c, err)
    }
    return c.JSON(http.StatusOK, outcomeResponse(out))
}

// outcomeResponse renders a reconciliation outcome: the order status
// and, when a booking exists (from this trigger or an earlier one),
// its id.
func outcomeResponse(out *service.Outcome) echo.Map {
    resp := echo.Map{
        "order_ref": out.Order.Ref,
        "status":    string(out.Order.Status),
    }
    if out.Booking != nil {
        resp["booking_id"] = out.Booking.ID
        resp["status"] = "PAID"
    }
    return resp
}
