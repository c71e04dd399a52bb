package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/hoangvu/cinema-booking/internal/model"
    "github.com/hoangvu/cinema-booking/internal/service"
)

// SessionHandler exposes the booking-session lifecycle over HTTP.  All
// routes run behind OptionalAuth: sessions may be anonymous, and the
// opaque session id in the path is the capability to act on one.
type SessionHandler struct {
    Sessions *service.Sessions
    Checkout *service.Checkout
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(sessions *service.Sessions, checkout *service.Checkout) *SessionHandler {
    if sessions == nil || checkout == nil {
        panic("nil service passed to NewSessionHandler")
    }
    return &SessionHandler{Sessions: sessions, Checkout: checkout}
}

// Create handles POST /v1/sessions.  The body names the showtime and
// an optional initial seat and combo selection; all initial seats are
// locked all-or-nothing.
func (h *SessionHandler) Create(c echo.Context) error {
    var body struct {
        ShowtimeID uint64            `json:"showtime_id"`
        SeatIDs    []uint64          `json:"seat_ids"`
        Combos     []model.ComboLine `json:"combos"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if body.ShowtimeID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "showtime_id is required"})
    }
    s, err := h.Sessions.Create(c.Request().Context(), service.CreateSessionInput{
        ShowtimeID: body.ShowtimeID,
        SeatIDs:    body.SeatIDs,
        Combos:     body.Combos,
        OwnerID:    optionalUserID(c),
    })
    if err != nil {
        return writeServiceError(c, err)
    }
    return c.JSON(http.StatusCreated, toSessionResponse(s))
}

// Get handles GET /v1/sessions/:id.
func (h *SessionHandler) Get(c echo.Context) error {
    s, err := h.Sessions.Get(c.Request().Context(), c.Param("id"))
    if err != nil {
        return writeServiceError(c, err)
    }
    return c.JSON(http.StatusOK, toSessionResponse(s))
}

// Touch handles POST /v1/sessions/:id/touch.  It refreshes the DRAFT
// TTL and the seat locks without changing any items.
func (h *SessionHandler) Touch(c echo.Context) error {
    s, err := h.Sessions.Touch(c.Request().Context(), c.Param("id"))
    if err != nil {
        return writeServiceError(c, err)
    }
    return c.JSON(http.StatusOK, toSessionResponse(s))
}

// Cancel handles DELETE /v1/sessions/:id.  The session moves to
// CANCELED and its seats free up immediately.
func (h *SessionHandler) Cancel(c echo.Context) error {
    s, err := h.Sessions.Cancel(c.Request().Context(), c.Param("id"))
    if err != nil {
        return writeServiceError(c, err)
    }
    return c.JSON(http.StatusOK, toSessionResponse(s))
}

// SetSeats handles PUT /v1/sessions/:id/seats with the full desired
// seat selection; the service diffs against the current one.
func (h *SessionHandler) SetSeats(c echo.Context) error {
    var body struct {
        SeatIDs []uint64 `json:"seat_ids"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    s, err := h.Sessions.SetSeats(c.Request().Context(), c.Param("id"), body.SeatIDs)
    if err != nil {
        return writeServiceError(c, err)
    }
    return c.JSON(http.StatusOK, toSessionResponse(s))
}

// SetCombos handles PUT /v1/sessions/:id/combos with the full desired
// combo lines.
func (h *SessionHandler) SetCombos(c echo.Context) error {
    var body struct {
        Combos []model.ComboLine `json:"combos"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    s, err := h.Sessions.SetCombos(c.Request().Context(), c.Param("id"), body.Combos)
    if err != nil {
        return writeServiceError(c, err)
    }
    return c.JSON(http.StatusOK, toSessionResponse(s))
}

// ApplyCoupon handles PUT /v1/sessions/:id/coupon.  Requires an
// authenticated caller owning the session.
func (h *SessionHandler) ApplyCoupon(c echo.Context) error {
    var body struct {
        Code string `json:"code"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if body.Code == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "code is required"})
    }
    s, err := h.Sessions.SetCoupon(c.Request().Context(), c.Param("id"), body.Code, optionalUserID(c))
    if err != nil {
        return writeServiceError(c, err)
    }
    return c.JSON(http.StatusOK, toSessionResponse(s))
}

// RemoveCoupon handles DELETE /v1/sessions/:id/coupon.
func (h *SessionHandler) RemoveCoupon(c echo.Context) error {
    s, err := h.Sessions.RemoveCoupon(c.Request().Context(), c.Param("id"), optionalUserID(c))
    if err != nil {
        return writeServiceError(c, err)
    }
    return c.JSON(http.StatusOK, toSessionResponse(s))
}

// Preview handles POST /v1/sessions/:id/pricing/preview.  It prices
// the session with an optional candidate coupon without persisting
// anything.
func (h *SessionHandler) Preview(c echo.Context) error {
    var body struct {
        Code *string `json:"coupon_code"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    p, err := h.Sessions.Preview(c.Request().Context(), c.Param("id"), body.Code, optionalUserID(c))
    if err != nil {
        return writeServiceError(c, err)
    }
    return c.JSON(http.StatusOK, toPricingResponse(p))
}

// StartCheckout handles POST /v1/sessions/:id/checkout.  The session
// parks in PENDING_PAYMENT and the hosted payment link comes back with
// its QR rendering; re-invoking returns the existing live order.
func (h *SessionHandler) StartCheckout(c echo.Context) error {
    res, err := h.Checkout.Checkout(c.Request().Context(), c.Param("id"))
    if err != nil {
        return writeServiceError(c, err)
    }
    return c.JSON(http.StatusCreated, echo.Map{
        "order_ref":     res.Order.Ref,
        "amount_cents":  res.Order.AmountCents,
        "expires_at":    res.Order.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z"),
        "checkout_url":  res.CheckoutURL,
        "qr_png_base64": res.QRPNGBase64,
    })
}
