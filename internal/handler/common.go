package handler

import (
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/hoangvu/cinema-booking/internal/model"
    "github.com/hoangvu/cinema-booking/internal/pricing"
    "github.com/hoangvu/cinema-booking/internal/service"
)

// writeServiceError translates the service layer's typed errors into
// HTTP responses.  Seat conflicts carry the contested ids so the
// client can re-render the seat map; voucher rejections carry the
// machine-readable reason.  Anything unrecognized is a 500 with a
// generic message so internals never leak.
func writeServiceError(c echo.Context, err error) error {
    var verr *pricing.VoucherError
    if errors.As(err, &verr) {
        return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "voucher rejected", "reason": verr.Reason})
    }
    var vald *service.ValidationError
    if errors.As(err, &vald) {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": vald.Reason})
    }
    var conf *service.ConflictError
    if errors.As(err, &conf) {
        resp := echo.Map{"error": conf.Reason}
        if len(conf.SeatIDs) > 0 {
            resp["seat_ids"] = conf.SeatIDs
        }
        return c.JSON(http.StatusConflict, resp)
    }
    var nf *service.NotFoundError
    if errors.As(err, &nf) {
        return c.JSON(http.StatusNotFound, echo.Map{"error": nf.Resource + " not found"})
    }
    var unauth *service.UnauthorizedError
    if errors.As(err, &unauth) {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": unauth.Reason})
    }
    var gw *service.GatewayError
    if errors.As(err, &gw) {
        return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment provider unavailable"})
    }
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

// getUserID extracts the authenticated user's id from the context.
// Returns an error when the JWT middleware did not run or rejected the
// token.
func getUserID(c echo.Context) (uint64, error) {
    if v := c.Get("user_id"); v != nil {
        if id, ok := v.(uint64); ok && id > 0 {
            return id, nil
        }
    }
    return 0, echo.ErrUnauthorized
}

// optionalUserID returns the authenticated user's id or nil on
// anonymous requests; routes behind OptionalAuth use it.
func optionalUserID(c echo.Context) *uint64 {
    if v := c.Get("user_id"); v != nil {
        if id, ok := v.(uint64); ok && id > 0 {
            return &id
        }
    }
    return nil
}

// sessionResponse is the wire form of a booking session.
type sessionResponse struct {
    ID         string            `json:"id"`
    ShowtimeID uint64            `json:"showtime_id"`
    State      string            `json:"state"`
    Seats      []uint64          `json:"seats"`
    Combos     []model.ComboLine `json:"combos"`
    Pricing    pricingResponse   `json:"pricing"`
    CouponCode *string           `json:"coupon_code,omitempty"`
    ExpiresAt  string            `json:"expires_at"`
}

type pricingResponse struct {
    SubtotalCents int64 `json:"subtotal_cents"`
    DiscountCents int64 `json:"discount_cents"`
    TotalCents    int64 `json:"total_cents"`
}

func toSessionResponse(s *model.BookingSession) sessionResponse {
    return sessionResponse{
        ID:         s.ID,
        ShowtimeID: s.ShowtimeID,
        State:      string(s.State),
        Seats:      s.Items.Seats,
        Combos:     s.Items.Combos,
        Pricing:    toPricingResponse(s.Pricing),
        CouponCode: s.CouponCode,
        ExpiresAt:  s.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z"),
    }
}

func toPricingResponse(p model.Pricing) pricingResponse {
    return pricingResponse{
        SubtotalCents: p.SubtotalCents,
        DiscountCents: p.DiscountCents,
        TotalCents:    p.TotalCents,
    }
}
