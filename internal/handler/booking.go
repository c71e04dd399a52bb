package handler

import (
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/hoangvu/cinema-booking/internal/repository"
)

// BookingHandler serves materialized bookings to customers.
type BookingHandler struct {
    Bookings *repository.BookingRepo
}

// NewBookingHandler constructs a BookingHandler.
func NewBookingHandler(bookings *repository.BookingRepo) *BookingHandler {
    if bookings == nil {
        panic("nil repository passed to NewBookingHandler")
    }
    return &BookingHandler{Bookings: bookings}
}

// MyBookings handles GET /v1/my-bookings.  Requires authentication;
// returns the caller's bookings newest first with showtime details and
// seat labels.
func (h *BookingHandler) MyBookings(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    details, err := h.Bookings.ListByUser(c.Request().Context(), userID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, echo.Map{"bookings": details})
}

// GetBooking handles GET /v1/bookings/:id.  Only the booking's owner
// may read it; anonymous bookings are reachable through the payment
// endpoints only.
func (h *BookingHandler) GetBooking(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || id == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
    }
    b, tickets, err := h.Bookings.GetByID(c.Request().Context(), id)
    if err != nil {
        if err == repository.ErrNotFound {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    if b.UserID == nil || *b.UserID != userID {
        return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
    }
    type ticketPart struct {
        SeatID     uint64 `json:"seat_id"`
        PriceCents int64  `json:"price_cents"`
        Status     string `json:"status"`
    }
    parts := make([]ticketPart, 0, len(tickets))
    for _, t := range tickets {
        parts = append(parts, ticketPart{SeatID: t.SeatID, PriceCents: t.PriceCents, Status: t.Status})
    }
    return c.JSON(http.StatusOK, echo.Map{
        "id":                 b.ID,
        "showtime_id":        b.ShowtimeID,
        "status":             b.Status,
        "total_amount_cents": b.TotalAmountCents,
        "tickets":            parts,
    })
}
