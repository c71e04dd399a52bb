package router // package router defines how HTTP routes are registered for the API

import (
    "github.com/labstack/echo/v4" // import the Echo web framework to handle routing

    "github.com/hoangvu/cinema-booking/internal/handler"    // import the handlers that implement business logic
    "github.com/hoangvu/cinema-booking/internal/middleware" // import middleware for JWT authentication
)

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance.  Currently it exposes only a health
// check, used by load balancers and monitoring to verify the service.
func RegisterRoutes(e *echo.Echo) {
    e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the authentication endpoints under /v1/auth.
// Registration and login both return a short-lived access token; there
// is no refresh flow, clients simply log in again.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler) {
    g := e.Group("/v1/auth")
    g.POST("/register", a.Register)
    g.POST("/login", a.Login)
}

// RegisterCatalog registers the public browse endpoints: showtime
// details and the live seat map.  No authentication; guests pick seats
// before deciding whether to log in.
func RegisterCatalog(e *echo.Echo, h *handler.CatalogHandler) {
    e.GET("/v1/showtimes/:id", h.Showtime)
    e.GET("/v1/showtimes/:id/seats", h.SeatMap)
}

// RegisterSessions registers the booking-session lifecycle under
// /v1/sessions.  The routes run behind OptionalAuth: anyone holding
// the opaque session id may act on the session, and a valid bearer
// token additionally attaches the user identity (required for voucher
// operations, which the service enforces).
func RegisterSessions(e *echo.Echo, h *handler.SessionHandler, jwtSecret string) {
    g := e.Group("/v1/sessions")
    g.Use(middleware.OptionalAuth(jwtSecret))
    g.POST("", h.Create)
    g.GET("/:id", h.Get)
    g.POST("/:id/touch", h.Touch)
    g.DELETE("/:id", h.Cancel)
    g.PUT("/:id/seats", h.SetSeats)
    g.PUT("/:id/combos", h.SetCombos)
    g.PUT("/:id/coupon", h.ApplyCoupon)
    g.DELETE("/:id/coupon", h.RemoveCoupon)
    g.POST("/:id/pricing/preview", h.Preview)
    g.POST("/:id/checkout", h.StartCheckout)
}

// RegisterPayments registers the three reconciliation triggers.  None
// of them require authentication: the return redirect and webhook
// arrive from the provider side, and the status poll is keyed by the
// unguessable order reference.
func RegisterPayments(e *echo.Echo, h *handler.PaymentHandler) {
    e.GET("/v1/payments/return", h.Return)
    e.GET("/v1/orders/:ref/status", h.Status)
    e.POST("/v1/payments/webhook", h.Webhook)
}

// RegisterBookings registers the customer-facing booking reads behind
// JWT authentication.
func RegisterBookings(e *echo.Echo, h *handler.BookingHandler, jwtSecret string) {
    g := e.Group("/v1")
    g.Use(middleware.JWTAuth(jwtSecret))
    g.GET("/my-bookings", h.MyBookings)
    g.GET("/bookings/:id", h.GetBooking)
}
