package handler

import (
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/hoangvu/cinema-booking/internal/repository"
)

// CatalogHandler serves the public read side of the catalog: showtime
// details and the live seat map.  These routes sit behind the response
// cache middleware with a short TTL; the seat map tolerates that
// because clients also receive pub/sub updates and every mutation is
// revalidated against the locks at write time.
type CatalogHandler struct {
    Catalog *repository.CatalogRepo
}

// NewCatalogHandler constructs a CatalogHandler.
func NewCatalogHandler(catalog *repository.CatalogRepo) *CatalogHandler {
    if catalog == nil {
        panic("nil repository passed to NewCatalogHandler")
    }
    return &CatalogHandler{Catalog: catalog}
}

// Showtime handles GET /v1/showtimes/:id.
func (h *CatalogHandler) Showtime(c echo.Context) error {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || id == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showtime id"})
    }
    st, err := h.Catalog.Showtime(c.Request().Context(), id)
    if err != nil {
        if err == repository.ErrNotFound {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "showtime not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, echo.Map{
        "id":               st.ID,
        "movie_title":      st.MovieTitle,
        "hall_name":        st.HallName,
        "starts_at":        st.StartsAt.UTC().Format("2006-01-02T15:04:05Z"),
        "base_price_cents": st.BasePriceCents,
    })
}

// SeatMap handles GET /v1/showtimes/:id/seats.  Every seat of the hall
// comes back as FREE, LOCKED or SOLD.
func (h *CatalogHandler) SeatMap(c echo.Context) error {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || id == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showtime id"})
    }
    seats, err := h.Catalog.SeatMap(c.Request().Context(), id)
    if err != nil {
        if err == repository.ErrNotFound {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "showtime not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, echo.Map{"showtime_id": id, "seats": seats})
}
