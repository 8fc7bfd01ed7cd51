package app

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ratecard-service/internal/pricing"
	"ratecard-service/internal/ratecard"
)

type createBookingReq struct {
	RowID       string   `json:"rowId" binding:"required"`
	RateCardID  string   `json:"rateCardId"`
	ColumnIDs   []string `json:"columnIds"`
	ClientName  string   `json:"clientName" binding:"required"`
	ClientEmail string   `json:"clientEmail" binding:"required,email"`
	ClientPhone string   `json:"clientPhone"`
	Quantity    int      `json:"quantity" binding:"gte=0"`
	StartDate   string   `json:"startDate"`
	EndDate     string   `json:"endDate"`
	Notes       string   `json:"notes"`
}

// validateDates accepts empty dates; when both are set start may not follow end.
func (r createBookingReq) validateDates() string {
	var start, end string
	if r.StartDate != "" {
		t, err := pricing.ParseDate(r.StartDate)
		if err != nil {
			return "invalid startDate"
		}
		start = pricing.DateKey(t)
	}
	if r.EndDate != "" {
		t, err := pricing.ParseDate(r.EndDate)
		if err != nil {
			return "invalid endDate"
		}
		end = pricing.DateKey(t)
	}
	if start != "" && end != "" && end < start {
		return "startDate must not be after endDate"
	}
	return ""
}

// POST /api/rate-cards/:id/bookings
func (a *App) CreateBookingHandler(c *gin.Context) {
	var req createBookingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		a.Metrics.Bookings.WithLabelValues("invalid").Inc()
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	rateCardID := c.Param("id")
	if req.RateCardID != "" && req.RateCardID != rateCardID {
		a.Metrics.Bookings.WithLabelValues("invalid").Inc()
		fail(c, http.StatusBadRequest, "rateCardId does not match path")
		return
	}
	if msg := req.validateDates(); msg != "" {
		a.Metrics.Bookings.WithLabelValues("invalid").Inc()
		fail(c, http.StatusBadRequest, msg)
		return
	}

	b := ratecard.Booking{
		RateCardID:  rateCardID,
		RowID:       req.RowID,
		ColumnIDs:   req.ColumnIDs,
		ClientName:  strings.TrimSpace(req.ClientName),
		ClientEmail: strings.TrimSpace(req.ClientEmail),
		ClientPhone: req.ClientPhone,
		Quantity:    req.Quantity,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Notes:       req.Notes,
	}
	if err := a.Store.CreateBooking(c.Request.Context(), &b); err != nil {
		a.Metrics.Bookings.WithLabelValues("rejected").Inc()
		a.respondError(c, err)
		return
	}
	a.Metrics.Bookings.WithLabelValues("confirmed").Inc()
	c.JSON(http.StatusCreated, struct {
		envelope
		*ratecard.Booking
	}{success, &b})
}

// GET /api/rate-cards/:id/bookings
func (a *App) ListBookingsHandler(c *gin.Context) {
	bookings, err := a.Store.ListBookings(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "bookings": bookings})
}

// DELETE /api/bookings/:id
func (a *App) CancelBookingHandler(c *gin.Context) {
	if err := a.Store.CancelBooking(c.Request.Context(), c.Param("id")); err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, success)
}
