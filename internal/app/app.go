package app

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ratecard-service/internal/store"
)

type App struct {
	Store    store.Store
	Log      *slog.Logger
	Metrics  *Metrics
	Calendar *GoogleCalendarConfig
	Limiter  *RateLimiter
	Registry *prometheus.Registry
}

// envelope is the shape of every JSON response; entity fields are inlined
// next to it.
type envelope struct {
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
	BookingsCount int    `json:"bookingsCount,omitempty"`
}

var success = envelope{Success: true}

// Routes registers the API on router. auth guards operator mutations.
func (a *App) Routes(router *gin.Engine, auth gin.HandlerFunc) {
	if auth == nil {
		auth = func(c *gin.Context) { c.Next() }
	}
	router.Use(RequestID(), Logger(a.Log))

	router.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	if a.Registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})))
	}

	// OAuth2 callback (must be before auth middleware)
	router.GET("/oauth2callback", a.GoogleOAuth2CallbackHandler)

	api := router.Group("/api")
	{
		api.GET("/rate-cards/:id", a.GetRateCardHandler)
		api.GET("/tables/:tableId", a.GetTableHandler)

		bookings := api.Group("")
		if a.Limiter != nil {
			bookings.Use(a.Limiter.Limit())
		}
		bookings.POST("/rate-cards/:id/bookings", a.CreateBookingHandler)
		bookings.POST("/rate-cards/:id/packages", a.SubmitPackageHandler)
		api.POST("/packages/quote", a.QuoteHandler)

		admin := api.Group("", auth)
		{
			admin.POST("/rate-cards", a.CreateRateCardHandler)
			admin.POST("/rate-cards/:id/sections", a.CreateSectionHandler)
			admin.POST("/rate-cards/:id/sections/:sectionId/tables", a.CreateTableHandler)

			admin.POST("/tables/:tableId/columns", a.CreateColumnHandler)
			admin.DELETE("/tables/:tableId/columns/:columnId", a.DeleteColumnHandler)
			admin.POST("/tables/:tableId/rows", a.CreateRowHandler)
			admin.PUT("/tables/:tableId/rows/:rowId/cells", a.ReplaceCellsHandler)
			admin.PATCH("/tables/:tableId/rows/:rowId/cells", a.UpdateCellsHandler)
			admin.DELETE("/tables/:tableId/rows/:rowId", a.DeleteRowHandler)

			admin.GET("/rate-cards/:id/bookings", a.ListBookingsHandler)
			admin.DELETE("/bookings/:id", a.CancelBookingHandler)

			admin.GET("/packages/:id", a.GetPackageHandler)
			admin.POST("/packages/:id/calendar", a.PublishPackageHandler)
			admin.GET("/calendar/auth", a.GoogleAuthHandler)
		}
	}
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, envelope{Error: msg})
}

// respondError maps store errors onto HTTP statuses. Anything unrecognised is
// logged and hidden behind a generic message.
func (a *App) respondError(c *gin.Context, err error) {
	var conflict *store.ConflictError
	switch {
	case errors.As(err, &conflict):
		a.Metrics.DeleteConflicts.WithLabelValues(conflict.Entity).Inc()
		c.AbortWithStatusJSON(http.StatusConflict, envelope{Error: conflict.Error(), BookingsCount: conflict.BookingsCount})
	case errors.Is(err, store.ErrNotFound):
		fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrInvalid):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrAlreadyCancelled):
		fail(c, http.StatusConflict, err.Error())
	default:
		a.Log.Error("request failed",
			slog.String("rid", RID(c)),
			slog.String("path", c.FullPath()),
			slog.String("err", err.Error()))
		fail(c, http.StatusInternalServerError, "internal error")
	}
}

// bindJSON decodes and validates the body, answering 400 on failure.
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}
