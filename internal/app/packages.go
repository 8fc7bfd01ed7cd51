package app

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ratecard-service/internal/money"
	"ratecard-service/internal/pricing"
	"ratecard-service/internal/ratecard"
)

// selectionReq is the wire form of a pricing selection. Dates are YYYY-MM-DD.
type selectionReq struct {
	TimeClassID       string                      `json:"timeClassId"`
	SpotLengthSec     int                         `json:"spotLengthSec" binding:"gte=0"`
	Frequency         string                      `json:"frequency" binding:"required"`
	StartDate         string                      `json:"startDate"`
	EndDate           string                      `json:"endDate"`
	CustomDates       []string                    `json:"customDates"`
	TimesPerFrequency *int                        `json:"timesPerFrequency"`
	SelectedWeekdays  []bool                      `json:"selectedWeekdays"`
	Overrides         map[string][]string         `json:"perDateTimeClassOverrides"`
	TimeClasses       []pricing.ExternalTimeClass `json:"timeClasses"`
}

// toSelection converts the request. A missing timesPerFrequency means one spot
// and a missing weekday mask means every day.
func (r selectionReq) toSelection() (pricing.Selection, error) {
	freq, err := pricing.ParseFrequency(r.Frequency)
	if err != nil {
		return pricing.Selection{}, err
	}
	sel := pricing.Selection{
		TimeClassID:       strings.TrimSpace(r.TimeClassID),
		SpotLengthSec:     r.SpotLengthSec,
		Frequency:         freq,
		TimesPerFrequency: 1,
		SelectedWeekdays:  pricing.AllWeekdays(),
	}
	if r.TimesPerFrequency != nil {
		if *r.TimesPerFrequency < 0 {
			return pricing.Selection{}, errors.New("timesPerFrequency must not be negative")
		}
		sel.TimesPerFrequency = *r.TimesPerFrequency
	}
	if r.SelectedWeekdays != nil {
		if len(r.SelectedWeekdays) != 7 {
			return pricing.Selection{}, errors.New("selectedWeekdays needs 7 entries, Sunday first")
		}
		copy(sel.SelectedWeekdays[:], r.SelectedWeekdays)
	}
	if r.StartDate != "" {
		if sel.StartDate, err = pricing.ParseDate(r.StartDate); err != nil {
			return pricing.Selection{}, fmt.Errorf("invalid startDate: %w", err)
		}
	}
	if r.EndDate != "" {
		if sel.EndDate, err = pricing.ParseDate(r.EndDate); err != nil {
			return pricing.Selection{}, fmt.Errorf("invalid endDate: %w", err)
		}
	}
	if !sel.StartDate.IsZero() && !sel.EndDate.IsZero() && sel.EndDate.Before(sel.StartDate) {
		return pricing.Selection{}, errors.New("startDate must not be after endDate")
	}
	for _, s := range r.CustomDates {
		d, err := pricing.ParseDate(s)
		if err != nil {
			return pricing.Selection{}, fmt.Errorf("invalid custom date %q", s)
		}
		sel.CustomDates = append(sel.CustomDates, d)
	}
	if len(r.Overrides) > 0 {
		sel.Overrides = make(map[string][]string, len(r.Overrides))
		for k, ids := range r.Overrides {
			d, err := pricing.ParseDate(k)
			if err != nil {
				return pricing.Selection{}, fmt.Errorf("invalid override date %q", k)
			}
			sel.Overrides[pricing.DateKey(d)] = ids
		}
	}
	return sel, nil
}

type displaySummary struct {
	CostPerSpot string `json:"costPerSpot"`
	Subtotal    string `json:"subtotal"`
	VAT         string `json:"vat"`
	Total       string `json:"total"`
}

func formatSummary(s pricing.Summary) displaySummary {
	return displaySummary{
		CostPerSpot: money.Format(s.CostPerSpot),
		Subtotal:    money.Format(s.Subtotal),
		VAT:         money.Format(s.VAT),
		Total:       money.Format(s.Total),
	}
}

type quoteResp struct {
	envelope
	pricing.Quote
	TimeClasses []pricing.TimeClass `json:"timeClasses"`
	Display     displaySummary      `json:"display"`
}

// POST /api/packages/quote
func (a *App) QuoteHandler(c *gin.Context) {
	var req selectionReq
	if !bindJSON(c, &req) {
		return
	}
	sel, err := req.toSelection()
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	calc := pricing.NewCalculator(pricing.NormalizeTimeClasses(req.TimeClasses))
	if err := calc.Validate(sel); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	q := calc.Quote(sel)
	a.Metrics.Quotes.Inc()
	c.JSON(http.StatusOK, quoteResp{
		envelope:    success,
		Quote:       q,
		TimeClasses: calc.TimeClasses(),
		Display:     formatSummary(q.Summary),
	})
}

type submitPackageReq struct {
	selectionReq
	ClientName  string `json:"clientName" binding:"required"`
	ClientEmail string `json:"clientEmail" binding:"required,email"`
	Notes       string `json:"notes"`
}

// POST /api/rate-cards/:id/packages
func (a *App) SubmitPackageHandler(c *gin.Context) {
	var req submitPackageReq
	if !bindJSON(c, &req) {
		return
	}
	sel, err := req.toSelection()
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	pkg := ratecard.Package{
		RateCardID:  c.Param("id"),
		ClientName:  strings.TrimSpace(req.ClientName),
		ClientEmail: strings.TrimSpace(req.ClientEmail),
		Notes:       req.Notes,
	}
	calc := pricing.NewCalculator(pricing.NormalizeTimeClasses(req.TimeClasses))
	_, err = calc.Submit(sel, func(data pricing.PackageData) error {
		pkg.Data = data
		return a.Store.CreatePackage(c.Request.Context(), &pkg)
	})
	if errors.Is(err, pricing.ErrNothingToPrice) || errors.Is(err, pricing.ErrUnknownTimeClass) {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, struct {
		envelope
		*ratecard.Package
		Display displaySummary `json:"display"`
	}{success, &pkg, formatSummary(pkg.Data.Summary)})
}

// GET /api/packages/:id
func (a *App) GetPackageHandler(c *gin.Context) {
	pkg, err := a.Store.GetPackage(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, struct {
		envelope
		*ratecard.Package
		Display displaySummary `json:"display"`
	}{success, pkg, formatSummary(pkg.Data.Summary)})
}
