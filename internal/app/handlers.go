package app

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ratecard-service/internal/ratecard"
)

type createRateCardReq struct {
	Name        string `json:"name" binding:"required"`
	AgencyID    string `json:"agencyId"`
	Description string `json:"description"`
}

// POST /api/rate-cards
func (a *App) CreateRateCardHandler(c *gin.Context) {
	var req createRateCardReq
	if !bindJSON(c, &req) {
		return
	}
	rc := ratecard.RateCard{Name: req.Name, AgencyID: req.AgencyID, Description: req.Description}
	if err := a.Store.CreateRateCard(c.Request.Context(), &rc); err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, struct {
		envelope
		*ratecard.RateCard
	}{success, &rc})
}

// GET /api/rate-cards/:id
func (a *App) GetRateCardHandler(c *gin.Context) {
	rc, err := a.Store.GetRateCard(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, struct {
		envelope
		*ratecard.RateCard
	}{success, rc})
}

type namedReq struct {
	Name string `json:"name" binding:"required"`
}

// POST /api/rate-cards/:id/sections
func (a *App) CreateSectionHandler(c *gin.Context) {
	var req namedReq
	if !bindJSON(c, &req) {
		return
	}
	sec := ratecard.Section{RateCardID: c.Param("id"), Name: req.Name}
	if err := a.Store.CreateSection(c.Request.Context(), &sec); err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, struct {
		envelope
		*ratecard.Section
	}{success, &sec})
}

// POST /api/rate-cards/:id/sections/:sectionId/tables
func (a *App) CreateTableHandler(c *gin.Context) {
	var req namedReq
	if !bindJSON(c, &req) {
		return
	}
	t := ratecard.Table{RateCardID: c.Param("id"), SectionID: c.Param("sectionId"), Name: req.Name}
	if err := a.Store.CreateTable(c.Request.Context(), &t); err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, struct {
		envelope
		*ratecard.Table
	}{success, &t})
}

// GET /api/tables/:tableId
func (a *App) GetTableHandler(c *gin.Context) {
	t, err := a.Store.GetTable(c.Request.Context(), c.Param("tableId"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, struct {
		envelope
		*ratecard.Table
	}{success, t})
}

// Options may be sent as config.options or as a comma separated string.
type createColumnReq struct {
	Name     string                 `json:"name" binding:"required"`
	DataType string                 `json:"dataType" binding:"required"`
	Config   *ratecard.ColumnConfig `json:"config"`
	Options  string                 `json:"options"`
}

// POST /api/tables/:tableId/columns
func (a *App) CreateColumnHandler(c *gin.Context) {
	var req createColumnReq
	if !bindJSON(c, &req) {
		return
	}
	dt, err := ratecard.ParseDataType(req.DataType)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	cfg := req.Config
	if req.Options != "" {
		if cfg == nil {
			cfg = &ratecard.ColumnConfig{}
		}
		cfg.Options = ratecard.ParseOptions(req.Options)
	}
	if dt == ratecard.TypeDropdown && (cfg == nil || len(cfg.Options) == 0) {
		fail(c, http.StatusBadRequest, "dropdown columns need at least one option")
		return
	}

	col := ratecard.Column{TableID: c.Param("tableId"), Name: req.Name, DataType: dt, Config: cfg}
	if err := a.Store.CreateColumn(c.Request.Context(), &col); err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, struct {
		envelope
		*ratecard.Column
	}{success, &col})
}

// DELETE /api/tables/:tableId/columns/:columnId
func (a *App) DeleteColumnHandler(c *gin.Context) {
	if err := a.Store.DeleteColumn(c.Request.Context(), c.Param("tableId"), c.Param("columnId")); err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, success)
}

type createRowReq struct {
	IsBookable *bool           `json:"isBookable"`
	Cells      []ratecard.Cell `json:"cells"`
}

// POST /api/tables/:tableId/rows
// Rows are bookable unless isBookable is false.
func (a *App) CreateRowHandler(c *gin.Context) {
	var req createRowReq
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	row := ratecard.Row{TableID: c.Param("tableId"), IsBookable: true, Cells: req.Cells}
	if req.IsBookable != nil {
		row.IsBookable = *req.IsBookable
	}
	if err := a.Store.CreateRow(c.Request.Context(), &row); err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, struct {
		envelope
		*ratecard.Row
	}{success, &row})
}

type cellsReq struct {
	Cells []ratecard.Cell `json:"cells"`
}

// PUT /api/tables/:tableId/rows/:rowId/cells
func (a *App) ReplaceCellsHandler(c *gin.Context) {
	var req cellsReq
	if !bindJSON(c, &req) {
		return
	}
	row, err := a.Store.ReplaceCells(c.Request.Context(), c.Param("tableId"), c.Param("rowId"), req.Cells)
	if err != nil {
		a.respondError(c, err)
		return
	}
	a.Metrics.CellSaves.WithLabelValues(http.MethodPut).Inc()
	c.JSON(http.StatusOK, struct {
		envelope
		*ratecard.Row
	}{success, row})
}

// PATCH /api/tables/:tableId/rows/:rowId/cells
func (a *App) UpdateCellsHandler(c *gin.Context) {
	var req cellsReq
	if !bindJSON(c, &req) {
		return
	}
	if len(req.Cells) == 0 {
		fail(c, http.StatusBadRequest, "cells required")
		return
	}
	row, err := a.Store.UpsertCells(c.Request.Context(), c.Param("tableId"), c.Param("rowId"), req.Cells)
	if err != nil {
		a.respondError(c, err)
		return
	}
	a.Metrics.CellSaves.WithLabelValues(http.MethodPatch).Inc()
	c.JSON(http.StatusOK, struct {
		envelope
		*ratecard.Row
	}{success, row})
}

// DELETE /api/tables/:tableId/rows/:rowId
func (a *App) DeleteRowHandler(c *gin.Context) {
	if err := a.Store.DeleteRow(c.Request.Context(), c.Param("tableId"), c.Param("rowId")); err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, success)
}
