package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratecard-service/internal/ratecard"
	"ratecard-service/internal/store"
)

func newTestRouter(t *testing.T, auth gin.HandlerFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	a := &App{
		Store:    store.NewMemoryStore(),
		Log:      slog.New(slog.DiscardHandler),
		Metrics:  NewMetrics(reg),
		Registry: reg,
	}
	r := gin.New()
	a.Routes(r, auth)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body any, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "text/plain; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func create(t *testing.T, r http.Handler, path string, body any) string {
	t.Helper()
	w, out := do(t, r, http.MethodPost, path, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, true, out["success"])
	return out["id"].(string)
}

type seeded struct {
	card, table, price, row string
}

func seed(t *testing.T, r http.Handler) seeded {
	t.Helper()
	var s seeded
	s.card = create(t, r, "/api/rate-cards", gin.H{"name": "Radio One"})
	sec := create(t, r, "/api/rate-cards/"+s.card+"/sections", gin.H{"name": "Airtime"})
	s.table = create(t, r, "/api/rate-cards/"+s.card+"/sections/"+sec+"/tables", gin.H{"name": "Spots"})
	s.price = create(t, r, "/api/tables/"+s.table+"/columns", gin.H{"name": "Price", "dataType": "CURRENCY"})
	s.row = create(t, r, "/api/tables/"+s.table+"/rows", gin.H{
		"cells": []gin.H{{"columnId": s.price, "value": "1500"}},
	})
	return s
}

func TestDropdownCellRoundTrip(t *testing.T) {
	r := newTestRouter(t, nil)
	s := seed(t, r)

	col := create(t, r, "/api/tables/"+s.table+"/columns", gin.H{
		"name": "Slot", "dataType": "DROPDOWN", "options": "A,B,C",
	})
	w, _ := do(t, r, http.MethodPatch, "/api/tables/"+s.table+"/rows/"+s.row+"/cells", gin.H{
		"cells": []gin.H{{"columnId": col, "value": "B"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = do(t, r, http.MethodGet, "/api/tables/"+s.table, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var table ratecard.Table
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &table))

	row, ok := table.Row(s.row)
	require.True(t, ok)
	assert.Equal(t, "B", row.Value(col))
	assert.Equal(t, "1500", row.Value(s.price), "patch keeps other cells")

	column, ok := table.Column(col)
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B", "C"}, column.Config.Options)
	d, err := ratecard.Render(column, row.Value(col))
	require.NoError(t, err)
	require.NotNil(t, d.Badge)
	assert.Equal(t, "B", d.Badge.Label)
	assert.Equal(t, ratecard.OptionColor(1), d.Badge.Color)
}

func TestReplaceCellsBlanksMissingColumns(t *testing.T) {
	r := newTestRouter(t, nil)
	s := seed(t, r)
	name := create(t, r, "/api/tables/"+s.table+"/columns", gin.H{"name": "Slot", "dataType": "TEXT"})

	w, out := do(t, r, http.MethodPut, "/api/tables/"+s.table+"/rows/"+s.row+"/cells", gin.H{
		"cells": []gin.H{{"columnId": name, "value": "Breakfast"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, out["success"])

	var row ratecard.Row
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &row))
	assert.Equal(t, "Breakfast", row.Value(name))
	assert.Equal(t, "", row.Value(s.price))
}

func TestDeleteRowWithBookingsConflicts(t *testing.T) {
	r := newTestRouter(t, nil)
	s := seed(t, r)

	var ids []string
	for range 2 {
		ids = append(ids, create(t, r, "/api/rate-cards/"+s.card+"/bookings", gin.H{
			"rowId":       s.row,
			"rateCardId":  s.card,
			"columnIds":   []string{s.price},
			"clientName":  "Acme",
			"clientEmail": "ads@acme.test",
			"quantity":    1,
		}))
	}

	w, out := do(t, r, http.MethodDelete, "/api/tables/"+s.table+"/rows/"+s.row, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, float64(2), out["bookingsCount"])
	assert.Contains(t, out["error"], "2 bookings")

	w, out = do(t, r, http.MethodDelete, "/api/tables/"+s.table+"/columns/"+s.price, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, float64(2), out["bookingsCount"])

	w, _ = do(t, r, http.MethodGet, "/api/tables/"+s.table, nil)
	var table ratecard.Table
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &table))
	_, ok := table.Row(s.row)
	assert.True(t, ok, "row survives a rejected delete")

	for _, id := range ids {
		w, _ = do(t, r, http.MethodDelete, "/api/bookings/"+id, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w, _ = do(t, r, http.MethodDelete, "/api/bookings/"+ids[0], nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = do(t, r, http.MethodDelete, "/api/tables/"+s.table+"/rows/"+s.row, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateBookingValidation(t *testing.T) {
	r := newTestRouter(t, nil)
	s := seed(t, r)
	base := func() gin.H {
		return gin.H{"rowId": s.row, "clientName": "Acme", "clientEmail": "ads@acme.test"}
	}

	tests := []struct {
		name   string
		mutate func(gin.H)
		status int
	}{
		{"missing name", func(b gin.H) { delete(b, "clientName") }, http.StatusBadRequest},
		{"bad email", func(b gin.H) { b["clientEmail"] = "nope" }, http.StatusBadRequest},
		{"negative quantity", func(b gin.H) { b["quantity"] = -1 }, http.StatusBadRequest},
		{"bad date", func(b gin.H) { b["startDate"] = "06/01/2024" }, http.StatusBadRequest},
		{"reversed dates", func(b gin.H) { b["startDate"], b["endDate"] = "2024-06-05", "2024-06-01" }, http.StatusBadRequest},
		{"other card", func(b gin.H) { b["rateCardId"] = "elsewhere" }, http.StatusBadRequest},
		{"unknown row", func(b gin.H) { b["rowId"] = "missing" }, http.StatusNotFound},
		{"ok", func(b gin.H) {}, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := base()
			tt.mutate(body)
			w, out := do(t, r, http.MethodPost, "/api/rate-cards/"+s.card+"/bookings", body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.status == http.StatusCreated, out["success"] == true)
		})
	}

	w, out := do(t, r, http.MethodGet, "/api/rate-cards/"+s.card+"/bookings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, out["bookings"], 1)
}

func TestColumnValidation(t *testing.T) {
	r := newTestRouter(t, nil)
	s := seed(t, r)

	w, _ := do(t, r, http.MethodPost, "/api/tables/"+s.table+"/columns", gin.H{"name": "X", "dataType": "DATE"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = do(t, r, http.MethodPost, "/api/tables/"+s.table+"/columns", gin.H{"name": "X", "dataType": "DROPDOWN"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = do(t, r, http.MethodPost, "/api/tables/missing/columns", gin.H{"name": "X", "dataType": "TEXT"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = do(t, r, http.MethodPatch, "/api/tables/"+s.table+"/rows/"+s.row+"/cells", gin.H{"cells": []gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = do(t, r, http.MethodPatch, "/api/tables/"+s.table+"/rows/"+s.row+"/cells", gin.H{
		"cells": []gin.H{{"columnId": "nope", "value": "1"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQuoteSingleClassFiveDays(t *testing.T) {
	r := newTestRouter(t, nil)

	w, out := do(t, r, http.MethodPost, "/api/packages/quote", gin.H{
		"timeClassId":       "M1",
		"spotLengthSec":     30,
		"frequency":         "daily",
		"startDate":         "2024-06-03",
		"endDate":           "2024-06-07",
		"timesPerFrequency": 2,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, out["canSubmit"])
	assert.Len(t, out["rows"], 5)
	assert.Len(t, out["timeClasses"], 5)

	sum := out["summary"].(map[string]any)
	assert.Equal(t, float64(10), sum["totalSpots"])
	assert.InDelta(t, 12095.2, sum["subtotal"], 1e-6)
	assert.InDelta(t, 13909.48, sum["total"], 1e-6)
	assert.Equal(t, "13,909.48", out["display"].(map[string]any)["total"])
}

func TestQuoteRejectsBadInput(t *testing.T) {
	r := newTestRouter(t, nil)
	for name, body := range map[string]gin.H{
		"frequency":      {"frequency": "hourly"},
		"weekdays":       {"frequency": "daily", "selectedWeekdays": []bool{true}},
		"date":           {"frequency": "once", "startDate": "tomorrow"},
		"override":       {"frequency": "once", "perDateTimeClassOverrides": gin.H{"x": []string{"M1"}}},
		"class":          {"frequency": "once", "startDate": "2024-06-01", "timeClassId": "Nope", "timesPerFrequency": 3},
		"override class": {"frequency": "once", "startDate": "2024-06-01", "perDateTimeClassOverrides": gin.H{"2024-06-01": []string{"M1", "Nope"}}},
		"custom classes": {"frequency": "once", "startDate": "2024-06-01", "timeClassId": "M1", "timeClasses": []gin.H{{"id": "Prime", "ratePer30Sec": 100}}},
	} {
		t.Run(name, func(t *testing.T) {
			w, _ := do(t, r, http.MethodPost, "/api/packages/quote", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestSubmitAndFetchPackage(t *testing.T) {
	r := newTestRouter(t, nil)
	card := create(t, r, "/api/rate-cards", gin.H{"name": "TV"})

	empty := gin.H{
		"clientName": "Acme", "clientEmail": "ads@acme.test",
		"frequency": "daily", "startDate": "2024-06-01", "endDate": "2024-06-07",
		"selectedWeekdays": []bool{false, false, false, false, false, false, false},
	}
	w, _ := do(t, r, http.MethodPost, "/api/rate-cards/"+card+"/packages", empty)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, out := do(t, r, http.MethodPost, "/api/rate-cards/"+card+"/packages", gin.H{
		"clientName": "Acme", "clientEmail": "ads@acme.test",
		"timeClassId": "Nope", "frequency": "once", "startDate": "2024-06-01", "timesPerFrequency": 3,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, out["error"], "unknown time class")

	id := create(t, r, "/api/rate-cards/"+card+"/packages", gin.H{
		"clientName": "Acme", "clientEmail": "ads@acme.test",
		"timeClassId": "M1", "spotLengthSec": 30, "frequency": "once", "startDate": "2024-06-01",
	})
	w, out = do(t, r, http.MethodGet, "/api/packages/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1,390.95", out["display"].(map[string]any)["total"])

	w, _ = do(t, r, http.MethodPost, "/api/rate-cards/missing/packages", gin.H{
		"clientName": "Acme", "clientEmail": "ads@acme.test",
		"frequency": "once", "startDate": "2024-06-01",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthGuardsOperatorRoutes(t *testing.T) {
	const secret = "s3cret"
	auth := AuthMiddleware(slog.New(slog.DiscardHandler), []string{"static-token"}, secret)
	r := newTestRouter(t, auth)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "ops"}).SignedString([]byte(secret))
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"none", "", http.StatusUnauthorized},
		{"malformed", "Token abc", http.StatusUnauthorized},
		{"wrong", "Bearer nope", http.StatusUnauthorized},
		{"static", "Bearer static-token", http.StatusCreated},
		{"jwt", "Bearer " + signed, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var headers []string
			if tt.header != "" {
				headers = []string{"Authorization", tt.header}
			}
			w, _ := do(t, r, http.MethodPost, "/api/rate-cards", gin.H{"name": "X"}, headers...)
			assert.Equal(t, tt.status, w.Code)
		})
	}

	w, _ := do(t, r, http.MethodPost, "/api/packages/quote", gin.H{"frequency": "once"})
	assert.Equal(t, http.StatusOK, w.Code, "quotes are public")
}

func TestBookingRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	a := &App{
		Store:   store.NewMemoryStore(),
		Log:     slog.New(slog.DiscardHandler),
		Metrics: NewMetrics(reg),
		Limiter: NewRateLimiter(2),
	}
	r := gin.New()
	a.Routes(r, nil)

	body := gin.H{"rowId": "r", "clientName": "A", "clientEmail": "a@b.test"}
	codes := make([]int, 0, 3)
	for range 3 {
		w, _ := do(t, r, http.MethodPost, "/api/rate-cards/c/bookings", body)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusNotFound, http.StatusNotFound, http.StatusTooManyRequests}, codes)
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, nil)
	do(t, r, http.MethodPost, "/api/packages/quote", gin.H{"frequency": "once"})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ratecard_package_quotes_total 1")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}
