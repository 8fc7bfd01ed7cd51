package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratecard-service/internal/app"
	"ratecard-service/internal/cart"
	"ratecard-service/internal/pricing"
	"ratecard-service/internal/ratecard"
	"ratecard-service/internal/store"
)

func run(t *testing.T, rt *runtime, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(rt)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestQuoteText(t *testing.T) {
	out, err := run(t, &runtime{}, "quote", "--class", "M1", "--frequency", "daily",
		"--start", "2024-06-03", "--end", "2024-06-07", "--times", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-06-03")
	assert.Contains(t, out, "Total spots:   10")
	assert.Contains(t, out, "Subtotal:      12,095.20")
	assert.Contains(t, out, "Total:         13,909.48")
}

func TestQuoteJSONWithOverridesAndWeekdays(t *testing.T) {
	out, err := run(t, &runtime{}, "--json", "quote", "--class", "M1", "--frequency", "daily",
		"--start", "2024-06-01", "--end", "2024-06-09", "--weekdays", "sat,sunday",
		"--override", "2024-06-08=Premium+M1")
	require.NoError(t, err)

	var q pricing.Quote
	require.NoError(t, json.Unmarshal([]byte(out), &q))
	require.Len(t, q.Rows, 4)
	assert.Equal(t, []string{"Premium", "M1"}, q.Rows[2].TimeClassIDs)
	assert.InDelta(t, 1209.52*3+1511.90+1209.52, q.Summary.Subtotal, 1e-6)
}

func TestQuoteClassesFileAndErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"label":"Prime","timeRange":"19:00 - 21:00","ratePer30Sec":100}]`), 0o600))

	out, err := run(t, &runtime{}, "--json", "quote", "--classes-file", path, "--spot", "45", "--start", "2024-06-01")
	require.NoError(t, err)
	var q pricing.Quote
	require.NoError(t, json.Unmarshal([]byte(out), &q))
	assert.Equal(t, 150.0, q.Summary.CostPerSpot)

	_, err = run(t, &runtime{}, "quote", "--class", "Nope", "--start", "2024-06-01")
	assert.ErrorIs(t, err, pricing.ErrUnknownTimeClass)
	_, err = run(t, &runtime{}, "quote", "--start", "2024-06-01", "--override", "2024-06-01=M1+Nope")
	assert.ErrorIs(t, err, pricing.ErrUnknownTimeClass)
	_, err = run(t, &runtime{}, "quote", "--frequency", "hourly")
	assert.Error(t, err)
	_, err = run(t, &runtime{}, "quote", "--weekdays", "funday")
	assert.Error(t, err)
	_, err = run(t, &runtime{}, "quote", "--override", "2024-06-01")
	assert.Error(t, err)
	_, err = run(t, &runtime{}, "quote", "--frequency", "daily", "--start", "2024-06-05", "--end", "2024-06-01")
	assert.Error(t, err)
}

type server struct {
	url   string
	store *store.MemoryStore
	table ratecard.Table
	slot  ratecard.Column
	price ratecard.Column
	row   ratecard.Row
}

func startServer(t *testing.T) server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := store.NewMemoryStore()
	a := &app.App{Store: st, Log: slog.New(slog.DiscardHandler), Metrics: app.NewMetrics(prometheus.NewRegistry())}
	r := gin.New()
	a.Routes(r, nil)
	hs := httptest.NewServer(r)
	t.Cleanup(hs.Close)

	ctx := context.Background()
	s := server{url: hs.URL, store: st}
	card := ratecard.RateCard{Name: "Radio One"}
	require.NoError(t, st.CreateRateCard(ctx, &card))
	sec := ratecard.Section{RateCardID: card.ID, Name: "Airtime"}
	require.NoError(t, st.CreateSection(ctx, &sec))
	s.table = ratecard.Table{RateCardID: card.ID, SectionID: sec.ID, Name: "Spots"}
	require.NoError(t, st.CreateTable(ctx, &s.table))
	s.slot = ratecard.Column{TableID: s.table.ID, Name: "Slot", DataType: ratecard.TypeText}
	require.NoError(t, st.CreateColumn(ctx, &s.slot))
	s.price = ratecard.Column{TableID: s.table.ID, Name: "Price", DataType: ratecard.TypeCurrency}
	require.NoError(t, st.CreateColumn(ctx, &s.price))
	s.row = ratecard.Row{TableID: s.table.ID, IsBookable: true, Cells: []ratecard.Cell{
		{ColumnID: s.slot.ID, Value: "Breakfast"}, {ColumnID: s.price.ID, Value: "1500"},
	}}
	require.NoError(t, st.CreateRow(ctx, &s.row))
	return s
}

func TestTableShowAndSet(t *testing.T) {
	s := startServer(t)
	rt := &runtime{apiURL: s.url}

	out, err := run(t, rt, "table", "show", s.table.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Breakfast")
	assert.Contains(t, out, "1,500.00")

	out, err = run(t, rt, "table", "set", s.table.ID, s.row.ID, s.price.ID, "1750")
	require.NoError(t, err)
	assert.Contains(t, out, "1,750.00")

	tbl, err := s.store.GetTable(context.Background(), s.table.ID)
	require.NoError(t, err)
	row, _ := tbl.Row(s.row.ID)
	assert.Equal(t, "1750", row.Value(s.price.ID))

	_, err = run(t, rt, "table", "set", s.table.ID, "missing", s.price.ID, "1")
	assert.Error(t, err)
	_, err = run(t, rt, "table", "show")
	assert.Error(t, err)
}

func TestCartFlow(t *testing.T) {
	s := startServer(t)
	rt := &runtime{apiURL: s.url, storage: cart.NewMemoryStorage()}

	out, err := run(t, rt, "cart", "add", s.table.ID, s.row.ID, s.price.ID, "--qty", "2", "--start", "2024-06-01")
	require.NoError(t, err)
	assert.Contains(t, out, "total 3,000.00")

	out, err = run(t, rt, "cart", "add", s.table.ID, s.row.ID, s.price.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "1 items", "adding twice keeps the selection")

	out, err = run(t, rt, "cart", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Breakfast")
	assert.Contains(t, out, "Total: 3,000.00")

	_, err = run(t, rt, "cart", "checkout", "--name", "Acme")
	assert.Error(t, err, "email is required")

	out, err = run(t, rt, "cart", "checkout", "--name", "Acme", "--email", "ads@acme.test")
	require.NoError(t, err)
	assert.Contains(t, out, "1 booked, 0 failed")

	bookings, err := s.store.ListBookings(context.Background(), s.table.RateCardID)
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, 2, bookings[0].Quantity)
	assert.Equal(t, "2024-06-01", bookings[0].StartDate)

	out, err = run(t, rt, "cart", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Cart is empty.")

	_, err = run(t, rt, "cart", "add", s.table.ID, s.row.ID, s.slot.ID)
	require.NoError(t, err)
	_, err = run(t, rt, "cart", "remove", s.row.ID)
	require.NoError(t, err)
	_, err = run(t, rt, "cart", "remove", s.row.ID)
	assert.ErrorIs(t, err, cart.ErrNotInCart)
	_, err = run(t, rt, "cart", "clear")
	require.NoError(t, err)
}

func TestRuntimeValuesSurviveFlagDefaults(t *testing.T) {
	t.Setenv("RATECARD_API", "http://env.invalid")
	rt := &runtime{apiURL: "http://127.0.0.1:1", cartDB: "/tmp/cart.db", asJSON: true}
	cmd := newRootCmd(rt)

	assert.Equal(t, "http://127.0.0.1:1", rt.apiURL)
	assert.Equal(t, "/tmp/cart.db", rt.cartDB)
	assert.True(t, rt.asJSON)

	require.NoError(t, cmd.PersistentFlags().Parse([]string{"--api", "http://other"}))
	assert.Equal(t, "http://other", rt.apiURL)

	fresh := &runtime{}
	newRootCmd(fresh)
	assert.Equal(t, "http://env.invalid", fresh.apiURL)
}

func TestCartSQLiteFile(t *testing.T) {
	t.Setenv("RATECARD_REDIS_URL", "")
	s := startServer(t)
	path := filepath.Join(t.TempDir(), "nested", "cart.db")
	rt := &runtime{apiURL: s.url, cartDB: path}

	_, err := run(t, rt, "cart", "add", s.table.ID, s.row.ID, s.price.ID)
	require.NoError(t, err)

	out, err := run(t, rt, "--json", "cart", "list")
	require.NoError(t, err)
	var got struct {
		Items []cart.Item `json:"items"`
		Total float64     `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Items, 1)
	assert.Equal(t, 1500.0, got.Total)
	assert.FileExists(t, path)
}
