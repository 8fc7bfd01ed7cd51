package cart

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratecard-service/internal/ratecard"
)

func spotsTable() ratecard.Table {
	return ratecard.Table{
		ID:         "t1",
		RateCardID: "rc1",
		Name:       "Radio spots",
		Columns: []ratecard.Column{
			{ID: "slot", Name: "Slot", DataType: ratecard.TypeText},
			{ID: "notes", Name: "Notes", DataType: ratecard.TypeNotes},
			{ID: "weekday", Name: "Weekday", DataType: ratecard.TypeCurrency},
			{ID: "weekend", Name: "Weekend", DataType: ratecard.TypeNumber},
		},
		Rows: []ratecard.Row{
			{ID: "r1", IsBookable: true, Cells: []ratecard.Cell{
				{ColumnID: "slot", Value: "Breakfast"}, {ColumnID: "weekday", Value: "1,500.00"}, {ColumnID: "weekend", Value: "900"},
			}},
			{ID: "r2", IsBookable: true, Cells: []ratecard.Cell{
				{ColumnID: "slot", Value: "Drive"}, {ColumnID: "weekend", Value: "250.5"},
			}},
			{ID: "r3", IsBookable: false, Cells: []ratecard.Cell{{ColumnID: "slot", Value: "News"}}},
		},
	}
}

func TestToggleAndTotal(t *testing.T) {
	ctx := context.Background()
	c, err := Load(ctx, NewMemoryStorage())
	require.NoError(t, err)
	tbl := spotsTable()

	on, err := c.Toggle(ctx, tbl, "r1", "weekend")
	require.NoError(t, err)
	assert.True(t, on)
	on, err = c.Toggle(ctx, tbl, "r1", "weekday")
	require.NoError(t, err)
	assert.True(t, on)

	items := c.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 1500.0, items[0].UnitPrice, "first priced column in table order")
	assert.Equal(t, "Breakfast", items[0].Label)

	_, err = c.Toggle(ctx, tbl, "r2", "notes")
	require.NoError(t, err)
	assert.Equal(t, 0.0, c.Items()[1].UnitPrice)
	_, err = c.Toggle(ctx, tbl, "r2", "weekend")
	require.NoError(t, err)
	require.NoError(t, c.SetQuantity(ctx, "r2", 2))

	assert.InDelta(t, 1500+2*250.5, c.Total(), 1e-9)

	on, err = c.Toggle(ctx, tbl, "r1", "weekday")
	require.NoError(t, err)
	assert.False(t, on)
	assert.Equal(t, 900.0, c.Items()[0].UnitPrice)

	_, err = c.Toggle(ctx, tbl, "r1", "weekend")
	require.NoError(t, err)
	require.Len(t, c.Items(), 1, "row leaves the cart with its last cell")
	assert.Equal(t, "r2", c.Items()[0].RowID)
}

func TestToggleRejects(t *testing.T) {
	ctx := context.Background()
	c, err := Load(ctx, NewMemoryStorage())
	require.NoError(t, err)
	tbl := spotsTable()

	_, err = c.Toggle(ctx, tbl, "r3", "slot")
	assert.ErrorIs(t, err, ErrNotBookable)
	_, err = c.Toggle(ctx, tbl, "missing", "slot")
	assert.Error(t, err)
	_, err = c.Toggle(ctx, tbl, "r1", "missing")
	assert.Error(t, err)
	assert.Empty(t, c.Items())

	assert.ErrorIs(t, c.SetQuantity(ctx, "r1", 1), ErrNotInCart)
	assert.ErrorIs(t, c.Remove(ctx, "r1"), ErrNotInCart)

	_, err = c.Toggle(ctx, tbl, "r1", "slot")
	require.NoError(t, err)
	assert.Error(t, c.SetQuantity(ctx, "r1", 0))
	assert.Error(t, c.SetDates(ctx, "r1", "2024-06-05", "2024-06-01"))
	assert.Error(t, c.SetDates(ctx, "r1", "June", ""))
	require.NoError(t, c.SetDates(ctx, "r1", "2024-06-01", "2024-06-05"))
	assert.Equal(t, "2024-06-01", c.Items()[0].StartDate)
}

func TestCartSurvivesReload(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "cart.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	c, err := Load(ctx, store)
	require.NoError(t, err)
	_, err = c.Toggle(ctx, spotsTable(), "r1", "weekday")
	require.NoError(t, err)
	require.NoError(t, c.SetQuantity(ctx, "r1", 3))

	again, err := Load(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, c.Items(), again.Items())
	assert.Equal(t, 4500.0, again.Total())

	require.NoError(t, again.Clear(ctx))
	third, err := Load(ctx, store)
	require.NoError(t, err)
	assert.Empty(t, third.Items())
}

func TestRedisStorage(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	store, err := OpenRedis(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Set(ctx, "test-"+t.Name(), []byte(`[]`)))
	v, ok, err := store.Get(ctx, "test-"+t.Name())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte(`[]`), v)

	_, ok, err = store.Get(ctx, "never-set")
	require.NoError(t, err)
	assert.False(t, ok)
}

type flakyStorage struct {
	*MemoryStorage
	failSet bool
}

func (f *flakyStorage) Set(ctx context.Context, key string, value []byte) error {
	if f.failSet {
		return errors.New("disk full")
	}
	return f.MemoryStorage.Set(ctx, key, value)
}

func TestFailedSaveLeavesCartUnchanged(t *testing.T) {
	ctx := context.Background()
	s := &flakyStorage{MemoryStorage: NewMemoryStorage()}
	c, err := Load(ctx, s)
	require.NoError(t, err)
	tbl := spotsTable()
	_, err = c.Toggle(ctx, tbl, "r1", "weekday")
	require.NoError(t, err)
	before := c.Items()

	s.failSet = true
	_, err = c.Toggle(ctx, tbl, "r1", "weekend")
	assert.Error(t, err)
	_, err = c.Toggle(ctx, tbl, "r1", "weekday")
	assert.Error(t, err)
	_, err = c.Toggle(ctx, tbl, "r2", "slot")
	assert.Error(t, err)
	assert.Error(t, c.SetQuantity(ctx, "r1", 4))
	assert.Error(t, c.SetDates(ctx, "r1", "2024-06-01", ""))
	assert.Error(t, c.Remove(ctx, "r1"))
	assert.Error(t, c.Clear(ctx))
	assert.Equal(t, before, c.Items())

	stored, err := Load(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, before, stored.Items())
}

type fakeBooker struct {
	fail map[string]bool
	got  []ratecard.Booking
}

func (f *fakeBooker) CreateBooking(_ context.Context, b ratecard.Booking) (*ratecard.Booking, error) {
	f.got = append(f.got, b)
	if f.fail[b.RowID] {
		return nil, errors.New("row is not bookable")
	}
	b.ID = "b-" + b.RowID
	b.Status = ratecard.BookingConfirmed
	return &b, nil
}

func TestCheckout(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStorage()
	c, err := Load(ctx, mem)
	require.NoError(t, err)
	tbl := spotsTable()
	for _, sel := range [][2]string{{"r1", "weekday"}, {"r1", "weekend"}, {"r2", "weekend"}} {
		_, err := c.Toggle(ctx, tbl, sel[0], sel[1])
		require.NoError(t, err)
	}

	booker := &fakeBooker{fail: map[string]bool{"r2": true}}
	_, err = c.Checkout(ctx, booker, Contact{Name: "Acme", Email: "not-an-email"})
	require.Error(t, err)
	assert.Empty(t, booker.got, "invalid contact sends nothing")

	res, err := c.Checkout(ctx, booker, Contact{Name: "Acme", Email: "ads@acme.test", Phone: "+232 76 000000"})
	require.Error(t, err)
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 1)
	assert.Contains(t, err.Error(), "Drive")

	assert.Len(t, booker.got, 2, "one request per row")
	assert.Equal(t, []string{"weekday", "weekend"}, booker.got[0].ColumnIDs)
	assert.Equal(t, "rc1", booker.got[0].RateCardID)
	require.Len(t, res.Booked, 1)
	assert.Equal(t, 1, res.Failed)

	require.Len(t, c.Items(), 1)
	assert.Equal(t, "r2", c.Items()[0].RowID, "failed rows stay in the cart")

	reloaded, err := Load(ctx, mem)
	require.NoError(t, err)
	assert.Equal(t, c.Items(), reloaded.Items())

	booker.fail = nil
	res, err = c.Checkout(ctx, booker, Contact{Name: "Acme", Email: "ads@acme.test"})
	require.NoError(t, err)
	assert.Len(t, res.Booked, 1)
	assert.Empty(t, c.Items())

	_, err = c.Checkout(ctx, booker, Contact{Name: "Acme", Email: "ads@acme.test"})
	assert.ErrorIs(t, err, ErrEmptyCart)
}
