package store

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratecard-service/internal/ratecard"
)

func openPG(t *testing.T) *PGStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	st, err := NewPGStore(ctx, url)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	require.NoError(t, st.Migrate(ctx))
	return st
}

func TestPGColumnGuardHoldsAgainstConcurrentBookings(t *testing.T) {
	st := openPG(t)
	ctx := context.Background()

	card := ratecard.RateCard{Name: "Radio One"}
	require.NoError(t, st.CreateRateCard(ctx, &card))
	sec := ratecard.Section{RateCardID: card.ID, Name: "Airtime"}
	require.NoError(t, st.CreateSection(ctx, &sec))
	table := ratecard.Table{RateCardID: card.ID, SectionID: sec.ID, Name: "Spots"}
	require.NoError(t, st.CreateTable(ctx, &table))
	row := ratecard.Row{TableID: table.ID, IsBookable: true}
	require.NoError(t, st.CreateRow(ctx, &row))

	booking := func(cols ...string) *ratecard.Booking {
		return &ratecard.Booking{RateCardID: card.ID, RowID: row.ID, ColumnIDs: cols, ClientName: "Acme", ClientEmail: "ads@acme.test"}
	}

	gone := ratecard.Column{TableID: table.ID, Name: "Gone", DataType: ratecard.TypeText}
	require.NoError(t, st.CreateColumn(ctx, &gone))
	require.NoError(t, st.DeleteColumn(ctx, table.ID, gone.ID))
	assert.ErrorIs(t, st.CreateBooking(ctx, booking(gone.ID)), ErrInvalid)

	for range 10 {
		col := ratecard.Column{TableID: table.ID, Name: "Price", DataType: ratecard.TypeCurrency}
		require.NoError(t, st.CreateColumn(ctx, &col))

		var (
			wg              sync.WaitGroup
			bookErr, delErr error
			b               = booking(col.ID)
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			bookErr = st.CreateBooking(ctx, b)
		}()
		go func() {
			defer wg.Done()
			delErr = st.DeleteColumn(ctx, table.ID, col.ID)
		}()
		wg.Wait()

		if bookErr == nil {
			var conflict *ConflictError
			require.True(t, errors.As(delErr, &conflict), "column with a booking was deleted: %v", delErr)
			require.NoError(t, st.CancelBooking(ctx, b.ID))
			require.NoError(t, st.DeleteColumn(ctx, table.ID, col.ID))
		} else {
			require.NoError(t, delErr)
			assert.ErrorIs(t, bookErr, ErrInvalid)
		}
	}
}
