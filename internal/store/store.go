package store

import (
	"context"
	"errors"
	"fmt"

	"ratecard-service/internal/ratecard"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid request")

	ErrAlreadyCancelled = errors.New("booking already cancelled")
)

// ConflictError rejects a delete that would orphan existing bookings.
type ConflictError struct {
	Entity        string
	BookingsCount int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("cannot delete %s: %d bookings depend on it", e.Entity, e.BookingsCount)
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

type Store interface {
	CreateRateCard(ctx context.Context, rc *ratecard.RateCard) error
	GetRateCard(ctx context.Context, id string) (*ratecard.RateCard, error)
	CreateSection(ctx context.Context, s *ratecard.Section) error
	CreateTable(ctx context.Context, t *ratecard.Table) error
	GetTable(ctx context.Context, id string) (*ratecard.Table, error)

	CreateColumn(ctx context.Context, c *ratecard.Column) error
	DeleteColumn(ctx context.Context, tableID, columnID string) error
	CreateRow(ctx context.Context, r *ratecard.Row) error
	DeleteRow(ctx context.Context, tableID, rowID string) error
	// ReplaceCells sets every cell of the row; columns missing from cells are blanked.
	ReplaceCells(ctx context.Context, tableID, rowID string, cells []ratecard.Cell) (*ratecard.Row, error)
	// UpsertCells changes only the given cells.
	UpsertCells(ctx context.Context, tableID, rowID string, cells []ratecard.Cell) (*ratecard.Row, error)

	CreateBooking(ctx context.Context, b *ratecard.Booking) error
	ListBookings(ctx context.Context, rateCardID string) ([]ratecard.Booking, error)
	CancelBooking(ctx context.Context, id string) error

	CreatePackage(ctx context.Context, p *ratecard.Package) error
	GetPackage(ctx context.Context, id string) (*ratecard.Package, error)
}

func validateCells(t *ratecard.Table, cells []ratecard.Cell) error {
	for _, c := range cells {
		if _, ok := t.Column(c.ColumnID); !ok {
			return invalidf("unknown column %q", c.ColumnID)
		}
	}
	return nil
}

func validateBooking(t *ratecard.Table, b *ratecard.Booking) error {
	row, ok := t.Row(b.RowID)
	if !ok {
		return fmt.Errorf("row %s: %w", b.RowID, ErrNotFound)
	}
	if !row.IsBookable {
		return invalidf("row %s is not bookable", b.RowID)
	}
	for _, id := range b.ColumnIDs {
		if _, ok := t.Column(id); !ok {
			return invalidf("unknown column %q", id)
		}
	}
	return nil
}
