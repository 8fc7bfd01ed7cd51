package editor

import (
	"context"
	"errors"

	"ratecard-service/internal/ratecard"
)

// Server is the remote rate-card API the editor persists through.
type Server interface {
	GetTable(ctx context.Context, tableID string) (*ratecard.Table, error)
	UpdateCells(ctx context.Context, tableID, rowID string, cells []ratecard.Cell) (*ratecard.Row, error)
	CreateRow(ctx context.Context, tableID string, row ratecard.Row) (*ratecard.Row, error)
	CreateColumn(ctx context.Context, tableID string, col ratecard.Column) (*ratecard.Column, error)
	DeleteRow(ctx context.Context, tableID, rowID string) error
	DeleteColumn(ctx context.Context, tableID, columnID string) error
}

type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Toast is a short message for the operator.
type Toast struct {
	Level   Level
	Message string
}

type Notifier interface {
	Notify(Toast)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Toast)

func (f NotifierFunc) Notify(t Toast) { f(t) }

// BookingConflict is implemented by errors for deletes blocked by bookings.
type BookingConflict interface {
	error
	BlockingBookings() int
}

// ConflictCount reports how many bookings blocked a delete, if err says so.
func ConflictCount(err error) (int, bool) {
	var bc BookingConflict
	if errors.As(err, &bc) && bc.BlockingBookings() > 0 {
		return bc.BlockingBookings(), true
	}
	return 0, false
}
