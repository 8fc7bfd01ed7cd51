package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"

	"ratecard-service/internal/pricing"
	"ratecard-service/internal/ratecard"
)

const storageKey = "cart"

var (
	ErrNotBookable = errors.New("row is not bookable")
	ErrNotInCart   = errors.New("row is not in the cart")
	ErrEmptyCart   = errors.New("cart is empty")
)

// Item is one selected row with the cells chosen from it.
type Item struct {
	RateCardID string   `json:"rateCardId"`
	TableID    string   `json:"tableId"`
	TableName  string   `json:"tableName"`
	RowID      string   `json:"rowId"`
	Label      string   `json:"label"`
	ColumnIDs  []string `json:"columnIds"`
	UnitPrice  float64  `json:"unitPrice"`
	Quantity   int      `json:"quantity"`
	StartDate  string   `json:"startDate,omitempty"`
	EndDate    string   `json:"endDate,omitempty"`
}

func (i Item) Subtotal() float64 { return i.UnitPrice * float64(i.Quantity) }

// Cart is a visitor's selection, saved to Storage after every change.
type Cart struct {
	store Storage

	mu    sync.Mutex
	items []Item
}

// Load reads the cart from s, or starts an empty one.
func Load(ctx context.Context, s Storage) (*Cart, error) {
	c := &Cart{store: s}
	raw, ok, err := s.Get(ctx, storageKey)
	if err != nil {
		return nil, err
	}
	if ok && len(raw) > 0 {
		if err := json.Unmarshal(raw, &c.items); err != nil {
			return nil, fmt.Errorf("decode cart: %w", err)
		}
	}
	return c, nil
}

// commit stores next and only then makes it the cart's contents.
func (c *Cart) commit(ctx context.Context, next []Item) error {
	items := next
	if items == nil {
		items = []Item{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, storageKey, raw); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	c.items = next
	return nil
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		it.ColumnIDs = slices.Clone(it.ColumnIDs)
		out[i] = it
	}
	return out
}

func index(items []Item, rowID string) int {
	return slices.IndexFunc(items, func(i Item) bool { return i.RowID == rowID })
}

// unitPrice is the first priced cell among the chosen columns, in table order.
func unitPrice(t ratecard.Table, row ratecard.Row, columnIDs []string) float64 {
	for _, col := range t.Columns {
		if !col.DataType.Priced() || !slices.Contains(columnIDs, col.ID) {
			continue
		}
		if f, ok := ratecard.ParseNumber(row.Value(col.ID)); ok {
			return f
		}
	}
	return 0
}

func rowLabel(t ratecard.Table, row ratecard.Row) string {
	for _, col := range t.Columns {
		if col.DataType == ratecard.TypeText {
			if v := row.Value(col.ID); v != "" {
				return v
			}
		}
	}
	return row.ID
}

// Toggle selects or deselects one cell. A row whose last cell is deselected
// leaves the cart. It reports whether the cell is now selected.
func (c *Cart) Toggle(ctx context.Context, t ratecard.Table, rowID, columnID string) (bool, error) {
	row, ok := t.Row(rowID)
	if !ok {
		return false, fmt.Errorf("row %s not in table %s", rowID, t.ID)
	}
	if !row.IsBookable {
		return false, ErrNotBookable
	}
	if _, ok := t.Column(columnID); !ok {
		return false, fmt.Errorf("column %s not in table %s", columnID, t.ID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := cloneItems(c.items)
	selected := true
	i := index(next, rowID)
	switch {
	case i < 0:
		next = append(next, Item{
			RateCardID: t.RateCardID,
			TableID:    t.ID,
			TableName:  t.Name,
			RowID:      rowID,
			Label:      rowLabel(t, row),
			ColumnIDs:  []string{columnID},
			Quantity:   1,
		})
		i = len(next) - 1
	case slices.Contains(next[i].ColumnIDs, columnID):
		selected = false
		next[i].ColumnIDs = slices.DeleteFunc(next[i].ColumnIDs, func(id string) bool { return id == columnID })
	default:
		next[i].ColumnIDs = append(next[i].ColumnIDs, columnID)
	}

	if len(next[i].ColumnIDs) == 0 {
		next = slices.Delete(next, i, i+1)
	} else {
		next[i].UnitPrice = unitPrice(t, row, next[i].ColumnIDs)
	}
	if err := c.commit(ctx, next); err != nil {
		return false, err
	}
	return selected, nil
}

func (c *Cart) SetQuantity(ctx context.Context, rowID string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("quantity must be at least 1, got %d", qty)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	i := index(c.items, rowID)
	if i < 0 {
		return ErrNotInCart
	}
	next := cloneItems(c.items)
	next[i].Quantity = qty
	return c.commit(ctx, next)
}

// SetDates records the requested flight dates (YYYY-MM-DD, either may be empty).
func (c *Cart) SetDates(ctx context.Context, rowID, start, end string) error {
	var s, e string
	if start != "" {
		d, err := pricing.ParseDate(start)
		if err != nil {
			return fmt.Errorf("invalid start date %q", start)
		}
		s = pricing.DateKey(d)
	}
	if end != "" {
		d, err := pricing.ParseDate(end)
		if err != nil {
			return fmt.Errorf("invalid end date %q", end)
		}
		e = pricing.DateKey(d)
	}
	if s != "" && e != "" && e < s {
		return errors.New("start date must not be after end date")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	i := index(c.items, rowID)
	if i < 0 {
		return ErrNotInCart
	}
	next := cloneItems(c.items)
	next[i].StartDate, next[i].EndDate = s, e
	return c.commit(ctx, next)
}

func (c *Cart) Remove(ctx context.Context, rowID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := index(c.items, rowID)
	if i < 0 {
		return ErrNotInCart
	}
	next := slices.Delete(cloneItems(c.items), i, i+1)
	return c.commit(ctx, next)
}

func (c *Cart) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commit(ctx, nil)
}

func (c *Cart) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneItems(c.items)
}

// Total is the sum of item subtotals. No tax or discount applies.
func (c *Cart) Total() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total float64
	for _, it := range c.items {
		total += it.Subtotal()
	}
	return total
}

// Contact is who the bookings are made for.
type Contact struct {
	Name  string `validate:"required"`
	Email string `validate:"required,email"`
	Phone string `validate:"omitempty,max=32"`
	Notes string `validate:"max=2000"`
}

// Booker submits one booking request.
type Booker interface {
	CreateBooking(ctx context.Context, b ratecard.Booking) (*ratecard.Booking, error)
}

// CheckoutResult tallies a checkout. Failed items stay in the cart.
type CheckoutResult struct {
	Booked []ratecard.Booking
	Failed int
}

var validate = validator.New()

// Checkout sends one booking per cart row. Rows that were booked leave the
// cart; the returned error aggregates every failure.
func (c *Cart) Checkout(ctx context.Context, b Booker, contact Contact) (CheckoutResult, error) {
	if err := validate.Struct(contact); err != nil {
		return CheckoutResult{}, fmt.Errorf("invalid contact: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) == 0 {
		return CheckoutResult{}, ErrEmptyCart
	}

	var (
		res  CheckoutResult
		errs *multierror.Error
		keep []Item
	)
	for _, it := range c.items {
		booking, err := b.CreateBooking(ctx, ratecard.Booking{
			RateCardID:  it.RateCardID,
			RowID:       it.RowID,
			ColumnIDs:   slices.Clone(it.ColumnIDs),
			ClientName:  contact.Name,
			ClientEmail: contact.Email,
			ClientPhone: contact.Phone,
			Quantity:    it.Quantity,
			StartDate:   it.StartDate,
			EndDate:     it.EndDate,
			Notes:       contact.Notes,
		})
		if err != nil {
			res.Failed++
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", it.Label, err))
			keep = append(keep, it)
			continue
		}
		res.Booked = append(res.Booked, *booking)
	}

	// Booked rows leave the cart even when the store write fails.
	if err := c.commit(ctx, keep); err != nil {
		c.items = keep
		errs = multierror.Append(errs, err)
	}
	return res, errs.ErrorOrNil()
}
