package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"ratecard-service/internal/ratecard"
)

// MemoryStore keeps everything in process. It backs local runs without
// DATABASE_URL and the handler tests.
type MemoryStore struct {
	mu            sync.RWMutex
	rateCards     map[string]*ratecard.RateCard
	cardSections  map[string][]string
	sections      map[string]*ratecard.Section
	sectionTables map[string][]string
	tables        map[string]*ratecard.Table
	rowTable      map[string]string
	bookings      []*ratecard.Booking
	packages      map[string]*ratecard.Package
	now           func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rateCards:     make(map[string]*ratecard.RateCard),
		cardSections:  make(map[string][]string),
		sections:      make(map[string]*ratecard.Section),
		sectionTables: make(map[string][]string),
		tables:        make(map[string]*ratecard.Table),
		rowTable:      make(map[string]string),
		packages:      make(map[string]*ratecard.Package),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) CreateRateCard(_ context.Context, rc *ratecard.RateCard) error {
	if rc.Name == "" {
		return invalidf("name required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rc.ID = uuid.NewString()
	rc.CreatedAt = s.now()
	rc.Sections = nil
	cp := *rc
	s.rateCards[rc.ID] = &cp
	return nil
}

func (s *MemoryStore) GetRateCard(_ context.Context, id string) (*ratecard.RateCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rc, ok := s.rateCards[id]
	if !ok {
		return nil, fmt.Errorf("rate card %s: %w", id, ErrNotFound)
	}
	out := *rc
	for _, sid := range s.cardSections[id] {
		sec := *s.sections[sid]
		for _, tid := range s.sectionTables[sid] {
			sec.Tables = append(sec.Tables, copyTable(s.tables[tid]))
		}
		out.Sections = append(out.Sections, sec)
	}
	return &out, nil
}

func (s *MemoryStore) CreateSection(_ context.Context, sec *ratecard.Section) error {
	if sec.Name == "" {
		return invalidf("name required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rateCards[sec.RateCardID]; !ok {
		return fmt.Errorf("rate card %s: %w", sec.RateCardID, ErrNotFound)
	}
	sec.ID = uuid.NewString()
	sec.Position = len(s.cardSections[sec.RateCardID])
	sec.Tables = nil
	cp := *sec
	s.sections[sec.ID] = &cp
	s.cardSections[sec.RateCardID] = append(s.cardSections[sec.RateCardID], sec.ID)
	return nil
}

func (s *MemoryStore) CreateTable(_ context.Context, t *ratecard.Table) error {
	if t.Name == "" {
		return invalidf("name required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.sections[t.SectionID]
	if !ok || sec.RateCardID != t.RateCardID {
		return fmt.Errorf("section %s: %w", t.SectionID, ErrNotFound)
	}
	t.ID = uuid.NewString()
	t.Columns = []ratecard.Column{}
	t.Rows = []ratecard.Row{}
	cp := copyTable(t)
	s.tables[t.ID] = &cp
	s.sectionTables[t.SectionID] = append(s.sectionTables[t.SectionID], t.ID)
	return nil
}

func (s *MemoryStore) GetTable(_ context.Context, id string) (*ratecard.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[id]
	if !ok {
		return nil, fmt.Errorf("table %s: %w", id, ErrNotFound)
	}
	out := copyTable(t)
	return &out, nil
}

func (s *MemoryStore) CreateColumn(_ context.Context, c *ratecard.Column) error {
	if c.Name == "" {
		return invalidf("column name required")
	}
	if _, err := ratecard.ParseDataType(string(c.DataType)); err != nil {
		return invalidf("%v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[c.TableID]
	if !ok {
		return fmt.Errorf("table %s: %w", c.TableID, ErrNotFound)
	}
	c.ID = uuid.NewString()
	c.Position = len(t.Columns)
	t.Columns = append(t.Columns, copyColumn(*c))
	return nil
}

func (s *MemoryStore) DeleteColumn(_ context.Context, tableID, columnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[tableID]
	if !ok {
		return fmt.Errorf("table %s: %w", tableID, ErrNotFound)
	}
	idx := slices.IndexFunc(t.Columns, func(c ratecard.Column) bool { return c.ID == columnID })
	if idx < 0 {
		return fmt.Errorf("column %s: %w", columnID, ErrNotFound)
	}
	n := 0
	for _, b := range s.bookings {
		if b.Status != ratecard.BookingCancelled && slices.Contains(b.ColumnIDs, columnID) {
			n++
		}
	}
	if n > 0 {
		return &ConflictError{Entity: "column", BookingsCount: n}
	}
	t.Columns = slices.Delete(t.Columns, idx, idx+1)
	for i := range t.Columns {
		t.Columns[i].Position = i
	}
	for i := range t.Rows {
		t.Rows[i].Cells = slices.DeleteFunc(t.Rows[i].Cells, func(c ratecard.Cell) bool { return c.ColumnID == columnID })
	}
	return nil
}

func (s *MemoryStore) CreateRow(_ context.Context, r *ratecard.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[r.TableID]
	if !ok {
		return fmt.Errorf("table %s: %w", r.TableID, ErrNotFound)
	}
	if err := validateCells(t, r.Cells); err != nil {
		return err
	}
	r.ID = uuid.NewString()
	r.Position = len(t.Rows)
	if r.Cells == nil {
		r.Cells = []ratecard.Cell{}
	}
	t.Rows = append(t.Rows, copyRow(*r))
	s.rowTable[r.ID] = t.ID
	return nil
}

func (s *MemoryStore) DeleteRow(_ context.Context, tableID, rowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[tableID]
	if !ok {
		return fmt.Errorf("table %s: %w", tableID, ErrNotFound)
	}
	idx := slices.IndexFunc(t.Rows, func(r ratecard.Row) bool { return r.ID == rowID })
	if idx < 0 {
		return fmt.Errorf("row %s: %w", rowID, ErrNotFound)
	}
	n := 0
	for _, b := range s.bookings {
		if b.Status != ratecard.BookingCancelled && b.RowID == rowID {
			n++
		}
	}
	if n > 0 {
		return &ConflictError{Entity: "row", BookingsCount: n}
	}
	t.Rows = slices.Delete(t.Rows, idx, idx+1)
	for i := range t.Rows {
		t.Rows[i].Position = i
	}
	delete(s.rowTable, rowID)
	return nil
}

func (s *MemoryStore) writeCells(tableID, rowID string, cells []ratecard.Cell, replace bool) (*ratecard.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[tableID]
	if !ok {
		return nil, fmt.Errorf("table %s: %w", tableID, ErrNotFound)
	}
	idx := slices.IndexFunc(t.Rows, func(r ratecard.Row) bool { return r.ID == rowID })
	if idx < 0 {
		return nil, fmt.Errorf("row %s: %w", rowID, ErrNotFound)
	}
	if err := validateCells(t, cells); err != nil {
		return nil, err
	}
	row := &t.Rows[idx]
	if replace {
		next := make([]ratecard.Cell, 0, len(t.Columns))
		for _, col := range t.Columns {
			next = append(next, ratecard.Cell{ColumnID: col.ID})
		}
		row.Cells = next
	}
	for _, c := range cells {
		row.SetValue(c.ColumnID, c.Value)
	}
	out := copyRow(*row)
	return &out, nil
}

func (s *MemoryStore) ReplaceCells(_ context.Context, tableID, rowID string, cells []ratecard.Cell) (*ratecard.Row, error) {
	return s.writeCells(tableID, rowID, cells, true)
}

func (s *MemoryStore) UpsertCells(_ context.Context, tableID, rowID string, cells []ratecard.Cell) (*ratecard.Row, error) {
	return s.writeCells(tableID, rowID, cells, false)
}

func (s *MemoryStore) CreateBooking(_ context.Context, b *ratecard.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tid, ok := s.rowTable[b.RowID]
	if !ok {
		return fmt.Errorf("row %s: %w", b.RowID, ErrNotFound)
	}
	t := s.tables[tid]
	if t.RateCardID != b.RateCardID {
		return invalidf("row %s does not belong to rate card %s", b.RowID, b.RateCardID)
	}
	if err := validateBooking(t, b); err != nil {
		return err
	}
	if b.Quantity < 1 {
		b.Quantity = 1
	}
	b.ID = uuid.NewString()
	b.Status = ratecard.BookingConfirmed
	b.CreatedAt = s.now()
	cp := *b
	cp.ColumnIDs = slices.Clone(b.ColumnIDs)
	s.bookings = append(s.bookings, &cp)
	return nil
}

func (s *MemoryStore) ListBookings(_ context.Context, rateCardID string) ([]ratecard.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []ratecard.Booking{}
	for _, b := range s.bookings {
		if b.RateCardID == rateCardID {
			cp := *b
			cp.ColumnIDs = slices.Clone(b.ColumnIDs)
			out = append(out, cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) CancelBooking(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if b.ID != id {
			continue
		}
		if b.Status == ratecard.BookingCancelled {
			return ErrAlreadyCancelled
		}
		b.Status = ratecard.BookingCancelled
		return nil
	}
	return fmt.Errorf("booking %s: %w", id, ErrNotFound)
}

func (s *MemoryStore) CreatePackage(_ context.Context, p *ratecard.Package) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rateCards[p.RateCardID]; !ok {
		return fmt.Errorf("rate card %s: %w", p.RateCardID, ErrNotFound)
	}
	p.ID = uuid.NewString()
	p.CreatedAt = s.now()
	cp := *p
	s.packages[p.ID] = &cp
	return nil
}

func (s *MemoryStore) GetPackage(_ context.Context, id string) (*ratecard.Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.packages[id]
	if !ok {
		return nil, fmt.Errorf("package %s: %w", id, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func copyColumn(c ratecard.Column) ratecard.Column {
	if c.Config != nil {
		cfg := *c.Config
		cfg.Options = slices.Clone(cfg.Options)
		c.Config = &cfg
	}
	return c
}

func copyRow(r ratecard.Row) ratecard.Row {
	r.Cells = slices.Clone(r.Cells)
	if r.Cells == nil {
		r.Cells = []ratecard.Cell{}
	}
	return r
}

func copyTable(t *ratecard.Table) ratecard.Table {
	out := *t
	out.Columns = make([]ratecard.Column, 0, len(t.Columns))
	for _, c := range t.Columns {
		out.Columns = append(out.Columns, copyColumn(c))
	}
	out.Rows = make([]ratecard.Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		out.Rows = append(out.Rows, copyRow(r))
	}
	return out
}
