package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ratecard-service/internal/ratecard"
)

//go:embed schema.sql
var schema string

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PGStore struct {
	DB *pgxpool.Pool
}

func NewPGStore(ctx context.Context, dbURL string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return &PGStore{DB: pool}, nil
}

func (s *PGStore) Close() { s.DB.Close() }

// Migrate creates any missing tables.
func (s *PGStore) Migrate(ctx context.Context) error {
	if _, err := s.DB.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func notFound(err error, what, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return err
}

func (s *PGStore) CreateRateCard(ctx context.Context, rc *ratecard.RateCard) error {
	if rc.Name == "" {
		return invalidf("name required")
	}
	rc.ID = uuid.NewString()
	rc.CreatedAt = time.Now().UTC()
	_, err := s.DB.Exec(ctx,
		`INSERT INTO rate_cards (id, agency_id, name, description, created_at) VALUES ($1,$2,$3,$4,$5)`,
		rc.ID, rc.AgencyID, rc.Name, rc.Description, rc.CreatedAt)
	return err
}

func (s *PGStore) GetRateCard(ctx context.Context, id string) (*ratecard.RateCard, error) {
	var rc ratecard.RateCard
	err := s.DB.QueryRow(ctx,
		`SELECT id, agency_id, name, description, created_at FROM rate_cards WHERE id=$1`, id,
	).Scan(&rc.ID, &rc.AgencyID, &rc.Name, &rc.Description, &rc.CreatedAt)
	if err != nil {
		return nil, notFound(err, "rate card", id)
	}

	rows, err := s.DB.Query(ctx,
		`SELECT id, rate_card_id, name, position FROM rate_card_sections WHERE rate_card_id=$1 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var sec ratecard.Section
		if err := rows.Scan(&sec.ID, &sec.RateCardID, &sec.Name, &sec.Position); err != nil {
			return nil, err
		}
		rc.Sections = append(rc.Sections, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range rc.Sections {
		tids, err := s.tableIDs(ctx, rc.Sections[i].ID)
		if err != nil {
			return nil, err
		}
		for _, tid := range tids {
			t, err := s.GetTable(ctx, tid)
			if err != nil {
				return nil, err
			}
			rc.Sections[i].Tables = append(rc.Sections[i].Tables, *t)
		}
	}
	return &rc, nil
}

func (s *PGStore) tableIDs(ctx context.Context, sectionID string) ([]string, error) {
	rows, err := s.DB.Query(ctx, `SELECT id FROM rate_card_tables WHERE section_id=$1 ORDER BY position`, sectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PGStore) CreateSection(ctx context.Context, sec *ratecard.Section) error {
	if sec.Name == "" {
		return invalidf("name required")
	}
	sec.ID = uuid.NewString()
	err := s.DB.QueryRow(ctx,
		`INSERT INTO rate_card_sections (id, rate_card_id, name, position)
		 SELECT $1::text, rc.id, $3::text, (SELECT count(*) FROM rate_card_sections WHERE rate_card_id=$2)
		 FROM rate_cards rc WHERE rc.id=$2
		 RETURNING position`,
		sec.ID, sec.RateCardID, sec.Name,
	).Scan(&sec.Position)
	return notFound(err, "rate card", sec.RateCardID)
}

func (s *PGStore) CreateTable(ctx context.Context, t *ratecard.Table) error {
	if t.Name == "" {
		return invalidf("name required")
	}
	t.ID = uuid.NewString()
	var pos int
	err := s.DB.QueryRow(ctx,
		`INSERT INTO rate_card_tables (id, rate_card_id, section_id, name, position)
		 SELECT $1::text, s.rate_card_id, s.id, $4::text, (SELECT count(*) FROM rate_card_tables WHERE section_id=$3)
		 FROM rate_card_sections s WHERE s.id=$3 AND s.rate_card_id=$2
		 RETURNING position`,
		t.ID, t.RateCardID, t.SectionID, t.Name,
	).Scan(&pos)
	if err != nil {
		return notFound(err, "section", t.SectionID)
	}
	t.Columns = []ratecard.Column{}
	t.Rows = []ratecard.Row{}
	return nil
}

func (s *PGStore) GetTable(ctx context.Context, id string) (*ratecard.Table, error) {
	return getTable(ctx, s.DB, id)
}

func getTable(ctx context.Context, q querier, id string) (*ratecard.Table, error) {
	t := ratecard.Table{Columns: []ratecard.Column{}, Rows: []ratecard.Row{}}
	err := q.QueryRow(ctx,
		`SELECT id, rate_card_id, section_id, name FROM rate_card_tables WHERE id=$1`, id,
	).Scan(&t.ID, &t.RateCardID, &t.SectionID, &t.Name)
	if err != nil {
		return nil, notFound(err, "table", id)
	}

	cols, err := q.Query(ctx,
		`SELECT id, table_id, name, data_type, config, position FROM rate_card_columns WHERE table_id=$1 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer cols.Close()
	for cols.Next() {
		var c ratecard.Column
		var dt string
		var cfg []byte
		if err := cols.Scan(&c.ID, &c.TableID, &c.Name, &dt, &cfg, &c.Position); err != nil {
			return nil, err
		}
		c.DataType = ratecard.DataType(dt)
		if len(cfg) > 0 {
			c.Config = &ratecard.ColumnConfig{}
			if err := json.Unmarshal(cfg, c.Config); err != nil {
				return nil, fmt.Errorf("column %s config: %w", c.ID, err)
			}
		}
		t.Columns = append(t.Columns, c)
	}
	if err := cols.Err(); err != nil {
		return nil, err
	}
	cols.Close()

	rows, err := q.Query(ctx,
		`SELECT id, table_id, is_bookable, position FROM rate_card_rows WHERE table_id=$1 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	index := map[string]int{}
	for rows.Next() {
		r := ratecard.Row{Cells: []ratecard.Cell{}}
		if err := rows.Scan(&r.ID, &r.TableID, &r.IsBookable, &r.Position); err != nil {
			return nil, err
		}
		index[r.ID] = len(t.Rows)
		t.Rows = append(t.Rows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	cells, err := q.Query(ctx,
		`SELECT c.row_id, c.column_id, c.value
		 FROM rate_card_cells c
		 JOIN rate_card_rows r ON r.id = c.row_id
		 JOIN rate_card_columns col ON col.id = c.column_id
		 WHERE r.table_id=$1
		 ORDER BY r.position, col.position`, id)
	if err != nil {
		return nil, err
	}
	defer cells.Close()
	for cells.Next() {
		var rowID string
		var c ratecard.Cell
		if err := cells.Scan(&rowID, &c.ColumnID, &c.Value); err != nil {
			return nil, err
		}
		if i, ok := index[rowID]; ok {
			t.Rows[i].Cells = append(t.Rows[i].Cells, c)
		}
	}
	return &t, cells.Err()
}

func (s *PGStore) CreateColumn(ctx context.Context, c *ratecard.Column) error {
	if c.Name == "" {
		return invalidf("column name required")
	}
	if _, err := ratecard.ParseDataType(string(c.DataType)); err != nil {
		return invalidf("%v", err)
	}
	var cfg []byte
	if c.Config != nil {
		b, err := json.Marshal(c.Config)
		if err != nil {
			return err
		}
		cfg = b
	}
	c.ID = uuid.NewString()
	err := s.DB.QueryRow(ctx,
		`INSERT INTO rate_card_columns (id, table_id, name, data_type, config, position)
		 SELECT $1::text, t.id, $3::text, $4::text, $5::jsonb, (SELECT count(*) FROM rate_card_columns WHERE table_id=$2)
		 FROM rate_card_tables t WHERE t.id=$2
		 RETURNING position`,
		c.ID, c.TableID, c.Name, string(c.DataType), cfg,
	).Scan(&c.Position)
	return notFound(err, "table", c.TableID)
}

func (s *PGStore) DeleteColumn(ctx context.Context, tableID, columnID string) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var pos int
	err = tx.QueryRow(ctx,
		`SELECT position FROM rate_card_columns WHERE id=$1 AND table_id=$2 FOR UPDATE`, columnID, tableID,
	).Scan(&pos)
	if err != nil {
		return notFound(err, "column", columnID)
	}

	var n int
	err = tx.QueryRow(ctx,
		`SELECT count(*) FROM bookings WHERE status <> 'cancelled' AND $1 = ANY(column_ids)`, columnID,
	).Scan(&n)
	if err != nil {
		return err
	}
	if n > 0 {
		return &ConflictError{Entity: "column", BookingsCount: n}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM rate_card_columns WHERE id=$1`, columnID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE rate_card_columns SET position = position - 1 WHERE table_id=$1 AND position > $2`, tableID, pos,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) CreateRow(ctx context.Context, r *ratecard.Row) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	t, err := getTable(ctx, tx, r.TableID)
	if err != nil {
		return err
	}
	if err := validateCells(t, r.Cells); err != nil {
		return err
	}
	r.ID = uuid.NewString()
	r.Position = len(t.Rows)
	if _, err := tx.Exec(ctx,
		`INSERT INTO rate_card_rows (id, table_id, is_bookable, position) VALUES ($1,$2,$3,$4)`,
		r.ID, r.TableID, r.IsBookable, r.Position,
	); err != nil {
		return err
	}
	if err := upsertCells(ctx, tx, r.ID, r.Cells); err != nil {
		return err
	}
	if r.Cells == nil {
		r.Cells = []ratecard.Cell{}
	}
	return tx.Commit(ctx)
}

func (s *PGStore) DeleteRow(ctx context.Context, tableID, rowID string) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var pos int
	err = tx.QueryRow(ctx,
		`SELECT position FROM rate_card_rows WHERE id=$1 AND table_id=$2 FOR UPDATE`, rowID, tableID,
	).Scan(&pos)
	if err != nil {
		return notFound(err, "row", rowID)
	}

	var n int
	err = tx.QueryRow(ctx,
		`SELECT count(*) FROM bookings WHERE status <> 'cancelled' AND row_id=$1`, rowID,
	).Scan(&n)
	if err != nil {
		return err
	}
	if n > 0 {
		return &ConflictError{Entity: "row", BookingsCount: n}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM rate_card_rows WHERE id=$1`, rowID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE rate_card_rows SET position = position - 1 WHERE table_id=$1 AND position > $2`, tableID, pos,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func upsertCells(ctx context.Context, q querier, rowID string, cells []ratecard.Cell) error {
	for _, c := range cells {
		_, err := q.Exec(ctx,
			`INSERT INTO rate_card_cells (row_id, column_id, value) VALUES ($1,$2,$3)
			 ON CONFLICT (row_id, column_id) DO UPDATE SET value = EXCLUDED.value`,
			rowID, c.ColumnID, c.Value)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *PGStore) writeCells(ctx context.Context, tableID, rowID string, cells []ratecard.Cell, replace bool) (*ratecard.Row, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var locked string
	err = tx.QueryRow(ctx,
		`SELECT id FROM rate_card_rows WHERE id=$1 AND table_id=$2 FOR UPDATE`, rowID, tableID,
	).Scan(&locked)
	if err != nil {
		return nil, notFound(err, "row", rowID)
	}
	t, err := getTable(ctx, tx, tableID)
	if err != nil {
		return nil, err
	}
	if err := validateCells(t, cells); err != nil {
		return nil, err
	}

	if replace {
		if _, err := tx.Exec(ctx,
			`INSERT INTO rate_card_cells (row_id, column_id, value)
			 SELECT $1::text, id, '' FROM rate_card_columns WHERE table_id=$2
			 ON CONFLICT (row_id, column_id) DO UPDATE SET value = ''`,
			rowID, tableID,
		); err != nil {
			return nil, err
		}
	}
	if err := upsertCells(ctx, tx, rowID, cells); err != nil {
		return nil, err
	}

	t, err = getTable(ctx, tx, tableID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	row, _ := t.Row(rowID)
	return &row, nil
}

func (s *PGStore) ReplaceCells(ctx context.Context, tableID, rowID string, cells []ratecard.Cell) (*ratecard.Row, error) {
	return s.writeCells(ctx, tableID, rowID, cells, true)
}

func (s *PGStore) UpsertCells(ctx context.Context, tableID, rowID string, cells []ratecard.Cell) (*ratecard.Row, error) {
	return s.writeCells(ctx, tableID, rowID, cells, false)
}

func (s *PGStore) CreateBooking(ctx context.Context, b *ratecard.Booking) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// FOR SHARE keeps a concurrent DeleteRow from slipping past its guard.
	var tableID, rateCardID string
	err = tx.QueryRow(ctx,
		`SELECT r.table_id, t.rate_card_id
		 FROM rate_card_rows r JOIN rate_card_tables t ON t.id = r.table_id
		 WHERE r.id=$1 FOR SHARE OF r`, b.RowID,
	).Scan(&tableID, &rateCardID)
	if err != nil {
		return notFound(err, "row", b.RowID)
	}
	if rateCardID != b.RateCardID {
		return invalidf("row %s does not belong to rate card %s", b.RowID, b.RateCardID)
	}
	t, err := getTable(ctx, tx, tableID)
	if err != nil {
		return err
	}
	if err := validateBooking(t, b); err != nil {
		return err
	}
	if err := lockColumns(ctx, tx, tableID, b.ColumnIDs); err != nil {
		return err
	}

	if b.Quantity < 1 {
		b.Quantity = 1
	}
	if b.ColumnIDs == nil {
		b.ColumnIDs = []string{}
	}
	b.ID = uuid.NewString()
	b.Status = ratecard.BookingConfirmed
	b.CreatedAt = time.Now().UTC()
	_, err = tx.Exec(ctx,
		`INSERT INTO bookings
		 (id, rate_card_id, row_id, column_ids, client_name, client_email, client_phone,
		  quantity, start_date, end_date, notes, status, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		b.ID, b.RateCardID, b.RowID, b.ColumnIDs, b.ClientName, b.ClientEmail, b.ClientPhone,
		b.Quantity, b.StartDate, b.EndDate, b.Notes, b.Status, b.CreatedAt)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// lockColumns holds the booked columns FOR SHARE so a concurrent DeleteColumn
// waits for the booking, and fails if one of them is already gone.
func lockColumns(ctx context.Context, tx pgx.Tx, tableID string, columnIDs []string) error {
	if len(columnIDs) == 0 {
		return nil
	}
	ids := slices.Clone(columnIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	rows, err := tx.Query(ctx,
		`SELECT id FROM rate_card_columns WHERE table_id=$1 AND id = ANY($2) ORDER BY id FOR SHARE`, tableID, ids)
	if err != nil {
		return err
	}
	locked, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return err
	}
	for _, id := range ids {
		if !slices.Contains(locked, id) {
			return invalidf("unknown column %q", id)
		}
	}
	return nil
}

func (s *PGStore) ListBookings(ctx context.Context, rateCardID string) ([]ratecard.Booking, error) {
	rows, err := s.DB.Query(ctx,
		`SELECT id, rate_card_id, COALESCE(row_id, ''), column_ids, client_name, client_email, client_phone,
		        quantity, start_date, end_date, notes, status, created_at
		 FROM bookings WHERE rate_card_id=$1 ORDER BY created_at`, rateCardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ratecard.Booking{}
	for rows.Next() {
		var b ratecard.Booking
		if err := rows.Scan(&b.ID, &b.RateCardID, &b.RowID, &b.ColumnIDs, &b.ClientName, &b.ClientEmail,
			&b.ClientPhone, &b.Quantity, &b.StartDate, &b.EndDate, &b.Notes, &b.Status, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PGStore) CancelBooking(ctx context.Context, id string) error {
	var status string
	err := s.DB.QueryRow(ctx, `SELECT status FROM bookings WHERE id=$1`, id).Scan(&status)
	if err != nil {
		return notFound(err, "booking", id)
	}
	if status == ratecard.BookingCancelled {
		return ErrAlreadyCancelled
	}
	res, err := s.DB.Exec(ctx, `UPDATE bookings SET status='cancelled' WHERE id=$1 AND status <> 'cancelled'`, id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrAlreadyCancelled
	}
	return nil
}

func (s *PGStore) CreatePackage(ctx context.Context, p *ratecard.Package) error {
	data, err := json.Marshal(p.Data)
	if err != nil {
		return err
	}
	p.ID = uuid.NewString()
	p.CreatedAt = time.Now().UTC()
	tag, err := s.DB.Exec(ctx,
		`INSERT INTO packages (id, rate_card_id, client_name, client_email, notes, data, created_at)
		 SELECT $1::text, id, $3::text, $4::text, $5::text, $6::jsonb, $7::timestamptz FROM rate_cards WHERE id=$2`,
		p.ID, p.RateCardID, p.ClientName, p.ClientEmail, p.Notes, data, p.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rate card %s: %w", p.RateCardID, ErrNotFound)
	}
	return nil
}

func (s *PGStore) GetPackage(ctx context.Context, id string) (*ratecard.Package, error) {
	var p ratecard.Package
	var data []byte
	err := s.DB.QueryRow(ctx,
		`SELECT id, rate_card_id, client_name, client_email, notes, data, created_at FROM packages WHERE id=$1`, id,
	).Scan(&p.ID, &p.RateCardID, &p.ClientName, &p.ClientEmail, &p.Notes, &data, &p.CreatedAt)
	if err != nil {
		return nil, notFound(err, "package", id)
	}
	if err := json.Unmarshal(data, &p.Data); err != nil {
		return nil, fmt.Errorf("package %s data: %w", id, err)
	}
	return &p, nil
}
