package ratecard

import "time"

type RateCard struct {
	ID          string    `json:"id"`
	AgencyID    string    `json:"agencyId,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Sections    []Section `json:"sections,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Section struct {
	ID         string  `json:"id"`
	RateCardID string  `json:"rateCardId"`
	Name       string  `json:"name"`
	Position   int     `json:"position"`
	Tables     []Table `json:"tables,omitempty"`
}

type Table struct {
	ID         string   `json:"id"`
	RateCardID string   `json:"rateCardId"`
	SectionID  string   `json:"sectionId"`
	Name       string   `json:"name"`
	Columns    []Column `json:"columns"`
	Rows       []Row    `json:"rows"`
}

type ColumnConfig struct {
	Options        []string `json:"options,omitempty"`
	CurrencySymbol string   `json:"currencySymbol,omitempty"`
}

type Column struct {
	ID       string        `json:"id"`
	TableID  string        `json:"tableId"`
	Name     string        `json:"name"`
	DataType DataType      `json:"dataType"`
	Config   *ColumnConfig `json:"config,omitempty"`
	Position int           `json:"position"`
}

// Cell values are always strings; typed columns parse them for display only.
type Cell struct {
	ColumnID string `json:"columnId"`
	Value    string `json:"value"`
}

type Row struct {
	ID         string `json:"id"`
	TableID    string `json:"tableId"`
	IsBookable bool   `json:"isBookable"`
	Position   int    `json:"position"`
	Cells      []Cell `json:"cells"`
}

const (
	BookingConfirmed = "confirmed"
	BookingCancelled = "cancelled"
)

type Booking struct {
	ID          string    `json:"id"`
	RateCardID  string    `json:"rateCardId"`
	RowID       string    `json:"rowId"`
	ColumnIDs   []string  `json:"columnIds,omitempty"`
	ClientName  string    `json:"clientName"`
	ClientEmail string    `json:"clientEmail"`
	ClientPhone string    `json:"clientPhone,omitempty"`
	Quantity    int       `json:"quantity"`
	StartDate   string    `json:"startDate,omitempty"`
	EndDate     string    `json:"endDate,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Value returns the cell value for columnID, or "" when the row has none.
func (r Row) Value(columnID string) string {
	for _, c := range r.Cells {
		if c.ColumnID == columnID {
			return c.Value
		}
	}
	return ""
}

// SetValue overwrites or appends the cell for columnID.
func (r *Row) SetValue(columnID, value string) {
	for i := range r.Cells {
		if r.Cells[i].ColumnID == columnID {
			r.Cells[i].Value = value
			return
		}
	}
	r.Cells = append(r.Cells, Cell{ColumnID: columnID, Value: value})
}

// Column looks up a column by id.
func (t Table) Column(id string) (Column, bool) {
	for _, c := range t.Columns {
		if c.ID == id {
			return c, true
		}
	}
	return Column{}, false
}

// Row looks up a row by id.
func (t Table) Row(id string) (Row, bool) {
	for _, r := range t.Rows {
		if r.ID == id {
			return r, true
		}
	}
	return Row{}, false
}

// CellKey identifies a single cell across a table.
type CellKey struct {
	RowID    string
	ColumnID string
}

func (k CellKey) String() string { return k.RowID + "-" + k.ColumnID }
