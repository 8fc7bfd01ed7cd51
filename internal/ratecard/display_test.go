package ratecard

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderByDataType(t *testing.T) {
	dropdown := Column{DataType: TypeDropdown, Config: &ColumnConfig{Options: ParseOptions("A, B ,C,")}}

	tests := []struct {
		name string
		col  Column
		in   string
		want Display
	}{
		{
			name: "text is shown as typed",
			col:  Column{DataType: TypeText},
			in:   "Prime time",
			want: Display{Widget: WidgetInput, Text: "Prime time"},
		},
		{
			name: "notes use an input",
			col:  Column{DataType: TypeNotes},
			in:   "call first",
			want: Display{Widget: WidgetInput, Text: "call first"},
		},
		{
			name: "number drops trailing zeros",
			col:  Column{DataType: TypeNumber},
			in:   "30.0",
			want: Display{Widget: WidgetInput, Text: "30"},
		},
		{
			name: "unparseable number is left alone",
			col:  Column{DataType: TypeNumber},
			in:   "n/a",
			want: Display{Widget: WidgetInput, Text: "n/a"},
		},
		{
			name: "currency gets two decimals and a symbol",
			col:  Column{DataType: TypeCurrency, Config: &ColumnConfig{CurrencySymbol: "SAR"}},
			in:   "1209.5",
			want: Display{Widget: WidgetInput, Text: "SAR 1,209.50"},
		},
		{
			name: "boolean true",
			col:  Column{DataType: TypeBoolean},
			in:   "true",
			want: Display{Widget: WidgetToggle, Text: "Yes", Checked: true},
		},
		{
			name: "boolean anything else",
			col:  Column{DataType: TypeBoolean},
			in:   "",
			want: Display{Widget: WidgetToggle, Text: "No"},
		},
		{
			name: "dropdown option colored by index",
			col:  dropdown,
			in:   "B",
			want: Display{Widget: WidgetSelect, Text: "B", Badge: &Badge{Label: "B", Color: Palette[1]}},
		},
		{
			name: "dropdown value outside options",
			col:  dropdown,
			in:   "Z",
			want: Display{Widget: WidgetSelect, Text: "Z", Badge: &Badge{Label: "Z", Color: "gray"}},
		},
		{
			name: "empty dropdown has no badge",
			col:  dropdown,
			in:   "",
			want: Display{Widget: WidgetSelect},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.col, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderUnknownType(t *testing.T) {
	_, err := Render(Column{DataType: "DATE"}, "2024-06-01")
	assert.Error(t, err)
}

func TestOptionColorWraps(t *testing.T) {
	assert.Equal(t, Palette[0], OptionColor(len(Palette)))
	assert.Equal(t, Palette[3], OptionColor(len(Palette)+3))
}

func TestDataTypeJSON(t *testing.T) {
	var col Column
	require.NoError(t, json.Unmarshal([]byte(`{"name":"Price","dataType":"currency"}`), &col))
	assert.Equal(t, TypeCurrency, col.DataType)
	assert.True(t, col.DataType.Priced())

	err := json.Unmarshal([]byte(`{"name":"When","dataType":"DATE"}`), &col)
	assert.Error(t, err)
}

func TestParseNumber(t *testing.T) {
	f, ok := ParseNumber("SAR 1,500.25")
	require.True(t, ok)
	assert.Equal(t, 1500.25, f)

	_, ok = ParseNumber("")
	assert.False(t, ok)
}

func TestRowSetValue(t *testing.T) {
	r := Row{Cells: []Cell{{ColumnID: "c1", Value: "a"}}}
	r.SetValue("c1", "b")
	r.SetValue("c2", "x")
	assert.Equal(t, "b", r.Value("c1"))
	assert.Equal(t, "x", r.Value("c2"))
	assert.Equal(t, "", r.Value("c3"))
	assert.Equal(t, "r1-c1", CellKey{RowID: "r1", ColumnID: "c1"}.String())
}
