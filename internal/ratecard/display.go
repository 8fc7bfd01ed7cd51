package ratecard

import (
	"fmt"
	"strconv"
	"strings"

	"ratecard-service/internal/money"
)

// Palette colors dropdown badges by option index.
var Palette = []string{"blue", "green", "amber", "purple", "pink", "teal", "orange", "slate"}

const unmatchedColor = "gray"

type Badge struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

type Display struct {
	Widget  Widget `json:"widget"`
	Text    string `json:"text"`
	Badge   *Badge `json:"badge,omitempty"`
	Checked bool   `json:"checked,omitempty"`
}

// ParseOptions splits a comma separated option list, dropping blanks.
func ParseOptions(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func OptionColor(index int) string {
	if index < 0 {
		return unmatchedColor
	}
	return Palette[index%len(Palette)]
}

// OptionIndex returns the position of value in the column's options, or -1.
func (c Column) OptionIndex(value string) int {
	if c.Config == nil {
		return -1
	}
	for i, o := range c.Config.Options {
		if o == value {
			return i
		}
	}
	return -1
}

// ParseNumber reads a NUMBER or CURRENCY cell, tolerating separators and a
// leading currency symbol.
func ParseNumber(value string) (float64, bool) {
	v := strings.TrimSpace(value)
	v = strings.TrimLeftFunc(v, func(r rune) bool {
		return !(r >= '0' && r <= '9') && r != '-' && r != '.'
	})
	v = strings.ReplaceAll(v, ",", "")
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Render builds the read-only display of a cell value for its column.
func Render(col Column, value string) (Display, error) {
	w, err := col.DataType.Widget()
	if err != nil {
		return Display{}, err
	}
	d := Display{Widget: w, Text: value}

	switch col.DataType {
	case TypeText, TypeNotes:
	case TypeNumber:
		if f, ok := ParseNumber(value); ok {
			d.Text = strconv.FormatFloat(f, 'f', -1, 64)
		}
	case TypeCurrency:
		if f, ok := ParseNumber(value); ok {
			symbol := ""
			if col.Config != nil {
				symbol = col.Config.CurrencySymbol
			}
			d.Text = money.FormatWithSymbol(symbol, f)
		}
	case TypeBoolean:
		d.Checked = value == "true"
		d.Text = "No"
		if d.Checked {
			d.Text = "Yes"
		}
	case TypeDropdown:
		if value != "" {
			d.Badge = &Badge{Label: value, Color: OptionColor(col.OptionIndex(value))}
		}
	default:
		return Display{}, fmt.Errorf("unknown data type %q", string(col.DataType))
	}
	return d, nil
}
