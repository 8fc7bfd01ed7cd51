package ratecard

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DataType is the closed set of column types. Every switch over it lists all six.
type DataType string

const (
	TypeText     DataType = "TEXT"
	TypeNumber   DataType = "NUMBER"
	TypeCurrency DataType = "CURRENCY"
	TypeDropdown DataType = "DROPDOWN"
	TypeBoolean  DataType = "BOOLEAN"
	TypeNotes    DataType = "NOTES"
)

var DataTypes = []DataType{TypeText, TypeNumber, TypeCurrency, TypeDropdown, TypeBoolean, TypeNotes}

func ParseDataType(s string) (DataType, error) {
	dt := DataType(strings.ToUpper(strings.TrimSpace(s)))
	switch dt {
	case TypeText, TypeNumber, TypeCurrency, TypeDropdown, TypeBoolean, TypeNotes:
		return dt, nil
	}
	return "", fmt.Errorf("unknown data type %q", s)
}

func (d *DataType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	dt, err := ParseDataType(s)
	if err != nil {
		return err
	}
	*d = dt
	return nil
}

type Widget string

const (
	WidgetInput  Widget = "input"
	WidgetToggle Widget = "toggle"
	WidgetSelect Widget = "select"
)

// Widget returns the edit control used for the type.
func (d DataType) Widget() (Widget, error) {
	switch d {
	case TypeText, TypeNumber, TypeCurrency, TypeNotes:
		return WidgetInput, nil
	case TypeBoolean:
		return WidgetToggle, nil
	case TypeDropdown:
		return WidgetSelect, nil
	}
	return "", fmt.Errorf("unknown data type %q", string(d))
}

// Priced reports whether cells of this type carry a price for cart totals.
func (d DataType) Priced() bool {
	switch d {
	case TypeCurrency, TypeNumber:
		return true
	case TypeText, TypeDropdown, TypeBoolean, TypeNotes:
		return false
	}
	return false
}
