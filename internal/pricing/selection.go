package pricing

import (
	"fmt"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

type Frequency string

const (
	Once   Frequency = "once"
	Daily  Frequency = "daily"
	Weekly Frequency = "weekly"
	Custom Frequency = "custom"
)

func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case Once, Daily, Weekly, Custom:
		return f, nil
	}
	return "", fmt.Errorf("unknown frequency %q", s)
}

// Weekdays is a day-of-week mask indexed by time.Weekday (Sunday = 0).
type Weekdays [7]bool

func AllWeekdays() Weekdays { return Weekdays{true, true, true, true, true, true, true} }

func (w Weekdays) Has(d time.Weekday) bool { return w[d] }

// Selection is the complete booking input. Dates are calendar days; the time
// of day and location are ignored.
type Selection struct {
	TimeClassID       string              `json:"timeClassId"`
	SpotLengthSec     int                 `json:"spotLengthSec"`
	Frequency         Frequency           `json:"frequency"`
	StartDate         time.Time           `json:"startDate"`
	EndDate           time.Time           `json:"endDate"`
	CustomDates       []time.Time         `json:"customDates,omitempty"`
	TimesPerFrequency int                 `json:"timesPerFrequency"`
	SelectedWeekdays  Weekdays            `json:"selectedWeekdays"`
	Overrides         map[string][]string `json:"perDateTimeClassOverrides,omitempty"`
}

// DateKey is the key used for per-date overrides.
func DateKey(t time.Time) string { return t.Format(DateLayout) }

func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(s))
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
