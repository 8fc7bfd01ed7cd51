package pricing

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"
)

// VATRate is applied to the subtotal of every quote.
const VATRate = 0.15

var (
	ErrNothingToPrice   = errors.New("selection has no spots to price")
	ErrUnknownTimeClass = errors.New("unknown time class")
)

type ScheduleRow struct {
	Date         time.Time    `json:"date"`
	Weekday      time.Weekday `json:"weekday"`
	TimeClassIDs []string     `json:"timeClassIds"`
	Spots        int          `json:"spots"`
	Cost         float64      `json:"cost"`
}

type Summary struct {
	CostPerSpot float64 `json:"costPerSpot"`
	TotalSpots  int     `json:"totalSpots"`
	Subtotal    float64 `json:"subtotal"`
	VAT         float64 `json:"vat"`
	Total       float64 `json:"total"`
}

type Quote struct {
	Rows      []ScheduleRow `json:"rows"`
	Summary   Summary       `json:"summary"`
	CanSubmit bool          `json:"canSubmit"`
}

// PackageData is what leaves the calculator when a package is submitted.
type PackageData struct {
	Selection   Selection     `json:"selection"`
	TimeClasses []TimeClass   `json:"timeClasses"`
	Rows        []ScheduleRow `json:"rows"`
	Summary     Summary       `json:"summary"`
}

type Calculator struct {
	classes []TimeClass
	byID    map[string]TimeClass
}

// NewCalculator prices against classes, or the defaults when classes is empty.
func NewCalculator(classes []TimeClass) *Calculator {
	if len(classes) == 0 {
		classes = DefaultTimeClasses()
	}
	byID := make(map[string]TimeClass, len(classes))
	for _, tc := range classes {
		byID[tc.ID] = tc
	}
	return &Calculator{classes: classes, byID: byID}
}

func (c *Calculator) TimeClasses() []TimeClass { return slices.Clone(c.classes) }

// Validate rejects a selection naming a time class that is not configured,
// either as the global class or in a per-date override.
func (c *Calculator) Validate(sel Selection) error {
	if sel.TimeClassID != "" {
		if _, ok := c.byID[sel.TimeClassID]; !ok {
			return fmt.Errorf("%w %q", ErrUnknownTimeClass, sel.TimeClassID)
		}
	}
	dates := make([]string, 0, len(sel.Overrides))
	for d := range sel.Overrides {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	for _, d := range dates {
		for _, id := range sel.Overrides[d] {
			if id == "" {
				continue
			}
			if _, ok := c.byID[id]; !ok {
				return fmt.Errorf("%w %q on %s", ErrUnknownTimeClass, id, d)
			}
		}
	}
	return nil
}

// ExpandDates materializes the calendar days implied by the frequency. Missing
// dates yield an empty result: nothing to price yet.
func ExpandDates(sel Selection) []time.Time {
	switch sel.Frequency {
	case Once:
		if sel.StartDate.IsZero() {
			return []time.Time{}
		}
		return []time.Time{day(sel.StartDate)}
	case Daily, Weekly:
		// weekly spans every day of the range, same as daily; only the spot
		// count per day differs in meaning.
		if sel.StartDate.IsZero() || sel.EndDate.IsZero() {
			return []time.Time{}
		}
		start, end := day(sel.StartDate), day(sel.EndDate)
		out := []time.Time{}
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			out = append(out, d)
		}
		return out
	case Custom:
		out := make([]time.Time, 0, len(sel.CustomDates))
		for _, d := range sel.CustomDates {
			if !d.IsZero() {
				out = append(out, day(d))
			}
		}
		slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })
		return slices.CompactFunc(out, func(a, b time.Time) bool { return a.Equal(b) })
	}
	return []time.Time{}
}

// FilterByWeekday keeps the dates whose weekday is set in mask.
func FilterByWeekday(dates []time.Time, mask Weekdays) []time.Time {
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		if mask.Has(d.Weekday()) {
			out = append(out, d)
		}
	}
	return out
}

func (c *Calculator) globalClass(sel Selection) string {
	if sel.TimeClassID != "" {
		return sel.TimeClassID
	}
	return c.classes[0].ID
}

func (c *Calculator) classesFor(d time.Time, sel Selection) []string {
	var ids []string
	for _, id := range sel.Overrides[DateKey(d)] {
		if id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return []string{c.globalClass(sel)}
	}
	return ids
}

// spotCost is the price of one spot airing once in each of ids. Unknown ids
// cost nothing; Validate keeps them out of submittable quotes.
func (c *Calculator) spotCost(ids []string, spotLengthSec int) float64 {
	if spotLengthSec <= 0 {
		return 0
	}
	multiplier := float64(spotLengthSec) / 30
	var cost float64
	for _, id := range ids {
		cost += c.byID[id].Rate30 * multiplier
	}
	return cost
}

func spotsPerDay(sel Selection) int {
	if sel.TimesPerFrequency < 0 {
		return 0
	}
	return sel.TimesPerFrequency
}

func (c *Calculator) BuildScheduleRows(dates []time.Time, sel Selection) []ScheduleRow {
	spots := spotsPerDay(sel)
	rows := make([]ScheduleRow, 0, len(dates))
	for _, d := range dates {
		ids := c.classesFor(d, sel)
		rows = append(rows, ScheduleRow{
			Date:         d,
			Weekday:      d.Weekday(),
			TimeClassIDs: ids,
			Spots:        spots,
			Cost:         c.spotCost(ids, sel.SpotLengthSec) * float64(spots),
		})
	}
	return rows
}

// Summarize totals rows. Without per-date mixing the subtotal is
// costPerSpot x totalSpots; otherwise it is the sum of the row costs.
func (c *Calculator) Summarize(rows []ScheduleRow, sel Selection) Summary {
	global := c.globalClass(sel)
	s := Summary{CostPerSpot: c.spotCost([]string{global}, sel.SpotLengthSec)}

	mixed := false
	var rowTotal float64
	for _, r := range rows {
		s.TotalSpots += r.Spots
		rowTotal += r.Cost
		if len(r.TimeClassIDs) != 1 || r.TimeClassIDs[0] != global {
			mixed = true
		}
	}
	if mixed {
		s.Subtotal = rowTotal
	} else {
		s.Subtotal = s.CostPerSpot * float64(s.TotalSpots)
	}
	s.VAT = s.Subtotal * VATRate
	s.Total = s.Subtotal + s.VAT
	return s
}

func (c *Calculator) Quote(sel Selection) Quote {
	dates := FilterByWeekday(ExpandDates(sel), sel.SelectedWeekdays)
	rows := c.BuildScheduleRows(dates, sel)
	sum := c.Summarize(rows, sel)
	return Quote{Rows: rows, Summary: sum, CanSubmit: sum.TotalSpots > 0 && c.Validate(sel) == nil}
}

// Submit prices sel and hands the package to onSubmit. Selections without
// spots never reach the callback.
func (c *Calculator) Submit(sel Selection, onSubmit func(PackageData) error) (PackageData, error) {
	if err := c.Validate(sel); err != nil {
		return PackageData{}, err
	}
	q := c.Quote(sel)
	if !q.CanSubmit {
		return PackageData{}, ErrNothingToPrice
	}
	pkg := PackageData{
		Selection:   sel,
		TimeClasses: c.TimeClasses(),
		Rows:        q.Rows,
		Summary:     q.Summary,
	}
	if onSubmit != nil {
		if err := onSubmit(pkg); err != nil {
			return PackageData{}, err
		}
	}
	return pkg, nil
}
