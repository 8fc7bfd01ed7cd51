package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"ratecard-service/internal/money"
	"ratecard-service/internal/pricing"
)

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

func parseWeekdays(s string) (pricing.Weekdays, error) {
	if s == "" || strings.EqualFold(s, "all") {
		return pricing.AllWeekdays(), nil
	}
	var mask pricing.Weekdays
	for _, p := range strings.Split(s, ",") {
		key := strings.ToLower(strings.TrimSpace(p))
		if len(key) > 3 {
			key = key[:3]
		}
		d, ok := weekdayNames[key]
		if !ok {
			return pricing.Weekdays{}, fmt.Errorf("unknown weekday %q", p)
		}
		mask[d] = true
	}
	return mask, nil
}

// parseOverride reads DATE=CLASS[+CLASS...].
func parseOverride(s string) (string, []string, error) {
	date, classes, ok := strings.Cut(s, "=")
	if !ok {
		return "", nil, fmt.Errorf("invalid override %q (expected YYYY-MM-DD=CLASS[+CLASS])", s)
	}
	d, err := pricing.ParseDate(date)
	if err != nil {
		return "", nil, fmt.Errorf("invalid override date %q", date)
	}
	var ids []string
	for _, id := range strings.Split(classes, "+") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return pricing.DateKey(d), ids, nil
}

func loadTimeClasses(path string) ([]pricing.TimeClass, error) {
	if path == "" {
		return pricing.DefaultTimeClasses(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ext []pricing.ExternalTimeClass
	if err := json.Unmarshal(raw, &ext); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return pricing.NormalizeTimeClasses(ext), nil
}

func quoteCmd(rt *runtime) *cobra.Command {
	var (
		class       string
		spotLength  int
		frequency   string
		start, end  string
		dates       []string
		times       int
		weekdays    string
		overrides   []string
		classesFile string
	)

	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price an airtime package locally",
		Example: `  ratecardctl quote --class M1 --spot 30 --frequency daily --start 2024-06-03 --end 2024-06-07 --times 2
  ratecardctl quote --frequency custom --date 2024-06-01 --date 2024-06-08 --override 2024-06-08=Premium+M1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			freq, err := pricing.ParseFrequency(frequency)
			if err != nil {
				return err
			}
			if times < 0 {
				return fmt.Errorf("--times must not be negative")
			}
			sel := pricing.Selection{
				TimeClassID:       class,
				SpotLengthSec:     spotLength,
				Frequency:         freq,
				TimesPerFrequency: times,
			}
			if sel.SelectedWeekdays, err = parseWeekdays(weekdays); err != nil {
				return err
			}
			if start != "" {
				if sel.StartDate, err = parseDateInput(start); err != nil {
					return err
				}
			}
			if end != "" {
				if sel.EndDate, err = parseDateInput(end); err != nil {
					return err
				}
			}
			if !sel.StartDate.IsZero() && !sel.EndDate.IsZero() && sel.EndDate.Before(sel.StartDate) {
				return fmt.Errorf("--start must be on or before --end")
			}
			for _, d := range dates {
				t, err := parseDateInput(d)
				if err != nil {
					return err
				}
				sel.CustomDates = append(sel.CustomDates, t)
			}
			for _, o := range overrides {
				key, ids, err := parseOverride(o)
				if err != nil {
					return err
				}
				if sel.Overrides == nil {
					sel.Overrides = map[string][]string{}
				}
				sel.Overrides[key] = ids
			}

			classes, err := loadTimeClasses(classesFile)
			if err != nil {
				return err
			}
			calc := pricing.NewCalculator(classes)
			if err := calc.Validate(sel); err != nil {
				return err
			}
			q := calc.Quote(sel)

			out := cmd.OutOrStdout()
			if rt.asJSON {
				return writeJSON(out, q)
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DATE\tDAY\tCLASSES\tSPOTS\tCOST")
			for _, r := range q.Rows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					pricing.DateKey(r.Date), r.Weekday.String()[:3], strings.Join(r.TimeClassIDs, "+"), r.Spots, money.Format(r.Cost))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			s := q.Summary
			fmt.Fprintf(out, "\nCost per spot: %s\n", money.Format(s.CostPerSpot))
			fmt.Fprintf(out, "Total spots:   %d\n", s.TotalSpots)
			fmt.Fprintf(out, "Subtotal:      %s\n", money.Format(s.Subtotal))
			fmt.Fprintf(out, "VAT (15%%):     %s\n", money.Format(s.VAT))
			fmt.Fprintf(out, "Total:         %s\n", money.Format(s.Total))
			if !q.CanSubmit {
				fmt.Fprintln(out, "\nNothing to book yet: pick dates, weekdays and at least one spot.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&class, "class", "", "Time class id (default: first configured class)")
	cmd.Flags().IntVar(&spotLength, "spot", 30, "Spot length in seconds")
	cmd.Flags().StringVar(&frequency, "frequency", "once", "once, daily, weekly or custom")
	cmd.Flags().StringVar(&start, "start", "", "Start date (YYYY-MM-DD, today, tomorrow)")
	cmd.Flags().StringVar(&end, "end", "", "End date for daily/weekly")
	cmd.Flags().StringSliceVar(&dates, "date", nil, "Explicit date for custom frequency (repeatable)")
	cmd.Flags().IntVar(&times, "times", 1, "Spots per day")
	cmd.Flags().StringVar(&weekdays, "weekdays", "all", "Comma separated weekdays to air on, e.g. mon,wed,fri")
	cmd.Flags().StringArrayVar(&overrides, "override", nil, "Per-date classes, DATE=CLASS[+CLASS] (repeatable)")
	cmd.Flags().StringVar(&classesFile, "classes-file", "", "JSON list of {id,label,timeRange,ratePer30Sec}")
	return cmd
}

func parseDateInput(input string) (time.Time, error) {
	now := time.Now()
	switch strings.ToLower(input) {
	case "today":
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	case "tomorrow":
		t := now.AddDate(0, 0, 1)
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	parsed, err := pricing.ParseDate(input)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", input)
	}
	return parsed, nil
}
