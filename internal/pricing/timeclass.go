package pricing

import "strings"

// TimeClass is a daypart pricing tier with its base rate per 30 second spot.
type TimeClass struct {
	ID        string  `json:"id"`
	Label     string  `json:"label"`
	TimeRange string  `json:"timeRange"`
	Rate30    float64 `json:"rate30"`
}

// ExternalTimeClass is the shape agencies configure on their listings.
type ExternalTimeClass struct {
	ID           string  `json:"id"`
	Label        string  `json:"label"`
	TimeRange    string  `json:"timeRange"`
	RatePer30Sec float64 `json:"ratePer30Sec"`
}

func DefaultTimeClasses() []TimeClass {
	return []TimeClass{
		{ID: "Premium", Label: "Premium", TimeRange: "18:00 - 22:00", Rate30: 1511.90},
		{ID: "M1", Label: "M1", TimeRange: "06:00 - 09:00", Rate30: 1209.52},
		{ID: "M2", Label: "M2", TimeRange: "12:00 - 18:00", Rate30: 907.14},
		{ID: "M3", Label: "M3", TimeRange: "09:00 - 12:00", Rate30: 604.76},
		{ID: "M4", Label: "M4", TimeRange: "22:00 - 06:00", Rate30: 302.38},
	}
}

// NormalizeTimeClasses converts listing data into time classes, falling back to
// the defaults when nothing usable is supplied. Entries without an id are
// keyed by their label.
func NormalizeTimeClasses(ext []ExternalTimeClass) []TimeClass {
	out := make([]TimeClass, 0, len(ext))
	for _, e := range ext {
		id := strings.TrimSpace(e.ID)
		if id == "" {
			id = strings.TrimSpace(e.Label)
		}
		if id == "" {
			continue
		}
		rate := e.RatePer30Sec
		if rate < 0 {
			rate = 0
		}
		out = append(out, TimeClass{ID: id, Label: e.Label, TimeRange: e.TimeRange, Rate30: rate})
	}
	if len(out) == 0 {
		return DefaultTimeClasses()
	}
	return out
}
