package date

import "fmt"

// Range is a span of days, both ends included. A zero bound is open.
type Range struct{ From, To Date }

// NewRange returns the period p containing d.
func NewRange(d Date, p Period) Range {
	return Range{From: d.StartOf(p), To: d.EndOf(p)}
}

// Contains reports whether day falls in r.
func (r Range) Contains(day Date) bool {
	return (r.From.IsZero() || !day.Before(r.From)) && (r.To.IsZero() || !day.After(r.To))
}

// Key names r: "2025-03" for a month, "2025-Q1" for a quarter, "2025" for a year
// and "all" when both bounds are open. Other ranges are named after their bounds.
func (r Range) Key() string {
	switch {
	case r.From.IsZero() && r.To.IsZero():
		return "all"
	case r.From.IsZero() || r.To.IsZero():
	case r.From == r.From.StartOf(Monthly) && r.To == r.From.EndOf(Monthly):
		return r.From.Format("2006-01")
	case r.From == r.From.StartOf(Quarterly) && r.To == r.From.EndOf(Quarterly):
		return fmt.Sprintf("%d-Q%d", r.From.Year(), quarter(r.From.Month()))
	case r.From == r.From.StartOf(Yearly) && r.To == r.From.EndOf(Yearly):
		return r.From.Format("2006")
	}
	return fmt.Sprintf("%s_%s", r.From, r.To)
}
