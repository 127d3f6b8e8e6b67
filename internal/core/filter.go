package core

import "time"

// DateRange is an inclusive interval at day granularity.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Bounds returns the start of From's day and the end of To's day.
func (r DateRange) Bounds() (time.Time, time.Time) {
	return StartOfDay(r.From), EndOfDay(r.To)
}

// Contains reports whether t falls within the inclusive day range.
func (r DateRange) Contains(t time.Time) bool {
	start, end := r.Bounds()
	return !t.Before(start) && !t.After(end)
}

// Filter selects the records relevant to rng. A nil range returns records unchanged.
//
// Settled records are kept when their date falls inside the range. Pending
// records (a_pagar, a_receber) are evaluated against createdAt and stay visible
// regardless of the range. Records whose relevant date is missing or
// unparseable are dropped.
func Filter(records []Transaction, rng *DateRange) []Transaction {
	if rng == nil {
		return records
	}
	loc := rng.From.Location()
	out := make([]Transaction, 0, len(records))
	for _, t := range records {
		if includeInRange(t, *rng, loc) {
			out = append(out, t)
		}
	}
	return out
}

func includeInRange(t Transaction, rng DateRange, loc *time.Location) bool {
	relevant := t.Date
	if t.Status.IsPending() {
		relevant = t.CreatedAt
	}
	at, err := ParseDateIn(relevant, loc)
	if err != nil {
		return false
	}
	return rng.Contains(at) || t.Status.IsPending()
}
