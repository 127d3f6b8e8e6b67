package core

import (
	"math"
	"sort"
	"time"
)

// Summary holds income, expense and balance totals of a record set.
type Summary struct {
	Income  Money
	Expense Money
	Balance Money
}

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
	// Percent of the breakdown total, rounded to one decimal place.
	Percent float64
}

// MonthFlow is the income and expense of one calendar month.
type MonthFlow struct {
	Year    int
	Month   int // 1-12
	Income  Money
	Expense Money
}

// Aggregate sums amounts by type. Balance is always Income - Expense.
func Aggregate(records []Transaction) Summary {
	var s Summary
	for _, t := range records {
		switch t.Type {
		case Income:
			s.Income = s.Income.Add(t.Amount)
		case Expense:
			s.Expense = s.Expense.Add(t.Amount)
		}
	}
	s.Balance = s.Income.Sub(s.Expense)
	return s
}

// CategoryBreakdown totals amounts per category, largest first.
// Ties are ordered by name so the output is stable.
func CategoryBreakdown(records []Transaction) []CategoryAmount {
	totals := make(map[string]int64)
	var all int64
	for _, t := range records {
		totals[t.Category] += t.Amount.Cents
		all += t.Amount.Cents
	}
	out := make([]CategoryAmount, 0, len(totals))
	for name, cents := range totals {
		ca := CategoryAmount{Name: name, Amount: Money{Cents: cents}}
		if all > 0 {
			ca.Percent = math.Round(float64(cents)*1000/float64(all)) / 10
		}
		out = append(out, ca)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// MonthlyFlow groups records by the calendar month of their date, oldest first.
// Records with an unparseable date are skipped.
func MonthlyFlow(records []Transaction, loc *time.Location) []MonthFlow {
	type key struct{ y, m int }
	byMonth := make(map[key]*MonthFlow)
	for _, t := range records {
		at, err := ParseDateIn(t.Date, loc)
		if err != nil {
			continue
		}
		k := key{at.Year(), int(at.Month())}
		mf, ok := byMonth[k]
		if !ok {
			mf = &MonthFlow{Year: k.y, Month: k.m}
			byMonth[k] = mf
		}
		switch t.Type {
		case Income:
			mf.Income = mf.Income.Add(t.Amount)
		case Expense:
			mf.Expense = mf.Expense.Add(t.Amount)
		}
	}
	out := make([]MonthFlow, 0, len(byMonth))
	for _, mf := range byMonth {
		out = append(out, *mf)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out
}
