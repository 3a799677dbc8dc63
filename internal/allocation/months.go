package allocation

import (
	"time"

	"github.com/shopspring/decimal"
)

// MonthsSpanned counts the calendar months touched by p. Boundary months
// count as whole months, so 2024-01-15..2024-03-01 spans three months.
func MonthsSpanned(p Period) int {
	if p.End.Before(p.Start) {
		return 0
	}
	return (p.End.Year()-p.Start.Year())*12 + int(p.End.Month()) - int(p.Start.Month()) + 1
}

// MonthStart returns the first day of t's month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthStarts lists the first day of every month spanned by p.
func MonthStarts(p Period) []time.Time {
	n := MonthsSpanned(p)
	months := make([]time.Time, 0, n)
	first := MonthStart(p.Start)
	for i := 0; i < n; i++ {
		months = append(months, first.AddDate(0, i, 0))
	}
	return months
}

// PerMonth prorates total evenly over months, rounded half away from zero
// to two decimals.
func PerMonth(total decimal.Decimal, months int) decimal.Decimal {
	if months <= 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(int64(months))).Round(2)
}

// MonthShare is one month's slice of a prorated total.
type MonthShare struct {
	Month  time.Time
	Amount decimal.Decimal
}

// SplitMonthly prorates total over the months of p. Every month gets
// PerMonth(total) except the last, which takes the rounding remainder so the
// shares always add back up to total.
func SplitMonthly(total decimal.Decimal, p Period) []MonthShare {
	months := MonthStarts(p)
	if len(months) == 0 {
		return nil
	}
	each := PerMonth(total, len(months))
	shares := make([]MonthShare, len(months))
	assigned := decimal.Zero
	for i, m := range months {
		amount := each
		if i == len(months)-1 {
			amount = total.Sub(assigned)
		}
		shares[i] = MonthShare{Month: m, Amount: amount}
		assigned = assigned.Add(amount)
	}
	return shares
}
