package allocation

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Figures pairs an allocated amount with what has actually been spent
// against it. Remaining and percentage are always derived, never stored.
type Figures struct {
	Allocated decimal.Decimal
	Realized  decimal.Decimal
}

// Remaining is Allocated minus Realized. It goes negative on overspend.
func (f Figures) Remaining() decimal.Decimal {
	return f.Allocated.Sub(f.Realized)
}

// Percentage returns Realized/Allocated*100 at full precision. ok is false
// when nothing was allocated.
func (f Figures) Percentage() (pct decimal.Decimal, ok bool) {
	if f.Allocated.IsZero() {
		return decimal.Zero, false
	}
	return f.Realized.Div(f.Allocated).Mul(hundred), true
}

// DisplayPercentage is Percentage rounded to two decimals, or nil when the
// percentage is undefined.
func (f Figures) DisplayPercentage() *float64 {
	pct, ok := f.Percentage()
	if !ok {
		return nil
	}
	v := pct.Round(2).InexactFloat64()
	return &v
}

// OverBudget reports whether more was realized than allocated.
func (f Figures) OverBudget() bool {
	return f.Realized.GreaterThan(f.Allocated)
}

// Status is the derived lifecycle state of a persisted budget.
type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// StatusAt derives a budget's status from its period; nothing is stored.
func StatusAt(p Period, now time.Time) Status {
	if p.ActiveAt(now) {
		return StatusActive
	}
	return StatusClosed
}
