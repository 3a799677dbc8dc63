// Package allocation holds the pure budget allocation rules: the parent/child
// budget union, weight arithmetic, calendar-month prorating and the derived
// realization figures. Nothing in this package touches storage.
package allocation

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// WeightSumTolerance is the maximum distance between the sum of a child
// budget's allocation weights and 1.0 for the set to be accepted.
const WeightSumTolerance = 0.001

// DateLayout is the wire format of budget period boundaries.
const DateLayout = "2006-01-02"

// ErrPeriodOrder is returned when a period does not end after it starts.
var ErrPeriodOrder = errors.New("period end must be after period start")

// Kind discriminates parent (annual) budgets from child (sub-period) budgets.
type Kind string

const (
	KindParent Kind = "parent"
	KindChild  Kind = "child"
)

// Period is an inclusive range of whole days, stored as UTC midnights.
type Period struct {
	Start time.Time
	End   time.Time
}

// NewPeriod normalises both boundaries to UTC dates and checks their order.
func NewPeriod(start, end time.Time) (Period, error) {
	p := Period{Start: truncateDay(start), End: truncateDay(end)}
	if !p.End.After(p.Start) {
		return Period{}, ErrPeriodOrder
	}
	return p, nil
}

// ParseDate accepts either a plain date or an RFC 3339 timestamp and returns
// the UTC midnight of that day.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return truncateDay(t), nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Contains reports whether o lies completely inside p.
func (p Period) Contains(o Period) bool {
	return !o.Start.Before(p.Start) && !o.End.After(p.End)
}

// Window returns the half-open timestamp range [from, to) covered by the
// period, so that usage recorded at any time on the last day is included.
func (p Period) Window() (from, to time.Time) {
	return p.Start, p.End.AddDate(0, 0, 1)
}

// ActiveAt reports whether t falls on one of the period's days.
func (p Period) ActiveAt(t time.Time) bool {
	from, to := p.Window()
	return !t.Before(from) && t.Before(to)
}

// ShiftYears moves both boundaries by n years.
func (p Period) ShiftYears(n int) Period {
	return Period{Start: p.Start.AddDate(n, 0, 0), End: p.End.AddDate(n, 0, 0)}
}

func (p Period) String() string {
	return p.Start.Format(DateLayout) + ".." + p.End.Format(DateLayout)
}

// Allocation is one weighted meter share of a child budget.
type Allocation struct {
	MeterID uint
	Weight  float64
}

// Budget is a validated budget: either a Parent or a Child.
type Budget interface {
	Kind() Kind
	isBudget()
}

// Parent is an annual budget for one energy type. It never holds meter
// allocations directly.
type Parent struct {
	Period        Period
	TotalBudget   decimal.Decimal
	EfficiencyTag float64
	EnergyTypeID  uint
}

func (Parent) Kind() Kind { return KindParent }
func (Parent) isBudget()  {}

// Child is a sub-period budget under a parent. Its energy type always comes
// from the parent and can only be set through NewChild.
type Child struct {
	ParentID uint
	Period   Period
	// TotalBudget is nil when the child should take the parent's remaining
	// capacity at write time.
	TotalBudget *decimal.Decimal
	Allocations []Allocation

	energyTypeID uint
}

// NewChild builds a child budget inheriting parentEnergyTypeID.
func NewChild(parentID, parentEnergyTypeID uint, period Period, total *decimal.Decimal, allocations []Allocation) Child {
	return Child{
		ParentID:     parentID,
		Period:       period,
		TotalBudget:  total,
		Allocations:  allocations,
		energyTypeID: parentEnergyTypeID,
	}
}

// EnergyTypeID returns the energy type inherited from the parent.
func (c Child) EnergyTypeID() uint { return c.energyTypeID }

func (Child) Kind() Kind { return KindChild }
func (Child) isBudget()  {}

// SumWeights adds up the weights of allocations.
func SumWeights(allocations []Allocation) float64 {
	var sum float64
	for _, a := range allocations {
		sum += a.Weight
	}
	return sum
}

// WeightsBalanced reports whether sum is within WeightSumTolerance of 1.
func WeightsBalanced(sum float64) bool {
	return math.Abs(sum-1) < WeightSumTolerance
}

// AllocatedAmount is the share of total attributed to a single weight.
func AllocatedAmount(total decimal.Decimal, weight float64) decimal.Decimal {
	return total.Mul(decimal.NewFromFloat(weight))
}
