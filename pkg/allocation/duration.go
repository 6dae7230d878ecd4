package allocation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/slatecarbon/slatecarbon/pkg/model"
)

// DurationWeigher supplies a project's weight for duration-based allocation.
type DurationWeigher interface {
	// Weight returns a non-negative weight for p against the record's
	// allocation period [periodStart, periodEnd).
	Weight(p model.Project, periodStart, periodEnd time.Time) decimal.Decimal
}

// MonthOverlapWeigher weighs a project by how many days of its planned
// start/end window fall inside the record's period. Projects with no usable
// dates weigh zero, which degrades to an equal split when that holds for
// every target.
type MonthOverlapWeigher struct{}

func (MonthOverlapWeigher) Weight(p model.Project, periodStart, periodEnd time.Time) decimal.Decimal {
	if p.StartDate.IsZero() || p.EndDate.IsZero() || p.EndDate.Before(p.StartDate) {
		return decimal.Zero
	}
	start := p.StartDate
	if periodStart.After(start) {
		start = periodStart
	}
	// Project end dates are inclusive; the period end is exclusive.
	end := p.EndDate.AddDate(0, 0, 1)
	if periodEnd.Before(end) {
		end = periodEnd
	}
	if !end.After(start) {
		return decimal.Zero
	}
	days := int64(end.Sub(start).Hours() / 24)
	return decimal.NewFromInt(days)
}

// TotalDurationWeigher weighs a project by its whole planned duration in days,
// ignoring the record's period.
type TotalDurationWeigher struct{}

func (TotalDurationWeigher) Weight(p model.Project, _, _ time.Time) decimal.Decimal {
	if p.StartDate.IsZero() || p.EndDate.IsZero() || p.EndDate.Before(p.StartDate) {
		return decimal.Zero
	}
	days := int64(p.EndDate.AddDate(0, 0, 1).Sub(p.StartDate).Hours() / 24)
	return decimal.NewFromInt(days)
}

// recordPeriod is the calendar month of the record's date, or a zero window
// when the record carries no date.
func recordPeriod(rec model.OperationalRecord) (time.Time, time.Time) {
	if rec.OccurredOn.IsZero() {
		return time.Time{}, time.Time{}
	}
	y, m, _ := rec.OccurredOn.Date()
	start := time.Date(y, m, 1, 0, 0, 0, 0, rec.OccurredOn.Location())
	return start, start.AddDate(0, 1, 0)
}
