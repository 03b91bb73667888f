// Package pricing computes reservation prices. The calculator is pure: the
// same items and dates always produce the same amount, so the server can
// recompute on every booking and compare against the client-quoted price.
package pricing

import (
	"math"
	"time"

	"github.com/dkhalmer/rentflow/internal/repository"
)

const dayMillis = 86_400_000

// bundleDiscount applies once the reservation covers more than one item.
const bundleDiscount = 0.10

var conditionDiscount = map[repository.Condition]float64{
	repository.ConditionPerfect:  0,
	repository.ConditionGood:     0.05,
	repository.ConditionSuitable: 0.10,
	repository.ConditionBroken:   0,
}

// defaultSeasonalSurcharge is keyed by calendar month of the rental start.
var defaultSeasonalSurcharge = [13]float64{
	time.January:   0,
	time.February:  0,
	time.March:     0,
	time.April:     0,
	time.May:       0.05,
	time.June:      0.10,
	time.July:      0.15,
	time.August:    0.15,
	time.September: 0.05,
	time.October:   0,
	time.November:  0,
	time.December:  0.10,
}

type Calculator struct {
	surcharge      [13]float64
	weekendHalfDay bool
}

type Option func(*Calculator)

// WithSeasonalSurcharge overrides the per-month surcharge table.
func WithSeasonalSurcharge(table [13]float64) Option {
	return func(c *Calculator) { c.surcharge = table }
}

// WithWeekendHalfDay bills the non-working remainder of a span at half the
// unit price whenever the span crosses the work-week/weekend boundary or
// covers more than five working days.
func WithWeekendHalfDay() Option {
	return func(c *Calculator) { c.weekendHalfDay = true }
}

func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{surcharge: defaultSeasonalSurcharge}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Days is the rental length in whole days, inclusive of both endpoints.
func Days(start, end time.Time) int {
	return int(math.Round(float64(end.Sub(start).Milliseconds())/dayMillis)) + 1
}

// Price returns the floored integer amount for renting items over
// [start, end]. An empty item set prices to zero.
func (c *Calculator) Price(items []*repository.Item, start, end time.Time) int {
	if len(items) == 0 {
		return 0
	}

	days := Days(start, end)
	surcharge := c.surcharge[start.Month()]

	var unitSum float64
	for _, item := range items {
		base := float64(item.BasePrice)
		unitSum += base * (1 - conditionDiscount[item.Condition]) * (1 + surcharge)
	}

	total := unitSum * c.billableDays(start, days)
	if len(items) > 1 {
		total -= total * bundleDiscount
	}
	return int(math.Floor(total))
}

// billableDays is the day multiplier. With the weekend half-day rule off it
// is simply the inclusive day count.
func (c *Calculator) billableDays(start time.Time, days int) float64 {
	if !c.weekendHalfDay {
		return float64(days)
	}

	var working, weekend int
	for d := 0; d < days; d++ {
		switch start.AddDate(0, 0, d).Weekday() {
		case time.Saturday, time.Sunday:
			weekend++
		default:
			working++
		}
	}

	crossesBoundary := working > 0 && weekend > 0
	if weekend > 0 && (crossesBoundary || working > 5) {
		return float64(working) + 0.5*float64(weekend)
	}
	return float64(days)
}
