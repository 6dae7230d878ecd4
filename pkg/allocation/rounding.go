package allocation

import (
	"sort"

	"github.com/shopspring/decimal"
)

// amountPlaces is the smallest tracked unit of an emission amount: 0.01 kg CO2e.
const amountPlaces = 2

var minUnit = decimal.New(1, -amountPlaces)

// apportion splits total across weights so the parts sum back to total exactly.
// Each raw share is floored to the minimal unit, then the leftover units are
// handed out one at a time to the largest fractional remainders. Ties go to the
// lowest index, so callers control tie-breaking by ordering their inputs.
// An all-zero weight vector degrades to an equal split.
func apportion(total decimal.Decimal, weights []decimal.Decimal) []decimal.Decimal {
	if len(weights) == 0 {
		return nil
	}
	total = total.Round(amountPlaces)

	sum := decimal.Zero
	for _, w := range weights {
		sum = sum.Add(w)
	}
	if sum.IsZero() {
		weights = make([]decimal.Decimal, len(weights))
		for i := range weights {
			weights[i] = decimal.New(1, 0)
		}
		sum = decimal.NewFromInt(int64(len(weights)))
	}

	shares := make([]decimal.Decimal, len(weights))
	remainders := make([]decimal.Decimal, len(weights))
	floored := decimal.Zero
	for i, w := range weights {
		raw := total.Mul(w).Div(sum)
		shares[i] = raw.RoundFloor(amountPlaces)
		remainders[i] = raw.Sub(shares[i])
		floored = floored.Add(shares[i])
	}

	// total and every floored share are exact multiples of the minimal unit,
	// so the residual is a whole number of units.
	residual := total.Sub(floored).Shift(amountPlaces).IntPart()

	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]].GreaterThan(remainders[order[b]])
	})

	for u := int64(0); u < residual; u++ {
		i := order[u%int64(len(order))]
		shares[i] = shares[i].Add(minUnit)
	}
	return shares
}
