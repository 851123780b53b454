package report

import (
	"log"
	"strings"

	"github.com/shopspring/decimal"
)

// Aggregate вычисляет агрегат по значениям колонки.
// SUM, AVERAGE, MIN и MAX учитывают только числа; COUNT и COUNT_DISTINCT считают непустые значения.
func Aggregate(values []interface{}, aggregation string) decimal.Decimal {
	agg := strings.ToUpper(aggregation)

	switch agg {
	case AggCount:
		n := 0
		for _, v := range values {
			if v != nil {
				n++
			}
		}
		return decimal.NewFromInt(int64(n))
	case AggCountDistinct:
		seen := make(map[string]struct{})
		for _, v := range values {
			if v == nil {
				continue
			}
			key := stringify(v)
			if d, ok := toDecimal(v); ok {
				key = d.String()
			}
			seen[key] = struct{}{}
		}
		return decimal.NewFromInt(int64(len(seen)))
	}

	numbers := make([]decimal.Decimal, 0, len(values))
	for _, v := range values {
		if d, ok := toDecimal(v); ok {
			numbers = append(numbers, d)
		}
	}
	if len(numbers) == 0 {
		return decimal.Zero
	}

	switch agg {
	case AggSum:
		return decimal.Sum(numbers[0], numbers[1:]...)
	case AggAverage:
		return decimal.Avg(numbers[0], numbers[1:]...)
	case AggMin:
		return decimal.Min(numbers[0], numbers[1:]...)
	case AggMax:
		return decimal.Max(numbers[0], numbers[1:]...)
	}

	log.Printf("Unknown aggregation type %q, returning 0", aggregation)
	return decimal.Zero
}

// ValidAggregation известен ли тип агрегата
func ValidAggregation(aggregation string) bool {
	switch strings.ToUpper(aggregation) {
	case AggSum, AggAverage, AggMin, AggMax, AggCount, AggCountDistinct:
		return true
	}
	return false
}
