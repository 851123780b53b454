package report

import (
	"fmt"
	"log"
	"math/big"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Форматы чисел
const (
	FormatInteger  = "INTEGER"
	FormatDecimal2 = "DECIMAL_2"
	FormatUSD      = "USD"
	FormatEUR      = "EUR"
	FormatPercent2 = "PERCENT_2"
)

var numericTypes = map[string]bool{
	"INTEGER":    true,
	"INT64":      true,
	"FLOAT":      true,
	"FLOAT64":    true,
	"NUMERIC":    true,
	"DECIMAL":    true,
	"BIGNUMERIC": true,
	"BIGDECIMAL": true,
}

// IsNumericType числовой ли тип BigQuery
func IsNumericType(fieldType string) bool {
	return numericTypes[strings.ToUpper(fieldType)]
}

// FormatValue форматирует значение ячейки. Формат применяется только к числовым типам.
func FormatValue(value interface{}, format, fieldType string) string {
	if value == nil {
		return ""
	}
	if format == "" || !IsNumericType(fieldType) {
		return stringify(value)
	}

	d, ok := toDecimal(value)
	if !ok {
		log.Printf("Formatting skipped for %v with format %s: not a number", value, format)
		return stringify(value)
	}

	switch strings.ToUpper(format) {
	case FormatInteger:
		return groupThousands(d.StringFixedBank(0))
	case FormatDecimal2:
		return groupThousands(d.StringFixedBank(2))
	case FormatUSD:
		return withCurrency("$", d)
	case FormatEUR:
		return withCurrency("€", d)
	case FormatPercent2:
		return groupThousands(d.Mul(decimal.NewFromInt(100)).StringFixedBank(2)) + "%"
	}
	return stringify(value)
}

// withCurrency ставит символ перед знаком: $-1,234.50
func withCurrency(symbol string, d decimal.Decimal) string {
	return symbol + groupThousands(d.StringFixedBank(2))
}

// groupThousands вставляет запятые в целую часть числа
func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + frac
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case decimal.Decimal:
		return v.String()
	case *big.Rat:
		return v.FloatString(9)
	}
	return fmt.Sprint(value)
}

// toDecimal приводит значение строки к десятичному числу
func toDecimal(value interface{}) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case float64:
		return decimal.NewFromFloat(v), true
	case float32:
		return decimal.NewFromFloat32(v), true
	case *big.Rat:
		d, err := decimal.NewFromString(v.FloatString(9))
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		return d, err == nil
	}
	return decimal.Decimal{}, false
}
