package report

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name      string
		value     interface{}
		format    string
		fieldType string
		want      string
	}{
		{"nil", nil, FormatUSD, "FLOAT64", ""},
		{"integer", int64(1234567), FormatInteger, "INT64", "1,234,567"},
		{"integer from float rounds half even", 2.5, FormatInteger, "FLOAT64", "2"},
		{"decimal 2", "1234.5", FormatDecimal2, "NUMERIC", "1,234.50"},
		{"usd", 1234.5, FormatUSD, "FLOAT", "$1,234.50"},
		{"negative usd keeps sign after symbol", -1234.5, FormatUSD, "FLOAT", "$-1,234.50"},
		{"negative eur", "-5", FormatEUR, "NUMERIC", "€-5.00"},
		{"eur", int64(99), FormatEUR, "INTEGER", "€99.00"},
		{"percent", 0.1234, FormatPercent2, "FLOAT64", "12.34%"},
		{"big rat", big.NewRat(5, 2), FormatDecimal2, "NUMERIC", "2.50"},
		{"string type is not formatted", "1234.5", FormatUSD, "STRING", "1234.5"},
		{"no format", 12.5, "", "FLOAT64", "12.5"},
		{"unknown format", int64(7), "ROMAN", "INT64", "7"},
		{"not a number", "abc", FormatUSD, "NUMERIC", "abc"},
		{"small number", int64(12), FormatInteger, "INT64", "12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.value, tt.format, tt.fieldType))
		})
	}
}

func TestGroupThousands(t *testing.T) {
	assert.Equal(t, "0", groupThousands("0"))
	assert.Equal(t, "999", groupThousands("999"))
	assert.Equal(t, "1,000", groupThousands("1000"))
	assert.Equal(t, "-12,345.67", groupThousands("-12345.67"))
	assert.Equal(t, "123,456,789", groupThousands("123456789"))
}

func TestAggregate(t *testing.T) {
	values := []interface{}{int64(10), 20.5, "30", nil, "n/a", int64(10)}

	assert.True(t, decimal.RequireFromString("70.5").Equal(Aggregate(values, AggSum)))
	assert.True(t, decimal.RequireFromString("17.625").Equal(Aggregate(values, AggAverage)))
	assert.True(t, decimal.NewFromInt(10).Equal(Aggregate(values, AggMin)))
	assert.True(t, decimal.NewFromInt(30).Equal(Aggregate(values, "max")))
	assert.True(t, decimal.NewFromInt(5).Equal(Aggregate(values, AggCount)))
	assert.True(t, decimal.NewFromInt(4).Equal(Aggregate(values, AggCountDistinct)))
	assert.True(t, decimal.Zero.Equal(Aggregate(nil, AggSum)))
	assert.True(t, decimal.Zero.Equal(Aggregate(values, "MEDIAN")))
}
