package warehouse

import (
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"

	"reportserver/placeholder"
)

func TestSchemaFields(t *testing.T) {
	schema := bigquery.Schema{
		{Name: "region", Type: bigquery.StringFieldType},
		{Name: "amount", Type: bigquery.NumericFieldType, Required: true},
		{Name: "tags", Type: bigquery.StringFieldType, Repeated: true},
	}

	assert.Equal(t, []placeholder.FieldDescriptor{
		{Name: "region", Type: "STRING", Mode: "NULLABLE"},
		{Name: "amount", Type: "NUMERIC", Mode: "REQUIRED"},
		{Name: "tags", Type: "STRING", Mode: "REPEATED"},
	}, SchemaFields(schema))
}

func TestConvertRow(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	row := map[string]bigquery.Value{
		"amount":  big.NewRat(2469, 2),
		"whole":   big.NewRat(5, 1),
		"day":     civil.Date{Year: 2024, Month: 5, Day: 1},
		"at":      ts,
		"blob":    []byte("hi"),
		"count":   int64(3),
		"missing": nil,
		"tags":    []bigquery.Value{civil.Date{Year: 2024, Month: 1, Day: 2}, "x"},
	}
	types := map[string]string{"amount": "NUMERIC", "whole": "BIGNUMERIC"}

	got := ConvertRow(row, types)
	assert.Equal(t, "1234.5", got["amount"])
	assert.Equal(t, "5", got["whole"])
	assert.Equal(t, "2024-05-01", got["day"])
	assert.Equal(t, "2024-05-01T12:30:00Z", got["at"])
	assert.Equal(t, "aGk=", got["blob"])
	assert.Equal(t, int64(3), got["count"])
	assert.Nil(t, got["missing"])
	assert.Equal(t, []interface{}{"2024-01-02", "x"}, got["tags"])
}

func TestTrimDecimal(t *testing.T) {
	assert.Equal(t, "12.5", trimDecimal("12.500000000"))
	assert.Equal(t, "12", trimDecimal("12.000000000"))
	assert.Equal(t, "100", trimDecimal("100"))
}
