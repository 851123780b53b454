// Package warehouse выполняет запросы таблиц данных и dry run схемы в BigQuery
package warehouse

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"reportserver/placeholder"
	"reportserver/report"
)

// Config параметры подключения к BigQuery
type Config struct {
	ProjectID       string
	Location        string
	CredentialsFile string
	CredentialsJSON string
}

// Client обертка над клиентом BigQuery
type Client struct {
	client   *bigquery.Client
	location string
}

// NewClient создает клиент BigQuery для проекта
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("GCP project ID is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	} else if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}

	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create BigQuery client: %w", err)
	}
	if cfg.Location != "" {
		client.Location = cfg.Location
	}

	return &Client{client: client, location: cfg.Location}, nil
}

// DryRun возвращает схему результата запроса, не выполняя его
func (c *Client) DryRun(ctx context.Context, sql string) ([]placeholder.FieldDescriptor, error) {
	q := c.client.Query(sql)
	q.DryRun = true
	q.DisableQueryCache = true

	job, err := q.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("dry run failed: %w", err)
	}

	status := job.LastStatus()
	if status == nil {
		return nil, errors.New("dry run returned no job status")
	}
	if err := status.Err(); err != nil {
		return nil, fmt.Errorf("dry run failed: %w", err)
	}
	if status.Statistics == nil {
		return nil, errors.New("dry run returned no statistics")
	}

	stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics)
	if !ok {
		return nil, errors.New("dry run returned no query statistics")
	}

	return SchemaFields(stats.Schema), nil
}

// Query выполняет параметризованный запрос и возвращает строки с JSON-совместимыми значениями
func (c *Client) Query(ctx context.Context, sql string, params []report.Param) (*report.QueryResult, error) {
	q := c.client.Query(sql)
	for _, p := range params {
		q.Parameters = append(q.Parameters, bigquery.QueryParameter{Name: p.Name, Value: p.Value})
	}

	start := time.Now()
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	result := &report.QueryResult{Rows: make([]report.Row, 0)}
	var types map[string]string
	for {
		var row map[string]bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}

		if types == nil {
			types = make(map[string]string, len(it.Schema))
			for _, f := range it.Schema {
				result.Columns = append(result.Columns, f.Name)
				types[f.Name] = string(f.Type)
			}
		}
		result.Rows = append(result.Rows, ConvertRow(row, types))
	}

	if result.Columns == nil {
		for _, f := range it.Schema {
			result.Columns = append(result.Columns, f.Name)
		}
	}

	log.Printf("BigQuery returned %d rows in %v", len(result.Rows), time.Since(start))
	return result, nil
}

// Close закрывает клиент BigQuery
func (c *Client) Close() error {
	return c.client.Close()
}

// SchemaFields переводит схему BigQuery в описания полей
func SchemaFields(schema bigquery.Schema) []placeholder.FieldDescriptor {
	fields := make([]placeholder.FieldDescriptor, 0, len(schema))
	for _, f := range schema {
		fields = append(fields, placeholder.FieldDescriptor{
			Name: f.Name,
			Type: strings.ToUpper(string(f.Type)),
			Mode: fieldMode(f),
		})
	}
	return fields
}

func fieldMode(f *bigquery.FieldSchema) string {
	switch {
	case f.Repeated:
		return "REPEATED"
	case f.Required:
		return "REQUIRED"
	}
	return "NULLABLE"
}

// ConvertRow приводит значения строки к JSON-совместимым типам
func ConvertRow(row map[string]bigquery.Value, types map[string]string) report.Row {
	out := make(report.Row, len(row))
	for name, value := range row {
		out[name] = ConvertValue(value, types[name])
	}
	return out
}

// ConvertValue: NUMERIC в строку, даты и время в ISO, байты в base64
func ConvertValue(value bigquery.Value, fieldType string) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case *big.Rat:
		if strings.EqualFold(fieldType, string(bigquery.BigNumericFieldType)) {
			return trimDecimal(bigquery.BigNumericString(v))
		}
		return trimDecimal(bigquery.NumericString(v))
	case civil.Date:
		return v.String()
	case civil.Time:
		return v.String()
	case civil.DateTime:
		return v.String()
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case []byte:
		return base64.StdEncoding.EncodeToString(v)
	case []bigquery.Value:
		items := make([]interface{}, 0, len(v))
		for _, item := range v {
			items = append(items, ConvertValue(item, fieldType))
		}
		return items
	case map[string]bigquery.Value:
		nested := make(map[string]interface{}, len(v))
		for k, item := range v {
			nested[k] = ConvertValue(item, "")
		}
		return nested
	}
	return value
}

// trimDecimal убирает незначащие нули дробной части
func trimDecimal(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
