// Package bqsource reads the review table straight from BigQuery.
package bqsource

import (
	"context"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"review_pulse/internal/adapters/observability"
	"review_pulse/internal/domain"
)

var identRe = regexp.MustCompile(`^[A-Za-z0-9_\-]+(\.[A-Za-z0-9_\-]+){0,2}$`)

type Source struct {
	client       *bigquery.Client
	table        string
	timeColumn   string
	lookbackDays int
}

// New opens a client for project. table is "dataset.table" or
// "project.dataset.table"; lookbackDays > 0 limits rows by timeColumn.
func New(ctx context.Context, project, table, timeColumn string, lookbackDays int, opts ...option.ClientOption) (*Source, error) {
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("invalid bigquery table %q", table)
	}
	if lookbackDays > 0 && !identRe.MatchString(timeColumn) {
		return nil, fmt.Errorf("invalid bigquery time column %q", timeColumn)
	}
	c, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery client: %w", err)
	}
	return &Source{client: c, table: table, timeColumn: timeColumn, lookbackDays: lookbackDays}, nil
}

func (s *Source) Name() string { return "bigquery" }

func (s *Source) Close() error { return s.client.Close() }

func buildQuery(table, timeColumn string, lookbackDays int) string {
	q := "SELECT * FROM `" + table + "`"
	if lookbackDays > 0 {
		q += " WHERE DATE(`" + timeColumn + "`) >= DATE_SUB(CURRENT_DATE(), INTERVAL @days DAY)"
	}
	return q
}

// Fetch runs one query; the result schema gives the column order.
func (s *Source) Fetch(ctx context.Context) (domain.RawTable, error) {
	start := time.Now()
	q := s.client.Query(buildQuery(s.table, s.timeColumn, s.lookbackDays))
	if s.lookbackDays > 0 {
		q.Parameters = []bigquery.QueryParameter{{Name: "days", Value: s.lookbackDays}}
	}
	it, err := q.Read(ctx)
	if err != nil {
		observability.ObserveExternal("bigquery", "query", 500, time.Since(start))
		return domain.RawTable{}, fmt.Errorf("%w: bigquery query: %v", domain.ErrSourceUnavailable, err)
	}

	var out domain.RawTable
	for {
		var row map[string]bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			observability.ObserveExternal("bigquery", "query", 500, time.Since(start))
			return domain.RawTable{}, fmt.Errorf("%w: bigquery read: %v", domain.ErrSourceUnavailable, err)
		}
		out.Rows = append(out.Rows, convertRow(row))
	}
	// the iterator knows its schema once it is drained, even for zero rows
	out.Columns = schemaColumns(it.Schema)
	observability.ObserveExternal("bigquery", "query", 200, time.Since(start))
	log.Debug().Str("table", s.table).Int("rows", len(out.Rows)).Dur("duration", time.Since(start)).Msg("bigquery fetch")
	return out, nil
}

func schemaColumns(sch bigquery.Schema) []string {
	cols := make([]string, 0, len(sch))
	for _, f := range sch {
		cols = append(cols, f.Name)
	}
	return cols
}

func convertRow(row map[string]bigquery.Value) domain.RawRow {
	out := make(domain.RawRow, len(row))
	for k, v := range row {
		out[k] = convertValue(v)
	}
	return out
}

// convertValue lowers BigQuery values to the plain types the loader reads:
// NUMERIC to float64, civil date/time to strings, repeated and record
// fields to []any and map[string]any.
func convertValue(v bigquery.Value) any {
	switch t := v.(type) {
	case nil:
		return nil
	case *big.Rat:
		if t == nil {
			return nil
		}
		f, _ := t.Float64()
		return f
	case []bigquery.Value:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = convertValue(e)
		}
		return out
	case map[string]bigquery.Value:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = convertValue(e)
		}
		return out
	case time.Time, string, int64, float64, bool:
		return t
	case fmt.Stringer:
		return t.String()
	}
	return v
}
