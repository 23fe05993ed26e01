package mysql

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"review_pulse/internal/domain"
)

// maxBatch keeps a single INSERT well under max_allowed_packet.
const maxBatch = 500

func valTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC()
}

// Repo is the staging warehouse: the ingestor writes it, the api reads it
// as a ReviewSource.
type Repo struct {
	db       *sql.DB
	lookback time.Duration
	now      func() time.Time
}

func New(db *sql.DB) *Repo { return &Repo{db: db, now: time.Now} }

// WithLookback limits Fetch to rows reviewed within d; zero reads everything.
func (r *Repo) WithLookback(d time.Duration) *Repo {
	r.lookback = d
	return r
}

func (r *Repo) Name() string { return "mysql" }

func (r *Repo) UpsertRows(ctx context.Context, rows []domain.StagedRow) error {
	for start := 0; start < len(rows); start += maxBatch {
		end := start + maxBatch
		if end > len(rows) {
			end = len(rows)
		}
		if err := r.upsertBatch(ctx, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) upsertBatch(ctx context.Context, rows []domain.StagedRow) error {
	if len(rows) == 0 {
		return nil
	}
	values := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*4)
	for _, rw := range rows {
		values = append(values, "(?,?,?,?)")
		args = append(args,
			rw.ReviewID,
			rw.Brand,
			valTime(rw.ReviewedAt),
			string(rw.Raw),
		)
	}
	sqlStr := insertRowsPrefix + strings.Join(values, ",") + insertRowsOnDup
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *Repo) LogMiss(ctx context.Context, brand string, status int, reason string) error {
	_, err := r.db.ExecContext(ctx, insertMissSQL, brand, status, reason)
	return err
}

// Fetch reads every staged row back as a RawTable. Numbers are kept as
// json.Number so ids and ratings survive without float rounding.
func (r *Repo) Fetch(ctx context.Context) (domain.RawTable, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if r.lookback > 0 {
		rows, err = r.db.QueryContext(ctx, selectRowsSinceSQL, r.now().Add(-r.lookback).UTC())
	} else {
		rows, err = r.db.QueryContext(ctx, selectRowsSQL)
	}
	if err != nil {
		return domain.RawTable{}, fmt.Errorf("%w: mysql: %v", domain.ErrSourceUnavailable, err)
	}
	defer rows.Close()

	var out domain.RawTable
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return domain.RawTable{}, fmt.Errorf("%w: mysql scan: %v", domain.ErrSourceUnavailable, err)
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var row map[string]any
		if err := dec.Decode(&row); err != nil || row == nil {
			// one corrupt blob must not fail the load
			continue
		}
		out.Rows = append(out.Rows, domain.RawRow(row))
	}
	if err := rows.Err(); err != nil {
		return domain.RawTable{}, fmt.Errorf("%w: mysql: %v", domain.ErrSourceUnavailable, err)
	}
	return out, nil
}
