package domain

import (
	"context"
	"time"
)

// ReviewSource supplies raw rows. Fetch either returns the whole table or an
// error wrapping ErrSourceUnavailable; partial tables are never returned.
type ReviewSource interface {
	Name() string
	Fetch(ctx context.Context) (RawTable, error)
}

// RowStore is the staging warehouse written by the ingestor.
type RowStore interface {
	UpsertRows(ctx context.Context, rows []StagedRow) error
	LogMiss(ctx context.Context, brand string, status int, reason string) error
}

// ExportClient pages through an upstream review export.
type ExportClient interface {
	ListReviews(ctx context.Context, brand string, page, limit int) ([]map[string]any, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// StagedRow is one raw row as persisted in the staging table.
type StagedRow struct {
	ReviewID   string
	Brand      string
	ReviewedAt *time.Time
	Raw        []byte
}
