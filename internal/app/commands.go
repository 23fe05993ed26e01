package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"review_pulse/internal/domain"
)

// IngestionService copies an upstream review export into the staging table.
type IngestionService struct {
	export   domain.ExportClient
	repo     domain.RowStore
	cache    domain.Cache
	cacheKey string
	pageSize int
}

// NewIngestionService wires the ingestor. cacheKey names the dataset entry
// to evict after new rows land; empty disables eviction.
func NewIngestionService(c domain.ExportClient, r domain.RowStore, cache domain.Cache, cacheKey string, pageSize int) *IngestionService {
	if pageSize <= 0 {
		pageSize = 200
	}
	return &IngestionService{export: c, repo: r, cache: cache, cacheKey: cacheKey, pageSize: pageSize}
}

// IngestBrand pages through one brand until a short page. 404/401/403 are
// recorded as misses and end the brand without error.
func (s *IngestionService) IngestBrand(ctx context.Context, brand string) (int, error) {
	total := 0
	for page := 1; ; page++ {
		items, err := s.export.ListReviews(ctx, brand, page, s.pageSize)
		if err != nil {
			if status, reason, ok := missStatus(err); ok {
				_ = s.repo.LogMiss(ctx, brand, status, reason)
				return total, nil
			}
			return total, fmt.Errorf("list %s page %d: %w", brand, page, err)
		}
		if len(items) == 0 {
			break
		}

		rows, err := stageRows(brand, items)
		if err != nil {
			return total, err
		}
		if err := s.repo.UpsertRows(ctx, rows); err != nil {
			return total, fmt.Errorf("upsert %s page %d: %w", brand, page, err)
		}
		total += len(rows)
		log.Debug().Str("brand", brand).Int("page", page).Int("rows", len(rows)).Msg("page staged")

		if len(items) < s.pageSize {
			break
		}
	}

	if total > 0 && s.cache != nil && s.cacheKey != "" {
		_ = s.cache.Del(ctx, s.cacheKey)
	}
	return total, nil
}

func missStatus(err error) (int, string, bool) {
	low := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, domain.ErrNotFound) || strings.Contains(low, "not found"):
		return 404, "not found", true
	case strings.Contains(low, "401") || strings.Contains(low, "unauthorized"):
		return 401, "unauthorized", true
	case strings.Contains(low, "403") || strings.Contains(low, "forbidden"):
		return 403, "forbidden", true
	}
	return 0, "", false
}

// stageRows keeps the raw item as JSON and extracts the indexed columns.
// Items without a usable id get the same synthetic id the loader would build.
func stageRows(brand string, items []map[string]any) ([]domain.StagedRow, error) {
	table := domain.RawTable{Rows: make([]domain.RawRow, len(items))}
	for i, it := range items {
		table.Rows[i] = it
	}
	fm, _ := ResolveFields(tableColumns(table))

	rows := make([]domain.StagedRow, 0, len(items))
	for _, it := range items {
		switch {
		case fm.Brand == "":
			it["brand"] = brand
		case scalarString(it[fm.Brand]) == "":
			it[fm.Brand] = brand
		}
		raw, err := json.Marshal(it)
		if err != nil {
			return nil, fmt.Errorf("encode review: %w", err)
		}
		row := domain.StagedRow{Brand: brand, Raw: raw}
		if fm.Timestamp != "" {
			if ts, err := parseTimestamp(it[fm.Timestamp]); err == nil {
				u := ts.UTC()
				row.ReviewedAt = &u
			}
		}
		if fm.ID != "" {
			row.ReviewID = scalarString(it[fm.ID])
		}
		if row.ReviewID == "" {
			var content string
			if fm.Content != "" {
				content, _ = it[fm.Content].(string)
			}
			var rating *int
			if fm.Rating != "" {
				rating = parseRating(it[fm.Rating])
			}
			var ts time.Time
			if row.ReviewedAt != nil {
				ts = *row.ReviewedAt
			}
			row.ReviewID = syntheticID(brand, ts, rating, content)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
