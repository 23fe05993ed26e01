package app

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"review_pulse/internal/adapters/observability"
	"review_pulse/internal/domain"
)

// QueryService loads the dataset once per TTL and answers every dashboard
// query from it. Queries never touch the source.
type QueryService struct {
	src      domain.ReviewSource
	cache    domain.Cache
	cacheTTL time.Duration
	loc      *time.Location
	policy   domain.Policy
	now      func() time.Time

	sf      singleflight.Group
	mu      sync.Mutex
	local   *domain.Dataset
	expires time.Time
}

func NewQueryService(src domain.ReviewSource, c domain.Cache, ttl time.Duration, loc *time.Location, p domain.Policy) *QueryService {
	if loc == nil {
		loc = time.UTC
	}
	return &QueryService{src: src, cache: c, cacheTTL: ttl, loc: loc, policy: p, now: time.Now}
}

func (s *QueryService) Policy() domain.Policy { return s.policy }

// DatasetCacheKey is the shared-cache key of the dataset loaded from source.
// The ingestor evicts it after staging new rows.
func DatasetCacheKey(source string) string { return "dataset:v1:" + source }

func (s *QueryService) cacheKey() string { return DatasetCacheKey(s.src.Name()) }

// WithClock replaces the clock used for load times and slot expiry.
func (s *QueryService) WithClock(now func() time.Time) *QueryService {
	s.now = now
	return s
}

// Dataset returns the current load: process-local slot, then the shared
// cache, then the source. Concurrent misses share a single load.
func (s *QueryService) Dataset(ctx context.Context) (*domain.Dataset, error) {
	s.mu.Lock()
	if s.local != nil && s.now().Before(s.expires) {
		ds := s.local
		s.mu.Unlock()
		observability.ObserveCache("local", "hit")
		return ds, nil
	}
	s.mu.Unlock()
	observability.ObserveCache("local", "miss")

	v, err, _ := s.sf.Do(s.cacheKey(), func() (any, error) {
		if s.cache != nil {
			var ds domain.Dataset
			if ok, err := s.cache.Get(ctx, s.cacheKey(), &ds); err != nil {
				log.Warn().Err(err).Str("key", s.cacheKey()).Msg("dataset cache read failed")
			} else if ok && s.now().Before(ds.LoadedAt.Add(s.cacheTTL)) {
				s.keep(&ds)
				return &ds, nil
			} else if ok {
				observability.ObserveCache("shared", "stale")
			}
		}
		ds, err := s.load(ctx)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, s.cacheKey(), ds, int(s.cacheTTL.Seconds())); err != nil {
				log.Warn().Err(err).Str("key", s.cacheKey()).Msg("dataset cache write failed")
			}
		}
		s.keep(ds)
		return ds, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Dataset), nil
}

// keep stores ds in the local slot until TTL after its load, not after this
// read, so a copy taken from the shared cache never outlives the original.
func (s *QueryService) keep(ds *domain.Dataset) {
	s.mu.Lock()
	s.local = ds
	s.expires = ds.LoadedAt.Add(s.cacheTTL)
	s.mu.Unlock()
}

// Invalidate drops both cache tiers; the next query reloads from the source.
func (s *QueryService) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	s.local = nil
	s.mu.Unlock()
	if s.cache == nil {
		return nil
	}
	return s.cache.Del(ctx, s.cacheKey())
}

// load fetches, resolves fields, detects themes and normalizes every row.
func (s *QueryService) load(ctx context.Context) (*domain.Dataset, error) {
	start := time.Now()
	ds, err := s.build(ctx)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.ObserveDatasetLoad(s.src.Name(), outcome, time.Since(start))
	if err != nil {
		log.Error().Err(err).Str("source", s.src.Name()).Msg("dataset load failed")
		return nil, err
	}
	observability.SetThemesDetected(len(ds.Schema.StatColumns()))
	log.Info().
		Str("source", ds.Source).
		Int("records", len(ds.Records)).
		Int("themes", len(ds.Schema.Columns)).
		Int("flagged", len(ds.Schema.Flagged)).
		Dur("duration", time.Since(start)).
		Msg("dataset loaded")
	return ds, nil
}

func (s *QueryService) build(ctx context.Context) (*domain.Dataset, error) {
	table, err := s.src.Fetch(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrSourceUnavailable) || errors.Is(err, domain.ErrSchemaMismatch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrSourceUnavailable, s.src.Name(), err)
	}

	// an empty load is a valid empty result; there is nothing to resolve
	if len(table.Rows) == 0 {
		return &domain.Dataset{
			Source:      s.src.Name(),
			Schema:      domain.ThemeSchema{Columns: []domain.ThemeDefinition{}, NetGroups: []domain.NetGroup{}},
			Records:     []domain.ReviewRecord{},
			Fingerprint: fingerprint(tableColumns(table), nil),
			LoadedAt:    s.now().UTC(),
		}, nil
	}

	fields, err := ResolveFields(tableColumns(table))
	if err != nil {
		return nil, err
	}
	schema := DetectThemes(table)
	for _, col := range schema.Flagged {
		log.Warn().Str("column", col).Msg("NET column is not binary, excluded from statistics")
	}

	n := Normalizer{Fields: fields, Themes: schema.StatColumns(), Loc: s.loc, Policy: s.policy}
	records := make([]domain.ReviewRecord, 0, len(table.Rows))
	dropped := map[string]int{}
	seen := make(map[string]struct{}, len(table.Rows))
	for _, row := range table.Rows {
		rec, err := n.Normalize(row)
		if err != nil {
			var mre *domain.MalformedRecordError
			if errors.As(err, &mre) {
				s.drop(dropped, mre)
				continue
			}
			return nil, err
		}
		if _, dup := seen[rec.ID]; dup {
			s.drop(dropped, &domain.MalformedRecordError{ID: rec.ID, Reason: domain.ReasonDuplicateID})
			continue
		}
		seen[rec.ID] = struct{}{}
		records = append(records, rec)
	}
	if len(dropped) == 0 {
		dropped = nil
	}

	return &domain.Dataset{
		Source:      s.src.Name(),
		Fields:      fields,
		Schema:      schema,
		Records:     records,
		Dropped:     dropped,
		Fingerprint: fingerprint(tableColumns(table), records),
		LoadedAt:    s.now().UTC(),
	}, nil
}

func (s *QueryService) drop(counts map[string]int, e *domain.MalformedRecordError) {
	counts[e.Reason]++
	observability.ObserveDropped(e.Reason)
	log.Warn().Str("id", e.ID).Str("reason", e.Reason).Err(e.Err).Msg("record dropped")
}

// fingerprint identifies a load by its column set, size and newest review.
func fingerprint(columns []string, records []domain.ReviewRecord) string {
	cols := append([]string(nil), columns...)
	sort.Strings(cols)
	var newest time.Time
	for i := range records {
		if records[i].Timestamp.After(newest) {
			newest = records[i].Timestamp
		}
	}
	sig := strings.Join(cols, ",") + "|" + strconv.Itoa(len(records)) + "|" + newest.Format(time.RFC3339Nano)
	sum := sha1.Sum([]byte(sig))
	return hex.EncodeToString(sum[:])
}

/********** dashboard queries **********/

func (s *QueryService) selection(ctx context.Context, f domain.FilterSpec) (*domain.Dataset, []domain.ReviewRecord, error) {
	ds, err := s.Dataset(ctx)
	if err != nil {
		return nil, nil, err
	}
	return ds, ApplyFilters(ds.Records, f), nil
}

func (s *QueryService) Schema(ctx context.Context) (domain.DatasetInfo, error) {
	ds, err := s.Dataset(ctx)
	if err != nil {
		return domain.DatasetInfo{}, err
	}
	return ds.Info(), nil
}

func (s *QueryService) FilterOptions(ctx context.Context) (domain.FilterOptions, error) {
	ds, err := s.Dataset(ctx)
	if err != nil {
		return domain.FilterOptions{}, err
	}
	return Options(ds.Records), nil
}

func (s *QueryService) ThemeImpact(ctx context.Context, f domain.FilterSpec) ([]domain.ImpactRow, error) {
	ds, recs, err := s.selection(ctx, f)
	if err != nil {
		return nil, err
	}
	return ThemeImpact(recs, ds.Schema), nil
}

func (s *QueryService) NetImpact(ctx context.Context, f domain.FilterSpec) ([]domain.ImpactRow, error) {
	ds, recs, err := s.selection(ctx, f)
	if err != nil {
		return nil, err
	}
	return NetImpact(recs, ds.Schema), nil
}

// Split uses the configured driver and barrier bands; k <= 0 takes the policy default.
func (s *QueryService) Split(ctx context.Context, f domain.FilterSpec, k int) (domain.Split, error) {
	ds, recs, err := s.selection(ctx, f)
	if err != nil {
		return domain.Split{}, err
	}
	if k <= 0 {
		k = s.policy.SplitTopK
	}
	return DriverBarrierSplit(recs, ds.Schema, k, s.policy.Drivers, s.policy.Barriers), nil
}

func (s *QueryService) Matrix(ctx context.Context, f domain.FilterSpec, req domain.MatrixRequest) (domain.Matrix, error) {
	ds, recs, err := s.selection(ctx, f)
	if err != nil {
		return domain.Matrix{}, err
	}
	if req.K <= 0 {
		req.K = s.policy.MatrixTopK
	}
	if len(req.Brands) == 0 {
		req.Brands = f.Brands
	}
	return PivotMatrix(recs, ds.Schema, req), nil
}

// DashboardOverview bundles the headline numbers with both distributions.
type DashboardOverview struct {
	domain.Overview
	Ratings    []domain.RatingBucket    `json:"ratings"`
	Sentiments []domain.SentimentBucket `json:"sentiments"`
}

func (s *QueryService) Overview(ctx context.Context, f domain.FilterSpec) (DashboardOverview, error) {
	_, recs, err := s.selection(ctx, f)
	if err != nil {
		return DashboardOverview{}, err
	}
	return DashboardOverview{
		Overview:   OverviewOf(recs),
		Ratings:    RatingDistribution(recs),
		Sentiments: SentimentDistribution(recs),
	}, nil
}

func (s *QueryService) Trend(ctx context.Context, f domain.FilterSpec, g domain.Granularity) ([]domain.TrendPoint, error) {
	_, recs, err := s.selection(ctx, f)
	if err != nil {
		return nil, err
	}
	return Trend(recs, g), nil
}

func (s *QueryService) Brands(ctx context.Context, f domain.FilterSpec) ([]domain.BrandRow, error) {
	_, recs, err := s.selection(ctx, f)
	if err != nil {
		return nil, err
	}
	return BrandSummary(recs, s.policy), nil
}

func (s *QueryService) Products(ctx context.Context, f domain.FilterSpec, limit int) ([]domain.ProductRow, error) {
	_, recs, err := s.selection(ctx, f)
	if err != nil {
		return nil, err
	}
	return ProductStats(recs, limit), nil
}

func (s *QueryService) Risk(ctx context.Context, f domain.FilterSpec, g domain.Granularity) (domain.Risk, error) {
	_, recs, err := s.selection(ctx, f)
	if err != nil {
		return domain.Risk{}, err
	}
	return RiskOf(recs, g, s.policy), nil
}

// ReviewsPage is one page of filtered records, newest first.
type ReviewsPage struct {
	Total int                   `json:"total"`
	Items []domain.ReviewRecord `json:"items"`
}

func (s *QueryService) Reviews(ctx context.Context, f domain.FilterSpec, offset, limit int) (ReviewsPage, error) {
	_, recs, err := s.selection(ctx, f)
	if err != nil {
		return ReviewsPage{}, err
	}
	// copy before sorting: recs may alias the cached slice
	sorted := make([]domain.ReviewRecord, len(recs))
	copy(sorted, recs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.After(sorted[j].Timestamp) })

	out := ReviewsPage{Total: len(sorted), Items: []domain.ReviewRecord{}}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(sorted) {
		return out, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(sorted) {
		end = len(sorted)
	}
	out.Items = sorted[offset:end]
	return out, nil
}
