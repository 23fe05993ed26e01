package app_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"review_pulse/internal/app"
	"review_pulse/internal/domain"
)

func newService(src *fakeSource, c domain.Cache, ttl time.Duration) *app.QueryService {
	return app.NewQueryService(src, c, ttl, time.UTC, domain.DefaultPolicy())
}

func TestQueryService_LoadsOncePerTTL(t *testing.T) {
	src := &fakeSource{table: scenarioTable()}
	svc := newService(src, nil, time.Minute)
	ctx := context.Background()

	a, err := svc.Dataset(ctx)
	require.NoError(t, err)
	b, err := svc.Dataset(ctx)
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.calls))
	assert.Len(t, a.Records, 5)
	assert.Equal(t, "fake", a.Source)
	assert.Len(t, a.Fingerprint, 40)
}

func TestQueryService_ExpiredSlotReloads(t *testing.T) {
	src := &fakeSource{table: scenarioTable()}
	svc := newService(src, nil, time.Nanosecond)
	ctx := context.Background()

	_, err := svc.Dataset(ctx)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = svc.Dataset(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&src.calls))
}

func TestQueryService_SharedCacheHitSkipsSource(t *testing.T) {
	src := &fakeSource{table: scenarioTable()}
	cached := &domain.Dataset{Source: "fake", Fingerprint: "cached", Records: []domain.ReviewRecord{{ID: "x"}}, LoadedAt: time.Now()}
	c := &fakeCache{store: map[string]any{app.DatasetCacheKey("fake"): cached}}
	svc := newService(src, c, time.Minute)

	ds, err := svc.Dataset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cached", ds.Fingerprint)
	assert.Equal(t, int32(0), atomic.LoadInt32(&src.calls))
}

func TestQueryService_LoadWritesSharedCache(t *testing.T) {
	src := &fakeSource{table: scenarioTable()}
	c := &fakeCache{}
	svc := newService(src, c, time.Minute)

	ds, err := svc.Dataset(context.Background())
	require.NoError(t, err)
	require.Contains(t, c.store, app.DatasetCacheKey("fake"))
	assert.Equal(t, ds.Fingerprint, c.store[app.DatasetCacheKey("fake")].(*domain.Dataset).Fingerprint)
}

func TestQueryService_FailedLoadCachesNothing(t *testing.T) {
	src := &fakeSource{table: scenarioTable(), err: errors.New("connection refused")}
	c := &fakeCache{}
	svc := newService(src, c, time.Minute)
	ctx := context.Background()

	_, err := svc.Dataset(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.Empty(t, c.store)

	_, err = svc.Overview(ctx, domain.FilterSpec{})
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.Equal(t, int32(2), atomic.LoadInt32(&src.calls))

	// source recovers: the next call loads
	src.err = nil
	ds, err := svc.Dataset(ctx)
	require.NoError(t, err)
	assert.Len(t, ds.Records, 5)
}

func TestQueryService_SchemaMismatch(t *testing.T) {
	tbl := domain.RawTable{
		Columns: []string{"brand", "date", "speed"},
		Rows:    []domain.RawRow{{"brand": "A", "date": "2024-01-01", "speed": 1}},
	}
	svc := newService(&fakeSource{table: tbl}, nil, time.Minute)

	_, err := svc.Schema(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSchemaMismatch)
	assert.NotErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestQueryService_DropsMalformedRows(t *testing.T) {
	tbl := scenarioTable()
	tbl.Rows = append(tbl.Rows,
		domain.RawRow{"review_id": "r6", "brand_name": "A", "rating": 3, "date": "soon", "speed": 0},
		domain.RawRow{"review_id": "r1", "brand_name": "A", "rating": 3, "date": "2024-03-01", "speed": 0},
	)
	svc := newService(&fakeSource{table: tbl}, nil, time.Minute)

	info, err := svc.Schema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, info.Records)
	assert.Equal(t, map[string]int{domain.ReasonBadTimestamp: 1, domain.ReasonDuplicateID: 1}, info.Dropped)
	assert.Equal(t, []string{"speed"}, info.Schema.ThemeColumns())
	assert.Equal(t, "brand_name", info.Fields.Brand)
}

func TestQueryService_ConcurrentMissesShareOneLoad(t *testing.T) {
	src := &fakeSource{table: scenarioTable(), delay: 50 * time.Millisecond}
	svc := newService(src, &fakeCache{}, time.Minute)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ThemeImpact(context.Background(), domain.FilterSpec{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.calls))
}

func TestQueryService_Invalidate(t *testing.T) {
	src := &fakeSource{table: scenarioTable()}
	c := &fakeCache{}
	svc := newService(src, c, time.Minute)
	ctx := context.Background()

	_, err := svc.Dataset(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Invalidate(ctx))
	assert.Equal(t, []string{app.DatasetCacheKey("fake")}, c.dels)

	_, err = svc.Dataset(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&src.calls))
}

func TestQueryService_FilteredQueries(t *testing.T) {
	svc := newService(&fakeSource{table: scenarioTable()}, nil, time.Minute)
	ctx := context.Background()
	onlyA := domain.FilterSpec{Brands: []string{"A"}}

	ov, err := svc.Overview(ctx, onlyA)
	require.NoError(t, err)
	assert.Equal(t, 3, ov.Reviews)
	assert.Len(t, ov.Ratings, 5)

	split, err := svc.Split(ctx, domain.FilterSpec{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, split.Drivers.Base)
	// default barriers are 1-3
	assert.Equal(t, 3, split.Barriers.Band.Max)

	m, err := svc.Matrix(ctx, onlyA, domain.MatrixRequest{Band: svc.Policy().Drivers})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, m.Brands)

	opts, err := svc.FilterOptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, opts.Brands)

	brands, err := svc.Brands(ctx, domain.FilterSpec{})
	require.NoError(t, err)
	assert.Len(t, brands, 2)

	risk, err := svc.Risk(ctx, domain.FilterSpec{}, domain.Month)
	require.NoError(t, err)
	assert.Len(t, risk.Negative, 2)
}

func TestQueryService_ReviewsPaging(t *testing.T) {
	svc := newService(&fakeSource{table: scenarioTable()}, nil, time.Minute)
	ctx := context.Background()

	page, err := svc.Reviews(ctx, domain.FilterSpec{}, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, []string{"r5", "r4"}, ids(page.Items))

	page, err = svc.Reviews(ctx, domain.FilterSpec{}, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, ids(page.Items))

	page, err = svc.Reviews(ctx, domain.FilterSpec{}, 10, 2)
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)

	// paging never reorders the cached records
	ds, err := svc.Dataset(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r1", ds.Records[0].ID)
}

func TestQueryService_EmptySourceIsEmptyResult(t *testing.T) {
	for _, tbl := range []domain.RawTable{
		{},
		{Columns: []string{"review_id", "brand_name", "rating", "date", "speed"}},
	} {
		svc := newService(&fakeSource{table: tbl}, nil, time.Minute)
		ctx := context.Background()

		info, err := svc.Schema(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, info.Records)
		assert.True(t, info.Schema.Empty())

		impact, err := svc.ThemeImpact(ctx, domain.FilterSpec{})
		require.NoError(t, err)
		assert.Empty(t, impact)

		ov, err := svc.Overview(ctx, domain.FilterSpec{})
		require.NoError(t, err)
		assert.Equal(t, 0, ov.Reviews)
		assert.Nil(t, ov.AvgRating)

		m, err := svc.Matrix(ctx, domain.FilterSpec{}, domain.MatrixRequest{Band: svc.Policy().Drivers})
		require.NoError(t, err)
		require.Len(t, m.Rows, 1)
	}
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestQueryService_SharedCopyExpiresWithItsLoad(t *testing.T) {
	clk := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	src := &fakeSource{table: scenarioTable()}
	// written to the shared cache nine minutes ago
	cached := &domain.Dataset{Source: "fake", Fingerprint: "cached", LoadedAt: clk.t.Add(-9 * time.Minute)}
	c := &fakeCache{store: map[string]any{app.DatasetCacheKey("fake"): cached}}
	svc := newService(src, c, 10*time.Minute).WithClock(clk.now)
	ctx := context.Background()

	ds, err := svc.Dataset(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cached", ds.Fingerprint)
	assert.Equal(t, int32(0), atomic.LoadInt32(&src.calls))

	// two minutes later the copy is eleven minutes old: reload
	clk.t = clk.t.Add(2 * time.Minute)
	ds, err = svc.Dataset(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, "cached", ds.Fingerprint)
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.calls))
	assert.Equal(t, clk.t, ds.LoadedAt)
}

func TestQueryService_StaleSharedCopyIsMiss(t *testing.T) {
	clk := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	src := &fakeSource{table: scenarioTable()}
	stale := &domain.Dataset{Source: "fake", Fingerprint: "stale", LoadedAt: clk.t.Add(-time.Hour)}
	c := &fakeCache{store: map[string]any{app.DatasetCacheKey("fake"): stale}}
	svc := newService(src, c, 10*time.Minute).WithClock(clk.now)

	ds, err := svc.Dataset(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, "stale", ds.Fingerprint)
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.calls))
	// the fresh load replaces the stale shared copy
	assert.Equal(t, ds.Fingerprint, c.store[app.DatasetCacheKey("fake")].(*domain.Dataset).Fingerprint)
}

func TestDatasetCacheKey(t *testing.T) {
	assert.Equal(t, "dataset:v1:mysql", app.DatasetCacheKey("mysql"))
}
